package service

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/netwatch-io/console-api/internal/dto"
	"github.com/netwatch-io/console-api/internal/models"
	"github.com/netwatch-io/console-api/internal/repository"
	appErrors "github.com/netwatch-io/console-api/pkg/errors"
)

type auditLogRepoStub struct {
	logs    map[string]*models.AuditLog
	nextID  int
	locked  map[string]bool
	byGroup map[string]string
	byItem  map[string]string
}

func newAuditLogRepoStub() *auditLogRepoStub {
	return &auditLogRepoStub{
		logs:    make(map[string]*models.AuditLog),
		byGroup: make(map[string]string),
		byItem:  make(map[string]string),
	}
}

func (s *auditLogRepoStub) CreateFromDefinition(ctx context.Context, userID string, def *models.Audit) (*models.AuditLog, error) {
	for _, log := range s.logs {
		if log.UserID == userID && !log.IsLocked {
			return nil, repository.ErrUnlockedExists
		}
	}
	s.nextID++
	log := &models.AuditLog{
		ID:        fmt.Sprintf("log-%d", s.nextID),
		AuditID:   &def.ID,
		UserID:    userID,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	for gi, group := range def.Groups {
		groupLog := models.AuditGroupLog{
			ID:         fmt.Sprintf("%s-g%d", log.ID, gi),
			AuditLogID: log.ID,
			Name:       group.Name,
			Color:      group.Color,
			SortOrder:  group.SortOrder,
		}
		s.byGroup[groupLog.ID] = log.ID
		for ii, item := range group.Items {
			itemLog := models.AuditItemLog{
				ID:              fmt.Sprintf("%s-i%d", groupLog.ID, ii),
				AuditGroupLogID: groupLog.ID,
				Name:            item.Name,
				SortOrder:       item.SortOrder,
			}
			s.byItem[itemLog.ID] = log.ID
			groupLog.Items = append(groupLog.Items, itemLog)
		}
		log.Groups = append(log.Groups, groupLog)
	}
	s.logs[log.ID] = log
	return log, nil
}

func (s *auditLogRepoStub) GetByID(ctx context.Context, id string) (*models.AuditLog, error) {
	if log, ok := s.logs[id]; ok {
		copy := *log
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func (s *auditLogRepoStub) GetWithStructure(ctx context.Context, id string) (*models.AuditLog, error) {
	return s.GetByID(ctx, id)
}

func (s *auditLogRepoStub) FindUnlockedByUser(ctx context.Context, userID string) (*models.AuditLog, error) {
	for _, log := range s.logs {
		if log.UserID == userID && !log.IsLocked {
			copy := *log
			return &copy, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *auditLogRepoStub) FindByGroupLogID(ctx context.Context, groupLogID string) (*models.AuditLog, error) {
	if logID, ok := s.byGroup[groupLogID]; ok {
		return s.GetByID(ctx, logID)
	}
	return nil, sql.ErrNoRows
}

func (s *auditLogRepoStub) FindByItemLogID(ctx context.Context, itemLogID string) (*models.AuditLog, error) {
	if logID, ok := s.byItem[itemLogID]; ok {
		return s.GetByID(ctx, logID)
	}
	return nil, sql.ErrNoRows
}

func (s *auditLogRepoStub) UpdateDescription(ctx context.Context, id, description string) error {
	log, ok := s.logs[id]
	if !ok || log.IsLocked {
		return sql.ErrNoRows
	}
	log.Description = description
	return nil
}

func (s *auditLogRepoStub) UpdateGroupDescription(ctx context.Context, groupLogID, description string) error {
	logID, ok := s.byGroup[groupLogID]
	if !ok || s.logs[logID].IsLocked {
		return sql.ErrNoRows
	}
	return nil
}

func (s *auditLogRepoStub) UpdateItemChecked(ctx context.Context, itemLogID string, checked bool) error {
	logID, ok := s.byItem[itemLogID]
	if !ok || s.logs[logID].IsLocked {
		return sql.ErrNoRows
	}
	return nil
}

func (s *auditLogRepoStub) Lock(ctx context.Context, id string) error {
	log, ok := s.logs[id]
	if !ok || log.IsLocked {
		return sql.ErrNoRows
	}
	log.IsLocked = true
	return nil
}

func (s *auditLogRepoStub) Delete(ctx context.Context, id string) error {
	if _, ok := s.logs[id]; !ok {
		return sql.ErrNoRows
	}
	delete(s.logs, id)
	return nil
}

func (s *auditLogRepoStub) ListHistoryByUser(ctx context.Context, userID string, page, pageSize int) ([]models.HistoryEntry, int, error) {
	var entries []models.HistoryEntry
	for _, log := range s.logs {
		if log.UserID == userID {
			entries = append(entries, models.HistoryEntry{ID: log.ID, UserID: log.UserID, IsLocked: log.IsLocked})
		}
	}
	return entries, len(entries), nil
}

func (s *auditLogRepoStub) ListHistory(ctx context.Context, filter models.HistoryFilter) ([]models.HistoryEntry, int, error) {
	var entries []models.HistoryEntry
	for _, log := range s.logs {
		entries = append(entries, models.HistoryEntry{ID: log.ID, UserID: log.UserID, IsLocked: log.IsLocked})
	}
	return entries, len(entries), nil
}

type activeAuditStub struct {
	audit *models.Audit
}

func (s *activeAuditStub) GetActive(ctx context.Context) (*models.Audit, error) {
	if s.audit == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "no active audit configured")
	}
	return s.audit, nil
}

func activeDefinition() *models.Audit {
	return &models.Audit{
		ID:       "audit-1",
		IsActive: true,
		Groups: []models.AuditGroup{
			{
				ID: "group-1", AuditID: "audit-1", Name: "Sensors", Color: models.GroupColorBlue,
				Items: []models.AuditItem{{ID: "item-1", AuditGroupID: "group-1", Name: "Antenna alignment"}},
			},
		},
	}
}

func TestAuditLogServiceCreateInstance(t *testing.T) {
	repo := newAuditLogRepoStub()
	svc := NewAuditLogService(repo, &activeAuditStub{audit: activeDefinition()}, nil, nil)

	log, err := svc.CreateInstance(context.Background(), "user-1")
	require.NoError(t, err)
	require.False(t, log.IsLocked)
	require.Len(t, log.Groups, 1)
	require.Equal(t, "Sensors", log.Groups[0].Name)

	// A second unlocked instance is refused until the first is resolved.
	_, err = svc.CreateInstance(context.Background(), "user-1")
	require.True(t, appErrors.Is(err, appErrors.ErrPreconditionFailed))

	// Another user is unaffected.
	_, err = svc.CreateInstance(context.Background(), "user-2")
	require.NoError(t, err)
}

func TestAuditLogServiceCreateInstanceNoActiveDefinition(t *testing.T) {
	svc := NewAuditLogService(newAuditLogRepoStub(), &activeAuditStub{}, nil, nil)
	_, err := svc.CreateInstance(context.Background(), "user-1")
	require.True(t, appErrors.Is(err, appErrors.ErrNotFound))
}

func TestAuditLogServiceLockIsTerminal(t *testing.T) {
	repo := newAuditLogRepoStub()
	svc := NewAuditLogService(repo, &activeAuditStub{audit: activeDefinition()}, nil, nil)

	log, err := svc.CreateInstance(context.Background(), "user-1")
	require.NoError(t, err)

	require.NoError(t, svc.Lock(context.Background(), log.ID, "user-1"))

	err = svc.Lock(context.Background(), log.ID, "user-1")
	require.True(t, appErrors.Is(err, appErrors.ErrConflict))

	// Edits after lock are refused.
	err = svc.UpdateDescription(context.Background(), log.ID, "user-1", dto.UpdateLogDescriptionRequest{Description: "late"})
	require.True(t, appErrors.Is(err, appErrors.ErrForbidden))

	itemLogID := log.Groups[0].Items[0].ID
	err = svc.UpdateItemChecked(context.Background(), itemLogID, "user-1", dto.UpdateItemLogRequest{IsChecked: true})
	require.True(t, appErrors.Is(err, appErrors.ErrForbidden))

	// Once locked the user may start again.
	_, err = svc.CreateInstance(context.Background(), "user-1")
	require.NoError(t, err)
}

func TestAuditLogServiceOwnershipChecks(t *testing.T) {
	repo := newAuditLogRepoStub()
	svc := NewAuditLogService(repo, &activeAuditStub{audit: activeDefinition()}, nil, nil)

	log, err := svc.CreateInstance(context.Background(), "user-1")
	require.NoError(t, err)

	err = svc.UpdateDescription(context.Background(), log.ID, "user-2", dto.UpdateLogDescriptionRequest{Description: "not mine"})
	require.True(t, appErrors.Is(err, appErrors.ErrForbidden))

	err = svc.Lock(context.Background(), log.ID, "user-2")
	require.True(t, appErrors.Is(err, appErrors.ErrForbidden))

	otherClaims := &models.JWTClaims{UserID: "user-2", Role: models.RoleUser}
	_, err = svc.Get(context.Background(), log.ID, otherClaims)
	require.True(t, appErrors.Is(err, appErrors.ErrForbidden))

	adminClaims := &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin}
	fetched, err := svc.Get(context.Background(), log.ID, adminClaims)
	require.NoError(t, err)
	require.Equal(t, log.ID, fetched.ID)
}

func TestAuditLogServiceDeletePolicy(t *testing.T) {
	repo := newAuditLogRepoStub()
	svc := NewAuditLogService(repo, &activeAuditStub{audit: activeDefinition()}, nil, nil)

	log, err := svc.CreateInstance(context.Background(), "user-1")
	require.NoError(t, err)

	owner := &models.JWTClaims{UserID: "user-1", Role: models.RoleUser}
	other := &models.JWTClaims{UserID: "user-2", Role: models.RoleUser}
	admin := &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin}

	err = svc.Delete(context.Background(), log.ID, other)
	require.True(t, appErrors.Is(err, appErrors.ErrForbidden))

	require.NoError(t, svc.Lock(context.Background(), log.ID, "user-1"))

	// A locked instance is out of the owner's hands.
	err = svc.Delete(context.Background(), log.ID, owner)
	require.True(t, appErrors.Is(err, appErrors.ErrForbidden))

	require.NoError(t, svc.Delete(context.Background(), log.ID, admin))

	err = svc.Delete(context.Background(), log.ID, admin)
	require.True(t, appErrors.Is(err, appErrors.ErrNotFound))
}

func TestAuditLogServiceGetActiveInstance(t *testing.T) {
	repo := newAuditLogRepoStub()
	svc := NewAuditLogService(repo, &activeAuditStub{audit: activeDefinition()}, nil, nil)

	_, err := svc.GetActiveInstance(context.Background(), "user-1")
	require.True(t, appErrors.Is(err, appErrors.ErrNotFound))

	created, err := svc.CreateInstance(context.Background(), "user-1")
	require.NoError(t, err)

	found, err := svc.GetActiveInstance(context.Background(), "user-1")
	require.NoError(t, err)
	require.Equal(t, created.ID, found.ID)
}

func TestAuditLogServiceHistoryPagination(t *testing.T) {
	repo := newAuditLogRepoStub()
	svc := NewAuditLogService(repo, &activeAuditStub{audit: activeDefinition()}, nil, nil)

	log, err := svc.CreateInstance(context.Background(), "user-1")
	require.NoError(t, err)
	require.NoError(t, svc.Lock(context.Background(), log.ID, "user-1"))
	_, err = svc.CreateInstance(context.Background(), "user-1")
	require.NoError(t, err)

	entries, pagination, err := svc.GetUserHistory(context.Background(), "user-1", 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, 1, pagination.Page)
	require.Equal(t, historyPageSize, pagination.PageSize)
	require.Equal(t, 2, pagination.TotalCount)
}

func TestAuditLogServiceHistoryObservesQueryTiming(t *testing.T) {
	repo := newAuditLogRepoStub()
	metrics := NewMetricsService()
	svc := NewAuditLogService(repo, &activeAuditStub{audit: activeDefinition()}, metrics, nil)

	_, err := svc.CreateInstance(context.Background(), "user-1")
	require.NoError(t, err)

	_, _, err = svc.GetUserHistory(context.Background(), "user-1", 1)
	require.NoError(t, err)
	_, _, err = svc.GetAllHistory(context.Background(), models.HistoryFilter{Page: 1})
	require.NoError(t, err)

	// Both history queries feed the status snapshot's db counters.
	snap := metrics.Snapshot()
	require.EqualValues(t, 2, snap.DBQueryCount)
	require.GreaterOrEqual(t, snap.AverageDBQueryDurationMs, 0.0)
}
