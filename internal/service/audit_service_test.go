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

type auditRepoStub struct {
	audits  map[string]*models.Audit
	groups  map[string]*models.AuditGroup
	items   map[string]*models.AuditItem
	nextID  int
	cloned  [][2]string
	created []string
}

func newAuditRepoStub() *auditRepoStub {
	return &auditRepoStub{
		audits: make(map[string]*models.Audit),
		groups: make(map[string]*models.AuditGroup),
		items:  make(map[string]*models.AuditItem),
	}
}

func (s *auditRepoStub) Create(ctx context.Context, audit *models.Audit) error {
	s.nextID++
	audit.ID = fmt.Sprintf("audit-%d", s.nextID)
	audit.IsActive = false
	audit.CreatedAt = time.Now()
	s.audits[audit.ID] = audit
	s.created = append(s.created, audit.ID)
	return nil
}

func (s *auditRepoStub) GetByID(ctx context.Context, id string) (*models.Audit, error) {
	if audit, ok := s.audits[id]; ok {
		copy := *audit
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func (s *auditRepoStub) List(ctx context.Context) ([]models.Audit, error) {
	result := make([]models.Audit, 0, len(s.audits))
	for _, audit := range s.audits {
		result = append(result, *audit)
	}
	return result, nil
}

func (s *auditRepoStub) FindLatest(ctx context.Context) (*models.Audit, error) {
	if len(s.created) == 0 {
		return nil, sql.ErrNoRows
	}
	return s.GetByID(ctx, s.created[len(s.created)-1])
}

func (s *auditRepoStub) FindActive(ctx context.Context) (*models.Audit, error) {
	for _, audit := range s.audits {
		if audit.IsActive {
			copy := *audit
			return &copy, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *auditRepoStub) Activate(ctx context.Context, id string) error {
	target, ok := s.audits[id]
	if !ok {
		return sql.ErrNoRows
	}
	for _, audit := range s.audits {
		audit.IsActive = false
	}
	target.IsActive = true
	return nil
}

func (s *auditRepoStub) Delete(ctx context.Context, id string) error {
	audit, ok := s.audits[id]
	if !ok || audit.IsActive {
		return sql.ErrNoRows
	}
	delete(s.audits, id)
	return nil
}

func (s *auditRepoStub) UpdateComment(ctx context.Context, id, comment string) error {
	audit, ok := s.audits[id]
	if !ok {
		return sql.ErrNoRows
	}
	audit.Comment = comment
	return nil
}

func (s *auditRepoStub) CloneStructure(ctx context.Context, srcID, dstID string) error {
	s.cloned = append(s.cloned, [2]string{srcID, dstID})
	return nil
}

func (s *auditRepoStub) CreateGroup(ctx context.Context, group *models.AuditGroup) error {
	s.nextID++
	group.ID = fmt.Sprintf("group-%d", s.nextID)
	s.groups[group.ID] = group
	return nil
}

func (s *auditRepoStub) GetGroupByID(ctx context.Context, id string) (*models.AuditGroup, error) {
	if group, ok := s.groups[id]; ok {
		copy := *group
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func (s *auditRepoStub) UpdateGroup(ctx context.Context, id string, params repository.UpdateGroupParams) error {
	group, ok := s.groups[id]
	if !ok {
		return sql.ErrNoRows
	}
	if params.Name != nil {
		group.Name = *params.Name
	}
	if params.Color != nil {
		group.Color = *params.Color
	}
	if params.SortOrder != nil {
		group.SortOrder = *params.SortOrder
	}
	return nil
}

func (s *auditRepoStub) DeleteGroup(ctx context.Context, id string) error {
	if _, ok := s.groups[id]; !ok {
		return sql.ErrNoRows
	}
	delete(s.groups, id)
	return nil
}

func (s *auditRepoStub) CreateItem(ctx context.Context, item *models.AuditItem) error {
	s.nextID++
	item.ID = fmt.Sprintf("item-%d", s.nextID)
	s.items[item.ID] = item
	return nil
}

func (s *auditRepoStub) GetItemByID(ctx context.Context, id string) (*models.AuditItem, error) {
	if item, ok := s.items[id]; ok {
		copy := *item
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func (s *auditRepoStub) UpdateItem(ctx context.Context, id string, params repository.UpdateItemParams) error {
	item, ok := s.items[id]
	if !ok {
		return sql.ErrNoRows
	}
	if params.Name != nil {
		item.Name = *params.Name
	}
	if params.SortOrder != nil {
		item.SortOrder = *params.SortOrder
	}
	return nil
}

func (s *auditRepoStub) DeleteItem(ctx context.Context, id string) error {
	if _, ok := s.items[id]; !ok {
		return sql.ErrNoRows
	}
	delete(s.items, id)
	return nil
}

type activityStub struct {
	entries []*models.ActivityLog
}

func (s *activityStub) CreateActivityLog(ctx context.Context, log *models.ActivityLog) error {
	s.entries = append(s.entries, log)
	return nil
}

func TestAuditServiceCreateClonesLatest(t *testing.T) {
	repo := newAuditRepoStub()
	svc := NewAuditService(repo, &activityStub{}, nil, nil)

	first, err := svc.Create(context.Background(), "initial", "admin-1")
	require.NoError(t, err)
	require.Empty(t, repo.cloned)

	second, err := svc.Create(context.Background(), "revision", "admin-1")
	require.NoError(t, err)
	require.Len(t, repo.cloned, 1)
	require.Equal(t, first.ID, repo.cloned[0][0])
	require.Equal(t, second.ID, repo.cloned[0][1])
	require.False(t, second.IsActive)
}

func TestAuditServiceActivateSingleActive(t *testing.T) {
	repo := newAuditRepoStub()
	activity := &activityStub{}
	svc := NewAuditService(repo, activity, nil, nil)

	first, err := svc.Create(context.Background(), "v1", "admin-1")
	require.NoError(t, err)
	second, err := svc.Create(context.Background(), "v2", "admin-1")
	require.NoError(t, err)

	require.NoError(t, svc.Activate(context.Background(), first.ID, "admin-1", models.LoginRequest{}))
	require.NoError(t, svc.Activate(context.Background(), second.ID, "admin-1", models.LoginRequest{}))

	active, err := svc.GetActive(context.Background())
	require.NoError(t, err)
	require.Equal(t, second.ID, active.ID)
	require.Len(t, activity.entries, 2)
	require.Equal(t, models.ActivityActionAuditActivate, activity.entries[0].Action)

	err = svc.Activate(context.Background(), "ghost", "admin-1", models.LoginRequest{})
	require.True(t, appErrors.Is(err, appErrors.ErrNotFound))
}

func TestAuditServiceDeleteRefusesActive(t *testing.T) {
	repo := newAuditRepoStub()
	svc := NewAuditService(repo, &activityStub{}, nil, nil)

	audit, err := svc.Create(context.Background(), "v1", "admin-1")
	require.NoError(t, err)
	require.NoError(t, svc.Activate(context.Background(), audit.ID, "admin-1", models.LoginRequest{}))

	err = svc.Delete(context.Background(), audit.ID, "admin-1", models.LoginRequest{})
	require.True(t, appErrors.Is(err, appErrors.ErrConflict))

	replacement, err := svc.Create(context.Background(), "v2", "admin-1")
	require.NoError(t, err)
	require.NoError(t, svc.Activate(context.Background(), replacement.ID, "admin-1", models.LoginRequest{}))

	require.NoError(t, svc.Delete(context.Background(), audit.ID, "admin-1", models.LoginRequest{}))
}

func TestAuditServiceGroupColorValidation(t *testing.T) {
	repo := newAuditRepoStub()
	svc := NewAuditService(repo, &activityStub{}, nil, nil)

	audit, err := svc.Create(context.Background(), "v1", "admin-1")
	require.NoError(t, err)

	_, err = svc.CreateGroup(context.Background(), audit.ID, dto.CreateGroupRequest{Name: "Sensors", Color: "MAGENTA"})
	require.True(t, appErrors.Is(err, appErrors.ErrValidation))

	group, err := svc.CreateGroup(context.Background(), audit.ID, dto.CreateGroupRequest{Name: "Sensors", Color: "BLUE"})
	require.NoError(t, err)
	require.Equal(t, models.GroupColorBlue, group.Color)

	bad := "PINKISH"
	_, err = svc.UpdateGroup(context.Background(), group.ID, dto.UpdateGroupRequest{Color: &bad})
	require.True(t, appErrors.Is(err, appErrors.ErrValidation))

	name := "Capture nodes"
	updated, err := svc.UpdateGroup(context.Background(), group.ID, dto.UpdateGroupRequest{Name: &name})
	require.NoError(t, err)
	require.Equal(t, name, updated.Name)
}
