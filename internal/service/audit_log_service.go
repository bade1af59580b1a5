package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/netwatch-io/console-api/internal/dto"
	"github.com/netwatch-io/console-api/internal/models"
	"github.com/netwatch-io/console-api/internal/repository"
	appErrors "github.com/netwatch-io/console-api/pkg/errors"
)

// historyPageSize is the fixed page size of the history and report views.
const historyPageSize = 10

type auditLogRepository interface {
	CreateFromDefinition(ctx context.Context, userID string, def *models.Audit) (*models.AuditLog, error)
	GetByID(ctx context.Context, id string) (*models.AuditLog, error)
	GetWithStructure(ctx context.Context, id string) (*models.AuditLog, error)
	FindUnlockedByUser(ctx context.Context, userID string) (*models.AuditLog, error)
	FindByGroupLogID(ctx context.Context, groupLogID string) (*models.AuditLog, error)
	FindByItemLogID(ctx context.Context, itemLogID string) (*models.AuditLog, error)
	UpdateDescription(ctx context.Context, id, description string) error
	UpdateGroupDescription(ctx context.Context, groupLogID, description string) error
	UpdateItemChecked(ctx context.Context, itemLogID string, checked bool) error
	Lock(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
	ListHistoryByUser(ctx context.Context, userID string, page, pageSize int) ([]models.HistoryEntry, int, error)
	ListHistory(ctx context.Context, filter models.HistoryFilter) ([]models.HistoryEntry, int, error)
}

type activeAuditProvider interface {
	GetActive(ctx context.Context) (*models.Audit, error)
}

// AuditLogService manages per-user checklist instances: creation from the
// active definition, field edits while unlocked, the terminal lock, and the
// history and report views.
type AuditLogService struct {
	repo    auditLogRepository
	audits  activeAuditProvider
	metrics *MetricsService
	logger  *zap.Logger
}

// NewAuditLogService constructs an AuditLogService.
func NewAuditLogService(repo auditLogRepository, audits activeAuditProvider, metrics *MetricsService, logger *zap.Logger) *AuditLogService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditLogService{repo: repo, audits: audits, metrics: metrics, logger: logger}
}

// CreateInstance clones the active definition into a new unlocked instance
// for the caller. A user holds at most one unlocked instance at a time; a
// second create fails until the first is locked or deleted.
func (s *AuditLogService) CreateInstance(ctx context.Context, userID string) (*models.AuditLog, error) {
	def, err := s.audits.GetActive(ctx)
	if err != nil {
		return nil, err
	}

	log, err := s.repo.CreateFromDefinition(ctx, userID, def)
	if err != nil {
		if errors.Is(err, repository.ErrUnlockedExists) {
			return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "an unlocked audit log already exists")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create audit log")
	}
	return log, nil
}

// GetActiveInstance returns the caller's current unlocked instance.
func (s *AuditLogService) GetActiveInstance(ctx context.Context, userID string) (*models.AuditLog, error) {
	log, err := s.repo.FindUnlockedByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "no unlocked audit log")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load audit log")
	}
	return log, nil
}

// Get returns an instance with nested structure. Owners see their own
// instances; admins see everyone's.
func (s *AuditLogService) Get(ctx context.Context, id string, claims *models.JWTClaims) (*models.AuditLog, error) {
	log, err := s.repo.GetWithStructure(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "audit log not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load audit log")
	}
	if log.UserID != claims.UserID && !claims.Role.AtLeast(models.RoleAdmin) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "audit log belongs to another user")
	}
	return log, nil
}

// UpdateDescription writes the instance free text while it is unlocked.
func (s *AuditLogService) UpdateDescription(ctx context.Context, id, userID string, req dto.UpdateLogDescriptionRequest) error {
	log, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "audit log not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load audit log")
	}
	if err := s.assertWritable(log, userID); err != nil {
		return err
	}

	if err := s.repo.UpdateDescription(ctx, id, req.Description); err != nil {
		return s.translateWriteError(err)
	}
	return nil
}

// UpdateGroupDescription writes a group log's free text while the parent is
// unlocked.
func (s *AuditLogService) UpdateGroupDescription(ctx context.Context, groupLogID, userID string, req dto.UpdateGroupLogRequest) error {
	log, err := s.repo.FindByGroupLogID(ctx, groupLogID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "group log not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load group log")
	}
	if err := s.assertWritable(log, userID); err != nil {
		return err
	}

	if err := s.repo.UpdateGroupDescription(ctx, groupLogID, req.Description); err != nil {
		return s.translateWriteError(err)
	}
	return nil
}

// UpdateItemChecked toggles an item while the parent is unlocked.
func (s *AuditLogService) UpdateItemChecked(ctx context.Context, itemLogID, userID string, req dto.UpdateItemLogRequest) error {
	log, err := s.repo.FindByItemLogID(ctx, itemLogID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "item log not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load item log")
	}
	if err := s.assertWritable(log, userID); err != nil {
		return err
	}

	if err := s.repo.UpdateItemChecked(ctx, itemLogID, req.IsChecked); err != nil {
		return s.translateWriteError(err)
	}
	return nil
}

// Lock performs the terminal submit. A locked instance can never be unlocked
// or edited again.
func (s *AuditLogService) Lock(ctx context.Context, id, userID string) error {
	log, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "audit log not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load audit log")
	}
	if log.UserID != userID {
		return appErrors.Clone(appErrors.ErrForbidden, "audit log belongs to another user")
	}
	if log.IsLocked {
		return appErrors.Clone(appErrors.ErrConflict, "audit log is already locked")
	}

	if err := s.repo.Lock(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Lost the race against a concurrent lock.
			return appErrors.Clone(appErrors.ErrConflict, "audit log is already locked")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to lock audit log")
	}
	return nil
}

// Delete removes an instance. Owners may discard their own unlocked work;
// admins may remove any instance.
func (s *AuditLogService) Delete(ctx context.Context, id string, claims *models.JWTClaims) error {
	log, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "audit log not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load audit log")
	}

	if !claims.Role.AtLeast(models.RoleAdmin) {
		if log.UserID != claims.UserID {
			return appErrors.Clone(appErrors.ErrForbidden, "audit log belongs to another user")
		}
		if log.IsLocked {
			return appErrors.Clone(appErrors.ErrForbidden, "locked audit log cannot be deleted")
		}
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "audit log not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete audit log")
	}
	return nil
}

// GetUserHistory returns one page of the caller's own instances.
func (s *AuditLogService) GetUserHistory(ctx context.Context, userID string, page int) ([]models.HistoryEntry, *models.Pagination, error) {
	if page < 1 {
		page = 1
	}
	start := time.Now()
	entries, total, err := s.repo.ListHistoryByUser(ctx, userID, page, historyPageSize)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list history")
	}
	if s.metrics != nil {
		s.metrics.ObserveDBQuery("audit_log_history", time.Since(start))
	}
	return entries, &models.Pagination{Page: page, PageSize: historyPageSize, TotalCount: total}, nil
}

// GetAllHistory returns one page of the cross-user report.
func (s *AuditLogService) GetAllHistory(ctx context.Context, filter models.HistoryFilter) ([]models.HistoryEntry, *models.Pagination, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	filter.PageSize = historyPageSize
	start := time.Now()
	entries, total, err := s.repo.ListHistory(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list report")
	}
	if s.metrics != nil {
		s.metrics.ObserveDBQuery("audit_log_report", time.Since(start))
	}
	return entries, &models.Pagination{Page: filter.Page, PageSize: historyPageSize, TotalCount: total}, nil
}

func (s *AuditLogService) assertWritable(log *models.AuditLog, userID string) error {
	if log.UserID != userID {
		return appErrors.Clone(appErrors.ErrForbidden, "audit log belongs to another user")
	}
	if log.IsLocked {
		return appErrors.Clone(appErrors.ErrForbidden, "audit log is locked")
	}
	return nil
}

// translateWriteError maps a zero-row guarded update to FORBIDDEN: the row
// existed a moment ago, so the guard that failed is the lock.
func (s *AuditLogService) translateWriteError(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrForbidden, "audit log is locked")
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update audit log")
}
