package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/netwatch-io/console-api/internal/dto"
	"github.com/netwatch-io/console-api/internal/models"
	"github.com/netwatch-io/console-api/internal/repository"
	appErrors "github.com/netwatch-io/console-api/pkg/errors"
)

type auditRepository interface {
	Create(ctx context.Context, audit *models.Audit) error
	GetByID(ctx context.Context, id string) (*models.Audit, error)
	List(ctx context.Context) ([]models.Audit, error)
	FindLatest(ctx context.Context) (*models.Audit, error)
	FindActive(ctx context.Context) (*models.Audit, error)
	Activate(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
	UpdateComment(ctx context.Context, id, comment string) error
	CloneStructure(ctx context.Context, srcID, dstID string) error
	CreateGroup(ctx context.Context, group *models.AuditGroup) error
	GetGroupByID(ctx context.Context, id string) (*models.AuditGroup, error)
	UpdateGroup(ctx context.Context, id string, params repository.UpdateGroupParams) error
	DeleteGroup(ctx context.Context, id string) error
	CreateItem(ctx context.Context, item *models.AuditItem) error
	GetItemByID(ctx context.Context, id string) (*models.AuditItem, error)
	UpdateItem(ctx context.Context, id string, params repository.UpdateItemParams) error
	DeleteItem(ctx context.Context, id string) error
}

type activityRecorder interface {
	CreateActivityLog(ctx context.Context, log *models.ActivityLog) error
}

// AuditService manages checklist definitions and their structure.
type AuditService struct {
	repo      auditRepository
	activity  activityRecorder
	validator *validator.Validate
	logger    *zap.Logger
}

// NewAuditService constructs an AuditService.
func NewAuditService(repo auditRepository, activity activityRecorder, validate *validator.Validate, logger *zap.Logger) *AuditService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &AuditService{repo: repo, activity: activity, validator: validate, logger: logger}
}

// List returns all definitions, newest first.
func (s *AuditService) List(ctx context.Context) ([]models.Audit, error) {
	audits, err := s.repo.List(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list audits")
	}
	return audits, nil
}

// Get returns a definition with nested structure.
func (s *AuditService) Get(ctx context.Context, id string) (*models.Audit, error) {
	audit, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "audit not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load audit")
	}
	return audit, nil
}

// GetActive returns the active definition with nested structure.
func (s *AuditService) GetActive(ctx context.Context) (*models.Audit, error) {
	active, err := s.repo.FindActive(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "no active audit configured")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load active audit")
	}
	return s.Get(ctx, active.ID)
}

// Create adds a new inactive definition. The structure of the most recent
// definition is cloned as a starting point so admins iterate instead of
// rebuilding from scratch.
func (s *AuditService) Create(ctx context.Context, comment, actorID string) (*models.Audit, error) {
	latest, err := s.repo.FindLatest(ctx)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load latest audit")
	}

	audit := &models.Audit{
		Comment:   comment,
		CreatedBy: actorID,
	}
	if err := s.repo.Create(ctx, audit); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create audit")
	}

	if latest != nil {
		if err := s.repo.CloneStructure(ctx, latest.ID, audit.ID); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to clone audit structure")
		}
	}

	return s.Get(ctx, audit.ID)
}

// UpdateComment updates the definition comment.
func (s *AuditService) UpdateComment(ctx context.Context, id string, req dto.UpdateAuditRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid audit payload")
	}
	if err := s.repo.UpdateComment(ctx, id, req.Comment); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "audit not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update audit")
	}
	return nil
}

// Activate promotes a definition to be the single active one. New instances
// clone from it immediately; existing instances keep their snapshot.
func (s *AuditService) Activate(ctx context.Context, id, actorID string, meta models.LoginRequest) error {
	if err := s.repo.Activate(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "audit not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to activate audit")
	}

	detail, _ := json.Marshal(map[string]string{"audit_id": id})
	if err := s.activity.CreateActivityLog(ctx, &models.ActivityLog{
		UserID:     &actorID,
		Action:     models.ActivityActionAuditActivate,
		Resource:   "audits",
		ResourceID: &id,
		Detail:     detail,
		IPAddress:  meta.IP,
		UserAgent:  meta.UserAgent,
	}); err != nil {
		s.logger.Warn("failed to record audit activation", zap.Error(err))
	}
	return nil
}

// Delete removes an inactive definition. The active definition cannot be
// deleted; deactivate it by activating another one first.
func (s *AuditService) Delete(ctx context.Context, id, actorID string, meta models.LoginRequest) error {
	audit, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "audit not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load audit")
	}
	if audit.IsActive {
		return appErrors.Clone(appErrors.ErrConflict, "active audit cannot be deleted")
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Raced with activation or another delete.
			return appErrors.Clone(appErrors.ErrConflict, "audit is active or already deleted")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete audit")
	}

	if err := s.activity.CreateActivityLog(ctx, &models.ActivityLog{
		UserID:     &actorID,
		Action:     models.ActivityActionAuditDelete,
		Resource:   "audits",
		ResourceID: &id,
		IPAddress:  meta.IP,
		UserAgent:  meta.UserAgent,
	}); err != nil {
		s.logger.Warn("failed to record audit deletion", zap.Error(err))
	}
	return nil
}

// CreateGroup appends a group to a definition.
func (s *AuditService) CreateGroup(ctx context.Context, auditID string, req dto.CreateGroupRequest) (*models.AuditGroup, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid group payload")
	}
	color := models.GroupColor(req.Color)
	if !color.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown group color")
	}
	if _, err := s.repo.GetByID(ctx, auditID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "audit not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load audit")
	}

	group := &models.AuditGroup{
		AuditID: auditID,
		Name:    req.Name,
		Color:   color,
	}
	if err := s.repo.CreateGroup(ctx, group); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create group")
	}
	return group, nil
}

// UpdateGroup renames, recolors, or reorders a group.
func (s *AuditService) UpdateGroup(ctx context.Context, groupID string, req dto.UpdateGroupRequest) (*models.AuditGroup, error) {
	params := repository.UpdateGroupParams{Name: req.Name, SortOrder: req.SortOrder}
	if req.Color != nil {
		color := models.GroupColor(*req.Color)
		if !color.Valid() {
			return nil, appErrors.Clone(appErrors.ErrValidation, "unknown group color")
		}
		params.Color = &color
	}

	if err := s.repo.UpdateGroup(ctx, groupID, params); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "group not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update group")
	}

	group, err := s.repo.GetGroupByID(ctx, groupID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "group not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load group")
	}
	return group, nil
}

// DeleteGroup removes a group and its items.
func (s *AuditService) DeleteGroup(ctx context.Context, groupID string) error {
	if err := s.repo.DeleteGroup(ctx, groupID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "group not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete group")
	}
	return nil
}

// CreateItem appends an item to a group.
func (s *AuditService) CreateItem(ctx context.Context, groupID string, req dto.CreateItemRequest) (*models.AuditItem, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid item payload")
	}
	if _, err := s.repo.GetGroupByID(ctx, groupID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "group not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load group")
	}

	item := &models.AuditItem{
		AuditGroupID: groupID,
		Name:         req.Name,
	}
	if err := s.repo.CreateItem(ctx, item); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create item")
	}
	return item, nil
}

// UpdateItem renames or reorders an item.
func (s *AuditService) UpdateItem(ctx context.Context, itemID string, req dto.UpdateItemRequest) (*models.AuditItem, error) {
	params := repository.UpdateItemParams{Name: req.Name, SortOrder: req.SortOrder}
	if err := s.repo.UpdateItem(ctx, itemID, params); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "item not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update item")
	}

	item, err := s.repo.GetItemByID(ctx, itemID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "item not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load item")
	}
	return item, nil
}

// DeleteItem removes an item.
func (s *AuditService) DeleteItem(ctx context.Context, itemID string) error {
	if err := s.repo.DeleteItem(ctx, itemID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "item not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete item")
	}
	return nil
}
