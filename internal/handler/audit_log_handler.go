package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/netwatch-io/console-api/internal/dto"
	"github.com/netwatch-io/console-api/internal/models"
	appErrors "github.com/netwatch-io/console-api/pkg/errors"
	"github.com/netwatch-io/console-api/pkg/response"
)

type auditLogService interface {
	CreateInstance(ctx context.Context, userID string) (*models.AuditLog, error)
	GetActiveInstance(ctx context.Context, userID string) (*models.AuditLog, error)
	Get(ctx context.Context, id string, claims *models.JWTClaims) (*models.AuditLog, error)
	UpdateDescription(ctx context.Context, id, userID string, req dto.UpdateLogDescriptionRequest) error
	UpdateGroupDescription(ctx context.Context, groupLogID, userID string, req dto.UpdateGroupLogRequest) error
	UpdateItemChecked(ctx context.Context, itemLogID, userID string, req dto.UpdateItemLogRequest) error
	Lock(ctx context.Context, id, userID string) error
	Delete(ctx context.Context, id string, claims *models.JWTClaims) error
	GetUserHistory(ctx context.Context, userID string, page int) ([]models.HistoryEntry, *models.Pagination, error)
	GetAllHistory(ctx context.Context, filter models.HistoryFilter) ([]models.HistoryEntry, *models.Pagination, error)
}

// AuditLogHandler manages per-user checklist instances and history queries.
type AuditLogHandler struct {
	service auditLogService
}

// NewAuditLogHandler creates a new audit log handler.
func NewAuditLogHandler(svc auditLogService) *AuditLogHandler {
	return &AuditLogHandler{service: svc}
}

// Create godoc
// @Summary Start audit instance
// @Description Clone the active definition into a new working instance for the caller
// @Tags AuditLogs
// @Produce json
// @Success 201 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /audit-logs [post]
func (h *AuditLogHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthenticated)
		return
	}

	log, err := h.service.CreateInstance(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, log)
}

// GetActive godoc
// @Summary Get active audit instance
// @Description Get the caller's unlocked working instance
// @Tags AuditLogs
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /audit-logs/active [get]
func (h *AuditLogHandler) GetActive(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthenticated)
		return
	}

	log, err := h.service.GetActiveInstance(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, log, nil)
}

// Get godoc
// @Summary Get audit instance
// @Description Get an instance with full structure. Owners and admins only.
// @Tags AuditLogs
// @Produce json
// @Param id path string true "Audit log ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /audit-logs/{id} [get]
func (h *AuditLogHandler) Get(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthenticated)
		return
	}

	log, err := h.service.Get(c.Request.Context(), c.Param("id"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, log, nil)
}

// UpdateDescription godoc
// @Summary Update instance description
// @Description Update the instance-level free text. Rejected once locked.
// @Tags AuditLogs
// @Accept json
// @Produce json
// @Param id path string true "Audit log ID"
// @Param payload body dto.UpdateLogDescriptionRequest true "Description payload"
// @Success 204 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /audit-logs/{id}/description [put]
func (h *AuditLogHandler) UpdateDescription(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthenticated)
		return
	}

	var req dto.UpdateLogDescriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	if err := h.service.UpdateDescription(c.Request.Context(), c.Param("id"), claims.UserID, req); err != nil {
		response.Error(c, err)
		return
	}

	response.NoContent(c)
}

// UpdateGroup godoc
// @Summary Update group log description
// @Description Update a group log's free text. Rejected once locked.
// @Tags AuditLogs
// @Accept json
// @Produce json
// @Param groupLogId path string true "Group log ID"
// @Param payload body dto.UpdateGroupLogRequest true "Description payload"
// @Success 204 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /audit-logs/groups/{groupLogId} [put]
func (h *AuditLogHandler) UpdateGroup(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthenticated)
		return
	}

	var req dto.UpdateGroupLogRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	if err := h.service.UpdateGroupDescription(c.Request.Context(), c.Param("groupLogId"), claims.UserID, req); err != nil {
		response.Error(c, err)
		return
	}

	response.NoContent(c)
}

// UpdateItem godoc
// @Summary Toggle item check
// @Description Set or clear an item log's check mark. Rejected once locked.
// @Tags AuditLogs
// @Accept json
// @Produce json
// @Param itemLogId path string true "Item log ID"
// @Param payload body dto.UpdateItemLogRequest true "Check payload"
// @Success 204 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /audit-logs/items/{itemLogId} [put]
func (h *AuditLogHandler) UpdateItem(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthenticated)
		return
	}

	var req dto.UpdateItemLogRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	if err := h.service.UpdateItemChecked(c.Request.Context(), c.Param("itemLogId"), claims.UserID, req); err != nil {
		response.Error(c, err)
		return
	}

	response.NoContent(c)
}

// Lock godoc
// @Summary Lock audit instance
// @Description Finalise the instance. Locking is terminal.
// @Tags AuditLogs
// @Produce json
// @Param id path string true "Audit log ID"
// @Success 204 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /audit-logs/{id}/lock [post]
func (h *AuditLogHandler) Lock(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthenticated)
		return
	}

	if err := h.service.Lock(c.Request.Context(), c.Param("id"), claims.UserID); err != nil {
		response.Error(c, err)
		return
	}

	response.NoContent(c)
}

// Delete godoc
// @Summary Delete audit instance
// @Description Owners may delete their unlocked instance; admins may delete any
// @Tags AuditLogs
// @Produce json
// @Param id path string true "Audit log ID"
// @Success 204 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /audit-logs/{id} [delete]
func (h *AuditLogHandler) Delete(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthenticated)
		return
	}

	if err := h.service.Delete(c.Request.Context(), c.Param("id"), claims); err != nil {
		response.Error(c, err)
		return
	}

	response.NoContent(c)
}

// History godoc
// @Summary Get own audit history
// @Description List the caller's past instances, newest first
// @Tags AuditLogs
// @Produce json
// @Param page query int false "Page number"
// @Success 200 {object} response.Envelope
// @Router /audit-logs/history [get]
func (h *AuditLogHandler) History(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthenticated)
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))

	entries, pagination, err := h.service.GetUserHistory(c.Request.Context(), claims.UserID, page)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, entries, pagination)
}

// Report godoc
// @Summary Query audit report
// @Description Admin report over all instances with filtering
// @Tags Reports
// @Produce json
// @Param page query int false "Page number"
// @Param account query string false "Account substring filter"
// @Param role query string false "Role filter"
// @Param is_locked query bool false "Locked filter"
// @Param created_from query string false "Created lower bound (RFC3339)"
// @Param created_to query string false "Created upper bound (RFC3339)"
// @Param modified_from query string false "Last modified lower bound (RFC3339)"
// @Param modified_to query string false "Last modified upper bound (RFC3339)"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /reports/audit-logs [get]
func (h *AuditLogHandler) Report(c *gin.Context) {
	filter := models.HistoryFilter{Account: c.Query("account")}

	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if role := c.Query("role"); role != "" {
		r := models.UserRole(role)
		filter.Role = &r
	}
	if locked := c.Query("is_locked"); locked != "" {
		if val, err := strconv.ParseBool(locked); err == nil {
			filter.IsLocked = &val
		}
	}

	var bindErr error
	filter.CreatedFrom = parseTimeQuery(c, "created_from", &bindErr)
	filter.CreatedTo = parseTimeQuery(c, "created_to", &bindErr)
	filter.ModifiedFrom = parseTimeQuery(c, "modified_from", &bindErr)
	filter.ModifiedTo = parseTimeQuery(c, "modified_to", &bindErr)
	if bindErr != nil {
		response.Error(c, appErrors.Wrap(bindErr, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid time filter"))
		return
	}

	entries, pagination, err := h.service.GetAllHistory(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, entries, pagination)
}

func parseTimeQuery(c *gin.Context, key string, bindErr *error) *time.Time {
	raw := c.Query(key)
	if raw == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		*bindErr = err
		return nil
	}
	return &t
}
