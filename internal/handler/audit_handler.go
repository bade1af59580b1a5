package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/netwatch-io/console-api/internal/dto"
	"github.com/netwatch-io/console-api/internal/service"
	appErrors "github.com/netwatch-io/console-api/pkg/errors"
	"github.com/netwatch-io/console-api/pkg/response"
)

// AuditHandler manages audit checklist definitions.
type AuditHandler struct {
	service *service.AuditService
}

// NewAuditHandler creates a new audit handler.
func NewAuditHandler(svc *service.AuditService) *AuditHandler {
	return &AuditHandler{service: svc}
}

// List godoc
// @Summary List audit definitions
// @Description List all checklist definitions, newest first
// @Tags Audits
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /audits [get]
func (h *AuditHandler) List(c *gin.Context) {
	audits, err := h.service.List(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, audits, nil)
}

// Get godoc
// @Summary Get audit definition
// @Description Get a definition with its groups and items
// @Tags Audits
// @Produce json
// @Param id path string true "Audit ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /audits/{id} [get]
func (h *AuditHandler) Get(c *gin.Context) {
	audit, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, audit, nil)
}

// GetActive godoc
// @Summary Get active audit definition
// @Description Get the single active definition with full structure
// @Tags Audits
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /audits/active [get]
func (h *AuditHandler) GetActive(c *gin.Context) {
	audit, err := h.service.GetActive(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, audit, nil)
}

// Create godoc
// @Summary Create audit definition
// @Description Create a new definition cloned from the latest version
// @Tags Audits
// @Accept json
// @Produce json
// @Param payload body dto.UpdateAuditRequest false "Version comment"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /audits [post]
func (h *AuditHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthenticated)
		return
	}

	var payload struct {
		Comment string `json:"comment"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&payload); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
			return
		}
	}

	audit, err := h.service.Create(c.Request.Context(), payload.Comment, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, audit)
}

// UpdateComment godoc
// @Summary Update audit comment
// @Description Update the version comment on a definition
// @Tags Audits
// @Accept json
// @Produce json
// @Param id path string true "Audit ID"
// @Param payload body dto.UpdateAuditRequest true "Comment payload"
// @Success 204 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /audits/{id} [put]
func (h *AuditHandler) UpdateComment(c *gin.Context) {
	var req dto.UpdateAuditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	if err := h.service.UpdateComment(c.Request.Context(), c.Param("id"), req); err != nil {
		response.Error(c, err)
		return
	}

	response.NoContent(c)
}

// Activate godoc
// @Summary Activate audit definition
// @Description Make this definition the single active one
// @Tags Audits
// @Produce json
// @Param id path string true "Audit ID"
// @Success 204 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /audits/{id}/activate [post]
func (h *AuditHandler) Activate(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthenticated)
		return
	}

	if err := h.service.Activate(c.Request.Context(), c.Param("id"), claims.UserID, requestMeta(c)); err != nil {
		response.Error(c, err)
		return
	}

	response.NoContent(c)
}

// Delete godoc
// @Summary Delete audit definition
// @Description Delete an inactive definition. The active one cannot be removed.
// @Tags Audits
// @Produce json
// @Param id path string true "Audit ID"
// @Success 204 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /audits/{id} [delete]
func (h *AuditHandler) Delete(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthenticated)
		return
	}

	if err := h.service.Delete(c.Request.Context(), c.Param("id"), claims.UserID, requestMeta(c)); err != nil {
		response.Error(c, err)
		return
	}

	response.NoContent(c)
}

// CreateGroup godoc
// @Summary Add checklist group
// @Description Append a group to a definition
// @Tags Audits
// @Accept json
// @Produce json
// @Param id path string true "Audit ID"
// @Param payload body dto.CreateGroupRequest true "Group payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /audits/{id}/groups [post]
func (h *AuditHandler) CreateGroup(c *gin.Context) {
	var req dto.CreateGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	group, err := h.service.CreateGroup(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, group)
}

// UpdateGroup godoc
// @Summary Update checklist group
// @Description Rename, recolor, or reorder a group
// @Tags Audits
// @Accept json
// @Produce json
// @Param groupId path string true "Group ID"
// @Param payload body dto.UpdateGroupRequest true "Group payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /audits/groups/{groupId} [put]
func (h *AuditHandler) UpdateGroup(c *gin.Context) {
	var req dto.UpdateGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	group, err := h.service.UpdateGroup(c.Request.Context(), c.Param("groupId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, group, nil)
}

// DeleteGroup godoc
// @Summary Delete checklist group
// @Description Remove a group and its items from a definition
// @Tags Audits
// @Produce json
// @Param groupId path string true "Group ID"
// @Success 204 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /audits/groups/{groupId} [delete]
func (h *AuditHandler) DeleteGroup(c *gin.Context) {
	if err := h.service.DeleteGroup(c.Request.Context(), c.Param("groupId")); err != nil {
		response.Error(c, err)
		return
	}

	response.NoContent(c)
}

// CreateItem godoc
// @Summary Add checklist item
// @Description Append an item to a group
// @Tags Audits
// @Accept json
// @Produce json
// @Param groupId path string true "Group ID"
// @Param payload body dto.CreateItemRequest true "Item payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /audits/groups/{groupId}/items [post]
func (h *AuditHandler) CreateItem(c *gin.Context) {
	var req dto.CreateItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	item, err := h.service.CreateItem(c.Request.Context(), c.Param("groupId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, item)
}

// UpdateItem godoc
// @Summary Update checklist item
// @Description Rename or reorder an item
// @Tags Audits
// @Accept json
// @Produce json
// @Param itemId path string true "Item ID"
// @Param payload body dto.UpdateItemRequest true "Item payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /audits/items/{itemId} [put]
func (h *AuditHandler) UpdateItem(c *gin.Context) {
	var req dto.UpdateItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	item, err := h.service.UpdateItem(c.Request.Context(), c.Param("itemId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, item, nil)
}

// DeleteItem godoc
// @Summary Delete checklist item
// @Description Remove an item from its group
// @Tags Audits
// @Produce json
// @Param itemId path string true "Item ID"
// @Success 204 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /audits/items/{itemId} [delete]
func (h *AuditHandler) DeleteItem(c *gin.Context) {
	if err := h.service.DeleteItem(c.Request.Context(), c.Param("itemId")); err != nil {
		response.Error(c, err)
		return
	}

	response.NoContent(c)
}
