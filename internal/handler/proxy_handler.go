package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/netwatch-io/console-api/internal/service"
	"github.com/netwatch-io/console-api/pkg/response"
)

// ProxyHandler exposes status widgets backed by upstream platform services.
type ProxyHandler struct {
	service *service.ProxyService
}

// NewProxyHandler creates a new proxy handler.
func NewProxyHandler(svc *service.ProxyService) *ProxyHandler {
	return &ProxyHandler{service: svc}
}

// Widget godoc
// @Summary Get status widget
// @Description Fetch one upstream status widget (swarm, elastic, arkime, netdata, registry)
// @Tags Status
// @Produce json
// @Param source path string true "Widget source"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /status/{source} [get]
func (h *ProxyHandler) Widget(c *gin.Context) {
	widget, err := h.service.Widget(c.Request.Context(), c.Param("source"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, widget, nil)
}

// RefreshCache godoc
// @Summary Refresh status widgets
// @Description Drop cached widget payloads so the next read fetches fresh upstream state
// @Tags Status
// @Produce json
// @Success 204
// @Failure 500 {object} response.Envelope
// @Security BearerAuth
// @Router /status/cache [delete]
func (h *ProxyHandler) RefreshCache(c *gin.Context) {
	if err := h.service.RefreshWidgets(c.Request.Context()); err != nil {
		response.Error(c, err)
		return
	}

	response.NoContent(c)
}

// Dashboard godoc
// @Summary Get status dashboard
// @Description Fetch all upstream status widgets concurrently
// @Tags Status
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /status [get]
func (h *ProxyHandler) Dashboard(c *gin.Context) {
	widgets := h.service.Dashboard(c.Request.Context())
	response.JSON(c, http.StatusOK, widgets, nil)
}
