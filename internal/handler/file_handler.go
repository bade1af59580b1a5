package handler

import (
	"fmt"
	"net/http"
	"path/filepath"

	"github.com/gin-gonic/gin"

	"github.com/netwatch-io/console-api/internal/service"
	appErrors "github.com/netwatch-io/console-api/pkg/errors"
	"github.com/netwatch-io/console-api/pkg/response"
)

// FileHandler exposes the read-only capture file browser.
type FileHandler struct {
	service *service.FileService
}

// NewFileHandler creates a new file handler.
func NewFileHandler(svc *service.FileService) *FileHandler {
	return &FileHandler{service: svc}
}

// List godoc
// @Summary Browse capture files
// @Description List entries under the mounted capture directory
// @Tags Files
// @Produce json
// @Param path query string false "Relative path"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /files [get]
func (h *FileHandler) List(c *gin.Context) {
	entries, err := h.service.List(c.Query("path"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, entries, nil)
}

// Download godoc
// @Summary Download capture file
// @Description Stream a file from the mounted capture directory
// @Tags Files
// @Produce octet-stream
// @Param path query string true "Relative path"
// @Success 200 {file} file
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /files/download [get]
func (h *FileHandler) Download(c *gin.Context) {
	rel := c.Query("path")
	if rel == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "path is required"))
		return
	}

	entry, err := h.service.Stat(rel)
	if err != nil {
		response.Error(c, err)
		return
	}
	if entry.IsDir {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "path is a directory"))
		return
	}

	file, err := h.service.Open(rel)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Close()

	c.DataFromReader(http.StatusOK, entry.Size, "application/octet-stream", file, map[string]string{
		"Content-Disposition": fmt.Sprintf("attachment; filename=%q", filepath.Base(entry.Path)),
	})
}
