package service

import (
	"errors"
	"os"

	"go.uber.org/zap"

	appErrors "github.com/netwatch-io/console-api/pkg/errors"
	"github.com/netwatch-io/console-api/pkg/storage"
)

// FileService exposes read-only browsing of the mounted capture directory.
type FileService struct {
	browser *storage.Browser
	logger  *zap.Logger
}

// NewFileService constructs a FileService. A nil browser disables the
// feature; every call then reports NOT_FOUND.
func NewFileService(browser *storage.Browser, logger *zap.Logger) *FileService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileService{browser: browser, logger: logger}
}

// Enabled reports whether a capture directory is mounted.
func (s *FileService) Enabled() bool {
	return s.browser != nil
}

// List returns the entries of a directory relative to the capture root.
func (s *FileService) List(rel string) ([]storage.Entry, error) {
	if s.browser == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "file browsing is not configured")
	}
	entries, err := s.browser.List(rel)
	if err != nil {
		return nil, s.translate(rel, err)
	}
	return entries, nil
}

// Stat returns metadata for a single entry.
func (s *FileService) Stat(rel string) (*storage.Entry, error) {
	if s.browser == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "file browsing is not configured")
	}
	entry, err := s.browser.Stat(rel)
	if err != nil {
		return nil, s.translate(rel, err)
	}
	return entry, nil
}

// Open returns a read-only handle for downloading a file.
func (s *FileService) Open(rel string) (*os.File, error) {
	if s.browser == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "file browsing is not configured")
	}
	file, err := s.browser.Open(rel)
	if err != nil {
		return nil, s.translate(rel, err)
	}
	return file, nil
}

func (s *FileService) translate(rel string, err error) error {
	if errors.Is(err, storage.ErrPathEscapesRoot) {
		return appErrors.Clone(appErrors.ErrForbidden, "path escapes the capture root")
	}
	if errors.Is(err, os.ErrNotExist) {
		return appErrors.Clone(appErrors.ErrNotFound, "no such file or directory")
	}
	s.logger.Warn("file access failed", zap.String("path", rel), zap.Error(err))
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to access file")
}
