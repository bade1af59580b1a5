package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Entry describes a single file or directory visible through the browser.
type Entry struct {
	Name    string    `json:"name"`
	Path    string    `json:"path"`
	IsDir   bool      `json:"is_dir"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
}

// Browser exposes read-only access to a mounted directory tree. Every
// requested path is resolved against the root and rejected when it would
// escape it.
type Browser struct {
	root string
}

// NewBrowser validates the root directory and returns a Browser.
func NewBrowser(root string) (*Browser, error) {
	if root == "" {
		return nil, fmt.Errorf("browser root required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve browser root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("stat browser root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("browser root %s is not a directory", abs)
	}
	return &Browser{root: abs}, nil
}

// List returns the direct children of the given relative path, directories first.
func (b *Browser) List(rel string) ([]Entry, error) {
	dir, err := b.resolve(rel)
	if err != nil {
		return nil, err
	}
	dirents, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read directory: %w", err)
	}
	entries := make([]Entry, 0, len(dirents))
	for _, d := range dirents {
		info, err := d.Info()
		if err != nil {
			continue
		}
		relPath, err := filepath.Rel(b.root, filepath.Join(dir, d.Name()))
		if err != nil {
			continue
		}
		entries = append(entries, Entry{
			Name:    d.Name(),
			Path:    filepath.ToSlash(relPath),
			IsDir:   d.IsDir(),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].IsDir != entries[j].IsDir {
			return entries[i].IsDir
		}
		return entries[i].Name < entries[j].Name
	})
	return entries, nil
}

// Stat returns metadata for a single entry.
func (b *Browser) Stat(rel string) (*Entry, error) {
	path, err := b.resolve(rel)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat entry: %w", err)
	}
	relPath, err := filepath.Rel(b.root, path)
	if err != nil {
		return nil, fmt.Errorf("relativize entry: %w", err)
	}
	return &Entry{
		Name:    info.Name(),
		Path:    filepath.ToSlash(relPath),
		IsDir:   info.IsDir(),
		Size:    info.Size(),
		ModTime: info.ModTime(),
	}, nil
}

// Open returns a read-only handle for a regular file inside the root.
func (b *Browser) Open(rel string) (*os.File, error) {
	path, err := b.resolve(rel)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat entry: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", rel)
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open entry: %w", err)
	}
	return file, nil
}

// ErrPathEscapesRoot is returned when a requested path leaves the root.
var ErrPathEscapesRoot = fmt.Errorf("path escapes browser root")

func (b *Browser) resolve(rel string) (string, error) {
	cleaned := filepath.Clean("/" + filepath.FromSlash(rel))
	full := filepath.Join(b.root, cleaned)
	if full != b.root && !strings.HasPrefix(full, b.root+string(filepath.Separator)) {
		return "", ErrPathEscapesRoot
	}
	return full, nil
}
