package fetcher

import (
	"fmt"
	"os"
	"path/filepath"
)

// Workspace is a scoped temporary directory holding downloaded artifacts.
// Close removes it; callers defer Close right after NewWorkspace.
type Workspace struct {
	dir string
}

// NewWorkspace creates a fresh temporary directory.
func NewWorkspace(prefix string) (*Workspace, error) {
	dir, err := os.MkdirTemp("", prefix)
	if err != nil {
		return nil, fmt.Errorf("create temporary directory: %w", err)
	}

	return &Workspace{dir: dir}, nil
}

// Dir returns the directory path.
func (w *Workspace) Dir() string {
	return w.dir
}

// Path returns a file path inside the workspace.
func (w *Workspace) Path(name string) string {
	return filepath.Join(w.dir, filepath.Base(name))
}

// Close removes the workspace and everything in it.
func (w *Workspace) Close() error {
	if w == nil || w.dir == "" {
		return nil
	}

	return os.RemoveAll(w.dir)
}
