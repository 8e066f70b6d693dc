package backend

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// Workspace is a job-scoped temporary directory.
type Workspace struct {
	Path string
	Kind MediaKind

	once sync.Once
}

// AcquireWorkspace creates <root>/podfetch-<kind>-<uuid>. An empty root
// means the system temp directory.
func AcquireWorkspace(root string, kind MediaKind) (*Workspace, error) {
	if root == "" {
		root = os.TempDir()
	}
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, newJobError(KindIO, "workspace", "temp root is not writable", err)
	}

	path := filepath.Join(root, fmt.Sprintf("podfetch-%s-%s", kind, uuid.New().String()))
	if err := os.Mkdir(path, 0700); err != nil {
		return nil, newJobError(KindIO, "workspace", "create workspace", err)
	}

	Logger.Debug("workspace acquired", "workspace", path)
	return &Workspace{Path: path, Kind: kind}, nil
}

// Release removes the workspace. Removal errors are logged, never returned,
// and only the first call does anything.
func (w *Workspace) Release() {
	if w == nil {
		return
	}
	w.once.Do(func() {
		if err := os.RemoveAll(w.Path); err != nil {
			Logger.Warn("failed to remove workspace", "workspace", w.Path, "error", err)
			return
		}
		Logger.Debug("workspace released", "workspace", w.Path)
	})
}

// File returns the path of name inside the workspace.
func (w *Workspace) File(name string) string {
	return filepath.Join(w.Path, name)
}

// List returns the sorted file names currently in the workspace.
func (w *Workspace) List() []string {
	entries, err := os.ReadDir(w.Path)
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names
}

// WithWorkspace runs fn with a fresh workspace and releases it on every
// exit path, panics included.
func WithWorkspace(root string, kind MediaKind, fn func(ws *Workspace) error) error {
	ws, err := AcquireWorkspace(root, kind)
	if err != nil {
		return err
	}
	defer ws.Release()
	return fn(ws)
}
