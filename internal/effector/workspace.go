package effector

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/vinayprograms/taskforce/internal/protocol"
)

// TodoFile is the progress file UPDATE_TODO and the planner write.
const TodoFile = "todo.md"

// Workspace is the file store rooted at a host directory. Paths under
// /workspace map into the root; nothing may escape it.
type Workspace struct {
	root string
}

// NewWorkspace creates the root directory if needed.
func NewWorkspace(root string) (*Workspace, error) {
	if root == "" {
		return nil, fmt.Errorf("workspace root is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve workspace: %w", err)
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}
	return &Workspace{root: abs}, nil
}

// Root returns the host directory.
func (w *Workspace) Root() string { return w.root }

// Resolve maps a model-facing path to a host path inside the root.
// Absolute paths outside /workspace are rejected.
func (w *Workspace) Resolve(path string) (string, error) {
	p := filepath.ToSlash(strings.TrimSpace(path))
	if p == "" {
		return "", fmt.Errorf("path is empty")
	}
	switch {
	case p == protocol.DefaultWorkspace:
		p = "."
	case strings.HasPrefix(p, protocol.DefaultWorkspace+"/"):
		p = strings.TrimPrefix(p, protocol.DefaultWorkspace+"/")
	case strings.HasPrefix(p, "/"):
		return "", fmt.Errorf("path %s is outside %s", path, protocol.DefaultWorkspace)
	}
	resolved := filepath.Join(w.root, filepath.FromSlash(p))
	rel, err := filepath.Rel(w.root, resolved)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %s escapes the workspace", path)
	}
	return resolved, nil
}

// WriteFile writes content at a workspace path, creating parents.
func (w *Workspace) WriteFile(path, content string) (string, error) {
	resolved, err := w.Resolve(path)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(resolved), 0755); err != nil {
		return "", err
	}
	if err := os.WriteFile(resolved, []byte(content), 0644); err != nil {
		return "", err
	}
	return resolved, nil
}

// CreateFile handles CREATE_FILE.
func (w *Workspace) CreateFile(ctx context.Context, a protocol.Action) Result {
	path := a.Field("PATH")
	if _, err := w.WriteFile(path, a.Field("CONTENT")); err != nil {
		return Fail("write %s: %v", path, err)
	}
	return OK(path)
}

// ReadFile handles READ_FILE.
func (w *Workspace) ReadFile(ctx context.Context, a protocol.Action) Result {
	path := a.Field("PATH")
	resolved, err := w.Resolve(path)
	if err != nil {
		return Fail("%v", err)
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		if os.IsNotExist(err) {
			return Fail("file not found: %s", path)
		}
		return Fail("read %s: %v", path, err)
	}
	return OK(string(data))
}

// Entry is one LIST_FILES item.
type Entry struct {
	Name string `json:"name"`
	Type string `json:"type"`
	Size int64  `json:"size"`
}

// ListFiles handles LIST_FILES. The listing is a JSON array of entries.
func (w *Workspace) ListFiles(ctx context.Context, a protocol.Action) Result {
	path := a.Field("PATH")
	if path == "" {
		path = protocol.DefaultWorkspace
	}
	resolved, err := w.Resolve(path)
	if err != nil {
		return Fail("%v", err)
	}
	entries, err := os.ReadDir(resolved)
	if err != nil {
		return Fail("list %s: %v", path, err)
	}

	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			continue
		}
		typ := "file"
		if e.IsDir() {
			typ = "dir"
		} else if info.Mode()&os.ModeSymlink != 0 {
			typ = "symlink"
		}
		out = append(out, Entry{Name: e.Name(), Type: typ, Size: info.Size()})
	}
	data, err := json.Marshal(out)
	if err != nil {
		return Fail("encode listing: %v", err)
	}
	return OK(string(data))
}

// UpdateTodo handles UPDATE_TODO by replacing todo.md.
func (w *Workspace) UpdateTodo(ctx context.Context, a protocol.Action) Result {
	if _, err := w.WriteFile(TodoFile, a.Field("CONTENT")); err != nil {
		return Fail("update %s: %v", TodoFile, err)
	}
	return OK(TodoFile)
}
