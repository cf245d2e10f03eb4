package tools

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"syscall"
)

// ReadFileTool reads file contents from the workspace.
type ReadFileTool struct {
	workspace string
	restrict  bool
}

func NewReadFileTool(workspace string, restrict bool) *ReadFileTool {
	return &ReadFileTool{workspace: workspace, restrict: restrict}
}

func (t *ReadFileTool) Name() string        { return "read_file" }
func (t *ReadFileTool) Description() string { return "Read the contents of a file" }
func (t *ReadFileTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"file_path": map[string]any{
				"type":        "string",
				"description": "Path to the file to read",
			},
		},
		"required": []string{"file_path"},
	}
}

func (t *ReadFileTool) Execute(ctx context.Context, args map[string]any) *Result {
	path, _ := args["file_path"].(string)
	resolved, err := resolvePath(path, t.workspace, t.restrict)
	if err != nil {
		return ErrorResult(OutcomePermissionDenied, err.Error())
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		return fsErrorResult("read %s", path, err)
	}
	return NewResult(string(data))
}

// WriteFileTool writes file contents, creating intermediate directories.
// Writes are not atomic but are observable only after completion.
type WriteFileTool struct {
	workspace string
	restrict  bool
}

func NewWriteFileTool(workspace string, restrict bool) *WriteFileTool {
	return &WriteFileTool{workspace: workspace, restrict: restrict}
}

func (t *WriteFileTool) Name() string        { return "write_file" }
func (t *WriteFileTool) Description() string { return "Write content to a file, creating parent directories as needed" }
func (t *WriteFileTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"file_path": map[string]any{
				"type":        "string",
				"description": "Path to the file to write",
			},
			"content": map[string]any{
				"type":        "string",
				"description": "Content to write",
			},
		},
		"required": []string{"file_path", "content"},
	}
}

func (t *WriteFileTool) Execute(ctx context.Context, args map[string]any) *Result {
	path, _ := args["file_path"].(string)
	content, _ := args["content"].(string)

	resolved, err := resolvePath(path, t.workspace, t.restrict)
	if err != nil {
		return ErrorResult(OutcomePermissionDenied, err.Error())
	}

	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return fsErrorResult("create parent directories for %s", path, err)
	}
	if err := os.WriteFile(resolved, []byte(content), 0o644); err != nil {
		return fsErrorResult("write %s", path, err)
	}
	return NewResult(fmt.Sprintf("wrote %d bytes to %s", len(content), path))
}

// ListDirectoryTool lists directory entries. dir_path defaults to the
// workspace root.
type ListDirectoryTool struct {
	workspace string
	restrict  bool
}

func NewListDirectoryTool(workspace string, restrict bool) *ListDirectoryTool {
	return &ListDirectoryTool{workspace: workspace, restrict: restrict}
}

func (t *ListDirectoryTool) Name() string        { return "list_directory" }
func (t *ListDirectoryTool) Description() string { return "List the entries of a directory" }
func (t *ListDirectoryTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"dir_path": map[string]any{
				"type":        "string",
				"description": "Path to the directory to list (defaults to the workspace root)",
			},
		},
	}
}

func (t *ListDirectoryTool) Execute(ctx context.Context, args map[string]any) *Result {
	path, _ := args["dir_path"].(string)
	if path == "" {
		path = "."
	}
	resolved, err := resolvePath(path, t.workspace, t.restrict)
	if err != nil {
		return ErrorResult(OutcomePermissionDenied, err.Error())
	}

	entries, err := os.ReadDir(resolved)
	if err != nil {
		return fsErrorResult("list %s", path, err)
	}

	var b strings.Builder
	for _, e := range entries {
		if e.IsDir() {
			b.WriteString(e.Name() + "/\n")
		} else {
			b.WriteString(e.Name() + "\n")
		}
	}
	return NewResult(b.String())
}

// CreateDirectoryTool creates a directory, including parents.
type CreateDirectoryTool struct {
	workspace string
	restrict  bool
}

func NewCreateDirectoryTool(workspace string, restrict bool) *CreateDirectoryTool {
	return &CreateDirectoryTool{workspace: workspace, restrict: restrict}
}

func (t *CreateDirectoryTool) Name() string        { return "create_directory" }
func (t *CreateDirectoryTool) Description() string { return "Create a directory, including intermediate directories" }
func (t *CreateDirectoryTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"dir_path": map[string]any{
				"type":        "string",
				"description": "Path to the directory to create",
			},
		},
		"required": []string{"dir_path"},
	}
}

func (t *CreateDirectoryTool) Execute(ctx context.Context, args map[string]any) *Result {
	path, _ := args["dir_path"].(string)
	resolved, err := resolvePath(path, t.workspace, t.restrict)
	if err != nil {
		return ErrorResult(OutcomePermissionDenied, err.Error())
	}

	if err := os.MkdirAll(resolved, 0o755); err != nil {
		return fsErrorResult("create %s", path, err)
	}
	return NewResult(fmt.Sprintf("created directory %s", path))
}

// resolvePath resolves a path relative to the workspace. When restrict is
// true, symlinks are resolved to canonical form and paths escaping the
// workspace boundary are rejected.
func resolvePath(path, workspace string, restrict bool) (string, error) {
	var resolved string
	if filepath.IsAbs(path) {
		resolved = filepath.Clean(path)
	} else {
		resolved = filepath.Clean(filepath.Join(workspace, path))
	}

	if !restrict {
		return resolved, nil
	}

	absWorkspace, _ := filepath.Abs(workspace)
	wsReal, err := filepath.EvalSymlinks(absWorkspace)
	if err != nil {
		wsReal = absWorkspace
	}

	absResolved, _ := filepath.Abs(resolved)
	real, err := filepath.EvalSymlinks(absResolved)
	if err != nil {
		if os.IsNotExist(err) {
			// Non-existent target: canonicalize the deepest existing
			// ancestor and re-append the remainder, so symlinked parents
			// cannot smuggle the path outside the workspace.
			real, err = resolveThroughExistingAncestors(absResolved)
			if err != nil {
				return "", fmt.Errorf("access denied: cannot resolve path")
			}
		} else {
			slog.Warn("security.path_resolve_failed", "path", redactPath(path), "error", err)
			return "", fmt.Errorf("access denied: cannot resolve path")
		}
	}

	if !isPathInside(real, wsReal) {
		slog.Warn("security.path_escape", "path", redactPath(path), "workspace", wsReal)
		return "", fmt.Errorf("access denied: path outside workspace")
	}
	return real, nil
}

func isPathInside(child, parent string) bool {
	if child == parent {
		return true
	}
	return strings.HasPrefix(child, parent+string(filepath.Separator))
}

// resolveThroughExistingAncestors canonicalizes the deepest existing ancestor
// of target and rebuilds the path from there.
func resolveThroughExistingAncestors(target string) (string, error) {
	if real, err := filepath.EvalSymlinks(target); err == nil {
		return real, nil
	}

	current := target
	var tail []string
	for {
		parent := filepath.Dir(current)
		if parent == current {
			break
		}
		tail = append([]string{filepath.Base(current)}, tail...)
		current = parent

		if realParent, err := filepath.EvalSymlinks(current); err == nil {
			result := realParent
			for _, component := range tail {
				result = filepath.Join(result, component)
			}
			return result, nil
		}
	}
	return filepath.Clean(target), nil
}

// redactPath keeps only the final path element for log records.
func redactPath(path string) string {
	return filepath.Base(filepath.Clean(path))
}

// fsErrorResult categorizes a filesystem error into an outcome.
func fsErrorResult(format, path string, err error) *Result {
	msg := fmt.Sprintf(format+": %v", path, err)
	return ErrorResult(classifyFsError(err), msg).WithError(err)
}

func classifyFsError(err error) string {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return OutcomeNotFound
	case errors.Is(err, fs.ErrPermission):
		return OutcomePermissionDenied
	case errors.Is(err, fs.ErrExist):
		return OutcomeAlreadyExists
	case errors.Is(err, syscall.ENOSPC) || errors.Is(err, syscall.EDQUOT):
		return OutcomeDisk
	case errors.Is(err, context.DeadlineExceeded):
		return OutcomeTimeout
	default:
		return OutcomeUnknown
	}
}
