package tools

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestWriteThenReadFile(t *testing.T) {
	ws := t.TempDir()
	write := NewWriteFileTool(ws, true)
	read := NewReadFileTool(ws, true)

	res := write.Execute(context.Background(), map[string]any{
		"file_path": "nested/dir/hello.txt",
		"content":   "hello world",
	})
	if res.IsError {
		t.Fatalf("write: %s", res.Content)
	}

	res = read.Execute(context.Background(), map[string]any{
		"file_path": "nested/dir/hello.txt",
	})
	if res.IsError {
		t.Fatalf("read: %s", res.Content)
	}
	if res.Content != "hello world" {
		t.Errorf("content = %q", res.Content)
	}
	if res.Outcome != OutcomeSuccess {
		t.Errorf("outcome = %q", res.Outcome)
	}
}

func TestReadFileNotFound(t *testing.T) {
	read := NewReadFileTool(t.TempDir(), true)

	res := read.Execute(context.Background(), map[string]any{
		"file_path": "missing.txt",
	})
	if !res.IsError || res.Outcome != OutcomeNotFound {
		t.Errorf("result = error %v outcome %q, want not_found error", res.IsError, res.Outcome)
	}
}

func TestPathEscapeRejected(t *testing.T) {
	ws := t.TempDir()

	tests := []struct {
		name string
		path string
	}{
		{"dotdot traversal", "../outside.txt"},
		{"deep traversal", "a/../../../etc/passwd"},
		{"absolute outside", "/etc/passwd"},
	}

	read := NewReadFileTool(ws, true)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := read.Execute(context.Background(), map[string]any{"file_path": tt.path})
			if !res.IsError || res.Outcome != OutcomePermissionDenied {
				t.Errorf("result = error %v outcome %q, want permission_denied", res.IsError, res.Outcome)
			}
		})
	}
}

func TestSymlinkEscapeRejected(t *testing.T) {
	ws := t.TempDir()
	outside := t.TempDir()
	if err := os.WriteFile(filepath.Join(outside, "secret.txt"), []byte("secret"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(outside, filepath.Join(ws, "link")); err != nil {
		t.Skipf("symlink not supported: %v", err)
	}

	read := NewReadFileTool(ws, true)
	res := read.Execute(context.Background(), map[string]any{
		"file_path": "link/secret.txt",
	})
	if !res.IsError || res.Outcome != OutcomePermissionDenied {
		t.Errorf("result = error %v outcome %q, want permission_denied", res.IsError, res.Outcome)
	}
}

func TestUnrestrictedAllowsAbsolutePaths(t *testing.T) {
	ws := t.TempDir()
	other := t.TempDir()
	target := filepath.Join(other, "out.txt")

	write := NewWriteFileTool(ws, false)
	res := write.Execute(context.Background(), map[string]any{
		"file_path": target,
		"content":   "unrestricted",
	})
	if res.IsError {
		t.Fatalf("write: %s", res.Content)
	}
	data, err := os.ReadFile(target)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "unrestricted" {
		t.Errorf("content = %q", data)
	}
}

func TestListDirectory(t *testing.T) {
	ws := t.TempDir()
	if err := os.Mkdir(filepath.Join(ws, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(ws, "file.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	list := NewListDirectoryTool(ws, true)

	// Default path is the workspace root.
	res := list.Execute(context.Background(), map[string]any{})
	if res.IsError {
		t.Fatalf("list: %s", res.Content)
	}
	if !strings.Contains(res.Content, "sub/\n") {
		t.Errorf("directories should carry a trailing slash: %q", res.Content)
	}
	if !strings.Contains(res.Content, "file.txt\n") {
		t.Errorf("missing file entry: %q", res.Content)
	}

	res = list.Execute(context.Background(), map[string]any{"dir_path": "nope"})
	if !res.IsError || res.Outcome != OutcomeNotFound {
		t.Errorf("missing dir: error %v outcome %q", res.IsError, res.Outcome)
	}
}

func TestCreateDirectory(t *testing.T) {
	ws := t.TempDir()
	create := NewCreateDirectoryTool(ws, true)

	res := create.Execute(context.Background(), map[string]any{"dir_path": "a/b/c"})
	if res.IsError {
		t.Fatalf("create: %s", res.Content)
	}
	info, err := os.Stat(filepath.Join(ws, "a/b/c"))
	if err != nil || !info.IsDir() {
		t.Errorf("directory not created: %v", err)
	}

	// Creating an existing directory is fine (MkdirAll semantics).
	res = create.Execute(context.Background(), map[string]any{"dir_path": "a/b/c"})
	if res.IsError {
		t.Errorf("re-create: %s", res.Content)
	}
}

func TestRegisterBuiltins(t *testing.T) {
	r := NewRegistry(nil)
	if err := RegisterBuiltins(r, t.TempDir(), true); err != nil {
		t.Fatal(err)
	}

	want := []string{"read_file", "write_file", "list_directory", "create_directory", "execute_command"}
	defs := r.List()
	names := map[string]bool{}
	for _, d := range defs {
		names[d.Name] = true
	}
	for _, n := range want {
		if !names[n] {
			t.Errorf("builtin %s not registered", n)
		}
	}
	if len(defs) != len(want) {
		t.Errorf("registered %d tools, want %d", len(defs), len(want))
	}
}
