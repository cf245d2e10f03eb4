package coordinator

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("condition not reached")
}

func TestWatcherMirrorsFileChanges(t *testing.T) {
	root := t.TempDir()
	pc := NewProjectContext("demo", root)

	w, err := NewWatcher(pc, nil)
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(root, "notes.txt")
	if err := os.WriteFile(path, []byte("remember the milk"), 0o644); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return pc.FileCount() == 1 })

	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return pc.FileCount() == 0 })
}

func TestWatcherIgnoresHiddenFiles(t *testing.T) {
	root := t.TempDir()
	pc := NewProjectContext("demo", root)

	w, err := NewWatcher(pc, nil)
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}

	if err := os.WriteFile(filepath.Join(root, ".secret"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "visible.txt"), []byte("y"), 0o644); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return pc.FileCount() == 1 })

	snap := pc.Snapshot()
	if !strings.Contains(snap, "visible.txt") || strings.Contains(snap, ".secret") {
		t.Errorf("snapshot = %q, want visible.txt only", snap)
	}
}
