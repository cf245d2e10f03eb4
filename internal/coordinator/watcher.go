package coordinator

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// snapshot cap keeps the in-memory context bounded; larger files are
// tracked by path only.
const maxSnapshotBytes = 64 * 1024

// Watcher mirrors filesystem changes under the project root into the
// ProjectContext file snapshots, so agent prompts see files modified
// outside the tool surface.
type Watcher struct {
	watcher    *fsnotify.Watcher
	root       string
	projectCtx *ProjectContext
	log        *slog.Logger
}

func NewWatcher(projectCtx *ProjectContext, log *slog.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}
	return &Watcher{
		watcher:    fw,
		root:       projectCtx.Path(),
		projectCtx: projectCtx,
		log:        log,
	}, nil
}

// Start watches the project tree until ctx is cancelled. Directories
// created later are added to the watch as their create events arrive.
func (w *Watcher) Start(ctx context.Context) error {
	err := filepath.WalkDir(w.root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if hidden(d.Name()) && path != w.root {
				return filepath.SkipDir
			}
			return w.watcher.Add(path)
		}
		return nil
	})
	if err != nil {
		return err
	}

	go w.run(ctx)
	w.log.Info("watcher.started", "root", w.root)
	return nil
}

func (w *Watcher) run(ctx context.Context) {
	defer w.watcher.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handle(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Warn("watcher.error", "error", err)
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	rel, err := filepath.Rel(w.root, event.Name)
	if err != nil || strings.HasPrefix(rel, "..") {
		return
	}
	if hidden(filepath.Base(event.Name)) {
		return
	}

	switch {
	case event.Op.Has(fsnotify.Remove) || event.Op.Has(fsnotify.Rename):
		w.projectCtx.RemoveFile(rel)

	case event.Op.Has(fsnotify.Create) || event.Op.Has(fsnotify.Write):
		info, err := os.Stat(event.Name)
		if err != nil {
			return
		}
		if info.IsDir() {
			if event.Op.Has(fsnotify.Create) {
				_ = w.watcher.Add(event.Name)
			}
			return
		}
		if info.Size() > maxSnapshotBytes {
			w.projectCtx.UpsertFile(rel, "")
			return
		}
		data, err := os.ReadFile(event.Name)
		if err != nil {
			return
		}
		w.projectCtx.UpsertFile(rel, string(data))
	}
}

func hidden(name string) bool {
	return strings.HasPrefix(name, ".") && name != "." && name != ".."
}
