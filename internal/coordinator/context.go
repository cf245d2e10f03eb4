package coordinator

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ProjectContext is the single shared mutable view of the project. All
// mutation goes through its methods; agents only ever see serialized
// snapshots. active and completed task sets stay disjoint.
type ProjectContext struct {
	mu sync.RWMutex

	name  string
	path  string
	phase string

	completedTasks []string
	activeTasks    []string
	files          map[string]string // relative path -> last known content
}

func NewProjectContext(name, path string) *ProjectContext {
	return &ProjectContext{
		name:  name,
		path:  path,
		files: make(map[string]string),
	}
}

func (pc *ProjectContext) Name() string { return pc.name }
func (pc *ProjectContext) Path() string { return pc.path }

func (pc *ProjectContext) Phase() string {
	pc.mu.RLock()
	defer pc.mu.RUnlock()
	return pc.phase
}

func (pc *ProjectContext) SetPhase(phase string) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	pc.phase = phase
}

// StartTask records a task as active. Tasks already completed or already
// active are left untouched.
func (pc *ProjectContext) StartTask(id string) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if contains(pc.activeTasks, id) || contains(pc.completedTasks, id) {
		return
	}
	pc.activeTasks = append(pc.activeTasks, id)
}

// CompleteTask moves a task from the active set to the completed set.
// Completing an unknown task records it as completed directly.
func (pc *ProjectContext) CompleteTask(id string) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	pc.activeTasks = remove(pc.activeTasks, id)
	if !contains(pc.completedTasks, id) {
		pc.completedTasks = append(pc.completedTasks, id)
	}
}

func (pc *ProjectContext) ActiveTasks() []string {
	pc.mu.RLock()
	defer pc.mu.RUnlock()
	return append([]string(nil), pc.activeTasks...)
}

func (pc *ProjectContext) CompletedTasks() []string {
	pc.mu.RLock()
	defer pc.mu.RUnlock()
	return append([]string(nil), pc.completedTasks...)
}

// UpsertFile records the last known content snapshot of a file, keyed by
// path relative to the project root.
func (pc *ProjectContext) UpsertFile(relPath, content string) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	pc.files[relPath] = content
}

func (pc *ProjectContext) RemoveFile(relPath string) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	delete(pc.files, relPath)
}

func (pc *ProjectContext) FileCount() int {
	pc.mu.RLock()
	defer pc.mu.RUnlock()
	return len(pc.files)
}

// Snapshot serializes the context for prompt assembly. File contents are
// listed by path only; agents read files through tools when they need the
// bytes.
func (pc *ProjectContext) Snapshot() string {
	pc.mu.RLock()
	defer pc.mu.RUnlock()

	var b strings.Builder
	fmt.Fprintf(&b, "project: %s (%s)\n", pc.name, pc.path)
	if pc.phase != "" {
		fmt.Fprintf(&b, "phase: %s\n", pc.phase)
	}
	if len(pc.activeTasks) > 0 {
		fmt.Fprintf(&b, "active tasks: %s\n", strings.Join(pc.activeTasks, ", "))
	}
	if len(pc.completedTasks) > 0 {
		fmt.Fprintf(&b, "completed tasks: %s\n", strings.Join(pc.completedTasks, ", "))
	}
	if len(pc.files) > 0 {
		paths := make([]string, 0, len(pc.files))
		for p := range pc.files {
			paths = append(paths, p)
		}
		sort.Strings(paths)
		fmt.Fprintf(&b, "known files:\n")
		for _, p := range paths {
			fmt.Fprintf(&b, "  - %s\n", p)
		}
	}
	return b.String()
}

func contains(s []string, v string) bool {
	for _, e := range s {
		if e == v {
			return true
		}
	}
	return false
}

func remove(s []string, v string) []string {
	out := s[:0]
	for _, e := range s {
		if e != v {
			out = append(out, e)
		}
	}
	return out
}
