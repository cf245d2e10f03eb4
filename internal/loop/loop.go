package loop

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Loop status values. A loop reaches exactly one terminal state.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
	StatusTimeout    = "timeout"
)

// AgentLoop tracks one user request through the agent system from injection
// to quiescence.
type AgentLoop struct {
	ID          string
	RequestID   string
	UserRequest string

	mu        sync.Mutex
	status    string
	startedAt time.Time
	endedAt   time.Time

	cancel     context.CancelFunc
	cancelled  chan struct{} // closed by CancelLoop, distinguishes cancel from deadline
	cancelOnce sync.Once
	once       sync.Once
	result     chan Result
}

// Result is delivered exactly once when a loop reaches a terminal state.
type Result struct {
	RequestID   string        `json:"request_id"`
	Status      string        `json:"status"`
	Duration    time.Duration `json:"duration"`
	CompletedAt time.Time     `json:"completed_at"`
	Error       string        `json:"error,omitempty"`
}

func newLoop(requestID, userRequest string, cancel context.CancelFunc) *AgentLoop {
	return &AgentLoop{
		ID:          uuid.NewString(),
		RequestID:   requestID,
		UserRequest: userRequest,
		status:      StatusPending,
		startedAt:   time.Now(),
		cancel:      cancel,
		cancelled:   make(chan struct{}),
		result:      make(chan Result, 1),
	}
}

func (l *AgentLoop) Status() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.status
}

func (l *AgentLoop) StartedAt() time.Time { return l.startedAt }

// Duration reports elapsed wall clock, frozen once terminal.
func (l *AgentLoop) Duration() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.endedAt.IsZero() {
		return l.endedAt.Sub(l.startedAt)
	}
	return time.Since(l.startedAt)
}

// Result returns the single-consumer terminal result channel.
func (l *AgentLoop) Result() <-chan Result { return l.result }

// markCancelled flags explicit cancellation ahead of firing the handle, so
// the monitor can tell a cancel from the deadline. Safe to call repeatedly.
func (l *AgentLoop) markCancelled() {
	l.cancelOnce.Do(func() { close(l.cancelled) })
}

func (l *AgentLoop) setStatus(status string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.status = status
}

// finish transitions to a terminal state and delivers the result, at most
// once no matter how many termination paths race.
func (l *AgentLoop) finish(status, errMsg string) (Result, bool) {
	var res Result
	delivered := false
	l.once.Do(func() {
		l.mu.Lock()
		l.status = status
		l.endedAt = time.Now()
		duration := l.endedAt.Sub(l.startedAt)
		l.mu.Unlock()

		res = Result{
			RequestID:   l.RequestID,
			Status:      status,
			Duration:    duration,
			CompletedAt: l.endedAt.UTC(),
			Error:       errMsg,
		}
		l.result <- res
		delivered = true
	})
	return res, delivered
}
