package loop

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Defaults for loop supervision. A loop completes when the system has been
// quiet for the idle window across enough consecutive monitor ticks;
// quiescence is the only success signal.
const (
	DefaultTimeout      = 20 * time.Minute
	DefaultMonitorTick  = 5 * time.Second
	DefaultIdleWindow   = 30 * time.Second
	DefaultIdleTicksMin = 6
)

var (
	ErrAlreadyActive = errors.New("loop: request id already active")
	ErrNotFound      = errors.New("loop: no active loop for request id")
)

// Activity is the slice of the coordinator the manager samples and drives.
type Activity interface {
	// ProcessUserRequest injects one user request. ctx is the loop context:
	// its cancellation must stop all further LLM calls for requestID.
	ProcessUserRequest(ctx context.Context, requestID, content string) error
	PendingMessagesTotal() int
	ActiveProcessingCount() int
}

// Manager owns the active-loop map and runs one monitor per loop.
type Manager struct {
	activity Activity
	log      *slog.Logger

	timeout      time.Duration
	monitorTick  time.Duration
	idleWindow   time.Duration
	idleTicksMin int

	mu      sync.RWMutex
	loops   map[string]*AgentLoop
	results chan Result

	wg sync.WaitGroup
}

// Option tunes manager timing, mainly for tests.
type Option func(*Manager)

func WithTimeout(d time.Duration) Option      { return func(m *Manager) { m.timeout = d } }
func WithMonitorTick(d time.Duration) Option  { return func(m *Manager) { m.monitorTick = d } }
func WithIdleWindow(d time.Duration) Option   { return func(m *Manager) { m.idleWindow = d } }
func WithIdleTicksMin(n int) Option           { return func(m *Manager) { m.idleTicksMin = n } }

func NewManager(activity Activity, log *slog.Logger, opts ...Option) *Manager {
	if log == nil {
		log = slog.Default()
	}
	m := &Manager{
		activity:     activity,
		log:          log,
		timeout:      DefaultTimeout,
		monitorTick:  DefaultMonitorTick,
		idleWindow:   DefaultIdleWindow,
		idleTicksMin: DefaultIdleTicksMin,
		loops:        make(map[string]*AgentLoop),
		results:      make(chan Result, 100),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// StartLoop registers a loop for requestID, injects the request, and starts
// the monitor. Fails when the request id already has an active loop.
func (m *Manager) StartLoop(ctx context.Context, requestID, userRequest string) (*AgentLoop, error) {
	loopCtx, cancel := context.WithTimeout(ctx, m.timeout)

	m.mu.Lock()
	if _, exists := m.loops[requestID]; exists {
		m.mu.Unlock()
		cancel()
		return nil, fmt.Errorf("%w: %s", ErrAlreadyActive, requestID)
	}
	l := newLoop(requestID, userRequest, cancel)
	m.loops[requestID] = l
	m.mu.Unlock()

	if err := m.activity.ProcessUserRequest(loopCtx, requestID, userRequest); err != nil {
		m.remove(requestID)
		cancel()
		return nil, fmt.Errorf("inject request: %w", err)
	}
	l.setStatus(StatusProcessing)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.monitor(loopCtx, l)
	}()

	m.log.Info("loop.started", "request_id", requestID, "loop_id", l.ID)
	return l, nil
}

// monitor samples coordinator activity on a cadence and terminates the loop
// on deadline, cancellation, or sustained quiescence, in that order of
// precedence.
func (m *Manager) monitor(ctx context.Context, l *AgentLoop) {
	ticker := time.NewTicker(m.monitorTick)
	defer ticker.Stop()
	defer l.cancel()

	lastActivity := time.Now()
	idleTicks := 0

	for {
		select {
		case <-ctx.Done():
			select {
			case <-l.cancelled:
				m.terminate(l, StatusFailed, "cancelled")
			default:
				if errors.Is(ctx.Err(), context.DeadlineExceeded) {
					m.terminate(l, StatusTimeout, "loop deadline exceeded")
				} else {
					m.terminate(l, StatusFailed, "cancelled")
				}
			}
			return

		case <-ticker.C:
			pending := m.activity.PendingMessagesTotal()
			active := m.activity.ActiveProcessingCount()

			if pending > 0 || active > 0 {
				lastActivity = time.Now()
				idleTicks = 0
				continue
			}
			idleTicks++
			if time.Since(lastActivity) >= m.idleWindow && idleTicks >= m.idleTicksMin {
				m.terminate(l, StatusCompleted, "")
				return
			}
		}
	}
}

func (m *Manager) terminate(l *AgentLoop, status, errMsg string) {
	res, delivered := l.finish(status, errMsg)
	if !delivered {
		return
	}
	m.remove(l.RequestID)

	select {
	case m.results <- res:
	default:
		m.log.Warn("loop.results_stream_full", "request_id", l.RequestID)
	}
	m.log.Info("loop.terminal",
		"request_id", l.RequestID,
		"status", status,
		"duration", res.Duration,
	)
}

// CancelLoop fires the loop's cancellation handle. The monitor observes it
// and records the failed/cancelled terminal state.
func (m *Manager) CancelLoop(requestID string) error {
	m.mu.RLock()
	l, ok := m.loops[requestID]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, requestID)
	}

	l.markCancelled()
	l.cancel()
	return nil
}

// GetLoop returns the active loop for a request id.
func (m *Manager) GetLoop(requestID string) (*AgentLoop, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	l, ok := m.loops[requestID]
	return l, ok
}

// ActiveLoops snapshots the active-loop set.
func (m *Manager) ActiveLoops() []*AgentLoop {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*AgentLoop, 0, len(m.loops))
	for _, l := range m.loops {
		out = append(out, l)
	}
	return out
}

// Results returns the stream of terminal results across all loops.
func (m *Manager) Results() <-chan Result { return m.results }

// Stop cancels every active loop and waits for the monitors to exit.
func (m *Manager) Stop() {
	m.mu.RLock()
	ids := make([]string, 0, len(m.loops))
	for id := range m.loops {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	for _, id := range ids {
		_ = m.CancelLoop(id)
	}
	m.wg.Wait()
}

func (m *Manager) remove(requestID string) {
	m.mu.Lock()
	delete(m.loops, requestID)
	m.mu.Unlock()
}
