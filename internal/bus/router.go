package bus

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// ErrSaturated is returned when the router queue or a destination inbox
// cannot accept another message without blocking.
var ErrSaturated = errors.New("bus: queue saturated")

const defaultQueueSize = 1000

// Router is the process-wide message queue. A single dispatcher goroutine
// drains the queue and delivers to the target agent's inbox, which gives
// per-destination FIFO ordering for free. Messages addressed to AgentUser
// are handed to the registered user listener instead.
type Router struct {
	queue chan *AgentMessage

	mu       sync.RWMutex
	inboxes  map[string]Inbox
	listener UserListener
}

// NewRouter creates a router with the given queue capacity (0 = default 1000).
func NewRouter(capacity int) *Router {
	if capacity <= 0 {
		capacity = defaultQueueSize
	}
	return &Router{
		queue:   make(chan *AgentMessage, capacity),
		inboxes: make(map[string]Inbox),
	}
}

// Register binds an agent id to its inbox. Later registrations replace
// earlier ones; routing consults the map at delivery time.
func (r *Router) Register(agentID string, inbox Inbox) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inboxes[agentID] = inbox
}

// SetUserListener installs the sink for messages addressed to AgentUser.
func (r *Router) SetUserListener(l UserListener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listener = l
}

// Submit enqueues a message without blocking. A full queue returns
// ErrSaturated; the message is not retried by the router.
func (r *Router) Submit(msg *AgentMessage) error {
	select {
	case r.queue <- msg:
		return nil
	default:
		slog.Warn("router.saturated", "from", msg.FromAgent, "to", msg.ToAgent, "task", msg.TaskType)
		return ErrSaturated
	}
}

// Depth returns the number of messages waiting in the router queue.
func (r *Router) Depth() int { return len(r.queue) }

// Run dispatches messages until ctx is cancelled. Undeliverable messages
// (unknown target, full inbox) are dropped with a warning so one slow agent
// cannot stall the others; senders detect the drop through loop timeout.
func (r *Router) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-r.queue:
			r.dispatch(msg)
		}
	}
}

func (r *Router) dispatch(msg *AgentMessage) {
	if msg.ToAgent == AgentUser {
		r.mu.RLock()
		listener := r.listener
		r.mu.RUnlock()
		if listener != nil {
			listener(msg)
		}
		return
	}

	r.mu.RLock()
	inbox, ok := r.inboxes[msg.ToAgent]
	r.mu.RUnlock()

	if !ok {
		slog.Warn("router.unknown_target", "to", msg.ToAgent, "from", msg.FromAgent, "task", msg.TaskType)
		return
	}

	if err := inbox.Receive(msg); err != nil {
		slog.Warn("router.dropped", "to", msg.ToAgent, "from", msg.FromAgent, "task", msg.TaskType, "error", err)
	}
}
