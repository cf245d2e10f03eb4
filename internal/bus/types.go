package bus

import (
	"time"

	"github.com/google/uuid"
)

// Agent identifiers. AgentUser denotes the external caller: messages addressed
// to it leave the agent set and are handed to the streaming session layer.
const (
	AgentSupervisor  = "supervisor"
	AgentCodeEditing = "code_editing"
	AgentReact       = "react"
	AgentUser        = "user"
)

// Message status values.
const (
	StatusPending    = "pending"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// AgentMessage is the unit of inter-agent communication. Messages live only
// in memory; persistence of user/assistant messages is the store's concern.
type AgentMessage struct {
	ID        string            `json:"id"`
	ReplyTo   string            `json:"reply_to,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
	FromAgent string            `json:"from_agent"`
	ToAgent   string            `json:"to_agent"`
	TaskType  string            `json:"task_type"`
	Content   string            `json:"content"`
	Data      map[string]string `json:"data,omitempty"`
	Status    string            `json:"status"`
	CreatedAt time.Time         `json:"created_at"`
}

// NewMessage creates a pending message with a fresh id and current timestamp.
func NewMessage(from, to, taskType, content string) *AgentMessage {
	return &AgentMessage{
		ID:        uuid.NewString(),
		FromAgent: from,
		ToAgent:   to,
		TaskType:  taskType,
		Content:   content,
		Status:    StatusPending,
		CreatedAt: time.Now().UTC(),
	}
}

// Reply creates a response message addressed back to the sender of m. The
// request id is carried over so the whole message chain of one user request
// stays attributable to its session.
func (m *AgentMessage) Reply(from, content, status string) *AgentMessage {
	return &AgentMessage{
		ID:        uuid.NewString(),
		ReplyTo:   m.ID,
		RequestID: m.RequestID,
		FromAgent: from,
		ToAgent:   m.FromAgent,
		TaskType:  m.TaskType + "_response",
		Content:   content,
		Status:    status,
		CreatedAt: time.Now().UTC(),
	}
}

// Inbox receives messages routed to a single agent.
type Inbox interface {
	// Receive enqueues a message without blocking. Returns ErrSaturated when
	// the inbox is full.
	Receive(msg *AgentMessage) error
}

// UserListener receives messages addressed to AgentUser, in router
// delivery order.
type UserListener func(msg *AgentMessage)
