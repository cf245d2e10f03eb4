package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a looked-up record does not exist.
var ErrNotFound = errors.New("store: not found")

// Project is a persisted project the session layer binds to.
type Project struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Path      string    `json:"path"`
	CreatedAt time.Time `json:"created_at"`
}

// Message is one persisted conversation message. The core supplies the id,
// which makes writes idempotent.
type Message struct {
	ID           string    `json:"id"`
	ProjectID    string    `json:"project_id"`
	Role         string    `json:"role"` // user | assistant
	Content      string    `json:"content"`
	Provider     string    `json:"provider,omitempty"`
	Model        string    `json:"model,omitempty"`
	TokenUsageID string    `json:"token_usage_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// TokenUsage records the token accounting of one generation.
type TokenUsage struct {
	ID           string    `json:"id"`
	Provider     string    `json:"provider"`
	Model        string    `json:"model"`
	InputTokens  int       `json:"input_tokens"`
	OutputTokens int       `json:"output_tokens"`
	TotalTokens  int       `json:"total_tokens"`
	Estimated    bool      `json:"estimated"`
	CreatedAt    time.Time `json:"created_at"`
}

// ProjectStore resolves and creates projects.
type ProjectStore interface {
	GetProject(ctx context.Context, id string) (*Project, error)
	// GetOrCreateProject resolves a project by name, creating it on first use.
	GetOrCreateProject(ctx context.Context, name, path string) (*Project, error)
}

// MessageStore persists conversation messages. CreateMessage is idempotent
// with respect to the message id.
type MessageStore interface {
	CreateMessage(ctx context.Context, msg *Message) error
	ListProjectMessages(ctx context.Context, projectID string, orderAsc bool) ([]*Message, error)
}

// TokenUsageStore persists token accounting. CreateTokenUsage is idempotent
// with respect to the usage id.
type TokenUsageStore interface {
	CreateTokenUsage(ctx context.Context, usage *TokenUsage) error
}

// Stores bundles the storage backends. A nil Stores disables persistence.
type Stores struct {
	Projects   ProjectStore
	Messages   MessageStore
	TokenUsage TokenUsageStore

	closer func() error
}

// NewStores bundles implementations with an optional close hook.
func NewStores(p ProjectStore, m MessageStore, t TokenUsageStore, closer func() error) *Stores {
	return &Stores{Projects: p, Messages: m, TokenUsage: t, closer: closer}
}

func (s *Stores) Close() error {
	if s == nil || s.closer == nil {
		return nil
	}
	return s.closer()
}
