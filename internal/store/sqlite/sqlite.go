package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/nextlevelbuilder/goforge/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS projects (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL UNIQUE,
	path TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS token_usage (
	id TEXT PRIMARY KEY,
	provider TEXT NOT NULL,
	model TEXT NOT NULL,
	input_tokens INTEGER NOT NULL,
	output_tokens INTEGER NOT NULL,
	total_tokens INTEGER NOT NULL,
	estimated INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS messages (
	id TEXT PRIMARY KEY,
	project_id TEXT NOT NULL REFERENCES projects(id),
	role TEXT NOT NULL,
	content TEXT NOT NULL,
	provider TEXT,
	model TEXT,
	token_usage_id TEXT REFERENCES token_usage(id),
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_project ON messages(project_id, created_at);
`

// NewStores creates all stores backed by a local SQLite file. The schema is
// applied inline; SQLite is the standalone path and carries no external
// migration step.
func NewStores(path string) (*store.Stores, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// modernc sqlite serializes writes itself; one writer avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return store.NewStores(
		&ProjectStore{db: db},
		&MessageStore{db: db},
		&TokenUsageStore{db: db},
		db.Close,
	), nil
}

// ProjectStore implements store.ProjectStore backed by SQLite.
type ProjectStore struct {
	db *sql.DB
}

func (s *ProjectStore) GetProject(ctx context.Context, id string) (*store.Project, error) {
	var p store.Project
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, path, created_at FROM projects WHERE id = ?`, id,
	).Scan(&p.ID, &p.Name, &p.Path, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get project: %w", err)
	}
	return &p, nil
}

func (s *ProjectStore) GetOrCreateProject(ctx context.Context, name, path string) (*store.Project, error) {
	p := store.Project{
		ID:        uuid.NewString(),
		Name:      name,
		Path:      path,
		CreatedAt: time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO projects (id, name, path, created_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (name) DO NOTHING`,
		p.ID, p.Name, p.Path, p.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("create project: %w", err)
	}

	var out store.Project
	err = s.db.QueryRowContext(ctx,
		`SELECT id, name, path, created_at FROM projects WHERE name = ?`, name,
	).Scan(&out.ID, &out.Name, &out.Path, &out.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("reload project: %w", err)
	}
	return &out, nil
}

// MessageStore implements store.MessageStore backed by SQLite.
type MessageStore struct {
	db *sql.DB
}

func (s *MessageStore) CreateMessage(ctx context.Context, msg *store.Message) error {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	var usageID any
	if msg.TokenUsageID != "" {
		usageID = msg.TokenUsageID
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (id, project_id, role, content, provider, model, token_usage_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO NOTHING`,
		msg.ID, msg.ProjectID, msg.Role, msg.Content, msg.Provider, msg.Model, usageID, msg.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create message: %w", err)
	}
	return nil
}

func (s *MessageStore) ListProjectMessages(ctx context.Context, projectID string, orderAsc bool) ([]*store.Message, error) {
	order := "DESC"
	if orderAsc {
		order = "ASC"
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, project_id, role, content, COALESCE(provider, ''), COALESCE(model, ''),
		        COALESCE(token_usage_id, ''), created_at
		 FROM messages WHERE project_id = ? ORDER BY created_at `+order,
		projectID,
	)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var out []*store.Message
	for rows.Next() {
		var m store.Message
		if err := rows.Scan(&m.ID, &m.ProjectID, &m.Role, &m.Content, &m.Provider, &m.Model, &m.TokenUsageID, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}

// TokenUsageStore implements store.TokenUsageStore backed by SQLite.
type TokenUsageStore struct {
	db *sql.DB
}

func (s *TokenUsageStore) CreateTokenUsage(ctx context.Context, usage *store.TokenUsage) error {
	if usage.CreatedAt.IsZero() {
		usage.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO token_usage (id, provider, model, input_tokens, output_tokens, total_tokens, estimated, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO NOTHING`,
		usage.ID, usage.Provider, usage.Model, usage.InputTokens, usage.OutputTokens, usage.TotalTokens, usage.Estimated, usage.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create token usage: %w", err)
	}
	return nil
}
