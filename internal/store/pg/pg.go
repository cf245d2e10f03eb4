package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/nextlevelbuilder/goforge/internal/store"
)

// OpenDB opens a Postgres connection pool via the pgx stdlib driver.
func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// NewStores creates all stores backed by Postgres.
func NewStores(dsn string) (*store.Stores, error) {
	db, err := OpenDB(dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	return store.NewStores(
		&ProjectStore{db: db},
		&MessageStore{db: db},
		&TokenUsageStore{db: db},
		db.Close,
	), nil
}

// ProjectStore implements store.ProjectStore backed by Postgres.
type ProjectStore struct {
	db *sql.DB
}

func (s *ProjectStore) GetProject(ctx context.Context, id string) (*store.Project, error) {
	var p store.Project
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, path, created_at FROM projects WHERE id = $1`, id,
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
	var p store.Project
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, path, created_at FROM projects WHERE name = $1`, name,
	).Scan(&p.ID, &p.Name, &p.Path, &p.CreatedAt)
	if err == nil {
		return &p, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("lookup project: %w", err)
	}

	p = store.Project{
		ID:        uuid.NewString(),
		Name:      name,
		Path:      path,
		CreatedAt: time.Now().UTC(),
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO projects (id, name, path, created_at) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (name) DO NOTHING`,
		p.ID, p.Name, p.Path, p.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("create project: %w", err)
	}
	// Re-read in case a concurrent insert won the conflict.
	var out store.Project
	err = s.db.QueryRowContext(ctx,
		`SELECT id, name, path, created_at FROM projects WHERE name = $1`, name,
	).Scan(&out.ID, &out.Name, &out.Path, &out.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("reload project: %w", err)
	}
	return &out, nil
}

// MessageStore implements store.MessageStore backed by Postgres.
type MessageStore struct {
	db *sql.DB
}

func (s *MessageStore) CreateMessage(ctx context.Context, msg *store.Message) error {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (id, project_id, role, content, provider, model, token_usage_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8)
		 ON CONFLICT (id) DO NOTHING`,
		msg.ID, msg.ProjectID, msg.Role, msg.Content, msg.Provider, msg.Model, msg.TokenUsageID, msg.CreatedAt,
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
		 FROM messages WHERE project_id = $1 ORDER BY created_at `+order,
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

// TokenUsageStore implements store.TokenUsageStore backed by Postgres.
type TokenUsageStore struct {
	db *sql.DB
}

func (s *TokenUsageStore) CreateTokenUsage(ctx context.Context, usage *store.TokenUsage) error {
	if usage.CreatedAt.IsZero() {
		usage.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO token_usage (id, provider, model, input_tokens, output_tokens, total_tokens, estimated, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (id) DO NOTHING`,
		usage.ID, usage.Provider, usage.Model, usage.InputTokens, usage.OutputTokens, usage.TotalTokens, usage.Estimated, usage.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create token usage: %w", err)
	}
	return nil
}
