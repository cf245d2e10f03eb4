package store

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Recorder persists conversation traffic: one user message per client
// input, one assistant message plus token usage per completed turn.
// Persistence failures are logged, never surfaced; the conversation goes on
// without history. A nil Recorder is a no-op.
type Recorder struct {
	stores   *Stores
	provider string
	model    string
	log      *slog.Logger
}

func NewRecorder(stores *Stores, provider, model string, log *slog.Logger) *Recorder {
	if log == nil {
		log = slog.Default()
	}
	return &Recorder{stores: stores, provider: provider, model: model, log: log}
}

func (r *Recorder) RecordUserMessage(ctx context.Context, projectID, content string) {
	if r == nil || r.stores == nil {
		return
	}
	err := r.stores.Messages.CreateMessage(ctx, &Message{
		ID:        uuid.NewString(),
		ProjectID: projectID,
		Role:      "user",
		Content:   content,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		r.log.Warn("store.record_user_failed", "project_id", projectID, "error", err)
	}
}

// RecordAssistantMessage persists one completed turn. usage values arrive as
// the string-keyed payload the agent attached to its reply.
func (r *Recorder) RecordAssistantMessage(ctx context.Context, projectID, content string, usageData map[string]string) {
	if r == nil || r.stores == nil {
		return
	}

	usageID := ""
	if len(usageData) > 0 {
		usage := &TokenUsage{
			ID:           uuid.NewString(),
			Provider:     r.provider,
			Model:        r.model,
			InputTokens:  atoi(usageData["input_tokens"]),
			OutputTokens: atoi(usageData["output_tokens"]),
			TotalTokens:  atoi(usageData["total_tokens"]),
			Estimated:    usageData["tokens_estimated"] == "true",
			CreatedAt:    time.Now().UTC(),
		}
		if err := r.stores.TokenUsage.CreateTokenUsage(ctx, usage); err != nil {
			r.log.Warn("store.record_usage_failed", "project_id", projectID, "error", err)
		} else {
			usageID = usage.ID
		}
	}

	err := r.stores.Messages.CreateMessage(ctx, &Message{
		ID:           uuid.NewString(),
		ProjectID:    projectID,
		Role:         "assistant",
		Content:      content,
		Provider:     r.provider,
		Model:        r.model,
		TokenUsageID: usageID,
		CreatedAt:    time.Now().UTC(),
	})
	if err != nil {
		r.log.Warn("store.record_assistant_failed", "project_id", projectID, "error", err)
	}
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
