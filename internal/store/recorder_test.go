package store

import (
	"context"
	"testing"
)

type memMessageStore struct {
	messages []*Message
	failWith error
}

func (m *memMessageStore) CreateMessage(ctx context.Context, msg *Message) error {
	if m.failWith != nil {
		return m.failWith
	}
	m.messages = append(m.messages, msg)
	return nil
}

func (m *memMessageStore) ListProjectMessages(ctx context.Context, projectID string, orderAsc bool) ([]*Message, error) {
	return m.messages, nil
}

type memUsageStore struct {
	usages   []*TokenUsage
	failWith error
}

func (m *memUsageStore) CreateTokenUsage(ctx context.Context, usage *TokenUsage) error {
	if m.failWith != nil {
		return m.failWith
	}
	m.usages = append(m.usages, usage)
	return nil
}

func newMemRecorder() (*Recorder, *memMessageStore, *memUsageStore) {
	msgs := &memMessageStore{}
	usage := &memUsageStore{}
	stores := NewStores(nil, msgs, usage, nil)
	return NewRecorder(stores, "anthropic_direct", "claude-sonnet-4", nil), msgs, usage
}

func TestRecorderNilIsNoop(t *testing.T) {
	var r *Recorder
	r.RecordUserMessage(context.Background(), "p1", "hello")
	r.RecordAssistantMessage(context.Background(), "p1", "hi", nil)

	r = NewRecorder(nil, "local", "m", nil)
	r.RecordUserMessage(context.Background(), "p1", "hello")
	r.RecordAssistantMessage(context.Background(), "p1", "hi", nil)
}

func TestRecordUserMessage(t *testing.T) {
	r, msgs, _ := newMemRecorder()

	r.RecordUserMessage(context.Background(), "p1", "fix the bug")

	if len(msgs.messages) != 1 {
		t.Fatalf("messages = %d, want 1", len(msgs.messages))
	}
	got := msgs.messages[0]
	if got.Role != "user" || got.ProjectID != "p1" || got.Content != "fix the bug" {
		t.Errorf("message = %+v", got)
	}
	if got.ID == "" || got.CreatedAt.IsZero() {
		t.Errorf("missing id or timestamp: %+v", got)
	}
	if got.Provider != "" || got.Model != "" {
		t.Errorf("user message carries provider attribution: %+v", got)
	}
}

func TestRecordAssistantMessageWithUsage(t *testing.T) {
	r, msgs, usage := newMemRecorder()

	r.RecordAssistantMessage(context.Background(), "p1", "done", map[string]string{
		"input_tokens":     "120",
		"output_tokens":    "34",
		"total_tokens":     "154",
		"tokens_estimated": "true",
	})

	if len(usage.usages) != 1 {
		t.Fatalf("usages = %d, want 1", len(usage.usages))
	}
	u := usage.usages[0]
	if u.InputTokens != 120 || u.OutputTokens != 34 || u.TotalTokens != 154 {
		t.Errorf("usage = %+v", u)
	}
	if !u.Estimated {
		t.Error("estimated flag not carried")
	}
	if u.Provider != "anthropic_direct" || u.Model != "claude-sonnet-4" {
		t.Errorf("usage attribution = %q/%q", u.Provider, u.Model)
	}

	if len(msgs.messages) != 1 {
		t.Fatalf("messages = %d, want 1", len(msgs.messages))
	}
	m := msgs.messages[0]
	if m.Role != "assistant" || m.TokenUsageID != u.ID {
		t.Errorf("message = %+v, want token_usage_id %q", m, u.ID)
	}
}

func TestRecordAssistantMessageNoUsage(t *testing.T) {
	r, msgs, usage := newMemRecorder()

	r.RecordAssistantMessage(context.Background(), "p1", "done", nil)

	if len(usage.usages) != 0 {
		t.Errorf("usages = %d, want 0", len(usage.usages))
	}
	if len(msgs.messages) != 1 || msgs.messages[0].TokenUsageID != "" {
		t.Errorf("messages = %+v", msgs.messages)
	}
}

func TestRecordAssistantUsageFailureStillPersistsMessage(t *testing.T) {
	r, msgs, usage := newMemRecorder()
	usage.failWith = ErrNotFound

	r.RecordAssistantMessage(context.Background(), "p1", "done", map[string]string{
		"input_tokens": "5",
	})

	if len(msgs.messages) != 1 {
		t.Fatalf("messages = %d, want 1", len(msgs.messages))
	}
	if msgs.messages[0].TokenUsageID != "" {
		t.Errorf("failed usage still linked: %q", msgs.messages[0].TokenUsageID)
	}
}

func TestRecorderMalformedCounts(t *testing.T) {
	r, _, usage := newMemRecorder()

	r.RecordAssistantMessage(context.Background(), "p1", "done", map[string]string{
		"input_tokens":  "not-a-number",
		"output_tokens": "7",
	})

	if len(usage.usages) != 1 {
		t.Fatalf("usages = %d, want 1", len(usage.usages))
	}
	if u := usage.usages[0]; u.InputTokens != 0 || u.OutputTokens != 7 {
		t.Errorf("usage = %+v", u)
	}
}
