package protocol

import (
	"encoding/json"
	"testing"
	"time"
)

func TestNewFrameTimestamp(t *testing.T) {
	f := NewFrame(FrameStatus, "s-1")
	if f.Type != FrameStatus || f.SessionID != "s-1" {
		t.Fatalf("frame = %+v", f)
	}
	ts, err := time.Parse(time.RFC3339, f.Timestamp)
	if err != nil {
		t.Fatalf("timestamp %q not RFC 3339: %v", f.Timestamp, err)
	}
	if time.Since(ts) > time.Minute {
		t.Errorf("timestamp %v not current", ts)
	}
}

func TestWithProgressClamps(t *testing.T) {
	tests := []struct {
		name string
		in   int
		want int
	}{
		{"negative", -5, 0},
		{"zero", 0, 0},
		{"mid", 42, 42},
		{"max", 100, 100},
		{"overflow", 250, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewFrame(FrameProgress, "s").WithProgress(tt.in)
			if f.Progress == nil || *f.Progress != tt.want {
				t.Errorf("WithProgress(%d) = %v, want %d", tt.in, f.Progress, tt.want)
			}
		})
	}
}

func TestWithMetadataMerges(t *testing.T) {
	f := NewFrame(FrameError, "s").
		WithMetadata("kind", "invalid_arguments").
		WithMetadata("detail", "empty message")

	if f.Metadata["kind"] != "invalid_arguments" || f.Metadata["detail"] != "empty message" {
		t.Errorf("metadata = %v", f.Metadata)
	}

	f.WithMetadata("kind", "timeout")
	if f.Metadata["kind"] != "timeout" {
		t.Errorf("overwrite lost: %v", f.Metadata)
	}
}

func TestFrameWireShape(t *testing.T) {
	f := NewFrame(FrameAgentResponse, "s-9").
		WithContent("hello").
		WithAgent("supervisor").
		WithStatus("completed").
		WithProgress(50).
		WithProject("p-1")

	raw, err := json.Marshal(f)
	if err != nil {
		t.Fatal(err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatal(err)
	}

	for key, want := range map[string]any{
		"type":       "agent_response",
		"session_id": "s-9",
		"project_id": "p-1",
		"content":    "hello",
		"agent_type": "supervisor",
		"status":     "completed",
		"progress":   float64(50),
	} {
		if decoded[key] != want {
			t.Errorf("%s = %v, want %v", key, decoded[key], want)
		}
	}

	// Unset optional fields stay off the wire.
	bare := NewFrame(FrameConnection, "s")
	raw, _ = json.Marshal(bare)
	var bareMap map[string]any
	json.Unmarshal(raw, &bareMap)
	for _, key := range []string{"content", "progress", "agent_type", "metadata", "status", "project_id"} {
		if _, present := bareMap[key]; present {
			t.Errorf("%s serialized while unset", key)
		}
	}
}

func TestClientInputRoundTrip(t *testing.T) {
	raw := []byte(`{"message":"build it","project_id":"p-2"}`)
	var in ClientInput
	if err := json.Unmarshal(raw, &in); err != nil {
		t.Fatal(err)
	}
	if in.Message != "build it" || in.ProjectID != "p-2" {
		t.Errorf("input = %+v", in)
	}
	if in.SessionID != "" || in.Timestamp != "" {
		t.Errorf("absent fields populated: %+v", in)
	}
}
