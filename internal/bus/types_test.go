package bus

import (
	"encoding/json"
	"reflect"
	"testing"
	"time"
)

func TestAgentMessageJSONRoundTrip(t *testing.T) {
	orig := &AgentMessage{
		ID:        "m-1",
		ReplyTo:   "m-0",
		RequestID: "req-1",
		FromAgent: AgentSupervisor,
		ToAgent:   AgentCodeEditing,
		TaskType:  "implement",
		Content:   "write the parser",
		Data:      map[string]string{"input_tokens": "12", "tokens_estimated": "true"},
		Status:    StatusPending,
		CreatedAt: time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC),
	}

	raw, err := json.Marshal(orig)
	if err != nil {
		t.Fatal(err)
	}
	var decoded AgentMessage
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(orig, &decoded) {
		t.Errorf("round trip changed the message:\n got %+v\nwant %+v", &decoded, orig)
	}
}

func TestAgentMessageOptionalFieldsOmitted(t *testing.T) {
	msg := NewMessage(AgentUser, AgentSupervisor, "user_request", "hi")
	raw, err := json.Marshal(msg)
	if err != nil {
		t.Fatal(err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"reply_to", "request_id", "data"} {
		if _, present := m[key]; present {
			t.Errorf("%s serialized while unset", key)
		}
	}
}
