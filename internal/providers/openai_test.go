package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func openAIFixture(content string) map[string]any {
	return map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"content": content}, "finish_reason": "stop"},
		},
		"usage": map[string]any{"prompt_tokens": 9, "completion_tokens": 3, "total_tokens": 12},
	}
}

func TestLocalGenerate(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("path = %q", r.URL.Path)
		}
		json.NewEncoder(w).Encode(openAIFixture("local says hi"))
	}))
	defer srv.Close()

	p := NewLocalProvider(srv.URL+"/v1", "")
	resp, err := p.Generate(context.Background(), GenerateRequest{Prompt: "hi"})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Content != "local says hi" {
		t.Errorf("content = %q", resp.Content)
	}
	if resp.Usage.TotalTokens != 12 || resp.Usage.Estimated {
		t.Errorf("usage = %+v", resp.Usage)
	}
	// Local endpoints are unauthenticated.
	if gotAuth != "" {
		t.Errorf("Authorization = %q, want empty", gotAuth)
	}
}

func TestOpenAIParseToolCalls(t *testing.T) {
	raw := `{
		"choices": [{
			"message": {
				"content": "",
				"tool_calls": [
					{"id":"c1","function":{"name":" write_file ","arguments":"{\"file_path\":\"x.go\",\"content\":\"package x\"}"}},
					{"id":"c2","function":{"name":"execute_command","arguments":"{\"command\":\"go vet\"}"}}
				]
			},
			"finish_reason": "tool_calls"
		}],
		"usage": {"prompt_tokens": 20, "completion_tokens": 15, "total_tokens": 35}
	}`
	var oaiResp openAIResponse
	if err := json.Unmarshal([]byte(raw), &oaiResp); err != nil {
		t.Fatal(err)
	}

	p := NewOpenRouterProvider("k", "")
	got := p.parseResponse(&oaiResp)

	if len(got.ToolCalls) != 2 {
		t.Fatalf("tool calls = %d, want 2", len(got.ToolCalls))
	}
	// Whitespace around function names is stripped during normalization.
	if got.ToolCalls[0].Name != "write_file" {
		t.Errorf("name = %q", got.ToolCalls[0].Name)
	}
	if got.ToolCalls[0].Arguments["file_path"] != "x.go" {
		t.Errorf("arguments = %v", got.ToolCalls[0].Arguments)
	}
	if got.ToolCalls[1].Arguments["command"] != "go vet" {
		t.Errorf("arguments = %v", got.ToolCalls[1].Arguments)
	}
	if got.Usage.TotalTokens != 35 {
		t.Errorf("usage = %+v", got.Usage)
	}
}

func TestOpenRouterAttributionHeaders(t *testing.T) {
	var referer, title string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		referer = r.Header.Get("HTTP-Referer")
		title = r.Header.Get("X-Title")
		json.NewEncoder(w).Encode(openAIFixture("ok"))
	}))
	defer srv.Close()

	p := NewOpenRouterProvider("key", "")
	p.apiBase = srv.URL
	if _, err := p.Generate(context.Background(), GenerateRequest{Prompt: "x"}); err != nil {
		t.Fatal(err)
	}
	if referer == "" || title == "" {
		t.Errorf("attribution headers missing: referer %q title %q", referer, title)
	}
}

func TestOpenAIGenerateStream(t *testing.T) {
	stream := `data: {"choices":[{"delta":{"content":"par"}}]}

data: {"choices":[{"delta":{"content":"tial"}}]}

data: {"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"name":"echo","arguments":"{\"text\":"}}]}}]}

data: {"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"\"hi\"}"}}]}}]}

data: {"choices":[],"usage":{"prompt_tokens":4,"completion_tokens":6,"total_tokens":10}}

data: [DONE]
`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte(stream))
	}))
	defer srv.Close()

	p := NewLocalProvider(srv.URL, "")
	resp, err := p.GenerateStream(context.Background(), GenerateRequest{Prompt: "x"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Content != "partial" {
		t.Errorf("content = %q", resp.Content)
	}
	if len(resp.ToolCalls) != 1 || resp.ToolCalls[0].Name != "echo" || resp.ToolCalls[0].Arguments["text"] != "hi" {
		t.Errorf("tool calls = %+v", resp.ToolCalls)
	}
	if resp.Usage.TotalTokens != 10 {
		t.Errorf("usage = %+v", resp.Usage)
	}
}
