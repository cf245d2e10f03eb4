package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestGeminiGenerate(t *testing.T) {
	var gotPath, gotQuery string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		json.NewDecoder(r.Body).Decode(&gotBody)

		json.NewEncoder(w).Encode(map[string]any{
			"candidates": []map[string]any{
				{
					"content": map[string]any{
						"parts": []map[string]any{
							{"text": "Thinking. "},
							{"functionCall": map[string]any{"name": "list_directory", "args": map[string]any{"dir_path": "src"}}},
							{"text": "Listing."},
						},
					},
					"finishReason": "STOP",
				},
			},
			"usageMetadata": map[string]any{"promptTokenCount": 8, "candidatesTokenCount": 6, "totalTokenCount": 14},
		})
	}))
	defer srv.Close()

	p := NewGeminiProvider("gm-key", "")
	p.baseURL = srv.URL

	resp, err := p.Generate(context.Background(), GenerateRequest{
		Prompt: "list it",
		Tools:  []ToolDefinition{{Name: "list_directory", Description: "d", Parameters: map[string]any{"type": "object"}}},
	})
	if err != nil {
		t.Fatal(err)
	}

	if !strings.HasSuffix(gotPath, "/models/"+geminiDefaultModel+":generateContent") {
		t.Errorf("path = %q", gotPath)
	}
	if !strings.Contains(gotQuery, "key=gm-key") {
		t.Errorf("query = %q", gotQuery)
	}
	if _, ok := gotBody["tools"]; !ok {
		t.Error("functionDeclarations not sent")
	}
	gc, _ := gotBody["generationConfig"].(map[string]any)
	if gc == nil || gc["maxOutputTokens"] != float64(defaultMaxTokens) {
		t.Errorf("generationConfig = %v", gc)
	}

	if resp.Content != "Thinking. Listing." {
		t.Errorf("content = %q", resp.Content)
	}
	if len(resp.ToolCalls) != 1 || resp.ToolCalls[0].Name != "list_directory" {
		t.Fatalf("tool calls = %+v", resp.ToolCalls)
	}
	if resp.ToolCalls[0].Arguments["dir_path"] != "src" {
		t.Errorf("arguments = %v", resp.ToolCalls[0].Arguments)
	}
	if resp.Usage.TotalTokens != 14 || resp.Usage.Estimated {
		t.Errorf("usage = %+v", resp.Usage)
	}
}

func TestGeminiEmptyCandidatesEstimatesUsage(t *testing.T) {
	p := NewGeminiProvider("k", "")
	got := p.parseResponse(&geminiResponse{})
	if got.Content != "" || len(got.ToolCalls) != 0 {
		t.Errorf("parse of empty response = %+v", got)
	}
	if !got.Usage.Estimated {
		t.Error("usage not estimated for empty response")
	}
}
