package providers

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	openRouterAPIBase      = "https://openrouter.ai/api/v1"
	openRouterDefaultModel = "anthropic/claude-sonnet-4.5"
	localDefaultModel      = "default"
)

// OpenAIProvider implements Provider for OpenAI-compatible chat APIs. It
// backs both the openrouter_aggregator backend and the self-hosted local
// backend (which speaks the same wire format without authentication).
type OpenAIProvider struct {
	name         string
	apiKey       string
	apiBase      string
	defaultModel string
	referrer     string // OpenRouter attribution headers, empty elsewhere
	title        string
	client       *http.Client
	models       map[string][]string
}

// NewOpenRouterProvider creates an openrouter_aggregator backend.
func NewOpenRouterProvider(apiKey, model string) *OpenAIProvider {
	if model == "" {
		model = openRouterDefaultModel
	}
	return &OpenAIProvider{
		name:         ProviderOpenRouter,
		apiKey:       apiKey,
		apiBase:      openRouterAPIBase,
		defaultModel: model,
		referrer:     "https://github.com/nextlevelbuilder/goforge",
		title:        "goforge",
		client:       &http.Client{Timeout: 120 * time.Second},
		models: map[string][]string{
			"claude": {"anthropic/claude-sonnet-4.5", "anthropic/claude-opus-4.1"},
			"gpt":    {"openai/gpt-4o", "openai/gpt-4o-mini"},
			"llama":  {"meta-llama/llama-3.3-70b-instruct"},
		},
	}
}

// NewLocalProvider creates a backend for a self-hosted OpenAI-compatible
// endpoint (vLLM, llama.cpp server, Ollama in compatible mode).
func NewLocalProvider(endpoint, model string) *OpenAIProvider {
	if model == "" {
		model = localDefaultModel
	}
	return &OpenAIProvider{
		name:         ProviderLocal,
		apiBase:      strings.TrimRight(endpoint, "/"),
		defaultModel: model,
		client:       &http.Client{Timeout: 120 * time.Second},
		models: map[string][]string{
			"local": {model},
		},
	}
}

func (p *OpenAIProvider) Name() string              { return p.name }
func (p *OpenAIProvider) DefaultModel() string      { return p.defaultModel }
func (p *OpenAIProvider) Models() map[string][]string { return p.models }

func (p *OpenAIProvider) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	body := p.buildRequestBody(req, false)

	respBody, err := p.doRequest(ctx, body)
	if err != nil {
		return nil, err
	}
	defer respBody.Close()

	var oaiResp openAIResponse
	if err := json.NewDecoder(respBody).Decode(&oaiResp); err != nil {
		return nil, WrapError(p.name, KindParse, fmt.Errorf("decode response: %w", err))
	}

	return p.parseResponse(&oaiResp), nil
}

// GenerateStream reads the SSE stream, accumulating tool-call argument
// fragments by index and forwarding text deltas through onChunk.
func (p *OpenAIProvider) GenerateStream(ctx context.Context, req GenerateRequest, onChunk func(StreamChunk)) (*GenerateResponse, error) {
	body := p.buildRequestBody(req, true)

	respBody, err := p.doRequest(ctx, body)
	if err != nil {
		return nil, err
	}
	defer respBody.Close()

	result := &GenerateResponse{}
	type accumulator struct {
		name    string
		rawArgs string
	}
	accumulators := make(map[int]*accumulator)

	scanner := bufio.NewScanner(respBody)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")
		if data == "[DONE]" {
			break
		}

		var chunk openAIStreamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			continue
		}
		if len(chunk.Choices) == 0 {
			if chunk.Usage != nil {
				result.Usage.InputTokens = chunk.Usage.PromptTokens
				result.Usage.OutputTokens = chunk.Usage.CompletionTokens
				result.Usage.TotalTokens = chunk.Usage.TotalTokens
			}
			continue
		}

		delta := chunk.Choices[0].Delta
		if delta.Content != "" {
			result.Content += delta.Content
			if onChunk != nil {
				onChunk(StreamChunk{Content: delta.Content})
			}
		}

		for _, tc := range delta.ToolCalls {
			acc, ok := accumulators[tc.Index]
			if !ok {
				acc = &accumulator{}
				accumulators[tc.Index] = acc
			}
			if tc.Function.Name != "" {
				acc.name = strings.TrimSpace(tc.Function.Name)
			}
			acc.rawArgs += tc.Function.Arguments
		}

		if chunk.Usage != nil {
			result.Usage.InputTokens = chunk.Usage.PromptTokens
			result.Usage.OutputTokens = chunk.Usage.CompletionTokens
			result.Usage.TotalTokens = chunk.Usage.TotalTokens
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, WrapError(p.name, KindNetwork, fmt.Errorf("read stream: %w", err))
	}

	for i := 0; i < len(accumulators); i++ {
		acc := accumulators[i]
		args := make(map[string]any)
		_ = json.Unmarshal([]byte(acc.rawArgs), &args)
		result.ToolCalls = append(result.ToolCalls, ToolCall{Name: acc.name, Arguments: args})
	}

	result.Usage = finishUsage(result.Usage, result.Content)

	if onChunk != nil {
		onChunk(StreamChunk{Done: true})
	}
	return result, nil
}

func (p *OpenAIProvider) buildRequestBody(req GenerateRequest, stream bool) map[string]any {
	model := req.Model
	if model == "" {
		model = p.defaultModel
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	body := map[string]any{
		"model": model,
		"messages": []map[string]any{
			{"role": "user", "content": req.Prompt},
		},
		"max_tokens":  maxTokens,
		"temperature": defaultTemperature,
		"stream":      stream,
	}

	if len(req.Tools) > 0 {
		tools := make([]map[string]any, 0, len(req.Tools))
		for _, t := range req.Tools {
			tools = append(tools, map[string]any{
				"type": "function",
				"function": map[string]any{
					"name":        t.Name,
					"description": t.Description,
					"parameters":  t.Parameters,
				},
			})
		}
		body["tools"] = tools
		body["tool_choice"] = "auto"
	}

	if stream {
		body["stream_options"] = map[string]any{"include_usage": true}
	}

	return body
}

func (p *OpenAIProvider) doRequest(ctx context.Context, body any) (io.ReadCloser, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, WrapError(p.name, KindInvalidArguments, fmt.Errorf("marshal request: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiBase+"/chat/completions", bytes.NewReader(data))
	if err != nil {
		return nil, WrapError(p.name, KindInvalidArguments, fmt.Errorf("create request: %w", err))
	}

	httpReq.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}
	if p.referrer != "" {
		httpReq.Header.Set("HTTP-Referer", p.referrer)
		httpReq.Header.Set("X-Title", p.title)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, WrapError(p.name, KindOf(ctx.Err()), ctx.Err())
		}
		return nil, WrapError(p.name, KindNetwork, err)
	}

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, httpError(p.name, resp.StatusCode, respBody)
	}

	return resp.Body, nil
}

func (p *OpenAIProvider) parseResponse(resp *openAIResponse) *GenerateResponse {
	result := &GenerateResponse{}

	if len(resp.Choices) > 0 {
		msg := resp.Choices[0].Message
		result.Content = msg.Content

		for _, tc := range msg.ToolCalls {
			args := make(map[string]any)
			_ = json.Unmarshal([]byte(tc.Function.Arguments), &args)
			result.ToolCalls = append(result.ToolCalls, ToolCall{
				Name:      strings.TrimSpace(tc.Function.Name),
				Arguments: args,
			})
		}
	}

	var usage Usage
	if resp.Usage != nil {
		usage = Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
			TotalTokens:  resp.Usage.TotalTokens,
		}
	}
	result.Usage = finishUsage(usage, result.Content)

	return result
}

// --- OpenAI-compatible API types (internal) ---

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content   string `json:"content"`
			ToolCalls []struct {
				ID       string `json:"id"`
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *openAIUsage `json:"usage"`
}

type openAIUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type openAIStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content   string `json:"content"`
			ToolCalls []struct {
				Index    int    `json:"index"`
				ID       string `json:"id"`
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *openAIUsage `json:"usage"`
}
