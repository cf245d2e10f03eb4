package providers

import "context"

// Provider identifiers, as accepted by config llm_provider.
const (
	ProviderLocal      = "local"
	ProviderAWS        = "aws_managed"
	ProviderOpenRouter = "openrouter_aggregator"
	ProviderGemini     = "google_gemini"
	ProviderAnthropic  = "anthropic_direct"
)

// Provider is the interface all LLM backends implement.
type Provider interface {
	// Generate sends a single prompt to the LLM and returns the complete
	// response. The call observes ctx cancellation and deadline.
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error)

	// Name returns the provider identifier (one of the Provider* constants).
	Name() string

	// DefaultModel returns the provider's default model identifier.
	DefaultModel() string

	// Models returns the provider's known models grouped by family
	// (e.g. "claude" → ["claude-sonnet-...", ...]).
	Models() map[string][]string
}

// StreamingProvider is implemented by backends that can emit text deltas
// while a generation is in flight. The final response is still returned
// complete; chunks are advisory.
type StreamingProvider interface {
	Provider
	GenerateStream(ctx context.Context, req GenerateRequest, onChunk func(StreamChunk)) (*GenerateResponse, error)
}

// GenerateRequest is the provider-agnostic input for one generation.
type GenerateRequest struct {
	Prompt    string           `json:"prompt"`
	Tools     []ToolDefinition `json:"tools,omitempty"`
	Model     string           `json:"model,omitempty"`      // overrides the active model
	MaxTokens int              `json:"max_tokens,omitempty"` // 0 = provider default (4000)
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// GenerateResponse is the normalized result from any backend.
type GenerateResponse struct {
	Content   string            `json:"content"`
	ToolCalls []ToolCall        `json:"tool_calls,omitempty"`
	Usage     Usage             `json:"usage"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// StreamChunk is a piece of a streaming response.
type StreamChunk struct {
	Content string `json:"content,omitempty"`
	Done    bool   `json:"done,omitempty"`
}

// ToolCall is a tool invocation requested by the LLM. Provider-specific call
// ids are discarded during normalization; emission order is preserved.
type ToolCall struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// ToolDefinition describes a tool schema offered to the LLM.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"` // JSON schema object
}

// Usage tracks token consumption for one generation. Estimated is true when
// the provider did not report counts and the word-count estimator ran.
type Usage struct {
	InputTokens  int  `json:"input_tokens"`
	OutputTokens int  `json:"output_tokens"`
	TotalTokens  int  `json:"total_tokens"`
	Estimated    bool `json:"estimated,omitempty"`
}

const (
	defaultMaxTokens   = 4000
	defaultTemperature = 0.7
	defaultTopP        = 0.9
)
