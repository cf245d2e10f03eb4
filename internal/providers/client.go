package providers

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "goforge/providers"

// generateDeadline bounds one LLM call wall-clock, independent of any
// deadline already on the caller's context.
const generateDeadline = 60 * time.Second

// Credentials carries every secret a backend might need. Fields for
// providers not in use stay empty.
type Credentials struct {
	AnthropicAPIKey  string
	OpenRouterAPIKey string
	GeminiAPIKey     string
	AWSRegion        string
	AWSAccessKeyID   string
	AWSSecretKey     string
	AWSSessionToken  string
	LocalEndpoint    string
}

// backend pairs an active provider with the model it generates against.
// Swapped atomically so in-flight generations finish under the backend
// they started with.
type backend struct {
	provider Provider
	model    string
}

// Client is the provider-agnostic LLM entry point shared by all agents.
// Switching provider or model takes effect for subsequent calls only.
type Client struct {
	active   atomic.Pointer[backend]
	creds    Credentials
	deadline time.Duration
	log      *slog.Logger
}

// ClientOption tunes client construction.
type ClientOption func(*Client)

// WithWallClock overrides the per-generation wall-clock deadline.
func WithWallClock(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.deadline = d
		}
	}
}

// NewClient builds a client with the given initial backend.
func NewClient(ctx context.Context, providerName, model string, creds Credentials, log *slog.Logger, opts ...ClientOption) (*Client, error) {
	if log == nil {
		log = slog.Default()
	}
	c := &Client{creds: creds, deadline: generateDeadline, log: log}
	for _, o := range opts {
		o(c)
	}

	p, err := c.buildProvider(ctx, providerName)
	if err != nil {
		return nil, err
	}
	if model == "" {
		model = p.DefaultModel()
	}
	c.active.Store(&backend{provider: p, model: model})
	return c, nil
}

func (c *Client) buildProvider(ctx context.Context, name string) (Provider, error) {
	switch name {
	case ProviderLocal:
		if c.creds.LocalEndpoint == "" {
			return nil, NewError(name, KindInvalidArguments, "local endpoint not configured")
		}
		return NewLocalProvider(c.creds.LocalEndpoint, ""), nil
	case ProviderOpenRouter:
		if c.creds.OpenRouterAPIKey == "" {
			return nil, NewError(name, KindAuth, "openrouter api key not configured")
		}
		return NewOpenRouterProvider(c.creds.OpenRouterAPIKey, ""), nil
	case ProviderGemini:
		if c.creds.GeminiAPIKey == "" {
			return nil, NewError(name, KindAuth, "gemini api key not configured")
		}
		return NewGeminiProvider(c.creds.GeminiAPIKey, ""), nil
	case ProviderAnthropic:
		if c.creds.AnthropicAPIKey == "" {
			return nil, NewError(name, KindAuth, "anthropic api key not configured")
		}
		return NewAnthropicProvider(c.creds.AnthropicAPIKey), nil
	case ProviderAWS:
		return NewBedrockProvider(ctx, BedrockConfig{
			Region:          c.creds.AWSRegion,
			AccessKeyID:     c.creds.AWSAccessKeyID,
			SecretAccessKey: c.creds.AWSSecretKey,
			SessionToken:    c.creds.AWSSessionToken,
		})
	default:
		return nil, NewError(name, KindUnsupported, fmt.Sprintf("unknown provider %q", name))
	}
}

// ProviderName returns the active provider identifier.
func (c *Client) ProviderName() string { return c.active.Load().provider.Name() }

// Model returns the active model identifier.
func (c *Client) Model() string { return c.active.Load().model }

// Generate runs one generation against the active backend under the
// wall-clock deadline.
func (c *Client) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	b := c.active.Load()
	if req.Model == "" {
		req.Model = b.model
	}

	ctx, cancel := context.WithTimeout(ctx, c.deadline)
	defer cancel()

	ctx, span := otel.Tracer(tracerName).Start(ctx, "llm.generate",
		trace.WithAttributes(
			attribute.String("llm.provider", b.provider.Name()),
			attribute.String("llm.model", req.Model),
		))
	defer span.End()

	start := time.Now()
	resp, err := b.provider.Generate(ctx, req)
	elapsed := time.Since(start)

	if err != nil {
		span.RecordError(err)
		c.log.Error("llm.generate_failed",
			"provider", b.provider.Name(),
			"model", req.Model,
			"kind", KindOf(err),
			"elapsed", elapsed,
		)
		return nil, err
	}

	c.log.Info("llm.generate",
		"provider", b.provider.Name(),
		"model", req.Model,
		"input_tokens", resp.Usage.InputTokens,
		"output_tokens", resp.Usage.OutputTokens,
		"estimated", resp.Usage.Estimated,
		"tool_calls", len(resp.ToolCalls),
		"elapsed", elapsed,
	)
	return resp, nil
}

// GenerateStream streams text deltas when the active backend supports it,
// falling back to a single chunk from a blocking Generate otherwise.
func (c *Client) GenerateStream(ctx context.Context, req GenerateRequest, onChunk func(StreamChunk)) (*GenerateResponse, error) {
	b := c.active.Load()
	if req.Model == "" {
		req.Model = b.model
	}

	ctx, cancel := context.WithTimeout(ctx, c.deadline)
	defer cancel()

	if sp, ok := b.provider.(StreamingProvider); ok {
		return sp.GenerateStream(ctx, req, onChunk)
	}

	resp, err := b.provider.Generate(ctx, req)
	if err != nil {
		return nil, err
	}
	if onChunk != nil {
		if resp.Content != "" {
			onChunk(StreamChunk{Content: resp.Content})
		}
		onChunk(StreamChunk{Done: true})
	}
	return resp, nil
}

// Switch replaces the active backend. Switching to the already-active
// provider/model pair is a no-op; in-flight generations are unaffected
// either way.
func (c *Client) Switch(ctx context.Context, providerName, model string) error {
	cur := c.active.Load()
	if cur.provider.Name() == providerName && (model == "" || model == cur.model) {
		return nil
	}

	var p Provider
	if cur.provider.Name() == providerName {
		p = cur.provider
	} else {
		built, err := c.buildProvider(ctx, providerName)
		if err != nil {
			return err
		}
		p = built
	}
	if model == "" {
		model = p.DefaultModel()
	}

	c.active.Store(&backend{provider: p, model: model})
	c.log.Info("llm.switch",
		"provider", providerName,
		"model", model,
		"previous_provider", cur.provider.Name(),
		"previous_model", cur.model,
	)
	return nil
}

// AvailableModels reports the model catalog of the active provider plus
// the static catalogs of providers reachable without a network round trip.
func (c *Client) AvailableModels() map[string]map[string][]string {
	out := make(map[string]map[string][]string)
	b := c.active.Load()
	out[b.provider.Name()] = b.provider.Models()

	catalogs := map[string]func() map[string][]string{
		ProviderAnthropic:  func() map[string][]string { return (&AnthropicProvider{}).Models() },
		ProviderGemini:     func() map[string][]string { return (&GeminiProvider{}).Models() },
		ProviderOpenRouter: func() map[string][]string { return NewOpenRouterProvider("", "").Models() },
		ProviderAWS:        func() map[string][]string { return (&BedrockProvider{}).Models() },
	}
	for name, fn := range catalogs {
		if _, ok := out[name]; !ok {
			out[name] = fn()
		}
	}
	return out
}
