package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/nextlevelbuilder/goforge/internal/providers"
)

const tracerName = "goforge/tools"

// Tool is a capability the LLM can invoke.
type Tool interface {
	Name() string
	Description() string
	// Parameters returns a JSON schema object describing the arguments.
	Parameters() map[string]any
	Execute(ctx context.Context, args map[string]any) *Result
}

type registered struct {
	tool      Tool
	rawSchema []byte
	schema    *jsonschema.Schema
}

// Registry holds the tool set and validates arguments before dispatch.
// Names are unique; re-registering the same name with an identical schema is
// a no-op, with a different schema it fails.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]*registered
	log   *slog.Logger
}

func NewRegistry(log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{tools: make(map[string]*registered), log: log}
}

func (r *Registry) Register(t Tool) error {
	raw, err := json.Marshal(t.Parameters())
	if err != nil {
		return fmt.Errorf("marshal schema for %s: %w", t.Name(), err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.tools[t.Name()]; ok {
		if bytes.Equal(existing.rawSchema, raw) {
			return nil
		}
		return fmt.Errorf("tool %s already registered with a different schema", t.Name())
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(raw)); err != nil {
		return fmt.Errorf("compile schema for %s: %w", t.Name(), err)
	}
	schema, err := compiler.Compile("schema.json")
	if err != nil {
		return fmt.Errorf("compile schema for %s: %w", t.Name(), err)
	}

	r.tools[t.Name()] = &registered{tool: t, rawSchema: raw, schema: schema}
	return nil
}

// List returns the registered tool specs in registry order (unordered).
func (r *Registry) List() []providers.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]providers.ToolDefinition, 0, len(r.tools))
	for _, reg := range r.tools {
		defs = append(defs, providers.ToolDefinition{
			Name:        reg.tool.Name(),
			Description: reg.tool.Description(),
			Parameters:  reg.tool.Parameters(),
		})
	}
	return defs
}

// Execute validates the call arguments against the declared schema and runs
// the tool. Validation failures return invalid_arguments before any side
// effect. Every invocation emits one structured log record; log records
// never contain file contents.
func (r *Registry) Execute(ctx context.Context, call providers.ToolCall) *Result {
	execID := uuid.NewString()
	start := time.Now()

	ctx, span := otel.Tracer(tracerName).Start(ctx, "tool.execute",
		trace.WithAttributes(attribute.String("tool.name", call.Name)))
	defer span.End()

	r.mu.RLock()
	reg, ok := r.tools[call.Name]
	r.mu.RUnlock()

	var result *Result
	if !ok {
		result = ErrorResultf(OutcomeInvalidArguments, "unknown tool: %s", call.Name)
	} else if err := reg.schema.Validate(anyMap(call.Arguments)); err != nil {
		result = ErrorResultf(OutcomeInvalidArguments, "invalid arguments for %s: %v", call.Name, err)
	} else {
		result = reg.tool.Execute(ctx, call.Arguments)
	}

	span.SetAttributes(attribute.String("tool.outcome", result.Outcome))
	r.log.Info("tool.execute",
		"execution_id", execID,
		"tool", call.Name,
		"path", redactArg(call.Arguments),
		"duration", time.Since(start),
		"outcome", result.Outcome,
		"bytes", len(result.Content),
	)
	return result
}

// anyMap converts the argument map to the interface{} tree shape the schema
// validator expects.
func anyMap(args map[string]any) any {
	if args == nil {
		return map[string]any{}
	}
	return args
}

// redactArg extracts a loggable path-like argument, keeping only the final
// path element so workspace layout does not leak into logs.
func redactArg(args map[string]any) string {
	for _, key := range []string{"file_path", "dir_path", "working_dir"} {
		if v, ok := args[key].(string); ok && v != "" {
			return redactPath(v)
		}
	}
	return ""
}
