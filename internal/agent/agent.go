package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/nextlevelbuilder/goforge/internal/bus"
	"github.com/nextlevelbuilder/goforge/internal/providers"
	"github.com/nextlevelbuilder/goforge/internal/tools"
)

const tracerName = "goforge/agent"

const defaultInboxSize = 100

// ContextSnapshotter provides a serialized view of the shared project
// context for prompt assembly.
type ContextSnapshotter interface {
	Snapshot() string
}

// LLMClient is the slice of the provider client an agent needs for a turn.
type LLMClient interface {
	Generate(ctx context.Context, req providers.GenerateRequest) (*providers.GenerateResponse, error)
}

// Agent is a long-lived worker with a bounded inbox. Each received message
// triggers one turn: prompt assembly, an LLM call, sequential tool
// execution, delegation parsing (supervisor only), and a reply.
type Agent struct {
	role         string
	systemPrompt string
	inbox        chan *bus.AgentMessage
	outbox       chan *bus.AgentMessage
	processing   atomic.Bool

	llm          LLMClient
	registry     *tools.Registry
	toolsEnabled bool
	delegates    bool
	peers        map[string]bool
	projectCtx   ContextSnapshotter
	requestCtx   func(requestID string) context.Context
	log          *slog.Logger
}

// Config wires an agent's collaborators.
type Config struct {
	Role         string
	LLM          LLMClient
	Registry     *tools.Registry
	ToolsEnabled bool
	// Peers names the delegation targets. Only the supervisor delegates;
	// leaving this empty disables delegation parsing.
	Peers      []string
	ProjectCtx ContextSnapshotter
	// RequestCtx resolves a message's request id to the context governing
	// that request's loop; turns for a cancelled loop issue no LLM call.
	RequestCtx func(requestID string) context.Context
	InboxSize  int
	Logger     *slog.Logger
}

func New(cfg Config) *Agent {
	size := cfg.InboxSize
	if size <= 0 {
		size = defaultInboxSize
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	peers := make(map[string]bool, len(cfg.Peers))
	for _, p := range cfg.Peers {
		peers[p] = true
	}

	return &Agent{
		role:         cfg.Role,
		systemPrompt: PromptForRole(cfg.Role),
		inbox:        make(chan *bus.AgentMessage, size),
		outbox:       make(chan *bus.AgentMessage, size),
		llm:          cfg.LLM,
		registry:     cfg.Registry,
		toolsEnabled: cfg.ToolsEnabled,
		delegates:    cfg.Role == bus.AgentSupervisor && len(peers) > 0,
		peers:        peers,
		projectCtx:   cfg.ProjectCtx,
		requestCtx:   cfg.RequestCtx,
		log:          log.With("agent", cfg.Role),
	}
}

func (a *Agent) Role() string { return a.role }

// Receive enqueues a message without blocking. A full inbox returns
// bus.ErrSaturated.
func (a *Agent) Receive(msg *bus.AgentMessage) error {
	select {
	case a.inbox <- msg:
		return nil
	default:
		return bus.ErrSaturated
	}
}

// Outbox returns the channel of messages the agent emits. The coordinator
// drains it into the router.
func (a *Agent) Outbox() <-chan *bus.AgentMessage { return a.outbox }

// InboxDepth and OutboxDepth feed the coordinator's pending-message counter.
func (a *Agent) InboxDepth() int  { return len(a.inbox) }
func (a *Agent) OutboxDepth() int { return len(a.outbox) }

// Processing reports whether a turn is currently in flight.
func (a *Agent) Processing() bool { return a.processing.Load() }

// Run consumes the inbox until ctx is cancelled. At most one turn is in
// flight at any time.
func (a *Agent) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-a.inbox:
			a.turn(ctx, msg)
		}
	}
}

// turn executes one message end to end. It always emits a reply.
func (a *Agent) turn(ctx context.Context, msg *bus.AgentMessage) {
	a.processing.Store(true)
	defer a.processing.Store(false)

	// A tagged message runs under its request's loop context. A nil lookup
	// means the loop already reached a terminal state: the turn replies
	// without issuing a generation.
	if a.requestCtx != nil && msg.RequestID != "" {
		ctx = a.requestCtx(msg.RequestID)
	}
	if ctx == nil || ctx.Err() != nil {
		a.log.Info("agent.turn_skipped", "message_id", msg.ID, "request_id", msg.RequestID)
		a.emit(msg.Reply(a.role, "request cancelled", bus.StatusFailed))
		return
	}

	ctx, span := otel.Tracer(tracerName).Start(ctx, "agent.turn",
		trace.WithAttributes(
			attribute.String("agent.role", a.role),
			attribute.String("message.task_type", msg.TaskType),
		))
	defer span.End()

	start := time.Now()
	a.log.Info("agent.turn_start",
		"message_id", msg.ID,
		"from", msg.FromAgent,
		"task_type", msg.TaskType,
	)

	req := providers.GenerateRequest{Prompt: a.assemblePrompt(msg)}
	if a.toolsEnabled && a.registry != nil {
		req.Tools = a.registry.List()
	}

	resp, err := a.llm.Generate(ctx, req)
	if err != nil {
		span.RecordError(err)
		a.log.Error("agent.turn_failed",
			"message_id", msg.ID,
			"kind", providers.KindOf(err),
			"elapsed", time.Since(start),
		)
		a.emit(msg.Reply(a.role, fmt.Sprintf("generation failed: %v", err), bus.StatusFailed))
		return
	}

	body := resp.Content
	if body == "" && len(resp.ToolCalls) == 0 {
		a.emit(msg.Reply(a.role, "generation returned an empty response", bus.StatusFailed))
		return
	}

	if len(resp.ToolCalls) > 0 {
		body = a.runToolCalls(ctx, msg.RequestID, body, resp.ToolCalls)
	}

	if a.delegates {
		a.handleDelegation(msg, body)
	}

	reply := msg.Reply(a.role, body, bus.StatusCompleted)
	reply.Data = map[string]string{
		"input_tokens":  strconv.Itoa(resp.Usage.InputTokens),
		"output_tokens": strconv.Itoa(resp.Usage.OutputTokens),
		"total_tokens":  strconv.Itoa(resp.Usage.TotalTokens),
	}
	if resp.Usage.Estimated {
		reply.Data["tokens_estimated"] = "true"
	}
	a.emit(reply)
	a.log.Info("agent.turn_done",
		"message_id", msg.ID,
		"tool_calls", len(resp.ToolCalls),
		"elapsed", time.Since(start),
	)
}

func (a *Agent) assemblePrompt(msg *bus.AgentMessage) string {
	var b strings.Builder
	b.WriteString(a.systemPrompt)

	if a.projectCtx != nil {
		b.WriteString("\n\n# Project Context\n")
		b.WriteString(a.projectCtx.Snapshot())
	}

	b.WriteString("\n\n# Incoming Message\n")
	fmt.Fprintf(&b, "task_type: %s\n", msg.TaskType)
	fmt.Fprintf(&b, "from: %s\n", msg.FromAgent)
	fmt.Fprintf(&b, "content: %s\n", msg.Content)
	for k, v := range msg.Data {
		fmt.Fprintf(&b, "data.%s: %s\n", k, v)
	}
	return b.String()
}

// runToolCalls executes tool calls sequentially in emission order and
// appends the accumulated results to the response body. Results are never
// truncated. Start and finish of each call are announced to the user so the
// session layer can stream tool progress.
func (a *Agent) runToolCalls(ctx context.Context, requestID, body string, calls []providers.ToolCall) string {
	results := make([]string, 0, len(calls))
	for _, call := range calls {
		announce := bus.NewMessage(a.role, bus.AgentUser, "tool_call", call.Name)
		announce.RequestID = requestID
		a.emit(announce)
		result := a.registry.Execute(ctx, call)

		finish := bus.NewMessage(a.role, bus.AgentUser, "tool_result", call.Name)
		finish.RequestID = requestID
		finish.Data = map[string]string{"outcome": result.Outcome}
		if result.IsError {
			finish.Status = bus.StatusFailed
		} else {
			finish.Status = bus.StatusCompleted
		}
		a.emit(finish)
		prefix := call.Name
		if result.IsError {
			prefix = fmt.Sprintf("%s (error: %s)", call.Name, result.Outcome)
		}
		results = append(results, fmt.Sprintf("[%s]\n%s", prefix, result.Content))
	}
	return body + "\n\nTool Execution Results:\n" + strings.Join(results, "\n\n")
}

// handleDelegation forwards a parsed delegation to a known peer. Unknown
// targets are logged and ignored. Delegated work is addressed from the user:
// the peer's end-of-turn reply routes to the session layer, never back into
// the supervisor's inbox.
func (a *Agent) handleDelegation(msg *bus.AgentMessage, body string) {
	d := ParseDelegation(body)
	if d == nil {
		return
	}
	if !a.peers[d.Target] {
		a.log.Warn("agent.delegation_unknown_target", "target", d.Target, "task", d.Task)
		return
	}

	delegated := bus.NewMessage(bus.AgentUser, d.Target, d.Task, d.Instructions)
	delegated.ReplyTo = msg.ID
	delegated.RequestID = msg.RequestID
	a.emit(delegated)
	a.log.Info("agent.delegated", "target", d.Target, "task", d.Task)
}

// emit places a message on the outbox. A full outbox drops the message
// with a warning so the turn can complete.
func (a *Agent) emit(msg *bus.AgentMessage) {
	select {
	case a.outbox <- msg:
	default:
		a.log.Warn("agent.outbox_saturated", "to", msg.ToAgent, "task_type", msg.TaskType)
	}
}
