package agent

import (
	"context"
	"strings"
	"testing"

	"github.com/nextlevelbuilder/goforge/internal/bus"
	"github.com/nextlevelbuilder/goforge/internal/providers"
	"github.com/nextlevelbuilder/goforge/internal/tools"
)

// stubLLM returns a canned response and remembers the last request.
type stubLLM struct {
	resp    *providers.GenerateResponse
	err     error
	lastReq providers.GenerateRequest
	calls   int
}

func (s *stubLLM) Generate(ctx context.Context, req providers.GenerateRequest) (*providers.GenerateResponse, error) {
	s.lastReq = req
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.resp, nil
}

// echoTool records its invocations and echoes the "text" argument.
type echoTool struct {
	calls []map[string]any
	fail  bool
}

func (e *echoTool) Name() string        { return "echo" }
func (e *echoTool) Description() string { return "echoes its input" }
func (e *echoTool) Parameters() map[string]any {
	return map[string]any{"type": "object"}
}
func (e *echoTool) Execute(ctx context.Context, args map[string]any) *tools.Result {
	e.calls = append(e.calls, args)
	if e.fail {
		return tools.ErrorResult(tools.OutcomeNotFound, "nothing to echo")
	}
	text, _ := args["text"].(string)
	return tools.NewResult(text)
}

func drainOutbox(a *Agent) []*bus.AgentMessage {
	var out []*bus.AgentMessage
	for {
		select {
		case msg := <-a.Outbox():
			out = append(out, msg)
		default:
			return out
		}
	}
}

func userRequest(content string) *bus.AgentMessage {
	return bus.NewMessage(bus.AgentUser, bus.AgentSupervisor, "user_request", content)
}

func TestTurnReplyWithUsage(t *testing.T) {
	llm := &stubLLM{resp: &providers.GenerateResponse{
		Content: "all done",
		Usage:   providers.Usage{InputTokens: 12, OutputTokens: 8, TotalTokens: 20},
	}}
	a := New(Config{Role: bus.AgentReact, LLM: llm})

	a.turn(context.Background(), userRequest("do the thing"))

	msgs := drainOutbox(a)
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1", len(msgs))
	}
	reply := msgs[0]
	if reply.Status != bus.StatusCompleted {
		t.Errorf("status = %q, want completed", reply.Status)
	}
	if reply.Content != "all done" {
		t.Errorf("content = %q", reply.Content)
	}
	if reply.Data["input_tokens"] != "12" || reply.Data["output_tokens"] != "8" || reply.Data["total_tokens"] != "20" {
		t.Errorf("usage data = %v", reply.Data)
	}
	if _, ok := reply.Data["tokens_estimated"]; ok {
		t.Error("tokens_estimated set for exact counts")
	}
}

func TestTurnEstimatedUsageFlag(t *testing.T) {
	llm := &stubLLM{resp: &providers.GenerateResponse{
		Content: "ok",
		Usage:   providers.Usage{InputTokens: 3, OutputTokens: 1, TotalTokens: 4, Estimated: true},
	}}
	a := New(Config{Role: bus.AgentReact, LLM: llm})

	a.turn(context.Background(), userRequest("hi"))

	msgs := drainOutbox(a)
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1", len(msgs))
	}
	if msgs[0].Data["tokens_estimated"] != "true" {
		t.Errorf("tokens_estimated = %q, want true", msgs[0].Data["tokens_estimated"])
	}
}

func TestTurnGenerationFailure(t *testing.T) {
	llm := &stubLLM{err: providers.NewError("anthropic_direct", providers.KindNetwork, "connection refused")}
	a := New(Config{Role: bus.AgentCodeEditing, LLM: llm})

	a.turn(context.Background(), userRequest("break"))

	msgs := drainOutbox(a)
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1", len(msgs))
	}
	if msgs[0].Status != bus.StatusFailed {
		t.Errorf("status = %q, want failed", msgs[0].Status)
	}
	if !strings.Contains(msgs[0].Content, "generation failed") {
		t.Errorf("content = %q", msgs[0].Content)
	}
}

func TestTurnEmptyResponse(t *testing.T) {
	llm := &stubLLM{resp: &providers.GenerateResponse{}}
	a := New(Config{Role: bus.AgentReact, LLM: llm})

	a.turn(context.Background(), userRequest("hi"))

	msgs := drainOutbox(a)
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1", len(msgs))
	}
	if msgs[0].Status != bus.StatusFailed {
		t.Errorf("status = %q, want failed", msgs[0].Status)
	}
	if !strings.Contains(msgs[0].Content, "empty response") {
		t.Errorf("content = %q", msgs[0].Content)
	}
}

func TestTurnRunsToolCallsInOrder(t *testing.T) {
	reg := tools.NewRegistry(nil)
	echo := &echoTool{}
	if err := reg.Register(echo); err != nil {
		t.Fatal(err)
	}

	llm := &stubLLM{resp: &providers.GenerateResponse{
		Content: "running tools",
		ToolCalls: []providers.ToolCall{
			{Name: "echo", Arguments: map[string]any{"text": "first"}},
			{Name: "echo", Arguments: map[string]any{"text": "second"}},
		},
	}}
	a := New(Config{Role: bus.AgentCodeEditing, LLM: llm, Registry: reg, ToolsEnabled: true})

	src := userRequest("use the tool")
	src.RequestID = "req-tools"
	a.turn(context.Background(), src)

	if len(echo.calls) != 2 {
		t.Fatalf("tool ran %d times, want 2", len(echo.calls))
	}
	if echo.calls[0]["text"] != "first" || echo.calls[1]["text"] != "second" {
		t.Errorf("calls out of order: %v", echo.calls)
	}

	msgs := drainOutbox(a)
	// tool_call, tool_result per call, then the reply.
	if len(msgs) != 5 {
		t.Fatalf("got %d messages, want 5", len(msgs))
	}
	wantTypes := []string{"tool_call", "tool_result", "tool_call", "tool_result", "user_request_response"}
	for i, want := range wantTypes {
		if msgs[i].TaskType != want {
			t.Errorf("message %d: task_type = %q, want %q", i, msgs[i].TaskType, want)
		}
	}
	if msgs[1].Data["outcome"] != tools.OutcomeSuccess {
		t.Errorf("tool_result outcome = %q", msgs[1].Data["outcome"])
	}
	for i, msg := range msgs {
		if msg.RequestID != "req-tools" {
			t.Errorf("message %d request id = %q, want req-tools", i, msg.RequestID)
		}
	}

	reply := msgs[4]
	if !strings.Contains(reply.Content, "Tool Execution Results:") {
		t.Errorf("reply missing results section: %q", reply.Content)
	}
	if strings.Index(reply.Content, "first") > strings.Index(reply.Content, "second") {
		t.Error("results out of emission order")
	}
	if reply.Status != bus.StatusCompleted {
		t.Errorf("reply status = %q, want completed", reply.Status)
	}
}

func TestTurnToolErrorStillCompletes(t *testing.T) {
	reg := tools.NewRegistry(nil)
	if err := reg.Register(&echoTool{fail: true}); err != nil {
		t.Fatal(err)
	}

	llm := &stubLLM{resp: &providers.GenerateResponse{
		Content:   "trying",
		ToolCalls: []providers.ToolCall{{Name: "echo", Arguments: map[string]any{}}},
	}}
	a := New(Config{Role: bus.AgentReact, LLM: llm, Registry: reg, ToolsEnabled: true})

	a.turn(context.Background(), userRequest("go"))

	msgs := drainOutbox(a)
	if len(msgs) != 3 {
		t.Fatalf("got %d messages, want 3", len(msgs))
	}
	if msgs[1].Status != bus.StatusFailed || msgs[1].Data["outcome"] != tools.OutcomeNotFound {
		t.Errorf("tool_result = status %q outcome %q", msgs[1].Status, msgs[1].Data["outcome"])
	}
	reply := msgs[2]
	if reply.Status != bus.StatusCompleted {
		t.Errorf("reply status = %q, want completed", reply.Status)
	}
	if !strings.Contains(reply.Content, "error: not_found") {
		t.Errorf("reply missing error annotation: %q", reply.Content)
	}
}

func TestSupervisorDelegates(t *testing.T) {
	llm := &stubLLM{resp: &providers.GenerateResponse{
		Content: "DELEGATE_TO: code_editing\nTASK: implement\nINSTRUCTIONS: write the parser",
		Usage:   providers.Usage{TotalTokens: 5},
	}}
	a := New(Config{
		Role:  bus.AgentSupervisor,
		LLM:   llm,
		Peers: []string{bus.AgentCodeEditing, bus.AgentReact},
	})

	src := userRequest("build a parser")
	src.RequestID = "req-7"
	a.turn(context.Background(), src)

	msgs := drainOutbox(a)
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want delegation + reply", len(msgs))
	}
	delegated := msgs[0]
	if delegated.ToAgent != bus.AgentCodeEditing {
		t.Errorf("delegated to %q", delegated.ToAgent)
	}
	// The worker's reply targets from_agent; user keeps it out of the
	// supervisor's inbox.
	if delegated.FromAgent != bus.AgentUser {
		t.Errorf("delegated from %q, want user", delegated.FromAgent)
	}
	if delegated.TaskType != "implement" || delegated.Content != "write the parser" {
		t.Errorf("delegation = %q / %q", delegated.TaskType, delegated.Content)
	}
	if delegated.ReplyTo != src.ID {
		t.Errorf("delegation ReplyTo = %q, want %q", delegated.ReplyTo, src.ID)
	}
	if delegated.RequestID != "req-7" {
		t.Errorf("delegation RequestID = %q, want req-7", delegated.RequestID)
	}
}

func TestTurnSkipsGenerationForDeadRequest(t *testing.T) {
	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	tests := []struct {
		name string
		ctx  context.Context
	}{
		{"cancelled context", cancelled},
		{"reaped request", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			llm := &stubLLM{resp: &providers.GenerateResponse{Content: "never"}}
			a := New(Config{
				Role: bus.AgentReact,
				LLM:  llm,
				RequestCtx: func(requestID string) context.Context {
					return tt.ctx
				},
			})

			msg := userRequest("too late")
			msg.RequestID = "req-dead"
			a.turn(context.Background(), msg)

			if llm.calls != 0 {
				t.Errorf("llm called %d times after cancel, want 0", llm.calls)
			}
			msgs := drainOutbox(a)
			if len(msgs) != 1 || msgs[0].Status != bus.StatusFailed {
				t.Fatalf("msgs = %+v, want one failed reply", msgs)
			}
		})
	}
}

func TestDelegationUnknownTargetIgnored(t *testing.T) {
	llm := &stubLLM{resp: &providers.GenerateResponse{
		Content: "DELEGATE_TO: warehouse\nTASK: stock",
	}}
	a := New(Config{
		Role:  bus.AgentSupervisor,
		LLM:   llm,
		Peers: []string{bus.AgentCodeEditing},
	})

	a.turn(context.Background(), userRequest("hmm"))

	msgs := drainOutbox(a)
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want reply only", len(msgs))
	}
	if msgs[0].ToAgent != bus.AgentUser {
		t.Errorf("reply addressed to %q", msgs[0].ToAgent)
	}
}

func TestNonSupervisorNeverDelegates(t *testing.T) {
	llm := &stubLLM{resp: &providers.GenerateResponse{
		Content: "DELEGATE_TO: react\nTASK: ignored",
	}}
	a := New(Config{Role: bus.AgentCodeEditing, LLM: llm, Peers: []string{bus.AgentReact}})

	a.turn(context.Background(), userRequest("x"))

	msgs := drainOutbox(a)
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want reply only", len(msgs))
	}
}

func TestToolsOfferedOnlyWhenEnabled(t *testing.T) {
	reg := tools.NewRegistry(nil)
	if err := reg.Register(&echoTool{}); err != nil {
		t.Fatal(err)
	}
	llm := &stubLLM{resp: &providers.GenerateResponse{Content: "ok"}}

	withTools := New(Config{Role: bus.AgentReact, LLM: llm, Registry: reg, ToolsEnabled: true})
	withTools.turn(context.Background(), userRequest("a"))
	if len(llm.lastReq.Tools) != 1 {
		t.Errorf("tools offered = %d, want 1", len(llm.lastReq.Tools))
	}

	supervisor := New(Config{Role: bus.AgentSupervisor, LLM: llm, Registry: reg})
	supervisor.turn(context.Background(), userRequest("b"))
	if len(llm.lastReq.Tools) != 0 {
		t.Errorf("supervisor offered %d tools, want 0", len(llm.lastReq.Tools))
	}
}

func TestReceiveSaturation(t *testing.T) {
	a := New(Config{Role: bus.AgentReact, LLM: &stubLLM{}, InboxSize: 1})

	if err := a.Receive(userRequest("one")); err != nil {
		t.Fatalf("first Receive: %v", err)
	}
	if err := a.Receive(userRequest("two")); err != bus.ErrSaturated {
		t.Errorf("second Receive = %v, want ErrSaturated", err)
	}
	if a.InboxDepth() != 1 {
		t.Errorf("InboxDepth = %d, want 1", a.InboxDepth())
	}
}
