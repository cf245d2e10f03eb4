package coordinator

import (
	"context"
	"log/slog"
	"sync"

	"github.com/nextlevelbuilder/goforge/internal/agent"
	"github.com/nextlevelbuilder/goforge/internal/bus"
	"github.com/nextlevelbuilder/goforge/internal/providers"
	"github.com/nextlevelbuilder/goforge/internal/tools"
)

// Config wires the coordinator's collaborators.
type Config struct {
	Router     *bus.Router
	LLM        *providers.Client
	Registry   *tools.Registry
	ProjectCtx *ProjectContext
	// ExtraAgents adds agent roles beyond the built-in three.
	ExtraAgents []string
	InboxSize   int
	Logger      *slog.Logger
}

// Coordinator owns the agent set and the shared project context. It wires
// each agent's outbox into the router and exposes the primitives the loop
// manager composes: request injection, model switching, and the activity
// counters quiescence detection samples.
type Coordinator struct {
	router     *bus.Router
	llm        *providers.Client
	projectCtx *ProjectContext
	agents     map[string]*agent.Agent
	log        *slog.Logger

	reqMu       sync.Mutex
	requestCtxs map[string]context.Context

	startOnce sync.Once
	wg        sync.WaitGroup
}

func New(cfg Config) *Coordinator {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	roles := []string{bus.AgentCodeEditing, bus.AgentReact}
	roles = append(roles, cfg.ExtraAgents...)

	c := &Coordinator{
		router:      cfg.Router,
		llm:         cfg.LLM,
		projectCtx:  cfg.ProjectCtx,
		agents:      make(map[string]*agent.Agent),
		requestCtxs: make(map[string]context.Context),
		log:         log,
	}

	// The supervisor delegates to every other agent and never runs tools
	// itself.
	c.addAgent(agent.New(agent.Config{
		Role:       bus.AgentSupervisor,
		LLM:        cfg.LLM,
		Peers:      roles,
		ProjectCtx: cfg.ProjectCtx,
		RequestCtx: c.requestContext,
		InboxSize:  cfg.InboxSize,
		Logger:     log,
	}))
	for _, role := range roles {
		c.addAgent(agent.New(agent.Config{
			Role:         role,
			LLM:          cfg.LLM,
			Registry:     cfg.Registry,
			ToolsEnabled: true,
			ProjectCtx:   cfg.ProjectCtx,
			RequestCtx:   c.requestContext,
			InboxSize:    cfg.InboxSize,
			Logger:       log,
		}))
	}

	return c
}

func (c *Coordinator) addAgent(a *agent.Agent) {
	c.agents[a.Role()] = a
	c.router.Register(a.Role(), a)
}

// Start launches the router, the agents, and the outbox drains. Idempotent.
func (c *Coordinator) Start(ctx context.Context) {
	c.startOnce.Do(func() {
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			c.router.Run(ctx)
		}()

		for _, a := range c.agents {
			a := a
			c.wg.Add(2)
			go func() {
				defer c.wg.Done()
				a.Run(ctx)
			}()
			go func() {
				defer c.wg.Done()
				c.drainOutbox(ctx, a)
			}()
		}
		c.log.Info("coordinator.started", "agents", len(c.agents))
	})
}

// Wait blocks until every goroutine launched by Start has exited.
func (c *Coordinator) Wait() { c.wg.Wait() }

func (c *Coordinator) drainOutbox(ctx context.Context, a *agent.Agent) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-a.Outbox():
			if err := c.router.Submit(msg); err != nil {
				c.log.Warn("coordinator.submit_failed",
					"from", msg.FromAgent, "to", msg.ToAgent, "error", err)
			}
		}
	}
}

// ProcessUserRequest injects one pending message addressed to the
// supervisor. ctx governs every LLM call and tool execution in the request's
// message chain: once it is cancelled, no further generation is issued for
// that request. requestID tags the chain for session attribution.
func (c *Coordinator) ProcessUserRequest(ctx context.Context, requestID, content string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if requestID != "" {
		c.reqMu.Lock()
		c.requestCtxs[requestID] = ctx
		c.reqMu.Unlock()
		if ctx.Done() != nil {
			context.AfterFunc(ctx, func() {
				c.reqMu.Lock()
				delete(c.requestCtxs, requestID)
				c.reqMu.Unlock()
			})
		}
	}

	msg := bus.NewMessage(bus.AgentUser, bus.AgentSupervisor, "user_request", content)
	msg.RequestID = requestID
	return c.router.Submit(msg)
}

// requestContext resolves a request id to its governing context. Returns nil
// for unknown ids, including requests whose context has already been
// cancelled and reaped.
func (c *Coordinator) requestContext(requestID string) context.Context {
	c.reqMu.Lock()
	defer c.reqMu.Unlock()
	return c.requestCtxs[requestID]
}

// SwitchModel swaps the LLM backend shared by all agents. In-flight turns
// finish under the previous backend.
func (c *Coordinator) SwitchModel(ctx context.Context, provider, model string) error {
	return c.llm.Switch(ctx, provider, model)
}

// SetUserListener installs the sink for messages addressed to the user.
func (c *Coordinator) SetUserListener(l bus.UserListener) {
	c.router.SetUserListener(l)
}

// ProjectContext returns the shared mutable project view.
func (c *Coordinator) ProjectContext() *ProjectContext { return c.projectCtx }

// PendingMessagesTotal sums all agent inbox and outbox depths plus the
// router queue depth.
func (c *Coordinator) PendingMessagesTotal() int {
	total := c.router.Depth()
	for _, a := range c.agents {
		total += a.InboxDepth() + a.OutboxDepth()
	}
	return total
}

// ActiveProcessingCount counts agents with a turn in flight.
func (c *Coordinator) ActiveProcessingCount() int {
	n := 0
	for _, a := range c.agents {
		if a.Processing() {
			n++
		}
	}
	return n
}
