package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/nextlevelbuilder/goforge/internal/bus"
	"github.com/nextlevelbuilder/goforge/internal/loop"
	"github.com/nextlevelbuilder/goforge/internal/store"
	"github.com/nextlevelbuilder/goforge/pkg/protocol"
)

// syntheticLadderStep is the cadence of baseline progress frames emitted
// while the real loop runs. Real events supersede synthetic ones; progress
// monotonicity makes interleavings safe.
const syntheticLadderStep = 2 * time.Second

// Session is one WebSocket conversation bound to a project. It owns the
// connection, an append-only message log, and at most one active loop.
type Session struct {
	ID        string
	ProjectID string

	conn     *websocket.Conn
	loops    *loop.Manager
	recorder *store.Recorder
	log      *slog.Logger

	mu           sync.Mutex
	progress     int
	requestID    string
	createdAt    time.Time
	lastActivity time.Time
	messages     []*protocol.Frame

	cancelSynthetic context.CancelFunc
}

func NewSession(conn *websocket.Conn, projectID string, loops *loop.Manager, recorder *store.Recorder, log *slog.Logger) *Session {
	id := uuid.NewString()
	return &Session{
		ID:        id,
		ProjectID: projectID,
		conn:      conn,
		loops:     loops,
		recorder:  recorder,
		log:       log.With("session_id", id),
		createdAt: time.Now(),
	}
}

// Run drives the session until the connection closes. On disconnect the
// bound loop (if any) is cancelled.
func (s *Session) Run(ctx context.Context) {
	s.send(protocol.NewFrame(protocol.FrameConnection, s.ID).
		WithStatus("connected").
		WithProject(s.ProjectID))

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			s.log.Info("session.disconnected", "error", err)
			break
		}

		var input protocol.ClientInput
		if err := json.Unmarshal(data, &input); err != nil {
			s.send(protocol.NewFrame(protocol.FrameError, s.ID).
				WithContent("malformed input frame").
				WithMetadata("kind", "invalid_arguments"))
			continue
		}
		s.handleInput(ctx, input)
	}

	s.stopSynthetic()
	s.cancelBoundLoop()
}

func (s *Session) handleInput(ctx context.Context, input protocol.ClientInput) {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()

	if input.Message == "" {
		s.send(protocol.NewFrame(protocol.FrameError, s.ID).
			WithContent("empty message").
			WithMetadata("kind", "invalid_arguments"))
		return
	}

	s.send(protocol.NewFrame(protocol.FrameMessageReceived, s.ID).
		WithContent(input.Message))
	s.recorder.RecordUserMessage(ctx, s.ProjectID, input.Message)

	// One loop per session at a time; a new input while a loop is active
	// feeds the same conversation without starting another loop.
	s.mu.Lock()
	bound := s.requestID
	s.mu.Unlock()

	if bound != "" {
		if _, active := s.loops.GetLoop(bound); active {
			s.send(protocol.NewFrame(protocol.FrameStatus, s.ID).
				WithStatus("processing"))
			return
		}
	}

	requestID := uuid.NewString()
	l, err := s.loops.StartLoop(ctx, requestID, input.Message)
	if err != nil {
		s.send(protocol.NewFrame(protocol.FrameError, s.ID).
			WithContent(err.Error()))
		return
	}

	s.mu.Lock()
	s.requestID = requestID
	s.progress = 0
	s.mu.Unlock()

	s.send(protocol.NewFrame(protocol.FrameStatus, s.ID).
		WithStatus("processing").
		WithProgress(10))

	s.startSynthetic(ctx)
	go s.watchResult(l)
}

// startSynthetic emits a baseline progress ladder so clients see motion
// before the first real agent event arrives.
func (s *Session) startSynthetic(ctx context.Context) {
	s.stopSynthetic()
	ladderCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancelSynthetic = cancel
	s.mu.Unlock()

	go func() {
		for _, step := range []int{20, 40, 60, 80, 95} {
			select {
			case <-ladderCtx.Done():
				return
			case <-time.After(syntheticLadderStep):
				s.send(protocol.NewFrame(protocol.FrameProgress, s.ID).
					WithProgress(step))
			}
		}
	}()
}

func (s *Session) stopSynthetic() {
	s.mu.Lock()
	cancel := s.cancelSynthetic
	s.cancelSynthetic = nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// HandleUserMessage translates one router emission addressed to the user
// into frames, preserving delivery order.
func (s *Session) HandleUserMessage(msg *bus.AgentMessage) {
	switch msg.TaskType {
	case "tool_call":
		s.send(protocol.NewFrame(protocol.FrameToolCall, s.ID).
			WithContent(msg.Content).
			WithAgent(msg.FromAgent))

	case "tool_result":
		frame := protocol.NewFrame(protocol.FrameToolResult, s.ID).
			WithContent(msg.Content).
			WithAgent(msg.FromAgent)
		if outcome, ok := msg.Data["outcome"]; ok {
			frame = frame.WithMetadata("outcome", outcome)
		}
		s.send(frame)

	default:
		if msg.Content == "" {
			return
		}
		s.stopSynthetic()
		s.send(protocol.NewFrame(protocol.FrameAgentResponse, s.ID).
			WithContent(msg.Content).
			WithAgent(msg.FromAgent).
			WithStatus(msg.Status))
		s.recorder.RecordAssistantMessage(context.Background(), s.ProjectID, msg.Content, msg.Data)
	}
}

// watchResult waits for the bound loop's terminal state and emits exactly
// one of completion, cancelled, or error.
func (s *Session) watchResult(l *loop.AgentLoop) {
	res, ok := <-l.Result()
	if !ok {
		return
	}
	s.stopSynthetic()

	switch {
	case res.Status == loop.StatusCompleted:
		s.send(protocol.NewFrame(protocol.FrameCompletion, s.ID).
			WithStatus(res.Status).
			WithMetadata("duration", res.Duration.String()))
		s.send(protocol.NewFrame(protocol.FrameResponseComplete, s.ID).
			WithProgress(100))

	case res.Status == loop.StatusFailed && res.Error == "cancelled":
		s.send(protocol.NewFrame(protocol.FrameCancelled, s.ID).
			WithStatus(res.Status))

	default:
		frame := protocol.NewFrame(protocol.FrameError, s.ID).
			WithContent(res.Error).
			WithStatus(res.Status)
		if res.Status == loop.StatusTimeout {
			frame = frame.WithMetadata("kind", "timeout")
		}
		s.send(frame)
	}
}

// BoundRequest returns the request id of the loop this session started, or
// empty before the first loop.
func (s *Session) BoundRequest() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requestID
}

// Cancel fires the bound loop's cancellation, if one is active.
func (s *Session) Cancel() error {
	s.mu.Lock()
	bound := s.requestID
	s.mu.Unlock()
	if bound == "" {
		return loop.ErrNotFound
	}
	return s.loops.CancelLoop(bound)
}

func (s *Session) cancelBoundLoop() {
	s.mu.Lock()
	bound := s.requestID
	s.mu.Unlock()
	if bound != "" {
		if err := s.loops.CancelLoop(bound); err == nil {
			s.log.Info("session.loop_cancelled", "request_id", bound)
		}
	}
}

// send stamps, records, and writes one frame. Progress never decreases
// within a session; a stale value is raised to the watermark.
func (s *Session) send(frame *protocol.Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if frame.Progress != nil {
		if *frame.Progress < s.progress {
			p := s.progress
			frame.Progress = &p
		} else {
			s.progress = *frame.Progress
		}
	}
	if frame.ProjectID == "" {
		frame.ProjectID = s.ProjectID
	}

	s.messages = append(s.messages, frame)
	if err := s.conn.WriteJSON(frame); err != nil {
		s.log.Warn("session.write_failed", "type", frame.Type, "error", err)
	}
}
