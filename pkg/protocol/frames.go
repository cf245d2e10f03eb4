package protocol

import "time"

// ProtocolVersion is bumped on breaking changes to the frame shape.
const ProtocolVersion = 1

// Frame types pushed from server to client. Clients must ignore unknown types.
const (
	FrameConnection       = "connection"
	FrameStatus           = "status"
	FrameProgress         = "progress"
	FrameAgentResponse    = "agent_response"
	FrameAgentChunk       = "agent_chunk"
	FrameToolCall         = "tool_call"
	FrameToolResult       = "tool_result"
	FrameMessageReceived  = "message_received"
	FrameResponseComplete = "response_complete"
	FrameCompletion       = "completion"
	FrameCancelled        = "cancelled"
	FrameError            = "error"
	FrameDebug            = "debug"
)

// Frame is a single server-to-client message on the streaming session.
// Timestamp is RFC 3339 UTC; Progress, when set, is in [0,100] and
// non-decreasing within a single request.
type Frame struct {
	Type      string         `json:"type"`
	Content   string         `json:"content,omitempty"`
	SessionID string         `json:"session_id"`
	ProjectID string         `json:"project_id,omitempty"`
	Timestamp string         `json:"timestamp"`
	Status    string         `json:"status,omitempty"`
	Progress  *int           `json:"progress,omitempty"`
	AgentType string         `json:"agent_type,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// ClientInput is a client-to-server message. Message is required and non-empty.
type ClientInput struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id,omitempty"`
	ProjectID string `json:"project_id,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
}

// NewFrame creates a frame stamped with the current UTC time.
func NewFrame(frameType, sessionID string) *Frame {
	return &Frame{
		Type:      frameType,
		SessionID: sessionID,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// WithContent sets the textual payload.
func (f *Frame) WithContent(content string) *Frame {
	f.Content = content
	return f
}

// WithStatus sets the status field.
func (f *Frame) WithStatus(status string) *Frame {
	f.Status = status
	return f
}

// WithProgress sets the progress field, clamped to [0,100].
func (f *Frame) WithProgress(p int) *Frame {
	if p < 0 {
		p = 0
	}
	if p > 100 {
		p = 100
	}
	f.Progress = &p
	return f
}

// WithProject sets the bound project id.
func (f *Frame) WithProject(projectID string) *Frame {
	f.ProjectID = projectID
	return f
}

// WithAgent sets the originating agent role.
func (f *Frame) WithAgent(agentType string) *Frame {
	f.AgentType = agentType
	return f
}

// WithMetadata merges a key into the frame metadata.
func (f *Frame) WithMetadata(key string, value any) *Frame {
	if f.Metadata == nil {
		f.Metadata = make(map[string]any)
	}
	f.Metadata[key] = value
	return f
}
