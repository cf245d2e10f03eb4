package tools

import "fmt"

// Outcome categories for tool executions. Every Result carries exactly one.
const (
	OutcomeSuccess          = "success"
	OutcomePermissionDenied = "permission_denied"
	OutcomeNotFound         = "not_found"
	OutcomeAlreadyExists    = "already_exists"
	OutcomeTimeout          = "timeout"
	OutcomeNetwork          = "network"
	OutcomeDisk             = "disk"
	OutcomeInvalidArguments = "invalid_arguments"
	OutcomeUnknown          = "unknown"
)

// Result is the unified return type from tool execution. Errors are carried
// in-band: they surface back to the LLM as tool-result text, never as a
// raised error past the agent.
type Result struct {
	Content string `json:"content"`            // payload sent back to the LLM
	IsError bool   `json:"is_error"`           // marks a categorized failure
	Outcome string `json:"outcome"`            // one of the Outcome* constants
	Err     error  `json:"-"`                  // underlying error, not serialized
}

func NewResult(content string) *Result {
	return &Result{Content: content, Outcome: OutcomeSuccess}
}

func ErrorResult(outcome, message string) *Result {
	return &Result{Content: message, IsError: true, Outcome: outcome}
}

func ErrorResultf(outcome, format string, args ...any) *Result {
	return ErrorResult(outcome, fmt.Sprintf(format, args...))
}

func (r *Result) WithError(err error) *Result {
	r.Err = err
	return r
}
