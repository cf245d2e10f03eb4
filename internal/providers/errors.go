package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Error kinds. All generation errors are terminal for the current call;
// the caller decides whether to retry.
const (
	KindInvalidArguments = "invalid_arguments"
	KindNetwork          = "network_error"
	KindAPI              = "api_error"
	KindAuth             = "auth_error"
	KindQuota            = "quota_exceeded"
	KindParse            = "parse_error"
	KindTimeout          = "timeout"
	KindCancelled        = "cancelled"
	KindUnsupported      = "unsupported_model"
	KindUnknown          = "unknown"
)

// Error carries a kind tag alongside the provider that produced it.
type Error struct {
	Kind     string
	Provider string
	Message  string
	Err      error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Provider, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %s", e.Provider, e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError builds a tagged provider error.
func NewError(provider, kind, message string) *Error {
	return &Error{Kind: kind, Provider: provider, Message: message}
}

// WrapError tags an underlying error with a kind.
func WrapError(provider, kind string, err error) *Error {
	return &Error{Kind: kind, Provider: provider, Err: err}
}

// KindOf extracts the error kind, mapping context errors to their kinds and
// anything untagged to KindUnknown.
func KindOf(err error) string {
	if err == nil {
		return ""
	}
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	if errors.Is(err, context.Canceled) {
		return KindCancelled
	}
	return KindUnknown
}

// classifyStatus maps an HTTP status code from a provider API to a kind.
func classifyStatus(status int) string {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return KindAuth
	case status == http.StatusTooManyRequests:
		return KindQuota
	case status == http.StatusNotFound:
		return KindUnsupported
	case status >= 500:
		return KindNetwork
	default:
		return KindAPI
	}
}

// httpError builds a tagged error from a non-200 provider response. The body
// is truncated so log lines stay bounded.
func httpError(provider string, status int, body []byte) *Error {
	msg := string(body)
	if len(msg) > 512 {
		msg = msg[:512]
	}
	return NewError(provider, classifyStatus(status), fmt.Sprintf("status %d: %s", status, msg))
}
