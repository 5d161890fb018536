// Package llm wraps the model backend: the completion interface, fault
// classification for remote calls, bounded retry with exponential backoff,
// and the middleware pipeline applied around the default backend.
package llm

import (
	"context"
	"fmt"

	"github.com/becomeliminal/pilot-go-sdk/core"
)

// Request carries one chat-completion invocation.
type Request struct {
	// Messages is the ordered conversation to complete.
	Messages []core.Message

	// Model identifies the backend model.
	Model string

	// Temperature controls sampling randomness.
	Temperature float64

	// MaxTokens is the maximum response tokens.
	MaxTokens int
}

// Completer is the chat-completion side of the model backend.
type Completer interface {
	Complete(ctx context.Context, req *Request) (string, error)
}

// FaultKind classifies a remote-call failure for the retry policy.
type FaultKind int

const (
	// FaultUnknown is an unclassified failure. Not retried.
	FaultUnknown FaultKind = iota

	// FaultRateLimited is a rate-limit rejection (HTTP 429). Retried with
	// backoff, and warned about once per call sequence.
	FaultRateLimited

	// FaultTransient is a transient server failure (HTTP 5xx). Retried with
	// backoff.
	FaultTransient

	// FaultPermanent is a permanent client failure (other 4xx). Never retried.
	FaultPermanent
)

func (k FaultKind) String() string {
	switch k {
	case FaultRateLimited:
		return "rate limited"
	case FaultTransient:
		return "transient server error"
	case FaultPermanent:
		return "permanent client error"
	default:
		return "unknown"
	}
}

// Classifier maps a backend error to a FaultKind.
type Classifier func(error) FaultKind

// TerminalError is the only fault that aborts an agent session: retries were
// exhausted, or the backend reported a permanent fault. It carries the last
// attempted operation and fault kind so the caller can diagnose without
// reading the conversation log.
type TerminalError struct {
	Op       string
	Kind     FaultKind
	Attempts int
	Err      error
}

func (e *TerminalError) Error() string {
	return fmt.Sprintf("%s failed after %d attempt(s) (%s): %v", e.Op, e.Attempts, e.Kind, e.Err)
}

func (e *TerminalError) Unwrap() error { return e.Err }
