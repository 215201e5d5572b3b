package core

import (
	"errors"
	"fmt"
)

// ErrInteractionDepthExceeded is returned when an agent keeps requesting
// interactions past the allowed chain depth. It is fatal and never retried.
var ErrInteractionDepthExceeded = errors.New("interaction depth exceeded")

// ErrSessionNotFound is returned by the relay for unknown or expired
// session tokens. An expired session is indistinguishable from one that
// never existed.
var ErrSessionNotFound = errors.New("session not found or expired")

// ErrCLIDisconnected is returned when an answer is submitted for a session
// whose CLI is not currently connected.
var ErrCLIDisconnected = errors.New("workflow process is not connected")

// ErrNoAnswer indicates a poll returned without a queued answer.
var ErrNoAnswer = errors.New("no pending answer")

// ErrRunActive is returned when a second run is started for a workflow
// directory that already has a live run in this process.
var ErrRunActive = errors.New("a run is already active for this workflow directory")

// ValidationError reports a malformed interaction or workflow input. It is
// surfaced immediately and never retried.
type ValidationError struct {
	Field  string
	Reason string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Reason)
}

// AgentExecutionError records an agent invocation that exhausted its retry
// budget. Attempts holds the error of every attempt in order; the last one
// is the cause.
type AgentExecutionError struct {
	Agent    string
	Attempts []error
}

// Error implements the error interface.
func (e *AgentExecutionError) Error() string {
	return fmt.Sprintf("agent %q failed after %d attempt(s): %v", e.Agent, len(e.Attempts), e.Attempts[len(e.Attempts)-1])
}

// Unwrap exposes the final attempt's error for errors.Is/As.
func (e *AgentExecutionError) Unwrap() error {
	return e.Attempts[len(e.Attempts)-1]
}
