package core

import (
	"time"

	"github.com/google/uuid"
)

// EventKind categorizes history events.
type EventKind string

const (
	// EventWorkflowStarted marks the beginning of a run.
	EventWorkflowStarted EventKind = "WORKFLOW_STARTED"
	// EventWorkflowCompleted marks a successful run.
	EventWorkflowCompleted EventKind = "WORKFLOW_COMPLETED"
	// EventWorkflowFailed marks a run that ended with an error.
	EventWorkflowFailed EventKind = "WORKFLOW_FAILED"
	// EventWorkflowStopped marks a run ended by an OS signal.
	EventWorkflowStopped EventKind = "WORKFLOW_STOPPED"

	// EventAgentStarted marks the first attempt of an agent invocation.
	EventAgentStarted EventKind = "AGENT_STARTED"
	// EventAgentRetried marks a failed attempt followed by another one.
	EventAgentRetried EventKind = "AGENT_RETRIED"
	// EventAgentResumed marks re-invocation after an interaction answer.
	EventAgentResumed EventKind = "AGENT_RESUMED"
	// EventAgentCompleted marks a successful agent invocation.
	EventAgentCompleted EventKind = "AGENT_COMPLETED"
	// EventAgentFailed marks an agent invocation that exhausted retries.
	EventAgentFailed EventKind = "AGENT_FAILED"

	// EventInteractionRequested marks a question being posed.
	EventInteractionRequested EventKind = "INTERACTION_REQUESTED"
	// EventInteractionResolved marks a question being answered.
	EventInteractionResolved EventKind = "INTERACTION_RESOLVED"
	// EventInteractionAutoAnswered marks a full-auto synthesized answer.
	EventInteractionAutoAnswered EventKind = "INTERACTION_AUTO_ANSWERED"
	// EventInteractionSubmitted is appended server-side when a browser
	// submits an answer, before the CLI has polled for it.
	EventInteractionSubmitted EventKind = "INTERACTION_SUBMITTED"
)

// ResponseSource tags where an interaction answer came from.
type ResponseSource string

const (
	// SourceLocal means the answer came from the local terminal or the
	// interaction file.
	SourceLocal ResponseSource = "local"
	// SourceRemote means the answer arrived through the relay.
	SourceRemote ResponseSource = "remote"
	// SourceAuto means full-auto mode synthesized the answer.
	SourceAuto ResponseSource = "auto"
)

// HistoryEvent is one entry of the audit log. After emission it is treated
// as immutable. The log is the single source of truth for what happened
// during a run: workflow lifecycle, agent lifecycle, interaction prompts and
// answers.
type HistoryEvent struct {
	ID        string    `json:"id"`
	Kind      EventKind `json:"event"`
	Timestamp time.Time `json:"timestamp"`

	Workflow string `json:"workflow,omitempty"`
	Agent    string `json:"agent,omitempty"`
	Attempt  int    `json:"attempt,omitempty"`

	Interaction *InteractionView `json:"interaction,omitempty"`
	Response    *Response        `json:"response,omitempty"`
	Source      ResponseSource   `json:"source,omitempty"`

	// Message carries error text or free-form detail for the event kind.
	Message string `json:"message,omitempty"`
}

// NewID generates a unique identifier for events and invocations.
func NewID() string { return uuid.NewString() }

// NewEvent creates a bare event of the given kind stamped with the current
// UTC time. Prefer the helper constructors for common categories.
func NewEvent(kind EventKind) HistoryEvent {
	return HistoryEvent{ID: NewID(), Kind: kind, Timestamp: time.Now().UTC()}
}

// NewWorkflowEvent creates a workflow lifecycle event.
func NewWorkflowEvent(kind EventKind, workflow, message string) HistoryEvent {
	e := NewEvent(kind)
	e.Workflow = workflow
	e.Message = message
	return e
}

// NewAgentEvent creates an agent lifecycle event for a given attempt.
func NewAgentEvent(kind EventKind, agent string, attempt int, message string) HistoryEvent {
	e := NewEvent(kind)
	e.Agent = agent
	e.Attempt = attempt
	e.Message = message
	return e
}

// NewInteractionRequestedEvent records a question being posed, including the
// full interaction metadata so remote observers can render it.
func NewInteractionRequestedEvent(in Interaction) HistoryEvent {
	e := NewEvent(EventInteractionRequested)
	v := ViewOf(in)
	e.Interaction = &v
	return e
}

// NewInteractionResolvedEvent records an answered question tagged with the
// source of the answer.
func NewInteractionResolvedEvent(in Interaction, resp Response, source ResponseSource) HistoryEvent {
	kind := EventInteractionResolved
	if source == SourceAuto {
		kind = EventInteractionAutoAnswered
	}
	e := NewEvent(kind)
	v := ViewOf(in)
	e.Interaction = &v
	e.Response = &resp
	e.Source = source
	return e
}
