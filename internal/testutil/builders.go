package testutil

import (
	"time"

	"github.com/hupe1980/agentrelay/core"
)

// EventBuilder provides a fluent helper for constructing history events in
// tests. Chain only the parts you need; sensible defaults are applied.
//
//	ev := NewEventBuilder(core.EventAgentStarted).Agent("planner").Attempt(1).Build()
type EventBuilder struct {
	kind      core.EventKind
	id        string
	timestamp time.Time
	workflow  string
	agent     string
	attempt   int
	message   string
	source    core.ResponseSource
	response  *core.Response
}

// NewEventBuilder creates a builder for the given event kind.
func NewEventBuilder(kind core.EventKind) *EventBuilder {
	return &EventBuilder{kind: kind}
}

// ID overrides the auto-generated event ID (chainable).
func (b *EventBuilder) ID(id string) *EventBuilder { b.id = id; return b }

// At overrides the event timestamp (chainable).
func (b *EventBuilder) At(t time.Time) *EventBuilder { b.timestamp = t; return b }

// Workflow sets the workflow name (chainable).
func (b *EventBuilder) Workflow(name string) *EventBuilder { b.workflow = name; return b }

// Agent sets the agent name (chainable).
func (b *EventBuilder) Agent(name string) *EventBuilder { b.agent = name; return b }

// Attempt sets the attempt counter (chainable).
func (b *EventBuilder) Attempt(n int) *EventBuilder { b.attempt = n; return b }

// Message sets the free-form detail text (chainable).
func (b *EventBuilder) Message(msg string) *EventBuilder { b.message = msg; return b }

// Source tags the event's answer source (chainable).
func (b *EventBuilder) Source(src core.ResponseSource) *EventBuilder { b.source = src; return b }

// Response attaches an interaction response (chainable).
func (b *EventBuilder) Response(resp core.Response) *EventBuilder { b.response = &resp; return b }

// Build constructs the core.HistoryEvent value.
func (b *EventBuilder) Build() core.HistoryEvent {
	ev := core.NewEvent(b.kind)
	if b.id != "" {
		ev.ID = b.id
	}
	if !b.timestamp.IsZero() {
		ev.Timestamp = b.timestamp
	}
	ev.Workflow = b.workflow
	ev.Agent = b.agent
	ev.Attempt = b.attempt
	ev.Message = b.message
	ev.Source = b.source
	ev.Response = b.response
	return ev
}

// Text builds a text interaction with sane defaults.
func Text(prompt string) *core.TextInteraction {
	return &core.TextInteraction{
		InteractionBase: core.InteractionBase{Prompt: prompt},
	}
}

// Choice builds a single-select choice interaction whose option keys equal
// their labels.
func Choice(prompt string, keys ...string) *core.ChoiceInteraction {
	options := make([]core.ChoiceOption, len(keys))
	for i, key := range keys {
		options[i] = core.ChoiceOption{Key: key, Label: key}
	}
	return &core.ChoiceInteraction{
		InteractionBase: core.InteractionBase{Prompt: prompt},
		Options:         options,
	}
}

// Confirm builds a confirm interaction with the default labels.
func Confirm(prompt string) *core.ConfirmInteraction {
	return &core.ConfirmInteraction{
		InteractionBase: core.InteractionBase{Prompt: prompt},
	}
}
