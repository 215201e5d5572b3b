package relay

import (
	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/store"
)

// Wire bodies shared by the client and the server. All endpoints speak
// JSON; the session token is the only access control.

// InitRequest establishes a session and seeds the server's event list with
// the CLI's authoritative history. Resending it fully resets the server
// copy, making the call idempotent.
type InitRequest struct {
	Token        string              `json:"token"`
	WorkflowName string              `json:"workflow_name"`
	History      []core.HistoryEvent `json:"history"`
}

// EventRequest appends one event to the session's event list.
type EventRequest struct {
	Token string            `json:"token"`
	Event core.HistoryEvent `json:"event"`
}

// SyncRequest wholesale replaces the session's event list, used when the
// on-disk log was edited by hand.
type SyncRequest struct {
	Token   string              `json:"token"`
	History []core.HistoryEvent `json:"history"`
}

// EndRequest marks the session's CLI as disconnected without deleting the
// session; answers may still queue for a reconnect within the TTL.
type EndRequest struct {
	Token  string `json:"token"`
	Reason string `json:"reason"`
}

// SubmitRequest is a browser-submitted interaction answer.
type SubmitRequest struct {
	Slug      string        `json:"slug"`
	TargetKey string        `json:"target_key"`
	Response  core.Response `json:"response"`
}

// HistoryResponse is the browser's full view of a session: the event list
// plus connection and config status.
type HistoryResponse struct {
	WorkflowName string              `json:"workflow_name"`
	CLIConnected bool                `json:"cli_connected"`
	Config       store.SessionConfig `json:"config"`
	Events       []core.HistoryEvent `json:"events"`
}
