package store

import (
	"context"
	"time"

	"github.com/hupe1980/agentrelay/core"
)

// DefaultTTL bounds how long an idle session (plus its event list and
// pending queue) survives. Every server interaction refreshes it.
const DefaultTTL = 30 * time.Minute

// SessionConfig holds the remotely adjustable run configuration.
type SessionConfig struct {
	FullAuto bool `json:"full_auto"`
	// AutoSelectDelaySec is the countdown before a full-auto run answers a
	// choice interaction with its first option.
	AutoSelectDelaySec int `json:"auto_select_delay"`
	// Configured marks a config that was explicitly set for the session.
	// An unset config never overrides the workflow's local settings.
	Configured bool `json:"configured,omitempty"`
}

// Session is the server-side record of one workflow run's remote-visible
// state. The token is the sole capability required to read or answer it.
type Session struct {
	Token        string        `json:"token"`
	WorkflowName string        `json:"workflow_name"`
	CLIConnected bool          `json:"cli_connected"`
	Config       SessionConfig `json:"config"`
	CreatedAt    time.Time     `json:"created_at"`
}

// PendingAnswer is one browser-submitted interaction response awaiting
// delivery to the CLI. It stays queued until the CLI confirms receipt, so
// delivery is at-least-once.
type PendingAnswer struct {
	ID          string        `json:"id"`
	Slug        string        `json:"slug"`
	TargetKey   string        `json:"target_key"`
	Response    core.Response `json:"response"`
	SubmittedAt time.Time     `json:"submitted_at"`
}

// SessionStore persists relay sessions. All session state shares one TTL:
// a session that outlives it is indistinguishable from one that never
// existed (core.ErrSessionNotFound). Any successful operation on a live
// session refreshes the TTL.
//
// The event list and answer queue are the only resources shared across
// processes; implementations must make each method atomic so callers need
// no additional locking.
type SessionStore interface {
	// PutSession creates or replaces a session record.
	PutSession(ctx context.Context, s Session) error
	// GetSession returns a live session or core.ErrSessionNotFound.
	GetSession(ctx context.Context, token string) (Session, error)
	// SetCLIConnected flips the CLI connection flag.
	SetCLIConnected(ctx context.Context, token string, connected bool) error
	// SetConfig replaces the session's remote configuration.
	SetConfig(ctx context.Context, token string, cfg SessionConfig) error
	// DeleteSession removes the session with its events and queue.
	DeleteSession(ctx context.Context, token string) error

	// ReplaceEvents wholesale replaces the session's event list (newest
	// first). Used by session_init and history_sync.
	ReplaceEvents(ctx context.Context, token string, events []core.HistoryEvent) error
	// PrependEvent adds one event to the front of the list.
	PrependEvent(ctx context.Context, token string, ev core.HistoryEvent) error
	// Events returns the full event list, newest first.
	Events(ctx context.Context, token string) ([]core.HistoryEvent, error)

	// PushAnswer enqueues an answer at the tail of the pending queue.
	PushAnswer(ctx context.Context, token string, ans PendingAnswer) error
	// WaitAnswer blocks up to wait for the queue to be non-empty and
	// returns the front answer without removing it. It returns
	// core.ErrNoAnswer when the budget elapses with an empty queue.
	WaitAnswer(ctx context.Context, token string, wait time.Duration) (PendingAnswer, error)
	// ConfirmAnswer removes a delivered answer from the queue. Confirming
	// an already removed answer is not an error.
	ConfirmAnswer(ctx context.Context, token string, answerID string) error

	// PurgeExpired removes sessions past their TTL, returning how many
	// were dropped. Expiry is also enforced lazily on access.
	PurgeExpired(ctx context.Context) (int, error)
}
