// Package sqlite provides a durable SessionStore backed by a SQLite
// database, suitable for a relay server that must survive restarts. Session
// TTL is tracked in an expires_at column and enforced both lazily on access
// and by PurgeExpired sweeps.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/store"
	_ "modernc.org/sqlite"
)

// waitPollInterval is how often WaitAnswer re-checks an empty queue. The
// store contract only promises a return within the wait budget, so a
// bounded poll is sufficient.
const waitPollInterval = 100 * time.Millisecond

// Store is a SQLite-backed SessionStore.
type Store struct {
	db  *sql.DB
	ttl time.Duration
}

// Options configures the store.
type Options struct {
	TTL time.Duration
}

// New opens (or creates) the database at dbPath and runs migrations.
func New(dbPath string, optFns ...func(o *Options)) (*Store, error) {
	opts := Options{TTL: store.DefaultTTL}
	for _, fn := range optFns {
		fn(&opts)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open session database: %w", err)
	}

	s := &Store{db: db, ttl: opts.TTL}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

var _ store.SessionStore = (*Store)(nil)

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		token TEXT PRIMARY KEY,
		workflow_name TEXT NOT NULL,
		cli_connected INTEGER NOT NULL DEFAULT 0,
		config_json TEXT NOT NULL DEFAULT '{}',
		created_at TIMESTAMP NOT NULL,
		expires_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS session_events (
		token TEXT NOT NULL REFERENCES sessions(token) ON DELETE CASCADE,
		seq INTEGER NOT NULL,
		payload TEXT NOT NULL,
		PRIMARY KEY (token, seq)
	);

	CREATE TABLE IF NOT EXISTS pending_answers (
		id TEXT PRIMARY KEY,
		token TEXT NOT NULL REFERENCES sessions(token) ON DELETE CASCADE,
		payload TEXT NOT NULL,
		submitted_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_pending_answers_token ON pending_answers(token, submitted_at);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("migrate session database: %w", err)
	}
	return nil
}

// touch refreshes the TTL of a live session and reports whether it exists.
func (s *Store) touch(ctx context.Context, token string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET expires_at = ? WHERE token = ? AND expires_at > ?`,
		time.Now().Add(s.ttl).UTC(), token, time.Now().UTC())
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		// Expired rows are removed eagerly so the token cannot resurface.
		s.deleteSession(ctx, token)
		return core.ErrSessionNotFound
	}
	return nil
}

// PutSession implements store.SessionStore.
func (s *Store) PutSession(ctx context.Context, sess store.Session) error {
	cfg, err := json.Marshal(sess.Config)
	if err != nil {
		return fmt.Errorf("serialize session config: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (token, workflow_name, cli_connected, config_json, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(token) DO UPDATE SET
			workflow_name = excluded.workflow_name,
			cli_connected = excluded.cli_connected,
			config_json = excluded.config_json,
			expires_at = excluded.expires_at`,
		sess.Token, sess.WorkflowName, sess.CLIConnected, string(cfg),
		sess.CreatedAt.UTC(), time.Now().Add(s.ttl).UTC())
	return err
}

// GetSession implements store.SessionStore.
func (s *Store) GetSession(ctx context.Context, token string) (store.Session, error) {
	if err := s.touch(ctx, token); err != nil {
		return store.Session{}, err
	}
	var (
		sess    store.Session
		cfgJSON string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT token, workflow_name, cli_connected, config_json, created_at FROM sessions WHERE token = ?`,
		token).Scan(&sess.Token, &sess.WorkflowName, &sess.CLIConnected, &cfgJSON, &sess.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Session{}, core.ErrSessionNotFound
	}
	if err != nil {
		return store.Session{}, err
	}
	if err := json.Unmarshal([]byte(cfgJSON), &sess.Config); err != nil {
		return store.Session{}, fmt.Errorf("parse session config: %w", err)
	}
	return sess, nil
}

// SetCLIConnected implements store.SessionStore.
func (s *Store) SetCLIConnected(ctx context.Context, token string, connected bool) error {
	if err := s.touch(ctx, token); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `UPDATE sessions SET cli_connected = ? WHERE token = ?`, connected, token)
	return err
}

// SetConfig implements store.SessionStore.
func (s *Store) SetConfig(ctx context.Context, token string, cfg store.SessionConfig) error {
	if err := s.touch(ctx, token); err != nil {
		return err
	}
	raw, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("serialize session config: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `UPDATE sessions SET config_json = ? WHERE token = ?`, string(raw), token)
	return err
}

// DeleteSession implements store.SessionStore.
func (s *Store) DeleteSession(ctx context.Context, token string) error {
	s.deleteSession(ctx, token)
	return nil
}

func (s *Store) deleteSession(ctx context.Context, token string) {
	// Best effort; foreign keys may be disabled, so children are removed
	// explicitly.
	s.db.ExecContext(ctx, `DELETE FROM session_events WHERE token = ?`, token)
	s.db.ExecContext(ctx, `DELETE FROM pending_answers WHERE token = ?`, token)
	s.db.ExecContext(ctx, `DELETE FROM sessions WHERE token = ?`, token)
}

// ReplaceEvents implements store.SessionStore.
func (s *Store) ReplaceEvents(ctx context.Context, token string, events []core.HistoryEvent) error {
	if err := s.touch(ctx, token); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM session_events WHERE token = ?`, token); err != nil {
		return err
	}
	for i, ev := range events {
		payload, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("serialize event: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO session_events (token, seq, payload) VALUES (?, ?, ?)`,
			token, i, string(payload)); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// PrependEvent implements store.SessionStore. Events are kept newest-first
// by assigning descending sequence numbers to new arrivals.
func (s *Store) PrependEvent(ctx context.Context, token string, ev core.HistoryEvent) error {
	if err := s.touch(ctx, token); err != nil {
		return err
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("serialize event: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO session_events (token, seq, payload)
		VALUES (?, (SELECT COALESCE(MIN(seq), 1) - 1 FROM session_events WHERE token = ?), ?)`,
		token, token, string(payload))
	return err
}

// Events implements store.SessionStore.
func (s *Store) Events(ctx context.Context, token string) ([]core.HistoryEvent, error) {
	if err := s.touch(ctx, token); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM session_events WHERE token = ? ORDER BY seq ASC`, token)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []core.HistoryEvent
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var ev core.HistoryEvent
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			continue
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// PushAnswer implements store.SessionStore.
func (s *Store) PushAnswer(ctx context.Context, token string, ans store.PendingAnswer) error {
	if err := s.touch(ctx, token); err != nil {
		return err
	}
	payload, err := json.Marshal(ans)
	if err != nil {
		return fmt.Errorf("serialize pending answer: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO pending_answers (id, token, payload, submitted_at) VALUES (?, ?, ?, ?)`,
		ans.ID, token, string(payload), ans.SubmittedAt.UTC())
	return err
}

// WaitAnswer implements store.SessionStore.
func (s *Store) WaitAnswer(ctx context.Context, token string, wait time.Duration) (store.PendingAnswer, error) {
	deadline := time.Now().Add(wait)
	for {
		if err := s.touch(ctx, token); err != nil {
			return store.PendingAnswer{}, err
		}
		var payload string
		err := s.db.QueryRowContext(ctx,
			`SELECT payload FROM pending_answers WHERE token = ? ORDER BY submitted_at ASC, id ASC LIMIT 1`,
			token).Scan(&payload)
		switch {
		case err == nil:
			var ans store.PendingAnswer
			if err := json.Unmarshal([]byte(payload), &ans); err != nil {
				return store.PendingAnswer{}, fmt.Errorf("parse pending answer: %w", err)
			}
			return ans, nil
		case errors.Is(err, sql.ErrNoRows):
			// fall through to wait
		default:
			return store.PendingAnswer{}, err
		}

		if time.Now().After(deadline) {
			return store.PendingAnswer{}, core.ErrNoAnswer
		}
		select {
		case <-ctx.Done():
			return store.PendingAnswer{}, ctx.Err()
		case <-time.After(waitPollInterval):
		}
	}
}

// ConfirmAnswer implements store.SessionStore.
func (s *Store) ConfirmAnswer(ctx context.Context, token string, answerID string) error {
	if err := s.touch(ctx, token); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM pending_answers WHERE token = ? AND id = ?`, token, answerID)
	return err
}

// PurgeExpired implements store.SessionStore.
func (s *Store) PurgeExpired(ctx context.Context) (int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT token FROM sessions WHERE expires_at <= ?`, time.Now().UTC())
	if err != nil {
		return 0, err
	}
	var tokens []string
	for rows.Next() {
		var token string
		if err := rows.Scan(&token); err != nil {
			rows.Close()
			return 0, err
		}
		tokens = append(tokens, token)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	for _, token := range tokens {
		s.deleteSession(ctx, token)
	}
	return len(tokens), nil
}
