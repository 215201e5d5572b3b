// Package inmem provides a volatile SessionStore for tests and single
// process deployments. All methods are safe for concurrent access.
package inmem

import (
	"context"
	"sync"
	"time"

	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/store"
)

// waitPollInterval is how often WaitAnswer re-checks an empty queue.
const waitPollInterval = 25 * time.Millisecond

type record struct {
	session   store.Session
	events    []core.HistoryEvent
	queue     []store.PendingAnswer
	expiresAt time.Time
}

// Store is an in-memory SessionStore implementation.
type Store struct {
	mu       sync.Mutex
	ttl      time.Duration
	now      func() time.Time
	sessions map[string]*record
}

// Options configures the in-memory store.
type Options struct {
	TTL time.Duration
	// Now allows tests to control time.
	Now func() time.Time
}

// New constructs an empty in-memory session store.
func New(optFns ...func(o *Options)) *Store {
	opts := Options{TTL: store.DefaultTTL, Now: time.Now}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Store{ttl: opts.TTL, now: opts.Now, sessions: map[string]*record{}}
}

var _ store.SessionStore = (*Store)(nil)

// live returns the record for token, enforcing expiry lazily. Caller holds mu.
func (s *Store) live(token string) (*record, error) {
	rec, ok := s.sessions[token]
	if !ok {
		return nil, core.ErrSessionNotFound
	}
	if s.now().After(rec.expiresAt) {
		delete(s.sessions, token)
		return nil, core.ErrSessionNotFound
	}
	rec.expiresAt = s.now().Add(s.ttl)
	return rec, nil
}

// PutSession implements store.SessionStore.
func (s *Store) PutSession(_ context.Context, sess store.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.sessions[sess.Token]
	if !ok || s.now().After(rec.expiresAt) {
		rec = &record{}
		s.sessions[sess.Token] = rec
	}
	rec.session = sess
	rec.expiresAt = s.now().Add(s.ttl)
	return nil
}

// GetSession implements store.SessionStore.
func (s *Store) GetSession(_ context.Context, token string) (store.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, err := s.live(token)
	if err != nil {
		return store.Session{}, err
	}
	return rec.session, nil
}

// SetCLIConnected implements store.SessionStore.
func (s *Store) SetCLIConnected(_ context.Context, token string, connected bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, err := s.live(token)
	if err != nil {
		return err
	}
	rec.session.CLIConnected = connected
	return nil
}

// SetConfig implements store.SessionStore.
func (s *Store) SetConfig(_ context.Context, token string, cfg store.SessionConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, err := s.live(token)
	if err != nil {
		return err
	}
	rec.session.Config = cfg
	return nil
}

// DeleteSession implements store.SessionStore.
func (s *Store) DeleteSession(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, token)
	return nil
}

// ReplaceEvents implements store.SessionStore.
func (s *Store) ReplaceEvents(_ context.Context, token string, events []core.HistoryEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, err := s.live(token)
	if err != nil {
		return err
	}
	rec.events = make([]core.HistoryEvent, len(events))
	copy(rec.events, events)
	return nil
}

// PrependEvent implements store.SessionStore.
func (s *Store) PrependEvent(_ context.Context, token string, ev core.HistoryEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, err := s.live(token)
	if err != nil {
		return err
	}
	rec.events = append([]core.HistoryEvent{ev}, rec.events...)
	return nil
}

// Events implements store.SessionStore.
func (s *Store) Events(_ context.Context, token string) ([]core.HistoryEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, err := s.live(token)
	if err != nil {
		return nil, err
	}
	out := make([]core.HistoryEvent, len(rec.events))
	copy(out, rec.events)
	return out, nil
}

// PushAnswer implements store.SessionStore.
func (s *Store) PushAnswer(_ context.Context, token string, ans store.PendingAnswer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, err := s.live(token)
	if err != nil {
		return err
	}
	rec.queue = append(rec.queue, ans)
	return nil
}

// WaitAnswer implements store.SessionStore.
func (s *Store) WaitAnswer(ctx context.Context, token string, wait time.Duration) (store.PendingAnswer, error) {
	deadline := time.Now().Add(wait)
	for {
		s.mu.Lock()
		rec, err := s.live(token)
		if err != nil {
			s.mu.Unlock()
			return store.PendingAnswer{}, err
		}
		if len(rec.queue) > 0 {
			ans := rec.queue[0]
			s.mu.Unlock()
			return ans, nil
		}
		s.mu.Unlock()

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
func (s *Store) ConfirmAnswer(_ context.Context, token string, answerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, err := s.live(token)
	if err != nil {
		return err
	}
	for i, ans := range rec.queue {
		if ans.ID == answerID {
			rec.queue = append(rec.queue[:i], rec.queue[i+1:]...)
			return nil
		}
	}
	return nil
}

// PurgeExpired implements store.SessionStore.
func (s *Store) PurgeExpired(context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	dropped := 0
	now := s.now()
	for token, rec := range s.sessions {
		if now.After(rec.expiresAt) {
			delete(s.sessions, token)
			dropped++
		}
	}
	return dropped, nil
}
