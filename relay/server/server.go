// Package server implements the relay's HTTP surface: CLI-facing session
// and answer-delivery endpoints plus browser-facing history, submit and
// config endpoints, backed by a store.SessionStore. CORS is wide open by
// design since the session token itself is the access control.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/rs/cors"
	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/logging"
	"github.com/hupe1980/agentrelay/store"
)

const (
	// DefaultPollWaitCap bounds the per-request long-poll budget, kept
	// below common request-duration ceilings.
	DefaultPollWaitCap = 25 * time.Second

	// DefaultPurgeInterval is how often expired sessions are swept.
	DefaultPurgeInterval = time.Minute
)

// Options configures a Server.
type Options struct {
	Logger        logging.Logger
	Addr          string
	PollWaitCap   time.Duration
	PurgeInterval time.Duration
}

// Server serves the relay HTTP API over a SessionStore.
type Server struct {
	store         store.SessionStore
	logger        logging.Logger
	addr          string
	pollWaitCap   time.Duration
	purgeInterval time.Duration

	mu       sync.Mutex
	listener net.Listener
	http     *http.Server
	group    *errgroup.Group
	cancel   context.CancelFunc

	// watchers holds the SSE nudge channels per token.
	watchMu  sync.Mutex
	watchers map[string]map[chan struct{}]struct{}
}

// New creates a Server over the given session store.
func New(st store.SessionStore, optFns ...func(o *Options)) *Server {
	opts := Options{
		Logger:        logging.NoOpLogger{},
		Addr:          ":8787",
		PollWaitCap:   DefaultPollWaitCap,
		PurgeInterval: DefaultPurgeInterval,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Server{
		store:         st,
		logger:        opts.Logger,
		addr:          opts.Addr,
		pollWaitCap:   opts.PollWaitCap,
		purgeInterval: opts.PurgeInterval,
		watchers:      map[string]map[chan struct{}]struct{}{},
	}
}

// Handler builds the full route table wrapped in permissive CORS.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// CLI-facing endpoints.
	mux.HandleFunc("POST /cli/init", s.handleInit)
	mux.HandleFunc("POST /cli/event", s.handleEvent)
	mux.HandleFunc("POST /cli/sync", s.handleSync)
	mux.HandleFunc("POST /cli/end", s.handleEnd)
	mux.HandleFunc("GET /cli/poll", s.handlePoll)
	mux.HandleFunc("DELETE /cli/answer", s.handleConfirm)
	mux.HandleFunc("GET /cli/config", s.handleGetConfig)

	// Browser-facing endpoints.
	mux.HandleFunc("GET /history/{token}", s.handleHistory)
	mux.HandleFunc("GET /events/{token}", s.handleEvents)
	mux.HandleFunc("POST /submit/{token}", s.handleSubmit)
	mux.HandleFunc("POST /config/{token}", s.handleSetConfig)
	mux.HandleFunc("GET /session/{token}", s.handleSessionPage)

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return cors.AllowAll().Handler(mux)
}

// Start binds the listener and serves in the background until Shutdown.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return fmt.Errorf("relay server already started")
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.addr, err)
	}
	s.listener = listener
	s.http = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	groupCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	group, groupCtx := errgroup.WithContext(groupCtx)
	s.group = group

	group.Go(func() error {
		if err := s.http.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		s.sweepLoop(groupCtx)
		return nil
	})

	s.logger.Info("relay server listening", "addr", listener.Addr().String())
	return nil
}

// Addr returns the bound listen address, useful when Addr was ":0".
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return s.addr
	}
	return s.listener.Addr().String()
}

// Shutdown drains in-flight requests and stops the sweeper.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	httpServer, cancel, group := s.http, s.cancel, s.group
	s.mu.Unlock()
	if httpServer == nil {
		return nil
	}

	err := httpServer.Shutdown(ctx)
	cancel()
	if gerr := group.Wait(); err == nil {
		err = gerr
	}
	return err
}

// sweepLoop periodically evicts expired sessions. Expiry is also enforced
// lazily on access; the sweep keeps the store from accumulating garbage.
func (s *Server) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(s.purgeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.store.PurgeExpired(ctx)
			if err != nil {
				s.logger.Warn("session purge failed", "error", err)
				continue
			}
			if n > 0 {
				s.logger.Info("purged expired sessions", "count", n)
			}
		}
	}
}

// notifyWatchers nudges every SSE subscriber of a token.
func (s *Server) notifyWatchers(token string) {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()
	for ch := range s.watchers[token] {
		select {
		case ch <- struct{}{}:
		default:
			// Subscriber already has a pending nudge.
		}
	}
}

func (s *Server) subscribe(token string) chan struct{} {
	ch := make(chan struct{}, 1)
	s.watchMu.Lock()
	defer s.watchMu.Unlock()
	if s.watchers[token] == nil {
		s.watchers[token] = map[chan struct{}]struct{}{}
	}
	s.watchers[token][ch] = struct{}{}
	return ch
}

func (s *Server) unsubscribe(token string, ch chan struct{}) {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()
	delete(s.watchers[token], ch)
	if len(s.watchers[token]) == 0 {
		delete(s.watchers, token)
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// writeStoreError maps store errors onto the HTTP surface: an expired or
// unknown token is a 404 no matter which endpoint hit it.
func (s *Server) writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, core.ErrSessionNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": core.ErrSessionNotFound.Error()})
	default:
		s.logger.Error("store operation failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}
