package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/relay"
	"github.com/hupe1980/agentrelay/store"
)

// handleInit establishes (or re-establishes) a session and replaces its
// event list with the CLI's snapshot. The call is idempotent: the CLI's
// history is always the source of truth.
func (s *Server) handleInit(w http.ResponseWriter, r *http.Request) {
	var req relay.InitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.Token == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "token is required"})
		return
	}

	existing, err := s.store.GetSession(r.Context(), req.Token)
	sess := store.Session{
		Token:        req.Token,
		WorkflowName: req.WorkflowName,
		CLIConnected: true,
		CreatedAt:    time.Now().UTC(),
	}
	if err == nil {
		// Reconnect: keep the session's remote config and creation time.
		sess.Config = existing.Config
		sess.CreatedAt = existing.CreatedAt
	}
	if err := s.store.PutSession(r.Context(), sess); err != nil {
		s.writeStoreError(w, err)
		return
	}
	if err := s.store.ReplaceEvents(r.Context(), req.Token, req.History); err != nil {
		s.writeStoreError(w, err)
		return
	}

	s.logger.Info("session initialized", "workflow", req.WorkflowName, "events", len(req.History))
	s.notifyWatchers(req.Token)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleEvent appends one forwarded history event.
func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	var req relay.EventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if err := s.store.PrependEvent(r.Context(), req.Token, req.Event); err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.notifyWatchers(req.Token)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleSync wholesale replaces the session's event list.
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	var req relay.SyncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if err := s.store.ReplaceEvents(r.Context(), req.Token, req.History); err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.notifyWatchers(req.Token)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleEnd marks the CLI as disconnected. The session and any queued
// answers survive until the TTL, so a reconnect can pick them up.
func (s *Server) handleEnd(w http.ResponseWriter, r *http.Request) {
	var req relay.EndRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if err := s.store.SetCLIConnected(r.Context(), req.Token, false); err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.logger.Info("session CLI disconnected", "reason", req.Reason)
	s.notifyWatchers(req.Token)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handlePoll blocks up to the requested wait budget (capped server-side)
// for a pending answer and returns it without removing it from the queue.
// Removal happens only via the explicit DELETE confirmation, which is what
// makes delivery at-least-once.
func (s *Server) handlePoll(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	wait := s.pollWaitCap
	if raw := r.URL.Query().Get("wait"); raw != "" {
		if secs, err := strconv.Atoi(raw); err == nil && secs >= 0 {
			if d := time.Duration(secs) * time.Second; d < wait {
				wait = d
			}
		}
	}

	ans, err := s.store.WaitAnswer(r.Context(), token, wait)
	switch {
	case errors.Is(err, core.ErrNoAnswer):
		w.WriteHeader(http.StatusNoContent)
	case err != nil:
		s.writeStoreError(w, err)
	default:
		writeJSON(w, http.StatusOK, ans)
	}
}

// handleConfirm removes a delivered answer. Confirming an answer that was
// already removed is a no-op, not an error.
func (s *Server) handleConfirm(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	id := r.URL.Query().Get("id")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "answer id is required"})
		return
	}
	if err := s.store.ConfirmAnswer(r.Context(), token, id); err != nil {
		s.writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleGetConfig returns the session's remote configuration for the CLI's
// effective-config lookup.
func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	sess, err := s.store.GetSession(r.Context(), r.URL.Query().Get("token"))
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Config)
}
