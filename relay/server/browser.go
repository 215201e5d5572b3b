package server

import (
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/relay"
	"github.com/hupe1980/agentrelay/store"
)

// handleHistory returns the full event list plus connection and config
// status. The browser always re-derives its view from this endpoint; the
// SSE channel is only a change signal.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	token := r.PathValue("token")
	sess, err := s.store.GetSession(r.Context(), token)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	events, err := s.store.Events(r.Context(), token)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	if events == nil {
		events = []core.HistoryEvent{}
	}
	writeJSON(w, http.StatusOK, relay.HistoryResponse{
		WorkflowName: sess.WorkflowName,
		CLIConnected: sess.CLIConnected,
		Config:       sess.Config,
		Events:       events,
	})
}

// handleEvents streams an opaque change nudge per session mutation. The
// payload is never authoritative; subscribers re-fetch /history/{token} on
// every message, which sidesteps ordering and duplication concerns in the
// push channel entirely.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	token := r.PathValue("token")
	if _, err := s.store.GetSession(r.Context(), token); err != nil {
		s.writeStoreError(w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "streaming not supported"})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	ch := s.subscribe(token)
	defer s.unsubscribe(token, ch)

	fmt.Fprintf(w, "data: {\"connected\":true}\n\n")
	flusher.Flush()

	keepalive := time.NewTicker(15 * time.Second)
	defer keepalive.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-ch:
			fmt.Fprintf(w, "data: {\"changed\":true}\n\n")
			flusher.Flush()
		case <-keepalive.C:
			fmt.Fprintf(w, ": keepalive\n\n")
			flusher.Flush()
		}
	}
}

// handleSubmit enqueues a browser answer. Submissions for a disconnected
// CLI are rejected with 503 rather than silently queued for a dead
// process. Accepted answers also land in the event list immediately as an
// INTERACTION_SUBMITTED audit entry so the browser's own history view
// reflects them before the CLI has polled.
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	token := r.PathValue("token")
	var req relay.SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	sess, err := s.store.GetSession(r.Context(), token)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	if !sess.CLIConnected {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": core.ErrCLIDisconnected.Error()})
		return
	}

	ans := store.PendingAnswer{
		ID:          core.NewID(),
		Slug:        req.Slug,
		TargetKey:   req.TargetKey,
		Response:    req.Response,
		SubmittedAt: time.Now().UTC(),
	}
	if err := s.store.PushAnswer(r.Context(), token, ans); err != nil {
		s.writeStoreError(w, err)
		return
	}

	audit := core.NewEvent(core.EventInteractionSubmitted)
	audit.Response = &req.Response
	audit.Source = core.SourceRemote
	audit.Message = req.Slug
	if err := s.store.PrependEvent(r.Context(), token, audit); err != nil {
		s.logger.Warn("submit audit append failed", "error", err)
	}

	s.notifyWatchers(token)
	writeJSON(w, http.StatusOK, map[string]string{"status": "queued", "id": ans.ID})
}

// handleSetConfig replaces the session's remote configuration.
func (s *Server) handleSetConfig(w http.ResponseWriter, r *http.Request) {
	token := r.PathValue("token")
	var cfg store.SessionConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	cfg.Configured = true
	if err := s.store.SetConfig(r.Context(), token, cfg); err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.notifyWatchers(token)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// sessionPage is the minimal UI shell. It renders nothing server-side
// beyond the token; the page script drives /history, /events and /submit.
var sessionPage = template.Must(template.New("session").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>agentrelay session</title></head>
<body>
<h1>agentrelay</h1>
<div id="app" data-token="{{.Token}}">
<p>Session <code>{{.Token}}</code>. Fetch <code>/history/{{.Token}}</code> for the event stream.</p>
</div>
</body>
</html>
`))

// handleSessionPage serves the browser UI shell for a live session.
func (s *Server) handleSessionPage(w http.ResponseWriter, r *http.Request) {
	token := r.PathValue("token")
	if _, err := s.store.GetSession(r.Context(), token); err != nil {
		s.writeStoreError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	sessionPage.Execute(w, struct{ Token string }{Token: token})
}
