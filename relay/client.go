package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/logging"
	"github.com/hupe1980/agentrelay/store"
)

const (
	// DefaultPollWait is the server-side wait budget requested per poll,
	// kept below typical request-duration ceilings.
	DefaultPollWait = 25 * time.Second

	// backoff bounds for the poll loop on transport errors.
	backoffInitial = 1 * time.Second
	backoffMax     = 10 * time.Second
)

// Options configures a Client.
type Options struct {
	Logger     logging.Logger
	HTTPClient *http.Client
	// Token overrides the generated session token, mainly for tests.
	Token string
	// PollWait overrides the per-poll server wait budget.
	PollWait time.Duration
}

// Client is the in-process side of the relay: it forwards history events to
// the session store and polls for browser-submitted answers. It satisfies
// the runtime's RemoteBridge contract.
type Client struct {
	baseURL  string
	token    string
	http     *http.Client
	logger   logging.Logger
	pollWait time.Duration

	answers chan core.RemoteAnswer
	cancel  context.CancelFunc
	done    chan struct{}

	mu        sync.Mutex
	lastCfg   store.SessionConfig
	cfgLoaded bool
}

// Connect establishes a relay session seeded with the given history and
// starts the background answer poll loop. The returned client's token is
// the capability a browser needs to watch and answer the run.
func Connect(ctx context.Context, baseURL, workflowName string, history []core.HistoryEvent, optFns ...func(o *Options)) (*Client, error) {
	opts := Options{
		Logger:     logging.NoOpLogger{},
		HTTPClient: &http.Client{Timeout: DefaultPollWait + 10*time.Second},
		PollWait:   DefaultPollWait,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	token := opts.Token
	if token == "" {
		var err error
		token, err = core.NewToken()
		if err != nil {
			return nil, err
		}
	}

	c := &Client{
		baseURL:  baseURL,
		token:    token,
		http:     opts.HTTPClient,
		logger:   opts.Logger,
		pollWait: opts.PollWait,
		answers:  make(chan core.RemoteAnswer, 8),
		done:     make(chan struct{}),
	}

	if err := c.post(ctx, "/cli/init", InitRequest{
		Token:        token,
		WorkflowName: workflowName,
		History:      history,
	}); err != nil {
		return nil, fmt.Errorf("init relay session: %w", err)
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	go c.pollLoop(loopCtx)

	c.logger.Info("relay session established", "url", c.SessionURL())
	return c, nil
}

// Token returns the session token.
func (c *Client) Token() string { return c.token }

// SessionURL returns the browser-facing page for this session.
func (c *Client) SessionURL() string {
	return fmt.Sprintf("%s/session/%s", c.baseURL, c.token)
}

// ForwardEvent mirrors one history event to the session. Failures are
// logged and swallowed: remote following is best-effort and never aborts
// the workflow.
func (c *Client) ForwardEvent(ev core.HistoryEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := c.post(ctx, "/cli/event", EventRequest{Token: c.token, Event: ev}); err != nil {
		c.logger.Warn("event forward failed", "event", string(ev.Kind), "error", err)
	}
}

// SyncHistory wholesale replaces the server's event list with the given
// snapshot. Used after out-of-band edits of the on-disk log.
func (c *Client) SyncHistory(ctx context.Context, history []core.HistoryEvent) error {
	return c.post(ctx, "/cli/sync", SyncRequest{Token: c.token, History: history})
}

// Answers delivers browser-submitted responses to the runtime.
func (c *Client) Answers() <-chan core.RemoteAnswer { return c.answers }

// AutoConfig fetches the session's remote configuration. ok is false until
// a browser has explicitly configured the session; on transport errors the
// last known value is reused.
func (c *Client) AutoConfig() (bool, int, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	var cfg store.SessionConfig
	err := c.get(ctx, "/cli/config?token="+url.QueryEscape(c.token), &cfg)
	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.logger.Warn("config fetch failed", "error", err)
		cfg = c.lastCfg
		if !c.cfgLoaded {
			return false, 0, false
		}
	} else {
		c.lastCfg = cfg
		c.cfgLoaded = true
	}
	if !cfg.Configured {
		return false, 0, false
	}
	return cfg.FullAuto, cfg.AutoSelectDelaySec, true
}

// Disconnect marks the CLI as gone and stops the poll loop. The session
// itself survives until its TTL so a later reconnect can drain queued
// answers.
func (c *Client) Disconnect(ctx context.Context, reason string) error {
	c.cancel()
	<-c.done
	return c.post(ctx, "/cli/end", EndRequest{Token: c.token, Reason: reason})
}

// pollLoop long-polls for answers, confirming each before delivery
// (confirm-then-act: a crash in between can drop an answer but never
// deliver it twice). Transport errors back off exponentially up to
// backoffMax; any success resets to the fast path.
func (c *Client) pollLoop(ctx context.Context) {
	defer close(c.done)
	backoff := backoffInitial

	for {
		if ctx.Err() != nil {
			return
		}

		ans, err := c.poll(ctx)
		switch {
		case err == nil && ans == nil:
			// Empty poll; go right back to waiting.
			backoff = backoffInitial
			continue
		case err == nil:
			backoff = backoffInitial
			if cerr := c.confirm(ctx, ans.ID); cerr != nil {
				c.logger.Warn("answer confirm failed, leaving it queued", "id", ans.ID, "error", cerr)
				continue
			}
			select {
			case c.answers <- core.RemoteAnswer{Slug: ans.Slug, TargetKey: ans.TargetKey, Response: ans.Response}:
			case <-ctx.Done():
				return
			}
		default:
			c.logger.Warn("answer poll failed", "error", err, "backoff", backoff)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > backoffMax {
				backoff = backoffMax
			}
		}
	}
}

// poll issues one long-poll. A nil answer with nil error means the server's
// wait budget elapsed with an empty queue.
func (c *Client) poll(ctx context.Context) (*store.PendingAnswer, error) {
	u := fmt.Sprintf("%s/cli/poll?token=%s&wait=%d",
		c.baseURL, url.QueryEscape(c.token), int(c.pollWait.Seconds()))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNoContent:
		return nil, nil
	case http.StatusOK:
		var ans store.PendingAnswer
		if err := json.NewDecoder(resp.Body).Decode(&ans); err != nil {
			return nil, fmt.Errorf("decode answer: %w", err)
		}
		return &ans, nil
	default:
		return nil, httpError(resp)
	}
}

func (c *Client) confirm(ctx context.Context, answerID string) error {
	u := fmt.Sprintf("%s/cli/answer?token=%s&id=%s",
		c.baseURL, url.QueryEscape(c.token), url.QueryEscape(answerID))
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, u, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return httpError(resp)
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, body any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("serialize request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return httpError(resp)
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return httpError(resp)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func httpError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	if resp.StatusCode == http.StatusNotFound {
		return core.ErrSessionNotFound
	}
	return fmt.Errorf("relay server returned %d: %s", resp.StatusCode, bytes.TrimSpace(body))
}
