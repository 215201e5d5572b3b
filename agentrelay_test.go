package agentrelay_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentrelay"
	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/internal/testutil"
	"github.com/hupe1980/agentrelay/relay"
	"github.com/hupe1980/agentrelay/relay/server"
	"github.com/hupe1980/agentrelay/runtime"
	"github.com/hupe1980/agentrelay/store/inmem"
)

type queuedPrompter struct {
	answers chan string
}

func (p *queuedPrompter) Prompt(ctx context.Context, _ core.Interaction, _ string) (string, error) {
	select {
	case raw := <-p.answers:
		return raw, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func echoAgent(name string) core.Agent {
	return core.AgentFunc{
		AgentName: name,
		Fn: func(_ context.Context, params map[string]any) (*core.AgentResult, error) {
			out := map[string]any{"agent": name}
			for k, v := range params {
				out[k] = v
			}
			return &core.AgentResult{Output: out}, nil
		},
	}
}

func TestFacadeLocalWorkflow(t *testing.T) {
	ctx := context.Background()

	app, err := agentrelay.New(ctx, t.TempDir(), func(o *agentrelay.Options) {
		o.Config = &runtime.Config{Name: "local-flow", Retries: 1}
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close(ctx) })

	app.RegisterAgent(echoAgent("greeter"))

	err = app.Run(ctx, func(ctx context.Context, _ *runtime.Runtime) error {
		out, err := app.Invoke(ctx, "greeter", map[string]any{"who": "world"})
		if err != nil {
			return err
		}
		assert.Equal(t, "world", out["who"])
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, core.StatusCompleted, app.Runtime().Status())
	assert.Empty(t, app.SessionURL())

	events, err := app.Runtime().History().LoadAll()
	require.NoError(t, err)
	require.NotEmpty(t, events)
	assert.Equal(t, core.EventWorkflowCompleted, events[0].Kind)
}

func TestFacadeAskHumanWithPrompter(t *testing.T) {
	ctx := context.Background()

	prompter := &queuedPrompter{answers: make(chan string, 1)}
	prompter.answers <- "b"

	app, err := agentrelay.New(ctx, t.TempDir(), func(o *agentrelay.Options) {
		o.Config = &runtime.Config{Name: "ask-flow"}
		o.Prompter = prompter
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close(ctx) })

	err = app.Run(ctx, func(ctx context.Context, _ *runtime.Runtime) error {
		resp, err := app.AskHuman(ctx, testutil.Choice("Pick a letter", "a", "b", "c"))
		if err != nil {
			return err
		}
		assert.Equal(t, "b", resp.SelectedKey)
		return nil
	})
	require.NoError(t, err)
}

func TestFacadeRemoteSessionLifecycle(t *testing.T) {
	ctx := context.Background()

	srv := server.New(inmem.New())
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	app, err := agentrelay.New(ctx, t.TempDir(), func(o *agentrelay.Options) {
		o.Config = &runtime.Config{Name: "remote-flow"}
		o.RemoteURL = ts.URL
	})
	require.NoError(t, err)

	url := app.SessionURL()
	require.NotEmpty(t, url)
	token := url[strings.LastIndex(url, "/")+1:]

	hist := fetchRelayHistory(t, ts.URL, token)
	assert.True(t, hist.CLIConnected)
	assert.Equal(t, "remote-flow", hist.WorkflowName)

	ev := testutil.NewEventBuilder(core.EventAgentStarted).
		Workflow("remote-flow").
		Agent("greeter").
		Attempt(1).
		Build()
	require.NoError(t, app.Runtime().AppendEvent(ev))

	require.Eventually(t, func() bool {
		hist := fetchRelayHistory(t, ts.URL, token)
		return len(hist.Events) > 0 && hist.Events[0].ID == ev.ID
	}, 3*time.Second, 25*time.Millisecond)

	require.NoError(t, app.Close(ctx))

	hist = fetchRelayHistory(t, ts.URL, token)
	assert.False(t, hist.CLIConnected)
}

func fetchRelayHistory(t *testing.T, baseURL, token string) relay.HistoryResponse {
	t.Helper()

	resp, err := http.Get(baseURL + "/history/" + token)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out relay.HistoryResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}
