package invoker_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/invoker"
)

// recordingHost captures audit events and answers interactions from a
// script.
type recordingHost struct {
	mu      sync.Mutex
	events  []core.HistoryEvent
	answers []core.Response
	asked   []core.Interaction
}

func (h *recordingHost) AppendEvent(ev core.HistoryEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, ev)
	return nil
}

func (h *recordingHost) AskHuman(ctx context.Context, in core.Interaction) (core.Response, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.asked = append(h.asked, in)
	if len(h.answers) == 0 {
		return core.Response{Raw: "ok", Text: "ok"}, nil
	}
	resp := h.answers[0]
	h.answers = h.answers[1:]
	return resp, nil
}

func (h *recordingHost) kinds() []core.EventKind {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]core.EventKind, len(h.events))
	for i, ev := range h.events {
		out[i] = ev.Kind
	}
	return out
}

func TestInvokeSuccessStripsInternalFields(t *testing.T) {
	host := &recordingHost{}
	iv := invoker.New(host)
	iv.Register(core.AgentFunc{
		AgentName: "summarize",
		Fn: func(ctx context.Context, params map[string]any) (*core.AgentResult, error) {
			return &core.AgentResult{Output: map[string]any{
				"summary":   "done",
				"_duration": 12,
				"_model":    "test",
			}}, nil
		},
	})

	out, err := iv.Invoke(context.Background(), "summarize", nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"summary": "done"}, out)
	assert.Equal(t, []core.EventKind{core.EventAgentStarted, core.EventAgentCompleted}, host.kinds())
}

func TestInvokeUnknownAgent(t *testing.T) {
	iv := invoker.New(&recordingHost{})

	_, err := iv.Invoke(context.Background(), "nobody", nil)
	var verr *core.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestInvokeRetryBudget(t *testing.T) {
	host := &recordingHost{}
	iv := invoker.New(host)

	attempt := 0
	lastErr := errors.New("attempt 3 failed")
	iv.Register(core.AgentFunc{
		AgentName: "flaky",
		Fn: func(ctx context.Context, params map[string]any) (*core.AgentResult, error) {
			attempt++
			if attempt == 3 {
				return nil, lastErr
			}
			return nil, errors.New("transient")
		},
	})

	_, err := iv.Invoke(context.Background(), "flaky", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, lastErr)

	var aerr *core.AgentExecutionError
	require.ErrorAs(t, err, &aerr)
	assert.Equal(t, "flaky", aerr.Agent)
	assert.Len(t, aerr.Attempts, 3)

	// One start, two retries, one failure.
	assert.Equal(t, []core.EventKind{
		core.EventAgentStarted,
		core.EventAgentRetried,
		core.EventAgentRetried,
		core.EventAgentFailed,
	}, host.kinds())

	require.Len(t, iv.Errors(), 1)
}

func TestInvokePerCallRetriesOverride(t *testing.T) {
	host := &recordingHost{}
	iv := invoker.New(host)

	calls := 0
	iv.Register(core.AgentFunc{
		AgentName: "once",
		Fn: func(ctx context.Context, params map[string]any) (*core.AgentResult, error) {
			calls++
			return nil, errors.New("nope")
		},
	})

	_, err := iv.Invoke(context.Background(), "once", nil, invoker.WithCallRetries(0))
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, []core.EventKind{core.EventAgentStarted, core.EventAgentFailed}, host.kinds())
}

func TestInvokeInteractionResumption(t *testing.T) {
	host := &recordingHost{
		answers: []core.Response{{Raw: "production", Text: "production"}},
	}
	iv := invoker.New(host)
	iv.Register(core.AgentFunc{
		AgentName: "deployer",
		Fn: func(ctx context.Context, params map[string]any) (*core.AgentResult, error) {
			env, ok := params["environment"]
			if !ok {
				return &core.AgentResult{Interaction: &core.TextInteraction{
					InteractionBase: core.InteractionBase{
						Prompt:    "Which environment?",
						Slug:      "environment",
						TargetKey: "environment",
					},
				}}, nil
			}
			return &core.AgentResult{Output: map[string]any{"deployed_to": env}}, nil
		},
	})

	out, err := iv.Invoke(context.Background(), "deployer", map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, "production", out["deployed_to"])
	require.Len(t, host.asked, 1)

	assert.Equal(t, []core.EventKind{
		core.EventAgentStarted,
		core.EventAgentResumed,
		core.EventAgentCompleted,
	}, host.kinds())
}

func TestInvokeInteractionDoesNotMutateCallerParams(t *testing.T) {
	host := &recordingHost{}
	iv := invoker.New(host)
	iv.Register(core.AgentFunc{
		AgentName: "asker",
		Fn: func(ctx context.Context, params map[string]any) (*core.AgentResult, error) {
			if _, ok := params["answer"]; !ok {
				return &core.AgentResult{Interaction: &core.TextInteraction{
					InteractionBase: core.InteractionBase{Prompt: "?", Slug: "answer", TargetKey: "answer"},
				}}, nil
			}
			return &core.AgentResult{Output: map[string]any{}}, nil
		},
	})

	params := map[string]any{"given": true}
	_, err := iv.Invoke(context.Background(), "asker", params)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"given": true}, params)
}

func TestInvokeInteractionDepthExceeded(t *testing.T) {
	host := &recordingHost{}
	iv := invoker.New(host)

	pauses := 0
	iv.Register(core.AgentFunc{
		AgentName: "loop",
		Fn: func(ctx context.Context, params map[string]any) (*core.AgentResult, error) {
			pauses++
			return &core.AgentResult{Interaction: &core.TextInteraction{
				InteractionBase: core.InteractionBase{Prompt: "again?", Slug: "again", TargetKey: "again"},
			}}, nil
		},
	})

	_, err := iv.Invoke(context.Background(), "loop", nil)
	assert.ErrorIs(t, err, core.ErrInteractionDepthExceeded)
	// Five pauses are allowed; the sixth request is fatal.
	assert.Equal(t, invoker.MaxInteractionDepth+1, pauses)
	assert.Len(t, host.asked, invoker.MaxInteractionDepth)
}

func TestAllRunsEveryCallAndKeepsOrder(t *testing.T) {
	host := &recordingHost{}
	iv := invoker.New(host)
	iv.Register(core.AgentFunc{
		AgentName: "echo",
		Fn: func(ctx context.Context, params map[string]any) (*core.AgentResult, error) {
			return &core.AgentResult{Output: map[string]any{"echo": params["n"]}}, nil
		},
	})

	results, err := iv.All(context.Background(), []invoker.Call{
		{Agent: "echo", Params: map[string]any{"n": 1}},
		{Agent: "echo", Params: map[string]any{"n": 2}},
		{Agent: "echo", Params: map[string]any{"n": 3}},
	})
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, 1, results[0]["echo"])
	assert.Equal(t, 2, results[1]["echo"])
	assert.Equal(t, 3, results[2]["echo"])
}

func TestAllSiblingsFinishDespiteError(t *testing.T) {
	host := &recordingHost{}
	iv := invoker.New(host)

	var completed atomic.Int32
	iv.Register(core.AgentFunc{
		AgentName: "worker",
		Fn: func(ctx context.Context, params map[string]any) (*core.AgentResult, error) {
			time.Sleep(10 * time.Millisecond)
			completed.Add(1)
			return &core.AgentResult{Output: map[string]any{}}, nil
		},
	})
	iv.Register(core.AgentFunc{
		AgentName: "broken",
		Fn: func(ctx context.Context, params map[string]any) (*core.AgentResult, error) {
			return nil, errors.New("broken")
		},
	})

	_, err := iv.All(context.Background(), []invoker.Call{
		{Agent: "broken"},
		{Agent: "worker"},
		{Agent: "worker"},
	})
	require.Error(t, err)

	// The error returns before the workers finish; they still complete.
	require.Eventually(t, func() bool {
		return completed.Load() == 2
	}, time.Second, 5*time.Millisecond)
}

func TestAllReturnsOnFirstErrorWithoutWaitingForSiblings(t *testing.T) {
	host := &recordingHost{}
	iv := invoker.New(host)

	iv.Register(core.AgentFunc{
		AgentName: "slow",
		Fn: func(ctx context.Context, params map[string]any) (*core.AgentResult, error) {
			time.Sleep(500 * time.Millisecond)
			return &core.AgentResult{Output: map[string]any{}}, nil
		},
	})
	iv.Register(core.AgentFunc{
		AgentName: "boom",
		Fn: func(ctx context.Context, params map[string]any) (*core.AgentResult, error) {
			return nil, errors.New("boom")
		},
	})

	start := time.Now()
	results, err := iv.All(context.Background(), []invoker.Call{
		{Agent: "slow"},
		{Agent: "boom"},
	})
	require.Error(t, err)
	assert.Nil(t, results)
	assert.Less(t, time.Since(start), 250*time.Millisecond)
}

func TestLimitedBoundsConcurrency(t *testing.T) {
	host := &recordingHost{}
	iv := invoker.New(host)

	var inFlight, peak atomic.Int32
	iv.Register(core.AgentFunc{
		AgentName: "slow",
		Fn: func(ctx context.Context, params map[string]any) (*core.AgentResult, error) {
			n := inFlight.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(20 * time.Millisecond)
			inFlight.Add(-1)
			return &core.AgentResult{Output: map[string]any{}}, nil
		},
	})

	calls := make([]invoker.Call, 6)
	for i := range calls {
		calls[i] = invoker.Call{Agent: "slow"}
	}
	_, err := iv.Limited(context.Background(), calls, 2)
	require.NoError(t, err)
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestLimitedRejectsZeroLimit(t *testing.T) {
	iv := invoker.New(&recordingHost{})

	_, err := iv.Limited(context.Background(), []invoker.Call{{Agent: "x"}}, 0)
	var verr *core.ValidationError
	assert.ErrorAs(t, err, &verr)
}
