package runtime_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/runtime"
)

// scriptedPrompter answers each prompt with the next queued line.
type scriptedPrompter struct {
	answers chan string
}

func (p *scriptedPrompter) Prompt(ctx context.Context, in core.Interaction, rendered string) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case a, ok := <-p.answers:
		if !ok {
			return "", errors.New("prompt closed")
		}
		return a, nil
	}
}

// stubBridge records forwarded events and feeds remote answers.
type stubBridge struct {
	events   chan core.HistoryEvent
	answers  chan core.RemoteAnswer
	fullAuto bool
	delaySec int
	hasCfg   bool
}

func newStubBridge() *stubBridge {
	return &stubBridge{
		events:  make(chan core.HistoryEvent, 64),
		answers: make(chan core.RemoteAnswer, 8),
	}
}

func (b *stubBridge) ForwardEvent(ev core.HistoryEvent) { b.events <- ev }
func (b *stubBridge) Answers() <-chan core.RemoteAnswer { return b.answers }
func (b *stubBridge) AutoConfig() (bool, int, bool)     { return b.fullAuto, b.delaySec, b.hasCfg }

func newTestRuntime(t *testing.T, optFns ...func(o *runtime.Options)) *runtime.Runtime {
	t.Helper()
	dir := t.TempDir()
	base := func(o *runtime.Options) {
		o.Config = &runtime.Config{Name: "test-workflow", AutoSelectDelaySec: 1, Retries: 2}
		o.Prompter = &scriptedPrompter{answers: make(chan string, 8)}
	}
	rt, err := runtime.New(dir, append([]func(o *runtime.Options){base}, optFns...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close() })
	return rt
}

func TestNewExclusivePerDirectory(t *testing.T) {
	dir := t.TempDir()
	cfg := func(o *runtime.Options) {
		o.Config = &runtime.Config{Name: "wf"}
	}

	first, err := runtime.New(dir, cfg)
	require.NoError(t, err)

	_, err = runtime.New(dir, cfg)
	assert.ErrorIs(t, err, core.ErrRunActive)

	require.NoError(t, first.Close())
	second, err := runtime.New(dir, cfg)
	require.NoError(t, err)
	require.NoError(t, second.Close())
}

func TestRunWorkflowLifecycle(t *testing.T) {
	rt := newTestRuntime(t)

	err := rt.RunWorkflow(context.Background(), func(ctx context.Context, r *runtime.Runtime) error {
		r.Memory().Set("step", "done")
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, core.StatusCompleted, rt.Status())
	v, ok := rt.Memory().Get("step")
	require.True(t, ok)
	assert.Equal(t, "done", v)

	events, err := rt.History().LoadAll()
	require.NoError(t, err)
	require.NotEmpty(t, events)
	// Newest first: completion on top, start at the bottom.
	assert.Equal(t, core.EventWorkflowCompleted, events[0].Kind)
	assert.Equal(t, core.EventWorkflowStarted, events[len(events)-1].Kind)
}

func TestRunWorkflowFailure(t *testing.T) {
	rt := newTestRuntime(t)

	boom := errors.New("agent exploded")
	err := rt.RunWorkflow(context.Background(), func(ctx context.Context, r *runtime.Runtime) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, core.StatusFailed, rt.Status())
	assert.Equal(t, "agent exploded", rt.Memory().LastError())

	events, err := rt.History().LoadAll()
	require.NoError(t, err)
	assert.Equal(t, core.EventWorkflowFailed, events[0].Kind)
}

func TestRunWorkflowRejectsConcurrentRun(t *testing.T) {
	rt := newTestRuntime(t)

	release := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_ = rt.RunWorkflow(context.Background(), func(ctx context.Context, r *runtime.Runtime) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	err := rt.RunWorkflow(context.Background(), func(ctx context.Context, r *runtime.Runtime) error { return nil })
	assert.ErrorIs(t, err, core.ErrRunActive)
	close(release)
}

func TestRunWorkflowRestartKeepsMemory(t *testing.T) {
	rt := newTestRuntime(t)

	require.NoError(t, rt.RunWorkflow(context.Background(), func(ctx context.Context, r *runtime.Runtime) error {
		r.Memory().Set("carried", 42)
		return nil
	}))
	require.Equal(t, core.StatusCompleted, rt.Status())

	var seen any
	require.NoError(t, rt.RunWorkflow(context.Background(), func(ctx context.Context, r *runtime.Runtime) error {
		seen, _ = r.Memory().Get("carried")
		return nil
	}))
	assert.EqualValues(t, 42, seen)
}

func TestRunWorkflowNilFunc(t *testing.T) {
	rt := newTestRuntime(t)

	err := rt.RunWorkflow(context.Background(), nil)
	var verr *core.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestAskHumanLocalText(t *testing.T) {
	prompter := &scriptedPrompter{answers: make(chan string, 1)}
	prompter.answers <- "blue"
	rt := newTestRuntime(t, func(o *runtime.Options) { o.Prompter = prompter })

	resp, err := rt.AskHuman(context.Background(), &core.TextInteraction{
		InteractionBase: core.InteractionBase{Prompt: "Favorite color?", Slug: "color"},
	})
	require.NoError(t, err)
	assert.Equal(t, "blue", resp.Text)

	v, ok := rt.Memory().Get("color")
	require.True(t, ok)
	assert.Equal(t, "blue", v)

	events, err := rt.History().LoadAll()
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, core.EventInteractionResolved, events[0].Kind)
	assert.Equal(t, core.SourceLocal, events[0].Source)
	assert.Equal(t, core.EventInteractionRequested, events[1].Kind)
}

func TestAskHumanChoiceByLetter(t *testing.T) {
	prompter := &scriptedPrompter{answers: make(chan string, 1)}
	prompter.answers <- "b"
	rt := newTestRuntime(t, func(o *runtime.Options) { o.Prompter = prompter })

	resp, err := rt.AskHuman(context.Background(), &core.ChoiceInteraction{
		InteractionBase: core.InteractionBase{Prompt: "Pick a region"},
		Options: []core.ChoiceOption{
			{Key: "us-east", Label: "US East"},
			{Key: "eu-west", Label: "EU West"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "eu-west", resp.SelectedKey)

	v, ok := rt.Memory().Get("pick-a-region")
	require.True(t, ok)
	assert.Equal(t, "eu-west", v)
}

func TestAskHumanRemoteAnswerWins(t *testing.T) {
	bridge := newStubBridge()
	// Prompter that never answers; only the remote path can resolve.
	prompter := &scriptedPrompter{answers: make(chan string)}
	rt := newTestRuntime(t, func(o *runtime.Options) {
		o.Bridge = bridge
		o.Prompter = prompter
	})

	go func() {
		bridge.answers <- core.RemoteAnswer{
			Slug:     "deploy",
			Response: core.Response{Raw: "yes", Confirmed: boolPtr(true)},
		}
	}()

	resp, err := rt.AskHuman(context.Background(), &core.ConfirmInteraction{
		InteractionBase: core.InteractionBase{Prompt: "Deploy now?", Slug: "deploy"},
	})
	require.NoError(t, err)
	require.NotNil(t, resp.Confirmed)
	assert.True(t, *resp.Confirmed)

	events, err := rt.History().LoadAll()
	require.NoError(t, err)
	assert.Equal(t, core.SourceRemote, events[0].Source)
}

func TestAskHumanRemoteMismatchedSlugIgnored(t *testing.T) {
	bridge := newStubBridge()
	prompter := &scriptedPrompter{answers: make(chan string, 1)}
	rt := newTestRuntime(t, func(o *runtime.Options) {
		o.Bridge = bridge
		o.Prompter = prompter
	})

	bridge.answers <- core.RemoteAnswer{Slug: "someone-else", Response: core.Response{Raw: "nope"}}
	go func() {
		time.Sleep(50 * time.Millisecond)
		prompter.answers <- "hello"
	}()

	resp, err := rt.AskHuman(context.Background(), &core.TextInteraction{
		InteractionBase: core.InteractionBase{Prompt: "Say something", Slug: "say"},
	})
	require.NoError(t, err)
	assert.Equal(t, "hello", resp.Text)
	assert.Equal(t, core.SourceLocal, rtTopEventSource(t, rt))
}

func TestAskHumanFullAutoPicksFirstOption(t *testing.T) {
	rt := newTestRuntime(t, func(o *runtime.Options) {
		o.Config = &runtime.Config{Name: "auto-wf", FullAuto: true, AutoSelectDelaySec: 0}
		// Prompter that would block forever; full-auto must not consult it.
		o.Prompter = &scriptedPrompter{answers: make(chan string)}
	})

	resp, err := rt.AskHuman(context.Background(), &core.ChoiceInteraction{
		InteractionBase: core.InteractionBase{Prompt: "Strategy"},
		Options: []core.ChoiceOption{
			{Key: "rolling", Label: "Rolling"},
			{Key: "blue-green", Label: "Blue/green"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "rolling", resp.SelectedKey)

	events, err := rt.History().LoadAll()
	require.NoError(t, err)
	assert.Equal(t, core.EventInteractionAutoAnswered, events[0].Kind)
	assert.Equal(t, core.SourceAuto, events[0].Source)
}

func TestAskHumanFullAutoSkipsMultiSelect(t *testing.T) {
	prompter := &scriptedPrompter{answers: make(chan string, 1)}
	prompter.answers <- "a, c"
	rt := newTestRuntime(t, func(o *runtime.Options) {
		o.Config = &runtime.Config{Name: "auto-wf", FullAuto: true, AutoSelectDelaySec: 0}
		o.Prompter = prompter
	})

	resp, err := rt.AskHuman(context.Background(), &core.ChoiceInteraction{
		InteractionBase: core.InteractionBase{Prompt: "Pick regions"},
		MultiSelect:     true,
		Options: []core.ChoiceOption{
			{Key: "us-east", Label: "US East"},
			{Key: "us-west", Label: "US West"},
			{Key: "eu-west", Label: "EU West"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"us-east", "eu-west"}, resp.SelectedKeys)

	events, err := rt.History().LoadAll()
	require.NoError(t, err)
	assert.Equal(t, core.EventInteractionResolved, events[0].Kind)
	assert.Equal(t, core.SourceLocal, events[0].Source)
}

func TestAskHumanRemoteAutoConfigOverridesLocal(t *testing.T) {
	bridge := newStubBridge()
	bridge.fullAuto = true
	bridge.hasCfg = true
	rt := newTestRuntime(t, func(o *runtime.Options) {
		o.Bridge = bridge
		o.Prompter = &scriptedPrompter{answers: make(chan string)}
	})

	resp, err := rt.AskHuman(context.Background(), &core.ChoiceInteraction{
		InteractionBase: core.InteractionBase{Prompt: "Mode"},
		Options:         []core.ChoiceOption{{Key: "fast", Label: "Fast"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "fast", resp.SelectedKey)
}

func TestAskHumanCancelledContext(t *testing.T) {
	rt := newTestRuntime(t, func(o *runtime.Options) {
		o.Prompter = &scriptedPrompter{answers: make(chan string)}
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := rt.AskHuman(ctx, &core.TextInteraction{
		InteractionBase: core.InteractionBase{Prompt: "Never answered"},
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAskHumanValidation(t *testing.T) {
	rt := newTestRuntime(t)

	_, err := rt.AskHuman(context.Background(), &core.TextInteraction{})
	var verr *core.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestResetKeepsHistory(t *testing.T) {
	rt := newTestRuntime(t)

	require.NoError(t, rt.RunWorkflow(context.Background(), func(ctx context.Context, r *runtime.Runtime) error {
		r.Memory().Set("k", "v")
		return nil
	}))

	require.NoError(t, rt.Reset())
	_, ok := rt.Memory().Get("k")
	assert.False(t, ok)
	assert.Equal(t, core.StatusIdle, rt.Status())

	events, err := rt.History().LoadAll()
	require.NoError(t, err)
	assert.NotEmpty(t, events)
}

func TestResetHardTruncatesHistory(t *testing.T) {
	rt := newTestRuntime(t)

	require.NoError(t, rt.RunWorkflow(context.Background(), func(ctx context.Context, r *runtime.Runtime) error {
		return nil
	}))
	require.NoError(t, rt.ResetHard())

	events, err := rt.History().LoadAll()
	require.NoError(t, err)
	assert.Empty(t, events)
}

func rtTopEventSource(t *testing.T, rt *runtime.Runtime) core.ResponseSource {
	t.Helper()
	events, err := rt.History().LoadAll()
	require.NoError(t, err)
	require.NotEmpty(t, events)
	return events[0].Source
}

func boolPtr(b bool) *bool { return &b }
