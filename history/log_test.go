package history

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hupe1980/agentrelay/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLog(t *testing.T) *Log {
	t.Helper()
	l, err := Open(filepath.Join(t.TempDir(), "state", "history.jsonl"))
	require.NoError(t, err)
	return l
}

func TestLog_NewestFirstOrdering(t *testing.T) {
	l := newTestLog(t)

	e1 := core.NewWorkflowEvent(core.EventWorkflowStarted, "demo", "")
	e2 := core.NewWorkflowEvent(core.EventWorkflowCompleted, "demo", "")
	require.NoError(t, l.Append(e1))
	require.NoError(t, l.Append(e2))

	events, err := l.LoadAll()
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, e2.ID, events[0].ID)
	assert.Equal(t, e1.ID, events[1].ID)
}

func TestLog_LoadAllSkipsCorruptLines(t *testing.T) {
	l := newTestLog(t)

	require.NoError(t, l.Append(core.NewWorkflowEvent(core.EventWorkflowStarted, "demo", "")))

	raw, err := os.ReadFile(l.Path())
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(l.Path(), append([]byte("{not json\n"), raw...), 0o644))

	events, err := l.LoadAll()
	require.NoError(t, err)
	assert.Len(t, events, 1)
	assert.Equal(t, core.EventWorkflowStarted, events[0].Kind)
}

func TestLog_LoadAllMissingFile(t *testing.T) {
	l := newTestLog(t)

	events, err := l.LoadAll()
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestLog_Recent(t *testing.T) {
	l := newTestLog(t)

	for i := 0; i < 5; i++ {
		require.NoError(t, l.Append(core.NewWorkflowEvent(core.EventWorkflowStarted, "demo", "")))
	}

	events, err := l.Recent(2)
	require.NoError(t, err)
	assert.Len(t, events, 2)
}

func TestLog_AppendRoundTripsInteraction(t *testing.T) {
	l := newTestLog(t)

	allow := true
	in := &core.ChoiceInteraction{
		InteractionBase: core.InteractionBase{Slug: "pick-one", Prompt: "Pick one", TargetKey: "choice"},
		Options:         []core.ChoiceOption{{Key: "a", Label: "Approve"}},
		AllowCustom:     &allow,
	}
	require.NoError(t, l.Append(core.NewInteractionRequestedEvent(in)))

	events, err := l.LoadAll()
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.NotNil(t, events[0].Interaction)
	assert.Equal(t, core.InteractionChoice, events[0].Interaction.Type)
	assert.Equal(t, "pick-one", events[0].Interaction.Slug)
	assert.True(t, events[0].Interaction.AllowCustom)
}

func TestLog_WatcherIgnoresOwnWrites(t *testing.T) {
	l := newTestLog(t)
	require.NoError(t, l.Append(core.NewWorkflowEvent(core.EventWorkflowStarted, "demo", "")))

	var fired atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		l.Watch(ctx, func() { fired.Add(1) }, func(o *WatchOptions) {
			o.Interval = 10 * time.Millisecond
			o.Cooldown = time.Hour
		})
	}()

	// An in-process append inside the cooldown must not fire the callback.
	require.NoError(t, l.Append(core.NewWorkflowEvent(core.EventWorkflowCompleted, "demo", "")))
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, int32(0), fired.Load())

	cancel()
	<-done
}

func TestLog_WatcherDetectsExternalEdit(t *testing.T) {
	l := newTestLog(t)
	require.NoError(t, os.WriteFile(l.Path(), []byte("{}\n"), 0o644))

	fired := make(chan struct{}, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go l.Watch(ctx, func() {
		select {
		case fired <- struct{}{}:
		default:
		}
	}, func(o *WatchOptions) {
		o.Interval = 10 * time.Millisecond
		o.Cooldown = 0
	})

	time.Sleep(30 * time.Millisecond)
	require.NoError(t, os.WriteFile(l.Path(), []byte("{\"event\":\"X\"}\n"), 0o644))

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not detect external edit")
	}
}
