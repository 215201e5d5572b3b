// Package agentrelay provides a high-level façade over the workflow runtime
// and its collaborators (memory, history, interactions, agent invocation and
// the optional remote relay). Most applications interact with this package
// by:
//  1. Creating an AgentRelay via New() for a workflow directory
//  2. Registering one or more agents
//  3. Running a workflow function that invokes agents and asks questions
//
// The façade delegates execution to runtime.Runtime and invoker.Invoker
// while keeping setup ergonomics concise. All defaults are safe for local
// development; remote following is enabled by configuring a relay URL.
package agentrelay

import (
	"context"
	"time"

	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/interaction"
	"github.com/hupe1980/agentrelay/invoker"
	"github.com/hupe1980/agentrelay/logging"
	"github.com/hupe1980/agentrelay/model"
	"github.com/hupe1980/agentrelay/relay"
	"github.com/hupe1980/agentrelay/runtime"
)

// Options configures the AgentRelay instance.
type Options struct {
	// Logger defaults to NoOp.
	Logger logging.Logger

	// Config overrides the on-disk workflow.yaml when non-nil.
	Config *runtime.Config

	// Prompter overrides local answer collection (TTY or interaction file
	// by default).
	Prompter runtime.Prompter

	// Interpreter resolves ambiguous interaction answers. When nil and a
	// Provider is given, a model-backed interpreter is used.
	Interpreter interaction.Interpreter

	// Provider backs the default interpreter; agents may share it too.
	Provider model.Provider

	// RemoteURL overrides the configured relay server base URL. An empty
	// value after config resolution disables remote following.
	RemoteURL string

	// Retries is the agent retry budget. Negative means use the workflow
	// config's budget.
	Retries int
}

// AgentRelay is the high-level façade aggregating the runtime, the agent
// invoker and the optional relay client.
type AgentRelay struct {
	rt     *runtime.Runtime
	inv    *invoker.Invoker
	client *relay.Client
	logger logging.Logger

	stopWatch context.CancelFunc
}

// New opens the workflow directory and wires up the runtime, invoker and,
// when a relay URL is configured, the relay client plus the history watcher
// that keeps the remote view consistent with out-of-band log edits.
func New(ctx context.Context, dir string, optFns ...func(o *Options)) (*AgentRelay, error) {
	opts := Options{
		Logger:  logging.NoOpLogger{},
		Retries: -1,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	interp := opts.Interpreter
	if interp == nil && opts.Provider != nil {
		interp = model.NewInterpreter(opts.Provider)
	}

	rt, err := runtime.New(dir, func(o *runtime.Options) {
		o.Logger = opts.Logger
		o.Config = opts.Config
		o.Prompter = opts.Prompter
		o.Interpreter = interp
	})
	if err != nil {
		return nil, err
	}

	a := &AgentRelay{
		rt:     rt,
		logger: opts.Logger,
	}
	retries := opts.Retries
	if retries < 0 {
		retries = rt.Config().Retries
	}
	a.inv = invoker.New(rt, func(o *invoker.Options) {
		o.Logger = opts.Logger
		o.Retries = retries
	})

	remoteURL := opts.RemoteURL
	if remoteURL == "" {
		remoteURL = rt.Config().RemoteURL
	}
	if remoteURL != "" {
		if err := a.connectRelay(ctx, remoteURL); err != nil {
			rt.Close()
			return nil, err
		}
	}

	return a, nil
}

// connectRelay establishes the relay session seeded with the current
// history and starts the watcher that pushes wholesale syncs after manual
// log edits.
func (a *AgentRelay) connectRelay(ctx context.Context, remoteURL string) error {
	events, err := a.rt.History().LoadAll()
	if err != nil {
		return err
	}

	client, err := relay.Connect(ctx, remoteURL, a.rt.Config().Name, events, func(o *relay.Options) {
		o.Logger = a.logger
	})
	if err != nil {
		return err
	}
	a.client = client
	a.rt.AttachBridge(client)

	watchCtx, cancel := context.WithCancel(context.Background())
	a.stopWatch = cancel
	go a.rt.History().Watch(watchCtx, func() {
		events, err := a.rt.History().LoadAll()
		if err != nil {
			a.logger.Warn("history reload for sync failed", "error", err)
			return
		}
		syncCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := client.SyncHistory(syncCtx, events); err != nil {
			a.logger.Warn("history sync failed", "error", err)
		}
	})

	return nil
}

// Runtime exposes the underlying runtime handle.
func (a *AgentRelay) Runtime() *runtime.Runtime { return a.rt }

// Invoker exposes the agent invoker.
func (a *AgentRelay) Invoker() *invoker.Invoker { return a.inv }

// SessionURL returns the browser link of the relay session, empty when
// remote following is disabled.
func (a *AgentRelay) SessionURL() string {
	if a.client == nil {
		return ""
	}
	return a.client.SessionURL()
}

// RegisterAgent adds agents to the invoker.
func (a *AgentRelay) RegisterAgent(agents ...core.Agent) { a.inv.Register(agents...) }

// Run executes the workflow function under the runtime's state machine.
func (a *AgentRelay) Run(ctx context.Context, fn runtime.WorkflowFunc) error {
	return a.rt.RunWorkflow(ctx, fn)
}

// Invoke runs one registered agent through the invoker.
func (a *AgentRelay) Invoke(ctx context.Context, name string, params map[string]any) (map[string]any, error) {
	return a.inv.Invoke(ctx, name, params)
}

// AskHuman poses an interaction through the runtime.
func (a *AgentRelay) AskHuman(ctx context.Context, in core.Interaction) (core.Response, error) {
	return a.rt.AskHuman(ctx, in)
}

// Close stops the watcher, ends the relay session and releases the
// workflow directory.
func (a *AgentRelay) Close(ctx context.Context) error {
	if a.stopWatch != nil {
		a.stopWatch()
	}
	if a.client != nil {
		if err := a.client.Disconnect(ctx, "workflow process closed"); err != nil {
			a.logger.Warn("relay disconnect failed", "error", err)
		}
	}
	return a.rt.Close()
}
