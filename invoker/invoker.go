package invoker

import (
	"context"
	"fmt"
	"sync"

	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/internal/util"
	"github.com/hupe1980/agentrelay/logging"
)

const (
	// DefaultRetries is the number of retries after the first failed
	// attempt, for a default total of three attempts.
	DefaultRetries = 2

	// MaxInteractionDepth bounds how many times a single invocation may
	// pause for a human answer before it is failed outright.
	MaxInteractionDepth = 5
)

// Host is the invoker's view of the runtime: the blocking interaction
// primitive and the audit log. *runtime.Runtime satisfies it.
type Host interface {
	AskHuman(ctx context.Context, in core.Interaction) (core.Response, error)
	AppendEvent(ev core.HistoryEvent) error
}

// Options configures an Invoker.
type Options struct {
	Logger  logging.Logger
	Retries int
}

// CallOptions configures a single Invoke call.
type CallOptions struct {
	// Retries overrides the invoker-wide retry budget when non-negative.
	Retries int
}

// WithCallRetries sets a per-call retry budget.
func WithCallRetries(n int) func(o *CallOptions) {
	return func(o *CallOptions) { o.Retries = n }
}

// Invoker runs registered agents with retry, interaction resumption and
// audit events. It sits on top of the runtime and is safe for concurrent
// use.
type Invoker struct {
	host    Host
	logger  logging.Logger
	retries int

	mu     sync.Mutex
	agents map[string]core.Agent
	// errs collects exhausted-retry errors for introspection. It is held
	// in memory only and never persisted.
	errs []error
}

// New creates an Invoker on top of the given host.
func New(host Host, optFns ...func(o *Options)) *Invoker {
	opts := Options{Logger: logging.NoOpLogger{}, Retries: DefaultRetries}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Invoker{
		host:    host,
		logger:  opts.Logger,
		retries: opts.Retries,
		agents:  map[string]core.Agent{},
	}
}

// Register makes agents invokable by name. Registering a name twice
// replaces the earlier agent.
func (iv *Invoker) Register(agents ...core.Agent) {
	iv.mu.Lock()
	defer iv.mu.Unlock()
	for _, a := range agents {
		iv.agents[a.Name()] = a
	}
}

// Errors returns the accumulated invocation errors, newest last.
func (iv *Invoker) Errors() []error {
	iv.mu.Lock()
	defer iv.mu.Unlock()
	out := make([]error, len(iv.errs))
	copy(out, iv.errs)
	return out
}

// Invoke runs the named agent until it produces a result, retrying failed
// attempts within the retry budget and resolving interaction requests
// through the host. An interaction pause never consumes an attempt.
// Underscore-prefixed output fields are stripped before the result is
// returned; they remain visible only to whoever inspects the raw agent
// output in the audit trail.
func (iv *Invoker) Invoke(ctx context.Context, name string, params map[string]any, optFns ...func(o *CallOptions)) (map[string]any, error) {
	callOpts := CallOptions{Retries: -1}
	for _, fn := range optFns {
		fn(&callOpts)
	}
	retries := iv.retries
	if callOpts.Retries >= 0 {
		retries = callOpts.Retries
	}

	iv.mu.Lock()
	agent, ok := iv.agents[name]
	iv.mu.Unlock()
	if !ok {
		return nil, &core.ValidationError{Field: "agent", Reason: fmt.Sprintf("no agent registered as %q", name)}
	}

	if err := iv.host.AppendEvent(core.NewAgentEvent(core.EventAgentStarted, name, 1, "")); err != nil {
		return nil, err
	}

	// params is copied so interaction answers merged between attempts do
	// not leak into the caller's map.
	callParams := util.CloneMap(params)

	var attemptErrs []error
	attempt := 1
	depth := 0
	for {
		res, err := agent.Run(ctx, callParams)
		if err != nil {
			attemptErrs = append(attemptErrs, err)
			if attempt > retries {
				return nil, iv.fail(name, attempt, attemptErrs)
			}
			attempt++
			iv.logger.Warn("agent attempt failed, retrying", "agent", name, "attempt", attempt, "error", err)
			if aerr := iv.host.AppendEvent(core.NewAgentEvent(core.EventAgentRetried, name, attempt, err.Error())); aerr != nil {
				return nil, aerr
			}
			continue
		}

		if res != nil && res.Interaction != nil {
			depth++
			if depth > MaxInteractionDepth {
				attemptErrs = append(attemptErrs, core.ErrInteractionDepthExceeded)
				return nil, iv.fail(name, attempt, attemptErrs)
			}
			resp, aerr := iv.host.AskHuman(ctx, res.Interaction)
			if aerr != nil {
				return nil, aerr
			}
			callParams[res.Interaction.Base().TargetKey] = resp.Value()
			if aerr := iv.host.AppendEvent(core.NewAgentEvent(core.EventAgentResumed, name, attempt, res.Interaction.Base().Slug)); aerr != nil {
				return nil, aerr
			}
			continue
		}

		if err := iv.host.AppendEvent(core.NewAgentEvent(core.EventAgentCompleted, name, attempt, "")); err != nil {
			return nil, err
		}
		var output map[string]any
		if res != nil {
			output = res.Output
		}
		return util.StripUnderscored(output), nil
	}
}

// fail emits the terminal failure event, records the error for
// introspection and builds the returned AgentExecutionError.
func (iv *Invoker) fail(name string, attempt int, attemptErrs []error) error {
	final := &core.AgentExecutionError{Agent: name, Attempts: attemptErrs}
	if err := iv.host.AppendEvent(core.NewAgentEvent(core.EventAgentFailed, name, attempt, final.Error())); err != nil {
		iv.logger.Warn("failure event append failed", "agent", name, "error", err)
	}
	iv.mu.Lock()
	iv.errs = append(iv.errs, final)
	iv.mu.Unlock()
	return final
}
