package runtime

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/history"
	"github.com/hupe1980/agentrelay/interaction"
	"github.com/hupe1980/agentrelay/logging"
	"github.com/hupe1980/agentrelay/memory"
)

// RemoteBridge is the runtime's view of an attached relay client. All
// methods are best-effort: remote following is optional and its failures
// never abort the workflow.
type RemoteBridge interface {
	// ForwardEvent mirrors one history event to the relay session.
	ForwardEvent(ev core.HistoryEvent)
	// Answers delivers browser-submitted interaction responses.
	Answers() <-chan core.RemoteAnswer
	// AutoConfig returns the remotely configured full-auto settings, with
	// ok=false when no remote configuration is available.
	AutoConfig() (fullAuto bool, delaySec int, ok bool)
}

// WorkflowFunc is the externally authored entry point of a workflow.
type WorkflowFunc func(ctx context.Context, rt *Runtime) error

// activeDirs enforces at most one live Runtime per workflow directory in
// this process. The handle itself is explicit; there is no global "current
// runtime" accessor.
var activeDirs sync.Map

// Options configures a Runtime.
type Options struct {
	Logger   logging.Logger
	Bridge   RemoteBridge
	Prompter Prompter
	// Interpreter resolves ambiguous interaction answers; typically an
	// agent-backed implementation, injected to keep this package model-free.
	Interpreter interaction.Interpreter
	// Config overrides the workflow.yaml on disk when non-nil.
	Config *Config
	// exit is the process-exit hook used by the signal path.
	exit func(code int)
}

// WithExitFunc overrides the process exit performed after a signal stop.
// Exposed for tests.
func WithExitFunc(fn func(code int)) func(o *Options) {
	return func(o *Options) { o.exit = fn }
}

// Runtime owns one workflow directory: its memory store, history log,
// status state machine and interaction primitives.
type Runtime struct {
	dir    string
	cfg    Config
	mem    *memory.Store
	log    *history.Log
	logger logging.Logger

	bridge   RemoteBridge
	prompter Prompter
	interp   interaction.Interpreter
	exit     func(code int)

	mu      sync.Mutex
	running bool
	// pending tracks slugs of concurrently pending interactions so each
	// question gets a unique one.
	pending map[string]int
}

// New opens the workflow directory at dir, loading persisted state and
// configuration. It fails with core.ErrRunActive if another live Runtime in
// this process already owns the directory; call Close to release it.
func New(dir string, optFns ...func(o *Options)) (*Runtime, error) {
	opts := Options{Logger: logging.NoOpLogger{}, exit: os.Exit}
	for _, fn := range optFns {
		fn(&opts)
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve workflow directory: %w", err)
	}
	if _, loaded := activeDirs.LoadOrStore(abs, struct{}{}); loaded {
		return nil, core.ErrRunActive
	}

	cfg := Config{}
	if opts.Config != nil {
		cfg = *opts.Config
		if cfg.Name == "" {
			cfg.Name = filepath.Base(abs)
		}
	} else {
		cfg, err = LoadConfig(abs)
		if err != nil {
			activeDirs.Delete(abs)
			return nil, err
		}
	}

	mem, err := memory.Load(StatePath(abs), func(o *memory.Options) { o.Logger = opts.Logger })
	if err != nil {
		activeDirs.Delete(abs)
		return nil, err
	}
	log, err := history.Open(HistoryPath(abs), func(o *history.Options) { o.Logger = opts.Logger })
	if err != nil {
		activeDirs.Delete(abs)
		return nil, err
	}

	prompter := opts.Prompter
	if prompter == nil {
		if isTerminal(os.Stdin) {
			prompter = NewTTYPrompter()
		} else {
			prompter = NewFilePrompter(InteractionsDir(abs))
		}
	}

	return &Runtime{
		dir:      abs,
		cfg:      cfg,
		mem:      mem,
		log:      log,
		logger:   opts.Logger,
		bridge:   opts.Bridge,
		prompter: prompter,
		interp:   opts.Interpreter,
		exit:     opts.exit,
		pending:  map[string]int{},
	}, nil
}

// StatePath returns the persisted state file for a workflow directory.
func StatePath(dir string) string { return filepath.Join(dir, "state", "current.json") }

// HistoryPath returns the history log file for a workflow directory.
func HistoryPath(dir string) string { return filepath.Join(dir, "state", "history.jsonl") }

// InteractionsDir returns the interaction file directory.
func InteractionsDir(dir string) string { return filepath.Join(dir, "interactions") }

// AttachBridge wires (or replaces) the relay client after construction.
// The façade uses this because a relay session is seeded with the history
// the Runtime loads.
func (r *Runtime) AttachBridge(b RemoteBridge) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bridge = b
}

// Close flushes state and releases the directory for another Runtime.
func (r *Runtime) Close() error {
	activeDirs.Delete(r.dir)
	return r.mem.Flush()
}

// Dir returns the workflow directory.
func (r *Runtime) Dir() string { return r.dir }

// Config returns the effective workflow configuration.
func (r *Runtime) Config() Config { return r.cfg }

// Memory exposes the workflow state store.
func (r *Runtime) Memory() *memory.Store { return r.mem }

// History exposes the audit log.
func (r *Runtime) History() *history.Log { return r.log }

// Status returns the current run status.
func (r *Runtime) Status() core.Status { return r.mem.Status() }

// AppendEvent writes one event to the history log and mirrors it to the
// relay when attached. Every failure path still appends its audit event
// before propagating, so the durable record stays consistent.
func (r *Runtime) AppendEvent(ev core.HistoryEvent) error {
	err := r.log.Append(ev)
	if r.bridge != nil {
		r.bridge.ForwardEvent(ev)
	}
	return err
}

// RunWorkflow executes the workflow entry point, driving the status state
// machine and the signal-stop path. While fn runs, an interrupt or
// terminate signal forces a STOPPED transition, flushes state, notifies the
// relay best-effort and exits with a signal-derived code. The handlers are
// removed on completion so repeated runs in one process do not leak
// process-wide listeners.
func (r *Runtime) RunWorkflow(ctx context.Context, fn WorkflowFunc) error {
	if fn == nil {
		return &core.ValidationError{Field: "entrypoint", Reason: "workflow function is required"}
	}

	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return core.ErrRunActive
	}
	r.running = true
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.running = false
		r.mu.Unlock()
	}()

	r.mem.SetStatus(core.StatusRunning)
	r.mem.SetLastError("")
	r.mem.SetStartedAt(time.Now().UTC())
	if err := r.AppendEvent(core.NewWorkflowEvent(core.EventWorkflowStarted, r.cfg.Name, "")); err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	stopWatch := make(chan struct{})
	go func() {
		select {
		case sig := <-sigCh:
			r.stopOnSignal(sig)
		case <-stopWatch:
		}
	}()
	defer func() {
		signal.Stop(sigCh)
		close(stopWatch)
	}()

	err := fn(ctx, r)
	if err != nil {
		r.mem.SetStatus(core.StatusFailed)
		r.mem.SetLastError(err.Error())
		r.AppendEvent(core.NewWorkflowEvent(core.EventWorkflowFailed, r.cfg.Name, err.Error()))
		if ferr := r.mem.Flush(); ferr != nil {
			r.logger.Warn("state flush after failure failed", "error", ferr)
		}
		return err
	}

	r.mem.SetStatus(core.StatusCompleted)
	if err := r.AppendEvent(core.NewWorkflowEvent(core.EventWorkflowCompleted, r.cfg.Name, "")); err != nil {
		return err
	}
	return r.mem.Flush()
}

// stopOnSignal is the signal path: STOPPED status, stop event, best-effort
// relay notification, then a signal-derived exit code.
func (r *Runtime) stopOnSignal(sig os.Signal) {
	r.logger.Info("signal received, stopping run", "signal", sig.String())
	r.mem.SetStatus(core.StatusStopped)
	ev := core.NewWorkflowEvent(core.EventWorkflowStopped, r.cfg.Name, sig.String())
	r.AppendEvent(ev)
	if err := r.mem.Flush(); err != nil {
		r.logger.Warn("state flush on stop failed", "error", err)
	}

	code := 130
	if s, ok := sig.(syscall.Signal); ok {
		code = 128 + int(s)
	}
	r.exit(code)
}

// Reset clears workflow memory, keeping history.
func (r *Runtime) Reset() error {
	return r.mem.Reset()
}

// ResetHard clears workflow memory and truncates the history log.
func (r *Runtime) ResetHard() error {
	if err := r.mem.Reset(); err != nil {
		return err
	}
	return r.log.Truncate()
}
