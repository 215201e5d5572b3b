package core

import "context"

// Agent is one named unit of work. Implementations are opaque to the
// runtime: typically they wrap a model call, but anything that takes
// parameters and produces a result satisfies the contract.
//
// An agent may pause itself by returning a result whose Interaction field is
// non-nil. The invoker resolves the interaction through the runtime's
// blocking primitive and re-invokes the agent with the answer merged into
// its parameters under the interaction's target key.
type Agent interface {
	Name() string
	Run(ctx context.Context, params map[string]any) (*AgentResult, error)
}

// AgentResult is the outcome of a single agent invocation.
type AgentResult struct {
	// Output holds the agent's result fields. Keys prefixed with an
	// underscore are bookkeeping visible in the audit trail but stripped
	// before the result is handed back to workflow code.
	Output map[string]any

	// Interaction, when non-nil, requests a human answer before the agent
	// can finish. Output is ignored for such results.
	Interaction Interaction
}

// AgentFunc adapts a function to the Agent interface.
type AgentFunc struct {
	AgentName string
	Fn        func(ctx context.Context, params map[string]any) (*AgentResult, error)
}

// Name implements Agent.
func (a AgentFunc) Name() string { return a.AgentName }

// Run implements Agent.
func (a AgentFunc) Run(ctx context.Context, params map[string]any) (*AgentResult, error) {
	return a.Fn(ctx, params)
}
