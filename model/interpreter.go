package model

import (
	"context"
	"fmt"
	"strings"

	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/interaction"
)

// Interpreter resolves ambiguous interaction answers by asking a Provider
// to map the raw input onto the interaction's option set. It implements
// interaction.Interpreter; the deterministic matcher always runs first, so
// the provider is only consulted for genuinely unclear input.
type Interpreter struct {
	provider Provider
}

var _ interaction.Interpreter = (*Interpreter)(nil)

// NewInterpreter creates an Interpreter over the given provider.
func NewInterpreter(provider Provider) *Interpreter {
	return &Interpreter{provider: provider}
}

// Interpret implements interaction.Interpreter.
func (i *Interpreter) Interpret(ctx context.Context, in core.Interaction, raw string) (*core.Response, error) {
	prompt, ok := buildInterpretPrompt(in, raw)
	if !ok {
		return nil, nil
	}

	completion, err := i.provider.Complete(ctx, Request{
		System: "You map a user's free-form answer onto a fixed option set. Reply with the matching option key(s), comma separated, or NONE if no option fits. Reply with nothing else.",
		Prompt: prompt,
	})
	if err != nil {
		return nil, fmt.Errorf("interpret answer: %w", err)
	}

	return parseInterpretation(in, completion.Text), nil
}

// buildInterpretPrompt renders the question, options and raw answer. Text
// interactions need no interpretation; their raw input is the answer.
func buildInterpretPrompt(in core.Interaction, raw string) (string, bool) {
	var b strings.Builder
	switch it := in.(type) {
	case *core.ChoiceInteraction:
		fmt.Fprintf(&b, "Question: %s\nOptions:\n", it.Prompt)
		for _, opt := range it.Options {
			fmt.Fprintf(&b, "- %s: %s\n", opt.Key, opt.Label)
		}
	case *core.ConfirmInteraction:
		fmt.Fprintf(&b, "Question: %s\nOptions:\n- yes: %s\n- no: %s\n", it.Prompt, it.ConfirmLabel, it.CancelLabel)
	default:
		return "", false
	}
	fmt.Fprintf(&b, "Answer: %s", raw)
	return b.String(), true
}

// parseInterpretation maps the provider's reply back onto a Response for
// the interaction kind. A nil return tells the resolution ladder to move
// on to its fallback.
func parseInterpretation(in core.Interaction, text string) *core.Response {
	reply := strings.TrimSpace(strings.ToLower(text))
	if reply == "" || reply == "none" {
		return nil
	}

	switch it := in.(type) {
	case *core.ConfirmInteraction:
		switch reply {
		case "yes":
			yes := true
			return &core.Response{Confirmed: &yes}
		case "no":
			no := false
			return &core.Response{Confirmed: &no}
		}
		return nil

	case *core.ChoiceInteraction:
		var keys []string
		for _, token := range strings.Split(reply, ",") {
			token = strings.TrimSpace(token)
			for _, opt := range it.Options {
				if token == strings.ToLower(opt.Key) {
					keys = append(keys, opt.Key)
				}
			}
		}
		if len(keys) == 0 {
			return nil
		}
		if it.MultiSelect {
			return &core.Response{SelectedKeys: keys}
		}
		return &core.Response{SelectedKey: keys[0]}
	}
	return nil
}
