package interaction

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/hupe1980/agentrelay/core"
)

// ErrUnmatchedAnswer is returned when an answer matches nothing and the
// interaction does not permit a custom free-text response.
var ErrUnmatchedAnswer = errors.New("answer did not match the interaction")

// Interpreter is an injected capability that resolves answers the
// deterministic matcher could not. In the reference system this is another
// agent call; the protocol itself has no model dependency.
type Interpreter interface {
	Interpret(ctx context.Context, in core.Interaction, raw string) (*core.Response, error)
}

// InterpreterFunc adapts a function to the Interpreter interface.
type InterpreterFunc func(ctx context.Context, in core.Interaction, raw string) (*core.Response, error)

// Interpret implements Interpreter.
func (f InterpreterFunc) Interpret(ctx context.Context, in core.Interaction, raw string) (*core.Response, error) {
	return f(ctx, in, raw)
}

// letterToken matches standalone letter answers like "b", "b:", "c)" inside
// a multi-select input.
var letterToken = regexp.MustCompile(`(?i)\b([a-z])\b[):.\-]?`)

// positional separators allowed after a letter answer ("a)", "b.", "c: x").
const letterSeparators = ").:- \t"

// Match applies the deterministic matching rules for the interaction kind
// and reports whether the input was recognized. It never consults an
// interpreter; see Resolve for the full ladder.
func Match(in core.Interaction, raw string) (core.Response, bool) {
	trimmed := strings.TrimSpace(raw)
	resp := core.Response{Raw: raw}

	switch it := in.(type) {
	case *core.TextInteraction:
		// The raw string is the answer verbatim.
		resp.Text = trimmed
		return resp, true

	case *core.ConfirmInteraction:
		return matchConfirm(it, resp, trimmed)

	case *core.ChoiceInteraction:
		if it.MultiSelect {
			return matchMultiChoice(it, resp, trimmed)
		}
		return matchSingleChoice(it, resp, trimmed)
	}
	return resp, false
}

func matchConfirm(it *core.ConfirmInteraction, resp core.Response, trimmed string) (core.Response, bool) {
	lower := strings.ToLower(trimmed)
	yes, no := true, false

	// Exact label matches take precedence over prefix rules so labels like
	// "Begin" are not misread via the letter shortcuts. Empty labels never
	// match so an un-normalized interaction cannot confirm on empty input.
	switch {
	case it.ConfirmLabel != "" && lower == strings.ToLower(it.ConfirmLabel):
		resp.Confirmed = &yes
		return resp, true
	case it.CancelLabel != "" && lower == strings.ToLower(it.CancelLabel):
		resp.Confirmed = &no
		return resp, true
	}

	for _, p := range []string{"y", "a", "confirm"} {
		if strings.HasPrefix(lower, p) {
			resp.Confirmed = &yes
			return resp, true
		}
	}
	for _, p := range []string{"n", "b", "cancel"} {
		if strings.HasPrefix(lower, p) {
			resp.Confirmed = &no
			return resp, true
		}
	}
	return resp, false
}

func matchSingleChoice(it *core.ChoiceInteraction, resp core.Response, trimmed string) (core.Response, bool) {
	lower := strings.ToLower(trimmed)
	for i, opt := range it.Options {
		if matchesOption(lower, i, opt) {
			resp.SelectedKey = opt.Key
			return resp, true
		}
	}
	return resp, false
}

// matchesOption checks one option at its position: the positional letter
// (optionally followed by a separator), the key, the label, or the label
// followed by ":" or "-".
func matchesOption(lower string, index int, opt core.ChoiceOption) bool {
	letter := byte('a' + index)
	if len(lower) > 0 && lower[0] == letter {
		if len(lower) == 1 || strings.IndexByte(letterSeparators, lower[1]) >= 0 {
			return true
		}
	}
	if lower == strings.ToLower(opt.Key) {
		return true
	}
	label := strings.ToLower(opt.Label)
	if label == "" {
		return false
	}
	if lower == label || strings.HasPrefix(lower, label+":") || strings.HasPrefix(lower, label+"-") {
		return true
	}
	return false
}

func matchMultiChoice(it *core.ChoiceInteraction, resp core.Response, trimmed string) (core.Response, bool) {
	seen := map[string]bool{}
	var keys []string
	add := func(key string) {
		if !seen[key] {
			seen[key] = true
			keys = append(keys, key)
		}
	}

	// One regex pass over letter tokens ("a", "b:", "c)" ...).
	for _, m := range letterToken.FindAllStringSubmatch(trimmed, -1) {
		idx := int(strings.ToLower(m[1])[0] - 'a')
		if idx >= 0 && idx < len(it.Options) {
			add(it.Options[idx].Key)
		}
	}

	// Union with comma/space separated tokens equal to a key or label.
	for _, token := range strings.FieldsFunc(trimmed, func(r rune) bool { return r == ',' || r == ' ' || r == '\t' || r == '\n' }) {
		token = strings.ToLower(strings.Trim(token, letterSeparators))
		if token == "" {
			continue
		}
		for _, opt := range it.Options {
			if token == strings.ToLower(opt.Key) || token == strings.ToLower(opt.Label) {
				add(opt.Key)
			}
		}
	}

	if len(keys) == 0 {
		return resp, false
	}
	resp.SelectedKeys = keys
	return resp, true
}

// Resolve runs the full matching ladder: deterministic rules first, then the
// injected interpreter for ambiguous or empty matches, then the custom
// free-text fallback where custom answers are allowed.
func Resolve(ctx context.Context, in core.Interaction, raw string, interp Interpreter) (core.Response, error) {
	if resp, ok := Match(in, raw); ok {
		return resp, nil
	}

	if interp != nil {
		if resp, err := interp.Interpret(ctx, in, raw); err == nil && resp != nil && acceptable(in, *resp) {
			resp.Raw = raw
			resp.Interpreted = true
			return *resp, nil
		}
	}

	if allowsCustomFallback(in) {
		return core.Response{Raw: raw, IsCustom: true, CustomText: strings.TrimSpace(raw)}, nil
	}
	return core.Response{Raw: raw}, ErrUnmatchedAnswer
}

// acceptable reports whether an interpreter result carries a recognized
// shape for the interaction kind.
func acceptable(in core.Interaction, resp core.Response) bool {
	switch it := in.(type) {
	case *core.ConfirmInteraction:
		return resp.Confirmed != nil
	case *core.ChoiceInteraction:
		if it.MultiSelect && len(resp.SelectedKeys) > 0 {
			return true
		}
		if !it.MultiSelect && resp.SelectedKey != "" {
			return true
		}
		return resp.IsCustom && it.AllowsCustom()
	default:
		return resp.Text != "" || resp.IsCustom
	}
}

// allowsCustomFallback reports whether unmatched input may become a custom
// answer. Only a choice interaction can explicitly disable the fallback.
func allowsCustomFallback(in core.Interaction) bool {
	if it, ok := in.(*core.ChoiceInteraction); ok {
		return it.AllowsCustom()
	}
	return true
}
