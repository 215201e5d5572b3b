package interaction

import (
	"fmt"
	"strings"

	"github.com/hupe1980/agentrelay/core"
)

// RenderPrompt produces the human-readable form of an interaction: the
// prompt text, lettered options for choices, a custom-answer hint when
// allowed, and the confirm/cancel labels for confirmations.
func RenderPrompt(in core.Interaction) string {
	var b strings.Builder
	b.WriteString(in.Base().Prompt)

	switch it := in.(type) {
	case *core.TextInteraction:
		if it.Validation != "" {
			fmt.Fprintf(&b, "\n(%s)", it.Validation)
		}
	case *core.ChoiceInteraction:
		for i, opt := range it.Options {
			fmt.Fprintf(&b, "\n  %c) %s", 'A'+i, opt.DisplayLabel())
		}
		if it.MultiSelect {
			b.WriteString("\n(select one or more, e.g. \"a, c\")")
		}
		if it.AllowsCustom() {
			b.WriteString("\n(or type a custom answer)")
		}
	case *core.ConfirmInteraction:
		fmt.Fprintf(&b, "\n  A) %s\n  B) %s", it.ConfirmLabel, it.CancelLabel)
	}
	return b.String()
}
