package interaction

import (
	"github.com/hupe1980/agentrelay/core"
)

// DefaultConfirmLabel is used when a confirm interaction specifies none.
const DefaultConfirmLabel = "Confirm"

// DefaultCancelLabel is used when a confirm interaction specifies none.
const DefaultCancelLabel = "Cancel"

// Normalize validates an interaction against its type requirements and
// fills in type defaults in place: a missing slug is derived from the
// prompt, the slug is sanitized, a missing target key defaults to the
// slug, and confirm interactions receive default labels.
func Normalize(in core.Interaction) error {
	if in == nil {
		return &core.ValidationError{Field: "interaction", Reason: "is nil"}
	}

	base := in.Base()
	if base.Prompt == "" {
		return &core.ValidationError{Field: "prompt", Reason: "is required"}
	}
	if base.Slug == "" {
		base.Slug = base.Prompt
	}
	base.Slug = Slugify(base.Slug)
	if base.TargetKey == "" {
		base.TargetKey = base.Slug
	}

	switch it := in.(type) {
	case *core.TextInteraction:
		// No variant-specific requirements.
	case *core.ChoiceInteraction:
		if len(it.Options) == 0 {
			return &core.ValidationError{Field: "options", Reason: "choice interaction requires at least one option"}
		}
		for _, opt := range it.Options {
			if opt.Key == "" {
				return &core.ValidationError{Field: "options", Reason: "option key is required"}
			}
		}
	case *core.ConfirmInteraction:
		if it.ConfirmLabel == "" {
			it.ConfirmLabel = DefaultConfirmLabel
		}
		if it.CancelLabel == "" {
			it.CancelLabel = DefaultCancelLabel
		}
	default:
		return &core.ValidationError{Field: "type", Reason: "unknown interaction kind"}
	}
	return nil
}
