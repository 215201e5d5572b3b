package core

// InteractionKind discriminates the interaction variants.
type InteractionKind string

const (
	// InteractionText asks for a free-form text answer.
	InteractionText InteractionKind = "text"
	// InteractionChoice asks the human to pick one (or several) options.
	InteractionChoice InteractionKind = "choice"
	// InteractionConfirm asks a yes/no question.
	InteractionConfirm InteractionKind = "confirm"
)

// ChoiceOption is one selectable entry of a choice interaction.
type ChoiceOption struct {
	Key   string `json:"key"`
	Label string `json:"label,omitempty"`
}

// DisplayLabel returns the label, falling back to the key.
func (o ChoiceOption) DisplayLabel() string {
	if o.Label != "" {
		return o.Label
	}
	return o.Key
}

// InteractionBase carries the fields common to every interaction variant.
// The slug identifies the interaction while it is pending; the target key
// names the memory key that receives the parsed answer.
type InteractionBase struct {
	Slug      string `json:"slug"`
	Prompt    string `json:"prompt"`
	TargetKey string `json:"target_key"`
}

// Base returns the embedded common fields.
func (b *InteractionBase) Base() *InteractionBase { return b }

// Interaction is the closed set of question shapes a workflow or agent can
// pose. Concrete variants are TextInteraction, ChoiceInteraction and
// ConfirmInteraction; consumers dispatch with a type switch.
type Interaction interface {
	Kind() InteractionKind
	Base() *InteractionBase
}

// TextInteraction requests a free-form answer.
type TextInteraction struct {
	InteractionBase
	// Validation is an optional human-readable constraint hint rendered with
	// the prompt. It is advisory only; the raw answer is taken verbatim.
	Validation string `json:"validation,omitempty"`
}

// Kind implements Interaction.
func (*TextInteraction) Kind() InteractionKind { return InteractionText }

// ChoiceInteraction requests a selection among options.
type ChoiceInteraction struct {
	InteractionBase
	Options []ChoiceOption `json:"options"`
	// AllowCustom controls whether unmatched input falls back to a custom
	// free-text answer. Unset means allowed; only an explicit false
	// disables the fallback.
	AllowCustom *bool `json:"allow_custom,omitempty"`
	MultiSelect bool  `json:"multi_select,omitempty"`
}

// Kind implements Interaction.
func (*ChoiceInteraction) Kind() InteractionKind { return InteractionChoice }

// AllowsCustom reports whether unmatched input may become a custom answer.
func (c *ChoiceInteraction) AllowsCustom() bool {
	return c.AllowCustom == nil || *c.AllowCustom
}

// ConfirmInteraction requests a confirm/cancel decision.
type ConfirmInteraction struct {
	InteractionBase
	ConfirmLabel string `json:"confirm_label,omitempty"`
	CancelLabel  string `json:"cancel_label,omitempty"`
}

// Kind implements Interaction.
func (*ConfirmInteraction) Kind() InteractionKind { return InteractionConfirm }

// InteractionView is the wire/serialization form of an interaction, carried
// inside history events so remote observers can render the prompt without
// knowing the Go variant types.
type InteractionView struct {
	Type         InteractionKind `json:"type"`
	Slug         string          `json:"slug"`
	Prompt       string          `json:"prompt"`
	TargetKey    string          `json:"target_key"`
	Options      []ChoiceOption  `json:"options,omitempty"`
	AllowCustom  bool            `json:"allow_custom,omitempty"`
	MultiSelect  bool            `json:"multi_select,omitempty"`
	Validation   string          `json:"validation,omitempty"`
	ConfirmLabel string          `json:"confirm_label,omitempty"`
	CancelLabel  string          `json:"cancel_label,omitempty"`
}

// ViewOf flattens an interaction into its serializable view.
func ViewOf(in Interaction) InteractionView {
	v := InteractionView{
		Type:      in.Kind(),
		Slug:      in.Base().Slug,
		Prompt:    in.Base().Prompt,
		TargetKey: in.Base().TargetKey,
	}
	switch it := in.(type) {
	case *TextInteraction:
		v.Validation = it.Validation
	case *ChoiceInteraction:
		v.Options = it.Options
		v.AllowCustom = it.AllowsCustom()
		v.MultiSelect = it.MultiSelect
	case *ConfirmInteraction:
		v.ConfirmLabel = it.ConfirmLabel
		v.CancelLabel = it.CancelLabel
	}
	return v
}

// Materialize reconstructs the typed interaction from its view form.
func (v InteractionView) Materialize() Interaction {
	base := InteractionBase{Slug: v.Slug, Prompt: v.Prompt, TargetKey: v.TargetKey}
	switch v.Type {
	case InteractionChoice:
		allow := v.AllowCustom
		return &ChoiceInteraction{InteractionBase: base, Options: v.Options, AllowCustom: &allow, MultiSelect: v.MultiSelect}
	case InteractionConfirm:
		return &ConfirmInteraction{InteractionBase: base, ConfirmLabel: v.ConfirmLabel, CancelLabel: v.CancelLabel}
	default:
		return &TextInteraction{InteractionBase: base, Validation: v.Validation}
	}
}

// Response is the parsed outcome of answering an interaction. Raw is always
// present; exactly one interpreted shape (Text, SelectedKey, SelectedKeys,
// Confirmed or IsCustom/CustomText) is authoritative per interaction kind.
type Response struct {
	Raw          string   `json:"raw"`
	Text         string   `json:"text,omitempty"`
	SelectedKey  string   `json:"selected_key,omitempty"`
	SelectedKeys []string `json:"selected_keys,omitempty"`
	Confirmed    *bool    `json:"confirmed,omitempty"`
	IsCustom     bool     `json:"is_custom,omitempty"`
	CustomText   string   `json:"custom_text,omitempty"`
	// Interpreted marks answers that were resolved by an injected
	// interpreter rather than deterministic matching.
	Interpreted bool `json:"interpreted,omitempty"`
}

// Value returns the single value that should be stored under the
// interaction's target key.
func (r Response) Value() any {
	switch {
	case r.SelectedKeys != nil:
		return r.SelectedKeys
	case r.SelectedKey != "":
		return r.SelectedKey
	case r.Confirmed != nil:
		return *r.Confirmed
	case r.IsCustom:
		return r.CustomText
	case r.Text != "":
		return r.Text
	default:
		return r.Raw
	}
}
