package interaction

import (
	"os"
	"testing"

	"github.com/hupe1980/agentrelay/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlugify(t *testing.T) {
	assert.Equal(t, "pick-a-color", Slugify("Pick a Color!"))
	assert.Equal(t, "already-safe", Slugify("already-safe"))
	assert.Equal(t, "a-b", Slugify("  A -- B  "))
	assert.Equal(t, "interaction", Slugify("???"))
}

func TestNormalize_Defaults(t *testing.T) {
	in := &core.ConfirmInteraction{
		InteractionBase: core.InteractionBase{Slug: "Ship It?", Prompt: "Ready?"},
	}
	require.NoError(t, Normalize(in))
	assert.Equal(t, "ship-it", in.Slug)
	assert.Equal(t, "ship-it", in.TargetKey)
	assert.Equal(t, DefaultConfirmLabel, in.ConfirmLabel)
	assert.Equal(t, DefaultCancelLabel, in.CancelLabel)
}

func TestNormalize_DerivesSlugFromPrompt(t *testing.T) {
	in := &core.ChoiceInteraction{
		InteractionBase: core.InteractionBase{Prompt: "Pick A or B"},
		Options: []core.ChoiceOption{
			{Key: "A", Label: "A"},
			{Key: "B", Label: "B"},
		},
	}
	require.NoError(t, Normalize(in))
	assert.Equal(t, "pick-a-or-b", in.Slug)
	assert.Equal(t, "pick-a-or-b", in.TargetKey)

	// An explicit slug is kept, only sanitized.
	in = &core.ChoiceInteraction{
		InteractionBase: core.InteractionBase{Slug: "Region Pick", Prompt: "Pick a region"},
		Options:         []core.ChoiceOption{{Key: "us", Label: "US"}},
	}
	require.NoError(t, Normalize(in))
	assert.Equal(t, "region-pick", in.Slug)
}

func TestNormalize_Validation(t *testing.T) {
	var verr *core.ValidationError

	err := Normalize(&core.TextInteraction{InteractionBase: core.InteractionBase{Slug: "s"}})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "prompt", verr.Field)

	err = Normalize(&core.ChoiceInteraction{
		InteractionBase: core.InteractionBase{Slug: "s", Prompt: "p"},
	})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "options", verr.Field)
}

func TestRenderPrompt_Choice(t *testing.T) {
	in := &core.ChoiceInteraction{
		InteractionBase: core.InteractionBase{Slug: "pick", Prompt: "Pick one", TargetKey: "pick"},
		Options: []core.ChoiceOption{
			{Key: "a", Label: "Approve"},
			{Key: "b", Label: "Reject"},
		},
	}

	out := RenderPrompt(in)
	assert.Contains(t, out, "Pick one")
	assert.Contains(t, out, "A) Approve")
	assert.Contains(t, out, "B) Reject")
	assert.Contains(t, out, "custom answer")

	deny := false
	in.AllowCustom = &deny
	assert.NotContains(t, RenderPrompt(in), "custom answer")
}

func TestRenderPrompt_Confirm(t *testing.T) {
	in := &core.ConfirmInteraction{
		InteractionBase: core.InteractionBase{Slug: "go", Prompt: "Proceed?", TargetKey: "go"},
		ConfirmLabel:    "Ship",
		CancelLabel:     "Hold",
	}
	out := RenderPrompt(in)
	assert.Contains(t, out, "A) Ship")
	assert.Contains(t, out, "B) Hold")
}

func TestInteractionFile_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	in := &core.TextInteraction{
		InteractionBase: core.InteractionBase{Slug: "favorite-color", Prompt: "Favorite color?", TargetKey: "color"},
	}

	path, err := WriteFile(dir, in)
	require.NoError(t, err)
	assert.FileExists(t, path)

	// Before the operator edits, the body is empty.
	answer, err := ReadAnswer(path)
	require.NoError(t, err)
	assert.Empty(t, answer)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, append(raw, []byte("\nteal\n")...), 0o644))

	answer, err = ReadAnswer(path)
	require.NoError(t, err)
	assert.Equal(t, "teal", answer)

	require.NoError(t, RemoveFile(path))
	require.NoError(t, RemoveFile(path))
}
