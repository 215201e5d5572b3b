package model_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/model"
)

type cannedProvider struct {
	reply   string
	prompts []string
}

func (p *cannedProvider) Complete(ctx context.Context, req model.Request) (model.Completion, error) {
	p.prompts = append(p.prompts, req.Prompt)
	return model.Completion{Text: p.reply, Model: "canned", Provider: "mock"}, nil
}

func choiceInteraction() *core.ChoiceInteraction {
	return &core.ChoiceInteraction{
		InteractionBase: core.InteractionBase{Prompt: "Pick one", Slug: "pick"},
		Options: []core.ChoiceOption{
			{Key: "alpha", Label: "Alpha"},
			{Key: "beta", Label: "Beta"},
		},
	}
}

func TestInterpreterMapsChoiceKey(t *testing.T) {
	provider := &cannedProvider{reply: "beta"}
	interp := model.NewInterpreter(provider)

	resp, err := interp.Interpret(context.Background(), choiceInteraction(), "the second one sounds better")
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, "beta", resp.SelectedKey)

	require.Len(t, provider.prompts, 1)
	assert.Contains(t, provider.prompts[0], "the second one sounds better")
	assert.Contains(t, provider.prompts[0], "- alpha: Alpha")
}

func TestInterpreterMultiSelect(t *testing.T) {
	provider := &cannedProvider{reply: "alpha, beta"}
	interp := model.NewInterpreter(provider)

	in := choiceInteraction()
	in.MultiSelect = true
	resp, err := interp.Interpret(context.Background(), in, "both of them")
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, []string{"alpha", "beta"}, resp.SelectedKeys)
}

func TestInterpreterConfirm(t *testing.T) {
	provider := &cannedProvider{reply: "YES"}
	interp := model.NewInterpreter(provider)

	resp, err := interp.Interpret(context.Background(), &core.ConfirmInteraction{
		InteractionBase: core.InteractionBase{Prompt: "Proceed?", Slug: "proceed"},
		ConfirmLabel:    "Proceed",
		CancelLabel:     "Abort",
	}, "sure, go ahead")
	require.NoError(t, err)
	require.NotNil(t, resp)
	require.NotNil(t, resp.Confirmed)
	assert.True(t, *resp.Confirmed)
}

func TestInterpreterNoneMeansUnresolved(t *testing.T) {
	provider := &cannedProvider{reply: "NONE"}
	interp := model.NewInterpreter(provider)

	resp, err := interp.Interpret(context.Background(), choiceInteraction(), "gibberish")
	require.NoError(t, err)
	assert.Nil(t, resp)
}

func TestInterpreterSkipsTextInteractions(t *testing.T) {
	provider := &cannedProvider{reply: "should not be called"}
	interp := model.NewInterpreter(provider)

	resp, err := interp.Interpret(context.Background(), &core.TextInteraction{
		InteractionBase: core.InteractionBase{Prompt: "Say anything", Slug: "say"},
	}, "hello")
	require.NoError(t, err)
	assert.Nil(t, resp)
	assert.Empty(t, provider.prompts)
}
