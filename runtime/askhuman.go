package runtime

import (
	"context"
	"fmt"
	"time"

	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/interaction"
)

// AskHuman poses an interaction and blocks until it is answered, locally or
// remotely. The answer is written to the interaction's target key and a
// source-tagged resolution event is appended. In full-auto mode a choice
// interaction is answered with its first option after a countdown instead.
func (r *Runtime) AskHuman(ctx context.Context, in core.Interaction) (core.Response, error) {
	if err := interaction.Normalize(in); err != nil {
		return core.Response{}, err
	}

	slug := r.claimSlug(in.Base().Slug)
	in.Base().Slug = slug
	defer r.releaseSlug(slug)

	if err := r.AppendEvent(core.NewInteractionRequestedEvent(in)); err != nil {
		return core.Response{}, err
	}

	// Only single-select choices are auto-answerable; text, multi-select
	// and confirm always wait for a responder.
	if choice, ok := in.(*core.ChoiceInteraction); ok && !choice.MultiSelect {
		if auto, delay := r.effectiveAuto(); auto {
			return r.autoAnswer(ctx, choice, delay)
		}
	}

	return r.waitForInteraction(ctx, in)
}

// autoAnswer counts down, then synthesizes the first option's key as the
// answer and emits the distinct auto-answered event.
func (r *Runtime) autoAnswer(ctx context.Context, choice *core.ChoiceInteraction, delay time.Duration) (core.Response, error) {
	r.logger.Info("full-auto: answering with first option", "slug", choice.Slug, "delay", delay)
	select {
	case <-ctx.Done():
		return core.Response{}, ctx.Err()
	case <-time.After(delay):
	}

	key := choice.Options[0].Key
	resp := core.Response{Raw: key, SelectedKey: key}
	if err := r.finishInteraction(choice, resp, core.SourceAuto); err != nil {
		return core.Response{}, err
	}
	return resp, nil
}

// waitForInteraction is the shared blocking primitive behind AskHuman. The
// local prompter and the remote relay race; the first outcome resolves the
// interaction exactly once and the loser is discarded.
func (r *Runtime) waitForInteraction(ctx context.Context, in core.Interaction) (core.Response, error) {
	type outcome struct {
		resp   core.Response
		source core.ResponseSource
		err    error
	}
	ch := make(chan outcome, 2)

	go func() {
		raw, err := r.prompter.Prompt(ctx, in, interaction.RenderPrompt(in))
		if err != nil {
			ch <- outcome{source: core.SourceLocal, err: err}
			return
		}
		resp, err := interaction.Resolve(ctx, in, raw, r.interp)
		ch <- outcome{resp: resp, source: core.SourceLocal, err: err}
	}()

	if r.bridge != nil {
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case ans, ok := <-r.bridge.Answers():
					if !ok {
						return
					}
					if ans.Slug != "" && ans.Slug != in.Base().Slug {
						// An answer for a different (stale) interaction;
						// drop it rather than misroute it.
						r.logger.Warn("discarding remote answer for unknown interaction", "slug", ans.Slug)
						continue
					}
					ch <- outcome{resp: ans.Response, source: core.SourceRemote}
					return
				}
			}
		}()
	}

	for {
		select {
		case <-ctx.Done():
			return core.Response{}, ctx.Err()
		case out := <-ch:
			if out.err != nil {
				if r.bridge != nil && out.source == core.SourceLocal {
					// The remote path is still armed; a failed local
					// prompt (EOF, unmatched answer) does not abandon
					// the interaction.
					r.logger.Warn("local prompt failed, waiting for remote answer", "error", out.err)
					continue
				}
				return core.Response{}, out.err
			}
			if err := r.finishInteraction(in, out.resp, out.source); err != nil {
				return core.Response{}, err
			}
			return out.resp, nil
		}
	}
}

// finishInteraction persists the answer under the target key and appends
// the resolution event.
func (r *Runtime) finishInteraction(in core.Interaction, resp core.Response, source core.ResponseSource) error {
	r.mem.Set(in.Base().TargetKey, resp.Value())
	return r.AppendEvent(core.NewInteractionResolvedEvent(in, resp, source))
}

// effectiveAuto resolves the full-auto settings, preferring the remote
// session configuration over workflow.yaml.
func (r *Runtime) effectiveAuto() (bool, time.Duration) {
	if r.bridge != nil {
		if auto, delaySec, ok := r.bridge.AutoConfig(); ok {
			return auto, time.Duration(delaySec) * time.Second
		}
	}
	return r.cfg.FullAuto, time.Duration(r.cfg.AutoSelectDelaySec) * time.Second
}

// claimSlug reserves a slug unique among the run's pending interactions,
// suffixing duplicates.
func (r *Runtime) claimSlug(slug string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	candidate := slug
	for i := 2; r.pending[candidate] > 0; i++ {
		candidate = fmt.Sprintf("%s-%d", slug, i)
	}
	r.pending[candidate]++
	return candidate
}

func (r *Runtime) releaseSlug(slug string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.pending, slug)
}
