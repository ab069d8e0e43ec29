package router

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"aitelegrambot/internal/metrics"
	"aitelegrambot/internal/stream"
)

// replyGrace bounds replies sent after the originating context is gone.
const replyGrace = 10 * time.Second

func (r *Router) handleStart(ctx context.Context, inv *invocation) error {
	_, err := inv.reply(ctx, WelcomeMessage(r.version))
	return err
}

func (r *Router) handleHelp(ctx context.Context, inv *invocation) error {
	_, err := inv.reply(ctx, HelpMessage)
	return err
}

func (r *Router) handleInfer(ctx context.Context, inv *invocation) error {
	model := r.reg.ActiveModel()
	inv.log = inv.log.With().Str("model", model).Str("mode", r.mode.String()).Logger()
	start := time.Now()
	defer func() {
		metrics.InferenceDuration.WithLabelValues(r.mode.String()).Observe(time.Since(start).Seconds())
	}()

	if r.mode == ModeStreaming {
		return r.streamInference(ctx, inv, model)
	}
	return r.bufferedInference(ctx, inv, model)
}

func (r *Router) bufferedInference(ctx context.Context, inv *invocation, model string) error {
	ictx, cancel := context.WithTimeout(ctx, r.streamTimeout)
	defer cancel()

	answer, err := r.backend.Chat(ictx, model, inv.arg)
	if err != nil {
		rctx, rcancel := detachedIfDone(ctx)
		defer rcancel()
		if _, rerr := inv.reply(rctx, describeError(err)); rerr != nil {
			inv.log.Warn().Err(rerr).Msg("error reply not delivered")
		}
		return fmt.Errorf("chat: %w", err)
	}
	if answer == "" {
		answer = stream.NoResponseText
	}
	_, err = inv.reply(ctx, answer)
	r.pub.Publish(Event{Name: EventInferenceFinished, Model: model, UserID: inv.upd.UserID, Fields: map[string]any{"mode": "buffered", "chars": len(answer)}})
	return err
}

func (r *Router) streamInference(ctx context.Context, inv *invocation, model string) error {
	msg, err := inv.reply(ctx, stream.Placeholder)
	if err != nil {
		return err
	}
	sctx, cancel := context.WithTimeout(ctx, r.streamTimeout)
	defer cancel()

	src, err := r.backend.StreamChat(sctx, model, inv.arg)
	if err != nil {
		src = stream.Failed(err)
	}
	res := r.reassembler.Run(sctx, src, msg)
	inv.log.Debug().Int("fragments", res.Fragments).Int("flushes", res.Flushes).Msg("stream finished")
	r.pub.Publish(Event{Name: EventInferenceFinished, Model: model, UserID: inv.upd.UserID, Fields: map[string]any{
		"mode":      "streaming",
		"fragments": res.Fragments,
		"flushes":   res.Flushes,
	}})
	if res.Err != nil {
		return fmt.Errorf("stream chat: %w", res.Err)
	}
	return nil
}

func (r *Router) handleListModels(ctx context.Context, inv *invocation) error {
	names, err := r.backend.ListModels(ctx)
	if err != nil {
		metrics.ModelOperations.WithLabelValues("list", metrics.OutcomeError).Inc()
		_, _ = inv.reply(ctx, "Could not list models!\n"+describeError(err))
		return fmt.Errorf("list models: %w", err)
	}
	metrics.ModelOperations.WithLabelValues("list", metrics.OutcomeOK).Inc()
	_, err = inv.reply(ctx, FormatModelList(names, r.reg.ActiveModel()))
	return err
}

func (r *Router) handleChangeModel(ctx context.Context, inv *invocation) error {
	prev := r.reg.ChangeModel(inv.arg)
	metrics.ModelOperations.WithLabelValues("change", metrics.OutcomeOK).Inc()
	inv.log.Info().Str("from", prev).Str("to", inv.arg).Msg("active model changed")
	r.pub.Publish(Event{Name: EventModelChanged, Model: inv.arg, UserID: inv.upd.UserID, Fields: map[string]any{"previous": prev}})
	_, err := inv.reply(ctx, changingText(inv.arg))
	return err
}

// handlePullModel acknowledges at once and pulls in the background, so other
// commands keep being served while the download runs.
func (r *Router) handlePullModel(ctx context.Context, inv *invocation) error {
	if _, err := inv.reply(ctx, pullingText(inv.arg)); err != nil {
		return err
	}
	r.bg.Add(1)
	r.pulls.Add(1)
	metrics.PullsInProgress.Inc()
	r.pub.Publish(Event{Name: EventPullStarted, Model: inv.arg, UserID: inv.upd.UserID})
	go r.pull(inv)
	return nil
}

func (r *Router) pull(inv *invocation) {
	defer func() {
		if rec := recover(); rec != nil {
			metrics.CommandsTotal.WithLabelValues(inv.cmd, metrics.OutcomePanic).Inc()
			inv.log.Error().Interface("panic", rec).Bytes("stack", debug.Stack()).Msg("background pull panicked")
		}
		metrics.PullsInProgress.Dec()
		r.pulls.Add(-1)
		r.bg.Done()
	}()

	model := inv.arg
	start := time.Now()
	err := r.backend.PullModel(r.bgCtx, model)

	rctx, cancel := detachedIfDone(r.bgCtx)
	defer cancel()
	if err != nil {
		metrics.ModelOperations.WithLabelValues("pull", metrics.OutcomeError).Inc()
		inv.log.Warn().Err(err).Str("model", model).Dur("dur", time.Since(start)).Msg("pull failed")
		r.pub.Publish(Event{Name: EventPullFailed, Model: model, UserID: inv.upd.UserID, Fields: map[string]any{"error": err.Error()}})
		_, _ = inv.reply(rctx, fmt.Sprintf("Could not pull %s!\n%s", model, describeError(err)))
		return
	}
	metrics.ModelOperations.WithLabelValues("pull", metrics.OutcomeOK).Inc()
	inv.log.Info().Str("model", model).Dur("dur", time.Since(start)).Msg("pull finished")
	r.pub.Publish(Event{Name: EventPullFinished, Model: model, UserID: inv.upd.UserID})
	_, _ = inv.reply(rctx, pulledText(model))
}

func (r *Router) handleRemoveModel(ctx context.Context, inv *invocation) error {
	model := inv.arg
	if _, err := inv.reply(ctx, deletingText(model)); err != nil {
		return err
	}
	if err := r.backend.DeleteModel(ctx, model); err != nil {
		metrics.ModelOperations.WithLabelValues("remove", metrics.OutcomeError).Inc()
		rctx, cancel := detachedIfDone(ctx)
		defer cancel()
		_, _ = inv.reply(rctx, fmt.Sprintf("Could not delete %s!\n%s", model, describeError(err)))
		return fmt.Errorf("delete model: %w", err)
	}
	metrics.ModelOperations.WithLabelValues("remove", metrics.OutcomeOK).Inc()
	r.pub.Publish(Event{Name: EventModelRemoved, Model: model, UserID: inv.upd.UserID})
	if model == r.reg.ActiveModel() {
		inv.log.Warn().Str("model", model).Msg("removed the active model")
	}
	_, err := inv.reply(ctx, deletedText(model))
	return err
}

// detachedIfDone returns ctx while it is live, or a short-lived context detached
// from it once it is done.
func detachedIfDone(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx.Err() == nil {
		return ctx, func() {}
	}
	return context.WithTimeout(context.WithoutCancel(ctx), replyGrace)
}
