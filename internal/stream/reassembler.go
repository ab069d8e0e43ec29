package stream

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"aitelegrambot/internal/metrics"
)

// Texts shown in the outbound message outside of the generated answer.
const (
	Placeholder    = "wait..."
	NoResponseText = "(no response)"
	TimeoutNote    = "⚠️ incomplete: timed out"
	CancelledNote  = "⚠️ incomplete: cancelled"
)

// Flush kinds, used as metric labels and in logs.
const (
	kindPeriodic = "periodic"
	kindFinal    = "final"
	kindFailure  = "failure"
)

// Defaults applied when the corresponding Config fields are unset.
const (
	DefaultChunkSize       = 5
	DefaultCooldown        = 2 * time.Second
	defaultFinalizeTimeout = 5 * time.Second
	// DefaultMaxText is the Telegram message limit, in characters.
	DefaultMaxText = 4096
)

// FragmentStream is a lazy, finite, non-restartable sequence of text deltas.
// Next returns io.EOF once the producer signals completion. Implementations must
// return promptly when ctx is done.
type FragmentStream interface {
	Next(ctx context.Context) (string, error)
	Close() error
}

// OutboundMessage is a chat message that can be edited in place. It is owned by
// the transport; the reassembler only references it.
type OutboundMessage interface {
	Edit(ctx context.Context, text string) error
}

// Config carries the reassembler tunables.
type Config struct {
	// ChunkSize is the number of fragments between flushes (<=0 selects DefaultChunkSize).
	ChunkSize int
	// Cooldown is waited after each periodic flush, before the next pull. Negative means none.
	Cooldown time.Duration
	// FinalizeTimeout bounds the best-effort failure flush once ctx is already done.
	FinalizeTimeout time.Duration
	// MaxText is the longest text, in characters, the outbound message can show.
	// The failure note always fits; the accumulated text is cut to make room.
	MaxText int
	// Describe renders a stream error as a user-visible note. Defaults to err.Error().
	Describe func(error) string
	// Sleep waits d or until ctx is done. Tests replace it to avoid real delays.
	Sleep  func(ctx context.Context, d time.Duration) error
	Logger zerolog.Logger
}

// Result summarizes one reassembly.
type Result struct {
	// Text is the last text successfully shown in the outbound message.
	Text      string
	Fragments int
	Flushes   int
	// Err is the stream failure (nil on normal end) or, on normal end, the error of
	// the final edit.
	Err error
}

// Reassembler turns a fragment stream into a bounded number of edits of a single
// outbound message. It holds no per-invocation state and is safe for concurrent use.
type Reassembler struct {
	chunkSize       int
	cooldown        time.Duration
	finalizeTimeout time.Duration
	maxText         int
	describe        func(error) string
	sleep           func(ctx context.Context, d time.Duration) error
	log             zerolog.Logger
}

// New constructs a Reassembler, applying defaults for unset fields.
func New(cfg Config) *Reassembler {
	r := &Reassembler{
		chunkSize:       cfg.ChunkSize,
		cooldown:        cfg.Cooldown,
		finalizeTimeout: cfg.FinalizeTimeout,
		maxText:         cfg.MaxText,
		describe:        cfg.Describe,
		sleep:           cfg.Sleep,
		log:             cfg.Logger,
	}
	if r.chunkSize <= 0 {
		r.chunkSize = DefaultChunkSize
	}
	if r.cooldown < 0 {
		r.cooldown = 0
	}
	if r.finalizeTimeout <= 0 {
		r.finalizeTimeout = defaultFinalizeTimeout
	}
	if r.maxText <= 0 {
		r.maxText = DefaultMaxText
	}
	if r.describe == nil {
		r.describe = func(err error) string { return "⚠️ " + err.Error() }
	}
	if r.sleep == nil {
		r.sleep = sleepCtx
	}
	return r
}

// ChunkSize reports the effective chunk size.
func (r *Reassembler) ChunkSize() int { return r.chunkSize }

// state is the ReassemblyState of one invocation.
type state struct {
	acc            strings.Builder
	fragments      int
	lastFlushCount int
	lastText       string
	flushes        int
}

// Run consumes src until it ends or fails and mirrors the accumulated text into msg.
// A flush happens every ChunkSize fragments, followed by the cool-down. On normal end
// a final flush is issued unless the last fragments were already shown; an empty
// stream shows NoResponseText. On failure the accumulated text is shown with a note.
// The overall deadline belongs to the caller's ctx.
func (r *Reassembler) Run(ctx context.Context, src FragmentStream, msg OutboundMessage) Result {
	defer src.Close()

	st := &state{}
	for {
		frag, err := src.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return r.finish(ctx, msg, st)
			}
			return r.fail(ctx, msg, st, err)
		}
		if frag == "" {
			continue
		}
		st.acc.WriteString(frag)
		st.fragments++
		metrics.StreamFragments.Inc()

		if st.fragments%r.chunkSize != 0 {
			continue
		}
		// Periodic edit errors are not fatal: the final flush shows the full text.
		_ = r.flush(ctx, msg, st, st.acc.String(), kindPeriodic)
		if err := r.sleep(ctx, r.cooldown); err != nil {
			return r.fail(ctx, msg, st, err)
		}
	}
}

func (r *Reassembler) finish(ctx context.Context, msg OutboundMessage, st *state) Result {
	res := Result{Fragments: st.fragments}
	switch {
	case st.fragments == 0:
		res.Err = r.flush(ctx, msg, st, NoResponseText, kindFinal)
	case st.lastFlushCount < st.fragments || st.lastText != st.acc.String():
		res.Err = r.flush(ctx, msg, st, st.acc.String(), kindFinal)
	}
	res.Text = st.lastText
	res.Flushes = st.flushes
	r.log.Debug().Int("fragments", st.fragments).Int("flushes", st.flushes).Msg("stream complete")
	return res
}

func (r *Reassembler) fail(ctx context.Context, msg OutboundMessage, st *state, cause error) Result {
	var note string
	switch {
	case errors.Is(cause, context.DeadlineExceeded):
		note = TimeoutNote
	case errors.Is(cause, context.Canceled):
		note = CancelledNote
	default:
		note = r.describe(cause)
	}
	text := withNote(st.acc.String(), note, r.maxText)

	// The invoking ctx may already be done; the edit still gets a bounded attempt.
	fctx := ctx
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		fctx, cancel = context.WithTimeout(context.WithoutCancel(ctx), r.finalizeTimeout)
		defer cancel()
	}
	if err := r.flush(fctx, msg, st, text, kindFailure); err != nil {
		r.log.Warn().Err(err).Msg("failure flush not delivered")
	}
	r.log.Info().Err(cause).Int("fragments", st.fragments).Int("flushes", st.flushes).Msg("stream aborted")
	return Result{Text: st.lastText, Fragments: st.fragments, Flushes: st.flushes, Err: cause}
}

// flush edits msg to show text. Text identical to what is already shown is skipped.
func (r *Reassembler) flush(ctx context.Context, msg OutboundMessage, st *state, text, kind string) error {
	if text == st.lastText {
		return nil
	}
	st.flushes++
	metrics.StreamFlushes.WithLabelValues(kind).Inc()
	if err := msg.Edit(ctx, text); err != nil {
		metrics.StreamFlushErrors.WithLabelValues(kind).Inc()
		r.log.Warn().Err(err).Str("kind", kind).Int("fragments", st.fragments).Msg("flush failed")
		return err
	}
	st.lastText = text
	st.lastFlushCount = st.fragments
	r.log.Debug().Str("kind", kind).Int("fragments", st.fragments).Int("chars", len(text)).Msg("flushed")
	return nil
}

// withNote appends note to body, cutting body so the result has at most limit
// characters. The note is never cut unless it alone exceeds limit.
func withNote(body, note string, limit int) string {
	const sep, ellipsis = "\n\n", "…"
	noteRunes := []rune(note)
	if len(noteRunes) >= limit {
		return string(noteRunes[:limit])
	}
	if body == "" {
		return note
	}
	room := limit - len(noteRunes) - len(sep)
	if bodyRunes := []rune(body); len(bodyRunes) > room {
		if room < 2 {
			return note
		}
		body = string(bodyRunes[:room-1]) + ellipsis
	}
	return body + sep + note
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type failedStream struct{ err error }

func (s failedStream) Next(context.Context) (string, error) { return "", s.err }
func (failedStream) Close() error                           { return nil }

// Failed returns a stream whose first Next reports err. Callers use it when the
// producer could not be started, so the message still gets a failure flush.
func Failed(err error) FragmentStream { return failedStream{err: err} }
