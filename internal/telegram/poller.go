package telegram

import (
	"context"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"aitelegrambot/internal/metrics"
	"aitelegrambot/internal/router"
)

// Handler processes one update. router.Router satisfies it.
type Handler interface {
	Handle(ctx context.Context, upd router.Update, rep router.Replier) error
}

// PollerConfig wires a Poller.
type PollerConfig struct {
	Client  *Client
	Handler Handler
	// ErrorBackoff is the wait after a failed getUpdates (default 3s).
	ErrorBackoff time.Duration
	Logger       zerolog.Logger
}

// Poller runs the long-poll loop and handles each update in its own goroutine.
type Poller struct {
	client  *Client
	handler Handler
	backoff time.Duration
	log     zerolog.Logger

	ready   atomic.Bool
	updates atomic.Int64
	wg      sync.WaitGroup
}

func NewPoller(cfg PollerConfig) *Poller {
	if cfg.ErrorBackoff <= 0 {
		cfg.ErrorBackoff = 3 * time.Second
	}
	return &Poller{
		client:  cfg.Client,
		handler: cfg.Handler,
		backoff: cfg.ErrorBackoff,
		log:     cfg.Logger.With().Str("component", "poller").Logger(),
	}
}

// Ready reports whether one getUpdates call has succeeded.
func (p *Poller) Ready() bool { return p.ready.Load() }

// UpdatesTotal is the number of updates received so far.
func (p *Poller) UpdatesTotal() int64 { return p.updates.Load() }

// Run polls until ctx is done, then waits for dispatched handlers and returns nil.
// Handlers receive a context derived from ctx.
func (p *Poller) Run(ctx context.Context) error {
	var offset int64
	p.log.Info().Msg("polling started")
	defer func() {
		p.wg.Wait()
		p.log.Info().Msg("polling stopped")
	}()
	for {
		ups, err := p.client.GetUpdates(ctx, offset)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			p.log.Warn().Err(err).Dur("backoff", p.backoff).Msg("getUpdates failed")
			t := time.NewTimer(p.backoff)
			select {
			case <-t.C:
			case <-ctx.Done():
				t.Stop()
				return nil
			}
			continue
		}
		if !p.ready.Swap(true) {
			p.log.Info().Msg("connected to telegram")
		}
		for _, u := range ups {
			if u.UpdateID >= offset {
				offset = u.UpdateID + 1
			}
			p.updates.Add(1)
			metrics.UpdatesTotal.Inc()
			if u.Message == nil || u.Message.Text == "" {
				continue
			}
			p.dispatch(ctx, toRouterUpdate(u.Message))
		}
	}
}

// Wait blocks until every dispatched handler has returned.
func (p *Poller) Wait() { p.wg.Wait() }

func (p *Poller) dispatch(ctx context.Context, upd router.Update) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer func() {
			if rec := recover(); rec != nil {
				cmd, _, _ := router.ParseCommand(upd.Text)
				metrics.CommandsTotal.WithLabelValues(cmd, metrics.OutcomePanic).Inc()
				p.log.Error().
					Interface("panic", rec).
					Bytes("stack", debug.Stack()).
					Int64("chat_id", upd.ChatID).
					Msg("handler panicked")
			}
		}()
		rep := p.client.Replier(upd.ChatID, upd.MessageID)
		if err := p.handler.Handle(ctx, upd, rep); err != nil {
			p.log.Debug().Err(err).Int64("chat_id", upd.ChatID).Msg("update handled with error")
		}
	}()
}

func toRouterUpdate(m *Message) router.Update {
	u := router.Update{ChatID: m.Chat.ID, MessageID: m.MessageID, Text: m.Text}
	if m.From != nil {
		u.UserID = m.From.ID
		u.Username = m.From.Username
	}
	return u
}
