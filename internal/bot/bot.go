// Package bot assembles the running process: registry, inference client,
// command router, Telegram poller and the ops HTTP server.
package bot

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"aitelegrambot/internal/config"
	"aitelegrambot/internal/httpapi"
	"aitelegrambot/internal/ollama"
	"aitelegrambot/internal/registry"
	"aitelegrambot/internal/router"
	"aitelegrambot/internal/telegram"
	"aitelegrambot/pkg/types"
)

// shutdownGrace bounds how long Run waits for in-flight commands and pulls.
const shutdownGrace = 15 * time.Second

// Options carries process-level collaborators that are not configuration.
type Options struct {
	Logger    zerolog.Logger
	Version   string
	Publisher router.EventPublisher
	// Sleep overrides the streaming cool-down wait in tests.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Bot owns every long-lived component. It implements httpapi.Service.
type Bot struct {
	cfg     config.Config
	version string
	log     zerolog.Logger
	started time.Time

	reg     *registry.Registry
	backend *ollama.Client
	tg      *telegram.Client
	router  *router.Router
	poller  *telegram.Poller
}

// New validates cfg and builds the clients. No network calls are made.
func New(cfg config.Config, opts Options) (*Bot, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	reg, err := registry.New(registry.Config{
		DefaultModel: cfg.DefaultModel,
		Streaming:    cfg.Streaming,
		ChunkSize:    cfg.ChunkSize,
	})
	if err != nil {
		return nil, fmt.Errorf("registry: %w", err)
	}
	tg, err := telegram.NewClient(telegram.Config{
		Token:         cfg.TelegramToken,
		APIBase:       cfg.TelegramAPIBase,
		PollTimeout:   cfg.PollTimeout(),
		RatePerSecond: cfg.TelegramRatePerSecond,
		Logger:        opts.Logger,
	})
	if err != nil {
		return nil, err
	}
	if opts.Publisher == nil {
		opts.Publisher = router.LogPublisher{Logger: opts.Logger}
	}
	if opts.Version == "" {
		opts.Version = "dev"
	}
	backend := ollama.NewClient(ollama.Config{Host: cfg.OllamaHost, Logger: opts.Logger})
	rt, err := router.New(router.Config{
		Backend:       backend,
		Registry:      reg,
		AdminID:       cfg.AdminID,
		StreamTimeout: cfg.StreamTimeout(),
		Cooldown:      cfg.FlushCooldown(),
		Version:       opts.Version,
		Publisher:     opts.Publisher,
		Logger:        opts.Logger,
		Sleep:         opts.Sleep,
	})
	if err != nil {
		return nil, err
	}
	return &Bot{
		cfg:     cfg,
		version: opts.Version,
		log:     opts.Logger,
		started: time.Now(),
		reg:     reg,
		backend: backend,
		tg:      tg,
		router:  rt,
		poller:  telegram.NewPoller(telegram.PollerConfig{Client: tg, Handler: rt, Logger: opts.Logger}),
	}, nil
}

// Run checks the bot token, then polls Telegram and serves the ops API until
// ctx is done. Background pulls are cancelled on exit and Run waits up to
// shutdownGrace for them to report back.
func (b *Bot) Run(ctx context.Context) error {
	me, err := b.tg.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("telegram getMe: %w", err)
	}
	rt := b.router
	rt.SetBotName(me.Username)

	snap := b.reg.Snapshot()
	b.log.Info().
		Str("bot", me.Username).
		Str("ollama", b.backend.BaseURL()).
		Str("model", snap.ActiveModel).
		Str("mode", rt.Mode().String()).
		Int("chunk_size", snap.ChunkSize).
		Bool("admin_configured", b.cfg.AdminID != 0).
		Msg("bot starting")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return b.poller.Run(gctx) })
	if b.cfg.HTTPAddr != "" {
		httpapi.SetLogger(b.log.With().Str("component", "httpapi").Logger())
		httpapi.SetBaseContext(gctx)
		httpapi.SetCORSOptions(len(b.cfg.CORSAllowedOrigins) > 0, b.cfg.CORSAllowedOrigins, nil, nil)
		srv := httpapi.NewServer(b.cfg.HTTPAddr, b)
		g.Go(func() error { return httpapi.Serve(gctx, srv) })
	}
	runErr := g.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := rt.Shutdown(shutdownCtx); err != nil {
		b.log.Warn().Err(err).Msg("background work did not finish before shutdown")
	}
	b.log.Info().Msg("bot stopped")
	return runErr
}

// Ready reports whether the poller has reached Telegram.
func (b *Bot) Ready() bool { return b.poller.Ready() }

// Status summarizes runtime state for the ops API.
func (b *Bot) Status() types.StatusResponse {
	snap := b.reg.Snapshot()
	now := time.Now()
	st := types.StatusResponse{
		ActiveModel:    snap.ActiveModel,
		Mode:           router.ModeBuffered.String(),
		ChunkSize:      snap.ChunkSize,
		UptimeSeconds:  int64(now.Sub(b.started).Seconds()),
		ServerTimeUnix: now.Unix(),
		Version:        b.version,
	}
	if snap.Streaming {
		st.Mode = router.ModeStreaming.String()
	}
	st.Inflight = b.router.Inflight()
	st.PullsInProgress = b.router.PullsInProgress()
	st.UpdatesTotal = b.poller.UpdatesTotal()
	st.Polling = b.poller.Ready()
	return st
}

// Models lists the backend's installed models alongside the active one.
func (b *Bot) Models(ctx context.Context) (types.ModelsResponse, error) {
	names, err := b.backend.ListModels(ctx)
	if err != nil {
		return types.ModelsResponse{}, err
	}
	return types.ModelsResponse{Models: names, Active: b.reg.ActiveModel()}, nil
}

// Registry exposes the model registry, mainly for tests and the CLI.
func (b *Bot) Registry() *registry.Registry { return b.reg }
