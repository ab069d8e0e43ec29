// Package router maps chat commands to handlers. It extracts the argument,
// enforces the admin gate, calls the inference backend with the registry's
// active model and turns every failure into a chat reply.
package router

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"aitelegrambot/internal/metrics"
	"aitelegrambot/internal/registry"
	"aitelegrambot/internal/stream"
)

// Command tokens.
const (
	CmdStart       = "start"
	CmdHelp        = "help"
	CmdInfer       = "infer"
	CmdListModels  = "list_models"
	CmdChangeModel = "change_model"
	CmdPullModel   = "pull_model"
	CmdRemoveModel = "remove_model"
)

// Mode selects how /infer delivers the answer.
type Mode int

const (
	ModeBuffered Mode = iota
	ModeStreaming
)

func (m Mode) String() string {
	if m == ModeStreaming {
		return "streaming"
	}
	return "buffered"
}

// Update is the part of an inbound chat message the router needs.
type Update struct {
	ChatID    int64
	MessageID int64
	UserID    int64
	Username  string
	Text      string
}

// Replier sends a reply into the chat an update came from. The returned
// message can be edited in place. Implementations must not depend on the ctx
// of the update after Reply returns.
type Replier interface {
	Reply(ctx context.Context, text string) (stream.OutboundMessage, error)
}

// Backend is the inference surface the router calls.
type Backend interface {
	Chat(ctx context.Context, model, prompt string) (string, error)
	StreamChat(ctx context.Context, model, prompt string) (stream.FragmentStream, error)
	ListModels(ctx context.Context) ([]string, error)
	PullModel(ctx context.Context, name string) error
	DeleteModel(ctx context.Context, name string) error
}

// Config wires a Router.
type Config struct {
	Backend  Backend
	Registry *registry.Registry
	// AdminID is the only user allowed to run admin commands. 0 disables them all.
	AdminID int64
	// StreamTimeout bounds one inference, buffered or streamed (default 120s).
	StreamTimeout time.Duration
	// Cooldown is the wait after each periodic streaming edit. Zero means none.
	Cooldown time.Duration
	Version  string
	// BaseContext parents background pulls; Shutdown cancels them.
	BaseContext context.Context
	Publisher   EventPublisher
	Logger      zerolog.Logger
	// Sleep overrides the reassembler cool-down wait in tests.
	Sleep func(ctx context.Context, d time.Duration) error
}

type handlerFunc func(ctx context.Context, inv *invocation) error

type handler struct {
	fn       handlerFunc
	admin    bool
	needsArg bool
}

// invocation is the per-update state handed to a handler.
type invocation struct {
	id      string
	cmd     string
	arg     string
	upd     Update
	replier Replier
	log     zerolog.Logger
}

func (inv *invocation) reply(ctx context.Context, text string) (stream.OutboundMessage, error) {
	msg, err := inv.replier.Reply(ctx, text)
	if err != nil {
		inv.log.Warn().Err(err).Msg("reply failed")
		return nil, fmt.Errorf("reply: %w", err)
	}
	return msg, nil
}

// Router is stateless across invocations apart from counters and background pulls.
type Router struct {
	backend       Backend
	reg           *registry.Registry
	adminID       int64
	mode          Mode
	streamTimeout time.Duration
	version       string
	reassembler   *stream.Reassembler
	pub           EventPublisher
	log           zerolog.Logger
	handlers      map[string]handler
	botName       atomic.Value

	bgCtx    context.Context
	bgCancel context.CancelFunc
	bg       sync.WaitGroup
	inflight atomic.Int64
	pulls    atomic.Int64
}

// New validates cfg and returns a Router. The inference mode is fixed here from
// the registry's streaming flag.
func New(cfg Config) (*Router, error) {
	if cfg.Backend == nil {
		return nil, errors.New("router: backend is required")
	}
	if cfg.Registry == nil {
		return nil, errors.New("router: registry is required")
	}
	if cfg.StreamTimeout <= 0 {
		cfg.StreamTimeout = 120 * time.Second
	}
	if cfg.Publisher == nil {
		cfg.Publisher = noopPublisher{}
	}
	if cfg.BaseContext == nil {
		cfg.BaseContext = context.Background()
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}
	log := cfg.Logger.With().Str("component", "router").Logger()

	r := &Router{
		backend:       cfg.Backend,
		reg:           cfg.Registry,
		adminID:       cfg.AdminID,
		mode:          ModeBuffered,
		streamTimeout: cfg.StreamTimeout,
		version:       cfg.Version,
		pub:           cfg.Publisher,
		log:           log,
	}
	if cfg.Registry.Streaming() {
		r.mode = ModeStreaming
	}
	r.reassembler = stream.New(stream.Config{
		ChunkSize: cfg.Registry.ChunkSize(),
		Cooldown:  cfg.Cooldown,
		Describe:  describeError,
		Sleep:     cfg.Sleep,
		Logger:    cfg.Logger.With().Str("component", "stream").Logger(),
	})
	r.bgCtx, r.bgCancel = context.WithCancel(cfg.BaseContext)
	r.handlers = map[string]handler{
		CmdStart:       {fn: r.handleStart},
		CmdHelp:        {fn: r.handleHelp},
		CmdInfer:       {fn: r.handleInfer, needsArg: true},
		CmdListModels:  {fn: r.handleListModels, admin: true},
		CmdChangeModel: {fn: r.handleChangeModel, admin: true, needsArg: true},
		CmdPullModel:   {fn: r.handlePullModel, admin: true, needsArg: true},
		CmdRemoveModel: {fn: r.handleRemoveModel, admin: true, needsArg: true},
	}
	return r, nil
}

// Mode reports the inference delivery mode chosen at construction.
func (r *Router) Mode() Mode { return r.mode }

// Inflight is the number of Handle calls currently running.
func (r *Router) Inflight() int64 { return r.inflight.Load() }

// PullsInProgress is the number of background pulls currently running.
func (r *Router) PullsInProgress() int64 { return r.pulls.Load() }

// ParseCommand splits "/cmd@bot  some args " into ("cmd", "some args"). ok is
// false for text that is not a command.
func ParseCommand(text string) (cmd, arg string, ok bool) {
	cmd, _, arg, ok = splitCommand(text)
	return cmd, arg, ok
}

// splitCommand is ParseCommand that also returns the "@bot" addressee, if any.
func splitCommand(text string) (cmd, target, arg string, ok bool) {
	text = strings.TrimLeftFunc(text, unicode.IsSpace)
	if !strings.HasPrefix(text, "/") {
		return "", "", "", false
	}
	token, rest := text, ""
	if i := strings.IndexFunc(text, unicode.IsSpace); i >= 0 {
		token, rest = text[:i], text[i:]
	}
	token = strings.TrimPrefix(token, "/")
	if at := strings.IndexByte(token, '@'); at >= 0 {
		token, target = token[:at], token[at+1:]
	}
	if token == "" {
		return "", "", "", false
	}
	return token, target, strings.TrimSpace(rest), true
}

// SetBotName records the bot's own username. Commands addressed to another bot
// ("/infer@other_bot") are ignored once it is set.
func (r *Router) SetBotName(name string) { r.botName.Store(strings.TrimPrefix(name, "@")) }

func (r *Router) addressedElsewhere(target string) bool {
	name, _ := r.botName.Load().(string)
	return target != "" && name != "" && !strings.EqualFold(target, name)
}

// Handle routes one update. Unknown commands and plain text are ignored. The
// returned error is informational: every failure has already been reported in
// the chat when possible.
func (r *Router) Handle(ctx context.Context, upd Update, rep Replier) error {
	cmd, target, arg, ok := splitCommand(upd.Text)
	if !ok {
		return nil
	}
	if r.addressedElsewhere(target) {
		r.log.Debug().Str("command", cmd).Str("to", target).Msg("ignoring command for another bot")
		return nil
	}
	h, ok := r.handlers[cmd]
	if !ok {
		r.log.Debug().Str("command", cmd).Int64("chat_id", upd.ChatID).Msg("ignoring unknown command")
		return nil
	}

	r.inflight.Add(1)
	defer r.inflight.Add(-1)

	inv := &invocation{
		id:      uuid.NewString(),
		cmd:     cmd,
		arg:     arg,
		upd:     upd,
		replier: rep,
	}
	inv.log = r.log.With().
		Str("invocation_id", inv.id).
		Str("command", cmd).
		Int64("chat_id", upd.ChatID).
		Int64("user_id", upd.UserID).
		Logger()

	if h.admin && !r.isAdmin(upd.UserID) {
		inv.log.Info().Msg("admin command denied")
		metrics.CommandsTotal.WithLabelValues(cmd, metrics.OutcomeDenied).Inc()
		r.pub.Publish(Event{Name: EventCommandDenied, UserID: upd.UserID, Fields: map[string]any{"command": cmd}})
		_, err := inv.reply(ctx, NotAdminText)
		return err
	}
	if h.needsArg && arg == "" {
		metrics.CommandsTotal.WithLabelValues(cmd, metrics.OutcomeEmpty).Inc()
		text := usageMessage(cmd)
		if cmd == CmdInfer {
			text = MistakenClickMessage
		}
		_, err := inv.reply(ctx, text)
		return err
	}

	start := time.Now()
	err := h.fn(ctx, inv)
	outcome := metrics.OutcomeOK
	if err != nil {
		outcome = metrics.OutcomeError
		inv.log.Warn().Err(err).Dur("dur", time.Since(start)).Msg("command failed")
	} else {
		inv.log.Debug().Dur("dur", time.Since(start)).Msg("command handled")
	}
	metrics.CommandsTotal.WithLabelValues(cmd, outcome).Inc()
	return err
}

func (r *Router) isAdmin(userID int64) bool {
	return r.adminID != 0 && userID == r.adminID
}

// Wait blocks until background pulls finish.
func (r *Router) Wait() { r.bg.Wait() }

// Shutdown cancels background pulls and waits for them until ctx is done.
func (r *Router) Shutdown(ctx context.Context) error {
	r.bgCancel()
	done := make(chan struct{})
	go func() {
		r.bg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
