package router

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"aitelegrambot/internal/registry"
	"aitelegrambot/internal/stream"
)

// fakeBackend records calls; zero-value funcs succeed with empty results.
type fakeBackend struct {
	mu     sync.Mutex
	calls  []string
	models []string

	chat   func(ctx context.Context, model, prompt string) (string, error)
	stream func(ctx context.Context, model, prompt string) (stream.FragmentStream, error)
	list   func(ctx context.Context) ([]string, error)
	pull   func(ctx context.Context, name string) error
	delete func(ctx context.Context, name string) error
}

func (b *fakeBackend) record(call string) {
	b.mu.Lock()
	b.calls = append(b.calls, call)
	b.mu.Unlock()
}

func (b *fakeBackend) Calls() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.calls...)
}

func (b *fakeBackend) Chat(ctx context.Context, model, prompt string) (string, error) {
	b.record("chat " + model + ": " + prompt)
	if b.chat != nil {
		return b.chat(ctx, model, prompt)
	}
	return "echo: " + prompt, nil
}

func (b *fakeBackend) StreamChat(ctx context.Context, model, prompt string) (stream.FragmentStream, error) {
	b.record("stream " + model + ": " + prompt)
	if b.stream != nil {
		return b.stream(ctx, model, prompt)
	}
	return &sliceStream{frags: []string{"echo: ", prompt}}, nil
}

func (b *fakeBackend) ListModels(ctx context.Context) ([]string, error) {
	b.record("list")
	if b.list != nil {
		return b.list(ctx)
	}
	return b.models, nil
}

func (b *fakeBackend) PullModel(ctx context.Context, name string) error {
	b.record("pull " + name)
	if b.pull != nil {
		return b.pull(ctx, name)
	}
	return nil
}

func (b *fakeBackend) DeleteModel(ctx context.Context, name string) error {
	b.record("delete " + name)
	if b.delete != nil {
		return b.delete(ctx, name)
	}
	return nil
}

type sliceStream struct {
	frags []string
	err   error
	pos   int
}

func (s *sliceStream) Next(ctx context.Context) (string, error) {
	if s.pos < len(s.frags) {
		s.pos++
		return s.frags[s.pos-1], nil
	}
	if s.err != nil {
		return "", s.err
	}
	return "", io.EOF
}

func (s *sliceStream) Close() error { return nil }

// chat records every reply and edit in one ordered transcript.
type chat struct {
	mu         sync.Mutex
	transcript []string
	replies    []string
	failReply  error
	notify     chan string
}

func newChat() *chat { return &chat{notify: make(chan string, 64)} }

func (c *chat) Reply(ctx context.Context, text string) (stream.OutboundMessage, error) {
	if c.failReply != nil {
		return nil, c.failReply
	}
	c.mu.Lock()
	c.transcript = append(c.transcript, "reply: "+text)
	c.replies = append(c.replies, text)
	c.mu.Unlock()
	c.notify <- text
	return &chatMessage{chat: c}, nil
}

func (c *chat) Replies() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.replies...)
}

func (c *chat) Transcript() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.transcript...)
}

// waitFor blocks until a reply with text arrives.
func (c *chat) waitFor(t *testing.T, text string) {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case got := <-c.notify:
			if got == text {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for reply %q; got %q", text, c.Replies())
		}
	}
}

type chatMessage struct{ chat *chat }

func (m *chatMessage) Edit(ctx context.Context, text string) error {
	m.chat.mu.Lock()
	m.chat.transcript = append(m.chat.transcript, "edit: "+text)
	m.chat.mu.Unlock()
	return nil
}

const adminID = 42

type routerOpts struct {
	streaming bool
	chunk     int
	adminID   int64
	timeout   time.Duration
}

func newTestRouter(t *testing.T, b *fakeBackend, o routerOpts) (*Router, *registry.Registry, *MemoryPublisher) {
	t.Helper()
	if o.chunk == 0 {
		o.chunk = 5
	}
	reg, err := registry.New(registry.Config{DefaultModel: "tusharhero/rationalai", Streaming: o.streaming, ChunkSize: o.chunk})
	require.NoError(t, err)
	pub := NewMemoryPublisher()
	r, err := New(Config{
		Backend:       b,
		Registry:      reg,
		AdminID:       o.adminID,
		StreamTimeout: o.timeout,
		Version:       "v1.2.3",
		Publisher:     pub,
		Sleep:         func(ctx context.Context, d time.Duration) error { return ctx.Err() },
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = r.Shutdown(ctx)
	})
	return r, reg, pub
}

func upd(userID int64, text string) Update {
	return Update{ChatID: 100, MessageID: 1, UserID: userID, Text: text}
}

var errBoom = errors.New("boom")
