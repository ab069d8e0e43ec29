package telegram

import (
	"context"
	"sync"
	"testing"
	"time"

	"aitelegrambot/internal/router"
)

type recordingHandler struct {
	mu   sync.Mutex
	seen []router.Update
	fn   func(upd router.Update)
}

func (h *recordingHandler) Handle(ctx context.Context, upd router.Update, rep router.Replier) error {
	h.mu.Lock()
	h.seen = append(h.seen, upd)
	h.mu.Unlock()
	if h.fn != nil {
		h.fn(upd)
	}
	return nil
}

func (h *recordingHandler) Seen() []router.Update {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]router.Update(nil), h.seen...)
}

func TestPoller_DispatchesTextMessagesAndAdvancesOffset(t *testing.T) {
	offsets := make(chan float64, 16)
	f := &fakeAPI{reply: func(method string, p map[string]any, n int) (int, string) {
		if method != "getUpdates" {
			return 200, `{"ok":true,"result":true}`
		}
		select {
		case offsets <- p["offset"].(float64):
		default:
		}
		if n == 1 {
			return 200, `{"ok":true,"result":[
				{"update_id":5,"message":{"message_id":1,"from":{"id":42,"username":"a"},"chat":{"id":7},"text":"/start"}},
				{"update_id":6,"message":{"message_id":2,"chat":{"id":7}}},
				{"update_id":7}
			]}`
		}
		time.Sleep(20 * time.Millisecond)
		return 200, `{"ok":true,"result":[]}`
	}}
	c := newFakeClient(t, f)
	h := &recordingHandler{}
	p := NewPoller(PollerConfig{Client: c, Handler: h})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	if got := <-offsets; got != 0 {
		t.Fatalf("first offset=%v", got)
	}
	if got := <-offsets; got != 8 {
		t.Fatalf("second offset=%v want 8", got)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("run: %v", err)
	}
	seen := h.Seen()
	if len(seen) != 1 {
		t.Fatalf("want only the text message dispatched, got %+v", seen)
	}
	if seen[0].ChatID != 7 || seen[0].UserID != 42 || seen[0].MessageID != 1 || seen[0].Username != "a" {
		t.Fatalf("update=%+v", seen[0])
	}
	if !p.Ready() || p.UpdatesTotal() != 3 {
		t.Fatalf("ready=%v updates=%d", p.Ready(), p.UpdatesTotal())
	}
}

func TestPoller_NotReadyWhileGetUpdatesFails(t *testing.T) {
	f := &fakeAPI{reply: func(string, map[string]any, int) (int, string) {
		return 401, `{"ok":false,"error_code":401,"description":"Unauthorized"}`
	}}
	c := newFakeClient(t, f)
	p := NewPoller(PollerConfig{Client: c, Handler: &recordingHandler{}, ErrorBackoff: 10 * time.Millisecond})

	ctx, cancel := context.WithTimeout(context.Background(), 80*time.Millisecond)
	defer cancel()
	if err := p.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}
	if p.Ready() {
		t.Fatal("poller must not be ready")
	}
	if n := len(f.Calls()); n < 2 {
		t.Fatalf("expected retries after backoff, got %d calls", n)
	}
}

func TestPoller_RecoversHandlerPanicAndKeepsServing(t *testing.T) {
	f := &fakeAPI{reply: func(method string, _ map[string]any, n int) (int, string) {
		switch n {
		case 1:
			return 200, `{"ok":true,"result":[{"update_id":1,"message":{"message_id":1,"chat":{"id":1},"text":"/infer boom"}}]}`
		case 2:
			return 200, `{"ok":true,"result":[{"update_id":2,"message":{"message_id":2,"chat":{"id":1},"text":"/infer ok"}}]}`
		}
		time.Sleep(10 * time.Millisecond)
		return 200, `{"ok":true,"result":[]}`
	}}
	c := newFakeClient(t, f)
	handled := make(chan string, 2)
	h := &recordingHandler{fn: func(u router.Update) {
		if u.Text == "/infer boom" {
			panic("handler exploded")
		}
		handled <- u.Text
	}}
	p := NewPoller(PollerConfig{Client: c, Handler: h})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	select {
	case got := <-handled:
		if got != "/infer ok" {
			t.Fatalf("handled %q", got)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("second update was not handled")
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(h.Seen()) != 2 {
		t.Fatalf("seen=%d", len(h.Seen()))
	}
}

func TestPoller_RunWaitsForHandlers(t *testing.T) {
	f := &fakeAPI{reply: func(method string, _ map[string]any, n int) (int, string) {
		if n == 1 {
			return 200, `{"ok":true,"result":[{"update_id":1,"message":{"message_id":1,"chat":{"id":1},"text":"/infer slow"}}]}`
		}
		time.Sleep(10 * time.Millisecond)
		return 200, `{"ok":true,"result":[]}`
	}}
	c := newFakeClient(t, f)
	started := make(chan struct{})
	var finished bool
	var mu sync.Mutex
	h := &recordingHandler{fn: func(router.Update) {
		close(started)
		time.Sleep(50 * time.Millisecond)
		mu.Lock()
		finished = true
		mu.Unlock()
	}}
	p := NewPoller(PollerConfig{Client: c, Handler: h})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()
	<-started
	cancel()
	<-done
	mu.Lock()
	defer mu.Unlock()
	if !finished {
		t.Fatal("Run returned before the handler finished")
	}
}
