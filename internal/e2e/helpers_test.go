package e2e

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"aitelegrambot/internal/bot"
	"aitelegrambot/internal/config"
	"aitelegrambot/internal/router"
)

const (
	testToken = "42:e2e"
	adminID   = 7
	userID    = 8
	chatID    = 100
)

// outbound is one sendMessage or editMessageText seen by the fake Bot API.
type outbound struct {
	Method    string
	MessageID int64
	ReplyTo   int64
	Text      string
}

// fakeTelegram serves getMe, getUpdates, sendMessage and editMessageText.
type fakeTelegram struct {
	mu       sync.Mutex
	pending  []map[string]any
	nextUpd  int64
	nextMsg  int64
	outbound []outbound
}

func (f *fakeTelegram) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	prefix := "/bot" + testToken + "/"
	if !strings.HasPrefix(r.URL.Path, prefix) {
		http.NotFound(w, r)
		return
	}
	method := strings.TrimPrefix(r.URL.Path, prefix)
	var p map[string]any
	_ = json.NewDecoder(r.Body).Decode(&p)

	switch method {
	case "getMe":
		writeResult(w, map[string]any{"id": 1, "is_bot": true, "first_name": "bot", "username": "testbot"})
	case "getUpdates":
		offset := int64(0)
		if v, ok := p["offset"].(float64); ok {
			offset = int64(v)
		}
		writeResult(w, f.updatesFrom(offset))
	case "sendMessage":
		f.mu.Lock()
		f.nextMsg++
		id := f.nextMsg
		f.outbound = append(f.outbound, outbound{Method: method, MessageID: id, ReplyTo: asInt(p["reply_to_message_id"]), Text: asString(p["text"])})
		f.mu.Unlock()
		writeResult(w, map[string]any{"message_id": id, "chat": map[string]any{"id": asInt(p["chat_id"])}})
	case "editMessageText":
		f.mu.Lock()
		f.outbound = append(f.outbound, outbound{Method: method, MessageID: asInt(p["message_id"]), Text: asString(p["text"])})
		f.mu.Unlock()
		writeResult(w, true)
	default:
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"ok":false,"error_code":404,"description":"Not Found"}`)
	}
}

// updatesFrom drops acknowledged updates and returns the rest. With nothing
// queued it holds the poll briefly, like a short long-poll.
func (f *fakeTelegram) updatesFrom(offset int64) []map[string]any {
	f.mu.Lock()
	kept := f.pending[:0]
	for _, u := range f.pending {
		if u["update_id"].(int64) >= offset {
			kept = append(kept, u)
		}
	}
	f.pending = kept
	out := append([]map[string]any(nil), kept...)
	f.mu.Unlock()
	if len(out) == 0 {
		time.Sleep(10 * time.Millisecond)
	}
	return out
}

// send queues a text message from user as the next update. It returns the message id.
func (f *fakeTelegram) send(user int64, text string) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextUpd++
	msgID := 1000 + f.nextUpd
	msg := map[string]any{
		"message_id": msgID,
		"from":       map[string]any{"id": user, "is_bot": false, "first_name": "u", "username": "u"},
		"chat":       map[string]any{"id": chatID, "type": "private"},
		"text":       text,
	}
	f.pending = append(f.pending, map[string]any{"update_id": f.nextUpd, "message": msg})
	return msgID
}

func (f *fakeTelegram) Outbound() []outbound {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]outbound(nil), f.outbound...)
}

// waitFor polls the outbound log until pred matches one entry.
func (f *fakeTelegram) waitFor(t *testing.T, desc string, pred func(outbound) bool) outbound {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		for _, o := range f.Outbound() {
			if pred(o) {
				return o
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s; outbound=%+v", desc, f.Outbound())
	return outbound{}
}

func (f *fakeTelegram) waitForText(t *testing.T, text string) outbound {
	t.Helper()
	return f.waitFor(t, "message "+text, func(o outbound) bool { return o.Text == text })
}

func writeResult(w http.ResponseWriter, result any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "result": result})
}

func asInt(v any) int64 {
	f, _ := v.(float64)
	return int64(f)
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

// fakeOllama answers /api/chat by echoing the prompt word by word.
type fakeOllama struct {
	mu     sync.Mutex
	models []string
	// chats records "model: prompt" per /api/chat call.
	chats    []string
	pullGate chan struct{}
}

func (o *fakeOllama) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/api/chat":
		var req struct {
			Model    string `json:"model"`
			Stream   bool   `json:"stream"`
			Messages []struct {
				Content string `json:"content"`
			} `json:"messages"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		prompt := ""
		if n := len(req.Messages); n > 0 {
			prompt = req.Messages[n-1].Content
		}
		o.mu.Lock()
		o.chats = append(o.chats, req.Model+": "+prompt)
		o.mu.Unlock()
		answer := "echo " + prompt
		if !req.Stream {
			_ = json.NewEncoder(w).Encode(map[string]any{"model": req.Model, "message": map[string]string{"role": "assistant", "content": answer}, "done": true})
			return
		}
		enc := json.NewEncoder(w)
		fl, _ := w.(http.Flusher)
		for i, word := range strings.Fields(answer) {
			if i > 0 {
				word = " " + word
			}
			_ = enc.Encode(map[string]any{"message": map[string]string{"role": "assistant", "content": word}, "done": false})
			if fl != nil {
				fl.Flush()
			}
		}
		_ = enc.Encode(map[string]any{"message": map[string]string{"role": "assistant", "content": ""}, "done": true})
	case "/api/tags":
		o.mu.Lock()
		models := make([]map[string]string, 0, len(o.models))
		for _, m := range o.models {
			models = append(models, map[string]string{"name": m})
		}
		o.mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]any{"models": models})
	case "/api/pull":
		var req struct {
			Model string `json:"model"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		if o.pullGate != nil {
			select {
			case <-o.pullGate:
			case <-r.Context().Done():
				return
			}
		}
		o.mu.Lock()
		o.models = append(o.models, req.Model)
		o.mu.Unlock()
		_, _ = io.WriteString(w, `{"status":"success"}`)
	case "/api/delete":
		w.WriteHeader(http.StatusOK)
	default:
		http.NotFound(w, r)
	}
}

func (o *fakeOllama) Chats() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.chats...)
}

type harness struct {
	tg     *fakeTelegram
	ollama *fakeOllama
	bot    *bot.Bot
	pub    *router.MemoryPublisher
	cancel context.CancelFunc
	done   chan error
	once   sync.Once
}

type harnessOpts struct {
	streaming bool
	chunk     int
	pullGate  chan struct{}
}

// startBot runs a Bot against fake Telegram and Ollama servers until the test ends.
func startBot(t *testing.T, o harnessOpts) *harness {
	t.Helper()
	tg := &fakeTelegram{}
	tgSrv := httptest.NewServer(tg)
	ol := &fakeOllama{models: []string{"tusharhero/rationalai"}, pullGate: o.pullGate}
	olSrv := httptest.NewServer(ol)

	cfg := config.Default()
	cfg.TelegramToken = testToken
	cfg.TelegramAPIBase = tgSrv.URL
	cfg.TelegramPollTimeout = 1
	cfg.TelegramRatePerSecond = 1000
	cfg.OllamaHost = olSrv.URL
	cfg.AdminID = adminID
	cfg.Streaming = o.streaming
	cfg.FlushCooldownMS = 0
	if o.chunk > 0 {
		cfg.ChunkSize = o.chunk
	}

	pub := router.NewMemoryPublisher()
	b, err := bot.New(cfg, bot.Options{Logger: zerolog.Nop(), Version: "e2e", Publisher: pub})
	if err != nil {
		t.Fatalf("bot.New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	h := &harness{tg: tg, ollama: ol, bot: b, pub: pub, cancel: cancel, done: make(chan error, 1)}
	go func() { h.done <- b.Run(ctx) }()
	t.Cleanup(func() {
		h.stop(t)
		olSrv.Close()
		tgSrv.Close()
	})
	return h
}

// stop cancels the bot and waits for Run to return. Safe to call twice.
func (h *harness) stop(t *testing.T) {
	t.Helper()
	h.once.Do(func() {
		h.cancel()
		select {
		case err := <-h.done:
			if err != nil {
				t.Errorf("bot.Run: %v", err)
			}
		case <-time.After(20 * time.Second):
			t.Errorf("bot did not stop")
		}
	})
}
