// Package ollama is the InferenceClient: a thin HTTP client for the subset of
// the Ollama API the bot uses (chat, streamed chat, tags, pull, delete).
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"aitelegrambot/internal/stream"
)

// DefaultHost is used when Config.Host is empty.
const DefaultHost = "localhost:11434"

// Config holds client settings. Zero values select defaults.
type Config struct {
	// Host is host:port or a full URL; a missing scheme means http.
	Host string
	// ConnectTimeout bounds dialing. Requests themselves are bounded only by ctx.
	ConnectTimeout time.Duration
	// MetaTimeout bounds the short calls (tags, delete) when ctx has no deadline.
	MetaTimeout time.Duration
	HTTPClient  *http.Client
	Logger      zerolog.Logger
}

// Client talks to one Ollama endpoint. Safe for concurrent use.
type Client struct {
	baseURL     string
	metaTimeout time.Duration
	hc          *http.Client
	log         zerolog.Logger
}

// NewClient constructs a Client, applying defaults for unset fields.
func NewClient(cfg Config) *Client {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}
	if cfg.MetaTimeout <= 0 {
		cfg.MetaTimeout = 30 * time.Second
	}
	hc := cfg.HTTPClient
	if hc == nil {
		tr := &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   cfg.ConnectTimeout,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:          100,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		}
		// Timeout stays 0: pulls and streams can run for minutes, every call carries a ctx.
		hc = &http.Client{Transport: tr}
	}
	return &Client{
		baseURL:     NormalizeHost(cfg.Host),
		metaTimeout: cfg.MetaTimeout,
		hc:          hc,
		log:         cfg.Logger.With().Str("component", "ollama").Logger(),
	}
}

// NormalizeHost turns "localhost:11434" into "http://localhost:11434" and strips
// trailing slashes.
func NormalizeHost(host string) string {
	h := strings.TrimSpace(host)
	if h == "" {
		h = DefaultHost
	}
	if !strings.Contains(h, "://") {
		h = "http://" + h
	}
	return strings.TrimRight(h, "/")
}

// BaseURL returns the normalized endpoint.
func (c *Client) BaseURL() string { return c.baseURL }

// Chat sends prompt as a single user message and returns the whole answer.
func (c *Client) Chat(ctx context.Context, model, prompt string) (string, error) {
	resp, err := c.postChat(ctx, model, prompt, false)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var out chatChunk
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", streamInterruptedError{msg: "decode chat response", cause: err}
	}
	if out.Error != "" {
		return "", streamInterruptedError{msg: out.Error}
	}
	return out.Message.Content, nil
}

// StreamChat starts a streamed chat and returns the fragment sequence. The
// request is bound to ctx; the caller must Close the stream.
func (c *Client) StreamChat(ctx context.Context, model, prompt string) (stream.FragmentStream, error) {
	resp, err := c.postChat(ctx, model, prompt, true)
	if err != nil {
		return nil, err
	}
	return newNDJSONStream(resp.Body, c.log.With().Str("model", model).Logger()), nil
}

func (c *Client) postChat(ctx context.Context, model, prompt string, streaming bool) (*http.Response, error) {
	body, err := json.Marshal(chatRequest{
		Model:    model,
		Messages: []Message{{Role: "user", Content: prompt}},
		Stream:   streaming,
	})
	if err != nil {
		return nil, err
	}
	resp, err := c.do(ctx, http.MethodPost, "/api/chat", body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusNotFound {
		msg := readErrorBody(resp)
		return nil, invalidModelError{model: model, msg: msg}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, responseError{op: "chat", status: resp.StatusCode, msg: readErrorBody(resp)}
	}
	return resp, nil
}

// ListModels returns the names of locally available models in backend order.
func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	ctx, cancel := c.withMetaTimeout(ctx)
	defer cancel()

	resp, err := c.do(ctx, http.MethodGet, "/api/tags", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, responseError{op: "tags", status: resp.StatusCode, msg: readErrorBody(resp)}
	}
	var tags tagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return nil, responseError{op: "tags", status: resp.StatusCode, msg: "decode: " + err.Error()}
	}
	names := make([]string, 0, len(tags.Models))
	for _, m := range tags.Models {
		name := m.Name
		if name == "" {
			name = m.Model
		}
		if name != "" {
			names = append(names, name)
		}
	}
	return names, nil
}

// PullModel downloads a model and returns once the backend reports completion.
// There is no client-side deadline besides ctx.
func (c *Client) PullModel(ctx context.Context, name string) error {
	noStream := false
	body, err := json.Marshal(modelRequest{Model: name, Stream: &noStream})
	if err != nil {
		return err
	}
	start := time.Now()
	resp, err := c.do(ctx, http.MethodPost, "/api/pull", body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return responseError{op: "pull", status: resp.StatusCode, msg: readErrorBody(resp)}
	}
	var st statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil && err != io.EOF {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return responseError{op: "pull", status: resp.StatusCode, msg: "decode: " + err.Error()}
	}
	if st.Error != "" {
		return responseError{op: "pull", status: resp.StatusCode, msg: st.Error}
	}
	c.log.Info().Str("model", name).Str("status", st.Status).Dur("dur", time.Since(start)).Msg("pull finished")
	return nil
}

// DeleteModel removes a local model. A 404 maps to ModelNotFound.
func (c *Client) DeleteModel(ctx context.Context, name string) error {
	ctx, cancel := c.withMetaTimeout(ctx)
	defer cancel()

	body, err := json.Marshal(modelRequest{Model: name})
	if err != nil {
		return err
	}
	resp, err := c.do(ctx, http.MethodDelete, "/api/delete", body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrModelNotFound(name)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return responseError{op: "delete", status: resp.StatusCode, msg: readErrorBody(resp)}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// do issues one request. Transport failures become BackendUnavailable unless ctx ended.
func (c *Client) do(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.log.Warn().Err(err).Str("path", path).Msg("backend request failed")
		return nil, backendUnavailableError{host: c.baseURL, cause: err}
	}
	return resp, nil
}

func (c *Client) withMetaTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.metaTimeout)
}

// readErrorBody extracts Ollama's {"error": "..."} message, falling back to raw text.
// It closes the body.
func readErrorBody(resp *http.Response) string {
	defer resp.Body.Close()
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var eb errorBody
	if json.Unmarshal(b, &eb) == nil && eb.Error != "" {
		return eb.Error
	}
	return strings.TrimSpace(string(b))
}
