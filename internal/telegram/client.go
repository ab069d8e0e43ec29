// Package telegram is the bot runtime: a minimal Bot API client, editable
// message handles and the long-poll loop that dispatches updates.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"aitelegrambot/internal/metrics"
)

const (
	DefaultAPIBase     = "https://api.telegram.org"
	DefaultPollTimeout = 30 * time.Second
	DefaultRate        = 20.0

	parseModeMarkdown = "Markdown"
	// maxRetryAfter caps how long a flood-controlled call waits before its single retry.
	maxRetryAfter = 10 * time.Second
)

// Config configures a Client. Zero values select defaults.
type Config struct {
	Token   string
	APIBase string
	// PollTimeout is the long-poll timeout passed to getUpdates.
	PollTimeout time.Duration
	// RatePerSecond throttles every call except getUpdates.
	RatePerSecond float64
	Burst         int
	HTTPClient    *http.Client
	Logger        zerolog.Logger
}

// Client is a minimal Telegram Bot API client.
type Client struct {
	base        string
	pollTimeout time.Duration
	hc          *http.Client
	limiter     *rate.Limiter
	log         zerolog.Logger
}

// NewClient validates cfg and returns a Client.
func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram: bot token is required")
	}
	if cfg.APIBase == "" {
		cfg.APIBase = DefaultAPIBase
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = DefaultPollTimeout
	}
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = DefaultRate
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 5
	}
	hc := cfg.HTTPClient
	if hc == nil {
		// Per-call deadlines come from ctx; getUpdates holds the connection for PollTimeout.
		hc = &http.Client{}
	}
	return &Client{
		base:        strings.TrimRight(cfg.APIBase, "/") + "/bot" + cfg.Token,
		pollTimeout: cfg.PollTimeout,
		hc:          hc,
		limiter:     rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.Burst),
		log:         cfg.Logger.With().Str("component", "telegram").Logger(),
	}, nil
}

// GetMe returns the bot's own user.
func (c *Client) GetMe(ctx context.Context) (User, error) {
	var u User
	err := c.call(ctx, "getMe", struct{}{}, &u)
	return u, err
}

// GetUpdates long-polls for message updates with id >= offset.
func (c *Client) GetUpdates(ctx context.Context, offset int64) ([]Update, error) {
	payload := map[string]any{
		"offset":          offset,
		"timeout":         int(c.pollTimeout / time.Second),
		"allowed_updates": []string{"message"},
	}
	ctx, cancel := context.WithTimeout(ctx, c.pollTimeout+10*time.Second)
	defer cancel()

	var ups []Update
	if err := c.do(ctx, "getUpdates", payload, &ups); err != nil {
		return nil, err
	}
	return ups, nil
}

// SendMessage posts text to chatID, optionally as a reply, and returns the sent message.
func (c *Client) SendMessage(ctx context.Context, chatID, replyTo int64, text string) (Message, error) {
	payload := map[string]any{
		"chat_id": chatID,
		"text":    truncate(text, MaxMessageLength),
	}
	if replyTo != 0 {
		payload["reply_to_message_id"] = replyTo
		payload["allow_sending_without_reply"] = true
	}
	var m Message
	err := c.callMarkdown(ctx, "sendMessage", payload, &m)
	return m, err
}

// EditMessageText replaces the text of a message the bot sent. Editing to
// identical text is not an error.
func (c *Client) EditMessageText(ctx context.Context, chatID, messageID int64, text string) error {
	payload := map[string]any{
		"chat_id":    chatID,
		"message_id": messageID,
		"text":       truncate(text, MaxMessageLength),
	}
	err := c.callMarkdown(ctx, "editMessageText", payload, nil)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.notModified() {
		return nil
	}
	return err
}

// callMarkdown sends with Markdown parse mode and retries once as plain text
// when Telegram rejects the entities. Generated answers are not guaranteed to
// be valid Markdown.
func (c *Client) callMarkdown(ctx context.Context, method string, payload map[string]any, out any) error {
	payload["parse_mode"] = parseModeMarkdown
	err := c.call(ctx, method, payload, out)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.parseFailure() {
		c.log.Debug().Str("method", method).Msg("markdown rejected, resending as plain text")
		delete(payload, "parse_mode")
		return c.call(ctx, method, payload, out)
	}
	return err
}

// call throttles, performs the request, and retries once on flood control.
func (c *Client) call(ctx context.Context, method string, payload, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	err := c.do(ctx, method, payload, out)
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Code != http.StatusTooManyRequests {
		return err
	}
	wait := time.Duration(apiErr.RetryAfter) * time.Second
	if wait <= 0 || wait > maxRetryAfter {
		return err
	}
	c.log.Warn().Str("method", method).Dur("retry_after", wait).Msg("flood control, retrying")
	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
		return ctx.Err()
	}
	return c.do(ctx, method, payload, out)
}

func (c *Client) do(ctx context.Context, method string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("telegram %s: marshal: %w", method, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/"+method, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("telegram %s: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		metrics.TelegramRequests.WithLabelValues(method, metrics.OutcomeError).Inc()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		// The URL embeds the token; keep it out of logs and errors.
		var uerr *url.Error
		if errors.As(err, &uerr) {
			err = uerr.Err
		}
		return fmt.Errorf("telegram %s request failed: %w", method, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		metrics.TelegramRequests.WithLabelValues(method, metrics.OutcomeError).Inc()
		return fmt.Errorf("telegram %s: read response: %w", method, err)
	}
	var env response
	if err := json.Unmarshal(raw, &env); err != nil {
		metrics.TelegramRequests.WithLabelValues(method, metrics.OutcomeError).Inc()
		return fmt.Errorf("telegram %s: http %d: parse response: %w", method, resp.StatusCode, err)
	}
	if !env.OK {
		metrics.TelegramRequests.WithLabelValues(method, metrics.OutcomeError).Inc()
		apiErr := &APIError{Method: method, Code: env.ErrorCode, Description: env.Description}
		if apiErr.Code == 0 {
			apiErr.Code = resp.StatusCode
		}
		if env.Parameters != nil {
			apiErr.RetryAfter = env.Parameters.RetryAfter
		}
		return apiErr
	}
	metrics.TelegramRequests.WithLabelValues(method, metrics.OutcomeOK).Inc()
	if out == nil || len(env.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Result, out); err != nil {
		return fmt.Errorf("telegram %s: parse result: %w", method, err)
	}
	return nil
}
