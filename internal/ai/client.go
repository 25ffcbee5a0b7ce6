// Package ai is the outbound gateway to an OpenRouter-compatible chat
// completion API. It owns its own per-user rate limiter and maps every
// failure mode onto a distinct user-facing message.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/pa1bh/chatserver/internal/ratelimit"
)

// DefaultBaseURL is the OpenRouter completion endpoint.
const DefaultBaseURL = "https://openrouter.ai/api/v1/chat/completions"

const maxPromptRunes = 1000

// Config controls the gateway. The feature is off unless Enabled is set
// and an API key is configured.
type Config struct {
	Enabled   bool
	APIKey    string
	Model     string
	RateLimit int
	Timeout   time.Duration
	MaxTokens int
	// BaseURL overrides the completion endpoint; tests point it at a
	// local server.
	BaseURL string
}

// ErrorKind classifies a gateway failure.
type ErrorKind int

const (
	ErrDisabled ErrorKind = iota
	ErrRateLimited
	ErrInvalidPrompt
	ErrTimeout
	ErrTransport
	ErrBadStatus
	ErrBadResponse
)

// Error is a gateway failure with its user-facing message.
type Error struct {
	Kind    ErrorKind
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// Response is a successful completion.
type Response struct {
	Content    string
	ResponseMS int64
	Tokens     *int
	Cost       *float64
}

type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []choice `json:"choices"`
	Usage   *usage   `json:"usage"`
}

type choice struct {
	Message responseMessage `json:"message"`
}

type responseMessage struct {
	Content string `json:"content"`
}

type usage struct {
	TotalTokens *int     `json:"total_tokens"`
	Cost        *float64 `json:"cost"`
}

// Client performs completion requests. A single instance is shared by
// every connection; no lock is held while a request is in flight.
type Client struct {
	cfg    Config
	http   *http.Client
	limits *ratelimit.KeyedWindow
	log    *zerolog.Logger
}

func New(cfg Config, logger *zerolog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Enabled && cfg.APIKey == "" {
		logger.Error().Msg("ai enabled but no api key configured")
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		limits: ratelimit.NewKeyedWindow(cfg.RateLimit),
		log:    logger,
	}
}

// Enabled reports whether queries can be attempted at all.
func (c *Client) Enabled() bool {
	return c.cfg.Enabled && c.cfg.APIKey != ""
}

// Model returns the configured completion model.
func (c *Client) Model() string {
	return c.cfg.Model
}

// Query runs a single-turn completion for the given user key. The key
// is the caller's origin address, so reconnecting does not reset the
// rate-limit window. All failures come back as *Error.
func (c *Client) Query(ctx context.Context, key, prompt string) (*Response, error) {
	if !c.Enabled() {
		return nil, &Error{Kind: ErrDisabled, Message: "AI is niet geactiveerd op deze server."}
	}

	if ok, wait := c.limits.Allow(key, time.Now()); !ok {
		return nil, &Error{
			Kind: ErrRateLimited,
			Message: fmt.Sprintf("Rate limit bereikt (max %d/min). Probeer over %d seconden.",
				c.limits.Limit(), int64(wait.Seconds())),
		}
	}

	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, &Error{Kind: ErrInvalidPrompt, Message: "Geef een vraag op. Gebruik: /ai <vraag>"}
	}
	if utf8.RuneCountInString(prompt) > maxPromptRunes {
		return nil, &Error{Kind: ErrInvalidPrompt, Message: "Vraag is te lang (max 1000 tekens)."}
	}

	c.log.Debug().Str("key", key).Int("prompt_len", len(prompt)).Msg("sending ai request")

	body, err := json.Marshal(chatRequest{
		Model:     c.cfg.Model,
		Messages:  []chatMessage{{Role: "user", Content: prompt}},
		MaxTokens: c.cfg.MaxTokens,
	})
	if err != nil {
		return nil, &Error{Kind: ErrTransport, Message: "AI service tijdelijk niet beschikbaar."}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL, bytes.NewReader(body))
	if err != nil {
		return nil, &Error{Kind: ErrTransport, Message: "AI service tijdelijk niet beschikbaar."}
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Error().Err(err).Msg("completion request failed")
		if isTimeout(err) {
			return nil, &Error{
				Kind:    ErrTimeout,
				Message: fmt.Sprintf("AI request timed out after %d seconds.", int64(c.cfg.Timeout.Seconds())),
			}
		}
		return nil, &Error{Kind: ErrTransport, Message: "AI service tijdelijk niet beschikbaar."}
	}
	defer resp.Body.Close()

	responseMS := time.Since(start).Milliseconds()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.log.Error().Str("status", resp.Status).Msg("completion error response")
		return nil, &Error{Kind: ErrBadStatus, Message: fmt.Sprintf("AI service error: %s", resp.Status)}
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		c.log.Error().Err(err).Msg("failed to parse completion response")
		return nil, &Error{Kind: ErrBadResponse, Message: "Kon AI antwoord niet verwerken."}
	}

	content := "Geen antwoord ontvangen."
	if len(parsed.Choices) > 0 {
		content = parsed.Choices[0].Message.Content
	}

	out := &Response{Content: content, ResponseMS: responseMS}
	if parsed.Usage != nil {
		out.Tokens = parsed.Usage.TotalTokens
		out.Cost = parsed.Usage.Cost
	}

	c.log.Debug().
		Int("response_len", len(content)).
		Int64("response_ms", responseMS).
		Msg("ai response received")

	return out, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var uerr *url.Error
	return errors.As(err, &uerr) && uerr.Timeout()
}
