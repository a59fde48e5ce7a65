// Package backend calls the payment and persistence API that owns balances,
// the canonical game archive and user ratings.
package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
)

// ErrDisabled is returned by every call when no base URL is configured.
var ErrDisabled = errors.New("backend disabled")

// HeaderProvider allows injecting per-request headers
type HeaderProvider func() map[string]string

type Client struct {
	baseURL string
	http    *fasthttp.Client
	headers HeaderProvider

	defaultTimeout time.Duration
	retryMax       int
}

type Option func(*Client)

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.defaultTimeout = d
		}
	}
}

func WithHeaderProvider(h HeaderProvider) Option {
	return func(c *Client) { c.headers = h }
}

func WithRetry(max int) Option {
	return func(c *Client) { c.retryMax = max }
}

// NewClient returns a client for baseURL. An empty baseURL yields a client
// whose calls all return ErrDisabled.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:        strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		http:           &fasthttp.Client{ReadTimeout: 10 * time.Second, WriteTimeout: 10 * time.Second, MaxConnsPerHost: 32},
		defaultTimeout: 8 * time.Second,
		retryMax:       3,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Enabled() bool { return c != nil && c.baseURL != "" }

type PayoutRequest struct {
	PlayerID string  `json:"playerId"`
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency,omitempty"`
	GameID   string  `json:"gameId"`
}

type GamePlayer struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Color    string `json:"color"`
}

type GameResult struct {
	Reason string `json:"reason"`
	Winner string `json:"winner,omitempty"`
}

type SaveGameRequest struct {
	ID          string       `json:"id"`
	Players     []GamePlayer `json:"players"`
	Result      GameResult   `json:"result"`
	MoveHistory []string     `json:"moveHistory"`
	BetAmount   float64      `json:"betAmount,omitempty"`
	BetCurrency string       `json:"betCurrency,omitempty"`
	StartTime   time.Time    `json:"startTime"`
	EndTime     time.Time    `json:"endTime"`
}

type ratingRequest struct {
	Rating int `json:"rating"`
}

// Payout credits winnings. The game id doubles as idempotency key so a
// retried request cannot pay twice on a well-behaved backend.
func (c *Client) Payout(ctx context.Context, req PayoutRequest) error {
	if !c.Enabled() {
		return ErrDisabled
	}
	return c.doJSON(ctx, fasthttp.MethodPost, "/api/payments/payout", req, nil, "payout-"+req.GameID)
}

func (c *Client) SaveGame(ctx context.Context, req SaveGameRequest) error {
	if !c.Enabled() {
		return ErrDisabled
	}
	return c.doJSON(ctx, fasthttp.MethodPost, "/api/games", req, nil, "game-"+req.ID)
}

func (c *Client) UpdateRating(ctx context.Context, playerID string, rating int) error {
	if !c.Enabled() {
		return ErrDisabled
	}
	path := "/api/users/" + url.PathEscape(playerID) + "/rating"
	return c.doJSON(ctx, fasthttp.MethodPatch, path, ratingRequest{Rating: rating}, nil, "")
}

func (c *Client) doJSON(ctx context.Context, method, path string, in any, out any, idempotencyKey string) error {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()

	req.Header.SetMethod(method)
	req.SetRequestURI(c.baseURL + path)
	req.Header.SetContentType("application/json")
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}
	if c.headers != nil {
		for k, v := range c.headers() {
			if strings.TrimSpace(k) != "" && strings.TrimSpace(v) != "" {
				req.Header.Set(k, v)
			}
		}
	}
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		req.SetBody(payload)
	}

	attempts := c.retryMax
	if attempts <= 0 {
		attempts = 1
	}
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := c.http.DoDeadline(req, resp, c.computeDeadline(ctx))
		if err != nil {
			lastErr = fmt.Errorf("%s %s: %w", method, path, err)
		} else {
			status := resp.StatusCode()
			if status >= 200 && status < 300 {
				if out != nil && len(resp.Body()) > 0 {
					if err := json.Unmarshal(resp.Body(), out); err != nil {
						return fmt.Errorf("decode response: %w", err)
					}
				}
				return nil
			}
			lastErr = &StatusError{Status: status, Body: truncate(string(resp.Body()), 512)}
			if !shouldRetryStatus(status) {
				return lastErr
			}
		}
		if attempt == attempts {
			break
		}
		if sleepErr := c.sleepWithContext(ctx, backoffDuration(attempt)); sleepErr != nil {
			return lastErr
		}
	}
	if lastErr == nil {
		lastErr = errors.New("unknown error")
	}
	return lastErr
}

type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backend api error: status=%d body=%s", e.Status, e.Body)
}

func (c *Client) computeDeadline(ctx context.Context) time.Time {
	clientDL := time.Now().Add(c.defaultTimeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(clientDL) {
		return dl
	}
	return clientDL
}

func (c *Client) sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func backoffDuration(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 6 {
		attempt = 6
	}
	return time.Duration(1<<uint(attempt-1)) * 100 * time.Millisecond
}

func shouldRetryStatus(code int) bool {
	switch code {
	case 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
