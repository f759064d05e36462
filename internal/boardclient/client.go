// Package boardclient talks to a running analysis board over its control API
// and snapshot feed.
package boardclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/park285/chess-analysis-board/pkg/analysisdto"
)

// APIError is a non-2xx answer. Snapshot is set when the server published
// one for the failed action.
type APIError struct {
	Status   int
	Err      analysisdto.DomainError
	Snapshot *analysisdto.Snapshot
}

func (e *APIError) Error() string {
	return fmt.Sprintf("board api error: status=%d code=%s: %s", e.Status, e.Err.Code, e.Err.Message)
}

// Retryable reports whether the server marked the failure as transient.
func (e *APIError) Retryable() bool { return e.Err.Retryable }

type Client struct {
	baseURL string
	http    *fasthttp.Client

	defaultTimeout time.Duration
	retryMax       int
}

type Option func(*Client)

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.defaultTimeout = d }
}

func WithRetry(max int) Option {
	return func(c *Client) { c.retryMax = max }
}

func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		http:           &fasthttp.Client{ReadTimeout: 10 * time.Second, WriteTimeout: 10 * time.Second, MaxConnsPerHost: 8},
		defaultTimeout: 10 * time.Second,
		retryMax:       3,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FeedURL is the websocket address of the snapshot feed.
func (c *Client) FeedURL() string {
	u := c.baseURL
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u + "/ws"
}

func (c *Client) Snapshot(ctx context.Context) (*analysisdto.Snapshot, error) {
	var snap analysisdto.Snapshot
	if err := c.doJSON(ctx, fasthttp.MethodGet, "/api/snapshot", nil, &snap, true); err != nil {
		return nil, err
	}
	return &snap, nil
}

// Health reports whether the server answers and whether its engine is up.
func (c *Client) Health(ctx context.Context) (bool, error) {
	var out struct {
		Engine bool `json:"engine"`
	}
	if err := c.doJSON(ctx, fasthttp.MethodGet, "/healthz", nil, &out, true); err != nil {
		return false, err
	}
	return out.Engine, nil
}

func (c *Client) LoadPGN(ctx context.Context, pgn string) (*analysisdto.Snapshot, error) {
	return c.action(ctx, "/api/load/pgn", analysisdto.LoadPGNRequest{PGN: pgn})
}

func (c *Client) LoadMoves(ctx context.Context, fen string, moves []string) (*analysisdto.Snapshot, error) {
	return c.action(ctx, "/api/load/moves", analysisdto.LoadMovesRequest{FEN: fen, Moves: moves})
}

func (c *Client) Forward(ctx context.Context) (*analysisdto.Snapshot, error) {
	return c.action(ctx, "/api/forward", nil)
}

func (c *Client) Backward(ctx context.Context) (*analysisdto.Snapshot, error) {
	return c.action(ctx, "/api/backward", nil)
}

func (c *Client) Reset(ctx context.Context) (*analysisdto.Snapshot, error) {
	return c.action(ctx, "/api/reset", nil)
}

// Move plays SAN or UCI text.
func (c *Client) Move(ctx context.Context, text string) (*analysisdto.Snapshot, error) {
	return c.action(ctx, "/api/move", analysisdto.MoveRequest{Move: text})
}

// Flip toggles the orientation when flipped is nil.
func (c *Client) Flip(ctx context.Context, flipped *bool) (*analysisdto.Snapshot, error) {
	return c.action(ctx, "/api/flip", analysisdto.FlipRequest{Flipped: flipped})
}

func (c *Client) PressSquare(ctx context.Context, square string) (*analysisdto.Snapshot, error) {
	return c.action(ctx, "/api/squares/"+url.PathEscape(square)+"/press", nil)
}

func (c *Client) ReleaseSquare(ctx context.Context, square string) (*analysisdto.Snapshot, error) {
	return c.action(ctx, "/api/squares/"+url.PathEscape(square)+"/release", nil)
}

func (c *Client) Promote(ctx context.Context, piece string) (*analysisdto.Snapshot, error) {
	return c.action(ctx, "/api/promote", analysisdto.PromoteRequest{Piece: piece})
}

func (c *Client) Cancel(ctx context.Context) (*analysisdto.Snapshot, error) {
	return c.action(ctx, "/api/cancel", nil)
}

func (c *Client) TopMoves(ctx context.Context, n int) (*analysisdto.TopMovesResponse, error) {
	var out analysisdto.TopMovesResponse
	if err := c.doJSON(ctx, fasthttp.MethodPost, "/api/top", analysisdto.TopMovesRequest{N: n}, &out, false); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Archive(ctx context.Context, title string) (*analysisdto.AnalyzedGame, error) {
	var out analysisdto.AnalyzedGame
	if err := c.doJSON(ctx, fasthttp.MethodPost, "/api/archive", analysisdto.ArchiveRequest{Title: title}, &out, false); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Archives(ctx context.Context, limit int) ([]*analysisdto.AnalyzedGame, error) {
	var out analysisdto.ArchiveListResponse
	path := "/api/archive"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	if err := c.doJSON(ctx, fasthttp.MethodGet, path, nil, &out, true); err != nil {
		return nil, err
	}
	return out.Games, nil
}

func (c *Client) Reopen(ctx context.Context, id int64) (*analysisdto.Snapshot, error) {
	return c.action(ctx, "/api/archive/"+strconv.FormatInt(id, 10)+"/open", nil)
}

// action posts a board action. Board actions are never retried: each one
// publishes a snapshot and most are not idempotent.
func (c *Client) action(ctx context.Context, path string, in any) (*analysisdto.Snapshot, error) {
	var snap analysisdto.Snapshot
	if err := c.doJSON(ctx, fasthttp.MethodPost, path, in, &snap, false); err != nil {
		return nil, err
	}
	return &snap, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, in any, out any, retry bool) error {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()

	req.Header.SetMethod(method)
	req.SetRequestURI(c.baseURL + path)
	req.Header.SetContentType("application/json")
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		req.SetBody(payload)
	}

	attempts := 1
	if retry && c.retryMax > 1 {
		attempts = c.retryMax
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := c.http.DoDeadline(req, resp, c.computeDeadline(ctx))
		if err != nil {
			lastErr = fmt.Errorf("request failed: %w", err)
		} else if status := resp.StatusCode(); status < 200 || status >= 300 {
			lastErr = decodeAPIError(status, resp.Body())
			if !shouldRetryStatus(status) {
				return lastErr
			}
		} else {
			if out != nil {
				if err := json.Unmarshal(resp.Body(), out); err != nil {
					return fmt.Errorf("decode response: %w", err)
				}
			}
			return nil
		}
		if attempt < attempts {
			if err := sleepWithContext(ctx, backoffDuration(attempt)); err != nil {
				return lastErr
			}
		}
	}
	if lastErr == nil {
		lastErr = errors.New("unknown error")
	}
	return lastErr
}

func decodeAPIError(status int, body []byte) error {
	var er analysisdto.ErrorResponse
	if err := json.Unmarshal(body, &er); err != nil || er.Error.Code == "" {
		return &APIError{Status: status, Err: analysisdto.DomainError{Code: "http_" + strconv.Itoa(status), Message: truncate(string(body), 512)}}
	}
	return &APIError{Status: status, Err: er.Error, Snapshot: er.Snapshot}
}

func (c *Client) computeDeadline(ctx context.Context) time.Time {
	clientDL := time.Now().Add(c.defaultTimeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(clientDL) {
		return dl
	}
	return clientDL
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
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
	case 502, 503, 504:
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
