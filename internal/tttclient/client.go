package tttclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/park285/ttt-rooms/pkg/tttdto"
	"github.com/valyala/fasthttp"
)

// Client talks to the HTTP API of a ttt server.
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
		http:           &fasthttp.Client{ReadTimeout: 10 * time.Second, WriteTimeout: 10 * time.Second, MaxConnsPerHost: 16},
		defaultTimeout: 10 * time.Second,
		retryMax:       3,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// StatusError is a non-2xx answer. Domain carries the decoded error body when there was one.
type StatusError struct {
	Status int
	Domain tttdto.DomainError
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("ttt api error: status=%d code=%d message=%s", e.Status, e.Domain.Code, e.Domain.Message)
}

// RequestRoom asks for a room to play in. Created is true when the server made a new room.
func (c *Client) RequestRoom(ctx context.Context, public bool) (tttdto.RoomTicket, bool, error) {
	var tk tttdto.RoomTicket
	status, err := c.doJSON(ctx, fasthttp.MethodPost, "/ttt/api/join", tttdto.JoinRequest{IsPublic: public}, &tk, true)
	if err != nil {
		return tttdto.RoomTicket{}, false, err
	}
	return tk, status == fasthttp.StatusCreated, nil
}

// RoomState fetches the public view of a room.
func (c *Client) RoomState(ctx context.Context, roomID string) (tttdto.RoomState, error) {
	var st tttdto.RoomState
	_, err := c.doJSON(ctx, fasthttp.MethodGet, "/ttt/api/rooms/"+url.PathEscape(roomID), nil, &st, false)
	return st, err
}

// RoomHistory fetches archived games of a room, newest first; limit <= 0 uses the server default.
func (c *Client) RoomHistory(ctx context.Context, roomID string, limit int) ([]tttdto.GameRecord, error) {
	path := "/ttt/api/rooms/" + url.PathEscape(roomID) + "/history"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var out []tttdto.GameRecord
	_, err := c.doJSON(ctx, fasthttp.MethodGet, path, nil, &out, false)
	return out, err
}

// Health checks GET /health.
func (c *Client) Health(ctx context.Context) error {
	var out map[string]bool
	if _, err := c.doJSON(ctx, fasthttp.MethodGet, "/health", nil, &out, false); err != nil {
		return err
	}
	if !out["ok"] {
		return errors.New("health: not ok")
	}
	return nil
}

// WebsocketURL derives the ws:// or wss:// endpoint from the base URL.
func (c *Client) WebsocketURL() string {
	u := c.baseURL
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u + "/ttt/ws"
}

// POST /ttt/api/join is retried: a repeated request at worst leaves an extra empty room that the
// inactivity sweep removes.
func (c *Client) doJSON(ctx context.Context, method, path string, in any, out any, retry bool) (int, error) {
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
			return 0, fmt.Errorf("marshal request: %w", err)
		}
		req.SetBody(payload)
	}

	attempts := 1
	if retry && c.retryMax > 1 {
		attempts = c.retryMax
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := c.http.DoDeadline(req, resp, c.computeDeadline(ctx)); err != nil {
			lastErr = fmt.Errorf("request failed: %w", err)
		} else {
			status := resp.StatusCode()
			if status >= 200 && status < 300 {
				if out != nil {
					if err := json.Unmarshal(resp.Body(), out); err != nil {
						return status, fmt.Errorf("decode response: %w", err)
					}
				}
				return status, nil
			}
			se := &StatusError{Status: status}
			_ = json.Unmarshal(resp.Body(), &se.Domain)
			if !shouldRetryStatus(status) {
				return status, se
			}
			lastErr = se
		}
		if attempt == attempts {
			break
		}
		if err := sleepWithContext(ctx, backoffDuration(attempt)); err != nil {
			return 0, lastErr
		}
	}
	return 0, lastErr
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
	case 500, 502, 503, 504:
		return true
	default:
		return false
	}
}
