package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"asyncops/pkg/contracts"
	api "asyncops/pkg/contracts/api/v1"
	"asyncops/pkg/contracts/events"
)

// ErrStopWatch returned by a watch callback ends the stream without error
var ErrStopWatch = errors.New("stop watching")

// ProblemError is a problem document returned by the daemon
type ProblemError struct {
	Status int    `json:"status"`
	Type   string `json:"type"`
	Title  string `json:"title"`
	Detail string `json:"detail"`
}

func (e *ProblemError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s (HTTP %d): %s", e.Title, e.Status, e.Detail)
	}
	return fmt.Sprintf("%s (HTTP %d)", e.Title, e.Status)
}

// Client talks to the daemon's REST API and websocket stream
type Client struct {
	base    *url.URL
	http    *http.Client
	timeout time.Duration
}

// NewClient creates a client for the daemon at server
func NewClient(server string, timeout time.Duration) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(server, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid server URL %q: %w", server, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid server URL %q: scheme must be http or https", server)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid server URL %q: missing host", server)
	}
	return &Client{
		base:    u,
		http:    &http.Client{Timeout: timeout},
		timeout: timeout,
	}, nil
}

// List returns the retained operations, optionally filtered by status
func (c *Client) List(ctx context.Context, status string) (api.OperationList, error) {
	path := "/api/operations"
	if status != "" {
		path += "?status=" + url.QueryEscape(status)
	}
	var out api.OperationList
	err := c.do(ctx, http.MethodGet, path, &out)
	return out, err
}

// Get returns one operation
func (c *Client) Get(ctx context.Context, id string) (events.OperationSnapshot, error) {
	var out events.OperationSnapshot
	err := c.do(ctx, http.MethodGet, "/api/operations/"+url.PathEscape(id), &out)
	return out, err
}

// Cancel cancels a running operation and returns its final snapshot
func (c *Client) Cancel(ctx context.Context, id string) (events.OperationSnapshot, error) {
	var out events.OperationSnapshot
	err := c.do(ctx, http.MethodPost, "/api/operations/"+url.PathEscape(id)+"/cancel", &out)
	return out, err
}

func (c *Client) do(ctx context.Context, method, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", contracts.UserAgent("asyncopsctl"))

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return decodeProblem(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeProblem(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	problem := &ProblemError{}
	if err := json.Unmarshal(body, problem); err != nil || problem.Title == "" {
		problem.Title = http.StatusText(resp.StatusCode)
		problem.Detail = strings.TrimSpace(string(body))
	}
	problem.Status = resp.StatusCode
	return problem
}

// Watch streams websocket messages to fn until ctx is cancelled, the
// connection closes, or fn returns an error. ErrStopWatch ends the stream
// cleanly.
func (c *Client) Watch(ctx context.Context, fn func(events.Message) error) error {
	wsURL := *c.base
	wsURL.Scheme = "ws"
	if c.base.Scheme == "https" {
		wsURL.Scheme = "wss"
	}
	wsURL.Path = strings.TrimRight(wsURL.Path, "/") + "/ws"

	dialer := websocket.Dialer{HandshakeTimeout: c.timeout}
	conn, resp, err := dialer.DialContext(ctx, wsURL.String(), nil)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("connect %s: HTTP %d: %w", wsURL.String(), resp.StatusCode, err)
		}
		return fmt.Errorf("connect %s: %w", wsURL.String(), err)
	}
	defer conn.Close()

	// unblock ReadJSON on cancellation
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	for {
		var msg events.Message
		if err := conn.ReadJSON(&msg); err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				return nil
			}
			return fmt.Errorf("read message: %w", err)
		}
		if err := fn(msg); err != nil {
			if errors.Is(err, ErrStopWatch) {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(time.Second))
				return nil
			}
			return err
		}
	}
}
