// Package restapi is the HTTP client for the task-board bulk-load endpoints.
package restapi

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

	"github.com/rs/zerolog/log"

	"github.com/gosuda/taskboard/internal/domain"
)

const (
	defaultTimeout = 10 * time.Second
	maxRetries     = 3
	initialBackoff = 250 * time.Millisecond
	maxErrorBody   = 512
)

// ErrUnexpectedStatus is returned for non-2xx responses.
var ErrUnexpectedStatus = errors.New("restapi: unexpected status") //nolint:gochecknoglobals // sentinel error

var errDecode = errors.New("decode") //nolint:gochecknoglobals // sentinel error

// StatusError carries the response code and a prefix of the body.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.Code, e.Body)
}

func (e *StatusError) Unwrap() error { return ErrUnexpectedStatus }

// Option configures optional Client parameters.
type Option func(*Client)

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

// WithBackoff sets the delay before the first retry of a GET. Later
// retries double it.
func WithBackoff(d time.Duration) Option {
	return func(c *Client) { c.backoff = d }
}

// Client talks to the board server's REST API.
type Client struct {
	base    string
	http    *http.Client
	backoff time.Duration
}

// New creates a Client for the server rooted at baseURL
// (for example "http://localhost:8080").
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		base:    strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: defaultTimeout},
		backoff: initialBackoff,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ListTasks fetches every task.
func (c *Client) ListTasks(ctx context.Context) ([]domain.Task, error) {
	var tasks []domain.Task
	if err := c.get(ctx, "/api/tasks", &tasks); err != nil {
		return nil, fmt.Errorf("restapi.Client.ListTasks: %w", err)
	}
	return tasks, nil
}

// ListBoardTasks fetches the tasks of one board.
func (c *Client) ListBoardTasks(ctx context.Context, board domain.ID) ([]domain.Task, error) {
	var tasks []domain.Task
	if err := c.get(ctx, "/api/tasks/board/"+url.PathEscape(board.String()), &tasks); err != nil {
		return nil, fmt.Errorf("restapi.Client.ListBoardTasks: %w", err)
	}
	return tasks, nil
}

// ListUserBoards fetches the boards visible to username. The server may
// answer with a bare array or with {"boards": [...]}.
func (c *Client) ListUserBoards(ctx context.Context, username string) ([]domain.Board, error) {
	var raw json.RawMessage
	if err := c.get(ctx, "/api/boards/user/"+url.PathEscape(username), &raw); err != nil {
		return nil, fmt.Errorf("restapi.Client.ListUserBoards: %w", err)
	}

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var boards []domain.Board
		if err := json.Unmarshal(trimmed, &boards); err != nil {
			return nil, fmt.Errorf("restapi.Client.ListUserBoards: decode: %w", err)
		}
		return boards, nil
	}

	var wrapped struct {
		Boards []domain.Board `json:"boards"`
	}
	if err := json.Unmarshal(trimmed, &wrapped); err != nil {
		return nil, fmt.Errorf("restapi.Client.ListUserBoards: decode: %w", err)
	}
	return wrapped.Boards, nil
}

// CreateBoard posts a new board and returns the stored copy.
func (c *Client) CreateBoard(ctx context.Context, b domain.Board) (domain.Board, error) {
	body, err := json.Marshal(b)
	if err != nil {
		return domain.Board{}, fmt.Errorf("restapi.Client.CreateBoard: marshal: %w", err)
	}

	var created domain.Board
	if err := c.do(ctx, http.MethodPost, "/api/boards", body, &created); err != nil {
		return domain.Board{}, fmt.Errorf("restapi.Client.CreateBoard: %w", err)
	}
	return created, nil
}

// ListTaskComments fetches the comments of one task.
func (c *Client) ListTaskComments(ctx context.Context, task domain.ID) ([]domain.Comment, error) {
	var comments []domain.Comment
	if err := c.get(ctx, "/api/comments/task/"+url.PathEscape(task.String()), &comments); err != nil {
		return nil, fmt.Errorf("restapi.Client.ListTaskComments: %w", err)
	}
	return comments, nil
}

// get retries transport failures, 429 and 5xx with exponential backoff.
func (c *Client) get(ctx context.Context, path string, out any) error {
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			delay := c.backoff << (attempt - 1)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		lastErr = c.do(ctx, http.MethodGet, path, nil, out)
		if lastErr == nil || !retryable(lastErr) {
			return lastErr
		}
		log.Debug().Err(lastErr).Str("path", path).Int("attempt", attempt+1).Msg("restapi retry")
	}
	return lastErr
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet := string(respBody)
		if len(snippet) > maxErrorBody {
			snippet = snippet[:maxErrorBody]
		}
		return &StatusError{Method: method, Path: path, Code: resp.StatusCode, Body: snippet}
	}

	if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("%w %s: %w", errDecode, path, err)
	}
	return nil
}

func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, errDecode) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code == http.StatusTooManyRequests || se.Code >= 500
	}
	return true
}
