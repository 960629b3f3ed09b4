// ABOUTME: Scheduler API client: list, schedule, and cancel pending notes.
// ABOUTME: Wraps a plain HTTP client with per-request authorization.

package schedule

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/relaypress/relaypress/internal/event"
)

// DefaultTimeout bounds each scheduler request.
const DefaultTimeout = 10 * time.Second

// ErrUnauthorized indicates the scheduler refused the bearer token.
var ErrUnauthorized = errors.New("scheduler rejected credentials")

// TokenSource mints one Authorization header value per request.
type TokenSource interface {
	AuthorizationHeader(rawURL, method string) (string, error)
}

// Note is a pending publication held by the scheduler.
type Note struct {
	ID        string     `json:"id"`
	Content   string     `json:"content"`
	Kind      int        `json:"kind"`
	Tags      event.Tags `json:"tags,omitempty"`
	PublishAt int64      `json:"publishAt"`
	Relays    []string   `json:"relays,omitempty"`
	Status    string     `json:"status,omitempty"`
}

// ScheduleRequest asks the scheduler to publish a note at a later time.
// Tags carry the metadata of non-trivial kinds; plain text notes leave
// them empty.
type ScheduleRequest struct {
	Content   string     `json:"content"`
	Kind      int        `json:"kind,omitempty"`
	Tags      event.Tags `json:"tags,omitempty"`
	PublishAt int64      `json:"publishAt"`
	Relays    []string   `json:"relays,omitempty"`
}

// Client calls the scheduling service.
type Client struct {
	baseURL string
	tokens  TokenSource
	http    *http.Client
	logger  *slog.Logger
}

// NewClient creates a scheduler client for the given base URL.
func NewClient(baseURL string, tokens TokenSource, logger *slog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		tokens:  tokens,
		http:    &http.Client{Timeout: DefaultTimeout},
		logger:  logger.With("component", "schedule"),
	}
}

// List returns all pending notes.
func (c *Client) List(ctx context.Context) ([]Note, error) {
	var notes []Note
	if err := c.do(ctx, http.MethodGet, "/api/notes", nil, &notes); err != nil {
		return nil, err
	}
	return notes, nil
}

// Schedule hands a note to the scheduler and returns it with its
// assigned id.
func (c *Client) Schedule(ctx context.Context, req ScheduleRequest) (*Note, error) {
	var note Note
	if err := c.do(ctx, http.MethodPost, "/api/notes", req, &note); err != nil {
		return nil, err
	}
	return &note, nil
}

// Cancel removes a pending note.
func (c *Client) Cancel(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("cancel requires a note id")
	}
	return c.do(ctx, http.MethodDelete, "/api/notes/"+url.PathEscape(id), nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, payload, out any) error {
	fullURL := c.baseURL + path

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, body)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}

	header, err := c.tokens.AuthorizationHeader(fullURL, method)
	if err != nil {
		return fmt.Errorf("minting auth token: %w", err)
	}
	req.Header.Set("Authorization", header)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.logger.Debug("scheduler request", "method", method, "url", fullURL)
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("calling scheduler: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %s", ErrUnauthorized, resp.Status)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("scheduler returned %s: %s", resp.Status, strings.TrimSpace(string(snippet)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
