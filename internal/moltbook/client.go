// Package moltbook is a minimal client for the Moltbook social API,
// covering the endpoints the notification tracker polls.
package moltbook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/codeGROOVE-dev/retry"
)

// ErrNotFound indicates the remote resource is gone (e.g. a deleted post).
// Callers treat it as a soft skip, never a failure.
var ErrNotFound = errors.New("moltbook: not found")

// ErrNoCredentials indicates the credentials file is missing entirely.
var ErrNoCredentials = errors.New("moltbook: no credentials file")

// StatusError is a non-retryable HTTP error response (4xx/5xx other than
// rate limiting and not-found).
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.URL)
}

// Credentials is the on-disk credential record written by the onboarding skill.
type Credentials struct {
	APIKey string `json:"api_key"`
}

// LoadCredentials reads the credentials file. A missing file returns
// ErrNoCredentials so the caller can direct the operator to authenticate.
func LoadCredentials(path string) (*Credentials, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNoCredentials, path)
		}
		return nil, fmt.Errorf("read credentials: %w", err)
	}

	var creds Credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}
	if creds.APIKey == "" {
		return nil, fmt.Errorf("%w: missing api_key field", ErrNoCredentials)
	}
	return &creds, nil
}

const (
	fetchAttempts  = 3
	initialBackoff = 400 * time.Millisecond
	maxBackoff     = 10 * time.Second
	requestTimeout = 30 * time.Second
)

// Client makes authenticated GET requests against the Moltbook API with
// retry and exponential backoff on rate limits and transport errors.
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	base       string
	apiKey     string
}

// NewClient creates a client against the given API base URL.
func NewClient(base, apiKey string, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: requestTimeout},
		logger:     logger,
		base:       base,
		apiKey:     apiKey,
	}
}

// APIBase reports the configured API base URL.
func (c *Client) APIBase() string { return c.base }

// Post fetches a post with its full comment list.
func (c *Client) Post(ctx context.Context, id string) (*Post, error) {
	var post Post
	if err := c.get(ctx, "/posts/"+id, &post); err != nil {
		return nil, err
	}
	return &post, nil
}

// DMConversations fetches the agent's DM conversation list.
func (c *Client) DMConversations(ctx context.Context) ([]Conversation, error) {
	var list ConversationList
	if err := c.get(ctx, "/agents/dm/check", &list); err != nil {
		return nil, err
	}
	return list, nil
}

// Feed fetches the newest posts from followed agents, most recent first.
func (c *Client) Feed(ctx context.Context, limit int) ([]FeedPost, error) {
	var list FeedList
	if err := c.get(ctx, fmt.Sprintf("/feed?sort=new&limit=%d", limit), &list); err != nil {
		return nil, err
	}
	return list, nil
}

func (c *Client) get(ctx context.Context, endpoint string, v any) error {
	url := c.base + endpoint

	err := retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
			if err != nil {
				return retry.Unrecoverable(fmt.Errorf("create request: %w", err))
			}
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
			req.Header.Set("Accept", "application/json")

			startTime := time.Now()
			resp, err := c.httpClient.Do(req)
			duration := time.Since(startTime)

			if err != nil {
				c.logger.Warn("HTTP request failed, will retry",
					"url", url,
					"duration_ms", duration.Milliseconds(),
					"error", err)
				return err
			}
			defer func() {
				if closeErr := resp.Body.Close(); closeErr != nil {
					c.logger.Warn("Failed to close response body", "error", closeErr)
				}
			}()

			c.logger.Debug("HTTP request completed",
				"url", url,
				"status_code", resp.StatusCode,
				"duration_ms", duration.Milliseconds())

			switch {
			case resp.StatusCode == http.StatusTooManyRequests:
				c.logger.Warn("Rate limited, will retry with backoff", "url", url)
				return fmt.Errorf("rate limited: HTTP %d", resp.StatusCode)
			case resp.StatusCode == http.StatusNotFound:
				return retry.Unrecoverable(ErrNotFound)
			case resp.StatusCode != http.StatusOK:
				return retry.Unrecoverable(&StatusError{URL: url, StatusCode: resp.StatusCode})
			}

			body, err := io.ReadAll(resp.Body)
			if err != nil {
				return fmt.Errorf("read response: %w", err)
			}
			if err := json.Unmarshal(body, v); err != nil {
				return retry.Unrecoverable(fmt.Errorf("decode response: %w", err))
			}
			return nil
		},
		retry.Attempts(fetchAttempts),
		retry.Delay(initialBackoff),
		retry.MaxDelay(maxBackoff),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, retryErr error) {
			c.logger.Info("Retrying fetch after error", "attempt", n, "url", url, "error", retryErr)
		}),
	)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("GET %s: %w", endpoint, err)
	}
	return nil
}
