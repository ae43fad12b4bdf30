// Package ghapi is a thin client for the GitHub REST endpoints used to
// dispatch workflows and observe their runs.
package ghapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultAPIURL is used when no API base is configured.
const DefaultAPIURL = "https://api.github.com"

// serverErrorMarker is the body fragment GitHub returns for transient 5xx
// responses.
const serverErrorMarker = "Server Error"

const defaultRequestTimeout = 30 * time.Second

var defaultHTTPClient = &http.Client{Timeout: defaultRequestTimeout}

// Sentinel errors for classifying failed calls with errors.Is.
var (
	ErrRetryable = errors.New("retryable api error")
	ErrFatal     = errors.New("fatal api error")
)

// APIError describes a non-2xx response or a failed round trip.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
	Retryable  bool
	Err        error
}

func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %s: %v", e.Method, e.Path, e.Err)
	}
	return fmt.Sprintf("%s %s: returned status %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// Is maps the error onto ErrRetryable or ErrFatal.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrRetryable:
		return e.Retryable
	case ErrFatal:
		return !e.Retryable
	}
	return false
}

func (e *APIError) Unwrap() error { return e.Err }

// IsRetryable reports whether err is a transient API failure.
func IsRetryable(err error) bool { return errors.Is(err, ErrRetryable) }

// Client issues authenticated calls relative to /repos/{owner}/{repo}/.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	userAgent  string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client (useful for testing).
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.httpClient = c }
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(cl *Client) { cl.userAgent = ua }
}

// New creates a client for owner/repo using token for bearer authentication.
func New(apiURL, owner, repo, token string, opts ...Option) *Client {
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	c := &Client{
		baseURL:    strings.TrimRight(apiURL, "/") + "/repos/" + owner + "/" + repo + "/",
		token:      token,
		httpClient: defaultHTTPClient,
		userAgent:  "dispatchwait",
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Call performs one request. body, when non-nil, is encoded as JSON. It never
// retries; callers decide what to do with ErrRetryable.
func (c *Client) Call(ctx context.Context, method, path string, body interface{}) ([]byte, error) {
	var reader io.Reader = http.NoBody
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("%s %s: marshaling body: %w", method, path, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+strings.TrimLeft(path, "/"), reader)
	if err != nil {
		return nil, fmt.Errorf("%s %s: creating request: %w", method, path, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%s %s: %w", method, path, ctx.Err())
		}
		return nil, &APIError{Method: method, Path: path, Retryable: true, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &APIError{Method: method, Path: path, StatusCode: resp.StatusCode, Retryable: true, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{
			Method:     method,
			Path:       path,
			StatusCode: resp.StatusCode,
			Body:       string(respBody),
			Retryable:  strings.Contains(string(respBody), serverErrorMarker),
		}
	}
	return respBody, nil
}
