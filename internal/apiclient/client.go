// Package apiclient talks to the backend REST API on behalf of the current
// session. Every call carries the session's bearer token; a call without a
// session fails before anything touches the network.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/net/publicsuffix"

	"smart-todo/internal/observability"
)

const DefaultTimeout = 30 * time.Second

// ErrUnauthenticated is returned when no session (or no access token) is
// available. No request is sent in that case.
var ErrUnauthenticated = errors.New("not authenticated: please sign in")

// TokenSource yields the access token of the current session.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

// StaticToken is a TokenSource for a token already in hand (server-side
// relays forwarding the inbound session).
type StaticToken string

func (t StaticToken) AccessToken(context.Context) (string, error) {
	if t == "" {
		return "", ErrUnauthenticated
	}
	return string(t), nil
}

// Error is the single error surface for non-2xx backend responses.
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string { return e.Message }

// Page mirrors the backend's paginated list envelope. Pagination links are
// passed through untouched.
type Page[T any] struct {
	Count    int     `json:"count"`
	Next     *string `json:"next"`
	Previous *string `json:"previous"`
	Results  []T     `json:"results"`
}

type Client struct {
	baseURL string
	http    *http.Client
	tokens  TokenSource
	headers func(ctx context.Context) http.Header
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

// WithHeaders adds headers to every request, after the bearer token.
// Repeated options are merged; later ones win on the same key.
func WithHeaders(fn func(ctx context.Context) http.Header) Option {
	return func(c *Client) {
		prev := c.headers
		if prev == nil {
			c.headers = fn
			return
		}
		c.headers = func(ctx context.Context) http.Header {
			h := prev(ctx)
			if h == nil {
				h = http.Header{}
			}
			for k, vs := range fn(ctx) {
				h[k] = vs
			}
			return h
		}
	}
}

func New(baseURL string, tokens TokenSource, opts ...Option) *Client {
	jar, _ := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})

	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: DefaultTimeout, Jar: jar},
		tokens:  tokens,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) BaseURL() string { return c.baseURL }

func (c *Client) Get(ctx context.Context, path string, out any) error {
	return c.Do(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) Post(ctx context.Context, path string, in, out any) error {
	return c.Do(ctx, http.MethodPost, path, in, out)
}

func (c *Client) Patch(ctx context.Context, path string, in, out any) error {
	return c.Do(ctx, http.MethodPatch, path, in, out)
}

func (c *Client) Delete(ctx context.Context, path string) error {
	return c.Do(ctx, http.MethodDelete, path, nil, nil)
}

// Do sends one request. There is no retry: network errors and non-2xx
// responses propagate once.
func (c *Client) Do(ctx context.Context, method, path string, in, out any) error {
	if c.tokens == nil {
		return ErrUnauthenticated
	}
	token, err := c.tokens.AccessToken(ctx)
	if err != nil {
		return err
	}
	if token == "" {
		return ErrUnauthenticated
	}

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.headers != nil {
		for k, vs := range c.headers(ctx) {
			for _, v := range vs {
				req.Header.Add(k, v)
			}
		}
	}
	if reqID := observability.RequestID(ctx); reqID != "" {
		req.Header.Set(observability.RequestIDHeader, reqID)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &Error{StatusCode: resp.StatusCode, Message: errorMessage(resp, raw)}
		observability.LoggerFromContext(ctx).Error("backend request failed",
			"method", method,
			"path", path,
			"status", resp.StatusCode,
			"body", string(raw),
		)
		return apiErr
	}

	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s %s response: %w", method, path, err)
	}
	return nil
}

// errorMessage picks "detail", then "message", then "error" (the relay's
// shape), then the status line.
func errorMessage(resp *http.Response, raw []byte) string {
	if gjson.ValidBytes(raw) {
		for _, key := range []string{"detail", "message"} {
			if v := gjson.GetBytes(raw, key); v.Exists() && strings.TrimSpace(v.String()) != "" {
				return v.String()
			}
		}
		// Google-style {"error": {...}} objects are not a message
		if v := gjson.GetBytes(raw, "error"); v.Type == gjson.String && strings.TrimSpace(v.Str) != "" {
			return v.Str
		}
	}
	if resp.Status != "" {
		return resp.Status
	}
	return fmt.Sprintf("%d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
}
