// Package calendar relays tasks to the user's Google Calendar using the
// provider token obtained at Google sign-in.
package calendar

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const DefaultAPIURL = "https://www.googleapis.com/calendar/v3"

// APIError is a non-2xx answer from the calendar API.
type APIError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *APIError) Error() string { return e.Status }

type EventTime struct {
	DateTime string `json:"dateTime"`
	TimeZone string `json:"timeZone,omitempty"`
}

type EventSource struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

type Event struct {
	ID          string       `json:"id,omitempty"`
	Summary     string       `json:"summary"`
	Description string       `json:"description,omitempty"`
	Start       EventTime    `json:"start"`
	End         EventTime    `json:"end"`
	ColorID     string       `json:"colorId,omitempty"`
	Source      *EventSource `json:"source,omitempty"`
	HTMLLink    string       `json:"htmlLink,omitempty"`
}

// Client is a thin REST client; every call carries the caller's provider
// token.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string, hc *http.Client) *Client {
	if baseURL == "" {
		baseURL = DefaultAPIURL
	}
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: hc}
}

// GetCalendar is the cheap read used to check that a token still works.
func (c *Client) GetCalendar(ctx context.Context, token, calendarID string) error {
	return c.do(ctx, http.MethodGet, "/calendars/"+url.PathEscape(calendarID), token, nil, nil)
}

func (c *Client) InsertEvent(ctx context.Context, token, calendarID string, ev Event) (Event, error) {
	var created Event
	err := c.do(ctx, http.MethodPost, "/calendars/"+url.PathEscape(calendarID)+"/events", token, ev, &created)
	return created, err
}

func (c *Client) do(ctx context.Context, method, path, token string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("calendar api: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{StatusCode: resp.StatusCode, Status: resp.Status, Body: string(raw)}
	}

	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	return json.Unmarshal(raw, out)
}
