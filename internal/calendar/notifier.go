package calendar

import (
	"context"
	"errors"
	"net/http"
	"time"

	"smart-todo/internal/apiclient"
	"smart-todo/internal/auth"
	"smart-todo/internal/tasks"
)

const createEventPath = "/google-calendar/create-event"

type SessionSource interface {
	Current() *auth.Session
}

// RelayNotifier forwards newly created tasks to the relay's create-event
// endpoint. It is the tasks.EventNotifier used by clients.
type RelayNotifier struct {
	api *apiclient.Client
}

var _ tasks.EventNotifier = (*RelayNotifier)(nil)

func NewRelayNotifier(relayURL string, tokens apiclient.TokenSource, sessions SessionSource, opts ...apiclient.Option) *RelayNotifier {
	opts = append(opts, apiclient.WithHeaders(ProviderHeaders(sessions)))
	return &RelayNotifier{api: apiclient.New(relayURL, tokens, opts...)}
}

// ProviderHeaders forwards the current session's calendar token pair so
// bearer calls to the relay can reach the calendar API.
func ProviderHeaders(sessions SessionSource) func(context.Context) http.Header {
	return func(context.Context) http.Header {
		h := http.Header{}
		s := sessions.Current()
		if s == nil {
			return h
		}
		if s.ProviderToken != "" {
			h.Set(auth.ProviderTokenHeader, s.ProviderToken)
		}
		if s.ProviderRefreshToken != "" {
			h.Set(auth.ProviderRefreshTokenHeader, s.ProviderRefreshToken)
		}
		return h
	}
}

func (n *RelayNotifier) NotifyTaskCreated(ctx context.Context, t tasks.Task) error {
	body := map[string]string{
		"title":       t.Title,
		"description": t.Description,
		"deadline":    t.Deadline.Format(time.RFC3339),
	}

	var res CreateResult
	if err := n.api.Post(ctx, createEventPath, body, &res); err != nil {
		return err
	}
	if !res.Success {
		return errors.New(res.Message)
	}
	return nil
}
