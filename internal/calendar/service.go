package calendar

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"smart-todo/internal/apiclient"
	"smart-todo/internal/auth"
	"smart-todo/internal/observability"
	"smart-todo/internal/tasks"
)

var ErrNotConnected = errors.New("calendar not connected")

const (
	eventDuration = time.Hour
	sourceTitle   = "Smart Todo Dashboard"
)

type Status struct {
	Connected bool   `json:"connected"`
	CanSync   bool   `json:"canSync"`
	Message   string `json:"message"`
}

type EventRequest struct {
	Title       string
	Description string
	Deadline    time.Time

	// Location overrides the configured zone when the caller sent one.
	Location *time.Location
}

type CreateResult struct {
	Success bool   `json:"success"`
	EventID string `json:"eventId,omitempty"`
	Message string `json:"message"`
}

type SyncResults struct {
	Success int      `json:"success"`
	Failed  int      `json:"failed"`
	Errors  []string `json:"errors"`
}

type SyncSummary struct {
	Message    string      `json:"message"`
	Results    SyncResults `json:"results"`
	TotalTasks int         `json:"totalTasks"`
}

type Config struct {
	CalendarID string
	SiteURL    string
	Location   *time.Location

	// APIBaseURL is the backend whose tasks SyncTasks reads.
	APIBaseURL string
	APIOptions []apiclient.Option
}

type Service struct {
	client *Client
	cfg    Config
}

func NewService(client *Client, cfg Config) *Service {
	if cfg.CalendarID == "" {
		cfg.CalendarID = "primary"
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	return &Service{client: client, cfg: cfg}
}

// ColorForPriority maps task priority to a calendar color id:
// High red, Medium orange, anything else green.
func ColorForPriority(p tasks.Priority) string {
	switch p {
	case tasks.PriorityHigh:
		return "11"
	case tasks.PriorityMedium:
		return "5"
	default:
		return "2"
	}
}

// Status reports whether the session can write calendar events. A 401 from
// the calendar API counts as still connected when a refresh token exists.
func (s *Service) Status(ctx context.Context, sess *auth.Session) Status {
	if !sess.HasCalendarIdentity() {
		return Status{Message: "Please sign in with Google to enable calendar sync"}
	}
	if sess.ProviderToken == "" {
		return Status{Message: "Google access token not available. Please reconnect your Google account."}
	}

	err := s.client.GetCalendar(ctx, sess.ProviderToken, s.cfg.CalendarID)
	if err == nil {
		return Status{Connected: true, CanSync: true, Message: "Google Calendar access available"}
	}

	var apiErr *APIError
	switch {
	case errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized:
		return Status{
			Connected: sess.ProviderRefreshToken != "",
			Message:   "Google Calendar access expired. Please reconnect your account.",
		}
	case errors.As(err, &apiErr):
		return Status{Connected: true, Message: "Unable to access Google Calendar. Please check permissions."}
	default:
		observability.LoggerFromContext(ctx).Warn("calendar status check failed", "error", err)
		return Status{Connected: true, Message: "Unable to verify Google Calendar access"}
	}
}

// CreateEvent adds a one-hour event at the deadline. It never fails the
// caller; the outcome is in the result.
func (s *Service) CreateEvent(ctx context.Context, sess *auth.Session, req EventRequest) CreateResult {
	if !sess.HasCalendarIdentity() || sess.ProviderToken == "" {
		return CreateResult{Message: "Google Calendar not connected"}
	}

	created, err := s.client.InsertEvent(ctx, sess.ProviderToken, s.cfg.CalendarID, s.event(req, ""))
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			observability.LoggerFromContext(ctx).Error("failed to create calendar event",
				"status", apiErr.StatusCode, "body", apiErr.Body)
			return CreateResult{Message: "Failed to create calendar event"}
		}
		observability.LoggerFromContext(ctx).Error("error creating calendar event", "error", err)
		return CreateResult{Message: "Error creating calendar event"}
	}

	return CreateResult{Success: true, EventID: created.ID, Message: "Event created in Google Calendar"}
}

// SyncTasks pushes every Pending or In Progress task to the calendar, one at
// a time. A failing task is counted and reported; the rest still run.
func (s *Service) SyncTasks(ctx context.Context, sess *auth.Session) (SyncSummary, error) {
	if !sess.HasCalendarIdentity() || sess.ProviderToken == "" {
		return SyncSummary{}, ErrNotConnected
	}

	api := apiclient.New(s.cfg.APIBaseURL, apiclient.StaticToken(sess.AccessToken), s.cfg.APIOptions...)
	page, err := tasks.NewRepository(api, nil).List(ctx)
	if err != nil {
		return SyncSummary{}, err
	}

	var open []tasks.Task
	for _, t := range page.Results {
		if t.Status == tasks.StatusPending || t.Status == tasks.StatusInProgress {
			open = append(open, t)
		}
	}

	log := observability.LoggerFromContext(ctx)
	log.Info("syncing tasks to calendar", "tasks", len(open))

	res := SyncResults{Errors: []string{}}
	for _, t := range open {
		ev := s.event(EventRequest{
			Title:       t.Title,
			Description: taskDescription(t),
			Deadline:    t.Deadline,
		}, ColorForPriority(t.PriorityLabel))

		created, err := s.client.InsertEvent(ctx, sess.ProviderToken, s.cfg.CalendarID, ev)
		if err != nil {
			res.Failed++
			res.Errors = append(res.Errors, fmt.Sprintf("Failed to sync %q: %s", t.Title, err))
			log.Warn("task sync failed", "task_id", t.ID, "error", err)
			continue
		}
		res.Success++
		log.Debug("task synced", "task_id", t.ID, "event_id", created.ID)
	}

	return SyncSummary{
		Message:    fmt.Sprintf("Sync completed: %d tasks synced, %d failed", res.Success, res.Failed),
		Results:    res,
		TotalTasks: len(open),
	}, nil
}

func taskDescription(t tasks.Task) string {
	category := t.CategoryName
	if category == "" {
		category = "None"
	}
	return fmt.Sprintf("%s\n\nPriority: %s\nStatus: %s\nCategory: %s", t.Description, t.PriorityLabel, t.Status, category)
}

func (s *Service) event(req EventRequest, colorID string) Event {
	loc := req.Location
	if loc == nil {
		loc = s.cfg.Location
	}
	start := req.Deadline.In(loc)

	// time.Local has no IANA name; the offset in dateTime is enough then.
	tz := loc.String()
	if loc == time.Local {
		tz = ""
	}

	return Event{
		Summary:     req.Title,
		Description: req.Description,
		Start:       EventTime{DateTime: start.Format(time.RFC3339), TimeZone: tz},
		End:         EventTime{DateTime: start.Add(eventDuration).Format(time.RFC3339), TimeZone: tz},
		ColorID:     colorID,
		Source:      &EventSource{Title: sourceTitle, URL: s.cfg.SiteURL},
	}
}
