package calendar

import (
	"errors"
	"net/http"
	"strings"
	"time"
	_ "time/tzdata" // clients send IANA zone names

	"smart-todo/internal/analytics"
	"smart-todo/internal/auth"
	"smart-todo/internal/httpjson"
	"smart-todo/internal/observability"
)

// deadline layouts accepted besides RFC 3339; read in the event zone
var deadlineLayouts = []string{"2006-01-02T15:04", "2006-01-02"}

// StatusHandler serves GET /google-calendar/status.
func StatusHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := auth.SessionFromContext(r.Context())
		if !ok {
			httpjson.Unauthorized(w)
			return
		}
		httpjson.Write(w, http.StatusOK, svc.Status(r.Context(), s))
	}
}

// CreateEventHandler serves POST /google-calendar/create-event. Calendar
// failures are reported in the body with a 200 so task creation never
// depends on them.
func CreateEventHandler(svc *Service, rec analytics.Recorder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := auth.SessionFromContext(r.Context())
		if !ok {
			httpjson.Unauthorized(w)
			return
		}

		var body struct {
			Title       string `json:"title"`
			Description string `json:"description"`
			Deadline    string `json:"deadline"`
			TimeZone    string `json:"timeZone"`
		}
		if err := httpjson.Decode(r, &body); err != nil {
			httpjson.Error(w, http.StatusInternalServerError, "Failed to create calendar event")
			return
		}

		req := EventRequest{Title: body.Title, Description: body.Description}
		if body.TimeZone != "" {
			if loc, err := time.LoadLocation(body.TimeZone); err == nil {
				req.Location = loc
			}
		}

		if !s.HasCalendarIdentity() || s.ProviderToken == "" {
			httpjson.Write(w, http.StatusOK, CreateResult{Message: "Google Calendar not connected"})
			return
		}

		loc := req.Location
		if loc == nil {
			loc = svc.cfg.Location
		}
		deadline, err := parseDeadline(body.Deadline, loc)
		if err != nil {
			observability.LoggerFromContext(r.Context()).Warn("invalid event deadline",
				"deadline", body.Deadline, "error", err)
			httpjson.Write(w, http.StatusOK, CreateResult{Message: "Error creating calendar event"})
			return
		}
		req.Deadline = deadline

		res := svc.CreateEvent(r.Context(), s, req)
		if res.Success {
			rec.Record(r.Context(), analytics.FromRequest(r), analytics.EventCalendarEventCreated, map[string]any{
				"event_id": res.EventID,
			}, analytics.SourceEventKeyFromRequest(r))
		}
		httpjson.Write(w, http.StatusOK, res)
	}
}

// SyncTasksHandler serves POST /google-calendar/sync-tasks.
func SyncTasksHandler(svc *Service, rec analytics.Recorder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := auth.SessionFromContext(r.Context())
		if !ok {
			httpjson.Unauthorized(w)
			return
		}

		summary, err := svc.SyncTasks(r.Context(), s)
		switch {
		case errors.Is(err, ErrNotConnected):
			httpjson.BadRequest(w, "Google Calendar access not available. Please reconnect your Google account.")
			return
		case err != nil:
			observability.LoggerFromContext(r.Context()).Error("calendar sync failed", "error", err)
			httpjson.Error(w, http.StatusInternalServerError, "Failed to sync tasks with Google Calendar: "+err.Error())
			return
		}

		rec.Record(r.Context(), analytics.FromRequest(r), analytics.EventCalendarTasksSynced, map[string]any{
			"total":   summary.TotalTasks,
			"success": summary.Results.Success,
			"failed":  summary.Results.Failed,
		}, analytics.SourceEventKeyFromRequest(r))

		httpjson.Write(w, http.StatusOK, summary)
	}
}

func parseDeadline(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	t, err := time.Parse(time.RFC3339, s)
	if err == nil {
		return t, nil
	}
	for _, layout := range deadlineLayouts {
		if t, perr := time.ParseInLocation(layout, s, loc); perr == nil {
			return t, nil
		}
	}
	return time.Time{}, err
}
