package analytics

import (
	"net/http"
	"strings"

	"smart-todo/internal/httpjson"
)

// Client-reported events.
const (
	EventDashboardOpened = "dashboard_opened"
	EventTasksExported   = "tasks_exported"
	EventTasksImported   = "tasks_imported"
)

var clientEvents = map[string]bool{
	EventDashboardOpened: true,
	EventTasksExported:   true,
	EventTasksImported:   true,
}

// EventHandler accepts client-side events for the signed-in user.
// Only the known event names above are stored.
func EventHandler(rec Recorder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		env := FromRequest(r)
		if env.UserID == "" {
			httpjson.Unauthorized(w)
			return
		}

		var body struct {
			Event string `json:"event"`
			Count int    `json:"count"`
			Tab   string `json:"tab"` // dashboard tab, when relevant
		}
		if err := httpjson.Decode(r, &body); err != nil {
			httpjson.BadRequest(w, "invalid json")
			return
		}

		event := strings.TrimSpace(body.Event)
		if !clientEvents[event] {
			httpjson.BadRequest(w, "unknown event")
			return
		}

		props := map[string]any{}
		if body.Count > 0 {
			props["count"] = body.Count
		}
		if body.Tab != "" {
			props["tab"] = body.Tab
		}

		rec.Record(r.Context(), env, event, props, SourceEventKeyFromRequest(r))
		httpjson.Write(w, http.StatusOK, map[string]any{"ok": true})
	}
}
