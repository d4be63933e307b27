package analytics

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"smart-todo/internal/observability"
)

type CtxKey string

const (
	ctxUserIDKey CtxKey = "analytics_user_id"
)

// Server-side events.
const (
	EventTaskEnhanced         = "task_enhanced"
	EventTaskDetailsSuggested = "task_details_suggested"
	EventCalendarEventCreated = "calendar_event_created"
	EventCalendarTasksSynced  = "calendar_tasks_synced"
)

// Envelope is what we store with every event.
type Envelope struct {
	UserID       string
	SessionID    string
	Platform     string
	AppVersion   string
	DeviceLocale string
}

// FromRequest extracts event envelope fields from request.
// Backend-trustable fields only.
func FromRequest(r *http.Request) Envelope {
	platform := strings.ToLower(strings.TrimSpace(r.Header.Get("X-Platform")))
	if platform != "web" && platform != "cli" {
		platform = "unknown"
	}

	locale := strings.TrimSpace(r.Header.Get("Accept-Language"))
	if locale == "" {
		locale = strings.TrimSpace(r.Header.Get("X-Device-Locale"))
	}

	return Envelope{
		UserID:       userIDFromContext(r.Context()),
		SessionID:    strings.TrimSpace(r.Header.Get("X-Session-Id")),
		Platform:     platform,
		AppVersion:   strings.TrimSpace(r.Header.Get("X-App-Version")),
		DeviceLocale: locale,
	}
}

func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, ctxUserIDKey, userID)
}

func userIDFromContext(ctx context.Context) string {
	uid, _ := ctx.Value(ctxUserIDKey).(string)
	return uid
}

// SourceEventKeyFromRequest is the client-provided idempotency key, if any.
// A duplicate key is ignored on insert.
func SourceEventKeyFromRequest(r *http.Request) string {
	if k := strings.TrimSpace(r.Header.Get("Idempotency-Key")); k != "" {
		return k
	}
	return strings.TrimSpace(r.Header.Get("X-Source-Event-Key"))
}

// Recorder stores analytics events. Recording never breaks the request
// that triggered it; implementations swallow what they cannot store.
type Recorder interface {
	Record(ctx context.Context, env Envelope, event string, props any, sourceEventKey string)
}

// PostgresRecorder inserts into analytics_events.
type PostgresRecorder struct {
	db  *sql.DB
	now func() time.Time
}

func NewPostgresRecorder(db *sql.DB) *PostgresRecorder {
	return &PostgresRecorder{db: db, now: time.Now}
}

// Record never logs sensitive raw text; caller passes sanitized props.
func (p *PostgresRecorder) Record(ctx context.Context, env Envelope, event string, props any, sourceEventKey string) {
	if event == "" || env.UserID == "" {
		return
	}

	b, err := json.Marshal(props)
	if err != nil {
		return
	}

	_, err = p.db.ExecContext(ctx, `
		INSERT INTO analytics_events (
			event_name, event_time,
			user_id, session_id,
			platform, app_version, device_locale,
			source_event_key,
			properties
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::jsonb)
		ON CONFLICT (source_event_key) DO NOTHING
	`, event, p.now().UTC(),
		env.UserID, nullIfEmpty(env.SessionID),
		env.Platform, env.AppVersion, nullIfEmpty(env.DeviceLocale),
		nullIfEmpty(sourceEventKey),
		string(b),
	)
	if err != nil {
		observability.LoggerFromContext(ctx).Warn("analytics insert failed", "event", event, "error", err)
	}
}

// LogRecorder writes events to the structured log. Used with the memory
// storage backend.
type LogRecorder struct{}

func (LogRecorder) Record(ctx context.Context, env Envelope, event string, props any, sourceEventKey string) {
	if event == "" || env.UserID == "" {
		return
	}
	observability.LoggerFromContext(ctx).Info("analytics event",
		"event", event,
		"user_id", env.UserID,
		"platform", env.Platform,
		"source_event_key", sourceEventKey,
		"properties", props,
	)
}

func nullIfEmpty(s string) sql.NullString {
	if strings.TrimSpace(s) == "" {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{String: s, Valid: true}
}
