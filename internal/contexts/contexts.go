// Package contexts manages free-text context entries (notes, emails,
// messages) that the backend can mine for new tasks.
package contexts

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"smart-todo/internal/apiclient"
)

const (
	entriesPath         = "/api/context-entries/"
	processContextsPath = "/api/process-contexts/"

	DefaultSourceType = "Note"
)

type SuggestedTask struct {
	Title    string `json:"title"`
	Priority string `json:"priority"`
	Deadline string `json:"deadline,omitempty"`
}

// Insights is passed through as-is; only its outer shape is typed.
type Insights struct {
	Summary        string          `json:"summary,omitempty"`
	KeyEntities    []string        `json:"key_entities"`
	SuggestedTasks []SuggestedTask `json:"suggested_tasks"`
}

type Entry struct {
	ID         string    `json:"id"`
	Content    string    `json:"content"`
	SourceType string    `json:"source_type"`
	Insights   *Insights `json:"insights"`
	CreatedAt  time.Time `json:"created_at"`
}

type NewEntry struct {
	Content    string    `json:"content"`
	SourceType string    `json:"source_type"`
	Insights   *Insights `json:"insights,omitempty"`
}

type EntryUpdate struct {
	Content    *string `json:"content,omitempty"`
	SourceType *string `json:"source_type,omitempty"`
}

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// UserIDSource is the ambient "who is signed in" slot. It must fail with
// apiclient.ErrUnauthenticated once the session is gone.
type UserIDSource interface {
	UserID() (string, error)
}

// TriggerResult only means the backend accepted the job. Tasks show up
// later; there is no completion signal.
type TriggerResult struct {
	Accepted bool           `json:"accepted"`
	Message  string         `json:"message"`
	Backend  map[string]any `json:"backend,omitempty"`
}

const acceptedMessage = "Context processing started. New tasks will appear shortly."

type Repository struct {
	api *apiclient.Client
}

func NewRepository(api *apiclient.Client) *Repository {
	return &Repository{api: api}
}

func (r *Repository) Create(ctx context.Context, in NewEntry) (Entry, error) {
	in.Content = strings.TrimSpace(in.Content)
	if in.Content == "" {
		return Entry{}, &ValidationError{Field: "content", Message: "content is required"}
	}
	in.SourceType = strings.TrimSpace(in.SourceType)
	if in.SourceType == "" {
		in.SourceType = DefaultSourceType
	}

	var created Entry
	if err := r.api.Post(ctx, entriesPath, in, &created); err != nil {
		return Entry{}, fmt.Errorf("create context entry: %w", err)
	}
	return created, nil
}

// List returns entries in backend order (newest first).
func (r *Repository) List(ctx context.Context) (apiclient.Page[Entry], error) {
	var page apiclient.Page[Entry]
	if err := r.api.Get(ctx, entriesPath, &page); err != nil {
		return apiclient.Page[Entry]{}, fmt.Errorf("fetch context entries: %w", err)
	}
	return page, nil
}

func (r *Repository) Update(ctx context.Context, id string, upd EntryUpdate) (Entry, error) {
	if upd.Content != nil && strings.TrimSpace(*upd.Content) == "" {
		return Entry{}, &ValidationError{Field: "content", Message: "content cannot be empty"}
	}

	var e Entry
	if err := r.api.Patch(ctx, entryPath(id), upd, &e); err != nil {
		return Entry{}, fmt.Errorf("update context entry: %w", err)
	}
	return e, nil
}

func (r *Repository) Delete(ctx context.Context, id string) error {
	if err := r.api.Delete(ctx, entryPath(id)); err != nil {
		return fmt.Errorf("delete context entry: %w", err)
	}
	return nil
}

// TriggerTaskCreation asks the backend to turn accumulated context into
// tasks. Fire-and-forget: success means accepted, not done.
func (r *Repository) TriggerTaskCreation(ctx context.Context, users UserIDSource) (TriggerResult, error) {
	if users == nil {
		return TriggerResult{}, apiclient.ErrUnauthenticated
	}
	userID, err := users.UserID()
	if err != nil {
		return TriggerResult{}, err
	}
	if userID == "" {
		return TriggerResult{}, apiclient.ErrUnauthenticated
	}

	var backend map[string]any
	if err := r.api.Post(ctx, processContextsPath+url.PathEscape(userID)+"/", nil, &backend); err != nil {
		return TriggerResult{}, fmt.Errorf("process contexts: %w", err)
	}

	return TriggerResult{Accepted: true, Message: acceptedMessage, Backend: backend}, nil
}

func entryPath(id string) string {
	return entriesPath + url.PathEscape(id) + "/"
}
