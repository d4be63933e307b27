package tasks

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"smart-todo/internal/apiclient"
	"smart-todo/internal/observability"
)

const (
	tasksPath      = "/api/tasks/"
	categoriesPath = "/api/categories/"

	defaultNotifyTimeout = 15 * time.Second
)

// ErrNotConfirmed is returned by Delete when the confirmation step declines.
var ErrNotConfirmed = errors.New("deletion not confirmed")

// EventNotifier receives freshly created tasks for calendar sync.
type EventNotifier interface {
	NotifyTaskCreated(ctx context.Context, t Task) error
}

// Confirmer gates destructive actions. It runs before any request is sent.
type Confirmer interface {
	Confirm(ctx context.Context, prompt string) (bool, error)
}

type ConfirmFunc func(ctx context.Context, prompt string) (bool, error)

func (f ConfirmFunc) Confirm(ctx context.Context, prompt string) (bool, error) {
	return f(ctx, prompt)
}

// AlwaysConfirm is for callers that already asked (e.g. a --yes flag).
var AlwaysConfirm = ConfirmFunc(func(context.Context, string) (bool, error) { return true, nil })

type Repository struct {
	api      *apiclient.Client
	notifier EventNotifier

	notifyTimeout time.Duration
	pending       sync.WaitGroup
}

func NewRepository(api *apiclient.Client, notifier EventNotifier) *Repository {
	return &Repository{
		api:           api,
		notifier:      notifier,
		notifyTimeout: defaultNotifyTimeout,
	}
}

// Create posts a new task. On success the calendar notification is fired
// in the background; its outcome is only logged.
func (r *Repository) Create(ctx context.Context, in NewTask) (Task, error) {
	payload, err := in.normalize()
	if err != nil {
		return Task{}, err
	}

	var created Task
	if err := r.api.Post(ctx, tasksPath, payload, &created); err != nil {
		return Task{}, fmt.Errorf("create task: %w", err)
	}

	r.notifyCreated(ctx, created)
	return created, nil
}

func (r *Repository) notifyCreated(ctx context.Context, t Task) {
	if r.notifier == nil {
		return
	}

	r.pending.Add(1)
	go func() {
		defer r.pending.Done()

		nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.notifyTimeout)
		defer cancel()

		if err := r.notifier.NotifyTaskCreated(nctx, t); err != nil {
			observability.LoggerFromContext(ctx).Warn("could not sync task to calendar",
				"task_id", t.ID,
				"title", t.Title,
				"err", err,
			)
		}
	}()
}

// Wait blocks until every background calendar notification has finished.
func (r *Repository) Wait() {
	r.pending.Wait()
}

func (r *Repository) List(ctx context.Context) (apiclient.Page[Task], error) {
	var page apiclient.Page[Task]
	if err := r.api.Get(ctx, tasksPath, &page); err != nil {
		return apiclient.Page[Task]{}, fmt.Errorf("fetch tasks: %w", err)
	}
	return page, nil
}

func (r *Repository) Get(ctx context.Context, id string) (Task, error) {
	var t Task
	if err := r.api.Get(ctx, taskPath(id), &t); err != nil {
		return Task{}, fmt.Errorf("fetch task %s: %w", id, err)
	}
	return t, nil
}

func (r *Repository) Update(ctx context.Context, id string, upd TaskUpdate) (Task, error) {
	if upd.Deadline != nil {
		utc := upd.Deadline.UTC()
		upd.Deadline = &utc
	}
	if upd.Category != nil && *upd.Category == NoCategory {
		empty := ""
		upd.Category = &empty
	}

	var t Task
	if err := r.api.Patch(ctx, taskPath(id), upd, &t); err != nil {
		return Task{}, fmt.Errorf("update task %s: %w", id, err)
	}
	return t, nil
}

// UpdateStatus goes through the dedicated update_status sub-resource.
func (r *Repository) UpdateStatus(ctx context.Context, id string, status Status) (Task, error) {
	if !status.Valid() {
		return Task{}, &ValidationError{Field: "status", Message: fmt.Sprintf("unknown status %q", status)}
	}

	var t Task
	body := map[string]Status{"status": status}
	if err := r.api.Patch(ctx, taskPath(id)+"update_status/", body, &t); err != nil {
		return Task{}, fmt.Errorf("update task status: %w", err)
	}
	return t, nil
}

// Delete asks confirm first; nothing is sent unless it says yes.
func (r *Repository) Delete(ctx context.Context, id string, confirm Confirmer) error {
	if confirm == nil {
		return ErrNotConfirmed
	}
	ok, err := confirm.Confirm(ctx, fmt.Sprintf("Delete task %s?", id))
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotConfirmed
	}

	if err := r.api.Delete(ctx, taskPath(id)); err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	return nil
}

func taskPath(id string) string {
	return tasksPath + url.PathEscape(id) + "/"
}

type CategoryRepository struct {
	api *apiclient.Client
}

func NewCategoryRepository(api *apiclient.Client) *CategoryRepository {
	return &CategoryRepository{api: api}
}

func (r *CategoryRepository) List(ctx context.Context) (apiclient.Page[Category], error) {
	var page apiclient.Page[Category]
	if err := r.api.Get(ctx, categoriesPath, &page); err != nil {
		return apiclient.Page[Category]{}, fmt.Errorf("fetch categories: %w", err)
	}
	return page, nil
}
