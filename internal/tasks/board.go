package tasks

import (
	"context"
	"sync"
	"time"
)

// Board is the client's advisory copy of the task collection. The backend
// stays authoritative: local state only changes after a remote call
// succeeds, and Refresh replaces everything.
type Board struct {
	repo *Repository

	mu     sync.RWMutex
	tasks  []Task
	synced time.Time
}

func NewBoard(repo *Repository) *Board {
	return &Board{repo: repo}
}

func (b *Board) Refresh(ctx context.Context) error {
	page, err := b.repo.List(ctx)
	if err != nil {
		return err
	}

	b.mu.Lock()
	b.tasks = append([]Task(nil), page.Results...)
	b.synced = time.Now()
	b.mu.Unlock()
	return nil
}

// Tasks returns a copy of the local collection.
func (b *Board) Tasks() []Task {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]Task(nil), b.tasks...)
}

func (b *Board) SyncedAt() time.Time {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.synced
}

func (b *Board) Add(ctx context.Context, in NewTask) (Task, error) {
	created, err := b.repo.Create(ctx, in)
	if err != nil {
		return Task{}, err
	}

	b.mu.Lock()
	b.tasks = append([]Task{created}, b.tasks...)
	b.mu.Unlock()
	return created, nil
}

// SetStatus patches the local copy only once the backend has accepted the
// transition.
func (b *Board) SetStatus(ctx context.Context, id string, status Status) error {
	resp, err := b.repo.UpdateStatus(ctx, id, status)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.tasks {
		if b.tasks[i].ID != id {
			continue
		}
		b.tasks[i].Status = status
		if !resp.UpdatedAt.IsZero() {
			b.tasks[i].UpdatedAt = resp.UpdatedAt
		}
	}
	return nil
}

func (b *Board) Remove(ctx context.Context, id string, confirm Confirmer) error {
	if err := b.repo.Delete(ctx, id, confirm); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	kept := b.tasks[:0]
	for _, t := range b.tasks {
		if t.ID != id {
			kept = append(kept, t)
		}
	}
	b.tasks = kept
	return nil
}
