package tasks

import (
	"math"
	"sort"
	"strings"
	"time"
)

type Tab string

const (
	TabAll       Tab = "all"
	TabPending   Tab = "pending"
	TabProgress  Tab = "progress"
	TabCompleted Tab = "completed"
)

// Uncategorized matches tasks without a category name.
const Uncategorized = "uncategorized"

// Filter mirrors the list view controls. Zero values (or "all") match
// everything.
type Filter struct {
	Search   string
	Priority Priority
	Status   Status
	Category string
	Tab      Tab
}

func (f Filter) Match(t Task) bool {
	if q := strings.ToLower(strings.TrimSpace(f.Search)); q != "" {
		if !strings.Contains(strings.ToLower(t.Title), q) &&
			!strings.Contains(strings.ToLower(t.Description), q) {
			return false
		}
	}

	if f.Priority != "" && f.Priority != "all" && t.PriorityLabel != f.Priority {
		return false
	}
	if f.Status != "" && f.Status != "all" && t.Status != f.Status {
		return false
	}

	switch f.Category {
	case "", "all":
	case Uncategorized:
		if t.CategoryName != "" {
			return false
		}
	default:
		if t.CategoryName != f.Category {
			return false
		}
	}

	switch f.Tab {
	case TabPending:
		return t.Status == StatusPending
	case TabProgress:
		return t.Status == StatusInProgress
	case TabCompleted:
		return t.Status == StatusCompleted
	}
	return true
}

func (f Filter) Apply(in []Task) []Task {
	out := make([]Task, 0, len(in))
	for _, t := range in {
		if f.Match(t) {
			out = append(out, t)
		}
	}
	return out
}

type Stats struct {
	Total          int `json:"total"`
	Pending        int `json:"pending"`
	InProgress     int `json:"in_progress"`
	Completed      int `json:"completed"`
	Overdue        int `json:"overdue"`
	CompletionRate int `json:"completion_rate"` // percent, rounded
}

func ComputeStats(in []Task, now time.Time) Stats {
	s := Stats{Total: len(in)}
	for _, t := range in {
		switch t.Status {
		case StatusPending:
			s.Pending++
		case StatusInProgress:
			s.InProgress++
		case StatusCompleted:
			s.Completed++
		}
		if t.IsOverdue(now) {
			s.Overdue++
		}
	}
	if s.Total > 0 {
		s.CompletionRate = int(math.Round(float64(s.Completed) / float64(s.Total) * 100))
	}
	return s
}

type SortKey string

const (
	SortDeadline SortKey = "deadline"
	SortPriority SortKey = "priority"
	SortCreated  SortKey = "created"
)

// SortBy returns a sorted copy. Deadline ascending, priority score
// descending, created newest first; ties keep their input order.
func SortBy(in []Task, key SortKey) []Task {
	out := append([]Task(nil), in...)

	var less func(a, b Task) bool
	switch key {
	case SortDeadline:
		less = func(a, b Task) bool { return a.Deadline.Before(b.Deadline) }
	case SortPriority:
		less = func(a, b Task) bool { return a.PriorityScore > b.PriorityScore }
	case SortCreated:
		less = func(a, b Task) bool { return a.CreatedAt.After(b.CreatedAt) }
	default:
		return out
	}

	sort.SliceStable(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}

// CategoryNames lists distinct non-empty category names in first-seen order.
func CategoryNames(in []Task) []string {
	seen := make(map[string]bool)
	var names []string
	for _, t := range in {
		if t.CategoryName == "" || seen[t.CategoryName] {
			continue
		}
		seen[t.CategoryName] = true
		names = append(names, t.CategoryName)
	}
	return names
}
