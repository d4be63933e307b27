package tasks

import (
	"fmt"
	"strings"
	"time"
)

type Status string

const (
	StatusPending    Status = "Pending"
	StatusInProgress Status = "In Progress"
	StatusCompleted  Status = "Completed"
)

type Priority string

const (
	PriorityLow    Priority = "Low"
	PriorityMedium Priority = "Medium"
	PriorityHigh   Priority = "High"
)

// NoCategory is the sentinel the UI uses for "no category selected".
const NoCategory = "none"

// Task is the backend's task record. priority_score, created_at and
// updated_at are computed by the backend and never sent back.
type Task struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	Description   string    `json:"description"`
	Category      string    `json:"category,omitempty"`
	CategoryName  string    `json:"category_name,omitempty"`
	PriorityScore float64   `json:"priority_score"`
	PriorityLabel Priority  `json:"priority_label"`
	Deadline      time.Time `json:"deadline"`
	Status        Status    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// IsOverdue is derived, never stored: past deadline and not completed.
func (t Task) IsOverdue(now time.Time) bool {
	return t.Deadline.Before(now) && t.Status != StatusCompleted
}

type NewTask struct {
	Title         string    `json:"title"`
	Description   string    `json:"description"`
	Category      string    `json:"category,omitempty"`
	PriorityLabel Priority  `json:"priority_label,omitempty"`
	Deadline      time.Time `json:"deadline"`
	Status        Status    `json:"status,omitempty"`
}

type TaskUpdate struct {
	Title         *string    `json:"title,omitempty"`
	Description   *string    `json:"description,omitempty"`
	Category      *string    `json:"category,omitempty"`
	PriorityLabel *Priority  `json:"priority_label,omitempty"`
	Deadline      *time.Time `json:"deadline,omitempty"`
	Status        *Status    `json:"status,omitempty"`
}

type Category struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ValidationError is raised before any request is sent.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// normalize validates t and returns the payload actually sent: trimmed
// text, UTC deadline, sentinel category dropped.
func (t NewTask) normalize() (NewTask, error) {
	t.Title = strings.TrimSpace(t.Title)
	t.Description = strings.TrimSpace(t.Description)

	if t.Title == "" {
		return t, &ValidationError{Field: "title", Message: "title is required"}
	}
	if t.Description == "" {
		return t, &ValidationError{Field: "description", Message: "description is required"}
	}
	if t.Deadline.IsZero() {
		return t, &ValidationError{Field: "deadline", Message: "deadline is required"}
	}
	if t.PriorityLabel != "" && !t.PriorityLabel.Valid() {
		return t, &ValidationError{Field: "priority_label", Message: fmt.Sprintf("unknown priority %q", t.PriorityLabel)}
	}
	if t.Status != "" && !t.Status.Valid() {
		return t, &ValidationError{Field: "status", Message: fmt.Sprintf("unknown status %q", t.Status)}
	}

	t.Category = strings.TrimSpace(t.Category)
	if strings.EqualFold(t.Category, NoCategory) {
		t.Category = ""
	}
	t.Deadline = t.Deadline.UTC()
	return t, nil
}

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted:
		return true
	}
	return false
}

// ParsePriority accepts any casing of Low/Medium/High.
func ParsePriority(s string) (Priority, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return PriorityLow, nil
	case "medium":
		return PriorityMedium, nil
	case "high":
		return PriorityHigh, nil
	}
	return "", fmt.Errorf("unknown priority %q", s)
}

// ParseStatus accepts "In Progress" as well as in_progress/inprogress/progress.
func ParseStatus(s string) (Status, error) {
	norm := strings.NewReplacer(" ", "", "_", "", "-", "").Replace(strings.ToLower(strings.TrimSpace(s)))
	switch norm {
	case "pending":
		return StatusPending, nil
	case "inprogress", "progress":
		return StatusInProgress, nil
	case "completed", "done":
		return StatusCompleted, nil
	}
	return "", fmt.Errorf("unknown status %q", s)
}
