package types

import "time"

const (
	PriorityHigh   = "High"
	PriorityMedium = "Medium"
	PriorityLow    = "Low"
)

const (
	SortAsc  = "asc"
	SortDesc = "desc"
)

// Task is a single to-do item owned by exactly one user.
type Task struct {
	ID          string     `json:"task_id" db:"task_id"`
	UserID      string     `json:"user_id" db:"user_id"`
	Title       string     `json:"title" db:"title"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	Deadline    time.Time  `json:"deadline" db:"deadline"`
	Priority    string     `json:"priority" db:"priority"`
	Done        bool       `json:"is_done" db:"is_done"`
	CompletedAt *time.Time `json:"completed_at" db:"completed_at"`
}

// TaskFilter narrows a task listing. Empty fields impose no constraint.
type TaskFilter struct {
	Priority  string
	SortOrder string
	Search    string
}

// ValidPriority reports whether p is one of the supported priorities.
func ValidPriority(p string) bool {
	switch p {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return true
	}
	return false
}

// ValidSortOrder reports whether s is a supported creation-time ordering.
func ValidSortOrder(s string) bool {
	return s == SortAsc || s == SortDesc
}
