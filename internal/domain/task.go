package domain

import (
	"strings"
	"time"
)

type TaskStatus string

const (
	TaskStatusTodo       TaskStatus = "TODO"
	TaskStatusInProgress TaskStatus = "IN_PROGRESS"
	TaskStatusDone       TaskStatus = "DONE"
)

// Valid reports whether s is one of the board's columns.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusTodo, TaskStatusInProgress, TaskStatusDone:
		return true
	default:
		return false
	}
}

// Label returns the column title shown for s. Unknown statuses render as-is.
func (s TaskStatus) Label() string {
	switch s {
	case TaskStatusTodo:
		return "To Do"
	case TaskStatusInProgress:
		return "In Progress"
	case TaskStatusDone:
		return "Done"
	default:
		return string(s)
	}
}

type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityMedium Priority = "MEDIUM"
	PriorityHigh   Priority = "HIGH"
	PriorityUrgent Priority = "URGENT"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	default:
		return false
	}
}

type Task struct {
	ID          ID         `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Status      TaskStatus `json:"status,omitempty"`
	Priority    Priority   `json:"priority,omitempty"`
	AssignedTo  string     `json:"assignedTo,omitempty"`
	CreatedBy   string     `json:"createdBy,omitempty"`
	BoardID     ID         `json:"boardId,omitempty"`
	DueDate     *Timestamp `json:"dueDate,omitempty"`
}

// AssignedToUser reports whether the task is assigned to username,
// ignoring case.
func (t *Task) AssignedToUser(username string) bool {
	return SameUser(t.AssignedTo, username)
}

// IsOverdue reports whether the task has a due date before now and is not done.
func (t *Task) IsOverdue(now time.Time) bool {
	if t.DueDate == nil || t.DueDate.IsZero() || t.Status == TaskStatusDone {
		return false
	}
	return t.DueDate.Before(now)
}

// IsDueSoon reports whether the task falls due within window from now,
// is not done, and is not already overdue.
func (t *Task) IsDueSoon(now time.Time, window time.Duration) bool {
	if t.DueDate == nil || t.DueDate.IsZero() || t.Status == TaskStatusDone {
		return false
	}
	if t.DueDate.Before(now) {
		return false
	}
	return t.DueDate.Sub(now) < window
}

// SameUser compares two usernames case-insensitively. Blank names never match.
func SameUser(a, b string) bool {
	a = strings.TrimSpace(a)
	if a == "" {
		return false
	}
	return strings.EqualFold(a, strings.TrimSpace(b))
}
