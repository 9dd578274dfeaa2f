// Package task holds the work queue: priority-ordered items dispatched to
// whichever agent they name, as soon as that agent is idle.
package task

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

var weights = map[Priority]int{
	PriorityLow:      1,
	PriorityMedium:   2,
	PriorityHigh:     3,
	PriorityCritical: 4,
}

// Weight maps a priority to its sort weight. Unknown priorities sink below
// low rather than erroring.
func (p Priority) Weight() int {
	return weights[p]
}

func (p Priority) Valid() bool {
	_, ok := weights[p]
	return ok
}

type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

type Task struct {
	ID          string          `json:"id"`
	Agent       string          `json:"agent"`
	Type        string          `json:"type"`
	Priority    Priority        `json:"priority"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	Status      Status          `json:"status"`
	CreatedAt   time.Time       `json:"created_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

// New builds a pending task for the named agent. Priority defaults to medium.
func New(agent, typ string, priority Priority, payload json.RawMessage) *Task {
	if !priority.Valid() {
		priority = PriorityMedium
	}
	return &Task{
		ID:        uuid.NewString(),
		Agent:     agent,
		Type:      typ,
		Priority:  priority,
		Payload:   payload,
		Status:    StatusPending,
		CreatedAt: time.Now(),
	}
}
