// Package round groups tasks and packets into numbered extraction rounds.
// At most one round is active at any time.
package round

import (
	"errors"
	"time"
)

// ErrRoundActive is returned when a round start arrives while another round
// is still running. Callers must complete or fail the active round first.
var ErrRoundActive = errors.New("a round is already active")

// ErrNoActiveRound is returned when completing or failing with nothing open.
var ErrNoActiveRound = errors.New("no active round")

type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

type Round struct {
	ID          int        `json:"id"`
	Name        string     `json:"name"`
	TaskIDs     []string   `json:"task_ids,omitempty"`
	Status      Status     `json:"status"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	DurationMs  int64      `json:"duration_ms,omitempty"`
}

// Manager tracks the active round, finished history and a rolling average of
// completed round durations. Unsynchronized; owned by the coordinator.
type Manager struct {
	active    *Round
	history   []*Round
	nextID    int
	completed int
	avg       time.Duration
}

func NewManager() *Manager {
	return &Manager{nextID: 1}
}

// Start opens a new round. The id is taken from the wire when positive,
// otherwise assigned. Starting while a round is active is a protocol
// violation and is rejected.
func (m *Manager) Start(id int, name string) (*Round, error) {
	if m.active != nil {
		return nil, ErrRoundActive
	}
	if id <= 0 {
		id = m.nextID
	}
	if id >= m.nextID {
		m.nextID = id + 1
	}
	m.active = &Round{
		ID:        id,
		Name:      name,
		Status:    StatusActive,
		StartedAt: time.Now(),
	}
	return m.active, nil
}

func (m *Manager) Active() *Round {
	return m.active
}

// AttachTask records a task against the active round, if one is open.
func (m *Manager) AttachTask(taskID string) {
	if m.active != nil {
		m.active.TaskIDs = append(m.active.TaskIDs, taskID)
	}
}

// Complete closes the active round, stamps its duration and folds it into
// the rolling average.
func (m *Manager) Complete() (*Round, error) {
	r, err := m.close(StatusCompleted)
	if err != nil {
		return nil, err
	}
	m.completed++
	d := r.CompletedAt.Sub(r.StartedAt)
	m.avg += (d - m.avg) / time.Duration(m.completed)
	return r, nil
}

// Fail closes the active round without touching the average.
func (m *Manager) Fail() (*Round, error) {
	return m.close(StatusFailed)
}

func (m *Manager) close(status Status) (*Round, error) {
	if m.active == nil {
		return nil, ErrNoActiveRound
	}
	r := m.active
	m.active = nil
	now := time.Now()
	r.Status = status
	r.CompletedAt = &now
	r.DurationMs = now.Sub(r.StartedAt).Milliseconds()
	m.history = append(m.history, r)
	return r, nil
}

// AvgDuration is the rolling average over completed rounds.
func (m *Manager) AvgDuration() time.Duration {
	return m.avg
}

func (m *Manager) CompletedCount() int {
	return m.completed
}

// History returns finished rounds, oldest first.
func (m *Manager) History() []*Round {
	out := make([]*Round, len(m.history))
	copy(out, m.history)
	return out
}

// Reset drops the active round and all history.
func (m *Manager) Reset() {
	m.active = nil
	m.history = nil
	m.nextID = 1
	m.completed = 0
	m.avg = 0
}
