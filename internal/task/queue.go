package task

import (
	"sort"
	"time"
)

// Queue orders pending tasks by priority weight, descending, with ties kept
// in submission order. One task per agent may be in flight at a time. The
// queue is unsynchronized; the coordinator serializes all access.
type Queue struct {
	pending []*Task
	active  map[string]*Task
}

func NewQueue() *Queue {
	return &Queue{active: make(map[string]*Task)}
}

// Submit appends the task and re-sorts the queue. Stable sort preserves
// submission order between equal priorities.
func (q *Queue) Submit(t *Task) {
	q.pending = append(q.pending, t)
	sort.SliceStable(q.pending, func(i, j int) bool {
		return q.pending[i].Priority.Weight() > q.pending[j].Priority.Weight()
	})
}

// Dispatch scans the queue in order and hands out the first task whose agent
// is currently idle, marking it in progress. Returns nil when nothing can be
// dispatched; tasks for agents that never go idle simply stay queued.
func (q *Queue) Dispatch(idle func(agent string) bool) *Task {
	for i, t := range q.pending {
		if _, busy := q.active[t.Agent]; busy {
			continue
		}
		if !idle(t.Agent) {
			continue
		}
		q.pending = append(q.pending[:i], q.pending[i+1:]...)
		t.Status = StatusInProgress
		q.active[t.Agent] = t
		return t
	}
	return nil
}

// Active returns the in-flight task for an agent, if any.
func (q *Queue) Active(agent string) *Task {
	return q.active[agent]
}

// CompleteActive finishes the agent's in-flight task. Returns nil when the
// agent had none.
func (q *Queue) CompleteActive(agent string) *Task {
	return q.finish(agent, StatusCompleted)
}

// FailActive fails the agent's in-flight task. Returns nil when the agent
// had none.
func (q *Queue) FailActive(agent string) *Task {
	return q.finish(agent, StatusFailed)
}

func (q *Queue) finish(agent string, status Status) *Task {
	t, ok := q.active[agent]
	if !ok {
		return nil
	}
	delete(q.active, agent)
	t.Status = status
	now := time.Now()
	t.CompletedAt = &now
	return t
}

// Pending returns the queued tasks in dispatch order.
func (q *Queue) Pending() []*Task {
	out := make([]*Task, len(q.pending))
	copy(out, q.pending)
	return out
}

// InFlight returns every task currently assigned to an agent.
func (q *Queue) InFlight() []*Task {
	out := make([]*Task, 0, len(q.active))
	for _, t := range q.active {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Clear drops all pending and in-flight tasks.
func (q *Queue) Clear() {
	q.pending = nil
	q.active = make(map[string]*Task)
}

func (q *Queue) Len() int {
	return len(q.pending)
}
