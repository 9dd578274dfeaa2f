package coordinator

import (
	"github.com/skarlatos/foliograph/internal/agent"
	"github.com/skarlatos/foliograph/internal/round"
	"github.com/skarlatos/foliograph/internal/task"
)

// Read-side accessors. Everything returned is copied under the lock so
// callers never alias live protocol state.

func (c *Coordinator) Agents() []agent.Agent {
	c.mu.Lock()
	defer c.mu.Unlock()

	list := c.agents.List()
	out := make([]agent.Agent, 0, len(list))
	for _, a := range list {
		out = append(out, *a)
	}
	return out
}

func (c *Coordinator) Agent(name string) (agent.Agent, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	a, ok := c.agents.Get(name)
	if !ok {
		return agent.Agent{}, false
	}
	return *a, true
}

func (c *Coordinator) PendingTasks() []task.Task {
	c.mu.Lock()
	defer c.mu.Unlock()
	return copyTasks(c.tasks.Pending())
}

func (c *Coordinator) InFlightTasks() []task.Task {
	c.mu.Lock()
	defer c.mu.Unlock()
	return copyTasks(c.tasks.InFlight())
}

func copyTasks(in []*task.Task) []task.Task {
	out := make([]task.Task, 0, len(in))
	for _, t := range in {
		out = append(out, *t)
	}
	return out
}

// ActiveRound returns a copy of the active round, or nil.
func (c *Coordinator) ActiveRound() *round.Round {
	c.mu.Lock()
	defer c.mu.Unlock()

	r := c.rounds.Active()
	if r == nil {
		return nil
	}
	return copyRound(r)
}

func (c *Coordinator) RoundHistory() []round.Round {
	c.mu.Lock()
	defer c.mu.Unlock()

	hist := c.rounds.History()
	out := make([]round.Round, 0, len(hist))
	for _, r := range hist {
		out = append(out, *copyRound(r))
	}
	return out
}

func copyRound(r *round.Round) *round.Round {
	cp := *r
	cp.TaskIDs = append([]string(nil), r.TaskIDs...)
	return &cp
}

type Stats struct {
	Agents          []agent.Agent `json:"agents"`
	PendingTasks    int           `json:"pending_tasks"`
	InFlightTasks   int           `json:"in_flight_tasks"`
	ActiveRoundID   *int          `json:"active_round_id,omitempty"`
	CompletedRounds int           `json:"completed_rounds"`
	AvgRoundMs      int64         `json:"avg_round_ms"`
}

func (c *Coordinator) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Stats{
		PendingTasks:    c.tasks.Len(),
		InFlightTasks:   len(c.tasks.InFlight()),
		CompletedRounds: c.rounds.CompletedCount(),
		AvgRoundMs:      c.rounds.AvgDuration().Milliseconds(),
	}
	for _, a := range c.agents.List() {
		s.Agents = append(s.Agents, *a)
	}
	if r := c.rounds.Active(); r != nil {
		id := r.ID
		s.ActiveRoundID = &id
	}
	return s
}
