package agent

import (
	"log/slog"
	"time"
)

// Roles is the fixed crew, in display order. Agents are created once at
// startup and only ever reset, never destroyed.
var Roles = []struct {
	Name string
	Goal string
}{
	{"HARVESTER", "extract concepts from page content"},
	{"ARCHITECT", "define domains grouping related concepts"},
	{"CURATOR", "build taxonomy links between concepts"},
	{"CRITIC", "propose hypotheses and challenge extracted claims"},
	{"ORCHESTRATOR", "sequence rounds and assign work"},
	{"OBSERVER", "monitor extraction progress and graph quality"},
}

// Registry holds the crew. It is deliberately unsynchronized: all mutation
// goes through the coordinator, which serializes access.
type Registry struct {
	agents map[string]*Agent
	order  []string
}

func NewRegistry() *Registry {
	r := &Registry{agents: make(map[string]*Agent)}
	now := time.Now()
	for _, role := range Roles {
		r.agents[role.Name] = &Agent{
			Name:         role.Name,
			State:        StateIdle,
			Goal:         role.Goal,
			LastActivity: now,
		}
		r.order = append(r.order, role.Name)
	}
	return r
}

func (r *Registry) Get(name string) (*Agent, bool) {
	a, ok := r.agents[name]
	return a, ok
}

// List returns the agents in display order.
func (r *Registry) List() []*Agent {
	out := make([]*Agent, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.agents[name])
	}
	return out
}

// Transition moves an agent to a new state if the state machine allows it.
// A rejected transition leaves state and metrics untouched and is logged;
// it must not trigger any downstream notification.
func (r *Registry) Transition(name string, to State) error {
	a, ok := r.agents[name]
	if !ok {
		return &InvalidTransitionError{Agent: name, To: to}
	}
	if !CanTransition(a.State, to) {
		err := &InvalidTransitionError{Agent: name, From: a.State, To: to}
		slog.Warn("rejected agent transition", "agent", name, "from", a.State, "to", to)
		return err
	}

	a.State = to
	a.LastActivity = time.Now()
	switch to {
	case StateCompleted:
		a.Metrics.Processed++
	case StateError:
		a.Metrics.Errors++
	}
	return nil
}

// Touch stamps activity on an agent without changing state.
func (r *Registry) Touch(name string) {
	if a, ok := r.agents[name]; ok {
		a.LastActivity = time.Now()
	}
}

// Reset returns every agent to idle and clears metrics.
func (r *Registry) Reset() {
	now := time.Now()
	for _, a := range r.agents {
		a.State = StateIdle
		a.Metrics = Metrics{}
		a.LastActivity = now
	}
}

// Idle reports whether the named agent exists and is idle.
func (r *Registry) Idle(name string) bool {
	a, ok := r.agents[name]
	return ok && a.State == StateIdle
}
