// Package coordinator is the single writer for all protocol state: agents,
// tasks and rounds. Every mutation, whether driven by a wire packet or an
// API call, is serialized through one mutex; the registry, queue and round
// manager underneath carry no locking of their own.
package coordinator

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/skarlatos/foliograph/internal/agent"
	"github.com/skarlatos/foliograph/internal/packet"
	"github.com/skarlatos/foliograph/internal/round"
	"github.com/skarlatos/foliograph/internal/stream"
	"github.com/skarlatos/foliograph/internal/task"
)

// Notifier receives state-change events for downstream fan-out (the bus, the
// websocket hub). Calls are made under the coordinator lock with copied
// values; implementations must not call back into the coordinator.
type Notifier interface {
	AgentChanged(a agent.Agent)
	TaskChanged(t task.Task)
	RoundChanged(r round.Round)
	PacketReceived(docID string, p *packet.Packet)
}

// DefaultIdleDelay is how long completed and errored agents linger before
// auto-returning to idle.
const DefaultIdleDelay = 3 * time.Second

type Coordinator struct {
	mu     sync.Mutex
	agents *agent.Registry
	tasks  *task.Queue
	rounds *round.Manager
	feed   *stream.Feed

	events    Notifier
	idleDelay time.Duration
	// idleTimers holds the pending auto-idle timer per agent. A timer only
	// acts if it is still the one registered here when it fires, so resets
	// and newer transitions invalidate it cleanly.
	idleTimers map[string]*time.Timer
}

func New(events Notifier, idleDelay time.Duration) *Coordinator {
	if idleDelay <= 0 {
		idleDelay = DefaultIdleDelay
	}
	return &Coordinator{
		agents:     agent.NewRegistry(),
		tasks:      task.NewQueue(),
		rounds:     round.NewManager(),
		feed:       stream.NewFeed(),
		events:     events,
		idleDelay:  idleDelay,
		idleTimers: make(map[string]*time.Timer),
	}
}

// Subscribe registers a packet consumer. Delivery is synchronous and in
// arrival order; the returned handle stops delivery immediately when
// cancelled.
func (c *Coordinator) Subscribe(fn func(*packet.Packet)) *stream.Subscription {
	return c.feed.Subscribe(fn)
}

// HandlePacket applies one parsed packet to protocol state and forwards it
// to subscribers. Invalid protocol moves (a round start while one is active,
// a disallowed transition) are logged and dropped without mutating state.
func (c *Coordinator) HandlePacket(docID string, p *packet.Packet) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.feed.Publish(p)
	if c.events != nil {
		c.events.PacketReceived(docID, p)
	}

	sender := string(p.Sender)
	_, crew := c.agents.Get(sender)

	switch p.Intent {
	case packet.IntentRoundStart:
		id := 0
		if p.Content.RoundID != nil {
			id = *p.Content.RoundID
		}
		name := p.Content.RoundName
		if name == "" {
			name = p.Content.Log
		}
		if _, err := c.startRoundLocked(id, name); err != nil {
			slog.Warn("round start rejected", "doc", docID, "sender", sender, "error", err)
		}
		if crew {
			c.markActiveLocked(sender)
		}

	case packet.IntentTaskComplete:
		if crew {
			if t := c.tasks.CompleteActive(sender); t != nil {
				c.notifyTaskLocked(t)
			}
			c.transitionLocked(sender, agent.StateCompleted)
			c.dispatchLocked()
		}

	default:
		if crew {
			c.markActiveLocked(sender)
		}
	}
}

// Announce broadcasts a locally produced packet to subscribers and the
// notifier without applying protocol effects. Producers that already went
// through the typed API (StartRound, task methods) use it so their packets
// are not replayed against the state they came from.
func (c *Coordinator) Announce(docID string, p *packet.Packet) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.feed.Publish(p)
	if c.events != nil {
		c.events.PacketReceived(docID, p)
	}
}

// markActiveLocked moves an idle, waiting or initializing agent to active;
// an already-active agent just gets its activity stamped. Agents lingering
// in completed/error are left for their auto-idle timer.
func (c *Coordinator) markActiveLocked(name string) {
	a, ok := c.agents.Get(name)
	if !ok {
		return
	}
	switch a.State {
	case agent.StateActive:
		c.agents.Touch(name)
	case agent.StateIdle, agent.StateWaiting, agent.StateInitializing:
		c.transitionLocked(name, agent.StateActive)
	}
}

// TransitionAgent applies one explicit transition. Disallowed moves return
// the registry's rejection untouched: state stays, a log line is written, no
// notification fires.
func (c *Coordinator) TransitionAgent(name string, to agent.State) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transitionLocked(name, to)
}

func (c *Coordinator) transitionLocked(name string, to agent.State) error {
	if err := c.agents.Transition(name, to); err != nil {
		return err
	}
	if a, ok := c.agents.Get(name); ok && c.events != nil {
		c.events.AgentChanged(*a)
	}
	if to == agent.StateCompleted || to == agent.StateError {
		c.scheduleAutoIdleLocked(name)
	} else {
		c.cancelAutoIdleLocked(name)
	}
	return nil
}

func (c *Coordinator) scheduleAutoIdleLocked(name string) {
	c.cancelAutoIdleLocked(name)
	var timer *time.Timer
	timer = time.AfterFunc(c.idleDelay, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.idleTimers[name] != timer {
			return // cancelled or superseded while firing
		}
		delete(c.idleTimers, name)
		if err := c.transitionLocked(name, agent.StateIdle); err == nil {
			c.dispatchLocked()
		}
	})
	c.idleTimers[name] = timer
}

func (c *Coordinator) cancelAutoIdleLocked(name string) {
	if t, ok := c.idleTimers[name]; ok {
		t.Stop()
		delete(c.idleTimers, name)
	}
}

// SubmitTask queues work for an agent and immediately tries to dispatch.
func (c *Coordinator) SubmitTask(agentName, typ string, priority task.Priority, payload json.RawMessage) (*task.Task, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.agents.Get(agentName); !ok {
		return nil, fmt.Errorf("unknown agent %q", agentName)
	}
	t := task.New(agentName, typ, priority, payload)
	c.tasks.Submit(t)
	c.rounds.AttachTask(t.ID)
	c.notifyTaskLocked(t)
	c.dispatchLocked()
	return t, nil
}

// dispatchLocked hands queued tasks to idle agents until nothing more can
// move. Each dispatched task activates its agent, which keeps it from
// receiving a second one.
func (c *Coordinator) dispatchLocked() {
	for {
		t := c.tasks.Dispatch(c.agents.Idle)
		if t == nil {
			return
		}
		c.transitionLocked(t.Agent, agent.StateActive)
		c.notifyTaskLocked(t)
		slog.Debug("dispatched task", "task", t.ID, "agent", t.Agent, "priority", t.Priority)
	}
}

// CompleteTask finishes the agent's in-flight task and frees the agent; a
// dispatch pass runs immediately so queued work is picked up without delay.
func (c *Coordinator) CompleteTask(agentName string) *task.Task {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := c.tasks.CompleteActive(agentName)
	if t != nil {
		c.notifyTaskLocked(t)
		c.transitionLocked(agentName, agent.StateCompleted)
	}
	c.dispatchLocked()
	return t
}

// FailTask fails the agent's in-flight task and marks the agent errored.
func (c *Coordinator) FailTask(agentName string) *task.Task {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := c.tasks.FailActive(agentName)
	if t != nil {
		c.notifyTaskLocked(t)
		c.transitionLocked(agentName, agent.StateError)
	}
	c.dispatchLocked()
	return t
}

func (c *Coordinator) notifyTaskLocked(t *task.Task) {
	if c.events != nil {
		c.events.TaskChanged(*t)
	}
}

// StartRound opens a round, rejecting if one is active.
func (c *Coordinator) StartRound(id int, name string) (*round.Round, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.startRoundLocked(id, name)
}

func (c *Coordinator) startRoundLocked(id int, name string) (*round.Round, error) {
	r, err := c.rounds.Start(id, name)
	if err != nil {
		return nil, err
	}
	slog.Info("round started", "round", r.ID, "name", r.Name)
	c.notifyRoundLocked(r)
	return r, nil
}

// CompleteRound closes the active round and folds its duration into the
// rolling average.
func (c *Coordinator) CompleteRound() (*round.Round, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	r, err := c.rounds.Complete()
	if err != nil {
		return nil, err
	}
	slog.Info("round completed", "round", r.ID, "duration_ms", r.DurationMs)
	c.notifyRoundLocked(r)
	return r, nil
}

// FailRound closes the active round as failed.
func (c *Coordinator) FailRound() (*round.Round, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	r, err := c.rounds.Fail()
	if err != nil {
		return nil, err
	}
	slog.Warn("round failed", "round", r.ID)
	c.notifyRoundLocked(r)
	return r, nil
}

func (c *Coordinator) notifyRoundLocked(r *round.Round) {
	if c.events != nil {
		c.events.RoundChanged(*r)
	}
}

// Reset cancels every pending auto-idle timer, clears the queue and round
// history and returns all agents to idle. Feed subscribers survive a reset;
// they belong to infrastructure, not to any one operation.
func (c *Coordinator) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for name, t := range c.idleTimers {
		t.Stop()
		delete(c.idleTimers, name)
	}
	c.tasks.Clear()
	c.rounds.Reset()
	c.agents.Reset()
	if c.events != nil {
		for _, a := range c.agents.List() {
			c.events.AgentChanged(*a)
		}
	}
	slog.Info("coordinator reset")
}
