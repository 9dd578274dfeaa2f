// Package agent models the extraction crew: one named agent per protocol
// role, each with a validated state machine and activity metrics.
package agent

import (
	"fmt"
	"time"
)

type State string

const (
	StateIdle         State = "idle"
	StateInitializing State = "initializing"
	StateActive       State = "active"
	StateWaiting      State = "waiting"
	StateCompleted    State = "completed"
	StateError        State = "error"
)

// transitions is the full set of allowed state changes. Anything absent is
// rejected without touching the agent.
var transitions = map[State]map[State]bool{
	StateIdle:         {StateInitializing: true, StateActive: true, StateError: true},
	StateInitializing: {StateActive: true, StateError: true},
	StateActive:       {StateWaiting: true, StateCompleted: true, StateError: true, StateIdle: true},
	StateWaiting:      {StateActive: true, StateIdle: true, StateError: true},
	StateCompleted:    {StateIdle: true},
	StateError:        {StateIdle: true},
}

func CanTransition(from, to State) bool {
	return transitions[from][to]
}

type InvalidTransitionError struct {
	Agent string
	From  State
	To    State
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("agent %s: transition %s -> %s not allowed", e.Agent, e.From, e.To)
}

type Metrics struct {
	Processed int `json:"processed"`
	Errors    int `json:"errors"`
}

type Agent struct {
	Name         string    `json:"name"`
	State        State     `json:"state"`
	Goal         string    `json:"goal"`
	LastActivity time.Time `json:"last_activity"`
	Metrics      Metrics   `json:"metrics"`
}
