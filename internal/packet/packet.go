// Package packet defines the wire protocol spoken by the extraction agents:
// a stream of JSON packets, each carrying a sender, an intent and an
// intent-dependent content payload.
package packet

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

type Sender string

const (
	SenderSystem       Sender = "SYSTEM"
	SenderHarvester    Sender = "HARVESTER"
	SenderArchitect    Sender = "ARCHITECT"
	SenderCurator      Sender = "CURATOR"
	SenderCritic       Sender = "CRITIC"
	SenderOrchestrator Sender = "ORCHESTRATOR"
	SenderObserver     Sender = "OBSERVER"
)

type Intent string

const (
	IntentInfo         Intent = "INFO"
	IntentTaskStart    Intent = "TASK_START"
	IntentTaskComplete Intent = "TASK_COMPLETE"
	IntentCritique     Intent = "CRITIQUE"
	IntentGraphUpdate  Intent = "GRAPH_UPDATE"
	IntentRoundStart   Intent = "ROUND_START"
	IntentHypothesis   Intent = "HYPOTHESIS"
	IntentToolUse      Intent = "TOOL_USE"
	IntentExplain      Intent = "EXPLAIN"
)

// RecipientAll is assigned to packets addressed to nobody in particular.
const RecipientAll = "ALL"

// DefaultUIGroup is assigned to concepts that arrive without a grouping label.
const DefaultUIGroup = "General"

var senders = map[Sender]bool{
	SenderSystem:       true,
	SenderHarvester:    true,
	SenderArchitect:    true,
	SenderCurator:      true,
	SenderCritic:       true,
	SenderOrchestrator: true,
	SenderObserver:     true,
}

var intents = map[Intent]bool{
	IntentInfo:         true,
	IntentTaskStart:    true,
	IntentTaskComplete: true,
	IntentCritique:     true,
	IntentGraphUpdate:  true,
	IntentRoundStart:   true,
	IntentHypothesis:   true,
	IntentToolUse:      true,
	IntentExplain:      true,
}

// Content is the closed set of optional payloads a packet may carry. Which
// fields are populated depends on the packet's intent.
type Content struct {
	Log       string `json:"log,omitempty"`
	RoundID   *int   `json:"round_id,omitempty"`
	RoundName string `json:"round_name,omitempty"`

	Concept      *Concept      `json:"concept,omitempty"`
	Domain       *Domain       `json:"domain,omitempty"`
	Taxonomy     *Taxonomy     `json:"taxonomy,omitempty"`
	Prior        *Prior        `json:"prior,omitempty"`
	Relationship *Relationship `json:"relationship,omitempty"`
	Hypothesis   *Hypothesis   `json:"hypothesis,omitempty"`
	Optimization *Optimization `json:"optimization,omitempty"`
}

// HasGraphPayload reports whether any graph-bearing field is populated.
func (c *Content) HasGraphPayload() bool {
	return c.Concept != nil || c.Domain != nil || c.Taxonomy != nil ||
		c.Prior != nil || c.Relationship != nil || c.Hypothesis != nil ||
		c.Optimization != nil
}

type Packet struct {
	Sender        Sender  `json:"sender"`
	Recipient     string  `json:"recipient,omitempty"`
	Intent        Intent  `json:"intent"`
	Content       Content `json:"content"`
	Timestamp     string  `json:"timestamp,omitempty"`
	CorrelationID string  `json:"correlationId,omitempty"`
}

// Parse decodes a single frame into a validated packet. Fields outside the
// known schema are rejected rather than silently dropped.
func Parse(data []byte) (*Packet, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var p Packet
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("decode packet: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Validate checks enum membership, per-intent required content and the value
// ranges of every populated sub-object.
func (p *Packet) Validate() error {
	if !senders[p.Sender] {
		return fmt.Errorf("unknown sender %q", p.Sender)
	}
	if !intents[p.Intent] {
		return fmt.Errorf("unknown intent %q", p.Intent)
	}

	switch p.Intent {
	case IntentGraphUpdate:
		if !p.Content.HasGraphPayload() {
			return fmt.Errorf("%s packet carries no graph payload", p.Intent)
		}
	case IntentHypothesis:
		if p.Content.Hypothesis == nil {
			return fmt.Errorf("%s packet missing hypothesis", p.Intent)
		}
	case IntentRoundStart:
		if p.Content.RoundID == nil && p.Content.RoundName == "" {
			return fmt.Errorf("%s packet missing round identity", p.Intent)
		}
	}

	if c := p.Content.Concept; c != nil {
		if err := c.validate(); err != nil {
			return fmt.Errorf("concept: %w", err)
		}
	}
	if d := p.Content.Domain; d != nil {
		if err := d.validate(); err != nil {
			return fmt.Errorf("domain: %w", err)
		}
	}
	if t := p.Content.Taxonomy; t != nil {
		if err := t.validate(); err != nil {
			return fmt.Errorf("taxonomy: %w", err)
		}
	}
	if pr := p.Content.Prior; pr != nil {
		if err := pr.validate(); err != nil {
			return fmt.Errorf("prior: %w", err)
		}
	}
	if r := p.Content.Relationship; r != nil {
		if err := r.validate(); err != nil {
			return fmt.Errorf("relationship: %w", err)
		}
	}
	if h := p.Content.Hypothesis; h != nil {
		if err := h.validate(); err != nil {
			return fmt.Errorf("hypothesis: %w", err)
		}
	}
	if o := p.Content.Optimization; o != nil {
		if err := o.validate(); err != nil {
			return fmt.Errorf("optimization: %w", err)
		}
	}
	return nil
}

// Normalize fills the defaults the agents are allowed to omit: recipient,
// concept grouping label, and the default kind of each sub-object.
func (p *Packet) Normalize() {
	if p.Recipient == "" {
		p.Recipient = RecipientAll
	}
	if c := p.Content.Concept; c != nil && c.UIGroup == "" {
		c.UIGroup = DefaultUIGroup
	}
	if d := p.Content.Domain; d != nil && d.Sensitivity == "" {
		d.Sensitivity = SensitivityMedium
	}
	if t := p.Content.Taxonomy; t != nil && t.Type == "" {
		t.Type = TaxonomyIsA
	}
	if r := p.Content.Relationship; r != nil && r.Type == "" {
		r.Type = RelationshipSemantic
	}
	if h := p.Content.Hypothesis; h != nil && h.Status == "" {
		h.Status = HypothesisProposed
	}
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}
