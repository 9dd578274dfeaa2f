package bus

import (
	"log/slog"

	"github.com/skarlatos/foliograph/internal/agent"
	"github.com/skarlatos/foliograph/internal/coordinator"
	"github.com/skarlatos/foliograph/internal/packet"
	"github.com/skarlatos/foliograph/internal/round"
	"github.com/skarlatos/foliograph/internal/task"
)

// Event is the envelope published for every state change and packet, and is
// what websocket clients ultimately receive.
type Event struct {
	Type       string         `json:"type"`
	DocumentID string         `json:"document_id,omitempty"`
	Agent      *agent.Agent   `json:"agent,omitempty"`
	Task       *task.Task     `json:"task,omitempty"`
	Round      *round.Round   `json:"round,omitempty"`
	Packet     *packet.Packet `json:"packet,omitempty"`
}

const (
	EventAgent  = "agent_update"
	EventTask   = "task_update"
	EventRound  = "round_update"
	EventPacket = "packet"
)

// Notifier bridges coordinator state changes onto the bus. Publish failures
// are logged, never propagated: the protocol state machine must not stall on
// a slow event consumer.
type Notifier struct {
	client *Client
}

var _ coordinator.Notifier = (*Notifier)(nil)

func NewNotifier(client *Client) *Notifier {
	return &Notifier{client: client}
}

func (n *Notifier) AgentChanged(a agent.Agent) {
	n.publish(TopicEventsAgent(a.Name), Event{Type: EventAgent, Agent: &a})
}

func (n *Notifier) TaskChanged(t task.Task) {
	n.publish(TopicEventsTask(t.ID), Event{Type: EventTask, Task: &t})
}

func (n *Notifier) RoundChanged(r round.Round) {
	n.publish(TopicEventsRound, Event{Type: EventRound, Round: &r})
}

func (n *Notifier) PacketReceived(docID string, p *packet.Packet) {
	n.publish(TopicDocPackets(docID), Event{Type: EventPacket, DocumentID: docID, Packet: p})
}

func (n *Notifier) publish(topic string, ev Event) {
	if err := n.client.PublishJSON(topic, ev); err != nil {
		slog.Warn("publish event", "topic", topic, "error", err)
	}
}
