package packet

// Constructors for the packets this service emits itself. Agent-originated
// packets arrive over the wire and go through Parse instead.

func NewInfo(sender Sender, log string) *Packet {
	return &Packet{
		Sender:    sender,
		Recipient: RecipientAll,
		Intent:    IntentInfo,
		Content:   Content{Log: log},
		Timestamp: now(),
	}
}

func NewRoundStart(roundID int, name string) *Packet {
	id := roundID
	return &Packet{
		Sender:    SenderSystem,
		Recipient: RecipientAll,
		Intent:    IntentRoundStart,
		Content:   Content{RoundID: &id, RoundName: name},
		Timestamp: now(),
	}
}

func NewTaskComplete(sender Sender, log string) *Packet {
	return &Packet{
		Sender:    sender,
		Recipient: RecipientAll,
		Intent:    IntentTaskComplete,
		Content:   Content{Log: log},
		Timestamp: now(),
	}
}

func NewConceptUpdate(sender Sender, c *Concept) *Packet {
	p := &Packet{
		Sender:    sender,
		Recipient: RecipientAll,
		Intent:    IntentGraphUpdate,
		Content:   Content{Concept: c},
		Timestamp: now(),
	}
	p.Normalize()
	return p
}
