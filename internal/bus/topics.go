package bus

import "fmt"

// Topic patterns. Packets carry extraction output per document; events carry
// coordinator state changes.

func TopicDocPackets(docID string) string {
	return fmt.Sprintf("packets.doc.%s", docID)
}

func TopicEventsAgent(name string) string {
	return fmt.Sprintf("events.agent.%s", name)
}

func TopicEventsTask(taskID string) string {
	return fmt.Sprintf("events.task.%s", taskID)
}

const (
	TopicPacketsAll   = "packets.>"
	TopicEventsAll    = "events.>"
	TopicEventsAgents = "events.agent.*"
	TopicEventsRound  = "events.round"
)
