package models

import "time"

// Broadcast is the recipient value that delivers a message to every known
// agent except the sender.
const Broadcast = "*"

// AgentMessage is one message between agents on the bus.
type AgentMessage struct {
	// ID is the unique message identifier.
	ID string `json:"id"`
	// From is the sending agent.
	From string `json:"from"`
	// To is the receiving agent, or "*" for broadcast.
	To string `json:"to"`
	// Type categorizes the message (e.g. "notification", "request").
	Type string `json:"type"`
	// Content is the message payload.
	Content map[string]any `json:"content,omitempty"`
	// Timestamp is when the message was published.
	Timestamp time.Time `json:"timestamp"`
}
