// Package bus provides per-agent mailboxes and a shared key/value context
// store for inter-agent communication. A Bus is an explicit registry
// constructed per orchestration run, never a package-level singleton, so
// concurrent runs stay isolated.
package bus

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mbright/conductor/pkg/models"
)

// Bus routes messages between agents and holds their shared context.
type Bus struct {
	mu        sync.Mutex
	mailboxes map[string][]models.AgentMessage
	contexts  map[string]map[string]any

	// persistence, nil unless enabled
	persist *persistence
}

// New creates an empty message bus.
func New() *Bus {
	return &Bus{
		mailboxes: make(map[string][]models.AgentMessage),
		contexts:  make(map[string]map[string]any),
	}
}

// Register creates a mailbox for the agent if one does not exist. With
// persistence enabled, messages previously written for this agent are
// replayed into the new mailbox.
func (b *Bus) Register(agentID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.registerLocked(agentID)
}

func (b *Bus) registerLocked(agentID string) {
	if _, ok := b.mailboxes[agentID]; ok {
		return
	}
	b.mailboxes[agentID] = []models.AgentMessage{}

	if b.persist != nil {
		for _, msg := range b.persist.replay(agentID) {
			b.deliverLocked(msg)
		}
	}
}

// KnownAgents returns the IDs of all registered agents.
func (b *Bus) KnownAgents() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	ids := make([]string, 0, len(b.mailboxes))
	for id := range b.mailboxes {
		ids = append(ids, id)
	}
	return ids
}

// Publish appends a message to the recipient's mailbox and returns the
// message ID. A recipient of "*" broadcasts to every other known agent,
// never to the sender. Unknown senders and recipients are registered
// implicitly.
func (b *Bus) Publish(from, to, msgType string, content map[string]any) (string, error) {
	if from == "" {
		return "", fmt.Errorf("publish requires a sender")
	}
	if to == "" {
		return "", fmt.Errorf("publish requires a recipient")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.registerLocked(from)
	if to != models.Broadcast {
		b.registerLocked(to)
	}

	msg := models.AgentMessage{
		ID:        uuid.NewString(),
		From:      from,
		To:        to,
		Type:      msgType,
		Content:   content,
		Timestamp: time.Now().UTC(),
	}

	// Persist before delivery so a write failure never reports an error
	// for a message that already reached a mailbox.
	if b.persist != nil {
		if err := b.persist.write(msg); err != nil {
			return "", fmt.Errorf("persist message: %w", err)
		}
	}

	b.deliverLocked(msg)

	return msg.ID, nil
}

// deliverLocked appends the message to the target mailbox, or to every
// other known agent's mailbox for a broadcast.
func (b *Bus) deliverLocked(msg models.AgentMessage) {
	if msg.To != models.Broadcast {
		b.mailboxes[msg.To] = append(b.mailboxes[msg.To], msg)
		return
	}
	for id := range b.mailboxes {
		if id == msg.From {
			continue
		}
		b.mailboxes[id] = append(b.mailboxes[id], msg)
	}
}

// Subscribe drains and returns the agent's mailbox. Each message is
// consumed exactly once.
func (b *Bus) Subscribe(agentID string) []models.AgentMessage {
	b.mu.Lock()
	defer b.mu.Unlock()

	msgs := b.mailboxes[agentID]
	b.mailboxes[agentID] = []models.AgentMessage{}
	return msgs
}

// Peek returns the agent's current mailbox contents without draining.
func (b *Bus) Peek(agentID string) []models.AgentMessage {
	b.mu.Lock()
	defer b.mu.Unlock()

	msgs := b.mailboxes[agentID]
	out := make([]models.AgentMessage, len(msgs))
	copy(out, msgs)
	return out
}

// ShareContext stores the agent's shared context. Last write wins.
func (b *Bus) ShareContext(agentID string, data map[string]any) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.registerLocked(agentID)
	b.contexts[agentID] = data
}

// GetContext returns a copy of the agent's shared context, readable by
// any agent.
func (b *Bus) GetContext(agentID string) map[string]any {
	b.mu.Lock()
	defer b.mu.Unlock()

	data := b.contexts[agentID]
	if data == nil {
		return nil
	}
	out := make(map[string]any, len(data))
	for k, v := range data {
		out[k] = v
	}
	return out
}

// Close stops the persistence watcher, if any.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.persist != nil {
		return b.persist.close()
	}
	return nil
}
