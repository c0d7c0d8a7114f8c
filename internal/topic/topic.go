// Package topic implements the publish/subscribe fabric: named channels
// that retain their last message and fan out publications to subscriber
// agents.
package topic

import (
	"sync"

	"github.com/zazi341/dataflow-graph-server/internal/message"
)

// Agent is the minimal shape a topic needs from a subscriber or publisher:
// enough to invoke it and to name it in a graph. The fuller agent contract
// (reset/close) lives in package agent; any agent.Agent value already
// satisfies this interface.
type Agent interface {
	Name() string
	OnMessage(topicName string, msg message.Message)
}

// Topic is a named channel. Its identity is its Name, unique within a
// Registry. Subscriber and publisher sets are deduplicated by identity
// (Go interface equality, i.e. the underlying pointer).
type Topic struct {
	name string

	mu          sync.RWMutex
	subscribers map[Agent]struct{}
	publishers  map[Agent]struct{}
	lastMessage *message.Message
}

func newTopic(name string) *Topic {
	return &Topic{
		name:        name,
		subscribers: make(map[Agent]struct{}),
		publishers:  make(map[Agent]struct{}),
	}
}

// Name returns the topic's identity.
func (t *Topic) Name() string { return t.name }

// Subscribe adds a if absent. Idempotent.
func (t *Topic) Subscribe(a Agent) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.subscribers[a] = struct{}{}
}

// Unsubscribe removes a if present.
func (t *Topic) Unsubscribe(a Agent) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.subscribers, a)
}

// AddPublisher adds a if absent. Idempotent.
func (t *Topic) AddPublisher(a Agent) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.publishers[a] = struct{}{}
}

// RemovePublisher removes a if present.
func (t *Topic) RemovePublisher(a Agent) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.publishers, a)
}

// Subscribers returns a snapshot of the current subscriber set.
func (t *Topic) Subscribers() []Agent {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Agent, 0, len(t.subscribers))
	for a := range t.subscribers {
		out = append(out, a)
	}
	return out
}

// Publishers returns a snapshot of the current publisher set.
func (t *Topic) Publishers() []Agent {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Agent, 0, len(t.publishers))
	for a := range t.publishers {
		out = append(out, a)
	}
	return out
}

// Publish atomically sets LastMessage, then invokes OnMessage on a
// snapshot of the current subscribers. Subscribe/Unsubscribe calls racing
// with Publish see their effect on the *next* Publish, never the one in
// flight, because the snapshot is taken once under the topic's lock.
func (t *Topic) Publish(msg message.Message) {
	t.mu.Lock()
	t.lastMessage = &msg
	subscribers := make([]Agent, 0, len(t.subscribers))
	for a := range t.subscribers {
		subscribers = append(subscribers, a)
	}
	t.mu.Unlock()

	for _, a := range subscribers {
		a.OnMessage(t.name, msg)
	}
}

// LastMessage returns the most recently published message, or nil if none
// has ever been published.
func (t *Topic) LastMessage() *message.Message {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.lastMessage
}

// LastValueText returns the text view of LastMessage, or "N/A" when empty.
func (t *Topic) LastValueText() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.lastMessage == nil {
		return "N/A"
	}
	return t.lastMessage.Text()
}

// Role classifies the topic for the publish-guard UI: input-only,
// output-only, intermediate, or inactive, based solely on whether it
// currently has subscribers and/or publishers.
type Role string

const (
	RoleInputOnly    Role = "input-only"
	RoleOutputOnly   Role = "output-only"
	RoleIntermediate Role = "intermediate"
	RoleInactive     Role = "inactive"
)

// Role computes the current classification.
func (t *Topic) Role() Role {
	t.mu.RLock()
	defer t.mu.RUnlock()
	hasSubs := len(t.subscribers) > 0
	hasPubs := len(t.publishers) > 0
	switch {
	case hasPubs && hasSubs:
		return RoleIntermediate
	case hasPubs:
		return RoleOutputOnly
	case hasSubs:
		return RoleInputOnly
	default:
		return RoleInactive
	}
}

// ClearAll drops subscribers, publishers, and the last message. Used both
// by Topic.clear_all() callers and by Registry.Clear() on each topic it
// removes.
func (t *Topic) ClearAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.subscribers = make(map[Agent]struct{})
	t.publishers = make(map[Agent]struct{})
	t.lastMessage = nil
}
