// Package agent implements the dataflow engine's computational units: the
// shared Agent contract (C4) and the concrete arithmetic/bitwise/
// comparison operator agents (C5).
package agent

import "github.com/zazi341/dataflow-graph-server/internal/message"

// Agent is the full capability set every computational unit exposes:
// a display name (not required unique), reset-to-initial-state, the
// message callback, and close. No ordering is guaranteed between
// concurrent OnMessage calls unless the agent is wrapped by a parallel
// decorator.
type Agent interface {
	Name() string
	Reset()
	OnMessage(topicName string, msg message.Message)
	Close() error
}
