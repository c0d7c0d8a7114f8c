package topic

import (
	"sync"
	"time"

	"github.com/zazi341/dataflow-graph-server/internal/metrics"
)

// Registry is a process-wide, ordered-insertion name→Topic mapping.
// Get-or-create is atomic: concurrent Get calls for the same name always
// yield the same *Topic instance.
type Registry struct {
	mu            sync.RWMutex
	topics        map[string]*Topic
	order         []string
	lastClearTime time.Time
	metrics       *metrics.Metrics
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{topics: make(map[string]*Topic)}
}

// SetMetrics attaches m so Get increments TopicsCreated on every new
// topic from this point on. Passing nil disables recording again.
func (r *Registry) SetMetrics(m *metrics.Metrics) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.metrics = m
}

// Default is the well-known process-wide instance for call sites that
// must remain implicit (matching spec.md §9's note that the source's
// singleton is replaced with an explicit value passed to the loader and
// agent factories, while keeping one default for convenience).
var Default = NewRegistry()

// Get returns the existing topic of that name, creating it on first
// lookup. Creation is idempotent under concurrent callers.
func (r *Registry) Get(name string) *Topic {
	r.mu.RLock()
	t, ok := r.topics[name]
	r.mu.RUnlock()
	if ok {
		return t
	}

	r.mu.Lock()
	if t, ok := r.topics[name]; ok {
		r.mu.Unlock()
		return t
	}
	t = newTopic(name)
	r.topics[name] = t
	r.order = append(r.order, name)
	m := r.metrics
	r.mu.Unlock()

	if m != nil {
		m.TopicsCreated.Inc()
	}
	return t
}

// Topics returns a snapshot enumeration of every topic currently in the
// registry, in insertion order, safe under concurrent Get.
func (r *Registry) Topics() []*Topic {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Topic, 0, len(r.order))
	for _, name := range r.order {
		if t, ok := r.topics[name]; ok {
			out = append(out, t)
		}
	}
	return out
}

// Clear drops every topic's subscribers, publishers, and last message,
// then removes all topics from the map and records the clear time. Safe
// to call while publishes are in flight: a publish racing with Clear may
// observe either the pre- or post-clear topic set, but will never panic
// or see a partially-mutated collection, since each Topic guards its own
// state and Clear drops the registry's references only after the topic's
// own state has been reset.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.topics {
		t.ClearAll()
	}
	r.topics = make(map[string]*Topic)
	r.order = nil
	r.lastClearTime = time.Now()
}

// LastClearTime returns the instant of the most recent Clear call, or the
// zero time if Clear has never been called.
func (r *Registry) LastClearTime() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastClearTime
}
