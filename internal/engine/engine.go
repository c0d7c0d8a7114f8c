// Package engine is the dataflow runtime's facade: the three operations a
// transport collaborator needs (load_config, publish, and the two
// snapshot reads) layered over the topic registry, configuration loader,
// and graph model (spec.md §6).
package engine

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/zazi341/dataflow-graph-server/internal/graph"
	"github.com/zazi341/dataflow-graph-server/internal/graphconfig"
	"github.com/zazi341/dataflow-graph-server/internal/message"
	"github.com/zazi341/dataflow-graph-server/internal/metrics"
	"github.com/zazi341/dataflow-graph-server/internal/topic"
)

// NotFoundError is returned by Publish when the target topic does not
// exist in the registry.
type NotFoundError struct {
	Topic string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("engine: topic %q not found", e.Topic)
}

// ProtectedTopicError is returned by Publish when the target topic is
// output-only or intermediate: external publication is only permitted on
// input-only and inactive topics.
type ProtectedTopicError struct {
	Topic string
	Role  topic.Role
}

func (e *ProtectedTopicError) Error() string {
	return fmt.Sprintf("engine: topic %q is %s, external publish rejected", e.Topic, e.Role)
}

// TopicInfo is one row of TopicSnapshot's result.
type TopicInfo struct {
	Name        string     `json:"name"`
	LastValue   string     `json:"last_value"`
	Subscribers []string   `json:"subscribers"`
	Publishers  []string   `json:"publishers"`
	Role        topic.Role `json:"role"`
}

// GraphSnapshot mirrors graph.Graph but precomputes cycle detection so
// the transport collaborator need not run it per request.
type GraphSnapshot struct {
	Nodes       []graph.Node `json:"nodes"`
	Edges       []graph.Edge `json:"edges"`
	HasCycles   bool         `json:"has_cycles"`
	GeneratedAt time.Time    `json:"generated_at"`
}

// Engine owns the registry and the currently-active configuration loader.
type Engine struct {
	reg     *topic.Registry
	logger  zerolog.Logger
	metrics *metrics.Metrics

	mu     sync.Mutex
	loader *graphconfig.Loader
}

// New constructs an Engine bound to reg. m may be nil, in which case
// neither the registry nor any ParallelAgent created from a subsequent
// LoadConfig records metrics.
func New(reg *topic.Registry, logger zerolog.Logger, m *metrics.Metrics) *Engine {
	reg.SetMetrics(m)
	return &Engine{reg: reg, logger: logger, metrics: m}
}

// LoadConfig replaces the active configuration: it closes the current
// loader if any, clears the registry, then instantiates agents from r
// per §4.4. A ParseError or IoError from the new load aborts the call,
// but whatever the (now-fresh) loader had already created in the same
// call is retained — there is no partial-load rollback.
func (e *Engine) LoadConfig(r io.Reader) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.loader != nil {
		if err := e.loader.Close(); err != nil {
			e.logger.Error().Err(err).Msg("error closing previous loader during reload")
		}
	}
	e.reg.Clear()

	l := graphconfig.New(e.reg, e.logger, e.metrics)
	err := l.Create(r)
	e.loader = l
	return err
}

// LoadConfigFile reads path and calls LoadConfig on its contents.
func (e *Engine) LoadConfigFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return &graphconfig.IoError{Err: err}
	}
	defer f.Close()
	return e.LoadConfig(f)
}

// Publish resolves topicName in the registry — which MUST already exist,
// since topics come into existence through configuration loading, never
// as a side effect of an external publish — constructs a Message from
// text, and publishes it, after rejecting publication to output-only and
// intermediate topics.
func (e *Engine) Publish(topicName, text string) error {
	t, ok := e.lookupExisting(topicName)
	if !ok {
		return &NotFoundError{Topic: topicName}
	}
	if role := t.Role(); role != topic.RoleInputOnly && role != topic.RoleInactive {
		return &ProtectedTopicError{Topic: topicName, Role: role}
	}
	t.Publish(message.FromText(text))
	return nil
}

// lookupExisting returns the topic only if it was already present in the
// registry, without the Get-or-create side effect Publish must not have
// on behalf of external callers.
func (e *Engine) lookupExisting(name string) (*topic.Topic, bool) {
	for _, t := range e.reg.Topics() {
		if t.Name() == name {
			return t, true
		}
	}
	return nil, false
}

// TopicSnapshot returns one row per topic currently in the registry.
func (e *Engine) TopicSnapshot() []TopicInfo {
	topics := e.reg.Topics()
	out := make([]TopicInfo, 0, len(topics))
	for _, t := range topics {
		out = append(out, TopicInfo{
			Name:        t.Name(),
			LastValue:   t.LastValueText(),
			Subscribers: agentNames(t.Subscribers()),
			Publishers:  agentNames(t.Publishers()),
			Role:        t.Role(),
		})
	}
	return out
}

func agentNames(agents []topic.Agent) []string {
	out := make([]string, len(agents))
	for i, a := range agents {
		out[i] = a.Name()
	}
	return out
}

// GraphSnapshot builds the current bipartite graph and runs cycle
// detection once for the caller.
func (e *Engine) GraphSnapshot() GraphSnapshot {
	g := graph.Build(e.reg)
	return GraphSnapshot{
		Nodes:       g.Nodes,
		Edges:       g.Edges,
		HasCycles:   g.HasCycles(),
		GeneratedAt: time.Now(),
	}
}

// ReportQueueMetrics sets the agent queue depth/capacity gauges for
// every ParallelAgent in the active configuration. Intended to be
// called periodically (e.g. from a ticker in cmd/graphserver) since
// Prometheus gauges must be pushed, not pulled, on every scrape. A nil
// Engine metrics instance makes this a no-op.
func (e *Engine) ReportQueueMetrics() {
	if e.metrics == nil {
		return
	}
	e.mu.Lock()
	loader := e.loader
	e.mu.Unlock()
	if loader == nil {
		return
	}
	for _, a := range loader.Agents() {
		e.metrics.AgentQueueDepth.WithLabelValues(a.Name()).Set(float64(a.QueueDepth()))
		e.metrics.AgentQueueCapacity.WithLabelValues(a.Name()).Set(float64(a.Capacity()))
	}
}

// Close closes the active loader, if any. Used on process shutdown.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.loader == nil {
		return nil
	}
	err := e.loader.Close()
	e.loader = nil
	return err
}
