package graph

import (
	"testing"

	"github.com/zazi341/dataflow-graph-server/internal/agent"
	"github.com/zazi341/dataflow-graph-server/internal/parallel"
	"github.com/zazi341/dataflow-graph-server/internal/topic"
)

func wire(t *testing.T, reg *topic.Registry, typeName string, inputs, outputs []string) {
	t.Helper()
	factory, err := agent.Lookup(typeName)
	if err != nil {
		t.Fatalf("Lookup(%q) error = %v", typeName, err)
	}
	inner := factory(inputs, outputs, reg)
	wrapped := parallel.New(inner, 10, nil)
	for _, in := range inputs {
		reg.Get(in).Subscribe(wrapped)
	}
	for _, out := range outputs {
		reg.Get(out).AddPublisher(wrapped)
	}
}

func TestBuildProducesTopicAndAgentNodes(t *testing.T) {
	reg := topic.NewRegistry()
	wire(t, reg, "inc", []string{"X"}, []string{"Y"})

	g := Build(reg)
	if len(g.Nodes) != 3 { // T:X, T:Y, A:inc
		t.Fatalf("expected 3 nodes, got %d: %v", len(g.Nodes), g.Nodes)
	}
	if len(g.Edges) != 2 { // T:X->A:inc, A:inc->T:Y
		t.Fatalf("expected 2 edges, got %d: %v", len(g.Edges), g.Edges)
	}
}

func TestSelfLoopIsCycle(t *testing.T) {
	reg := topic.NewRegistry()
	wire(t, reg, "inc", []string{"A"}, []string{"A"})

	g := Build(reg)
	if !g.HasCycles() {
		t.Fatalf("expected self-loop to be detected as a cycle")
	}
}

func TestMutualCycleAcrossAgents(t *testing.T) {
	reg := topic.NewRegistry()
	wire(t, reg, "inc", []string{"A"}, []string{"B"})
	wire(t, reg, "inc", []string{"B"}, []string{"A"})

	g := Build(reg)
	if !g.HasCycles() {
		t.Fatalf("expected mutual agent/topic cycle to be detected")
	}
}

func TestAcyclicChainNoCycle(t *testing.T) {
	reg := topic.NewRegistry()
	wire(t, reg, "add", []string{"A", "B"}, []string{"S"})
	wire(t, reg, "inc", []string{"S"}, []string{"R"})

	g := Build(reg)
	if g.HasCycles() {
		t.Fatalf("expected acyclic sum-chain to report no cycles")
	}
}
