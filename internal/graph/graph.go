// Package graph builds a bipartite topic/agent view of a topic.Registry
// for visualisation and implements cycle detection over that view (C8).
package graph

import (
	"fmt"

	"github.com/zazi341/dataflow-graph-server/internal/topic"
)

// NodeKind distinguishes the two node kinds in the bipartite graph.
type NodeKind string

const (
	NodeKindTopic NodeKind = "topic"
	NodeKindAgent NodeKind = "agent"
)

// Node is either a topic or an agent, identified by its display name.
type Node struct {
	Kind NodeKind `json:"kind"`
	Name string   `json:"name"`
}

// ID is the node's graph-unique identifier, e.g. "T:A" or "A:add".
func (n Node) ID() string {
	if n.Kind == NodeKindTopic {
		return "T:" + n.Name
	}
	return "A:" + n.Name
}

// Edge is a directed edge between two nodes, identified by ID.
type Edge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Graph is the transient (rebuilt-on-demand) pair of nodes and edges.
type Graph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// Build enumerates every topic in reg (creating node T:<name>), the union
// of subscribers and publishers across all topics (creating node
// A:<name> per distinct agent display name — agents that share a display
// name collide intentionally, reflecting the registry's identity policy),
// then adds edges T→A for subscriptions and A→T for publications.
func Build(reg *topic.Registry) *Graph {
	g := &Graph{}
	agentSeen := make(map[string]struct{})

	for _, t := range reg.Topics() {
		g.Nodes = append(g.Nodes, Node{Kind: NodeKindTopic, Name: t.Name()})

		for _, sub := range t.Subscribers() {
			addAgentNode(g, agentSeen, sub.Name())
			g.Edges = append(g.Edges, Edge{From: "T:" + t.Name(), To: "A:" + sub.Name()})
		}
		for _, pub := range t.Publishers() {
			addAgentNode(g, agentSeen, pub.Name())
			g.Edges = append(g.Edges, Edge{From: "A:" + pub.Name(), To: "T:" + t.Name()})
		}
	}
	return g
}

func addAgentNode(g *Graph, seen map[string]struct{}, name string) {
	if _, ok := seen[name]; ok {
		return
	}
	seen[name] = struct{}{}
	g.Nodes = append(g.Nodes, Node{Kind: NodeKindAgent, Name: name})
}

// adjacency builds an outgoing-edge lookup for HasCycles' DFS.
func (g *Graph) adjacency() map[string][]string {
	adj := make(map[string][]string, len(g.Nodes))
	for _, e := range g.Edges {
		adj[e.From] = append(adj[e.From], e.To)
	}
	return adj
}

// HasCycles reports whether any node lies on a directed cycle. It runs a
// DFS from every node with a per-root path set (not a global visited
// set): this may revisit nodes across different roots, but graphs here
// are bipartite and small, so the redundant work is acceptable and every
// reachable cycle — including self-edges — is still found.
func (g *Graph) HasCycles() bool {
	adj := g.adjacency()
	for _, n := range g.Nodes {
		if hasCycleFrom(n.ID(), adj, map[string]struct{}{}) {
			return true
		}
	}
	return false
}

func hasCycleFrom(id string, adj map[string][]string, path map[string]struct{}) bool {
	if _, onPath := path[id]; onPath {
		return true
	}
	path[id] = struct{}{}
	defer delete(path, id)

	for _, next := range adj[id] {
		if hasCycleFrom(next, adj, path) {
			return true
		}
	}
	return false
}

// String is a debug helper, not used by any collaborator contract.
func (n Node) String() string { return fmt.Sprintf("%s(%s)", n.Kind, n.Name) }
