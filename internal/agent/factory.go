package agent

import (
	"fmt"

	"github.com/zazi341/dataflow-graph-server/internal/topic"
)

// Factory constructs an operator agent given its configured input/output
// topic names and the registry those topics live in.
type Factory func(inputs, outputs []string, reg *topic.Registry) Agent

// registry is the compile-time factory table keyed by the stable type
// identifier used in configuration text — the replacement for the
// source's reflection-based dispatch (spec.md §9).
var registry = map[string]Factory{
	"add":     NewAdd,
	"inc":     NewInc,
	"and":     NewAnd,
	"or":      NewOr,
	"xor":     NewXor,
	"not":     NewNot,
	"compare": NewCompare,
}

// ErrUnknownType is returned by Lookup for an unregistered type name.
type ErrUnknownType struct {
	TypeName string
}

func (e *ErrUnknownType) Error() string {
	return fmt.Sprintf("agent: unknown type %q", e.TypeName)
}

// Lookup resolves a configured type name to its Factory.
func Lookup(typeName string) (Factory, error) {
	f, ok := registry[typeName]
	if !ok {
		return nil, &ErrUnknownType{TypeName: typeName}
	}
	return f, nil
}
