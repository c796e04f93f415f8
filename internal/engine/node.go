// Package engine implements the Workflow Engine (component E): node
// factory registry and DAG executor (spec §4.E). It is deliberately
// hand-built rather than delegated to an external workflow runtime — see
// DESIGN.md's dropped-dependency entry for go.temporal.io/sdk.
package engine

import (
	"context"
	"fmt"

	"github.com/scanflow/platform/internal/domain"
)

// Node is a single DAG unit. Execute must honor ctx cancellation for any
// suspending I/O (spec §5 "Suspension points").
type Node interface {
	Execute(ctx context.Context, nc domain.NodeContext) *domain.NodeResult
}

// Factory constructs a Node from a node's static config map (spec §4.E
// "Node factory").
type Factory func(cfg map[string]any) (Node, error)

// Registry maps node type strings to factories. An unknown type is
// reported by Build when the executor reaches that node; loading a
// workflow definition does not check node types against the registry.
type Registry struct {
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a factory under nodeType, replacing any existing entry.
func (r *Registry) Register(nodeType string, f Factory) {
	r.factories[nodeType] = f
}

// Build resolves nodeType via the factory and constructs a Node instance.
func (r *Registry) Build(nodeType string, cfg map[string]any) (Node, error) {
	f, ok := r.factories[nodeType]
	if !ok {
		return nil, fmt.Errorf("engine: unknown node type %q", nodeType)
	}
	return f(cfg)
}
