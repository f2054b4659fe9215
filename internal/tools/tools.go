// Package tools defines the tool contract and registry that C6's execution
// service dispatches into (§4.2). Each tool validates its own tool_input
// against a compiled JSON Schema before running.
package tools

import (
	"context"

	"github.com/haasonsaas/localflow/internal/domain"
	"github.com/haasonsaas/localflow/internal/localflowerr"
)

// Tool is one callable side-effecting action the assistant can plan.
type Tool interface {
	Name() string
	Risk() domain.RiskTier
	// Validate checks input against the tool's JSON Schema.
	Validate(input map[string]any) error
	// Run executes the tool. Callers must call Validate first.
	Run(ctx context.Context, input map[string]any) (map[string]any, error)
}

// Registry is a name-keyed lookup of registered tools.
type Registry struct {
	tools map[string]Tool
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds t, overwriting any previous tool with the same name.
func (r *Registry) Register(t Tool) {
	r.tools[t.Name()] = t
}

// Get looks up a tool by name.
func (r *Registry) Get(name string) (Tool, error) {
	t, ok := r.tools[name]
	if !ok {
		return nil, localflowerr.NotFound("unknown tool: %s", name)
	}
	return t, nil
}

// Names returns the registered tool names, for diagnostics.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	return names
}
