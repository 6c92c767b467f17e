package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/loom-ai/loom/internal/domain"
)

// Tool is a callable capability an agent may invoke during a turn. Calls are
// synchronous; a failed call becomes an observation in the transcript, not a
// turn failure.
type Tool interface {
	Name() string
	Description() string
	Call(ctx context.Context, args map[string]any) (string, error)
}

// Registry holds the tools available to agents, keyed by name.
type Registry struct {
	tools map[string]Tool
	order []string
}

func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool. Registering the same name twice is a configuration
// error.
func (r *Registry) Register(t Tool) error {
	if _, exists := r.tools[t.Name()]; exists {
		return domain.NewDomainError(domain.ErrCodeConfig, "tool already registered: "+t.Name())
	}
	r.tools[t.Name()] = t
	r.order = append(r.order, t.Name())
	return nil
}

// WithTool returns a copy of the registry with t bound, replacing any
// existing tool of the same name. The receiver is not mutated; turn-scoped
// tool state never leaks into the shared registry.
func (r *Registry) WithTool(t Tool) *Registry {
	clone := NewRegistry()
	for _, name := range r.order {
		clone.tools[name] = r.tools[name]
		clone.order = append(clone.order, name)
	}
	if _, exists := clone.tools[t.Name()]; !exists {
		clone.order = append(clone.order, t.Name())
	}
	clone.tools[t.Name()] = t
	return clone
}

// Get returns the named tool.
func (r *Registry) Get(name string) (Tool, error) {
	t, ok := r.tools[name]
	if !ok {
		return nil, domain.ErrToolNotFound
	}
	return t, nil
}

// Names returns registered tool names in registration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// Signatures renders the name and description of the named tools for
// inclusion in a reasoning prompt. Unknown names are skipped.
func (r *Registry) Signatures(names []string) string {
	var b strings.Builder
	for _, name := range names {
		t, ok := r.tools[name]
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "%s: %s\n", t.Name(), t.Description())
	}
	return strings.TrimRight(b.String(), "\n")
}
