// Package tooling defines schematic tool contracts and the per-pursuit
// visibility registry that controls how much of each tool is rendered into
// reasoning prompts.
package tooling

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Schematic describes one tool available to the agent: its identity, its
// input schema, and the prose the reasoning service sees. Schematics are
// read-only; execution lives with the pursuit controller.
type Schematic struct {
	Name          string
	Description   string
	Prerequisites string
	OutputNote    string
	InputSchema   map[string]any
}

// RenderFull renders the schematic with its complete input schema.
func (s Schematic) RenderFull() string {
	var b strings.Builder
	fmt.Fprintf(&b, "- %s: %s", s.Name, s.Description)
	if s.Prerequisites != "" {
		fmt.Fprintf(&b, "\n  Prerequisites: %s", s.Prerequisites)
	}
	if s.OutputNote != "" {
		fmt.Fprintf(&b, "\n  Output: %s", s.OutputNote)
	}
	schema := s.InputSchema
	if schema == nil {
		schema = map[string]any{"type": "object", "properties": map[string]any{}}
	}
	raw, err := json.Marshal(schema)
	if err != nil {
		raw = []byte("{}")
	}
	fmt.Fprintf(&b, "\n  Input schema: %s", raw)
	return b.String()
}

// RenderCollapsed renders only the name and description.
func (s Schematic) RenderCollapsed() string {
	return fmt.Sprintf("- %s: %s", s.Name, s.Description)
}

// Registry is a read-only name -> Schematic lookup.
type Registry struct {
	tools map[string]Schematic
}

// NewRegistry builds a registry from the given schematics. Later duplicates
// replace earlier ones.
func NewRegistry(tools ...Schematic) *Registry {
	m := make(map[string]Schematic, len(tools))
	for _, t := range tools {
		m[t.Name] = t
	}
	return &Registry{tools: m}
}

// Get returns the schematic for name.
func (r *Registry) Get(name string) (Schematic, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Names returns all tool names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered tools.
func (r *Registry) Len() int { return len(r.tools) }
