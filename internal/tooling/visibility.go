package tooling

import (
	"sort"
	"strings"
)

// Visibility tracks which tools are rendered with their full schema
// ("expanded") versus name and description only ("collapsed"). Collapsed is
// the default state; expanding bounds the prompt payload to tools the
// reasoning service has asked to inspect.
//
// A Visibility instance belongs to exactly one pursuit and is not safe for
// concurrent use.
type Visibility struct {
	registry *Registry
	expanded map[string]struct{}
}

// NewVisibility returns a visibility set over the given registry with every
// tool collapsed.
func NewVisibility(registry *Registry) *Visibility {
	return &Visibility{
		registry: registry,
		expanded: make(map[string]struct{}),
	}
}

// Expand marks named tools as expanded. Names not present in the registry
// are ignored.
func (v *Visibility) Expand(names ...string) {
	for _, name := range names {
		if _, ok := v.registry.Get(name); !ok {
			continue
		}
		v.expanded[name] = struct{}{}
	}
}

// Collapse removes named tools from the expanded set. Unknown names and
// already-collapsed tools are ignored, so Expand followed by Collapse on the
// same name is a round-trip no-op.
func (v *Visibility) Collapse(names ...string) {
	for _, name := range names {
		delete(v.expanded, name)
	}
}

// IsExpanded reports whether the named tool is currently expanded.
func (v *Visibility) IsExpanded(name string) bool {
	_, ok := v.expanded[name]
	return ok
}

// ExpandedNames returns the sorted names of expanded tools.
func (v *Visibility) ExpandedNames() []string {
	names := make([]string, 0, len(v.expanded))
	for name := range v.expanded {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CollapsedNames returns the sorted names of registry tools that are not
// expanded.
func (v *Visibility) CollapsedNames() []string {
	var names []string
	for _, name := range v.registry.Names() {
		if !v.IsExpanded(name) {
			names = append(names, name)
		}
	}
	return names
}

// RenderExpanded renders every expanded tool with its full schema.
func (v *Visibility) RenderExpanded() string {
	var parts []string
	for _, name := range v.ExpandedNames() {
		tool, ok := v.registry.Get(name)
		if !ok {
			continue
		}
		parts = append(parts, tool.RenderFull())
	}
	return strings.Join(parts, "\n")
}

// RenderCollapsed renders every collapsed tool as name and description only.
func (v *Visibility) RenderCollapsed() string {
	var parts []string
	for _, name := range v.CollapsedNames() {
		tool, ok := v.registry.Get(name)
		if !ok {
			continue
		}
		parts = append(parts, tool.RenderCollapsed())
	}
	return strings.Join(parts, "\n")
}

// ExpandedSchematics returns the expanded schematics in name order.
func (v *Visibility) ExpandedSchematics() []Schematic {
	var out []Schematic
	for _, name := range v.ExpandedNames() {
		if tool, ok := v.registry.Get(name); ok {
			out = append(out, tool)
		}
	}
	return out
}
