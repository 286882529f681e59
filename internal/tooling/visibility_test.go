package tooling

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func testRegistry() *Registry {
	return NewRegistry(
		Schematic{
			Name:        "search_resources",
			Description: "similarity search",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"query": map[string]any{"type": "string"},
				},
			},
		},
		Schematic{Name: "fetch_resource", Description: "fetch one resource"},
	)
}

func TestRegistryLookup(t *testing.T) {
	r := testRegistry()
	assert.Equal(t, 2, r.Len())
	assert.Equal(t, []string{"fetch_resource", "search_resources"}, r.Names())

	tool, ok := r.Get("fetch_resource")
	assert.True(t, ok)
	assert.Equal(t, "fetch one resource", tool.Description)

	_, ok = r.Get("summon_dragon")
	assert.False(t, ok)
}

func TestExpandCollapseRoundTrip(t *testing.T) {
	v := NewVisibility(testRegistry())

	v.Expand("search_resources")
	assert.True(t, v.IsExpanded("search_resources"))

	v.Collapse("search_resources")
	assert.False(t, v.IsExpanded("search_resources"))
	assert.Empty(t, v.ExpandedNames())
}

func TestUnknownNamesAreIgnored(t *testing.T) {
	v := NewVisibility(testRegistry())

	v.Expand("summon_dragon")
	v.Collapse("summon_dragon")
	assert.Empty(t, v.ExpandedNames())
	assert.Len(t, v.CollapsedNames(), 2)
}

func TestExpandIsIdempotent(t *testing.T) {
	v := NewVisibility(testRegistry())
	v.Expand("fetch_resource")
	v.Expand("fetch_resource")
	assert.Equal(t, []string{"fetch_resource"}, v.ExpandedNames())
}

func TestRenderSplit(t *testing.T) {
	v := NewVisibility(testRegistry())
	v.Expand("search_resources")

	full := v.RenderExpanded()
	assert.Contains(t, full, "search_resources")
	assert.Contains(t, full, "Input schema:")
	assert.NotContains(t, full, "fetch_resource")

	brief := v.RenderCollapsed()
	assert.Contains(t, brief, "fetch_resource: fetch one resource")
	assert.NotContains(t, brief, "Input schema:")
}

func TestRenderFullWithoutSchema(t *testing.T) {
	s := Schematic{Name: "bare", Description: "no schema"}
	out := s.RenderFull()
	assert.Contains(t, out, `"type":"object"`)
}
