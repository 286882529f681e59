// Package repository implements the hierarchical narrative-content store.
// Elements live at slash-separated URIs ("/premise", "/entity/hero"), carry
// free-form properties, and can be related to one another. Search is by
// vector similarity over the element text, backed by sqlite-vec when the
// extension is available and by in-process cosine ranking otherwise.
package repository

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"
)

// ErrNotFound is returned by lookups for URIs that do not exist.
var ErrNotFound = errors.New("element not found")

// Element is one node of the content hierarchy.
type Element struct {
	URI       string
	Aspect    string
	Name      string
	Props     map[string]any
	ChildIDs  []string
	Relations []Relation
	UpdatedAt time.Time
}

// Relation is a directed, described edge between two elements.
type Relation struct {
	SourceURI   string
	TargetURI   string
	Description string
}

// SearchResult is one ranked hit of a similarity search.
type SearchResult struct {
	URI      string
	Distance float64
}

// Repository is the store contract consumed by the workspace manager and the
// tool runtime.
type Repository interface {
	// Search returns URIs ranked by similarity to the query, nearest first.
	// aspect may be empty to search all aspects.
	Search(ctx context.Context, query, aspect string, limit int) ([]SearchResult, error)

	// FindByURI returns the element at uri, or ErrNotFound.
	FindByURI(ctx context.Context, uri string) (*Element, error)

	// Relations returns the outgoing relations of uri.
	Relations(ctx context.Context, uri string) ([]Relation, error)

	// CreateElement inserts a new element and indexes it for search.
	CreateElement(ctx context.Context, el Element) error

	// UpdateProperty sets one property of an existing element and refreshes
	// its search index entry.
	UpdateProperty(ctx context.Context, uri, property string, value any) error

	// LinkRelation records a relation between two existing elements.
	LinkRelation(ctx context.Context, rel Relation) error
}

// NormalizeURI canonicalizes a user- or model-supplied URI: forces a leading
// slash, collapses duplicate separators, and strips the trailing slash.
func NormalizeURI(uri string) string {
	uri = strings.TrimSpace(uri)
	if uri == "" || uri == "/" {
		return "/"
	}
	if !strings.HasPrefix(uri, "/") {
		uri = "/" + uri
	}
	return path.Clean(uri)
}

// ParentURI returns the parent of uri, or "/" for top-level elements.
func ParentURI(uri string) string {
	parent := path.Dir(NormalizeURI(uri))
	if parent == "." || parent == "" {
		return "/"
	}
	return parent
}

// ChildID returns the last URI segment.
func ChildID(uri string) string {
	return path.Base(NormalizeURI(uri))
}

// EmbedText renders the text that is embedded for an element: name, aspect
// and all scalar properties.
func EmbedText(el Element) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (%s)", el.Name, el.Aspect)
	for k, v := range el.Props {
		fmt.Fprintf(&b, "\n%s: %v", k, v)
	}
	return b.String()
}
