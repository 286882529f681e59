// Package workspace maintains the filtered view of repository content that
// the determination phases see. Each pursuit owns one Context; the loop
// mutates it between phases (load, exclude, reorder) and renders snapshots
// into phase prompts.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"fabula/internal/logging"
	"fabula/internal/repository"
)

// searchHistoryLimit bounds how many past searches are rendered.
const searchHistoryLimit = 10

// Segment is the visible slice of one repository element. At most one
// segment exists per URI.
type Segment struct {
	URI     string
	Element *repository.Element

	excludedProps map[string]struct{}
}

// SearchRecord is one past search and its ranked hits.
type SearchRecord struct {
	Query   string
	Aspect  string
	Results []repository.SearchResult
}

// Context is the per-pursuit working set. It is not safe for concurrent
// use; each pursuit owns exactly one instance.
type Context struct {
	repo repository.Repository
	log  *zap.Logger

	segments map[string]*Segment
	order    []string

	// URIs removed via Exclude. Relation edges pointing at these are
	// suppressed from rendered output until the URI is loaded again.
	excludedURIs map[string]struct{}

	// URIs the model asked to load that do not exist. Shown in the
	// discovery view so the model stops asking for them.
	missing []string

	searches []SearchRecord
}

// NewContext creates an empty working set over repo.
func NewContext(repo repository.Repository) *Context {
	return &Context{
		repo:         repo,
		log:          logging.L(logging.CategoryWorkspace),
		segments:     make(map[string]*Segment),
		excludedURIs: make(map[string]struct{}),
	}
}

// Search runs a similarity search and records it in the history.
func (c *Context) Search(ctx context.Context, query, aspect string) ([]repository.SearchResult, error) {
	results, err := c.repo.Search(ctx, query, aspect, repository.DefaultSearchLimit)
	if err != nil {
		return nil, fmt.Errorf("workspace search %q: %w", query, err)
	}

	c.searches = append(c.searches, SearchRecord{Query: query, Aspect: aspect, Results: results})
	if len(c.searches) > searchHistoryLimit {
		c.searches = c.searches[len(c.searches)-searchHistoryLimit:]
	}

	c.log.Debug("search recorded", zap.String("query", query), zap.Int("hits", len(results)))
	return results, nil
}

// Load makes uri visible. Loading an already-visible URI is a no-op.
// Loading a URI that was excluded earlier restores it. Loading a
// nonexistent URI warns and records the miss without failing.
func (c *Context) Load(ctx context.Context, uri string) error {
	uri = repository.NormalizeURI(uri)

	if _, ok := c.segments[uri]; ok {
		return nil
	}

	el, err := c.repo.FindByURI(ctx, uri)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.log.Warn("load of nonexistent resource ignored", zap.String("uri", uri))
			c.recordMissing(uri)
			return nil
		}
		return fmt.Errorf("workspace load %s: %w", uri, err)
	}

	delete(c.excludedURIs, uri)
	c.segments[uri] = &Segment{
		URI:           uri,
		Element:       el,
		excludedProps: make(map[string]struct{}),
	}
	c.order = append(c.order, uri)
	c.log.Debug("segment loaded", zap.String("uri", uri))
	return nil
}

// Exclude removes uri from the working set and suppresses relation edges
// pointing at it. The backing repository is untouched.
func (c *Context) Exclude(uri string) {
	uri = repository.NormalizeURI(uri)
	if _, ok := c.segments[uri]; !ok {
		return
	}
	delete(c.segments, uri)
	for i, u := range c.order {
		if u == uri {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	c.excludedURIs[uri] = struct{}{}
	c.log.Debug("segment excluded", zap.String("uri", uri))
}

// ExcludeProperty hides one property of a visible segment. Unknown URIs
// and properties are ignored.
func (c *Context) ExcludeProperty(uri, prop string) {
	uri = repository.NormalizeURI(uri)
	seg, ok := c.segments[uri]
	if !ok {
		return
	}
	seg.excludedProps[prop] = struct{}{}
}

// Sort reorders visible segments to match orderedURIs. URIs not in the
// working set are skipped; visible segments absent from orderedURIs keep
// their relative order after the sorted ones.
func (c *Context) Sort(orderedURIs []string) {
	seen := make(map[string]struct{}, len(orderedURIs))
	var next []string
	for _, uri := range orderedURIs {
		uri = repository.NormalizeURI(uri)
		if _, ok := c.segments[uri]; !ok {
			continue
		}
		if _, dup := seen[uri]; dup {
			continue
		}
		seen[uri] = struct{}{}
		next = append(next, uri)
	}
	for _, uri := range c.order {
		if _, ok := seen[uri]; !ok {
			next = append(next, uri)
		}
	}
	c.order = next
}

// ResetExclusions clears URI-level and property-level exclusions.
// Previously excluded segments stay unloaded until Load is called again.
func (c *Context) ResetExclusions() {
	c.excludedURIs = make(map[string]struct{})
	for _, seg := range c.segments {
		seg.excludedProps = make(map[string]struct{})
	}
}

// Visible reports whether uri currently has a segment.
func (c *Context) Visible(uri string) bool {
	_, ok := c.segments[repository.NormalizeURI(uri)]
	return ok
}

// URIs returns the visible URIs in render order.
func (c *Context) URIs() []string {
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

// Searches returns the recorded search history, oldest first.
func (c *Context) Searches() []SearchRecord {
	out := make([]SearchRecord, len(c.searches))
	copy(out, c.searches)
	return out
}

// MissingURIs returns URIs that failed to load because they do not exist.
func (c *Context) MissingURIs() []string {
	out := make([]string, len(c.missing))
	copy(out, c.missing)
	return out
}

func (c *Context) recordMissing(uri string) {
	for _, m := range c.missing {
		if m == uri {
			return
		}
	}
	c.missing = append(c.missing, uri)
}

// SegmentView is the filtered, render-ready form of one segment.
type SegmentView struct {
	URI           string
	Aspect        string
	Name          string
	Props         map[string]any
	ExcludedProps []string
	ChildIDs      []string
	Relations     []repository.Relation
}

// Snapshot returns filtered views of all visible segments in render order.
// Excluded properties are dropped and relations toward excluded URIs are
// suppressed.
func (c *Context) Snapshot() []SegmentView {
	views := make([]SegmentView, 0, len(c.order))
	for _, uri := range c.order {
		seg := c.segments[uri]
		views = append(views, c.viewOf(seg))
	}
	return views
}

func (c *Context) viewOf(seg *Segment) SegmentView {
	el := seg.Element

	props := make(map[string]any, len(el.Props))
	for k, v := range el.Props {
		if _, hidden := seg.excludedProps[k]; hidden {
			continue
		}
		props[k] = v
	}

	excluded := make([]string, 0, len(seg.excludedProps))
	for k := range seg.excludedProps {
		excluded = append(excluded, k)
	}
	sort.Strings(excluded)

	var rels []repository.Relation
	for _, rel := range el.Relations {
		if _, gone := c.excludedURIs[repository.NormalizeURI(rel.TargetURI)]; gone {
			continue
		}
		rels = append(rels, rel)
	}

	return SegmentView{
		URI:           seg.URI,
		Aspect:        el.Aspect,
		Name:          el.Name,
		Props:         props,
		ExcludedProps: excluded,
		ChildIDs:      append([]string(nil), el.ChildIDs...),
		Relations:     rels,
	}
}

// Render writes the working set as prompt text: segments in order, then
// search history, then known-missing URIs.
func (c *Context) Render() string {
	var b strings.Builder

	if len(c.order) == 0 {
		b.WriteString("No resources loaded yet.\n")
	}
	for _, view := range c.Snapshot() {
		fmt.Fprintf(&b, "## %s (%s)\n", view.URI, view.Aspect)
		if view.Name != "" {
			fmt.Fprintf(&b, "name: %s\n", view.Name)
		}
		keys := make([]string, 0, len(view.Props))
		for k := range view.Props {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "%s: %v\n", k, view.Props[k])
		}
		if len(view.ChildIDs) > 0 {
			fmt.Fprintf(&b, "children: %s\n", strings.Join(view.ChildIDs, ", "))
		}
		for _, rel := range view.Relations {
			fmt.Fprintf(&b, "relation -> %s: %s\n", rel.TargetURI, rel.Description)
		}
		b.WriteString("\n")
	}

	if len(c.searches) > 0 {
		b.WriteString("## Past searches\n")
		for _, rec := range c.searches {
			uris := make([]string, 0, len(rec.Results))
			for _, hit := range rec.Results {
				uris = append(uris, hit.URI)
			}
			if len(uris) == 0 {
				fmt.Fprintf(&b, "- %q: no results\n", rec.Query)
				continue
			}
			fmt.Fprintf(&b, "- %q: %s\n", rec.Query, strings.Join(uris, ", "))
		}
		b.WriteString("\n")
	}

	if len(c.missing) > 0 {
		fmt.Fprintf(&b, "## Nonexistent resources (do not request again)\n%s\n", strings.Join(c.missing, ", "))
	}

	return b.String()
}
