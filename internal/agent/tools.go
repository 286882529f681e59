package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"fabula/internal/logging"
	"fabula/internal/repository"
	"fabula/internal/step"
	"fabula/internal/tooling"
)

// Runtime executes operation plans against the narrative repository. It is
// the only component that performs write effects; the determination loop
// itself never touches tools.
type Runtime struct {
	repo repository.Repository
	log  *zap.Logger
}

// NewRuntime creates a tool runtime over repo.
func NewRuntime(repo repository.Repository) *Runtime {
	return &Runtime{repo: repo, log: logging.L(logging.CategoryAgent)}
}

// Registry returns the schematics of every tool the runtime can execute.
func (rt *Runtime) Registry() *tooling.Registry {
	return tooling.NewRegistry(
		tooling.Schematic{
			Name:        "search_resources",
			Description: "Similarity search over narrative elements; returns ranked URIs.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"query":  map[string]any{"type": "string"},
					"aspect": map[string]any{"type": "string"},
				},
				"required": []string{"query"},
			},
			OutputNote: "ranked list of element URIs",
		},
		tooling.Schematic{
			Name:        "fetch_resource",
			Description: "Fetch one narrative element by URI with its properties and relations.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"uri": map[string]any{"type": "string"},
				},
				"required": []string{"uri"},
			},
		},
		tooling.Schematic{
			Name:        "create_element",
			Description: "Create a new narrative element at a URI.",
			Prerequisites: "the parent URI must already exist",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"uri":    map[string]any{"type": "string"},
					"aspect": map[string]any{"type": "string"},
					"name":   map[string]any{"type": "string"},
					"props":  map[string]any{"type": "object"},
				},
				"required": []string{"uri", "aspect", "name"},
			},
		},
		tooling.Schematic{
			Name:        "update_property",
			Description: "Set one property of an existing narrative element.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"uri":      map[string]any{"type": "string"},
					"property": map[string]any{"type": "string"},
					"value":    map[string]any{"type": "string"},
				},
				"required": []string{"uri", "property", "value"},
			},
		},
		tooling.Schematic{
			Name:        "link_relation",
			Description: "Record a described relation between two existing elements.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"source_uri":  map[string]any{"type": "string"},
					"target_uri":  map[string]any{"type": "string"},
					"description": map[string]any{"type": "string"},
				},
				"required": []string{"source_uri", "target_uri", "description"},
			},
		},
	)
}

// Execute runs one operation plan and records its outcome. Tool failures
// are captured in the outcome, not returned; only the outcome's status
// tells them apart.
func (rt *Runtime) Execute(ctx context.Context, plan step.OperationPlan) step.OperationOutcome {
	outcome := step.OperationOutcome{
		Operation: plan,
		StartedAt: time.Now(),
	}

	results, err := rt.dispatch(ctx, plan)
	outcome.CompletedAt = time.Now()
	if err != nil {
		outcome.Status = step.StepFailed
		if ctx.Err() != nil {
			outcome.Status = step.StepCancelled
		}
		outcome.ErrorMessage = err.Error()
		rt.log.Warn("operation failed",
			zap.String("tool", plan.Tool),
			zap.Error(err))
		return outcome
	}

	outcome.Status = step.StepSuccess
	outcome.Results = results
	rt.log.Debug("operation executed",
		zap.String("tool", plan.Tool),
		zap.Int("results", len(results)))
	return outcome
}

func (rt *Runtime) dispatch(ctx context.Context, plan step.OperationPlan) ([]string, error) {
	switch plan.Tool {
	case "search_resources":
		return rt.searchResources(ctx, plan.Parameters)
	case "fetch_resource":
		return rt.fetchResource(ctx, plan.Parameters)
	case "create_element":
		return rt.createElement(ctx, plan.Parameters)
	case "update_property":
		return rt.updateProperty(ctx, plan.Parameters)
	case "link_relation":
		return rt.linkRelation(ctx, plan.Parameters)
	default:
		return nil, fmt.Errorf("unknown tool %q", plan.Tool)
	}
}

func stringParam(params map[string]any, key string) (string, error) {
	raw, ok := params[key]
	if !ok {
		return "", fmt.Errorf("missing parameter %q", key)
	}
	s, ok := raw.(string)
	if !ok || strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("parameter %q must be a non-empty string", key)
	}
	return s, nil
}

func optionalStringParam(params map[string]any, key string) string {
	if s, ok := params[key].(string); ok {
		return s
	}
	return ""
}

func (rt *Runtime) searchResources(ctx context.Context, params map[string]any) ([]string, error) {
	query, err := stringParam(params, "query")
	if err != nil {
		return nil, err
	}
	hits, err := rt.repo.Search(ctx, query, optionalStringParam(params, "aspect"), repository.DefaultSearchLimit)
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		return []string{"no matching elements"}, nil
	}
	results := make([]string, len(hits))
	for i, hit := range hits {
		results[i] = fmt.Sprintf("%s (distance %.3f)", hit.URI, hit.Distance)
	}
	return results, nil
}

func (rt *Runtime) fetchResource(ctx context.Context, params map[string]any) ([]string, error) {
	uri, err := stringParam(params, "uri")
	if err != nil {
		return nil, err
	}
	el, err := rt.repo.FindByURI(ctx, uri)
	if err != nil {
		return nil, err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s (%s): %s", el.URI, el.Aspect, el.Name)
	for k, v := range el.Props {
		fmt.Fprintf(&b, "\n%s: %v", k, v)
	}
	results := []string{b.String()}
	for _, rel := range el.Relations {
		results = append(results, fmt.Sprintf("relation -> %s: %s", rel.TargetURI, rel.Description))
	}
	return results, nil
}

func (rt *Runtime) createElement(ctx context.Context, params map[string]any) ([]string, error) {
	uri, err := stringParam(params, "uri")
	if err != nil {
		return nil, err
	}
	aspect, err := stringParam(params, "aspect")
	if err != nil {
		return nil, err
	}
	name, err := stringParam(params, "name")
	if err != nil {
		return nil, err
	}
	props, _ := params["props"].(map[string]any)

	el := repository.Element{
		URI:    repository.NormalizeURI(uri),
		Aspect: aspect,
		Name:   name,
		Props:  props,
	}
	if err := rt.repo.CreateElement(ctx, el); err != nil {
		return nil, err
	}
	return []string{fmt.Sprintf("created %s", el.URI)}, nil
}

func (rt *Runtime) updateProperty(ctx context.Context, params map[string]any) ([]string, error) {
	uri, err := stringParam(params, "uri")
	if err != nil {
		return nil, err
	}
	prop, err := stringParam(params, "property")
	if err != nil {
		return nil, err
	}
	value, ok := params["value"]
	if !ok {
		return nil, fmt.Errorf("missing parameter %q", "value")
	}
	if err := rt.repo.UpdateProperty(ctx, uri, prop, value); err != nil {
		return nil, err
	}
	return []string{fmt.Sprintf("updated %s on %s", prop, repository.NormalizeURI(uri))}, nil
}

func (rt *Runtime) linkRelation(ctx context.Context, params map[string]any) ([]string, error) {
	source, err := stringParam(params, "source_uri")
	if err != nil {
		return nil, err
	}
	target, err := stringParam(params, "target_uri")
	if err != nil {
		return nil, err
	}
	desc, err := stringParam(params, "description")
	if err != nil {
		return nil, err
	}
	rel := repository.Relation{
		SourceURI:   repository.NormalizeURI(source),
		TargetURI:   repository.NormalizeURI(target),
		Description: desc,
	}
	if err := rt.repo.LinkRelation(ctx, rel); err != nil {
		return nil, err
	}
	return []string{fmt.Sprintf("linked %s -> %s", rel.SourceURI, rel.TargetURI)}, nil
}
