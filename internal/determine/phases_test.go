package determine

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fabula/internal/goal"
	"fabula/internal/reasoning"
	"fabula/internal/step"
)

// scriptedService returns canned JSON per phase and records requests.
type scriptedService struct {
	responses map[reasoning.Phase]string
	requests  []reasoning.Request
}

func (s *scriptedService) Submit(ctx context.Context, req reasoning.Request) (json.RawMessage, error) {
	s.requests = append(s.requests, req)
	resp, ok := s.responses[req.Phase]
	if !ok {
		return nil, &reasoning.FormatError{Phase: req.Phase, Reason: "no scripted response"}
	}
	return json.RawMessage(resp), nil
}

func testView() PhaseView {
	return PhaseView{
		Goal:       goal.Goal{Description: "locate character X"},
		Workspace:  "No resources loaded yet.\n",
		ToolsBrief: "- fetch_resource: fetch one resource\n",
	}
}

func TestLLMDiscovererParsesPlan(t *testing.T) {
	svc := &scriptedService{responses: map[reasoning.Phase]string{
		reasoning.PhaseDiscovery: `{
			"discovery_analysis": "need the character index",
			"search_queries": [{"query": "character X", "aspect": "entity"}],
			"load_resources": ["/entity"],
			"expand_tools": ["fetch_resource"]
		}`,
	}}
	phases := NewLLMPhases(svc)

	plan, err := phases.Discoverer.Discover(context.Background(), testView())
	require.NoError(t, err)
	assert.True(t, plan.RefinementNeeded())
	require.Len(t, plan.SearchQueries, 1)
	assert.Equal(t, "entity", plan.SearchQueries[0].Aspect)
	assert.Equal(t, []string{"/entity"}, plan.LoadURIs)

	// The prompt carries the goal and workspace rendering.
	require.Len(t, svc.requests, 1)
	assert.Contains(t, svc.requests[0].User, "locate character X")
	assert.Contains(t, svc.requests[0].User, "No resources loaded yet.")
	assert.NotNil(t, svc.requests[0].Schema)
}

func TestLLMDiscovererRejectsMalformedOutput(t *testing.T) {
	svc := &scriptedService{responses: map[reasoning.Phase]string{
		reasoning.PhaseDiscovery: `{"search_queries": [{"aspect": "entity"}]}`,
	}}
	phases := NewLLMPhases(svc)

	_, err := phases.Discoverer.Discover(context.Background(), testView())
	assert.True(t, reasoning.IsFormatError(err))
}

func TestLLMDeciderParsesExecute(t *testing.T) {
	svc := &scriptedService{responses: map[reasoning.Phase]string{
		reasoning.PhaseDecision: `{
			"situation_analysis": "the index is loaded",
			"decision_type": "execute",
			"execution": {
				"tool": "fetch_resource",
				"parameters": {"uri": "/entity/hero"},
				"confidence": 0.9,
				"reasoning": "inspect the hero entry"
			}
		}`,
	}}
	phases := NewLLMPhases(svc)

	decision, err := phases.Decider.Decide(context.Background(), testView())
	require.NoError(t, err)
	assert.Equal(t, KindExecute, decision.Kind)

	op, ok := decision.Directive().(step.OperationPlan)
	require.True(t, ok)
	assert.Equal(t, "fetch_resource", op.Tool)
	assert.Equal(t, "/entity/hero", op.Parameters["uri"])
}

func TestLLMDeciderRejectsKindMismatch(t *testing.T) {
	svc := &scriptedService{responses: map[reasoning.Phase]string{
		reasoning.PhaseDecision: `{"situation_analysis": "x", "decision_type": "finalize"}`,
	}}
	phases := NewLLMPhases(svc)

	_, err := phases.Decider.Decide(context.Background(), testView())
	assert.True(t, reasoning.IsFormatError(err))
}

func TestLLMReviewerRendersCandidate(t *testing.T) {
	svc := &scriptedService{responses: map[reasoning.Phase]string{
		reasoning.PhaseReview: `{
			"analysis": "the fetch is the right next step",
			"verdict": "approve",
			"approval": "proceed"
		}`,
	}}
	phases := NewLLMPhases(svc)

	candidate := step.OperationPlan{Tool: "fetch_resource", Reason: "inspect the hero"}
	review, err := phases.Reviewer.Review(context.Background(), testView(), candidate)
	require.NoError(t, err)
	assert.Equal(t, VerdictApprove, review.Verdict)
	assert.Contains(t, svc.requests[0].User, "fetch_resource")
	assert.Contains(t, svc.requests[0].User, "inspect the hero")
}

func TestLLMRefinerParsesPlan(t *testing.T) {
	svc := &scriptedService{responses: map[reasoning.Phase]string{
		reasoning.PhaseRefinement: `{
			"relevance_analysis": "trim the outline",
			"exclude_resources": ["/outline/act-3"],
			"exclude_properties": [{"uri": "/entity/hero", "property": "secret"}],
			"collapse_tools": ["link_relation"],
			"sorted_segments": ["/entity/hero", "/premise"]
		}`,
	}}
	phases := NewLLMPhases(svc)

	plan, err := phases.Refiner.Refine(context.Background(), testView(), DiscoveryPlan{Analysis: "gathered"})
	require.NoError(t, err)
	assert.Equal(t, []string{"/outline/act-3"}, plan.ExcludeURIs)
	assert.Equal(t, []string{"/entity/hero", "/premise"}, plan.OrderedURIs)
	assert.Contains(t, svc.requests[0].User, "gathered")
}
