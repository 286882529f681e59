package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fabula/internal/determine"
	"fabula/internal/goal"
	"fabula/internal/step"
)

// scriptedPhases drives the determination loop from a queue of decisions.
// Discovery and review are pass-through so each loop runs one decision.
type scriptedPhases struct {
	decisions []determine.ActionDecision
	calls     int
}

func (s *scriptedPhases) Discover(ctx context.Context, view determine.PhaseView) (determine.DiscoveryPlan, error) {
	return determine.DiscoveryPlan{}, nil
}

func (s *scriptedPhases) Refine(ctx context.Context, view determine.PhaseView, prior determine.DiscoveryPlan) (determine.RefinementPlan, error) {
	return determine.RefinementPlan{}, nil
}

func (s *scriptedPhases) Decide(ctx context.Context, view determine.PhaseView) (determine.ActionDecision, error) {
	d := s.decisions[s.calls%len(s.decisions)]
	s.calls++
	return d, nil
}

func (s *scriptedPhases) Review(ctx context.Context, view determine.PhaseView, candidate step.Directive) (determine.ReviewDecision, error) {
	return determine.ReviewDecision{Verdict: determine.VerdictApprove}, nil
}

type staticTranslator struct{}

func (staticTranslator) Translate(ctx context.Context, request string) (goal.Goal, error) {
	return goal.Goal{Description: request}, nil
}

type staticAssessor struct{ calls int }

func (a *staticAssessor) Assess(ctx context.Context, progress goal.Progress) (goal.Assessment, error) {
	a.calls++
	return goal.Assessment{RemainingWork: progress.Goal.Description}, nil
}

func newTestController(phases *scriptedPhases, cfg Config) (*Controller, *staticAssessor) {
	repo := newMemRepo()
	assessor := &staticAssessor{}
	ctrl := NewController(repo, NewRuntime(repo), determine.Phases{
		Discoverer: phases, Refiner: phases, Decider: phases, Reviewer: phases,
	}, staticTranslator{}, assessor, cfg)
	return ctrl, assessor
}

func TestPursueStopsOnResolution(t *testing.T) {
	phases := &scriptedPhases{decisions: []determine.ActionDecision{
		{
			Analysis: "done",
			Kind:     determine.KindFinalize,
			Finalization: &determine.FinalizationSpec{
				Status:   step.StatusSuccess,
				Response: "the premise is in place",
			},
		},
	}}
	ctrl, _ := newTestController(phases, Config{MaxSteps: 5})

	outcome, err := ctrl.Pursue(context.Background(), "review the premise")
	require.NoError(t, err)
	assert.Equal(t, step.StatusSuccess, outcome.Resolution.Status)
	assert.Empty(t, outcome.ExecutedSteps)
	assert.False(t, outcome.ResolvedAt.IsZero())
	assert.NotEqual(t, outcome.ID.String(), "00000000-0000-0000-0000-000000000000")
}

func TestPursueExecutesOperationsThenResolves(t *testing.T) {
	phases := &scriptedPhases{decisions: []determine.ActionDecision{
		{
			Analysis: "look",
			Kind:     determine.KindExecute,
			Execution: &determine.ExecutionSpec{
				Tool:       "fetch_resource",
				Parameters: map[string]any{"uri": "/entity/hero"},
				Reasoning:  "inspect the hero",
			},
		},
		{
			Analysis: "done",
			Kind:     determine.KindFinalize,
			Finalization: &determine.FinalizationSpec{
				Status:   step.StatusSuccess,
				Response: "the hero is a protagonist",
			},
		},
	}}
	ctrl, assessor := newTestController(phases, Config{MaxSteps: 5})

	outcome, err := ctrl.Pursue(context.Background(), "describe the hero")
	require.NoError(t, err)

	assert.Equal(t, step.StatusSuccess, outcome.Resolution.Status)
	require.Len(t, outcome.ExecutedSteps, 1)
	assert.Equal(t, step.StepSuccess, outcome.ExecutedSteps[0].Status)
	assert.Contains(t, outcome.ExecutedSteps[0].Result(), "protagonist")
	// Initial assessment plus one re-assessment after the executed step.
	assert.Equal(t, 2, assessor.calls)
}

func TestPursueStepBudgetResolvesIncomplete(t *testing.T) {
	phases := &scriptedPhases{decisions: []determine.ActionDecision{
		{
			Analysis: "again",
			Kind:     determine.KindExecute,
			Execution: &determine.ExecutionSpec{
				Tool:       "search_resources",
				Parameters: map[string]any{"query": "anything"},
				Reasoning:  "keep searching",
			},
		},
	}}
	ctrl, _ := newTestController(phases, Config{MaxSteps: 3})

	outcome, err := ctrl.Pursue(context.Background(), "never finishes")
	require.NoError(t, err)
	assert.Equal(t, step.StatusIncomplete, outcome.Resolution.Status)
	assert.Len(t, outcome.ExecutedSteps, 3)
}
