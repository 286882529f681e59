package determine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"fabula/internal/goal"
	"fabula/internal/reasoning"
	"fabula/internal/step"
)

// PhaseView is the input every phase renders into its prompt: the current
// goal and assessment, execution history, and the rendered working set and
// tool visibility state.
type PhaseView struct {
	Goal       goal.Goal
	Assessment goal.Assessment
	History    []step.OperationOutcome
	Workspace  string
	ToolsFull  string
	ToolsBrief string
	Iteration  int
}

// Discoverer runs the context discovery phase.
type Discoverer interface {
	Discover(ctx context.Context, view PhaseView) (DiscoveryPlan, error)
}

// Refiner runs the context refinement phase.
type Refiner interface {
	Refine(ctx context.Context, view PhaseView, prior DiscoveryPlan) (RefinementPlan, error)
}

// Decider runs the action decision phase.
type Decider interface {
	Decide(ctx context.Context, view PhaseView) (ActionDecision, error)
}

// Reviewer runs the refinement analysis phase against the planned directive.
type Reviewer interface {
	Review(ctx context.Context, view PhaseView, candidate step.Directive) (ReviewDecision, error)
}

// Phases bundles one implementation of each phase.
type Phases struct {
	Discoverer Discoverer
	Refiner    Refiner
	Decider    Decider
	Reviewer   Reviewer
}

// NewLLMPhases wires all four phases to the reasoning service.
func NewLLMPhases(svc reasoning.Service) Phases {
	return Phases{
		Discoverer: &llmDiscoverer{svc: svc},
		Refiner:    &llmRefiner{svc: svc},
		Decider:    &llmDecider{svc: svc},
		Reviewer:   &llmReviewer{svc: svc},
	}
}

const discoverySystemPrompt = `You decide what context an agent needs before acting on a goal.
Inspect the goal, the work done so far, and the resources already loaded.
Request similarity searches for resources you have not seen, list resource
URIs to load, and name collapsed tools whose full schema you need. Request
nothing when the loaded context is already sufficient.`

const refinementSystemPrompt = `You filter an agent's working set down to what matters for its goal.
Exclude irrelevant resources and properties, collapse tools that are no
longer needed, and order the remaining resources most-relevant first.`

const decisionSystemPrompt = `You decide the agent's next step.
Either execute exactly one tool with concrete parameters, or finalize the
pursuit with a status and a complete user-facing response. Finalize with
status "failed" when the goal cannot be met with the available resources.`

const reviewSystemPrompt = `You review a planned step before the agent commits to it.
Approve when the step clearly advances the goal. Otherwise answer refine
with a replacement assessment: what is done, what remains, and what extra
context the next round should gather.`

func renderView(b *strings.Builder, view PhaseView) {
	fmt.Fprintf(b, "# Goal\n%s\n\n", view.Goal)

	if view.Assessment.RemainingWork != "" || len(view.Assessment.SuccessCriteria) > 0 {
		b.WriteString("# Assessment\n")
		if view.Assessment.RemainingWork != "" {
			fmt.Fprintf(b, "Remaining work: %s\n", view.Assessment.RemainingWork)
		}
		if view.Assessment.RequiredContext != "" {
			fmt.Fprintf(b, "Required context: %s\n", view.Assessment.RequiredContext)
		}
		if view.Assessment.ExpectedActions != "" {
			fmt.Fprintf(b, "Expected actions: %s\n", view.Assessment.ExpectedActions)
		}
		for _, c := range view.Assessment.SuccessCriteria {
			fmt.Fprintf(b, "Success criterion: %s\n", c)
		}
		for _, c := range view.Assessment.BoundaryConditions {
			fmt.Fprintf(b, "Boundary: %s\n", c)
		}
		for _, t := range view.Assessment.FinishedTasks {
			fmt.Fprintf(b, "Finished: %s\n", t)
		}
		b.WriteString("\n")
	}

	if len(view.History) > 0 {
		b.WriteString("# Executed steps\n")
		for i, outcome := range view.History {
			fmt.Fprintf(b, "%d. %s\n", i+1, outcome.Summarize(300))
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(b, "# Working set\n%s\n", view.Workspace)
}

func renderTools(b *strings.Builder, view PhaseView) {
	if view.ToolsFull != "" {
		fmt.Fprintf(b, "# Available tools\n%s\n", view.ToolsFull)
	}
	if view.ToolsBrief != "" {
		fmt.Fprintf(b, "# Collapsed tools (expand to see schemas)\n%s\n", view.ToolsBrief)
	}
}

// decode parses raw phase output and validates it, converting any failure
// into a FormatError for the loop's default substitution.
func decode[T interface{ Validate() error }](phase reasoning.Phase, raw json.RawMessage) (T, error) {
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, &reasoning.FormatError{Phase: phase, Reason: "malformed phase output", Err: err}
	}
	if err := out.Validate(); err != nil {
		return out, &reasoning.FormatError{Phase: phase, Reason: "schema violation", Err: err}
	}
	return out, nil
}

type llmDiscoverer struct {
	svc reasoning.Service
}

func (d *llmDiscoverer) Discover(ctx context.Context, view PhaseView) (DiscoveryPlan, error) {
	var b strings.Builder
	renderView(&b, view)
	renderTools(&b, view)
	b.WriteString("Decide what additional context, if any, is needed before acting.")

	raw, err := d.svc.Submit(ctx, reasoning.Request{
		Phase:  reasoning.PhaseDiscovery,
		System: discoverySystemPrompt,
		User:   b.String(),
		Schema: discoverySchema(),
	})
	if err != nil {
		return DiscoveryPlan{}, err
	}
	return decode[DiscoveryPlan](reasoning.PhaseDiscovery, raw)
}

type llmRefiner struct {
	svc reasoning.Service
}

func (r *llmRefiner) Refine(ctx context.Context, view PhaseView, prior DiscoveryPlan) (RefinementPlan, error) {
	var b strings.Builder
	renderView(&b, view)
	renderTools(&b, view)
	if prior.Analysis != "" {
		fmt.Fprintf(&b, "# Discovery analysis\n%s\n\n", prior.Analysis)
	}
	b.WriteString("Filter the working set down to what the goal needs.")

	raw, err := r.svc.Submit(ctx, reasoning.Request{
		Phase:  reasoning.PhaseRefinement,
		System: refinementSystemPrompt,
		User:   b.String(),
		Schema: refinementSchema(),
	})
	if err != nil {
		return RefinementPlan{}, err
	}
	return decode[RefinementPlan](reasoning.PhaseRefinement, raw)
}

type llmDecider struct {
	svc reasoning.Service
}

func (d *llmDecider) Decide(ctx context.Context, view PhaseView) (ActionDecision, error) {
	var b strings.Builder
	renderView(&b, view)
	renderTools(&b, view)
	b.WriteString("Decide the next step: execute one tool, or finalize the pursuit.")

	raw, err := d.svc.Submit(ctx, reasoning.Request{
		Phase:  reasoning.PhaseDecision,
		System: decisionSystemPrompt,
		User:   b.String(),
		Schema: decisionSchema(),
	})
	if err != nil {
		return ActionDecision{}, err
	}
	return decode[ActionDecision](reasoning.PhaseDecision, raw)
}

type llmReviewer struct {
	svc reasoning.Service
}

func (r *llmReviewer) Review(ctx context.Context, view PhaseView, candidate step.Directive) (ReviewDecision, error) {
	var b strings.Builder
	renderView(&b, view)
	b.WriteString("# Planned step\n")
	switch dir := candidate.(type) {
	case step.OperationPlan:
		fmt.Fprintf(&b, "Execute tool %q.\nReason: %s\n", dir.Tool, dir.Reason)
		if len(dir.Parameters) > 0 {
			if params, err := json.Marshal(dir.Parameters); err == nil {
				fmt.Fprintf(&b, "Parameters: %s\n", params)
			}
		}
	case step.Resolution:
		fmt.Fprintf(&b, "Finalize with status %q.\nResponse: %s\n", dir.Status, dir.Response)
	}
	b.WriteString("\nApprove this step, or answer refine with a replacement assessment.")

	raw, err := r.svc.Submit(ctx, reasoning.Request{
		Phase:  reasoning.PhaseReview,
		System: reviewSystemPrompt,
		User:   b.String(),
		Schema: reviewSchema(),
	})
	if err != nil {
		return ReviewDecision{}, err
	}
	return decode[ReviewDecision](reasoning.PhaseReview, raw)
}
