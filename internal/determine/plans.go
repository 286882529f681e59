package determine

import (
	"fmt"

	"fabula/internal/goal"
	"fabula/internal/step"
)

// SearchQuery is one similarity search requested by the discovery phase.
type SearchQuery struct {
	Query  string `json:"query"`
	Aspect string `json:"aspect,omitempty"`
}

// DiscoveryPlan is the output of the context discovery phase: what to
// search for, which resources to load, and which tools to expand.
type DiscoveryPlan struct {
	Analysis      string        `json:"discovery_analysis"`
	SearchQueries []SearchQuery `json:"search_queries"`
	LoadURIs      []string      `json:"load_resources"`
	ExpandTools   []string      `json:"expand_tools"`
}

// RefinementNeeded reports whether the plan acquires new context, in which
// case a refinement round should follow to filter it.
func (p DiscoveryPlan) RefinementNeeded() bool {
	return len(p.SearchQueries) > 0 || len(p.LoadURIs) > 0
}

// Validate checks the plan for schema violations that survive JSON parsing.
func (p DiscoveryPlan) Validate() error {
	for _, q := range p.SearchQueries {
		if q.Query == "" {
			return fmt.Errorf("search query with empty query text")
		}
	}
	return nil
}

// PropertyRef names one property of one resource.
type PropertyRef struct {
	URI      string `json:"uri"`
	Property string `json:"property"`
}

// RefinementPlan is the output of the context refinement phase: what to
// drop from the working set and how to reorder what remains.
type RefinementPlan struct {
	Analysis          string        `json:"relevance_analysis"`
	ExcludeURIs       []string      `json:"exclude_resources"`
	ExcludeProperties []PropertyRef `json:"exclude_properties"`
	CollapseTools     []string      `json:"collapse_tools"`
	OrderedURIs       []string      `json:"sorted_segments"`
}

// Validate checks the plan for schema violations that survive JSON parsing.
func (p RefinementPlan) Validate() error {
	for _, ref := range p.ExcludeProperties {
		if ref.URI == "" || ref.Property == "" {
			return fmt.Errorf("property exclusion missing uri or property")
		}
	}
	return nil
}

// DecisionKind is the tag of an ActionDecision.
type DecisionKind string

const (
	KindExecute  DecisionKind = "execute"
	KindFinalize DecisionKind = "finalize"
)

// ExecutionSpec describes the tool invocation of an execute decision.
type ExecutionSpec struct {
	Tool       string         `json:"tool"`
	Parameters map[string]any `json:"parameters"`
	Confidence float64        `json:"confidence"`
	Reasoning  string         `json:"reasoning"`
}

// FinalizationSpec describes the terminal response of a finalize decision.
type FinalizationSpec struct {
	Status   step.ResolutionStatus `json:"status"`
	Response string                `json:"response"`
	Evidence []string              `json:"evidence"`
	Gaps     []string              `json:"gaps"`
}

// ActionDecision is the output of the action decision phase.
type ActionDecision struct {
	Analysis     string            `json:"situation_analysis"`
	Kind         DecisionKind      `json:"decision_type"`
	Execution    *ExecutionSpec    `json:"execution,omitempty"`
	Finalization *FinalizationSpec `json:"finalization,omitempty"`
}

// Validate checks that the decision carries the payload its kind requires.
func (d ActionDecision) Validate() error {
	switch d.Kind {
	case KindExecute:
		if d.Execution == nil {
			return fmt.Errorf("execute decision without execution payload")
		}
		if d.Execution.Tool == "" {
			return fmt.Errorf("execute decision names no tool")
		}
	case KindFinalize:
		if d.Finalization == nil {
			return fmt.Errorf("finalize decision without finalization payload")
		}
		if !d.Finalization.Status.Valid() {
			return fmt.Errorf("finalize decision has unknown status %q", d.Finalization.Status)
		}
	default:
		return fmt.Errorf("unknown decision type %q", d.Kind)
	}
	return nil
}

// Directive converts the decision into the loop's return type. The decision
// must be valid.
func (d ActionDecision) Directive() step.Directive {
	if d.Kind == KindExecute {
		return step.OperationPlan{
			Reason:     d.Execution.Reasoning,
			Tool:       d.Execution.Tool,
			Parameters: d.Execution.Parameters,
		}
	}
	return step.Resolution{
		Reason:   d.Analysis,
		Response: d.Finalization.Response,
		Status:   d.Finalization.Status,
	}
}

// Verdict is the tag of a ReviewDecision.
type Verdict string

const (
	VerdictApprove Verdict = "approve"
	VerdictRefine  Verdict = "refine"
)

// RefinementHints is the reviewer's replacement assessment for the next
// outer iteration.
type RefinementHints struct {
	FinishedTasks       []string `json:"finished_tasks"`
	RemainingWork       string   `json:"remaining_work_summary"`
	RequiredContext     string   `json:"required_context"`
	ExpectedActions     string   `json:"expected_actions"`
	BoundaryConditions  []string `json:"boundary_conditions"`
	ExceptionConditions []string `json:"exception_conditions"`
	SuccessCriteria     []string `json:"success_criteria"`
}

// Assessment converts the hints into the pursuit assessment model.
func (h RefinementHints) Assessment() goal.Assessment {
	return goal.Assessment{
		FinishedTasks:       h.FinishedTasks,
		RemainingWork:       h.RemainingWork,
		RequiredContext:     h.RequiredContext,
		ExpectedActions:     h.ExpectedActions,
		BoundaryConditions:  h.BoundaryConditions,
		ExceptionConditions: h.ExceptionConditions,
		SuccessCriteria:     h.SuccessCriteria,
	}
}

// ReviewDecision is the output of the refinement analysis phase: approve the
// planned directive, or refine and go around again.
type ReviewDecision struct {
	Analysis   string           `json:"analysis"`
	Verdict    Verdict          `json:"verdict"`
	Approval   string           `json:"approval,omitempty"`
	Refinement *RefinementHints `json:"refinement,omitempty"`
}

// Validate checks that the verdict is recognized and, for refine verdicts,
// that hints are present.
func (d ReviewDecision) Validate() error {
	switch d.Verdict {
	case VerdictApprove:
		return nil
	case VerdictRefine:
		if d.Refinement == nil {
			return fmt.Errorf("refine verdict without refinement hints")
		}
		return nil
	default:
		return fmt.Errorf("unknown verdict %q", d.Verdict)
	}
}
