// Package determine implements the action determination engine: a bounded,
// multi-phase loop that alternates context acquisition and filtering with
// decision making, and always produces a usable directive even under
// malformed model output, cancellation, or iteration exhaustion.
package determine

import (
	"context"

	"go.uber.org/zap"

	"fabula/internal/goal"
	"fabula/internal/logging"
	"fabula/internal/reasoning"
	"fabula/internal/step"
	"fabula/internal/tooling"
	"fabula/internal/workspace"
)

// Config bounds one determination loop.
type Config struct {
	// MaxIterations caps outer iterations. The loop returns the last
	// planned action when the cap is reached.
	MaxIterations int

	// MinIterations is the minimum number of outer iterations before an
	// approved operation may be returned. Resolutions are exempt.
	MinIterations int

	// MaxRefinementRounds caps the inner discovery/refinement cycle per
	// outer iteration. Zero disables the refinement phase.
	MaxRefinementRounds int
}

func (c Config) normalized() Config {
	if c.MaxIterations <= 0 {
		c.MaxIterations = 8
	}
	if c.MinIterations < 0 {
		c.MinIterations = 0
	}
	if c.MinIterations > c.MaxIterations {
		c.MinIterations = c.MaxIterations
	}
	if c.MaxRefinementRounds < 0 {
		c.MaxRefinementRounds = 0
	}
	return c
}

// Determiner runs determination loops for one pursuit. It owns the pursuit's
// workspace and tool visibility state and must not be shared between
// concurrent pursuits.
type Determiner struct {
	phases     Phases
	ws         *workspace.Context
	visibility *tooling.Visibility
	cfg        Config
	log        *zap.Logger

	// lastPlanned always holds the most recent directive candidate. It
	// starts as an abandoned resolution so every exit path has something
	// to return.
	lastPlanned step.Directive
}

// New creates a determiner over the given workspace and tool registry.
func New(ws *workspace.Context, registry *tooling.Registry, phases Phases, cfg Config) *Determiner {
	return &Determiner{
		phases:     phases,
		ws:         ws,
		visibility: tooling.NewVisibility(registry),
		cfg:        cfg.normalized(),
		log:        logging.L(logging.CategoryDetermine),
	}
}

// Workspace returns the determiner's working set.
func (d *Determiner) Workspace() *workspace.Context { return d.ws }

// Visibility returns the determiner's tool visibility state.
func (d *Determiner) Visibility() *tooling.Visibility { return d.visibility }

// Determine runs the full state machine and returns a directive. Transport
// failures from the reasoning service propagate; every other failure mode
// resolves to a directive. Cancellation is honored at phase boundaries and
// returns the last planned action.
func (d *Determiner) Determine(ctx context.Context, g goal.Goal, assessment goal.Assessment, history []step.OperationOutcome) (step.Directive, error) {
	d.lastPlanned = step.Resolution{
		Reason:   "no action was determined",
		Response: "The pursuit was abandoned before a decision could be made.",
		Status:   step.StatusAbandoned,
	}

	for outer := 0; ; outer++ {
		if outer >= d.cfg.MaxIterations {
			d.log.Info("iteration budget exhausted", zap.Int("iterations", outer))
			return d.lastPlanned, nil
		}
		if ctx.Err() != nil {
			return d.lastPlanned, nil
		}

		view := d.view(g, assessment, history, outer)

		if err := d.contextCycle(ctx, &view); err != nil {
			return nil, err
		}
		if ctx.Err() != nil {
			return d.lastPlanned, nil
		}

		decision, err := d.decide(ctx, view)
		if err != nil {
			return nil, err
		}
		d.lastPlanned = decision.Directive()
		d.log.Debug("action planned",
			zap.Int("iteration", outer),
			zap.String("kind", string(decision.Kind)))

		if ctx.Err() != nil {
			return d.lastPlanned, nil
		}

		review, err := d.review(ctx, view)
		if err != nil {
			return nil, err
		}

		if review.Verdict == VerdictApprove {
			switch dir := d.lastPlanned.(type) {
			case step.Resolution:
				// Finalize is never throttled by the minimum.
				d.log.Info("resolution approved",
					zap.Int("iteration", outer),
					zap.String("status", string(dir.Status)))
				return dir, nil
			case step.OperationPlan:
				if outer >= d.cfg.MinIterations {
					d.log.Info("operation approved",
						zap.Int("iteration", outer),
						zap.String("tool", dir.Tool))
					return dir, nil
				}
				// Below the minimum: continue as a hint-free refine.
				d.log.Debug("operation approval deferred below minimum iterations",
					zap.Int("iteration", outer),
					zap.Int("min", d.cfg.MinIterations))
			}
			continue
		}

		// Refine: fold the replacement assessment into the next round.
		if review.Refinement != nil {
			assessment = review.Refinement.Assessment()
			g = g.WithPrerequisites(review.Refinement.RemainingWork)
		}
		d.log.Debug("refine verdict", zap.Int("iteration", outer))
	}
}

// contextCycle runs the inner discovery/refinement loop, updating view's
// workspace and tool renderings as it goes.
func (d *Determiner) contextCycle(ctx context.Context, view *PhaseView) error {
	for round := 0; ; round++ {
		if ctx.Err() != nil {
			return nil
		}

		plan, err := d.phases.Discoverer.Discover(ctx, *view)
		if err != nil {
			if !reasoning.IsFormatError(err) {
				return err
			}
			// Malformed discovery: proceed with what is loaded.
			d.log.Warn("discovery output unusable, proceeding without new context", zap.Error(err))
			plan = DiscoveryPlan{}
		}
		d.applyDiscovery(ctx, plan)
		d.refreshView(view)

		if !plan.RefinementNeeded() || round >= d.cfg.MaxRefinementRounds {
			return nil
		}
		if ctx.Err() != nil {
			return nil
		}

		refinement, err := d.phases.Refiner.Refine(ctx, *view, plan)
		if err != nil {
			if !reasoning.IsFormatError(err) {
				return err
			}
			// Malformed refinement: keep the working set as-is.
			d.log.Warn("refinement output unusable, keeping working set", zap.Error(err))
			refinement = RefinementPlan{}
		}
		d.applyRefinement(refinement)
		d.refreshView(view)
	}
}

func (d *Determiner) decide(ctx context.Context, view PhaseView) (ActionDecision, error) {
	decision, err := d.phases.Decider.Decide(ctx, view)
	if err != nil {
		if !reasoning.IsFormatError(err) {
			return ActionDecision{}, err
		}
		// Malformed decision: finalize as failed rather than stall.
		d.log.Warn("decision output unusable, finalizing as failed", zap.Error(err))
		decision = ActionDecision{
			Analysis: "the decision phase produced no usable output",
			Kind:     KindFinalize,
			Finalization: &FinalizationSpec{
				Status:   step.StatusFailed,
				Response: "The pursuit could not determine a valid next action.",
			},
		}
	}
	return decision, nil
}

func (d *Determiner) review(ctx context.Context, view PhaseView) (ReviewDecision, error) {
	review, err := d.phases.Reviewer.Review(ctx, view, d.lastPlanned)
	if err != nil {
		if !reasoning.IsFormatError(err) {
			return ReviewDecision{}, err
		}
		// Malformed review: approve the planned action and let the
		// min-iteration rule decide whether it exits.
		d.log.Warn("review output unusable, approving planned action", zap.Error(err))
		review = ReviewDecision{Verdict: VerdictApprove}
	}
	return review, nil
}

// applyDiscovery executes the plan against the workspace and registry.
// Repository failures are demoted to warnings; the engine must keep moving.
func (d *Determiner) applyDiscovery(ctx context.Context, plan DiscoveryPlan) {
	for _, q := range plan.SearchQueries {
		if _, err := d.ws.Search(ctx, q.Query, q.Aspect); err != nil {
			d.log.Warn("discovery search failed", zap.String("query", q.Query), zap.Error(err))
		}
	}
	for _, uri := range plan.LoadURIs {
		if err := d.ws.Load(ctx, uri); err != nil {
			d.log.Warn("discovery load failed", zap.String("uri", uri), zap.Error(err))
		}
	}
	d.visibility.Expand(plan.ExpandTools...)
}

func (d *Determiner) applyRefinement(plan RefinementPlan) {
	for _, uri := range plan.ExcludeURIs {
		d.ws.Exclude(uri)
	}
	for _, ref := range plan.ExcludeProperties {
		d.ws.ExcludeProperty(ref.URI, ref.Property)
	}
	d.visibility.Collapse(plan.CollapseTools...)
	if len(plan.OrderedURIs) > 0 {
		d.ws.Sort(plan.OrderedURIs)
	}
}

func (d *Determiner) view(g goal.Goal, assessment goal.Assessment, history []step.OperationOutcome, iteration int) PhaseView {
	view := PhaseView{
		Goal:       g,
		Assessment: assessment,
		History:    history,
		Iteration:  iteration,
	}
	d.refreshView(&view)
	return view
}

func (d *Determiner) refreshView(view *PhaseView) {
	view.Workspace = d.ws.Render()
	view.ToolsFull = d.visibility.RenderExpanded()
	view.ToolsBrief = d.visibility.RenderCollapsed()
}
