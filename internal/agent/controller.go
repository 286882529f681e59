// Package agent wires the determination engine into a full pursuit
// controller: it translates user requests into goals, assesses progress,
// asks the engine for directives, and executes the resulting operations
// against the repository.
package agent

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"fabula/internal/determine"
	"fabula/internal/goal"
	"fabula/internal/logging"
	"fabula/internal/repository"
	"fabula/internal/step"
	"fabula/internal/workspace"
)

// Config bounds one pursuit.
type Config struct {
	// MaxSteps caps how many operations a pursuit may execute before it
	// is resolved as incomplete.
	MaxSteps int

	// Determine configures each determination loop.
	Determine determine.Config
}

func (c Config) normalized() Config {
	if c.MaxSteps <= 0 {
		c.MaxSteps = 12
	}
	return c
}

// PursuitOutcome is the result of one complete pursuit.
type PursuitOutcome struct {
	ID            uuid.UUID
	Goal          goal.Goal
	Resolution    step.Resolution
	ExecutedSteps []step.OperationOutcome
	ResolvedAt    time.Time
}

// Controller runs pursuits end to end.
type Controller struct {
	repo       repository.Repository
	runtime    *Runtime
	phases     determine.Phases
	translator Translator
	assessor   Assessor
	cfg        Config
	log        *zap.Logger
}

// NewController assembles a pursuit controller.
func NewController(repo repository.Repository, runtime *Runtime, phases determine.Phases, translator Translator, assessor Assessor, cfg Config) *Controller {
	return &Controller{
		repo:       repo,
		runtime:    runtime,
		phases:     phases,
		translator: translator,
		assessor:   assessor,
		cfg:        cfg.normalized(),
		log:        logging.L(logging.CategoryAgent),
	}
}

// Pursue translates the request into a goal and pursues it until the
// engine resolves it or the step budget runs out. Every determination loop
// gets a fresh workspace and tool visibility set, so concurrent pursuits
// never share mutable state.
func (c *Controller) Pursue(ctx context.Context, request string) (PursuitOutcome, error) {
	outcome := PursuitOutcome{ID: uuid.New()}
	c.log.Info("pursuit started", zap.String("pursuit_id", outcome.ID.String()))

	g, err := c.translator.Translate(ctx, request)
	if err != nil {
		return outcome, err
	}
	outcome.Goal = g

	progress := goal.Progress{Goal: g}
	assessment, err := c.assessor.Assess(ctx, progress)
	if err != nil {
		return outcome, err
	}

	for len(outcome.ExecutedSteps) < c.cfg.MaxSteps {
		determiner := determine.New(workspace.NewContext(c.repo), c.runtime.Registry(), c.phases, c.cfg.Determine)

		directive, err := determiner.Determine(ctx, g, assessment, outcome.ExecutedSteps)
		if err != nil {
			return outcome, err
		}

		switch dir := directive.(type) {
		case step.Resolution:
			outcome.Resolution = dir
			outcome.ResolvedAt = time.Now()
			c.log.Info("pursuit resolved",
				zap.String("pursuit_id", outcome.ID.String()),
				zap.String("status", string(dir.Status)),
				zap.Int("steps", len(outcome.ExecutedSteps)))
			return outcome, nil

		case step.OperationPlan:
			result := c.runtime.Execute(ctx, dir)
			outcome.ExecutedSteps = append(outcome.ExecutedSteps, result)
			progress.ExecutedSteps = outcome.ExecutedSteps

			assessment, err = c.assessor.Assess(ctx, progress)
			if err != nil {
				return outcome, err
			}
		}
	}

	outcome.Resolution = step.Resolution{
		Reason:   "step budget exhausted",
		Response: "The pursuit executed its maximum number of steps without finishing.",
		Status:   step.StatusIncomplete,
	}
	outcome.ResolvedAt = time.Now()
	c.log.Warn("pursuit hit step budget",
		zap.String("pursuit_id", outcome.ID.String()),
		zap.Int("steps", len(outcome.ExecutedSteps)))
	return outcome, nil
}
