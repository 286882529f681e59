package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"fabula/internal/goal"
	"fabula/internal/reasoning"
)

// Translator turns a raw user request into a pursuable goal.
type Translator interface {
	Translate(ctx context.Context, request string) (goal.Goal, error)
}

// Assessor produces a structured progress assessment for a pursuit.
type Assessor interface {
	Assess(ctx context.Context, progress goal.Progress) (goal.Assessment, error)
}

const translateSystemPrompt = `You translate a user's request about a narrative project into one
clear, concise goal for an autonomous agent. State the objective and any
constraints the request implies. Do not plan steps.`

const assessSystemPrompt = `You assess an agent's progress toward its goal.
Summarize what is finished, what work remains, what context the agent
still needs, and concrete success criteria.`

// LLMTranslator implements Translator against the reasoning service.
type LLMTranslator struct {
	svc reasoning.Service
}

// NewLLMTranslator creates a reasoning-backed translator.
func NewLLMTranslator(svc reasoning.Service) *LLMTranslator {
	return &LLMTranslator{svc: svc}
}

// Translate converts the request into a goal. On a format failure the raw
// request text becomes the goal description; a pursuit never fails just
// because translation did.
func (t *LLMTranslator) Translate(ctx context.Context, request string) (goal.Goal, error) {
	fallback := goal.Goal{
		Description: strings.TrimSpace(request),
		Source:      goal.UserRequestSource{Request: request, At: time.Now()},
	}

	raw, err := t.svc.Submit(ctx, reasoning.Request{
		Phase:  reasoning.PhaseTranslate,
		System: translateSystemPrompt,
		User:   fmt.Sprintf("User request:\n%s\n\nState the goal.", request),
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"description": map[string]any{"type": "string"},
			},
			"required": []string{"description"},
		},
	})
	if err != nil {
		if reasoning.IsFormatError(err) {
			return fallback, nil
		}
		return goal.Goal{}, err
	}

	var out struct {
		Description string `json:"description"`
	}
	if err := json.Unmarshal(raw, &out); err != nil || strings.TrimSpace(out.Description) == "" {
		return fallback, nil
	}
	fallback.Description = out.Description
	return fallback, nil
}

// LLMAssessor implements Assessor against the reasoning service.
type LLMAssessor struct {
	svc reasoning.Service
}

// NewLLMAssessor creates a reasoning-backed assessor.
func NewLLMAssessor(svc reasoning.Service) *LLMAssessor {
	return &LLMAssessor{svc: svc}
}

// Assess returns a fresh assessment of the pursuit. Format failures yield
// a minimal assessment derived from the goal rather than an error.
func (a *LLMAssessor) Assess(ctx context.Context, progress goal.Progress) (goal.Assessment, error) {
	fallback := goal.Assessment{RemainingWork: progress.Goal.Description}

	stringList := map[string]any{
		"type":  "array",
		"items": map[string]any{"type": "string"},
	}
	raw, err := a.svc.Submit(ctx, reasoning.Request{
		Phase:  reasoning.PhaseAssess,
		System: assessSystemPrompt,
		User:   progress.String() + "\n\nAssess the current state of this pursuit.",
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"finished_tasks":         stringList,
				"remaining_work_summary": map[string]any{"type": "string"},
				"required_context":       map[string]any{"type": "string"},
				"expected_actions":       map[string]any{"type": "string"},
				"boundary_conditions":    stringList,
				"exception_conditions":   stringList,
				"success_criteria":       stringList,
			},
			"required": []string{"remaining_work_summary"},
		},
	})
	if err != nil {
		if reasoning.IsFormatError(err) {
			return fallback, nil
		}
		return goal.Assessment{}, err
	}

	var out struct {
		FinishedTasks       []string `json:"finished_tasks"`
		RemainingWork       string   `json:"remaining_work_summary"`
		RequiredContext     string   `json:"required_context"`
		ExpectedActions     string   `json:"expected_actions"`
		BoundaryConditions  []string `json:"boundary_conditions"`
		ExceptionConditions []string `json:"exception_conditions"`
		SuccessCriteria     []string `json:"success_criteria"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return fallback, nil
	}
	return goal.Assessment{
		FinishedTasks:       out.FinishedTasks,
		RemainingWork:       out.RemainingWork,
		RequiredContext:     out.RequiredContext,
		ExpectedActions:     out.ExpectedActions,
		BoundaryConditions:  out.BoundaryConditions,
		ExceptionConditions: out.ExceptionConditions,
		SuccessCriteria:     out.SuccessCriteria,
	}, nil
}
