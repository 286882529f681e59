// Package goal models the evolving goal and assessment state of one pursuit.
package goal

import (
	"fmt"
	"strings"
	"time"

	"fabula/internal/step"
)

// Source records where a goal came from.
type Source interface {
	fmt.Stringer
	CreatedAt() time.Time
}

// UserRequestSource marks a goal translated from a user request.
type UserRequestSource struct {
	Request string
	At      time.Time
}

func (s UserRequestSource) String() string      { return fmt.Sprintf("UserRequest(%s)", s.Request) }
func (s UserRequestSource) CreatedAt() time.Time { return s.At }

// AutonomousSource marks a goal generated by an autonomous decider.
type AutonomousSource struct {
	Decider string
	Context string
	At      time.Time
}

func (s AutonomousSource) String() string {
	if s.Context != "" {
		return fmt.Sprintf("Autonomous[%s](%s)", s.Decider, s.Context)
	}
	return fmt.Sprintf("Autonomous[%s]", s.Decider)
}
func (s AutonomousSource) CreatedAt() time.Time { return s.At }

// Goal is a clear, concise objective for the agent. Prerequisites is an
// ordered accumulator of clauses discovered during refinement rounds; the
// base description is never rewritten, so tests can assert on goal evolution
// without string parsing.
type Goal struct {
	Description   string
	Source        Source
	Prerequisites []string
}

// WithPrerequisites returns a copy of g with the given clauses appended.
// Empty clauses are dropped.
func (g Goal) WithPrerequisites(clauses ...string) Goal {
	out := g
	out.Prerequisites = make([]string, 0, len(g.Prerequisites)+len(clauses))
	out.Prerequisites = append(out.Prerequisites, g.Prerequisites...)
	for _, c := range clauses {
		if strings.TrimSpace(c) != "" {
			out.Prerequisites = append(out.Prerequisites, c)
		}
	}
	return out
}

func (g Goal) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Goal: %s", g.Description)
	for _, p := range g.Prerequisites {
		fmt.Fprintf(&b, "\n  Prerequisite: %s", p)
	}
	if g.Source != nil {
		fmt.Fprintf(&b, "\nSource: %s", g.Source)
	}
	return b.String()
}

// Assessment is the structured progress assessment for one pursuit. It is
// replaced wholesale on each refinement round, never mutated in place.
type Assessment struct {
	FinishedTasks       []string
	RemainingWork       string
	RequiredContext     string
	ExpectedActions     string
	BoundaryConditions  []string
	ExceptionConditions []string
	SuccessCriteria     []string
}

// Progress tracks one pursuit: the goal plus every executed step so far.
type Progress struct {
	Goal          Goal
	ExecutedSteps []step.OperationOutcome
}

func (p Progress) String() string {
	var b strings.Builder
	b.WriteString(p.Goal.String())
	if len(p.ExecutedSteps) > 0 {
		b.WriteString("\nExecuted Steps:")
		for i, outcome := range p.ExecutedSteps {
			fmt.Fprintf(&b, "\n  %d. %s", i+1, outcome.Summarize(300))
		}
	}
	return b.String()
}
