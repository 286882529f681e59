// Package step defines the directive and outcome value types shared across
// the fabula agent packages. This package sits at the bottom of the
// dependency graph and must not import other fabula packages.
package step

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// ResolutionStatus describes how a pursuit ended.
type ResolutionStatus string

const (
	StatusSuccess    ResolutionStatus = "success"
	StatusFailed     ResolutionStatus = "failed"
	StatusIncomplete ResolutionStatus = "incomplete"
	StatusAbandoned  ResolutionStatus = "abandoned"
)

// Valid reports whether s is one of the recognized resolution statuses.
func (s ResolutionStatus) Valid() bool {
	switch s {
	case StatusSuccess, StatusFailed, StatusIncomplete, StatusAbandoned:
		return true
	}
	return false
}

// Directive is the decision output of one complete determination cycle.
// It is a closed union: the only implementations are OperationPlan and
// Resolution. Consumers switch on the concrete type; the compiler keeps the
// union exhaustive.
type Directive interface {
	isDirective()
}

// OperationPlan instructs the pursuit controller to invoke one tool with
// parameters and continue the pursuit.
type OperationPlan struct {
	Reason     string
	Tool       string
	Parameters map[string]any
}

func (OperationPlan) isDirective() {}

func (p OperationPlan) String() string {
	if len(p.Parameters) == 0 {
		return fmt.Sprintf("operation[%s]", p.Tool)
	}
	keys := make([]string, 0, len(p.Parameters))
	for k := range p.Parameters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return fmt.Sprintf("operation[%s](%s)", p.Tool, strings.Join(keys, ","))
}

// Resolution instructs the pursuit controller to terminate the pursuit with
// a status and a user-facing response.
type Resolution struct {
	Reason   string
	Response string
	Status   ResolutionStatus
}

func (Resolution) isDirective() {}

func (r Resolution) String() string {
	return fmt.Sprintf("resolution[%s]", r.Status)
}

// StepStatus is the status of an executed operation.
type StepStatus string

const (
	StepSuccess   StepStatus = "success"
	StepFailed    StepStatus = "failed"
	StepCancelled StepStatus = "cancelled"
)

// OperationOutcome records the result of executing one OperationPlan.
type OperationOutcome struct {
	Operation    OperationPlan
	Status       StepStatus
	Results      []string
	ErrorMessage string
	StartedAt    time.Time
	CompletedAt  time.Time
}

// Result returns the primary human-readable result of the outcome: the first
// result line, or the error message for failed steps.
func (o OperationOutcome) Result() string {
	if len(o.Results) > 0 {
		return strings.Join(o.Results, "\n")
	}
	if o.ErrorMessage != "" {
		return o.ErrorMessage
	}
	return "no result"
}

// Summarize renders the outcome as a single prompt-ready line.
func (o OperationOutcome) Summarize(maxResultLen int) string {
	mark := "ok"
	if o.Status != StepSuccess {
		mark = string(o.Status)
	}
	result := o.Result()
	if maxResultLen > 0 && len(result) > maxResultLen {
		result = result[:maxResultLen] + "..."
	}
	return fmt.Sprintf("[%s] %s: %s", mark, o.Operation.Tool, result)
}
