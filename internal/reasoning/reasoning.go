// Package reasoning talks to the language model that drives action
// determination. Each determination phase submits a prompt with a JSON
// schema and gets back raw JSON, or a FormatError when the model could
// not produce output matching the schema in time.
package reasoning

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Phase identifies which determination phase a request belongs to.
type Phase string

const (
	PhaseDiscovery  Phase = "discovery"
	PhaseRefinement Phase = "refinement"
	PhaseDecision   Phase = "decision"
	PhaseReview     Phase = "review"

	// Pursuit-level requests issued outside the determination loop.
	PhaseTranslate Phase = "translate"
	PhaseAssess    Phase = "assess"
)

// Request is one structured-output call to the model.
type Request struct {
	Phase  Phase
	System string
	User   string

	// Schema is the JSON schema the response must satisfy.
	Schema map[string]any
}

// Service submits phase requests to a reasoning model.
type Service interface {
	// Submit returns the model's JSON output. A FormatError means the
	// model failed to produce schema-conformant output (including
	// timeouts); the caller substitutes a phase default. Any other
	// error is a transport failure and propagates.
	Submit(ctx context.Context, req Request) (json.RawMessage, error)
}

// FormatError reports that the model's output for a phase was unusable:
// malformed JSON, a schema violation, or a deadline expiry. Callers
// recover by substituting a conservative default for the phase.
type FormatError struct {
	Phase  Phase
	Reason string
	Err    error
}

func (e *FormatError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s phase output unusable: %s: %v", e.Phase, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s phase output unusable: %s", e.Phase, e.Reason)
}

func (e *FormatError) Unwrap() error { return e.Err }

// IsFormatError reports whether err is (or wraps) a FormatError.
func IsFormatError(err error) bool {
	var fe *FormatError
	return errors.As(err, &fe)
}
