package pipeline

import (
	"errors"
	"fmt"

	"github.com/dvloznov/finance-report-agent/internal/extract"
)

var (
	// ErrMissingDependency means a required upstream artifact is absent,
	// empty or unreadable. No model call was made and nothing was written.
	ErrMissingDependency = errors.New("missing dependency")

	// ErrInvocationFailure wraps an error returned by the model boundary.
	ErrInvocationFailure = errors.New("model invocation failed")

	// ErrMalformedResponse means no structured block could be extracted.
	ErrMalformedResponse = extract.ErrMalformedResponse

	// ErrEmptyResponse means the model returned nothing usable and the stage
	// has no default to fall back on.
	ErrEmptyResponse = extract.ErrEmptyResponse

	// ErrSchemaViolation means the reply parsed but broke a stage invariant.
	ErrSchemaViolation = errors.New("schema violation")
)

// StageError reports which stage failed and why.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Kind returns a short classification of err for logs and run records.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrMissingDependency):
		return "missing_dependency"
	case errors.Is(err, ErrInvocationFailure):
		return "invocation_failure"
	case errors.Is(err, ErrEmptyResponse):
		return "empty_response"
	case errors.Is(err, ErrMalformedResponse):
		return "malformed_response"
	case errors.Is(err, ErrSchemaViolation):
		return "schema_violation"
	default:
		return "internal"
	}
}
