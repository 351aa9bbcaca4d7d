package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dvloznov/finance-report-agent/internal/artifact"
	"github.com/dvloznov/finance-report-agent/internal/runlog"
)

// StageResult describes one stage execution.
type StageResult struct {
	Stage  Stage
	Slot   artifact.Slot
	Status runlog.Status

	// Bytes is the size of the artifact written on completion.
	Bytes    int
	Fallback bool
	Warnings []string
	Preview  []string

	// Err is set when Status is failed.
	Err error
}

// TransitionFunc is called every time a stage changes state.
type TransitionFunc func(ctx context.Context, result StageResult)

// Runner drives one step through pending, extracting and then completed or
// failed. It is the only place that writes artifacts, and it writes only on
// completion.
type Runner struct {
	env          *Env
	onTransition TransitionFunc
}

// NewRunner creates a Runner over env. onTransition may be nil.
func NewRunner(env *Env, onTransition TransitionFunc) *Runner {
	return &Runner{env: env, onTransition: onTransition}
}

// Run executes step. On failure the returned error is a *StageError and the
// result carries the failed status; the step's slot is left untouched.
func (r *Runner) Run(ctx context.Context, step Step) (*StageResult, error) {
	result := &StageResult{
		Stage:  step.Stage(),
		Slot:   step.Output(),
		Status: runlog.StatusPending,
	}
	r.notify(ctx, result)

	if err := r.checkRequires(ctx, step); err != nil {
		return r.fail(ctx, result, err)
	}

	result.Status = runlog.StatusExtracting
	r.notify(ctx, result)

	out, err := step.Execute(ctx, r.env)
	if err != nil {
		return r.fail(ctx, result, err)
	}
	if out == nil || len(out.Content) == 0 {
		return r.fail(ctx, result, fmt.Errorf("%w: step produced no content", ErrEmptyResponse))
	}

	if err := r.env.Store.Write(ctx, step.Output(), out.Content); err != nil {
		return r.fail(ctx, result, fmt.Errorf("Runner.Run: write %s: %w", step.Output(), err))
	}

	result.Status = runlog.StatusCompleted
	result.Bytes = len(out.Content)
	result.Fallback = out.Fallback
	result.Warnings = out.Warnings
	result.Preview = out.Preview
	r.notify(ctx, result)

	return result, nil
}

// checkRequires verifies that every required slot holds content.
func (r *Runner) checkRequires(ctx context.Context, step Step) error {
	var missing []string
	for _, slot := range step.Requires() {
		ok, err := r.env.Store.Exists(ctx, slot)
		if err != nil {
			return fmt.Errorf("Runner.checkRequires: %s: %w", slot, err)
		}
		if !ok {
			missing = append(missing, string(slot))
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingDependency, strings.Join(missing, ", "))
	}
	return nil
}

func (r *Runner) fail(ctx context.Context, result *StageResult, err error) (*StageResult, error) {
	var se *StageError
	if !errors.As(err, &se) {
		se = &StageError{Stage: result.Stage, Err: err}
	}
	result.Status = runlog.StatusFailed
	result.Err = se
	r.notify(ctx, result)
	return result, se
}

func (r *Runner) notify(ctx context.Context, result *StageResult) {
	if r.onTransition != nil {
		r.onTransition(ctx, *result)
	}
}
