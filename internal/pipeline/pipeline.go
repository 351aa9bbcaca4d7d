// Package pipeline runs the five report stages (plan, categorize, kpis,
// summarize, reflect) over a transaction ledger. Each stage reads its inputs
// from the artifact store, calls the model once, and writes one artifact.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dvloznov/finance-report-agent/internal/logger"
	"github.com/dvloznov/finance-report-agent/internal/runlog"
)

// Pipeline executes steps in a fixed order.
type Pipeline struct {
	env   *Env
	steps []Step
	runs  runlog.Store
	log   zerolog.Logger

	newID func() string
}

// NewPipeline creates a pipeline over steps. runs may be nil.
func NewPipeline(env *Env, steps []Step, runs runlog.Store) *Pipeline {
	return &Pipeline{
		env:   env,
		steps: steps,
		runs:  runs,
		log:   env.Log,
		newID: uuid.NewString,
	}
}

// NewReportPipeline creates the standard five-stage report pipeline.
func NewReportPipeline(env *Env, ledger TransactionSource, mode KPIMode, runs runlog.Store) *Pipeline {
	steps := []Step{
		&PlanStep{},
		&CategorizeStep{Ledger: ledger},
		&ComputeKPIsStep{Mode: mode},
		&SummarizeStep{},
		&ReflectStep{},
	}
	return NewPipeline(env, steps, runs)
}

// RunReport is the outcome of Run.
type RunReport struct {
	RunID   string
	Results []*StageResult
}

// Run executes every step from stage from onwards and stops at the first
// failure. Artifacts written by earlier stages are kept.
func (p *Pipeline) Run(ctx context.Context, from Stage) (*RunReport, error) {
	start := -1
	for i, step := range p.steps {
		if step.Stage() == from {
			start = i
			break
		}
	}
	if start < 0 {
		return nil, fmt.Errorf("Pipeline.Run: stage %q is not part of this pipeline", from)
	}

	report := &RunReport{RunID: p.newID()}
	runner := p.runner(report.RunID)

	p.log.Info().
		Str("run_id", report.RunID).
		Str("from", string(from)).
		Int("stages", len(p.steps)-start).
		Msg("starting pipeline run")

	for i, step := range p.steps[start:] {
		result, err := runner.Run(ctx, step)
		report.Results = append(report.Results, result)
		if err != nil {
			return report, fmt.Errorf("pipeline step %d failed: %w", start+i+1, err)
		}
	}

	p.log.Info().Str("run_id", report.RunID).Msg("pipeline run completed")
	return report, nil
}

// RunStage executes a single stage. Its dependencies must already be stored.
func (p *Pipeline) RunStage(ctx context.Context, stage Stage) (*StageResult, error) {
	for _, step := range p.steps {
		if step.Stage() == stage {
			return p.runner(p.newID()).Run(ctx, step)
		}
	}
	return nil, fmt.Errorf("Pipeline.RunStage: stage %q is not part of this pipeline", stage)
}

func (p *Pipeline) runner(runID string) *Runner {
	rec := &recorder{
		runID: runID,
		runs:  p.runs,
		log:   p.log,
		newID: p.newID,
		ids:   make(map[Stage]string),
	}
	return NewRunner(p.env, rec.transition)
}

// recorder logs stage transitions and mirrors them into the run log.
type recorder struct {
	runID string
	runs  runlog.Store
	log   zerolog.Logger
	newID func() string
	ids   map[Stage]string
}

func (r *recorder) transition(ctx context.Context, res StageResult) {
	log := logger.ForStage(r.log, r.runID, string(res.Stage))

	switch res.Status {
	case runlog.StatusPending:
		log.Info().Msg("stage pending")
	case runlog.StatusExtracting:
		log.Info().Msg("invoking model")
	case runlog.StatusCompleted:
		for _, line := range res.Preview {
			log.Info().Msg(line)
		}
		for _, w := range res.Warnings {
			log.Warn().Msg(w)
		}
		log.Info().
			Str("slot", string(res.Slot)).
			Int("bytes", res.Bytes).
			Bool("fallback", res.Fallback).
			Msg("stage completed")
	case runlog.StatusFailed:
		log.Error().
			Err(res.Err).
			Str("kind", Kind(res.Err)).
			Msg("stage failed")
	}

	r.record(ctx, log, res)
}

// record writes the transition to the run log. Run log errors are logged and
// never fail the stage.
func (r *recorder) record(ctx context.Context, log zerolog.Logger, res StageResult) {
	if r.runs == nil {
		return
	}

	if res.Status == runlog.StatusPending {
		id := r.newID()
		r.ids[res.Stage] = id
		run := &runlog.StageRun{
			ID:        id,
			RunID:     r.runID,
			Stage:     string(res.Stage),
			Status:    runlog.StatusPending,
			StartedAt: time.Now(),
		}
		if err := r.runs.Save(ctx, run); err != nil {
			log.Warn().Err(err).Msg("failed to record stage run")
		}
		return
	}

	id, ok := r.ids[res.Stage]
	if !ok {
		return
	}

	if res.Status == runlog.StatusCompleted && (res.Fallback || len(res.Warnings) > 0) {
		run, err := r.runs.Get(ctx, id)
		if err == nil {
			run.Fallback = res.Fallback
			run.Warnings = res.Warnings
			err = r.runs.Save(ctx, run)
		}
		if err != nil {
			log.Warn().Err(err).Msg("failed to record stage warnings")
		}
	}

	errMsg := ""
	if res.Err != nil {
		errMsg = res.Err.Error()
	}
	if err := r.runs.UpdateStatus(ctx, id, res.Status, errMsg); err != nil {
		log.Warn().Err(err).Str("status", string(res.Status)).Msg("failed to update stage run")
	}
}
