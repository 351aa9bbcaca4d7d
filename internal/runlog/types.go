// Package runlog records the state transitions of pipeline stage runs.
package runlog

import (
	"context"
	"time"
)

// Status is the state of one stage run.
type Status string

const (
	// StatusPending indicates preconditions are being checked.
	StatusPending Status = "pending"
	// StatusExtracting indicates the model has been invoked and its reply is
	// being materialized.
	StatusExtracting Status = "extracting"
	// StatusCompleted indicates the artifact was written.
	StatusCompleted Status = "completed"
	// StatusFailed indicates the stage aborted without writing.
	StatusFailed Status = "failed"
)

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// StageRun is one execution of one stage within a pipeline run.
type StageRun struct {
	// ID is the unique identifier of this stage run.
	ID string `json:"id"`

	// RunID groups the stage runs of one pipeline invocation.
	RunID string `json:"run_id"`

	// Stage is the stage name (plan, categorize, ...).
	Stage string `json:"stage"`

	Status Status `json:"status"`

	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Error contains error details if the stage failed.
	Error string `json:"error,omitempty"`

	// Fallback is set when a stage default replaced the model output.
	Fallback bool `json:"fallback,omitempty"`

	// Warnings are non-fatal observations (e.g. KPI cross-check mismatches).
	Warnings []string `json:"warnings,omitempty"`
}

// Filter defines filtering criteria for listing stage runs.
type Filter struct {
	RunID  string
	Stage  string
	Status Status
	Limit  int
}

// Store persists stage runs.
type Store interface {
	// Save saves or updates a stage run.
	Save(ctx context.Context, run *StageRun) error

	// Get retrieves a stage run by ID.
	Get(ctx context.Context, id string) (*StageRun, error)

	// List returns stage runs matching filter in start order.
	List(ctx context.Context, filter Filter) ([]*StageRun, error)

	// UpdateStatus moves a stage run to status, recording errMsg if set.
	UpdateStatus(ctx context.Context, id string, status Status, errMsg string) error
}
