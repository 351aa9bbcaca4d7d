package pipeline

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/dvloznov/finance-report-agent/internal/artifact"
	"github.com/dvloznov/finance-report-agent/internal/domain"
	"github.com/dvloznov/finance-report-agent/internal/llm"
)

// Env holds the collaborators shared by every step. It is built once by the
// caller and never mutated by the steps.
type Env struct {
	Model     llm.Model
	ModelName string
	Store     artifact.Store
	Log       zerolog.Logger
}

// Step is one stage of the report pipeline.
type Step interface {
	Stage() Stage

	// Requires lists the slots that must hold content before Execute runs.
	Requires() []artifact.Slot

	// Output is the slot the step's content is written to.
	Output() artifact.Slot

	// Execute builds the prompt, invokes the model and materializes the
	// reply. It must not write to the store; the Runner does that.
	Execute(ctx context.Context, env *Env) (*Output, error)
}

// Output is what a step produced, before it is persisted.
type Output struct {
	Content []byte

	// Fallback is set when a stage default replaced the model's reply.
	Fallback bool

	// Warnings are non-fatal findings.
	Warnings []string

	// Preview holds human-readable lines echoed to the log.
	Preview []string
}

// TransactionSource supplies the ledger the categorize stage works on.
type TransactionSource interface {
	Transactions(ctx context.Context) ([]domain.Transaction, error)
}

// StaticTransactions is a TransactionSource over an in-memory ledger.
type StaticTransactions []domain.Transaction

func (s StaticTransactions) Transactions(context.Context) ([]domain.Transaction, error) {
	return s, nil
}
