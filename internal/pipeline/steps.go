package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/dvloznov/finance-report-agent/internal/artifact"
	"github.com/dvloznov/finance-report-agent/internal/domain"
	"github.com/dvloznov/finance-report-agent/internal/extract"
	"github.com/dvloznov/finance-report-agent/internal/llm"
)

// Step 1: PlanStep asks the model for an analysis plan.
type PlanStep struct{}

func (s *PlanStep) Stage() Stage              { return StagePlan }
func (s *PlanStep) Requires() []artifact.Slot { return nil }
func (s *PlanStep) Output() artifact.Slot     { return artifact.SlotPlan }

func (s *PlanStep) Execute(ctx context.Context, env *Env) (*Output, error) {
	text, err := generate(ctx, env, StagePlan, MaxTokensPlan, BuildPlanPrompt())
	if err != nil {
		return nil, err
	}

	out := &Output{}
	plan, err := extract.Extract[domain.Plan](text)
	switch {
	case errors.Is(err, extract.ErrEmptyResponse):
		plan = domain.DefaultPlan()
		out.Fallback = true
	case err != nil:
		return nil, fmt.Errorf("PlanStep: %w", err)
	}

	if out.Content, err = artifact.MarshalJSON(plan); err != nil {
		return nil, fmt.Errorf("PlanStep: encode plan: %w", err)
	}
	return out, nil
}

// Step 2: CategorizeStep labels every ledger transaction with a category.
type CategorizeStep struct {
	Ledger TransactionSource
}

func (s *CategorizeStep) Stage() Stage              { return StageCategorize }
func (s *CategorizeStep) Requires() []artifact.Slot { return nil }
func (s *CategorizeStep) Output() artifact.Slot     { return artifact.SlotCategorized }

func (s *CategorizeStep) Execute(ctx context.Context, env *Env) (*Output, error) {
	if s.Ledger == nil {
		return nil, fmt.Errorf("%w: no ledger configured", ErrMissingDependency)
	}
	txs, err := s.Ledger.Transactions(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: ledger: %w", ErrMissingDependency, err)
	}
	if len(txs) == 0 {
		return nil, fmt.Errorf("%w: ledger is empty", ErrMissingDependency)
	}

	prompt, err := BuildCategorizePrompt(txs)
	if err != nil {
		return nil, err
	}
	text, err := generate(ctx, env, StageCategorize, MaxTokensCategorize, prompt)
	if err != nil {
		return nil, err
	}

	set, err := extract.Extract[domain.CategorizedSet](text)
	if err != nil {
		return nil, fmt.Errorf("CategorizeStep: %w", err)
	}
	warnings, err := validateCategorized(txs, &set)
	if err != nil {
		return nil, err
	}

	content, err := artifact.MarshalJSON(set)
	if err != nil {
		return nil, fmt.Errorf("CategorizeStep: encode: %w", err)
	}
	return &Output{
		Content:  content,
		Warnings: warnings,
		Preview:  categorizedPreview(set.Categorized),
	}, nil
}

// Step 3: ComputeKPIsStep derives the KPI report from the categorized ledger.
type ComputeKPIsStep struct {
	Mode KPIMode
}

func (s *ComputeKPIsStep) Stage() Stage { return StageKPIs }
func (s *ComputeKPIsStep) Requires() []artifact.Slot {
	return []artifact.Slot{artifact.SlotCategorized}
}
func (s *ComputeKPIsStep) Output() artifact.Slot { return artifact.SlotKPIs }

func (s *ComputeKPIsStep) Execute(ctx context.Context, env *Env) (*Output, error) {
	set, err := readDependency[domain.CategorizedSet](ctx, env.Store, artifact.SlotCategorized)
	if err != nil {
		return nil, err
	}
	local := domain.ComputeKPIs(set.Categorized)

	report := local
	var warnings []string
	if s.Mode != KPIModeLocal {
		prompt, err := BuildKPIPrompt(set.Categorized)
		if err != nil {
			return nil, err
		}
		text, err := generate(ctx, env, StageKPIs, MaxTokensKPIs, prompt)
		if err != nil {
			return nil, err
		}
		reply, err := extract.ExtractWith(text, func(r kpiReply) error {
			_, err := validateKPIs(r)
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("ComputeKPIsStep: %w", err)
		}
		if report, err = validateKPIs(reply); err != nil {
			return nil, err
		}
		warnings = crossCheckKPIs(report, local)
	}

	content, err := artifact.MarshalJSON(report)
	if err != nil {
		return nil, fmt.Errorf("ComputeKPIsStep: encode: %w", err)
	}
	return &Output{
		Content:  content,
		Warnings: warnings,
		Preview:  kpiPreview(report),
	}, nil
}

// Step 4: SummarizeStep writes a short prose summary of the month.
type SummarizeStep struct{}

func (s *SummarizeStep) Stage() Stage { return StageSummarize }
func (s *SummarizeStep) Requires() []artifact.Slot {
	return []artifact.Slot{artifact.SlotKPIs, artifact.SlotCategorized}
}
func (s *SummarizeStep) Output() artifact.Slot { return artifact.SlotSummary }

func (s *SummarizeStep) Execute(ctx context.Context, env *Env) (*Output, error) {
	kpis, err := readDependency[domain.KPIReport](ctx, env.Store, artifact.SlotKPIs)
	if err != nil {
		return nil, err
	}
	set, err := readDependency[domain.CategorizedSet](ctx, env.Store, artifact.SlotCategorized)
	if err != nil {
		return nil, err
	}

	prompt, err := BuildSummaryPrompt(kpis, set.Categorized)
	if err != nil {
		return nil, err
	}
	text, err := generate(ctx, env, StageSummarize, MaxTokensSummary, prompt)
	if err != nil {
		return nil, err
	}

	summary := strings.TrimSpace(text)
	if summary == "" {
		return nil, fmt.Errorf("SummarizeStep: %w", ErrEmptyResponse)
	}

	out := &Output{Content: []byte(summary)}
	if n := len(strings.Fields(summary)); n > SummaryWordLimit {
		out.Warnings = append(out.Warnings, fmt.Sprintf("summary has %d words, limit is %d", n, SummaryWordLimit))
	}
	return out, nil
}

// Step 5: ReflectStep asks the model to critique every earlier output.
type ReflectStep struct{}

func (s *ReflectStep) Stage() Stage { return StageReflect }

// Requires omits the plan slot: a missing plan is replaced by the default.
func (s *ReflectStep) Requires() []artifact.Slot {
	return []artifact.Slot{artifact.SlotCategorized, artifact.SlotKPIs, artifact.SlotSummary}
}
func (s *ReflectStep) Output() artifact.Slot { return artifact.SlotReflection }

func (s *ReflectStep) Execute(ctx context.Context, env *Env) (*Output, error) {
	out := &Output{}

	plan, err := artifact.ReadJSON[domain.Plan](ctx, env.Store, artifact.SlotPlan)
	switch {
	case errors.Is(err, artifact.ErrMissingArtifact):
		plan = domain.DefaultPlan()
		out.Fallback = true
		out.Warnings = append(out.Warnings, "plan artifact missing, using default plan")
	case err != nil:
		return nil, fmt.Errorf("%w: %s: %w", ErrMissingDependency, artifact.SlotPlan, err)
	}

	set, err := readDependency[domain.CategorizedSet](ctx, env.Store, artifact.SlotCategorized)
	if err != nil {
		return nil, err
	}
	kpis, err := readDependency[domain.KPIReport](ctx, env.Store, artifact.SlotKPIs)
	if err != nil {
		return nil, err
	}
	summary, err := env.Store.Read(ctx, artifact.SlotSummary)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrMissingDependency, artifact.SlotSummary, err)
	}

	prompt, err := BuildReflectionPrompt(plan, set.Categorized, kpis, strings.TrimSpace(string(summary)))
	if err != nil {
		return nil, err
	}
	text, err := generate(ctx, env, StageReflect, MaxTokensReflection, prompt)
	if err != nil {
		return nil, err
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("ReflectStep: %w", ErrEmptyResponse)
	}

	// A reply that wraps one JSON document is stored as that document.
	if span, ok := extract.Span(text); ok && span != text && json.Valid([]byte(span)) {
		text = span
	}
	out.Content = []byte(text)
	return out, nil
}

// generate sends prompt to the model. Errors from the model boundary are
// returned unchanged under ErrInvocationFailure.
func generate(ctx context.Context, env *Env, stage Stage, maxTokens int, prompt string) (string, error) {
	env.Log.Debug().
		Str("stage", string(stage)).
		Int("max_tokens", maxTokens).
		Int("prompt_chars", len(prompt)).
		Msg("invoking model")

	resp, err := env.Model.Generate(ctx, llm.UserPrompt(env.ModelName, maxTokens, prompt))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvocationFailure, err)
	}
	if resp == nil {
		return "", nil
	}

	env.Log.Debug().
		Str("stage", string(stage)).
		Int("reply_chars", len(resp.Text)).
		Msg("model replied")
	return resp.Text, nil
}

// readDependency materializes an upstream artifact. An absent or unreadable
// artifact is reported as ErrMissingDependency.
func readDependency[T any](ctx context.Context, store artifact.Store, slot artifact.Slot) (T, error) {
	v, err := artifact.ReadJSON[T](ctx, store, slot)
	if err == nil {
		return v, nil
	}
	if errors.Is(err, artifact.ErrMissingArtifact) ||
		errors.Is(err, extract.ErrMalformedResponse) ||
		errors.Is(err, extract.ErrEmptyResponse) {
		return v, fmt.Errorf("%w: %s: %w", ErrMissingDependency, slot, err)
	}
	return v, fmt.Errorf("readDependency: %s: %w", slot, err)
}

func categorizedPreview(txs []domain.CategorizedTransaction) []string {
	lines := make([]string, 0, categorizePreviewSize+1)
	for _, tx := range head(txs, categorizePreviewSize) {
		lines = append(lines, fmt.Sprintf("%s: $%s -> %s", tx.Merchant, tx.Amount.StringFixed(2), tx.Category))
	}
	if n := len(txs) - categorizePreviewSize; n > 0 {
		lines = append(lines, fmt.Sprintf("... and %d more", n))
	}
	return lines
}

func kpiPreview(r domain.KPIReport) []string {
	return []string{
		fmt.Sprintf("Total spend: $%s", r.TotalSpend.StringFixed(2)),
		fmt.Sprintf("Total income: $%s", r.TotalIncome.StringFixed(2)),
		fmt.Sprintf("Top merchants: %s", strings.Join(r.Top3Merchants, ", ")),
		fmt.Sprintf("Average expense: $%s", r.AverageExpenseAmount.StringFixed(2)),
	}
}
