package pipeline_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/finance-report-agent/internal/artifact"
	"github.com/dvloznov/finance-report-agent/internal/domain"
	"github.com/dvloznov/finance-report-agent/internal/pipeline"
	"github.com/dvloznov/finance-report-agent/internal/runlog"
	"github.com/dvloznov/finance-report-agent/internal/runlog/inmemory"
)

var decimalEqual = cmp.Comparer(func(a, b decimal.Decimal) bool { return a.Equal(b) })

func TestPipeline_Run_Scenario(t *testing.T) {
	ctx := context.Background()
	model := &MockModel{GenerateFunc: scripted(scenarioReplies())}
	env, store := newEnv(model)
	runs := inmemory.NewStore()

	p := pipeline.NewReportPipeline(env, scenarioLedger, pipeline.KPIModeModel, runs)
	report, err := p.Run(ctx, pipeline.StagePlan)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(report.Results) != len(pipeline.Stages) {
		t.Fatalf("Run() returned %d results, want %d", len(report.Results), len(pipeline.Stages))
	}
	for i, res := range report.Results {
		if res.Stage != pipeline.Stages[i] || res.Status != runlog.StatusCompleted {
			t.Errorf("result %d = %s/%s, want %s/completed", i, res.Stage, res.Status, pipeline.Stages[i])
		}
		if len(res.Warnings) != 0 {
			t.Errorf("result %d warnings = %v, want none", i, res.Warnings)
		}
	}

	set, err := artifact.ReadJSON[domain.CategorizedSet](ctx, store, artifact.SlotCategorized)
	if err != nil {
		t.Fatalf("ReadJSON(categorized) error = %v", err)
	}
	var cats []domain.Category
	for _, tx := range set.Categorized {
		cats = append(cats, tx.Category)
	}
	if diff := cmp.Diff([]domain.Category{domain.CategoryDining, domain.CategoryIncome}, cats); diff != "" {
		t.Errorf("categories mismatch (-want +got):\n%s", diff)
	}

	kpis, err := artifact.ReadJSON[domain.KPIReport](ctx, store, artifact.SlotKPIs)
	if err != nil {
		t.Fatalf("ReadJSON(kpis) error = %v", err)
	}
	want := domain.KPIReport{
		TotalSpend:           dec("5.00"),
		TotalIncome:          dec("2000.00"),
		Top3Merchants:        []string{"CoffeeCo"},
		AverageExpenseAmount: dec("5.00"),
	}
	if diff := cmp.Diff(want, kpis, decimalEqual); diff != "" {
		t.Errorf("kpis mismatch (-want +got):\n%s", diff)
	}

	summary, err := store.Read(ctx, artifact.SlotSummary)
	if err != nil {
		t.Fatalf("Read(summary) error = %v", err)
	}
	if got, want := string(summary), "This month you spent $5.00 on dining and earned $2,000.00."; got != want {
		t.Errorf("summary = %q, want %q", got, want)
	}

	reflection, err := store.Read(ctx, artifact.SlotReflection)
	if err != nil {
		t.Fatalf("Read(reflection) error = %v", err)
	}
	if string(reflection) != scenarioReflection {
		t.Errorf("reflection = %q, want %q", reflection, scenarioReflection)
	}

	recorded, err := runs.List(ctx, runlog.Filter{RunID: report.RunID})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(recorded) != len(pipeline.Stages) {
		t.Fatalf("run log has %d entries, want %d", len(recorded), len(pipeline.Stages))
	}
	for _, run := range recorded {
		if run.Status != runlog.StatusCompleted || run.CompletedAt == nil {
			t.Errorf("run log entry %s = %s (completed_at %v), want completed", run.Stage, run.Status, run.CompletedAt)
		}
	}
}

func TestPipeline_Run_MaxTokensPerStage(t *testing.T) {
	model := &MockModel{GenerateFunc: scripted(scenarioReplies())}
	env, _ := newEnv(model)

	p := pipeline.NewReportPipeline(env, scenarioLedger, pipeline.KPIModeModel, nil)
	if _, err := p.Run(context.Background(), pipeline.StagePlan); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	want := map[pipeline.Stage]int{
		pipeline.StagePlan:       pipeline.MaxTokensPlan,
		pipeline.StageCategorize: pipeline.MaxTokensCategorize,
		pipeline.StageKPIs:       pipeline.MaxTokensKPIs,
		pipeline.StageSummarize:  pipeline.MaxTokensSummary,
		pipeline.StageReflect:    pipeline.MaxTokensReflection,
	}
	for _, req := range model.Requests {
		stage := stageOf(req)
		if req.MaxTokens != want[stage] {
			t.Errorf("%s MaxTokens = %d, want %d", stage, req.MaxTokens, want[stage])
		}
		if req.Model != "test-model" {
			t.Errorf("%s Model = %q, want test-model", stage, req.Model)
		}
	}
	if len(model.Requests) != len(want) {
		t.Errorf("model called %d times, want %d", len(model.Requests), len(want))
	}
}

func TestPipeline_Run_StopsAtFirstFailure(t *testing.T) {
	ctx := context.Background()
	replies := scenarioReplies()
	replies[pipeline.StageCategorize] = `{"categorized": [{"date": "2024-01-01", "merchant": "CoffeeCo", "amount": 5, "category": "Dining"}]}`

	model := &MockModel{GenerateFunc: scripted(replies)}
	env, store := newEnv(model)
	runs := inmemory.NewStore()

	p := pipeline.NewReportPipeline(env, scenarioLedger, pipeline.KPIModeModel, runs)
	report, err := p.Run(ctx, pipeline.StagePlan)

	if !errors.Is(err, pipeline.ErrSchemaViolation) {
		t.Fatalf("Run() error = %v, want ErrSchemaViolation", err)
	}
	var se *pipeline.StageError
	if !errors.As(err, &se) || se.Stage != pipeline.StageCategorize {
		t.Errorf("Run() error = %v, want StageError for categorize", err)
	}
	if len(report.Results) != 2 {
		t.Errorf("Run() returned %d results, want 2", len(report.Results))
	}

	for _, stage := range []pipeline.Stage{pipeline.StageKPIs, pipeline.StageSummarize, pipeline.StageReflect} {
		if n := model.calls(stage); n != 0 {
			t.Errorf("stage %s invoked %d times after failure", stage, n)
		}
	}

	if ok, _ := store.Exists(ctx, artifact.SlotPlan); !ok {
		t.Error("plan artifact should survive a later failure")
	}
	if ok, _ := store.Exists(ctx, artifact.SlotCategorized); ok {
		t.Error("categorized artifact written despite schema violation")
	}

	failed, err := runs.List(ctx, runlog.Filter{RunID: report.RunID, Status: runlog.StatusFailed})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(failed) != 1 || failed[0].Stage != string(pipeline.StageCategorize) || failed[0].Error == "" {
		t.Errorf("failed run log entries = %+v, want one categorize failure with an error", failed)
	}
}

func TestPipeline_Run_ResumeFromStage(t *testing.T) {
	ctx := context.Background()
	model := &MockModel{GenerateFunc: scripted(scenarioReplies())}
	env, store := newEnv(model)

	mustWrite(t, store, artifact.SlotPlan, scenarioPlan)
	mustWrite(t, store, artifact.SlotCategorized, `{"categorized": [
		{"date": "2024-01-01", "merchant": "CoffeeCo", "amount": 5.00, "category": "Dining"},
		{"date": "2024-01-02", "merchant": "Employer", "amount": -2000.00, "category": "Income"}]}`)

	p := pipeline.NewReportPipeline(env, scenarioLedger, pipeline.KPIModeModel, nil)
	report, err := p.Run(ctx, pipeline.StageKPIs)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(report.Results) != 3 {
		t.Errorf("Run() returned %d results, want 3", len(report.Results))
	}
	if model.calls(pipeline.StagePlan)+model.calls(pipeline.StageCategorize) != 0 {
		t.Error("resumed run re-invoked plan or categorize")
	}
	if ok, _ := store.Exists(ctx, artifact.SlotReflection); !ok {
		t.Error("reflection artifact missing after resumed run")
	}
}

func TestPipeline_Run_UnknownStage(t *testing.T) {
	env, _ := newEnv(&MockModel{})
	p := pipeline.NewPipeline(env, []pipeline.Step{&pipeline.PlanStep{}}, nil)

	if _, err := p.Run(context.Background(), pipeline.StageReflect); err == nil {
		t.Error("Run() from a stage outside the pipeline should fail")
	}
	if _, err := p.RunStage(context.Background(), pipeline.StageKPIs); err == nil {
		t.Error("RunStage() for a stage outside the pipeline should fail")
	}
}

func TestPipeline_RunStage_RecordsWarnings(t *testing.T) {
	ctx := context.Background()
	replies := scenarioReplies()
	replies[pipeline.StageKPIs] = `{"total_spend": 7, "total_income": 2000, "top_3_merchants": ["CoffeeCo"], "average_expense_amount": 5}`

	env, store := newEnv(&MockModel{GenerateFunc: scripted(replies)})
	runs := inmemory.NewStore()
	mustWrite(t, store, artifact.SlotCategorized, `{"categorized": [
		{"date": "2024-01-01", "merchant": "CoffeeCo", "amount": 5.00, "category": "Dining"},
		{"date": "2024-01-02", "merchant": "Employer", "amount": -2000.00, "category": "Income"}]}`)

	p := pipeline.NewReportPipeline(env, scenarioLedger, pipeline.KPIModeModel, runs)
	res, err := p.RunStage(ctx, pipeline.StageKPIs)
	if err != nil {
		t.Fatalf("RunStage() error = %v", err)
	}
	if len(res.Warnings) != 1 {
		t.Fatalf("Warnings = %v, want one total_spend mismatch", res.Warnings)
	}

	recorded, err := runs.List(ctx, runlog.Filter{Stage: string(pipeline.StageKPIs)})
	if err != nil || len(recorded) != 1 {
		t.Fatalf("List() = %v, %v; want one entry", recorded, err)
	}
	if diff := cmp.Diff(res.Warnings, recorded[0].Warnings); diff != "" {
		t.Errorf("recorded warnings mismatch (-want +got):\n%s", diff)
	}
}
