package pipeline_test

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/finance-report-agent/internal/artifact"
	"github.com/dvloznov/finance-report-agent/internal/domain"
	"github.com/dvloznov/finance-report-agent/internal/llm"
	"github.com/dvloznov/finance-report-agent/internal/pipeline"
)

// MockModel is a mock implementation of llm.Model for testing.
type MockModel struct {
	GenerateFunc func(ctx context.Context, req llm.Request) (*llm.Response, error)

	Requests []llm.Request
}

func (m *MockModel) Generate(ctx context.Context, req llm.Request) (*llm.Response, error) {
	m.Requests = append(m.Requests, req)
	if m.GenerateFunc != nil {
		return m.GenerateFunc(ctx, req)
	}
	return &llm.Response{}, nil
}

// calls counts the requests that were sent for stage.
func (m *MockModel) calls(stage pipeline.Stage) int {
	n := 0
	for _, req := range m.Requests {
		if stageOf(req) == stage {
			n++
		}
	}
	return n
}

// MockTransactionSource is a mock implementation of pipeline.TransactionSource.
type MockTransactionSource struct {
	TransactionsFunc func(ctx context.Context) ([]domain.Transaction, error)
}

func (m *MockTransactionSource) Transactions(ctx context.Context) ([]domain.Transaction, error) {
	if m.TransactionsFunc != nil {
		return m.TransactionsFunc(ctx)
	}
	return nil, nil
}

// scripted answers each request with the reply registered for its stage.
func scripted(replies map[pipeline.Stage]string) func(context.Context, llm.Request) (*llm.Response, error) {
	return func(_ context.Context, req llm.Request) (*llm.Response, error) {
		stage := stageOf(req)
		text, ok := replies[stage]
		if !ok {
			return nil, fmt.Errorf("no scripted reply for stage %s", stage)
		}
		return &llm.Response{Text: text}, nil
	}
}

// stageOf recognizes the stage from the opening of its prompt.
func stageOf(req llm.Request) pipeline.Stage {
	prompt := req.Messages[0].Content
	switch {
	case strings.HasPrefix(prompt, "Categorize each transaction"):
		return pipeline.StageCategorize
	case strings.Contains(prompt, "compute these financial KPIs"):
		return pipeline.StageKPIs
	case strings.HasPrefix(prompt, "Write a short"):
		return pipeline.StageSummarize
	case strings.HasPrefix(prompt, "Review all your outputs"):
		return pipeline.StageReflect
	default:
		return pipeline.StagePlan
	}
}

func newEnv(model llm.Model) (*pipeline.Env, *artifact.MemoryStore) {
	store := artifact.NewMemoryStore()
	return &pipeline.Env{
		Model:     model,
		ModelName: "test-model",
		Store:     store,
		Log:       zerolog.Nop(),
	}, store
}

func mustWrite(t *testing.T, store artifact.Store, slot artifact.Slot, content string) {
	t.Helper()
	if err := store.Write(context.Background(), slot, []byte(content)); err != nil {
		t.Fatalf("Write(%s) error = %v", slot, err)
	}
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

var scenarioLedger = pipeline.StaticTransactions{
	{Date: "2024-01-01", Merchant: "CoffeeCo", Amount: dec("5.00")},
	{Date: "2024-01-02", Merchant: "Employer", Amount: dec("-2000.00")},
}

const (
	scenarioPlan = `{"plan_steps": ["Categorize", "Calculate KPIs", "Summarize", "Reflect", "Report"]}`

	scenarioCategorized = "Here are the categories:\n" +
		"```json\n" +
		`{"categorized": [` +
		`{"date": "2024-01-01", "merchant": "CoffeeCo", "amount": 5.00, "category": "dining"},` +
		`{"date": "2024-01-02", "merchant": "Employer", "amount": -2000.00, "category": "Income"}]}` +
		"\n```"

	scenarioKPIs = "Spend: 5.00 at CoffeeCo. Income: 2000.00.\n" +
		`{"total_spend": 5.00, "total_income": -2000.00, "top_3_merchants": ["CoffeeCo"], "average_expense_amount": 5.00}`

	scenarioSummary = "  This month you spent $5.00 on dining and earned $2,000.00.  "

	scenarioReflection = "Possible errors: a coffee purchase may be a business expense; income sign conventions are easy to confuse."
)

func scenarioReplies() map[pipeline.Stage]string {
	return map[pipeline.Stage]string{
		pipeline.StagePlan:       scenarioPlan,
		pipeline.StageCategorize: scenarioCategorized,
		pipeline.StageKPIs:       scenarioKPIs,
		pipeline.StageSummarize:  scenarioSummary,
		pipeline.StageReflect:    scenarioReflection,
	}
}
