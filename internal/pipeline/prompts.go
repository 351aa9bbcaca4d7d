package pipeline

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dvloznov/finance-report-agent/internal/domain"
)

// BuildPlanPrompt asks for an analysis plan. It takes no input.
func BuildPlanPrompt() string {
	return "You are a financial analysis agent. Given transaction data (date, merchant, amount, description), " +
		"outline a clear 5-step plan to analyze this month's financial activity. " +
		"Output your plan in JSON format."
}

// BuildCategorizePrompt embeds the full ledger and the allowed categories.
func BuildCategorizePrompt(txs []domain.Transaction) (string, error) {
	data, err := indentJSON(txs)
	if err != nil {
		return "", fmt.Errorf("BuildCategorizePrompt: encode transactions: %w", err)
	}

	var b strings.Builder
	b.WriteString("Categorize each transaction into: ")
	b.WriteString(categoryList())
	b.WriteString(". Return a valid JSON structure following: ")
	b.WriteString(`{ "categorized": [ { "date": "", "merchant": "", "amount": 0, "category": "" } ] }.`)
	b.WriteString("\n")
	b.WriteString("Return exactly one entry per transaction, in the same order, and keep date, merchant and amount unchanged.\n\n")
	b.WriteString("Transactions:\n")
	b.WriteString(data)

	return b.String(), nil
}

// BuildKPIPrompt embeds the categorized ledger and the KPI definitions.
func BuildKPIPrompt(txs []domain.CategorizedTransaction) (string, error) {
	data, err := indentJSON(txs)
	if err != nil {
		return "", fmt.Errorf("BuildKPIPrompt: encode transactions: %w", err)
	}

	var b strings.Builder
	b.WriteString("You are a financial analysis agent.\n")
	b.WriteString("From the following categorized transactions, compute these financial KPIs:\n\n")
	b.WriteString("1. total_spend (sum of all positive amounts)\n")
	b.WriteString("2. total_income (sum of all negative amounts - income is negative in the data; report it as a positive number)\n")
	fmt.Fprintf(&b, "3. top_3_merchants (up to %d merchants ranked by total amount spent, excluding income; "+
		"on a tie keep the merchant that appears first in the list)\n", domain.TopMerchantsLimit)
	b.WriteString("4. average_expense_amount (average of positive amounts, rounded to 2 decimal places)\n\n")
	b.WriteString("Categorized Transactions:\n")
	b.WriteString(data)
	b.WriteString("\n\nReturn ONLY valid JSON in this exact format:\n")
	b.WriteString("{\n")
	b.WriteString("  \"total_spend\": 0,\n")
	b.WriteString("  \"total_income\": 0,\n")
	b.WriteString("  \"top_3_merchants\": [\"merchant1\", \"merchant2\", \"merchant3\"],\n")
	b.WriteString("  \"average_expense_amount\": 0\n")
	b.WriteString("}\n\n")
	b.WriteString("Calculate carefully and show your work in the response before the JSON.\n")

	return b.String(), nil
}

// BuildSummaryPrompt embeds the KPI report and the first SummaryPreviewSize
// categorized transactions.
func BuildSummaryPrompt(kpis domain.KPIReport, txs []domain.CategorizedTransaction) (string, error) {
	kpiData, err := indentJSON(kpis)
	if err != nil {
		return "", fmt.Errorf("BuildSummaryPrompt: encode kpis: %w", err)
	}
	txData, err := indentJSON(head(txs, SummaryPreviewSize))
	if err != nil {
		return "", fmt.Errorf("BuildSummaryPrompt: encode transactions: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Write a short (<%d words) monthly financial summary using the KPIs and categories generated above.\n\n", SummaryWordLimit)
	b.WriteString("Financial KPIs:\n")
	b.WriteString(kpiData)
	fmt.Fprintf(&b, "\n\nCategorized Transactions (first %d for context):\n", SummaryPreviewSize)
	b.WriteString(txData)

	return b.String(), nil
}

// BuildReflectionPrompt embeds every earlier output: the plan, a sample of
// the categorized ledger, the KPI report and the summary.
func BuildReflectionPrompt(plan domain.Plan, txs []domain.CategorizedTransaction, kpis domain.KPIReport, summary string) (string, error) {
	planData, err := indentJSON(plan)
	if err != nil {
		return "", fmt.Errorf("BuildReflectionPrompt: encode plan: %w", err)
	}
	txData, err := indentJSON(head(txs, ReflectionPreviewSize))
	if err != nil {
		return "", fmt.Errorf("BuildReflectionPrompt: encode transactions: %w", err)
	}
	kpiData, err := indentJSON(kpis)
	if err != nil {
		return "", fmt.Errorf("BuildReflectionPrompt: encode kpis: %w", err)
	}

	var b strings.Builder
	b.WriteString("Review all your outputs. Identify at least two possible categorization or computation errors. ")
	b.WriteString("Suggest improvements or better rules for next time.\n\n")
	b.WriteString("All Outputs:\n\n")
	b.WriteString("1. PLAN:\n")
	b.WriteString(planData)
	b.WriteString("\n\n2. CATEGORIZED TRANSACTIONS (Sample):\n")
	b.WriteString(txData)
	b.WriteString("\n\n3. FINANCIAL KPIs:\n")
	b.WriteString(kpiData)
	b.WriteString("\n\n4. MONTHLY SUMMARY:\n")
	b.WriteString(summary)

	return b.String(), nil
}

func categoryList() string {
	names := make([]string, len(domain.Categories))
	for i, c := range domain.Categories {
		names[i] = string(c)
	}
	last := len(names) - 1
	return strings.Join(names[:last], ", ") + ", or " + names[last]
}

func indentJSON(v any) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// head returns at most n leading elements, never nil.
func head[T any](s []T, n int) []T {
	if len(s) <= n {
		if s == nil {
			return []T{}
		}
		return s
	}
	return s[:n]
}
