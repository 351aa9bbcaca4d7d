package pipeline

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/dvloznov/finance-report-agent/internal/domain"
)

// validateCategorized enforces the categorize invariants: the output is the
// input ledger with a category attached, no rows dropped, duplicated or
// invented, and every category from the allowed set. Each output row must
// match a distinct ledger row on date, merchant and amount; row order is free.
// Categories are rewritten to their canonical spelling in place and a missing
// date is filled from the matched ledger row. Merchant spellings that differ
// only in case or whitespace are reported as warnings.
func validateCategorized(input []domain.Transaction, set *domain.CategorizedSet) ([]string, error) {
	if len(set.Categorized) != len(input) {
		return nil, fmt.Errorf("%w: model returned %d categorized transactions for %d inputs",
			ErrSchemaViolation, len(set.Categorized), len(input))
	}

	used := make([]bool, len(input))
	var warnings []string
	for i := range set.Categorized {
		row := &set.Categorized[i]

		cat, err := domain.ParseCategory(string(row.Category))
		if err != nil {
			return nil, fmt.Errorf("%w: transaction %d (%s): %v", ErrSchemaViolation, i, row.Merchant, err)
		}
		row.Category = cat

		j := matchLedgerRow(input, used, row.Transaction, i)
		if j < 0 {
			return nil, fmt.Errorf("%w: transaction %d (%s %s %s) does not match any unused ledger row",
				ErrSchemaViolation, i, row.Date, row.Merchant, row.Amount)
		}
		used[j] = true

		in := input[j]
		if row.Date == "" {
			row.Date = in.Date
		}
		if row.Merchant != in.Merchant {
			warnings = append(warnings, fmt.Sprintf("transaction %d: merchant %q is spelled %q in the ledger", i, row.Merchant, in.Merchant))
		}
	}

	for j, ok := range used {
		if !ok {
			return nil, fmt.Errorf("%w: ledger row %d (%s %s %s) is missing from the categorized set",
				ErrSchemaViolation, j, input[j].Date, input[j].Merchant, input[j].Amount)
		}
	}
	return warnings, nil
}

// matchLedgerRow returns the index of an unused ledger row equal to row, or
// -1. The row at position hint is preferred so that identical transactions
// keep their ledger positions.
func matchLedgerRow(input []domain.Transaction, used []bool, row domain.Transaction, hint int) int {
	matches := func(j int) bool {
		in := input[j]
		return !used[j] &&
			row.Amount.Equal(in.Amount) &&
			normalizeMerchant(row.Merchant) == normalizeMerchant(in.Merchant) &&
			(row.Date == "" || row.Date == in.Date)
	}
	if hint < len(input) && matches(hint) {
		return hint
	}
	for j := range input {
		if matches(j) {
			return j
		}
	}
	return -1
}

// kpiReply mirrors domain.KPIReport with optional fields so that absent keys
// can be told apart from zero values.
type kpiReply struct {
	TotalSpend           *decimal.Decimal `json:"total_spend"`
	TotalIncome          *decimal.Decimal `json:"total_income"`
	Top3Merchants        []string         `json:"top_3_merchants"`
	AverageExpenseAmount *decimal.Decimal `json:"average_expense_amount"`
}

// validateKPIs checks that all four fields are present and well-formed and
// returns the normalized report. total_income is stored as an absolute value.
func validateKPIs(r kpiReply) (domain.KPIReport, error) {
	var missing []string
	if r.TotalSpend == nil {
		missing = append(missing, "total_spend")
	}
	if r.TotalIncome == nil {
		missing = append(missing, "total_income")
	}
	if r.Top3Merchants == nil {
		missing = append(missing, "top_3_merchants")
	}
	if r.AverageExpenseAmount == nil {
		missing = append(missing, "average_expense_amount")
	}
	if len(missing) > 0 {
		return domain.KPIReport{}, fmt.Errorf("%w: kpi report missing %s", ErrSchemaViolation, strings.Join(missing, ", "))
	}

	if r.TotalSpend.IsNegative() {
		return domain.KPIReport{}, fmt.Errorf("%w: total_spend is negative (%s)", ErrSchemaViolation, r.TotalSpend)
	}
	if r.AverageExpenseAmount.IsNegative() {
		return domain.KPIReport{}, fmt.Errorf("%w: average_expense_amount is negative (%s)", ErrSchemaViolation, r.AverageExpenseAmount)
	}
	if len(r.Top3Merchants) > domain.TopMerchantsLimit {
		return domain.KPIReport{}, fmt.Errorf("%w: top_3_merchants has %d entries", ErrSchemaViolation, len(r.Top3Merchants))
	}

	return domain.KPIReport{
		TotalSpend:           *r.TotalSpend,
		TotalIncome:          r.TotalIncome.Abs(),
		Top3Merchants:        r.Top3Merchants,
		AverageExpenseAmount: *r.AverageExpenseAmount,
	}, nil
}

// crossCheckKPIs compares a model-derived report with the local derivation
// and describes every difference.
func crossCheckKPIs(got, want domain.KPIReport) []string {
	var warnings []string
	check := func(field string, g, w decimal.Decimal) {
		if !g.Equal(w) {
			warnings = append(warnings, fmt.Sprintf("%s: model reported %s, ledger gives %s", field, g, w))
		}
	}
	check("total_spend", got.TotalSpend, want.TotalSpend)
	check("total_income", got.TotalIncome, want.TotalIncome)
	check("average_expense_amount", got.AverageExpenseAmount.Round(2), want.AverageExpenseAmount)

	if !sameMerchants(got.Top3Merchants, want.Top3Merchants) {
		warnings = append(warnings, fmt.Sprintf("top_3_merchants: model reported %v, ledger gives %v", got.Top3Merchants, want.Top3Merchants))
	}
	return warnings
}

func sameMerchants(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if normalizeMerchant(a[i]) != normalizeMerchant(b[i]) {
			return false
		}
	}
	return true
}

// normalizeMerchant normalizes a merchant name for comparison: case and
// whitespace are ignored.
func normalizeMerchant(name string) string {
	return strings.ToUpper(strings.Join(strings.Fields(name), ""))
}
