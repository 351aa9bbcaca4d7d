package domain

import (
	"sort"

	"github.com/shopspring/decimal"
)

// TopMerchantsLimit is how many merchants the KPI report ranks.
const TopMerchantsLimit = 3

// KPIReport holds the four headline figures derived from a categorized ledger.
type KPIReport struct {
	TotalSpend           decimal.Decimal `json:"total_spend"`
	TotalIncome          decimal.Decimal `json:"total_income"` // absolute value of summed income
	Top3Merchants        []string        `json:"top_3_merchants"`
	AverageExpenseAmount decimal.Decimal `json:"average_expense_amount"`
}

// ComputeKPIs derives the KPI report from categorized transactions.
//
// total_spend is the sum of positive amounts, total_income the absolute sum of
// negative amounts. Merchants are ranked by their summed spend, ties keep the
// order in which the merchant first appears in txs (on any row, expense or
// not). Merchants with no spend are not ranked. The average expense is
// rounded to two decimal places.
func ComputeKPIs(txs []CategorizedTransaction) KPIReport {
	spend := decimal.Zero
	income := decimal.Zero
	expenses := 0

	perMerchant := make(map[string]decimal.Decimal)
	var order []string

	for _, tx := range txs {
		if _, seen := perMerchant[tx.Merchant]; !seen {
			perMerchant[tx.Merchant] = decimal.Zero
			order = append(order, tx.Merchant)
		}
		switch {
		case tx.IsExpense():
			spend = spend.Add(tx.Amount)
			expenses++
			perMerchant[tx.Merchant] = perMerchant[tx.Merchant].Add(tx.Amount)
		case tx.IsIncome():
			income = income.Add(tx.Amount)
		}
	}

	ranked := order[:0]
	for _, m := range order {
		if perMerchant[m].IsPositive() {
			ranked = append(ranked, m)
		}
	}
	order = ranked

	sort.SliceStable(order, func(i, j int) bool {
		return perMerchant[order[i]].GreaterThan(perMerchant[order[j]])
	})
	if len(order) > TopMerchantsLimit {
		order = order[:TopMerchantsLimit]
	}
	if order == nil {
		order = []string{}
	}

	avg := decimal.Zero
	if expenses > 0 {
		avg = spend.DivRound(decimal.NewFromInt(int64(expenses)), 2)
	}

	return KPIReport{
		TotalSpend:           spend,
		TotalIncome:          income.Abs(),
		Top3Merchants:        order,
		AverageExpenseAmount: avg,
	}
}
