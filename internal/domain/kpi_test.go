package domain

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func tx(merchant, amount string, c Category) CategorizedTransaction {
	return CategorizedTransaction{
		Transaction: Transaction{Date: "2024-01-01", Merchant: merchant, Amount: d(amount)},
		Category:    c,
	}
}

func TestComputeKPIs_Scenario(t *testing.T) {
	txs := []CategorizedTransaction{
		tx("CoffeeCo", "5.00", CategoryDining),
		tx("Employer", "-2000.00", CategoryIncome),
	}

	got := ComputeKPIs(txs)

	if !got.TotalSpend.Equal(d("5.00")) {
		t.Errorf("TotalSpend = %s, want 5.00", got.TotalSpend)
	}
	if !got.TotalIncome.Equal(d("2000.00")) {
		t.Errorf("TotalIncome = %s, want 2000.00", got.TotalIncome)
	}
	if diff := cmp.Diff([]string{"CoffeeCo"}, got.Top3Merchants); diff != "" {
		t.Errorf("Top3Merchants mismatch (-want +got):\n%s", diff)
	}
	if !got.AverageExpenseAmount.Equal(d("5.00")) {
		t.Errorf("AverageExpenseAmount = %s, want 5.00", got.AverageExpenseAmount)
	}
}

func TestComputeKPIs_Totals(t *testing.T) {
	tests := []struct {
		name       string
		txs        []CategorizedTransaction
		wantSpend  string
		wantIncome string
		wantAvg    string
	}{
		{
			name:       "empty",
			txs:        nil,
			wantSpend:  "0",
			wantIncome: "0",
			wantAvg:    "0",
		},
		{
			name: "income only",
			txs: []CategorizedTransaction{
				tx("Employer", "-1500.25", CategoryIncome),
				tx("Refund", "-20.10", CategoryOther),
			},
			wantSpend:  "0",
			wantIncome: "1520.35",
			wantAvg:    "0",
		},
		{
			name: "decimal precision is preserved",
			txs: []CategorizedTransaction{
				tx("A", "0.10", CategoryShopping),
				tx("B", "0.20", CategoryShopping),
				tx("C", "-0.30", CategoryIncome),
			},
			wantSpend:  "0.30",
			wantIncome: "0.30",
			wantAvg:    "0.15",
		},
		{
			name: "average rounds to cents",
			txs: []CategorizedTransaction{
				tx("A", "10", CategoryShopping),
				tx("B", "10", CategoryShopping),
				tx("C", "10.01", CategoryShopping),
			},
			wantSpend:  "30.01",
			wantIncome: "0",
			wantAvg:    "10.00",
		},
		{
			name: "zero amounts count as neither",
			txs: []CategorizedTransaction{
				tx("A", "0", CategoryOther),
				tx("B", "4", CategoryDining),
			},
			wantSpend:  "4",
			wantIncome: "0",
			wantAvg:    "4",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeKPIs(tt.txs)
			if !got.TotalSpend.Equal(d(tt.wantSpend)) {
				t.Errorf("TotalSpend = %s, want %s", got.TotalSpend, tt.wantSpend)
			}
			if !got.TotalIncome.Equal(d(tt.wantIncome)) {
				t.Errorf("TotalIncome = %s, want %s", got.TotalIncome, tt.wantIncome)
			}
			if !got.AverageExpenseAmount.Equal(d(tt.wantAvg)) {
				t.Errorf("AverageExpenseAmount = %s, want %s", got.AverageExpenseAmount, tt.wantAvg)
			}
			if got.TotalIncome.IsNegative() {
				t.Errorf("TotalIncome is negative: %s", got.TotalIncome)
			}
		})
	}
}

func TestComputeKPIs_TopMerchants(t *testing.T) {
	tests := []struct {
		name string
		txs  []CategorizedTransaction
		want []string
	}{
		{
			name: "ranked by summed spend",
			txs: []CategorizedTransaction{
				tx("Grocer", "30", CategoryShopping),
				tx("Cinema", "12", CategoryOther),
				tx("Power", "80", CategoryUtilities),
				tx("Grocer", "60", CategoryShopping),
				tx("Cafe", "4", CategoryDining),
			},
			want: []string{"Grocer", "Power", "Cinema"},
		},
		{
			name: "ties keep first-seen order",
			txs: []CategorizedTransaction{
				tx("Beta", "10", CategoryShopping),
				tx("Alpha", "10", CategoryShopping),
				tx("Gamma", "10", CategoryShopping),
				tx("Delta", "10", CategoryShopping),
			},
			want: []string{"Beta", "Alpha", "Gamma"},
		},
		{
			name: "income merchants are excluded",
			txs: []CategorizedTransaction{
				tx("Employer", "-3000", CategoryIncome),
				tx("Cafe", "3", CategoryDining),
			},
			want: []string{"Cafe"},
		},
		{
			name: "refund reduces merchant spend only through expenses",
			txs: []CategorizedTransaction{
				tx("Shop", "50", CategoryShopping),
				tx("Shop", "-50", CategoryIncome),
				tx("Cafe", "20", CategoryDining),
			},
			want: []string{"Shop", "Cafe"},
		},
		{
			name: "tie order counts a merchant's first refund row",
			txs: []CategorizedTransaction{
				tx("Shop", "-10", CategoryIncome),
				tx("Cafe", "20", CategoryDining),
				tx("Shop", "20", CategoryShopping),
			},
			want: []string{"Shop", "Cafe"},
		},
		{
			name: "no expenses",
			txs:  nil,
			want: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeKPIs(tt.txs).Top3Merchants
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Top3Merchants mismatch (-want +got):\n%s", diff)
			}
			if len(got) > TopMerchantsLimit {
				t.Errorf("len(Top3Merchants) = %d, want <= %d", len(got), TopMerchantsLimit)
			}
		})
	}
}

func TestKPIReport_JSONShape(t *testing.T) {
	report := ComputeKPIs([]CategorizedTransaction{tx("CoffeeCo", "5.00", CategoryDining)})

	data, err := json.Marshal(report)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	var generic map[string]any
	if err := json.Unmarshal(data, &generic); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	for _, key := range []string{"total_spend", "total_income", "top_3_merchants", "average_expense_amount"} {
		if _, ok := generic[key]; !ok {
			t.Errorf("missing key %q in %s", key, data)
		}
	}
	if _, ok := generic["total_spend"].(float64); !ok {
		t.Errorf("total_spend is %T, want JSON number", generic["total_spend"])
	}
}

func TestParseCategory(t *testing.T) {
	tests := []struct {
		input   string
		want    Category
		wantErr bool
	}{
		{"Dining", CategoryDining, false},
		{"dining", CategoryDining, false},
		{"  INCOME ", CategoryIncome, false},
		{"Utilities", CategoryUtilities, false},
		{"Groceries", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseCategory(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseCategory(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseCategory(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestCategorizedTransaction_JSONIsFlat(t *testing.T) {
	var got CategorizedSet
	raw := `{"categorized":[{"date":"2024-01-01","merchant":"CoffeeCo","amount":5.00,"category":"Dining"}]}`
	if err := json.Unmarshal([]byte(raw), &got); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if len(got.Categorized) != 1 {
		t.Fatalf("len = %d", len(got.Categorized))
	}
	c := got.Categorized[0]
	if c.Merchant != "CoffeeCo" || c.Category != CategoryDining || !c.Amount.Equal(d("5")) {
		t.Errorf("decoded = %+v", c)
	}
}

func TestDefaultPlan(t *testing.T) {
	plan := DefaultPlan()
	steps, ok := plan["plan_steps"].([]any)
	if !ok || len(steps) != 4 {
		t.Errorf("DefaultPlan() = %v", plan)
	}
}
