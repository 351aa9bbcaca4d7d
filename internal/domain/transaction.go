package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

func init() {
	// Amounts travel to the model and into artifacts as JSON numbers, the
	// same shape the ledger and the model replies use.
	decimal.MarshalJSONWithoutQuotes = true
}

// Transaction represents one row of the input ledger.
// Amount sign convention: positive = expense, negative = income.
type Transaction struct {
	Date        string          `json:"date"`
	Merchant    string          `json:"merchant"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description,omitempty"`
}

// IsExpense reports whether the transaction is money going out.
func (t Transaction) IsExpense() bool {
	return t.Amount.IsPositive()
}

// IsIncome reports whether the transaction is money coming in.
func (t Transaction) IsIncome() bool {
	return t.Amount.IsNegative()
}

// Category is the closed set of labels the categorize stage may assign.
type Category string

const (
	CategoryShopping  Category = "Shopping"
	CategoryDining    Category = "Dining"
	CategoryUtilities Category = "Utilities"
	CategoryIncome    Category = "Income"
	CategoryOther     Category = "Other"
)

// Categories lists the allowed categories in prompt order.
var Categories = []Category{
	CategoryShopping,
	CategoryDining,
	CategoryUtilities,
	CategoryIncome,
	CategoryOther,
}

// ParseCategory maps a model-provided label onto a Category.
// Comparison ignores case and surrounding whitespace.
func ParseCategory(s string) (Category, error) {
	norm := strings.ToUpper(strings.TrimSpace(s))
	for _, c := range Categories {
		if strings.ToUpper(string(c)) == norm {
			return c, nil
		}
	}
	return "", fmt.Errorf("invalid category: %q", s)
}

// CategorizedTransaction is a Transaction plus the category assigned by the model.
type CategorizedTransaction struct {
	Transaction
	Category Category `json:"category"`
}

// CategorizedSet is the payload stored in the categorized slot.
type CategorizedSet struct {
	Categorized []CategorizedTransaction `json:"categorized"`
}
