package notionsync

import (
	"strings"
	"time"

	"github.com/jomei/notionapi"
	"github.com/shopspring/decimal"
)

// Property names of the reports database.
const (
	PropReport         = "Report"
	PropGenerated      = "Generated"
	PropTotalSpend     = "Total Spend"
	PropTotalIncome    = "Total Income"
	PropAverageExpense = "Average Expense"
	PropTopMerchants   = "Top Merchants"
	PropSummary        = "Summary"
	PropReflection     = "Reflection"
)

// maxRichTextLen is Notion's limit for a single rich text object.
const maxRichTextLen = 2000

// ReportToNotionProperties converts a Report to page properties.
func ReportToNotionProperties(r Report) notionapi.Properties {
	props := notionapi.Properties{
		PropReport: notionapi.TitleProperty{
			Title: richText(r.Name),
		},
		PropTotalSpend:     notionapi.NumberProperty{Number: number(r.KPIs.TotalSpend)},
		PropTotalIncome:    notionapi.NumberProperty{Number: number(r.KPIs.TotalIncome)},
		PropAverageExpense: notionapi.NumberProperty{Number: number(r.KPIs.AverageExpenseAmount)},
		PropSummary:        notionapi.RichTextProperty{RichText: richText(r.Summary)},
	}

	merchants := make([]notionapi.Option, 0, len(r.KPIs.Top3Merchants))
	for _, m := range r.KPIs.Top3Merchants {
		// Commas are not allowed in select option names.
		merchants = append(merchants, notionapi.Option{Name: strings.ReplaceAll(m, ",", " ")})
	}
	props[PropTopMerchants] = notionapi.MultiSelectProperty{MultiSelect: merchants}

	if r.Reflection != "" {
		props[PropReflection] = notionapi.RichTextProperty{RichText: richText(r.Reflection)}
	}

	if !r.GeneratedAt.IsZero() {
		d := notionapi.Date(r.GeneratedAt.UTC().Truncate(time.Second))
		props[PropGenerated] = notionapi.DateProperty{
			Date: &notionapi.DateObject{Start: &d},
		}
	}

	return props
}

// richText splits s into rich text objects no longer than maxRichTextLen.
func richText(s string) []notionapi.RichText {
	var out []notionapi.RichText
	runes := []rune(s)
	for len(runes) > 0 {
		n := min(len(runes), maxRichTextLen)
		out = append(out, notionapi.RichText{
			Type: notionapi.ObjectTypeText,
			Text: &notionapi.Text{Content: string(runes[:n])},
		})
		runes = runes[n:]
	}
	if out == nil {
		out = []notionapi.RichText{}
	}
	return out
}

func number(d decimal.Decimal) float64 {
	return d.InexactFloat64()
}

// extractReportName reads the title of a report page.
func extractReportName(page notionapi.Page) string {
	if prop, ok := page.Properties[PropReport]; ok {
		if title, ok := prop.(*notionapi.TitleProperty); ok {
			var b strings.Builder
			for _, t := range title.Title {
				b.WriteString(t.PlainText)
			}
			return b.String()
		}
	}
	return ""
}
