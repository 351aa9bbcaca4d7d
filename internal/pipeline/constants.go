package pipeline

// Output budgets per stage, in model tokens.
const (
	MaxTokensPlan       = 500
	MaxTokensCategorize = 1000
	MaxTokensKPIs       = 1000
	MaxTokensSummary    = 300
	MaxTokensReflection = 500
)

// Prompt previews: later stages only see the head of the categorized list.
const (
	SummaryPreviewSize    = 5
	ReflectionPreviewSize = 3
)

// SummaryWordLimit is the length the summary prompt asks for. Longer
// summaries are kept but reported as a warning.
const SummaryWordLimit = 100

// categorizePreviewSize is how many categorized rows are echoed to the log.
const categorizePreviewSize = 3
