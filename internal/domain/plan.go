package domain

// Plan is the analysis plan produced by the first stage. Its shape is up to
// the model; later stages only embed it in prompts.
type Plan map[string]any

// DefaultPlan is used when no plan is available.
func DefaultPlan() Plan {
	return Plan{
		"plan_steps": []any{"Categorize", "Calculate KPIs", "Summarize", "Reflect"},
	}
}
