package pipeline

import (
	"fmt"
	"strings"
)

// Stage identifies one step of the fixed five-stage pipeline.
type Stage string

const (
	StagePlan       Stage = "plan"
	StageCategorize Stage = "categorize"
	StageKPIs       Stage = "kpis"
	StageSummarize  Stage = "summarize"
	StageReflect    Stage = "reflect"
)

// Stages lists the stages in execution order.
var Stages = []Stage{StagePlan, StageCategorize, StageKPIs, StageSummarize, StageReflect}

var stageAliases = map[string]Stage{
	"compute_kpis": StageKPIs,
	"compute-kpis": StageKPIs,
	"summary":      StageSummarize,
	"reflection":   StageReflect,
}

// ParseStage accepts a stage name or one of its aliases.
func ParseStage(name string) (Stage, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	for _, s := range Stages {
		if string(s) == n {
			return s, nil
		}
	}
	if s, ok := stageAliases[n]; ok {
		return s, nil
	}
	return "", fmt.Errorf("unknown stage %q (want one of plan, categorize, kpis, summarize, reflect)", name)
}

// KPIMode selects how the KPI stage derives its figures.
type KPIMode string

const (
	// KPIModeModel asks the model and cross-checks against local arithmetic.
	KPIModeModel KPIMode = "model"
	// KPIModeLocal computes the KPIs without a model call.
	KPIModeLocal KPIMode = "local"
)
