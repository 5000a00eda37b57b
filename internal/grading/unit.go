package grading

import (
	"math"
	"sort"

	"github.com/noah-isme/sma-gradebook-api/internal/models"
)

// FieldContract is what the score form renders for one component.
type FieldContract struct {
	VariableCode string   `json:"variable_code"`
	Label        string   `json:"label"`
	EffectiveMax float64  `json:"effective_max"`
	Value        *float64 `json:"value,omitempty"`
}

// EffectiveMax returns the maximum a component may hold given the other values of its period.
// Unknown codes have a maximum of zero.
func EffectiveMax(period models.PeriodConfig, scores map[string]float64, code string) float64 {
	comp, ok := period.Component(code)
	if !ok {
		return 0
	}
	limit := nonNegative(comp.MaxValue)
	for _, rule := range period.ClampRules {
		if rule.TargetCode != code {
			continue
		}
		trigger, ok := scores[rule.TriggerCode]
		if !ok || !isFinite(trigger) || trigger <= 0 {
			continue
		}
		if reduced := nonNegative(rule.ReducedMax); reduced < limit {
			limit = reduced
		}
	}
	return limit
}

// ComputeUnitTotal reduces one period's raw scores to the period total on its displayed scale.
// Undeclared keys and non-finite values are ignored, declared values are clamped to their
// effective maximum, and the sum is divided by ceiling/TotalPoints (2 for the 20-point
// regular periods, 1 for exam periods whose ceiling already equals the scale).
func ComputeUnitTotal(scores map[string]float64, period models.PeriodConfig) float64 {
	sum := 0.0
	for _, comp := range period.Components {
		value, ok := scores[comp.VariableCode]
		if !ok || !isFinite(value) {
			continue
		}
		sum += clamp(value, 0, EffectiveMax(period, scores, comp.VariableCode))
	}
	return toScale(sum, period)
}

// Fields lists the form contract of a period in display order.
func Fields(period models.PeriodConfig, scores map[string]float64) []FieldContract {
	components := make([]models.GradeComponent, len(period.Components))
	copy(components, period.Components)
	sort.SliceStable(components, func(i, j int) bool { return components[i].Order < components[j].Order })

	fields := make([]FieldContract, 0, len(components))
	for _, comp := range components {
		field := FieldContract{
			VariableCode: comp.VariableCode,
			Label:        comp.Name,
			EffectiveMax: EffectiveMax(period, scores, comp.VariableCode),
		}
		if value, ok := scores[comp.VariableCode]; ok && isFinite(value) {
			v := value
			field.Value = &v
		}
		fields = append(fields, field)
	}
	return fields
}

func toScale(sum float64, period models.PeriodConfig) float64 {
	ceiling := Ceiling(period)
	if period.TotalPoints <= 0 || ceiling <= 0 || ceiling == period.TotalPoints {
		return sum
	}
	return sum / (ceiling / period.TotalPoints)
}

func clamp(value, lower, upper float64) float64 {
	if value < lower {
		return lower
	}
	if value > upper {
		return upper
	}
	return value
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
