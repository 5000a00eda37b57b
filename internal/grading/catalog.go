// Package grading turns raw component scores into period totals, an annual score and a
// promotion status. Every function here is pure: it reads its arguments, returns derived
// values and keeps no state between calls.
package grading

import (
	"fmt"

	"github.com/noah-isme/sma-gradebook-api/internal/models"
)

// PeriodTotalPrefix names period totals inside formula scopes (U1, U2, ...).
const PeriodTotalPrefix = "U"

// VariableName returns the formula name of a component in a period, e.g. Q1.
func VariableName(code string, periodNumber int) string {
	return fmt.Sprintf("%s%d", code, periodNumber)
}

// PeriodVariable returns the formula name of a period total, e.g. U1.
func PeriodVariable(periodNumber int) string {
	return VariableName(PeriodTotalPrefix, periodNumber)
}

// Ceiling is the highest raw sum a period can reach. Clamp rules are taken into account:
// with every trigger at zero the targets keep their full maximum, with every trigger at
// its maximum the targets drop to the reduced maximum. The larger of both sums wins.
func Ceiling(period models.PeriodConfig) float64 {
	triggers := make(map[string]bool, len(period.ClampRules))
	reduced := make(map[string]float64, len(period.ClampRules))
	for _, rule := range period.ClampRules {
		trigger, ok := period.Component(rule.TriggerCode)
		if !ok || trigger.MaxValue <= 0 {
			continue
		}
		triggers[rule.TriggerCode] = true
		if current, ok := reduced[rule.TargetCode]; !ok || rule.ReducedMax < current {
			reduced[rule.TargetCode] = rule.ReducedMax
		}
	}

	inactive, active := 0.0, 0.0
	for _, comp := range period.Components {
		full := nonNegative(comp.MaxValue)
		if triggers[comp.VariableCode] {
			active += full
			continue
		}
		inactive += full
		if limit, ok := reduced[comp.VariableCode]; ok && limit < full {
			active += nonNegative(limit)
		} else {
			active += full
		}
	}
	if len(triggers) == 0 || inactive >= active {
		return inactive
	}
	return active
}

// Scale is the displayed scale of a period: TotalPoints when set, the raw ceiling otherwise.
func Scale(period models.PeriodConfig) float64 {
	if period.TotalPoints > 0 {
		return period.TotalPoints
	}
	return Ceiling(period)
}

// DefaultConfig returns the legacy catalog: three regular periods worth 20 raw points shown
// on a 0-10 scale, a final exam and a recovery exam, summed into a 0-30 annual score.
// Its Version is 0, meaning it was never stored.
func DefaultConfig(institutionID string) *models.GradingConfig {
	regular := func(number int, withTalent bool) models.PeriodConfig {
		components := []models.GradeComponent{
			{Name: "Qualitative", MaxValue: 2, Weight: 1, VariableCode: "Q", Order: 1, IsBuiltIn: true},
			{Name: "Simulado", MaxValue: 2, Weight: 1, VariableCode: "S", Order: 2, IsBuiltIn: true},
			{Name: "Test", MaxValue: 4, Weight: 1, VariableCode: "T", Order: 3, IsBuiltIn: true},
			{Name: "Gincana", MaxValue: 2, Weight: 1, VariableCode: "G", Order: 4, IsBuiltIn: true},
		}
		var rules []models.ClampRule
		if withTalent {
			components = append(components, models.GradeComponent{Name: "Talent Show", MaxValue: 2, Weight: 1, VariableCode: "TS", Order: 5, IsBuiltIn: true})
			rules = []models.ClampRule{{TriggerCode: "TS", TargetCode: "P", ReducedMax: 8}}
		}
		components = append(components, models.GradeComponent{Name: "Exam", MaxValue: 10, Weight: 1, VariableCode: "P", Order: 6, IsBuiltIn: true})
		for i := range components {
			components[i].ID = fmt.Sprintf("u%d-%s", number, components[i].VariableCode)
		}
		return models.PeriodConfig{
			ID:          fmt.Sprintf("unit-%d", number),
			Number:      number,
			Name:        fmt.Sprintf("Unit %d", number),
			Kind:        models.PeriodRegular,
			Weight:      1,
			Components:  components,
			ClampRules:  rules,
			TotalPoints: 10,
		}
	}

	return &models.GradingConfig{
		InstitutionID:    institutionID,
		CalculationType:  models.CalculationTotalSum,
		RoundingMode:     models.RoundingHalfUp,
		RoundingDecimals: 1,
		Periods: []models.PeriodConfig{
			regular(1, false),
			regular(2, false),
			regular(3, true),
			{
				ID:          "final-exam",
				Number:      4,
				Name:        "Final Exam",
				Kind:        models.PeriodFinalExam,
				Components:  []models.GradeComponent{{ID: "final-F", Name: "Final Exam", MaxValue: 10, Weight: 1, VariableCode: "F", Order: 1, IsBuiltIn: true}},
				TotalPoints: 10,
			},
			{
				ID:          "recovery",
				Number:      5,
				Name:        "Recovery",
				Kind:        models.PeriodRecovery,
				Components:  []models.GradeComponent{{ID: "recovery-R", Name: "Recovery Exam", MaxValue: 10, Weight: 1, VariableCode: "R", Order: 1, IsBuiltIn: true}},
				TotalPoints: 10,
			},
		},
		Approval: models.ApprovalRules{PassingGrade: 6, CouncilMaxBonus: 1},
		FinalExam: models.FinalExamRules{
			Enabled:       true,
			TriggerValue:  8,
			TriggerBasis:  models.TriggerPassFloor,
			ThresholdMode: models.ThresholdDelta,
			MaxValue:      10,
		},
		Recovery: models.RecoveryRules{
			Enabled:             true,
			ClearPreviousScores: true,
			MinScore:            0,
			MaxScore:            10,
		},
	}
}

func nonNegative(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}
