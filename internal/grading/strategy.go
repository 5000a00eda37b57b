package grading

import (
	"fmt"

	"github.com/noah-isme/sma-gradebook-api/internal/models"
)

// ComputeAnnualScore aggregates period totals (aligned with cfg.RegularPeriods()) into the
// annual score and rounds it once. A custom formula that fails to parse or evaluate returns
// its *FormulaError; no other strategy is substituted.
func ComputeAnnualScore(periodTotals []float64, raw models.RawScoreSet, cfg *models.GradingConfig) (float64, error) {
	value, err := aggregate(periodTotals, raw, cfg)
	if err != nil {
		return 0, err
	}
	return Round(value, cfg.RoundingMode, cfg.RoundingDecimals), nil
}

// BuildScope exposes every declared component as <code><period number> and every period
// total as U<period number>. Declared components without an entry are 0.
func BuildScope(cfg *models.GradingConfig, periodTotals []float64, raw models.RawScoreSet) map[string]float64 {
	scope := make(map[string]float64)
	regularIndex := make(map[string]int)
	for i, p := range cfg.RegularPeriods() {
		regularIndex[p.ID] = i
	}

	for _, period := range cfg.Periods {
		values := raw[period.ID].Values
		for _, comp := range period.Components {
			value := 0.0
			if v, ok := values[comp.VariableCode]; ok && isFinite(v) {
				value = clamp(v, 0, EffectiveMax(period, values, comp.VariableCode))
			}
			scope[VariableName(comp.VariableCode, period.Number)] = value
		}
		total := ComputeUnitTotal(values, period)
		if i, ok := regularIndex[period.ID]; ok && i < len(periodTotals) {
			total = periodTotals[i]
		}
		scope[PeriodVariable(period.Number)] = total
	}
	return scope
}

// AnnualBounds derives the theoretical maximum annual score and the passing floor by running
// the configured strategy over every regular period at its maximum and at the passing grade.
// Neither value is rounded.
func AnnualBounds(cfg *models.GradingConfig) (maxAnnual, passFloor float64, err error) {
	periods := cfg.RegularPeriods()
	maxTotals := make([]float64, len(periods))
	passTotals := make([]float64, len(periods))
	maxRaw := make(models.RawScoreSet, len(periods))
	passRaw := make(models.RawScoreSet, len(periods))

	for i, period := range periods {
		scale := Scale(period)
		maxTotals[i] = scale
		passTotals[i] = cfg.Approval.PassingGrade

		fraction := 0.0
		if scale > 0 {
			fraction = cfg.Approval.PassingGrade / scale
		}
		triggers := make(map[string]bool, len(period.ClampRules))
		for _, rule := range period.ClampRules {
			triggers[rule.TriggerCode] = true
		}
		maxValues := make(map[string]float64, len(period.Components))
		passValues := make(map[string]float64, len(period.Components))
		for _, comp := range period.Components {
			if triggers[comp.VariableCode] {
				continue
			}
			maxValues[comp.VariableCode] = comp.MaxValue
			passValues[comp.VariableCode] = comp.MaxValue * fraction
		}
		maxRaw[period.ID] = models.PeriodScores{Values: maxValues}
		passRaw[period.ID] = models.PeriodScores{Values: passValues}
	}

	if maxAnnual, err = aggregate(maxTotals, maxRaw, cfg); err != nil {
		return 0, 0, err
	}
	if passFloor, err = aggregate(passTotals, passRaw, cfg); err != nil {
		return 0, 0, err
	}
	return maxAnnual, passFloor, nil
}

func aggregate(periodTotals []float64, raw models.RawScoreSet, cfg *models.GradingConfig) (float64, error) {
	switch cfg.CalculationType {
	case models.CalculationSimpleAverage:
		if len(periodTotals) == 0 {
			return 0, nil
		}
		sum := 0.0
		for _, total := range periodTotals {
			sum += total
		}
		return sum / float64(len(periodTotals)), nil
	case models.CalculationWeightedAverage:
		periods := cfg.RegularPeriods()
		weighted, weights := 0.0, 0.0
		for i, total := range periodTotals {
			weight := 1.0
			if i < len(periods) {
				weight = periods[i].WeightOrDefault()
			}
			weighted += total * weight
			weights += weight
		}
		if weights == 0 {
			return 0, nil
		}
		return weighted / weights, nil
	case models.CalculationTotalSum:
		sum := 0.0
		for _, total := range periodTotals {
			sum += total
		}
		return sum, nil
	case models.CalculationCustomFormula:
		formula, err := ParseFormula(cfg.CustomFormula)
		if err != nil {
			return 0, err
		}
		return formula.Evaluate(BuildScope(cfg, periodTotals, raw))
	default:
		return 0, &ConfigError{Field: "calculation_type", Message: fmt.Sprintf("unsupported calculation type %q", cfg.CalculationType)}
	}
}
