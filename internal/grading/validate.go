package grading

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/noah-isme/sma-gradebook-api/internal/models"
)

// ConfigError reports a configuration that the engine cannot compute with.
type ConfigError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid grading config: %s: %s", e.Field, e.Message)
}

var variableCodePattern = regexp.MustCompile(`^[A-Za-z_]+$`)

// ValidateConfig checks the structural rules every computation relies on. A custom formula
// must parse, reference only names of the configuration scope and evaluate at the bounds;
// its failures are returned as *FormulaError.
func ValidateConfig(cfg *models.GradingConfig) error {
	if cfg == nil {
		return &ConfigError{Field: "config", Message: "is required"}
	}

	switch cfg.CalculationType {
	case models.CalculationSimpleAverage, models.CalculationWeightedAverage, models.CalculationTotalSum, models.CalculationCustomFormula:
	default:
		return &ConfigError{Field: "calculation_type", Message: fmt.Sprintf("unsupported value %q", cfg.CalculationType)}
	}
	switch cfg.RoundingMode {
	case "", models.RoundingHalfUp, models.RoundingHalfDown, models.RoundingHalfEven, models.RoundingFloor, models.RoundingCeil:
	default:
		return &ConfigError{Field: "rounding_mode", Message: fmt.Sprintf("unsupported value %q", cfg.RoundingMode)}
	}
	if cfg.RoundingDecimals < 0 || cfg.RoundingDecimals > 6 {
		return &ConfigError{Field: "rounding_decimals", Message: "must be between 0 and 6"}
	}

	if err := validatePeriods(cfg); err != nil {
		return err
	}

	if cfg.CalculationType == models.CalculationCustomFormula {
		if err := validateFormula(cfg); err != nil {
			return err
		}
	}
	return nil
}

func validatePeriods(cfg *models.GradingConfig) error {
	if len(cfg.RegularPeriods()) == 0 {
		return &ConfigError{Field: "periods", Message: "at least one regular period is required"}
	}

	ids := make(map[string]bool, len(cfg.Periods))
	numbers := make(map[int]bool, len(cfg.Periods))
	kinds := make(map[models.PeriodKind]int)
	for i, period := range cfg.Periods {
		field := fmt.Sprintf("periods[%d]", i)
		if period.ID == "" {
			return &ConfigError{Field: field + ".id", Message: "is required"}
		}
		if ids[period.ID] {
			return &ConfigError{Field: field + ".id", Message: fmt.Sprintf("duplicate period id %q", period.ID)}
		}
		ids[period.ID] = true
		if period.Number < 1 {
			return &ConfigError{Field: field + ".number", Message: "must be positive"}
		}
		if numbers[period.Number] {
			return &ConfigError{Field: field + ".number", Message: fmt.Sprintf("duplicate period number %d", period.Number)}
		}
		numbers[period.Number] = true
		if period.Weight < 0 {
			return &ConfigError{Field: field + ".weight", Message: "must be at least 1, or 0 for the default"}
		}

		kind := period.KindOrDefault()
		switch kind {
		case models.PeriodRegular, models.PeriodFinalExam, models.PeriodRecovery:
		default:
			return &ConfigError{Field: field + ".kind", Message: fmt.Sprintf("unsupported value %q", period.Kind)}
		}
		kinds[kind]++
		if kind != models.PeriodRegular && kinds[kind] > 1 {
			return &ConfigError{Field: field + ".kind", Message: fmt.Sprintf("only one %s period is allowed", kind)}
		}

		if err := validateComponents(field, period); err != nil {
			return err
		}
	}
	return nil
}

func validateComponents(field string, period models.PeriodConfig) error {
	if len(period.Components) == 0 {
		return &ConfigError{Field: field + ".components", Message: "at least one component is required"}
	}
	codes := make(map[string]bool, len(period.Components))
	for j, comp := range period.Components {
		compField := fmt.Sprintf("%s.components[%d]", field, j)
		if !variableCodePattern.MatchString(comp.VariableCode) {
			return &ConfigError{Field: compField + ".variable_code", Message: "must contain letters or underscores only"}
		}
		if comp.VariableCode == PeriodTotalPrefix {
			return &ConfigError{Field: compField + ".variable_code", Message: fmt.Sprintf("%q is reserved for period totals", PeriodTotalPrefix)}
		}
		if codes[comp.VariableCode] {
			return &ConfigError{Field: compField + ".variable_code", Message: fmt.Sprintf("duplicate variable code %q", comp.VariableCode)}
		}
		codes[comp.VariableCode] = true
		if comp.MaxValue < 0 {
			return &ConfigError{Field: compField + ".max_value", Message: "must not be negative"}
		}
		if comp.Weight < 1 {
			return &ConfigError{Field: compField + ".weight", Message: "must be at least 1"}
		}
	}
	for k, rule := range period.ClampRules {
		ruleField := fmt.Sprintf("%s.clamp_rules[%d]", field, k)
		if !codes[rule.TriggerCode] {
			return &ConfigError{Field: ruleField + ".trigger_code", Message: fmt.Sprintf("unknown component %q", rule.TriggerCode)}
		}
		if !codes[rule.TargetCode] {
			return &ConfigError{Field: ruleField + ".target_code", Message: fmt.Sprintf("unknown component %q", rule.TargetCode)}
		}
		if rule.TriggerCode == rule.TargetCode {
			return &ConfigError{Field: ruleField, Message: "a component cannot clamp itself"}
		}
		if rule.ReducedMax < 0 {
			return &ConfigError{Field: ruleField + ".reduced_max", Message: "must not be negative"}
		}
	}
	return nil
}

func validateFormula(cfg *models.GradingConfig) error {
	formula, err := ParseFormula(cfg.CustomFormula)
	if err != nil {
		return err
	}
	scope := BuildScope(cfg, nil, nil)
	for _, name := range formula.Variables() {
		if _, ok := scope[name]; !ok {
			return &FormulaError{Kind: FormulaMissingVariable, Offset: variableOffset(cfg.CustomFormula, name), Variable: name, Message: "unknown variable"}
		}
	}
	if _, _, err := AnnualBounds(cfg); err != nil {
		var formulaErr *FormulaError
		if errors.As(err, &formulaErr) {
			return formulaErr
		}
		return err
	}
	return nil
}

func variableOffset(source, name string) int {
	tokens, err := tokenize(source)
	if err != nil {
		return 0
	}
	for _, tok := range tokens {
		if tok.kind == tokIdent && tok.text == name {
			return tok.offset
		}
	}
	return 0
}
