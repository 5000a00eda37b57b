package models

import (
	"sort"
	"time"
)

// CalculationType selects how period totals become an annual score.
type CalculationType string

const (
	// CalculationSimpleAverage is the arithmetic mean of period totals.
	CalculationSimpleAverage CalculationType = "simple_average"
	// CalculationWeightedAverage weighs each period total by the period weight.
	CalculationWeightedAverage CalculationType = "weighted_average"
	// CalculationTotalSum adds period totals without dividing.
	CalculationTotalSum CalculationType = "total_sum"
	// CalculationCustomFormula evaluates an institution-authored formula.
	CalculationCustomFormula CalculationType = "custom_formula"
)

// RoundingMode controls how the annual score is rounded.
type RoundingMode string

const (
	RoundingHalfUp   RoundingMode = "half_up"
	RoundingHalfDown RoundingMode = "half_down"
	RoundingHalfEven RoundingMode = "half_even"
	RoundingFloor    RoundingMode = "floor"
	RoundingCeil     RoundingMode = "ceil"
)

// PeriodKind distinguishes regular grading periods from exam periods.
type PeriodKind string

const (
	PeriodRegular   PeriodKind = "regular"
	PeriodFinalExam PeriodKind = "final_exam"
	PeriodRecovery  PeriodKind = "recovery"
)

// TriggerBasis picks the reference used to measure the final-exam deficit.
type TriggerBasis string

const (
	// TriggerPassFloor measures the deficit as passFloor - base.
	TriggerPassFloor TriggerBasis = "pass_floor"
	// TriggerMaxAnnual measures the deficit as maxAnnual - base.
	TriggerMaxAnnual TriggerBasis = "max_annual"
)

// ThresholdMode picks what a final-exam score is compared against.
type ThresholdMode string

const (
	// ThresholdDelta compares the exam score with the points still needed.
	ThresholdDelta ThresholdMode = "delta"
	// ThresholdAbsolute compares the exam score with FinalExamRules.MinScoreToPass.
	ThresholdAbsolute ThresholdMode = "absolute"
)

// PromotionStatus is the closed vocabulary consumed by reports and status badges.
type PromotionStatus string

const (
	StatusDirectApproved   PromotionStatus = "DIRECT_APPROVED"
	StatusFinalPending     PromotionStatus = "FINAL_PENDING"
	StatusRecoveryPending  PromotionStatus = "RECOVERY_PENDING"
	StatusFinalApproved    PromotionStatus = "FINAL_APPROVED"
	StatusRecoveryApproved PromotionStatus = "RECOVERY_APPROVED"
	StatusFailed           PromotionStatus = "FAILED"
)

// Passing reports whether the status is a terminal passing state.
func (s PromotionStatus) Passing() bool {
	return s == StatusDirectApproved || s == StatusFinalApproved || s == StatusRecoveryApproved
}

// GradeComponent describes one scored item inside a period.
type GradeComponent struct {
	ID           string  `json:"id" yaml:"id"`
	Name         string  `json:"name" yaml:"name" validate:"required"`
	MaxValue     float64 `json:"max_value" yaml:"max_value" validate:"gte=0"`
	Weight       int     `json:"weight" yaml:"weight" validate:"gte=1"`
	VariableCode string  `json:"variable_code" yaml:"variable_code" validate:"required,max=8"`
	Order        int     `json:"order" yaml:"order"`
	IsBuiltIn    bool    `json:"is_built_in" yaml:"is_built_in"`
}

// ClampRule lowers TargetCode's maximum to ReducedMax while TriggerCode holds a positive value.
type ClampRule struct {
	TriggerCode string  `json:"trigger_code" yaml:"trigger_code" validate:"required"`
	TargetCode  string  `json:"target_code" yaml:"target_code" validate:"required"`
	ReducedMax  float64 `json:"reduced_max" yaml:"reduced_max" validate:"gte=0"`
}

// PeriodConfig declares the components scored in one grading period.
type PeriodConfig struct {
	ID          string           `json:"id" yaml:"id" validate:"required"`
	Number      int              `json:"number" yaml:"number" validate:"gte=1"`
	Name        string           `json:"name" yaml:"name" validate:"required"`
	Kind        PeriodKind       `json:"kind" yaml:"kind" validate:"omitempty,oneof=regular final_exam recovery"`
	Weight      int              `json:"weight" yaml:"weight" validate:"omitempty,gte=1"`
	Components  []GradeComponent `json:"components" yaml:"components" validate:"required,min=1,dive"`
	ClampRules  []ClampRule      `json:"clamp_rules,omitempty" yaml:"clamp_rules" validate:"dive"`
	TotalPoints float64          `json:"total_points" yaml:"total_points" validate:"gte=0"`
}

// WeightOrDefault returns the period weight. Zero means unset and counts as 1.
func (p PeriodConfig) WeightOrDefault() float64 {
	if p.Weight <= 0 {
		return 1
	}
	return float64(p.Weight)
}

// KindOrDefault treats an empty kind as a regular period.
func (p PeriodConfig) KindOrDefault() PeriodKind {
	if p.Kind == "" {
		return PeriodRegular
	}
	return p.Kind
}

// Component looks up a component by variable code.
func (p PeriodConfig) Component(code string) (GradeComponent, bool) {
	for _, comp := range p.Components {
		if comp.VariableCode == code {
			return comp, true
		}
	}
	return GradeComponent{}, false
}

// ApprovalRules holds the passing grade and class council bonus settings.
type ApprovalRules struct {
	PassingGrade        float64 `json:"passing_grade" yaml:"passing_grade" validate:"gte=0"`
	CouncilBonusEnabled bool    `json:"council_bonus_enabled" yaml:"council_bonus_enabled"`
	CouncilMaxBonus     float64 `json:"council_max_bonus" yaml:"council_max_bonus" validate:"gte=0"`
}

// FinalExamRules configures the final exam phase.
type FinalExamRules struct {
	Enabled        bool          `json:"enabled" yaml:"enabled"`
	TriggerValue   float64       `json:"trigger_value" yaml:"trigger_value" validate:"gte=0"`
	TriggerBasis   TriggerBasis  `json:"trigger_basis,omitempty" yaml:"trigger_basis" validate:"omitempty,oneof=pass_floor max_annual"`
	ThresholdMode  ThresholdMode `json:"threshold_mode,omitempty" yaml:"threshold_mode" validate:"omitempty,oneof=delta absolute"`
	MinScoreToPass float64       `json:"min_score_to_pass" yaml:"min_score_to_pass" validate:"gte=0"`
	MaxValue       float64       `json:"max_value" yaml:"max_value" validate:"gte=0"`
}

// RecoveryRules configures the recovery phase.
type RecoveryRules struct {
	Enabled             bool    `json:"enabled" yaml:"enabled"`
	ClearPreviousScores bool    `json:"clear_previous_scores" yaml:"clear_previous_scores"`
	MinScore            float64 `json:"min_score" yaml:"min_score" validate:"gte=0"`
	MaxScore            float64 `json:"max_score" yaml:"max_score" validate:"gte=0"`
}

// GradingConfig is the per-institution grading configuration.
type GradingConfig struct {
	InstitutionID    string          `json:"institution_id" yaml:"institution_id"`
	CalculationType  CalculationType `json:"calculation_type" yaml:"calculation_type" validate:"required,oneof=simple_average weighted_average total_sum custom_formula"`
	CustomFormula    string          `json:"custom_formula,omitempty" yaml:"custom_formula" validate:"required_if=CalculationType custom_formula"`
	RoundingMode     RoundingMode    `json:"rounding_mode" yaml:"rounding_mode" validate:"omitempty,oneof=half_up half_down half_even floor ceil"`
	RoundingDecimals int             `json:"rounding_decimals" yaml:"rounding_decimals" validate:"gte=0,lte=6"`
	Periods          []PeriodConfig  `json:"periods" yaml:"periods" validate:"required,min=1,dive"`
	Approval         ApprovalRules   `json:"approval" yaml:"approval"`
	FinalExam        FinalExamRules  `json:"final_exam" yaml:"final_exam"`
	Recovery         RecoveryRules   `json:"recovery" yaml:"recovery"`
	Version          int             `json:"version" yaml:"version"`
	UpdatedAt        time.Time       `json:"updated_at" yaml:"-"`
}

// RegularPeriods returns the periods that feed the annual score, ordered by number.
func (c *GradingConfig) RegularPeriods() []PeriodConfig {
	periods := make([]PeriodConfig, 0, len(c.Periods))
	for _, p := range c.Periods {
		if p.KindOrDefault() == PeriodRegular {
			periods = append(periods, p)
		}
	}
	sort.SliceStable(periods, func(i, j int) bool { return periods[i].Number < periods[j].Number })
	return periods
}

// PeriodOfKind returns the first period of the given kind.
func (c *GradingConfig) PeriodOfKind(kind PeriodKind) (PeriodConfig, bool) {
	for _, p := range c.Periods {
		if p.KindOrDefault() == kind {
			return p, true
		}
	}
	return PeriodConfig{}, false
}

// Period returns the period with the given identifier.
func (c *GradingConfig) Period(id string) (PeriodConfig, bool) {
	for _, p := range c.Periods {
		if p.ID == id {
			return p, true
		}
	}
	return PeriodConfig{}, false
}

// PeriodScores holds one period's raw component values keyed by variable code.
type PeriodScores struct {
	Values map[string]float64 `json:"values" yaml:"values"`
	Note   string             `json:"note,omitempty" yaml:"note"`
}

// RawScoreSet maps a period identifier to that period's scores.
type RawScoreSet map[string]PeriodScores

// ExamInputs carries externally supplied exam results.
type ExamInputs struct {
	FinalExam    *float64 `json:"final_exam,omitempty" yaml:"final_exam"`
	Recovery     *float64 `json:"recovery,omitempty" yaml:"recovery"`
	CouncilBonus *float64 `json:"council_bonus,omitempty" yaml:"council_bonus"`
}

// PeriodTotal is one aggregated period in a summary.
type PeriodTotal struct {
	PeriodID string  `json:"period_id"`
	Number   int     `json:"number"`
	Name     string  `json:"name"`
	Total    float64 `json:"total"`
}

// AnnualSummary is derived on demand and never persisted.
type AnnualSummary struct {
	PeriodTotals          []PeriodTotal   `json:"period_totals"`
	BaseTotal             float64         `json:"base_total"`
	CouncilBonus          float64         `json:"council_bonus"`
	AnnualTotal           float64         `json:"annual_total"`
	MaxAnnual             float64         `json:"max_annual"`
	PassFloor             float64         `json:"pass_floor"`
	Status                PromotionStatus `json:"status"`
	PointsNeeded          float64         `json:"points_needed"`
	FinalExamPointsNeeded float64         `json:"final_exam_points_needed"`
	FinalExamScore        *float64        `json:"final_exam_score,omitempty"`
	RecoveryScore         *float64        `json:"recovery_score,omitempty"`
}

// StudentSummary pairs a student with a computed summary for listings and exports.
type StudentSummary struct {
	StudentID string        `json:"student_id"`
	Summary   AnnualSummary `json:"summary"`
	Error     string        `json:"error,omitempty"`
}
