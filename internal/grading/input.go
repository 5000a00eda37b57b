package grading

import (
	"errors"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/noah-isme/sma-gradebook-api/internal/models"
)

// ErrInputRejected marks raw input that is not a number after normalisation.
var ErrInputRejected = errors.New("score input rejected")

var numericInput = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)$`)

// WriteOutcome describes what ApplyScore did with a raw input.
type WriteOutcome string

const (
	OutcomeApplied  WriteOutcome = "applied"
	OutcomeCleared  WriteOutcome = "cleared"
	OutcomeRejected WriteOutcome = "rejected"
)

// ClampSignal reports a value that was adjusted to stay within its effective maximum.
type ClampSignal struct {
	VariableCode string  `json:"variable_code"`
	Requested    float64 `json:"requested"`
	Applied      float64 `json:"applied"`
	Max          float64 `json:"max"`
}

// WriteResult is the non-fatal report of a single score write.
type WriteResult struct {
	VariableCode string        `json:"variable_code"`
	Outcome      WriteOutcome  `json:"outcome"`
	Value        *float64      `json:"value,omitempty"`
	Clamps       []ClampSignal `json:"clamps,omitempty"`
	Reason       string        `json:"reason,omitempty"`
}

// ParseScore normalises a raw editor value. Comma and dot are both accepted as decimal
// separator. An empty input returns present=false, which clears the stored value.
func ParseScore(raw string) (value float64, present bool, err error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return 0, false, nil
	}
	normalized := strings.Replace(trimmed, ",", ".", 1)
	if !numericInput.MatchString(normalized) {
		return 0, false, ErrInputRejected
	}
	value, err = strconv.ParseFloat(normalized, 64)
	if err != nil || math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, false, ErrInputRejected
	}
	return value, true, nil
}

// ApplyScore writes one raw value into a copy of the period's scores and returns the copy.
// The input map is never modified. Rejected input leaves the prior value in place. Clamps
// are reported, never raised: the written value is bounded by its effective maximum, and a
// positive write to a clamp trigger immediately lowers any target above its new maximum.
func ApplyScore(period models.PeriodConfig, scores map[string]float64, code, raw string) (map[string]float64, WriteResult) {
	next := make(map[string]float64, len(scores)+1)
	for k, v := range scores {
		next[k] = v
	}
	result := WriteResult{VariableCode: code}

	if _, ok := period.Component(code); !ok {
		result.Outcome = OutcomeRejected
		result.Reason = "unknown variable code"
		return next, result
	}

	value, present, err := ParseScore(raw)
	if err != nil {
		result.Outcome = OutcomeRejected
		result.Reason = "value is not a number"
		if prior, ok := next[code]; ok {
			p := prior
			result.Value = &p
		}
		return next, result
	}
	if !present {
		delete(next, code)
		result.Outcome = OutcomeCleared
		return next, result
	}

	limit := EffectiveMax(period, next, code)
	stored := clamp(value, 0, limit)
	if stored != value {
		result.Clamps = append(result.Clamps, ClampSignal{VariableCode: code, Requested: value, Applied: stored, Max: limit})
	}
	next[code] = stored

	if stored > 0 {
		for _, rule := range period.ClampRules {
			if rule.TriggerCode != code {
				continue
			}
			current, ok := next[rule.TargetCode]
			if !ok {
				continue
			}
			targetMax := EffectiveMax(period, next, rule.TargetCode)
			if current > targetMax {
				next[rule.TargetCode] = targetMax
				result.Clamps = append(result.Clamps, ClampSignal{VariableCode: rule.TargetCode, Requested: current, Applied: targetMax, Max: targetMax})
			}
		}
	}

	result.Outcome = OutcomeApplied
	result.Value = &stored
	return next, result
}
