package grading

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-gradebook-api/internal/models"
)

func score(v float64) *float64 { return &v }

func TestEvaluateDirectApproval(t *testing.T) {
	summary, err := Evaluate(30, models.ExamInputs{}, DefaultConfig("inst-1"))
	require.NoError(t, err)

	assert.Equal(t, models.StatusDirectApproved, summary.Status)
	assert.Equal(t, 30.0, summary.MaxAnnual)
	assert.Equal(t, 18.0, summary.PassFloor)
	assert.True(t, summary.Status.Passing())

	summary, err = Evaluate(18, models.ExamInputs{}, DefaultConfig("inst-1"))
	require.NoError(t, err)
	assert.Equal(t, models.StatusDirectApproved, summary.Status)
}

func TestEvaluateFinalExamPhase(t *testing.T) {
	cfg := DefaultConfig("inst-1")

	summary, err := Evaluate(10, models.ExamInputs{}, cfg)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFinalPending, summary.Status)
	assert.Equal(t, 8.0, summary.PointsNeeded)
	assert.Equal(t, 8.0, summary.FinalExamPointsNeeded)

	summary, err = Evaluate(10, models.ExamInputs{FinalExam: score(9)}, cfg)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFinalApproved, summary.Status)
	require.NotNil(t, summary.FinalExamScore)
	assert.Equal(t, 9.0, *summary.FinalExamScore)

	summary, err = Evaluate(10, models.ExamInputs{FinalExam: score(5)}, cfg)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRecoveryPending, summary.Status)
	assert.Equal(t, 6.0, summary.PointsNeeded)
}

func TestEvaluateFinalExamScoreIsClamped(t *testing.T) {
	cfg := DefaultConfig("inst-1")

	summary, err := Evaluate(10, models.ExamInputs{FinalExam: score(25)}, cfg)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFinalApproved, summary.Status)
	assert.Equal(t, 10.0, *summary.FinalExamScore)
}

func TestEvaluateFinalExamAbsoluteThreshold(t *testing.T) {
	cfg := DefaultConfig("inst-1")
	cfg.FinalExam.ThresholdMode = models.ThresholdAbsolute
	cfg.FinalExam.MinScoreToPass = 5

	summary, err := Evaluate(12, models.ExamInputs{FinalExam: score(5)}, cfg)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFinalApproved, summary.Status)
	assert.Equal(t, 6.0, summary.PointsNeeded)
	assert.Equal(t, 5.0, summary.FinalExamPointsNeeded)
}

func TestEvaluateMaxAnnualTriggerBasis(t *testing.T) {
	cfg := DefaultConfig("inst-1")
	cfg.FinalExam.TriggerBasis = models.TriggerMaxAnnual

	summary, err := Evaluate(10, models.ExamInputs{}, cfg)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRecoveryPending, summary.Status)

	cfg.FinalExam.TriggerValue = 14
	summary, err = Evaluate(16, models.ExamInputs{}, cfg)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFinalPending, summary.Status)
	assert.Equal(t, 2.0, summary.PointsNeeded)
}

func TestEvaluateRecoveryPhase(t *testing.T) {
	cfg := DefaultConfig("inst-1")

	summary, err := Evaluate(5, models.ExamInputs{}, cfg)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRecoveryPending, summary.Status)
	assert.Equal(t, 0.0, summary.AnnualTotal, "prior points are cleared while recovery is pending")
	assert.Equal(t, 5.0, summary.BaseTotal)

	summary, err = Evaluate(5, models.ExamInputs{Recovery: score(6.5)}, cfg)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRecoveryApproved, summary.Status)
	assert.Equal(t, 6.5, summary.AnnualTotal)

	summary, err = Evaluate(5, models.ExamInputs{Recovery: score(4)}, cfg)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, summary.Status)
	assert.False(t, summary.Status.Passing())

	summary, err = Evaluate(5, models.ExamInputs{Recovery: score(11)}, cfg)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, summary.Status)
}

func TestEvaluateRecoveryKeepsPreviousScores(t *testing.T) {
	cfg := DefaultConfig("inst-1")
	cfg.Recovery.ClearPreviousScores = false

	summary, err := Evaluate(5, models.ExamInputs{}, cfg)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRecoveryPending, summary.Status)
	assert.Equal(t, 5.0, summary.AnnualTotal)

	summary, err = Evaluate(5, models.ExamInputs{Recovery: score(6.5)}, cfg)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRecoveryApproved, summary.Status)
	assert.Equal(t, 11.5, summary.AnnualTotal)
	assert.Equal(t, 5.0, summary.BaseTotal)
}

func TestEvaluateWithoutRecovery(t *testing.T) {
	cfg := DefaultConfig("inst-1")
	cfg.Recovery.Enabled = false

	summary, err := Evaluate(5, models.ExamInputs{}, cfg)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, summary.Status)

	summary, err = Evaluate(10, models.ExamInputs{FinalExam: score(5)}, cfg)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, summary.Status)

	cfg.FinalExam.Enabled = false
	summary, err = Evaluate(10, models.ExamInputs{}, cfg)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, summary.Status)
}

func TestEvaluateCouncilBonus(t *testing.T) {
	cfg := DefaultConfig("inst-1")

	summary, err := Evaluate(17.5, models.ExamInputs{CouncilBonus: score(0.5)}, cfg)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFinalPending, summary.Status, "bonus is ignored while disabled")

	cfg.Approval.CouncilBonusEnabled = true
	summary, err = Evaluate(17.5, models.ExamInputs{CouncilBonus: score(0.5)}, cfg)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDirectApproved, summary.Status)
	assert.Equal(t, 18.0, summary.AnnualTotal)
	assert.Equal(t, 17.5, summary.BaseTotal)

	summary, err = Evaluate(17.5, models.ExamInputs{CouncilBonus: score(5)}, cfg)
	require.NoError(t, err)
	assert.Equal(t, 1.0, summary.CouncilBonus)
	assert.Equal(t, 18.5, summary.AnnualTotal)
}

func fullUnit() models.PeriodScores {
	return models.PeriodScores{Values: map[string]float64{"Q": 2, "S": 2, "T": 4, "G": 2, "P": 10}}
}

func TestSummarize(t *testing.T) {
	cfg := DefaultConfig("inst-1")
	raw := models.RawScoreSet{"unit-1": fullUnit(), "unit-2": fullUnit(), "unit-3": fullUnit()}

	summary, err := Summarize(raw, models.ExamInputs{}, cfg)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDirectApproved, summary.Status)
	assert.Equal(t, 30.0, summary.BaseTotal)
	require.Len(t, summary.PeriodTotals, 3)
	assert.Equal(t, "unit-1", summary.PeriodTotals[0].PeriodID)
	assert.Equal(t, 10.0, summary.PeriodTotals[2].Total)
}

func TestSummarizeReadsExamPeriods(t *testing.T) {
	cfg := DefaultConfig("inst-1")
	raw := models.RawScoreSet{
		"unit-1":     fullUnit(),
		"final-exam": {Values: map[string]float64{"F": 9}},
	}

	summary, err := Summarize(raw, models.ExamInputs{}, cfg)
	require.NoError(t, err)
	assert.Equal(t, 10.0, summary.BaseTotal)
	assert.Equal(t, models.StatusFinalApproved, summary.Status)

	summary, err = Summarize(raw, models.ExamInputs{FinalExam: score(3)}, cfg)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRecoveryPending, summary.Status, "explicit input wins over the stored period")
}

func TestSummarizeIsPure(t *testing.T) {
	cfg := DefaultConfig("inst-1")
	cfg.CalculationType = models.CalculationCustomFormula
	cfg.CustomFormula = "U1 + U2 + U3 * 1.0"
	raw := models.RawScoreSet{
		"unit-1": {Values: map[string]float64{"Q": 1.5, "S": 1, "T": 3.5, "P": 7.25}},
		"unit-3": {Values: map[string]float64{"TS": 2, "P": 10, "G": 1}},
	}
	exams := models.ExamInputs{Recovery: score(7)}

	first, err := Summarize(raw, exams, cfg)
	require.NoError(t, err)
	second, err := Summarize(raw, exams, cfg)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 10.0, raw["unit-3"].Values["P"], "raw input must not be modified")
}
