package grading

import (
	"math"

	"github.com/noah-isme/sma-gradebook-api/internal/models"
)

// comparisons against derived floors tolerate float noise from averaging
const epsilon = 1e-9

// Evaluate classifies an annual score. base is the rounded output of ComputeAnnualScore;
// exam inputs are optional. The result depends only on the arguments.
func Evaluate(base float64, exams models.ExamInputs, cfg *models.GradingConfig) (models.AnnualSummary, error) {
	maxAnnual, passFloor, err := AnnualBounds(cfg)
	if err != nil {
		return models.AnnualSummary{}, err
	}

	summary := models.AnnualSummary{
		BaseTotal: base,
		MaxAnnual: maxAnnual,
		PassFloor: passFloor,
	}

	score := base
	if cfg.Approval.CouncilBonusEnabled && exams.CouncilBonus != nil {
		bonus := clamp(*exams.CouncilBonus, 0, nonNegative(cfg.Approval.CouncilMaxBonus))
		summary.CouncilBonus = bonus
		score = Round(base+bonus, cfg.RoundingMode, cfg.RoundingDecimals)
	}
	summary.AnnualTotal = score

	if score+epsilon >= passFloor {
		summary.Status = models.StatusDirectApproved
		return summary, nil
	}

	if cfg.FinalExam.Enabled && finalExamDeficit(score, maxAnnual, passFloor, cfg)-epsilon <= cfg.FinalExam.TriggerValue {
		summary.Status = models.StatusFinalPending
		summary.PointsNeeded = passFloor - score
		summary.FinalExamPointsNeeded = finalExamThreshold(summary.PointsNeeded, cfg)
		if exams.FinalExam == nil {
			return summary, nil
		}
		final := clamp(*exams.FinalExam, 0, finalExamMax(cfg))
		summary.FinalExamScore = &final
		if final+epsilon >= summary.FinalExamPointsNeeded {
			summary.Status = models.StatusFinalApproved
			return summary, nil
		}
	}

	if !cfg.Recovery.Enabled {
		summary.Status = models.StatusFailed
		return summary, nil
	}
	applyRecovery(&summary, score, exams.Recovery, cfg)
	return summary, nil
}

// Summarize runs the whole pipeline for one student: period totals, annual score and
// promotion status. Missing exam inputs are read from the final-exam and recovery periods
// of raw when those periods hold a value.
func Summarize(raw models.RawScoreSet, exams models.ExamInputs, cfg *models.GradingConfig) (models.AnnualSummary, error) {
	periods := cfg.RegularPeriods()
	totals := make([]float64, len(periods))
	periodTotals := make([]models.PeriodTotal, len(periods))
	for i, period := range periods {
		totals[i] = ComputeUnitTotal(raw[period.ID].Values, period)
		periodTotals[i] = models.PeriodTotal{
			PeriodID: period.ID,
			Number:   period.Number,
			Name:     period.Name,
			Total:    totals[i],
		}
	}

	base, err := ComputeAnnualScore(totals, raw, cfg)
	if err != nil {
		return models.AnnualSummary{}, err
	}

	if exams.FinalExam == nil {
		exams.FinalExam = terminalScore(raw, cfg, models.PeriodFinalExam)
	}
	if exams.Recovery == nil {
		exams.Recovery = terminalScore(raw, cfg, models.PeriodRecovery)
	}

	summary, err := Evaluate(base, exams, cfg)
	if err != nil {
		return models.AnnualSummary{}, err
	}
	summary.PeriodTotals = periodTotals
	return summary, nil
}

func applyRecovery(summary *models.AnnualSummary, score float64, recovery *float64, cfg *models.GradingConfig) {
	summary.Status = models.StatusRecoveryPending
	summary.PointsNeeded = cfg.Approval.PassingGrade
	if cfg.Recovery.MinScore > summary.PointsNeeded {
		summary.PointsNeeded = cfg.Recovery.MinScore
	}
	if recovery == nil {
		if cfg.Recovery.ClearPreviousScores {
			summary.AnnualTotal = 0
		}
		return
	}

	value := *recovery
	summary.RecoveryScore = &value
	if cfg.Recovery.ClearPreviousScores {
		summary.AnnualTotal = value
	} else {
		summary.AnnualTotal = Round(score+value, cfg.RoundingMode, cfg.RoundingDecimals)
	}

	inRange := value+epsilon >= cfg.Recovery.MinScore &&
		(cfg.Recovery.MaxScore <= 0 || value-epsilon <= cfg.Recovery.MaxScore)
	if inRange && value+epsilon >= cfg.Approval.PassingGrade {
		summary.Status = models.StatusRecoveryApproved
		return
	}
	summary.Status = models.StatusFailed
}

func finalExamDeficit(score, maxAnnual, passFloor float64, cfg *models.GradingConfig) float64 {
	if cfg.FinalExam.TriggerBasis == models.TriggerMaxAnnual {
		return maxAnnual - score
	}
	return passFloor - score
}

func finalExamThreshold(pointsNeeded float64, cfg *models.GradingConfig) float64 {
	if cfg.FinalExam.ThresholdMode == models.ThresholdAbsolute {
		return cfg.FinalExam.MinScoreToPass
	}
	return pointsNeeded
}

func finalExamMax(cfg *models.GradingConfig) float64 {
	if cfg.FinalExam.MaxValue > 0 {
		return cfg.FinalExam.MaxValue
	}
	if period, ok := cfg.PeriodOfKind(models.PeriodFinalExam); ok {
		if scale := Scale(period); scale > 0 {
			return scale
		}
	}
	return math.Inf(1)
}

func terminalScore(raw models.RawScoreSet, cfg *models.GradingConfig, kind models.PeriodKind) *float64 {
	period, ok := cfg.PeriodOfKind(kind)
	if !ok {
		return nil
	}
	values := raw[period.ID].Values
	for _, comp := range period.Components {
		if v, ok := values[comp.VariableCode]; ok && isFinite(v) {
			total := ComputeUnitTotal(values, period)
			return &total
		}
	}
	return nil
}
