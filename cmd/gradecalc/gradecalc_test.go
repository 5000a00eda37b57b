package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/noah-isme/sma-gradebook-api/internal/grading"
	"github.com/noah-isme/sma-gradebook-api/internal/models"
	"github.com/noah-isme/sma-gradebook-api/internal/service"
)

const examScores = `student_id: stu-7
scores:
  unit-1:
    values: {P: 10}
  unit-2:
    values: {P: 10}
  unit-3:
    values: {P: 10}
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, stderr bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestSummaryCommandText(t *testing.T) {
	scores := writeFile(t, "scores.yaml", examScores)

	out, err := execute(t, "summary", "--scores", scores)
	require.NoError(t, err)
	assert.Contains(t, out, "Annual summary of stu-7")
	assert.Contains(t, out, "FINAL_PENDING")
	assert.Contains(t, out, "15 / 30 (pass 18)")
}

func TestSummaryCommandExamOverride(t *testing.T) {
	scores := writeFile(t, "scores.yaml", examScores)

	out, err := execute(t, "summary", "--scores", scores, "--final-exam", "3,0", "--output", "json")
	require.NoError(t, err)

	var body struct {
		StudentID string               `json:"student_id"`
		Summary   models.AnnualSummary `json:"summary"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &body))
	assert.Equal(t, "stu-7", body.StudentID)
	assert.Equal(t, models.StatusFinalApproved, body.Summary.Status)
	assert.Equal(t, 15.0, body.Summary.AnnualTotal)
	require.Len(t, body.Summary.PeriodTotals, 3)
	assert.Equal(t, 5.0, body.Summary.PeriodTotals[2].Total)
}

func TestSummaryCommandRejectsBadInput(t *testing.T) {
	scores := writeFile(t, "scores.yaml", examScores)

	_, err := execute(t, "summary", "--scores", scores, "--recovery", "ten")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--recovery")

	unknown := writeFile(t, "bad.yaml", "student: stu-1\n")
	_, err = execute(t, "summary", "--scores", unknown)
	require.Error(t, err)

	_, err = execute(t, "summary")
	require.Error(t, err)
}

func TestSummaryCommandRejectsUndeclaredCodes(t *testing.T) {
	cases := map[string]struct {
		content string
		want    string
	}{
		"lowercase code": {
			content: "scores:\n  unit-1:\n    values: {q: 2, S: 2, T: 4, G: 2, P: 10}\n",
			want:    "scores.unit-1.values.q: unknown variable code",
		},
		"code from another period": {
			content: "scores:\n  unit-1:\n    values: {TS: 2}\n",
			want:    "scores.unit-1.values.TS: unknown variable code",
		},
		"unknown period": {
			content: "scores:\n  unit-1:\n    values: {P: 10}\n  unit-one:\n    values: {Q: 2}\n",
			want:    "scores.unit-one: unknown period",
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			scores := writeFile(t, "scores.yaml", tc.content)

			out, err := execute(t, "summary", "--scores", scores, "--output", "json")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
			assert.Empty(t, out)
		})
	}

	exams := writeFile(t, "exams.yaml", examScores+"  final-exam:\n    values: {F: 3}\n")
	_, err := execute(t, "summary", "--scores", exams)
	require.NoError(t, err)
}

func TestSummaryCommandCustomConfig(t *testing.T) {
	cfg := grading.DefaultConfig("school-a")
	cfg.CalculationType = models.CalculationCustomFormula
	cfg.CustomFormula = "(U1+U2+U3)/3"
	cfg.Approval.CouncilBonusEnabled = true

	encoded, err := yaml.Marshal(cfg)
	require.NoError(t, err)
	configPath := writeFile(t, "config.yaml", string(encoded))
	scores := writeFile(t, "scores.yaml", examScores+"exams:\n  council_bonus: 1\n")

	out, err := execute(t, "summary", "--config", configPath, "--scores", scores, "-o", "json")
	require.NoError(t, err)

	var body struct {
		Summary models.AnnualSummary `json:"summary"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &body))
	assert.Equal(t, 10.0, body.Summary.MaxAnnual)
	assert.Equal(t, 5.0, body.Summary.BaseTotal)
	assert.Equal(t, 1.0, body.Summary.CouncilBonus)
	assert.Equal(t, 6.0, body.Summary.AnnualTotal)
	assert.Equal(t, models.StatusDirectApproved, body.Summary.Status)
}

func TestInvalidConfigFileIsRejected(t *testing.T) {
	configPath := writeFile(t, "config.yaml", "calculation_type: custom_formula\ncustom_formula: U1 + U9\nperiods: []\n")
	scores := writeFile(t, "scores.yaml", examScores)

	_, err := execute(t, "summary", "--config", configPath, "--scores", scores)
	require.Error(t, err)
}

func TestFormulaCheckCommand(t *testing.T) {
	out, err := execute(t, "formula", "check", "(U1+U2+U3)/3")
	require.NoError(t, err)
	assert.Contains(t, out, "valid")
	assert.Contains(t, out, "Max annual")

	out, err = execute(t, "formula", "check", "U1 + U9", "-o", "json")
	require.ErrorIs(t, err, errFormulaRejected)

	var result service.FormulaCheckResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.False(t, result.Valid)
	require.NotNil(t, result.Issue)
	assert.Equal(t, "U9", result.Issue.Variable)
	assert.Equal(t, 5, result.Issue.Offset)
}

func TestFieldsCommandReportsClamp(t *testing.T) {
	out, err := execute(t, "fields", "--period", "unit-3", "--set", "P=9", "--set", "TS=1", "-o", "json")
	require.NoError(t, err)

	var report fieldsReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	require.Len(t, report.Writes, 2)
	assert.Equal(t, "P", report.Writes[0].VariableCode)
	assert.Equal(t, "TS", report.Writes[1].VariableCode)
	require.Len(t, report.Writes[1].Clamps, 1)
	assert.Equal(t, 8.0, report.Writes[1].Clamps[0].Applied)
	assert.Equal(t, 4.5, report.Total)

	for _, f := range report.Fields {
		if f.VariableCode == "P" {
			assert.Equal(t, 8.0, f.EffectiveMax)
		}
	}
}

func TestFieldsCommandUnknownPeriod(t *testing.T) {
	_, err := execute(t, "fields", "--period", "unit-9")
	require.Error(t, err)
}
