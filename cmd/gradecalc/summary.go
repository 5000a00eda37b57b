package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/noah-isme/sma-gradebook-api/internal/grading"
	"github.com/noah-isme/sma-gradebook-api/internal/models"
)

type summaryOptions struct {
	scoresPath   string
	finalExam    string
	recovery     string
	councilBonus string
}

func newSummaryCmd(root *rootOptions) *cobra.Command {
	opts := &summaryOptions{}
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Compute the annual summary of one student",
		Long: `Compute period totals, the annual total and the promotion status of the student
described in --scores. Exam flags override the exams section of the file.`,
		Example: `  gradecalc summary --scores student.yaml
  gradecalc summary --config school.yaml --scores student.yaml --final-exam 6,5`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSummary(cmd.OutOrStdout(), root, opts)
		},
	}
	cmd.Flags().StringVarP(&opts.scoresPath, "scores", "s", "", "Student scores YAML file")
	cmd.Flags().StringVar(&opts.finalExam, "final-exam", "", "Final exam score")
	cmd.Flags().StringVar(&opts.recovery, "recovery", "", "Recovery exam score")
	cmd.Flags().StringVar(&opts.councilBonus, "council-bonus", "", "Class council bonus")
	_ = cmd.MarkFlagRequired("scores")
	return cmd
}

func runSummary(w io.Writer, root *rootOptions, opts *summaryOptions) error {
	cfg, err := loadConfig(root.configPath)
	if err != nil {
		return err
	}
	file, err := loadScores(opts.scoresPath)
	if err != nil {
		return err
	}
	if err := file.checkCodes(cfg); err != nil {
		return fmt.Errorf("%s: %w", opts.scoresPath, err)
	}

	overrides := []struct {
		name string
		raw  string
		dest **float64
	}{
		{"final-exam", opts.finalExam, &file.Exams.FinalExam},
		{"recovery", opts.recovery, &file.Exams.Recovery},
		{"council-bonus", opts.councilBonus, &file.Exams.CouncilBonus},
	}
	for _, o := range overrides {
		value, present, err := grading.ParseScore(o.raw)
		if err != nil {
			return fmt.Errorf("--%s: %w", o.name, err)
		}
		if present {
			v := value
			*o.dest = &v
		}
	}

	summary, err := grading.Summarize(file.Scores, file.Exams, cfg)
	if err != nil {
		return err
	}

	if root.output == "json" {
		return writeJSON(w, struct {
			StudentID string               `json:"student_id,omitempty"`
			Summary   models.AnnualSummary `json:"summary"`
		}{file.StudentID, summary})
	}
	printSummary(w, file.StudentID, cfg, summary, newPrintStyles())
	return nil
}

func printSummary(w io.Writer, studentID string, cfg *models.GradingConfig, summary models.AnnualSummary, styles printStyles) {
	title := "Annual summary"
	if studentID != "" {
		title += " of " + studentID
	}
	fmt.Fprintln(w, styles.header.Render(title))
	fmt.Fprintln(w, styles.dim.Render(fmt.Sprintf("calculation %s, config version %d", cfg.CalculationType, cfg.Version)))

	for _, pt := range summary.PeriodTotals {
		fmt.Fprintf(w, "  %-20s %s\n", pt.Name, num(pt.Total))
	}
	fmt.Fprintf(w, "  %-20s %s\n", "Base total", num(summary.BaseTotal))
	if summary.CouncilBonus > 0 {
		fmt.Fprintf(w, "  %-20s %s\n", "Council bonus", num(summary.CouncilBonus))
	}
	fmt.Fprintf(w, "  %-20s %s / %s (pass %s)\n", "Annual total", num(summary.AnnualTotal), num(summary.MaxAnnual), num(summary.PassFloor))
	if summary.FinalExamScore != nil {
		fmt.Fprintf(w, "  %-20s %s\n", "Final exam", num(*summary.FinalExamScore))
	}
	if summary.RecoveryScore != nil {
		fmt.Fprintf(w, "  %-20s %s\n", "Recovery", num(*summary.RecoveryScore))
	}
	fmt.Fprintf(w, "  %-20s %s\n", "Status", styles.status(summary.Status))

	switch summary.Status {
	case models.StatusFinalPending:
		fmt.Fprintf(w, "  %-20s %s\n", "Final exam needed", num(summary.FinalExamPointsNeeded))
	case models.StatusRecoveryPending, models.StatusFailed:
		fmt.Fprintf(w, "  %-20s %s\n", "Points needed", num(summary.PointsNeeded))
	}
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
