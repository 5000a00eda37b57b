package main

import (
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/noah-isme/sma-gradebook-api/internal/grading"
	"github.com/noah-isme/sma-gradebook-api/internal/models"
)

type fieldsOptions struct {
	period string
	values map[string]string
}

func newFieldsCmd(root *rootOptions) *cobra.Command {
	opts := &fieldsOptions{}
	cmd := &cobra.Command{
		Use:   "fields",
		Short: "Show the score form of a period",
		Long: `Apply the given values to an empty period in variable code order and show each
component with its effective maximum. Clamps and rejected values are reported.`,
		Example: `  gradecalc fields --period unit-3 --set TS=1 --set P=9`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFields(cmd.OutOrStdout(), root, opts)
		},
	}
	cmd.Flags().StringVarP(&opts.period, "period", "p", "", "Period ID")
	cmd.Flags().StringToStringVar(&opts.values, "set", nil, "Component value as CODE=VALUE")
	_ = cmd.MarkFlagRequired("period")
	return cmd
}

type fieldsReport struct {
	PeriodID string                  `json:"period_id"`
	Writes   []grading.WriteResult   `json:"writes"`
	Fields   []grading.FieldContract `json:"fields"`
	Total    float64                 `json:"period_total"`
}

func runFields(w io.Writer, root *rootOptions, opts *fieldsOptions) error {
	cfg, err := loadConfig(root.configPath)
	if err != nil {
		return err
	}
	period, ok := cfg.Period(opts.period)
	if !ok {
		return fmt.Errorf("unknown period %q", opts.period)
	}

	codes := make([]string, 0, len(opts.values))
	for code := range opts.values {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	report := fieldsReport{PeriodID: period.ID, Writes: []grading.WriteResult{}}
	scores := map[string]float64{}
	for _, code := range codes {
		var result grading.WriteResult
		scores, result = grading.ApplyScore(period, scores, code, opts.values[code])
		report.Writes = append(report.Writes, result)
	}
	report.Fields = grading.Fields(period, scores)
	report.Total = grading.ComputeUnitTotal(scores, period)

	if root.output == "json" {
		return writeJSON(w, report)
	}
	printFields(w, period, report, newPrintStyles())
	return nil
}

func printFields(w io.Writer, period models.PeriodConfig, report fieldsReport, styles printStyles) {
	fmt.Fprintln(w, styles.header.Render(period.Name))
	for _, res := range report.Writes {
		switch res.Outcome {
		case grading.OutcomeRejected:
			fmt.Fprintf(w, "  %s %s: %s\n", styles.failed.Render("rejected"), res.VariableCode, res.Reason)
		default:
			for _, clamp := range res.Clamps {
				fmt.Fprintf(w, "  %s %s %s -> %s\n", styles.pending.Render("clamped"), clamp.VariableCode, num(clamp.Requested), num(clamp.Applied))
			}
		}
	}
	for _, f := range report.Fields {
		value := styles.dim.Render("-")
		if f.Value != nil {
			value = num(*f.Value)
		}
		fmt.Fprintf(w, "  %-6s %-28s %6s / %s\n", f.VariableCode, f.Label, value, num(f.EffectiveMax))
	}
	fmt.Fprintf(w, "  %-35s %6s\n", "Total", num(report.Total))
}
