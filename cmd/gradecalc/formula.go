package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/noah-isme/sma-gradebook-api/internal/models"
	"github.com/noah-isme/sma-gradebook-api/internal/service"
)

// errFormulaRejected makes the process exit non-zero after the issue was printed.
var errFormulaRejected = errors.New("formula rejected")

func newFormulaCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "formula",
		Short: "Work with custom aggregation formulas",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "check <formula>",
		Short: "Check a formula against the grading configuration",
		Long: `Parse the formula, verify every variable exists in the configuration and report the
annual maximum and passing floor it produces.

Variables are U1..Un for period totals and component codes suffixed with the period
number, for example P3 or TS3.`,
		Example: `  gradecalc formula check "(U1+U2+U3)/3"`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFormulaCheck(cmd.OutOrStdout(), root, args[0])
		},
	})
	return cmd
}

func runFormulaCheck(w io.Writer, root *rootOptions, formula string) error {
	cfg, err := loadConfig(root.configPath)
	if err != nil {
		return err
	}
	candidate := *cfg
	candidate.CalculationType = models.CalculationCustomFormula
	candidate.CustomFormula = formula
	result := service.CheckFormula(&candidate)

	if root.output == "json" {
		if err := writeJSON(w, result); err != nil {
			return err
		}
	} else {
		printFormulaCheck(w, formula, result, newPrintStyles())
	}
	if !result.Valid {
		return errFormulaRejected
	}
	return nil
}

func printFormulaCheck(w io.Writer, formula string, result *service.FormulaCheckResult, styles printStyles) {
	fmt.Fprintln(w, styles.header.Render("Formula "+formula))
	if len(result.Variables) > 0 {
		fmt.Fprintf(w, "  %-12s %s\n", "Uses", strings.Join(result.Variables, ", "))
	}
	if !result.Valid {
		fmt.Fprintf(w, "  %-12s %s\n", "Result", styles.failed.Render("rejected"))
		if result.Issue != nil {
			fmt.Fprintf(w, "  %-12s %s\n", "Issue", result.Issue.Message)
			fmt.Fprintln(w, "  "+formula)
			fmt.Fprintln(w, "  "+strings.Repeat(" ", result.Issue.Offset)+"^")
		}
		fmt.Fprintln(w, styles.dim.Render("  available: "+strings.Join(result.Scope, " ")))
		return
	}
	fmt.Fprintf(w, "  %-12s %s\n", "Result", styles.passed.Render("valid"))
	fmt.Fprintf(w, "  %-12s %s\n", "Max annual", num(*result.MaxAnnual))
	fmt.Fprintf(w, "  %-12s %s\n", "Pass floor", num(*result.PassFloor))
}
