package main

import (
	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
	output     string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "gradecalc",
		Short: "Offline grade calculator for the gradebook grading rules",
		Long: `gradecalc evaluates grading configurations and student scores stored in YAML files
using the same engine as the gradebook API.

Without --config the built-in configuration is used: three units totalled on a 0-10 scale,
a final exam and a recovery exam.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Grading configuration YAML file")
	cmd.PersistentFlags().StringVarP(&opts.output, "output", "o", "text", "Output format (text|json)")

	cmd.AddCommand(newSummaryCmd(opts), newFormulaCmd(opts), newFieldsCmd(opts))
	return cmd
}
