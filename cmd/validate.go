package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/conneroisu/qmd/internal/validate"
)

var validateCmd = &cobra.Command{
	Use:     "validate <input-file>",
	Aliases: []string{"v"},
	Short:   "Statically validate a document without compiling it",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}

		source, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("reading %s: %w", args[0], err)
		}

		strict, _ := cmd.Flags().GetBool("strict")
		checkLinks, _ := cmd.Flags().GetBool("check-links")

		opts := validate.DefaultOptions()
		opts.Strict = strict
		opts.CheckLinks = checkLinks

		report := validate.New(cfg.Validator).Validate(string(source), opts)

		for _, w := range report.Warnings {
			fmt.Fprintln(os.Stderr, w.String())
		}
		for _, e := range report.Errors {
			fmt.Fprintln(os.Stderr, e.String())
		}
		if !report.Valid {
			return fmt.Errorf("%s: %d error(s)", args[0], len(report.Errors))
		}

		fmt.Printf("%s: valid (%d warning(s))\n", args[0], len(report.Warnings))
		return nil
	},
}

func init() {
	validateCmd.Flags().Bool("strict", false, "promote style warnings to errors")
	validateCmd.Flags().Bool("check-links", false, "probe external links for reachability")
	rootCmd.AddCommand(validateCmd)
}
