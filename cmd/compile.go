package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/conneroisu/qmd/internal/compiler"
)

var compileCmd = &cobra.Command{
	Use:     "compile <input-file>",
	Aliases: []string{"c"},
	Short:   "Compile a document",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := loadConfig()
		if err != nil {
			return err
		}

		formatStr, _ := cmd.Flags().GetString("format")
		format, err := compiler.ParseFormat(formatStr)
		if err != nil {
			return err
		}
		output, _ := cmd.Flags().GetString("output")
		pretty, _ := cmd.Flags().GetBool("pretty")
		wrap, _ := cmd.Flags().GetBool("wrap")
		template, _ := cmd.Flags().GetString("template")

		comp := compiler.New(cfg.Compiler, log)
		result, err := comp.Compile(cmd.Context(), compiler.CompileRequest{
			InputFile:  args[0],
			Format:     format,
			OutputPath: output,
			Pretty:     pretty,
			Wrap:       wrap,
			Template:   template,
		})
		if err != nil {
			return err
		}

		for _, w := range result.Warnings {
			fmt.Fprintln(os.Stderr, w.String())
		}
		if !result.Succeeded {
			for _, e := range result.Errors {
				fmt.Fprintln(os.Stderr, e.String())
			}
			return fmt.Errorf("compilation failed (exit code %d)", result.ExitCode)
		}

		if result.OutputPath != "" {
			fmt.Println(result.OutputPath)
		} else if !format.Binary() {
			os.Stdout.Write(result.Output)
		}
		return nil
	},
}

func init() {
	compileCmd.Flags().StringP("format", "f", "html", "output format (html, pdf, tex, md, docx)")
	compileCmd.Flags().StringP("output", "o", "", "output file path")
	compileCmd.Flags().Bool("pretty", false, "pretty-print the generated output")
	compileCmd.Flags().Bool("wrap", true, "wrap output lines")
	compileCmd.Flags().StringP("template", "t", "", "theme applied to the document")
	rootCmd.AddCommand(compileCmd)
}
