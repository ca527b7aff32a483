package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/conneroisu/qmd/internal/compiler"
	"github.com/conneroisu/qmd/internal/scaffold"
)

var initCmd = &cobra.Command{
	Use:     "init <path>",
	Aliases: []string{"i"},
	Short:   "Scaffold a new Quarkdown project",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := loadConfig()
		if err != nil {
			return err
		}

		template, _ := cmd.Flags().GetString("template")

		comp := compiler.New(cfg.Compiler, log)
		result, err := scaffold.New(comp, log).Create(cmd.Context(), args[0], template)
		if err != nil {
			return err
		}

		fmt.Printf("Created project at %s (%d files)\n", result.Path, len(result.Files))
		for _, f := range result.Files {
			fmt.Println("  " + f)
		}
		if result.UsedFallback {
			fmt.Println("Note: compiler unavailable, builtin template used")
		}
		return nil
	},
}

func init() {
	initCmd.Flags().StringP("template", "t", "basic", "project template (basic, article, book, slides)")
	rootCmd.AddCommand(initCmd)
}
