package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/conneroisu/qmd/internal/compiler"
	"github.com/conneroisu/qmd/internal/mcptools"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print qmd and compiler versions",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Printf("qmd %s\n", mcptools.Version)

		cfg, log, err := loadConfig()
		if err != nil {
			return err
		}

		formats := make([]string, 0, len(compiler.SupportedFormats()))
		for _, f := range compiler.SupportedFormats() {
			formats = append(formats, string(f))
		}
		fmt.Printf("formats: %s\n", strings.Join(formats, ", "))

		comp := compiler.New(cfg.Compiler, log)
		version, err := comp.Version(cmd.Context())
		if err != nil {
			fmt.Println("quarkdown: unavailable")
			return nil
		}
		fmt.Printf("quarkdown %s\n", version)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
