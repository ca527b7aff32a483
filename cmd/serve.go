package cmd

import (
	"context"

	"github.com/spf13/cobra"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/conneroisu/qmd/internal/compiler"
	"github.com/conneroisu/qmd/internal/mcptools"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"s"},
	Short:   "Serve the document tools over MCP stdio",
	Long: `Serve registers every qmd operation (compile, validate, preview, batch,
create) as an MCP tool and speaks the protocol over stdin/stdout. Logs go
to stderr so the protocol stream stays clean.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := loadConfig()
		if err != nil {
			return err
		}

		s, cleanup := mcptools.New(cfg, log)
		defer cleanup()

		// Best-effort startup probe so a misconfigured JAR path shows up
		// in the logs before the first tool call fails.
		if version, probeErr := compiler.New(cfg.Compiler, log).Version(cmd.Context()); probeErr == nil {
			log.Info(context.Background(), "compiler available", "version", version)
		} else {
			log.Warn(context.Background(), probeErr, "compiler probe failed",
				"jar_path", cfg.Compiler.JarPath)
		}

		log.Info(context.Background(), "mcp server listening on stdio")
		return mcpserver.ServeStdio(s)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
