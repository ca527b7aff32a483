package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/conneroisu/qmd/internal/compiler"
	"github.com/conneroisu/qmd/internal/preview"
)

var previewCmd = &cobra.Command{
	Use:     "preview <input-file>",
	Aliases: []string{"p"},
	Short:   "Serve a live preview with reload on save",
	Long: `Preview compiles the document to HTML, serves it locally, and watches the
document's files. Saving any watched file triggers a rebuild and reloads
connected browsers. Runs until interrupted.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := loadConfig()
		if err != nil {
			return err
		}

		port, _ := cmd.Flags().GetInt("port")
		theme, _ := cmd.Flags().GetString("theme")
		open, _ := cmd.Flags().GetBool("open")
		watchFiles, _ := cmd.Flags().GetStringSlice("watch")

		comp := compiler.New(cfg.Compiler, log)
		manager := preview.NewManager(cfg.Preview, comp, log)
		session, err := manager.Start(cmd.Context(), preview.Options{
			InputFile:   args[0],
			Port:        port,
			Theme:       theme,
			AutoReload:  true,
			WatchFiles:  watchFiles,
			OpenBrowser: open,
		})
		if err != nil {
			return err
		}
		defer manager.StopAll()

		fmt.Printf("Previewing %s at %s (Ctrl+C to stop)\n", args[0], session.URL())

		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		select {
		case <-sig:
		case <-cmd.Context().Done():
		}
		return nil
	},
}

func init() {
	previewCmd.Flags().IntP("port", "p", 0, "port to serve on (default from config)")
	previewCmd.Flags().StringP("theme", "t", "", "theme applied to the rendered document")
	previewCmd.Flags().Bool("open", false, "open the preview in the default browser")
	previewCmd.Flags().StringSlice("watch", nil, "additional files to watch")
	rootCmd.AddCommand(previewCmd)
}
