package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/conneroisu/qmd/internal/batch"
	"github.com/conneroisu/qmd/internal/compiler"
)

var batchCmd = &cobra.Command{
	Use:     "batch <input-dir>",
	Aliases: []string{"b"},
	Short:   "Compile every document in a directory concurrently",
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
		outputDir, _ := cmd.Flags().GetString("output")
		template, _ := cmd.Flags().GetString("template")
		workers, _ := cmd.Flags().GetInt("workers")
		index, _ := cmd.Flags().GetBool("index")
		keepGoing, _ := cmd.Flags().GetBool("keep-going")

		items, err := collectItems(args[0])
		if err != nil {
			return err
		}
		if len(items) == 0 {
			return fmt.Errorf("no .qmd or .md documents found in %s", args[0])
		}

		comp := compiler.New(cfg.Compiler, log)
		engine := batch.New(comp, cfg.Batch, log)
		report, err := engine.Run(cmd.Context(), batch.Request{
			Items:           items,
			Format:          format,
			OutputDir:       outputDir,
			Template:        template,
			Parallel:        true,
			MaxWorkers:      workers,
			ContinueOnError: keepGoing,
			GenerateIndex:   index,
		})
		if err != nil {
			return err
		}

		names := make([]string, 0, len(report.Results))
		for name := range report.Results {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			r := report.Results[name]
			if r.Succeeded {
				fmt.Printf("ok      %s -> %s\n", name, r.OutputPath)
			} else {
				fmt.Printf("FAILED  %s\n", name)
				for _, e := range r.Errors {
					fmt.Fprintln(os.Stderr, "  "+e.String())
				}
			}
		}

		fmt.Printf("%d succeeded, %d failed in %s\n",
			report.SucceededCount, report.FailedCount, report.Elapsed.Round(1e6))
		if report.FailedCount > 0 {
			return fmt.Errorf("%d document(s) failed", report.FailedCount)
		}
		return nil
	},
}

// collectItems turns every document in a directory into a batch item named
// after its relative path without extension.
func collectItems(dir string) ([]batch.Item, error) {
	var items []batch.Item
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		ext := strings.ToLower(filepath.Ext(path))
		if d.IsDir() || (ext != ".qmd" && ext != ".md") {
			return nil
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		name := strings.TrimSuffix(rel, filepath.Ext(rel))
		items = append(items, batch.Item{Name: name, Content: string(content)})
		return nil
	})
	return items, err
}

func init() {
	batchCmd.Flags().StringP("format", "f", "html", "output format applied to every document")
	batchCmd.Flags().StringP("output", "o", "", "output directory")
	batchCmd.Flags().StringP("template", "t", "", "theme applied to every document")
	batchCmd.Flags().IntP("workers", "w", 0, "max concurrent compiles (default from config)")
	batchCmd.Flags().Bool("index", false, "generate a summary index document")
	batchCmd.Flags().Bool("keep-going", true, "continue after a document fails")
	rootCmd.AddCommand(batchCmd)
}
