// Package batch fans a list of compile requests out to a bounded worker
// pool and aggregates per-item outcomes into a single report. Items are
// isolated: one item's failure, timeout, or crash never aborts the others.
package batch

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/yuin/goldmark"
	"golang.org/x/sync/semaphore"

	"github.com/conneroisu/qmd/internal/compiler"
	"github.com/conneroisu/qmd/internal/config"
	qmderrors "github.com/conneroisu/qmd/internal/errors"
	"github.com/conneroisu/qmd/internal/logging"
)

// Item is one named document in a batch. Names must be unique within a
// batch; duplicates are a caller error rejected before any worker starts.
type Item struct {
	Name       string `json:"name"`
	Content    string `json:"content"`
	OutputFile string `json:"output_file,omitempty"`
}

// Request describes one batch run.
type Request struct {
	Items           []Item
	Format          compiler.Format
	OutputDir       string
	Template        string
	Parallel        bool
	MaxWorkers      int
	ContinueOnError bool
	GenerateIndex   bool
}

// Report aggregates per-item results keyed by item name. Completion order
// never affects the keying.
type Report struct {
	ID             string                             `json:"id"`
	Results        map[string]*compiler.CompileResult `json:"results"`
	SucceededCount int                                `json:"succeeded_count"`
	FailedCount    int                                `json:"failed_count"`
	IndexPath      string                             `json:"index_path,omitempty"`
	Cancelled      bool                               `json:"cancelled,omitempty"`
	Elapsed        time.Duration                      `json:"elapsed"`
}

// Engine schedules batch compilations over a shared compiler.
type Engine struct {
	comp *compiler.Compiler
	cfg  config.BatchConfig
	log  logging.Logger
}

// New creates a batch engine.
func New(comp *compiler.Compiler, cfg config.BatchConfig, log logging.Logger) *Engine {
	if log == nil {
		log = logging.Nop()
	}
	return &Engine{comp: comp, cfg: cfg, log: log.WithComponent("batch")}
}

// Run executes the batch. Precondition failures (no items, duplicate names,
// unusable output directory) abort before dispatch with a BatchAbort error.
// Per-item failures are contained in that item's result. Cancellation stops
// dispatching new items, lets in-flight compiles finish on their own
// timeout, and returns the partial report marked cancelled.
func (e *Engine) Run(ctx context.Context, req Request) (*Report, error) {
	if len(req.Items) == 0 {
		return nil, qmderrors.NewBatchAbort("ERR_EMPTY_BATCH", "batch contains no documents")
	}

	seen := make(map[string]bool, len(req.Items))
	for _, item := range req.Items {
		if item.Name == "" {
			return nil, qmderrors.NewBatchAbort("ERR_UNNAMED_ITEM", "every batch item needs a name")
		}
		if seen[item.Name] {
			return nil, qmderrors.NewBatchAbort("ERR_DUPLICATE_NAME",
				fmt.Sprintf("duplicate item name %q", item.Name))
		}
		seen[item.Name] = true
	}

	if _, err := compiler.ParseFormat(string(req.Format)); err != nil {
		return nil, qmderrors.NewBatchAbort("ERR_BAD_FORMAT", err.Error())
	}

	outDir := req.OutputDir
	if outDir == "" {
		outDir = "."
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, qmderrors.NewBatchAbort("ERR_OUTPUT_DIR",
			fmt.Sprintf("output directory unusable: %v", err))
	}

	workers := req.MaxWorkers
	if workers <= 0 {
		workers = e.cfg.MaxWorkers
	}
	if !req.Parallel {
		workers = 1
	}

	report := &Report{
		ID:      uuid.NewString(),
		Results: make(map[string]*compiler.CompileResult, len(req.Items)),
	}

	e.log.Info(ctx, "batch started",
		"id", report.ID, "items", len(req.Items), "workers", workers, "format", string(req.Format))

	start := time.Now()
	sem := semaphore.NewWeighted(int64(workers))
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		halt bool
	)

	for _, item := range req.Items {
		if ctx.Err() != nil {
			report.Cancelled = true
			break
		}
		mu.Lock()
		stopped := halt
		mu.Unlock()
		if stopped {
			break
		}

		if err := sem.Acquire(ctx, 1); err != nil {
			report.Cancelled = true
			break
		}

		wg.Add(1)
		go func(item Item) {
			defer wg.Done()
			defer sem.Release(1)

			result := e.compileItem(ctx, item, req, outDir)

			mu.Lock()
			report.Results[item.Name] = result
			if !result.Succeeded && !req.ContinueOnError {
				halt = true
			}
			mu.Unlock()
		}(item)
	}

	wg.Wait()
	report.Elapsed = time.Since(start)

	for _, r := range report.Results {
		if r.Succeeded {
			report.SucceededCount++
		} else {
			report.FailedCount++
		}
	}

	if req.GenerateIndex && !report.Cancelled {
		path, err := e.writeIndex(report, req, outDir)
		if err != nil {
			e.log.Warn(ctx, err, "index generation failed")
		} else {
			report.IndexPath = path
		}
	}

	e.log.Info(ctx, "batch finished",
		"id", report.ID,
		"succeeded", report.SucceededCount,
		"failed", report.FailedCount,
		"cancelled", report.Cancelled,
		"elapsed_ms", report.Elapsed.Milliseconds(),
	)

	return report, nil
}

// compileItem runs one item in isolation. Hard errors from the compiler
// (invocation failures included) are folded into a failed result so they
// never unwind past the batch. The compile runs on a context detached from
// the batch cancellation signal: cancelling the batch stops dispatch, but a
// dispatched item finishes on its own per-invocation timeout.
func (e *Engine) compileItem(ctx context.Context, item Item, req Request, outDir string) *compiler.CompileResult {
	outputFile := item.OutputFile
	if outputFile == "" {
		outputFile = item.Name + req.Format.Ext()
	}
	if !filepath.IsAbs(outputFile) {
		outputFile = filepath.Join(outDir, outputFile)
	}

	result, err := e.comp.Compile(context.WithoutCancel(ctx), compiler.CompileRequest{
		SourceContent: item.Content,
		Format:        req.Format,
		OutputPath:    outputFile,
		Template:      req.Template,
		Wrap:          true,
	})
	if err != nil {
		return &compiler.CompileResult{
			Succeeded: false,
			ExitCode:  -1,
			Errors: []compiler.Diagnostic{{
				Severity: compiler.SeverityError,
				Rule:     "invocation",
				Message:  err.Error(),
			}},
		}
	}
	return result
}

// writeIndex synthesizes a summary document from the completed report,
// listing each item's name, status, and output path. Rendered to HTML for
// html batches, left as markdown otherwise.
func (e *Engine) writeIndex(report *Report, req Request, outDir string) (string, error) {
	names := make([]string, 0, len(report.Results))
	for name := range report.Results {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString("# Batch Results\n\n")
	fmt.Fprintf(&b, "%d succeeded, %d failed.\n\n", report.SucceededCount, report.FailedCount)
	for _, name := range names {
		r := report.Results[name]
		status := "failed"
		if r.Succeeded {
			status = "ok"
		}
		if r.OutputPath != "" {
			fmt.Fprintf(&b, "- **%s** (%s): [%s](%s)\n", name, status, filepath.Base(r.OutputPath), r.OutputPath)
		} else {
			fmt.Fprintf(&b, "- **%s** (%s)\n", name, status)
		}
	}

	path := filepath.Join(outDir, "index.md")
	content := []byte(b.String())

	if req.Format == compiler.FormatHTML {
		var html bytes.Buffer
		if err := goldmark.Convert(content, &html); err != nil {
			return "", err
		}
		path = filepath.Join(outDir, "index.html")
		content = html.Bytes()
	}

	if err := os.WriteFile(path, content, 0o644); err != nil {
		return "", err
	}
	return path, nil
}
