package mcptools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/conneroisu/qmd/internal/batch"
	"github.com/conneroisu/qmd/internal/compiler"
)

// BatchTool converts many documents in one bounded-concurrency run.
type BatchTool struct {
	engine *batch.Engine
}

type batchArgs struct {
	Documents []struct {
		Name       string `json:"name"`
		Content    string `json:"content"`
		OutputFile string `json:"output_file"`
	} `json:"documents"`
	OutputFormat    string `json:"output_format"`
	OutputDirectory string `json:"output_directory"`
	Template        string `json:"template"`
	Parallel        *bool  `json:"parallel_processing"`
	MaxWorkers      int    `json:"max_workers"`
	ContinueOnError *bool  `json:"continue_on_error"`
	GenerateIndex   bool   `json:"generate_index"`
}

func (t *BatchTool) Definition() mcp.Tool {
	return mcp.NewTool("convert_batch",
		mcp.WithDescription("Compile a list of documents concurrently. Each document is compiled in isolation; one failure never aborts the others unless continue_on_error is false."),
		mcp.WithArray("documents",
			mcp.Required(),
			mcp.Description("Documents to compile. Each needs a unique name and its source content; output_file overrides the derived artifact name."),
			mcp.Items(map[string]any{
				"type": "object",
				"properties": map[string]any{
					"name":        map[string]any{"type": "string"},
					"content":     map[string]any{"type": "string"},
					"output_file": map[string]any{"type": "string"},
				},
				"required": []string{"name", "content"},
			}),
		),
		mcp.WithString("output_format",
			mcp.Description("Render target applied to every document."),
			mcp.Enum("html", "pdf", "tex", "md", "docx"),
			mcp.DefaultString("html"),
		),
		mcp.WithString("output_directory",
			mcp.Description("Directory artifacts are written to."),
		),
		mcp.WithString("template",
			mcp.Description("Theme applied to every document."),
		),
		mcp.WithBoolean("parallel_processing",
			mcp.Description("Compile documents concurrently."),
			mcp.DefaultBool(true),
		),
		mcp.WithNumber("max_workers",
			mcp.Description("Upper bound on concurrent compiler processes."),
			mcp.DefaultNumber(4),
		),
		mcp.WithBoolean("continue_on_error",
			mcp.Description("Keep dispatching remaining documents after a failure."),
			mcp.DefaultBool(true),
		),
		mcp.WithBoolean("generate_index",
			mcp.Description("Write a summary index document listing every result."),
			mcp.DefaultBool(false),
		),
	)
}

func (t *BatchTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args batchArgs
	if err := req.BindArguments(&args); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	format := args.OutputFormat
	if format == "" {
		format = "html"
	}

	items := make([]batch.Item, len(args.Documents))
	for i, d := range args.Documents {
		items[i] = batch.Item{Name: d.Name, Content: d.Content, OutputFile: d.OutputFile}
	}

	parallel := args.Parallel == nil || *args.Parallel
	continueOnError := args.ContinueOnError == nil || *args.ContinueOnError

	report, err := t.engine.Run(ctx, batch.Request{
		Items:           items,
		Format:          compiler.Format(format),
		OutputDir:       args.OutputDirectory,
		Template:        args.Template,
		Parallel:        parallel,
		MaxWorkers:      args.MaxWorkers,
		ContinueOnError: continueOnError,
		GenerateIndex:   args.GenerateIndex,
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	results := make(map[string]any, len(report.Results))
	for name, r := range report.Results {
		entry := map[string]any{
			"success":  r.Succeeded,
			"errors":   diagnosticStrings(r.Errors),
			"warnings": diagnosticStrings(r.Warnings),
		}
		if r.OutputPath != "" {
			entry["output_path"] = r.OutputPath
		}
		results[name] = entry
	}

	resp := map[string]any{
		"batch_id":        report.ID,
		"results":         results,
		"succeeded_count": report.SucceededCount,
		"failed_count":    report.FailedCount,
		"elapsed_ms":      report.Elapsed.Milliseconds(),
	}
	if report.Cancelled {
		resp["cancelled"] = true
	}
	if report.IndexPath != "" {
		resp["index_path"] = report.IndexPath
	}
	return jsonResult(resp)
}
