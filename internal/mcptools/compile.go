package mcptools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/conneroisu/qmd/internal/compiler"
)

// inlineContentLimit caps how much rendered output is echoed inline in a
// tool response; larger renders are delivered through the output file.
const inlineContentLimit = 2000

// CompileTool renders one document through the compiler.
type CompileTool struct {
	comp *compiler.Compiler
}

func (t *CompileTool) Definition() mcp.Tool {
	return mcp.NewTool("compile_document",
		mcp.WithDescription("Compile a Quarkdown document to HTML, PDF, LaTeX, Markdown, or DOCX. Provide either source_content or input_file, not both."),
		mcp.WithString("source_content",
			mcp.Description("Document source text to compile. Mutually exclusive with input_file."),
		),
		mcp.WithString("input_file",
			mcp.Description("Path to a document file to compile. Mutually exclusive with source_content."),
		),
		mcp.WithString("output_format",
			mcp.Description("Render target: html, pdf, tex, md, or docx."),
			mcp.Enum("html", "pdf", "tex", "md", "docx"),
			mcp.DefaultString("html"),
		),
		mcp.WithString("output_file",
			mcp.Description("Path to write the compiled artifact to."),
		),
		mcp.WithBoolean("pretty",
			mcp.Description("Pretty-print the generated output."),
			mcp.DefaultBool(false),
		),
		mcp.WithBoolean("wrap",
			mcp.Description("Wrap output lines. Disable for diff-friendly output."),
			mcp.DefaultBool(true),
		),
		mcp.WithString("working_directory",
			mcp.Description("Directory the compiler resolves relative resources from."),
		),
		mcp.WithString("template",
			mcp.Description("Theme applied to the document."),
		),
	)
}

func (t *CompileTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	format, err := compiler.ParseFormat(req.GetString("output_format", "html"))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result, err := t.comp.Compile(ctx, compiler.CompileRequest{
		SourceContent: req.GetString("source_content", ""),
		InputFile:     req.GetString("input_file", ""),
		Format:        format,
		OutputPath:    req.GetString("output_file", ""),
		Pretty:        req.GetBool("pretty", false),
		Wrap:          req.GetBool("wrap", true),
		WorkingDir:    req.GetString("working_directory", ""),
		Template:      req.GetString("template", ""),
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return jsonResult(compileResponse(result, format))
}

// compileResponse shapes a result for the wire: binary formats report the
// artifact path only, text formats inline the content up to a cap.
func compileResponse(result *compiler.CompileResult, format compiler.Format) map[string]any {
	resp := map[string]any{
		"success":   result.Succeeded,
		"exit_code": result.ExitCode,
		"errors":    diagnosticStrings(result.Errors),
		"warnings":  diagnosticStrings(result.Warnings),
		"raw_log":   truncateRunes(result.RawLog(), inlineContentLimit),
	}
	if result.TimedOut {
		resp["timed_out"] = true
	}
	if result.OutputPath != "" {
		resp["output_path"] = result.OutputPath
	}
	if result.Succeeded && !format.Binary() {
		resp["content"] = truncateRunes(string(result.Output), inlineContentLimit)
	}
	return resp
}

func diagnosticStrings(ds []compiler.Diagnostic) []string {
	out := make([]string, len(ds))
	for i, d := range ds {
		out[i] = d.String()
	}
	return out
}

// truncateRunes cuts text at a rune boundary, marking the cut.
func truncateRunes(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + fmt.Sprintf("\n...[truncated, %d characters total]", len(runes))
}

// jsonResult marshals a response payload into a text tool result.
func jsonResult(payload any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("could not encode response: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
