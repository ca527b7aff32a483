package mcptools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/conneroisu/qmd/internal/validate"
)

// ValidateTool checks document syntax without invoking the compiler.
type ValidateTool struct {
	validator *validate.Validator
}

func (t *ValidateTool) Definition() mcp.Tool {
	return mcp.NewTool("validate_markdown",
		mcp.WithDescription("Statically validate Quarkdown source for syntax problems. Fast: never invokes the compiler."),
		mcp.WithString("source_content",
			mcp.Required(),
			mcp.Description("Document source text to validate."),
		),
		mcp.WithBoolean("strict_mode",
			mcp.Description("Promote style warnings (callout type, unknown container) to errors."),
			mcp.DefaultBool(false),
		),
		mcp.WithBoolean("check_functions",
			mcp.Description("Check function-call syntax for unbalanced parentheses."),
			mcp.DefaultBool(true),
		),
		mcp.WithBoolean("check_variables",
			mcp.Description("Flag variable references that precede their definition."),
			mcp.DefaultBool(true),
		),
		mcp.WithBoolean("check_links",
			mcp.Description("Probe external links for reachability. Subject to the configured network policy."),
			mcp.DefaultBool(false),
		),
	)
}

func (t *ValidateTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	source, err := req.RequireString("source_content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	report := t.validator.Validate(source, validate.Options{
		Strict:         req.GetBool("strict_mode", false),
		CheckFunctions: req.GetBool("check_functions", true),
		CheckVariables: req.GetBool("check_variables", true),
		CheckLinks:     req.GetBool("check_links", false),
	})

	return jsonResult(map[string]any{
		"valid":    report.Valid,
		"errors":   diagnosticStrings(report.Errors),
		"warnings": diagnosticStrings(report.Warnings),
	})
}
