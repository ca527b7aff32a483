package mcptools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/conneroisu/qmd/internal/scaffold"
)

// CreateTool scaffolds new projects.
type CreateTool struct {
	scaffolder *scaffold.Scaffolder
}

func (t *CreateTool) Definition() mcp.Tool {
	return mcp.NewTool("create_project",
		mcp.WithDescription("Scaffold a new Quarkdown project with a main document and manifest."),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("Directory to create the project in. Must not already contain files."),
		),
		mcp.WithString("template",
			mcp.Description("Project template: basic, article, book, or slides."),
			mcp.DefaultString("basic"),
		),
	)
}

func (t *CreateTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result, err := t.scaffolder.Create(ctx, path, req.GetString("template", "basic"))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return jsonResult(map[string]any{
		"path":          result.Path,
		"files":         result.Files,
		"used_fallback": result.UsedFallback,
	})
}
