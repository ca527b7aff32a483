package mcptools

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/conneroisu/qmd/internal/preview"
)

// PreviewTool manages live-preview sessions.
type PreviewTool struct {
	previews *preview.Manager
}

func (t *PreviewTool) Definition() mcp.Tool {
	return mcp.NewTool("preview_server",
		mcp.WithDescription("Start, stop, or inspect a live HTML preview of a document. Start serves the render over HTTP, watches the document's files, and pushes reload notifications to connected browsers."),
		mcp.WithString("action",
			mcp.Description("start, stop, or status."),
			mcp.Enum("start", "stop", "status"),
			mcp.DefaultString("start"),
		),
		mcp.WithString("source_content",
			mcp.Description("Document source text to preview. Mutually exclusive with input_file."),
		),
		mcp.WithString("input_file",
			mcp.Description("Path to a document file to preview. Mutually exclusive with source_content."),
		),
		mcp.WithNumber("port",
			mcp.Description("TCP port to serve on."),
			mcp.DefaultNumber(8080),
		),
		mcp.WithBoolean("auto_reload",
			mcp.Description("Reload connected browsers after each successful rebuild."),
			mcp.DefaultBool(true),
		),
		mcp.WithString("theme",
			mcp.Description("Theme applied to the rendered document."),
		),
		mcp.WithArray("watch_files",
			mcp.Description("Additional files whose modification triggers a rebuild."),
			mcp.WithStringItems(),
		),
		mcp.WithBoolean("open_browser",
			mcp.Description("Open the preview URL in the default browser."),
			mcp.DefaultBool(false),
		),
		mcp.WithString("session_id",
			mcp.Description("Session to stop or inspect. Required for stop and status."),
		),
	)
}

func (t *PreviewTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	switch req.GetString("action", "start") {
	case "stop":
		return t.stop(req)
	case "status":
		return t.status(req)
	default:
		return t.start(ctx, req)
	}
}

func (t *PreviewTool) start(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	session, err := t.previews.Start(ctx, preview.Options{
		SourceContent: req.GetString("source_content", ""),
		InputFile:     req.GetString("input_file", ""),
		Port:          req.GetInt("port", 8080),
		Theme:         req.GetString("theme", ""),
		AutoReload:    req.GetBool("auto_reload", true),
		WatchFiles:    req.GetStringSlice("watch_files", nil),
		OpenBrowser:   req.GetBool("open_browser", false),
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return jsonResult(map[string]any{
		"url":        session.URL(),
		"session_id": session.ID,
		"state":      session.State().String(),
	})
}

func (t *PreviewTool) stop(req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if !t.previews.Stop(id) {
		return mcp.NewToolResultError(fmt.Sprintf("no preview session %s", id)), nil
	}
	return jsonResult(map[string]any{"session_id": id, "state": "stopped"})
}

func (t *PreviewTool) status(req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	session, ok := t.previews.Get(id)
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("no preview session %s", id)), nil
	}
	return jsonResult(map[string]any{
		"session_id": session.ID,
		"url":        session.URL(),
		"state":      session.State().String(),
	})
}
