package mcptools

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/qmd/internal/config"
	"github.com/conneroisu/qmd/internal/validate"
)

func TestToolDefinitions(t *testing.T) {
	tools := []interface{ Definition() mcp.Tool }{
		&CompileTool{},
		&ValidateTool{},
		&PreviewTool{},
		&BatchTool{},
		&CreateTool{},
	}

	names := map[string]bool{}
	for _, tool := range tools {
		def := tool.Definition()
		assert.NotEmpty(t, def.Name)
		assert.NotEmpty(t, def.Description)
		assert.False(t, names[def.Name], "duplicate tool name %s", def.Name)
		names[def.Name] = true
	}

	for _, want := range []string{
		"compile_document", "validate_markdown", "preview_server", "convert_batch", "create_project",
	} {
		assert.True(t, names[want], "missing tool %s", want)
	}
}

func callRequest(name string, args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content)
	text, ok := mcp.AsTextContent(result.Content[0])
	require.True(t, ok)
	return text.Text
}

func TestValidateToolHandle(t *testing.T) {
	tool := &ValidateTool{validator: validate.New(config.Default().Validator)}

	result, err := tool.Handle(context.Background(), callRequest("validate_markdown", map[string]any{
		"source_content": "# Document\n\n.callout\n\n![](image.png)\n\n{{ func(",
		"strict_mode":    true,
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	var resp struct {
		Valid    bool     `json:"valid"`
		Errors   []string `json:"errors"`
		Warnings []string `json:"warnings"`
	}
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &resp))
	assert.False(t, resp.Valid)
	assert.NotEmpty(t, resp.Errors)
}

func TestValidateToolRequiresSource(t *testing.T) {
	tool := &ValidateTool{validator: validate.New(config.Default().Validator)}

	result, err := tool.Handle(context.Background(), callRequest("validate_markdown", map[string]any{}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestTruncateRunes(t *testing.T) {
	assert.Equal(t, "short", truncateRunes("short", 100))

	long := truncateRunes(string(make([]rune, 5000)), 2000)
	assert.Contains(t, long, "truncated")
	assert.Less(t, len([]rune(long)), 2100)
}

func TestServerWiring(t *testing.T) {
	cfg := config.Default()
	cfg.Compiler.TempDir = t.TempDir()

	s, cleanup := New(cfg, nil)
	defer cleanup()
	assert.NotNil(t, s)
}
