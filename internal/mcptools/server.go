// Package mcptools wires the document toolchain into an MCP server.
//
// This is the composition root: it creates the concrete compiler, batch
// engine, preview manager, validator, and scaffolder, and registers each
// operation as a named tool. No business logic lives here, only wiring.
package mcptools

import (
	"github.com/mark3labs/mcp-go/server"

	"github.com/conneroisu/qmd/internal/batch"
	"github.com/conneroisu/qmd/internal/compiler"
	"github.com/conneroisu/qmd/internal/config"
	"github.com/conneroisu/qmd/internal/logging"
	"github.com/conneroisu/qmd/internal/preview"
	"github.com/conneroisu/qmd/internal/scaffold"
	"github.com/conneroisu/qmd/internal/validate"
)

// Version is set at build time via ldflags.
var Version = "dev"

// New creates the MCP server with all tools registered. The returned
// cleanup function stops any live preview sessions and must be called on
// shutdown.
func New(cfg *config.Config, log logging.Logger) (*server.MCPServer, func()) {
	comp := compiler.New(cfg.Compiler, log)
	validator := validate.New(cfg.Validator)
	engine := batch.New(comp, cfg.Batch, log)
	previews := preview.NewManager(cfg.Preview, comp, log)
	scaffolder := scaffold.New(comp, log)

	s := server.NewMCPServer(
		"qmd",
		Version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(serverInstructions),
	)

	compileTool := &CompileTool{comp: comp}
	s.AddTool(compileTool.Definition(), compileTool.Handle)

	validateTool := &ValidateTool{validator: validator}
	s.AddTool(validateTool.Definition(), validateTool.Handle)

	previewTool := &PreviewTool{previews: previews}
	s.AddTool(previewTool.Definition(), previewTool.Handle)

	batchTool := &BatchTool{engine: engine}
	s.AddTool(batchTool.Definition(), batchTool.Handle)

	createTool := &CreateTool{scaffolder: scaffolder}
	s.AddTool(createTool.Definition(), createTool.Handle)

	return s, previews.StopAll
}

const serverInstructions = `qmd drives the Quarkdown compiler. Use compile_document to render a
document, validate_markdown for fast syntax feedback without invoking the
compiler, preview_server for a live-reloading browser preview, convert_batch
to render many documents concurrently, and create_project to scaffold a new
project.`
