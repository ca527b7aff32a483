package compiler

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/conneroisu/qmd/internal/config"
	qmderrors "github.com/conneroisu/qmd/internal/errors"
	"github.com/conneroisu/qmd/internal/logging"
)

// Compiler orchestrates one-shot compilations of Quarkdown documents. Each
// invocation gets its own subprocess and, when compiling from in-memory
// content, its own temporary working directory removed on completion, so no
// content leaks between requests.
type Compiler struct {
	cfg    config.CompilerConfig
	runner Runner
	interp *Interpreter
	log    logging.Logger
}

// New creates a compiler from configuration with the default exec runner.
func New(cfg config.CompilerConfig, log logging.Logger) *Compiler {
	if log == nil {
		log = logging.Nop()
	}
	return &Compiler{
		cfg:    cfg,
		runner: NewExecRunner(cfg.MaxOutputBytes, log),
		interp: NewInterpreter(cfg.ErrorTokens),
		log:    log.WithComponent("compiler"),
	}
}

// NewWithRunner creates a compiler with an injected runner. Used in tests.
func NewWithRunner(cfg config.CompilerConfig, runner Runner, log logging.Logger) *Compiler {
	c := New(cfg, log)
	c.runner = runner
	return c
}

// BuildArgs maps a compile request onto the compiler's command-line
// surface.
//
// The render target goes through the compiler's `-r` flag and the output
// destination through `-o`, never the long-form `--output-format` or
// `--output-path` spellings, which the compiler interprets differently.
// Boolean toggles are present only when enabled; the compiler treats the
// presence of the flag as true, so `--pretty=false` would still enable it.
func BuildArgs(inputFile, outputDir string, req CompileRequest) []string {
	args := []string{"c", inputFile, "-o", outputDir, "-r", string(req.Format)}
	if req.Pretty {
		args = append(args, "--pretty")
	}
	if !req.Wrap {
		args = append(args, "--nowrap")
	}
	return args
}

// Compile runs the external compiler for one request.
//
// Hard errors are reserved for setup and invocation failures; a compiler
// run that produced a failing result returns that result with a nil error.
func (c *Compiler) Compile(ctx context.Context, req CompileRequest) (*CompileResult, error) {
	if err := req.Validate(); err != nil {
		return nil, qmderrors.NewValidationError("ERR_BAD_REQUEST", err.Error())
	}

	inputFile := req.InputFile
	workDir := req.WorkingDir

	// In-memory content is staged in an isolated scratch directory,
	// created fresh and removed whether the compile succeeds or fails.
	if req.SourceContent != "" {
		scratch, err := os.MkdirTemp(c.cfg.TempDir, "qmd-compile-")
		if err != nil {
			return nil, qmderrors.NewInternalError("could not create scratch directory", err)
		}
		defer os.RemoveAll(scratch)

		source := req.SourceContent
		if req.Template != "" {
			source = ".theme {" + req.Template + "}\n\n" + source
		}

		inputFile = filepath.Join(scratch, "input.qmd")
		if err := os.WriteFile(inputFile, []byte(source), 0o644); err != nil {
			return nil, qmderrors.NewInternalError("could not stage source content", err)
		}
		if workDir == "" {
			workDir = scratch
		}
	} else {
		if _, err := os.Stat(inputFile); err != nil {
			return nil, qmderrors.NewValidationError("ERR_INPUT_FILE",
				fmt.Sprintf("input file not readable: %v", err))
		}
		if workDir == "" {
			workDir = filepath.Dir(inputFile)
		}
	}

	outDir, err := os.MkdirTemp(c.cfg.TempDir, "qmd-out-")
	if err != nil {
		return nil, qmderrors.NewInternalError("could not create output directory", err)
	}
	defer os.RemoveAll(outDir)

	out, err := c.runner.Run(ctx, Invocation{
		Argv:    append(c.cfg.Command(), BuildArgs(inputFile, outDir, req)...),
		Dir:     workDir,
		Timeout: c.cfg.Timeout(),
	})
	if err != nil {
		return nil, err
	}

	artifact := findArtifact(outDir, req.Format)
	result := c.interp.Interpret(out, artifact)

	// A clean run that produced no artifact of the requested format is
	// still a failure; Interpret only checks paths it was given.
	if result.Succeeded && artifact == "" {
		result.Succeeded = false
		result.Errors = append(result.Errors, Diagnostic{
			Severity: SeverityError,
			Rule:     "no-output",
			Message:  "no output files generated",
		})
		return result, nil
	}

	if result.Succeeded {
		content, readErr := os.ReadFile(artifact)
		if readErr != nil {
			return nil, qmderrors.NewInternalError("could not read compiled artifact", readErr)
		}
		result.Output = content

		if req.OutputPath != "" {
			if err := deliverArtifact(content, req.OutputPath); err != nil {
				return nil, err
			}
			result.OutputPath = req.OutputPath
		} else {
			result.OutputPath = ""
		}
	}

	return result, nil
}

// Version asks the compiler for its version string.
func (c *Compiler) Version(ctx context.Context) (string, error) {
	out, err := c.runner.Run(ctx, Invocation{
		Argv:    append(c.cfg.Command(), "--version"),
		Timeout: c.cfg.Timeout(),
	})
	if err != nil {
		return "", err
	}
	if out.ExitCode != 0 {
		return "", qmderrors.NewCompileError("compiler version probe failed", nil).
			WithContext("stderr", out.Stderr)
	}
	return strings.TrimSpace(out.Stdout), nil
}

// CreateProject drives the compiler's project scaffolding subcommand.
func (c *Compiler) CreateProject(ctx context.Context, path, template string) (*Output, error) {
	args := append(c.cfg.Command(), "create", path)
	if template != "" && template != "basic" {
		args = append(args, "--template", template)
	}
	return c.runner.Run(ctx, Invocation{Argv: args, Timeout: c.cfg.Timeout()})
}

// findArtifact locates the compiled artifact of the requested format in the
// output directory. The compiler nests output under a per-document
// directory, so the walk is recursive; the first match wins.
func findArtifact(dir string, format Format) string {
	var found string
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || found != "" || d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if ext == format.Ext() || (format == FormatHTML && ext == ".htm") {
			found = path
			return filepath.SkipAll
		}
		return nil
	})
	return found
}

// deliverArtifact writes the compiled content to the caller's requested
// output path, creating parent directories as needed.
func deliverArtifact(content []byte, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return qmderrors.NewInternalError("could not create output directory", err)
	}
	if err := os.WriteFile(target, content, 0o644); err != nil {
		return qmderrors.NewInternalError("could not write output file", err)
	}
	return nil
}
