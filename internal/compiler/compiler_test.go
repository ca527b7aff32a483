package compiler

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/qmd/internal/config"
)

func TestBuildArgs(t *testing.T) {
	tests := []struct {
		name     string
		req      CompileRequest
		expected []string
	}{
		{
			name:     "html with wrap",
			req:      CompileRequest{Format: FormatHTML, Wrap: true},
			expected: []string{"c", "in.qmd", "-o", "out", "-r", "html"},
		},
		{
			name:     "pdf pretty",
			req:      CompileRequest{Format: FormatPDF, Pretty: true, Wrap: true},
			expected: []string{"c", "in.qmd", "-o", "out", "-r", "pdf", "--pretty"},
		},
		{
			name:     "nowrap when wrap disabled",
			req:      CompileRequest{Format: FormatMarkdown},
			expected: []string{"c", "in.qmd", "-o", "out", "-r", "md", "--nowrap"},
		},
		{
			name:     "pretty and nowrap together",
			req:      CompileRequest{Format: FormatTeX, Pretty: true},
			expected: []string{"c", "in.qmd", "-o", "out", "-r", "tex", "--pretty", "--nowrap"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := BuildArgs("in.qmd", "out", tt.req)
			assert.Equal(t, tt.expected, args)
		})
	}
}

// The argument mapping is the single highest-value contract here: a
// long-form spelling or a boolean passed as =false silently changes
// compiler behavior without any invocation error.
func TestBuildArgsProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.Rng.Seed(4242)
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	formats := gen.OneConstOf(FormatHTML, FormatPDF, FormatTeX, FormatMarkdown, FormatDocx)

	properties.Property("never emits long-form output flags", prop.ForAll(
		func(format Format, pretty, wrap bool) bool {
			args := BuildArgs("doc.qmd", "outdir", CompileRequest{Format: format, Pretty: pretty, Wrap: wrap})
			for _, a := range args {
				if strings.HasPrefix(a, "--output-format") || strings.HasPrefix(a, "--output-path") {
					return false
				}
				if strings.Contains(a, "=false") {
					return false
				}
			}
			return true
		},
		formats, gen.Bool(), gen.Bool(),
	))

	properties.Property("render target always passes through -r", prop.ForAll(
		func(format Format, pretty, wrap bool) bool {
			args := BuildArgs("doc.qmd", "outdir", CompileRequest{Format: format, Pretty: pretty, Wrap: wrap})
			for i, a := range args {
				if a == "-r" {
					return i+1 < len(args) && args[i+1] == string(format)
				}
			}
			return false
		},
		formats, gen.Bool(), gen.Bool(),
	))

	properties.Property("boolean flags present only when enabled", prop.ForAll(
		func(format Format, pretty, wrap bool) bool {
			args := BuildArgs("doc.qmd", "outdir", CompileRequest{Format: format, Pretty: pretty, Wrap: wrap})
			hasPretty := false
			hasNowrap := false
			for _, a := range args {
				if a == "--pretty" {
					hasPretty = true
				}
				if a == "--nowrap" {
					hasNowrap = true
				}
			}
			return hasPretty == pretty && hasNowrap == !wrap
		},
		formats, gen.Bool(), gen.Bool(),
	))

	properties.TestingRun(t)
}

// fakeRunner simulates the compiler without spawning a process. It locates
// the staged input and the output directory in the argv it receives, the
// same way the real compiler would.
type fakeRunner struct {
	exitCode    int
	stdout      string
	stderr      string
	writeEmpty  bool
	skipWrite   bool
	invocations []Invocation
}

func (f *fakeRunner) Run(ctx context.Context, inv Invocation) (*Output, error) {
	f.invocations = append(f.invocations, inv)

	var outDir, format string
	for i, a := range inv.Argv {
		if a == "-o" && i+1 < len(inv.Argv) {
			outDir = inv.Argv[i+1]
		}
		if a == "-r" && i+1 < len(inv.Argv) {
			format = inv.Argv[i+1]
		}
	}

	if f.exitCode == 0 && !f.skipWrite && outDir != "" {
		content := []byte("<html><body>rendered</body></html>")
		if f.writeEmpty {
			content = nil
		}
		_ = os.WriteFile(filepath.Join(outDir, "output."+format), content, 0o644)
	}

	return &Output{ExitCode: f.exitCode, Stdout: f.stdout, Stderr: f.stderr}, nil
}

func testCompilerConfig(t *testing.T) config.CompilerConfig {
	cfg := config.Default().Compiler
	cfg.TempDir = t.TempDir()
	return cfg
}

func TestCompileFromContent(t *testing.T) {
	runner := &fakeRunner{}
	c := NewWithRunner(testCompilerConfig(t), runner, nil)

	result, err := c.Compile(context.Background(), CompileRequest{
		SourceContent: "# Hello",
		Format:        FormatHTML,
		Wrap:          true,
	})
	require.NoError(t, err)
	assert.True(t, result.Succeeded)
	assert.Contains(t, string(result.Output), "rendered")
	assert.Empty(t, result.Errors)

	// The staged input must have been cleaned up with its scratch dir.
	require.Len(t, runner.invocations, 1)
	input := runner.invocations[0].Argv[4]
	_, statErr := os.Stat(input)
	assert.True(t, os.IsNotExist(statErr))
}

func TestCompileDeliversToOutputPath(t *testing.T) {
	runner := &fakeRunner{}
	c := NewWithRunner(testCompilerConfig(t), runner, nil)

	target := filepath.Join(t.TempDir(), "nested", "doc.html")
	result, err := c.Compile(context.Background(), CompileRequest{
		SourceContent: "# Hello",
		Format:        FormatHTML,
		OutputPath:    target,
		Wrap:          true,
	})
	require.NoError(t, err)
	assert.True(t, result.Succeeded)
	assert.Equal(t, target, result.OutputPath)

	content, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Contains(t, string(content), "rendered")
}

func TestCompileFailsOnNonzeroExit(t *testing.T) {
	runner := &fakeRunner{exitCode: 1, stderr: "something broke at line 3"}
	c := NewWithRunner(testCompilerConfig(t), runner, nil)

	result, err := c.Compile(context.Background(), CompileRequest{
		SourceContent: "# Hello",
		Format:        FormatHTML,
		Wrap:          true,
	})
	require.NoError(t, err)
	assert.False(t, result.Succeeded)
	assert.NotEmpty(t, result.Errors)
}

func TestCompileFailsWhenNoArtifactProduced(t *testing.T) {
	runner := &fakeRunner{skipWrite: true}
	c := NewWithRunner(testCompilerConfig(t), runner, nil)

	result, err := c.Compile(context.Background(), CompileRequest{
		SourceContent: "# Hello",
		Format:        FormatHTML,
		Wrap:          true,
	})
	require.NoError(t, err)
	assert.False(t, result.Succeeded)
	require.NotEmpty(t, result.Errors)
	assert.Equal(t, "no-output", result.Errors[0].Rule)
}

func TestCompileStagesTemplate(t *testing.T) {
	// The scratch dir is removed before Compile returns, so the staged
	// content has to be captured while the runner executes.
	capture := &contentCapturingRunner{}
	c := NewWithRunner(testCompilerConfig(t), capture, nil)
	_, err := c.Compile(context.Background(), CompileRequest{
		SourceContent: "# Hello",
		Format:        FormatHTML,
		Template:      "darko",
		Wrap:          true,
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(capture.staged, ".theme {darko}\n"))
	assert.Contains(t, capture.staged, "# Hello")
}

type contentCapturingRunner struct {
	staged string
}

func (r *contentCapturingRunner) Run(ctx context.Context, inv Invocation) (*Output, error) {
	data, _ := os.ReadFile(inv.Argv[4])
	r.staged = string(data)
	return &Output{ExitCode: 0}, nil
}

func TestCompileRequestValidate(t *testing.T) {
	assert.Error(t, CompileRequest{Format: FormatHTML}.Validate())
	assert.Error(t, CompileRequest{SourceContent: "x", InputFile: "y", Format: FormatHTML}.Validate())
	assert.Error(t, CompileRequest{SourceContent: "x", Format: "svg"}.Validate())
	assert.NoError(t, CompileRequest{SourceContent: "x", Format: FormatHTML}.Validate())
}

func TestCompileRejectsMissingInputFile(t *testing.T) {
	c := NewWithRunner(testCompilerConfig(t), &fakeRunner{}, nil)
	_, err := c.Compile(context.Background(), CompileRequest{
		InputFile: filepath.Join(t.TempDir(), "missing.qmd"),
		Format:    FormatHTML,
	})
	assert.Error(t, err)
}

func TestFindArtifact(t *testing.T) {
	dir := t.TempDir()
	nested := filepath.Join(dir, "doc")
	require.NoError(t, os.MkdirAll(nested, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(nested, "doc.htm"), []byte("x"), 0o644))

	// .htm is accepted for html output.
	assert.NotEmpty(t, findArtifact(dir, FormatHTML))
	assert.Empty(t, findArtifact(dir, FormatPDF))
}
