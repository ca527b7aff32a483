package scaffold

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/conneroisu/qmd/internal/compiler"
	"github.com/conneroisu/qmd/internal/config"
)

// unavailableRunner simulates a machine without the compiler toolchain.
type unavailableRunner struct{}

func (unavailableRunner) Run(ctx context.Context, inv compiler.Invocation) (*compiler.Output, error) {
	return &compiler.Output{ExitCode: 127, Stderr: "java: command not found"}, nil
}

// creatingRunner plays the compiler's create subcommand.
type creatingRunner struct{}

func (creatingRunner) Run(ctx context.Context, inv compiler.Invocation) (*compiler.Output, error) {
	// argv: java -jar <jar> create <path> [--template <t>]
	path := inv.Argv[4]
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, err
	}
	if err := os.WriteFile(filepath.Join(path, "main.qmd"), []byte(".docname {demo}\n"), 0o644); err != nil {
		return nil, err
	}
	return &compiler.Output{ExitCode: 0}, nil
}

func newScaffolder(t *testing.T, runner compiler.Runner) *Scaffolder {
	cfg := config.Default().Compiler
	cfg.TempDir = t.TempDir()
	return New(compiler.NewWithRunner(cfg, runner, nil), nil)
}

func TestCreateViaCompiler(t *testing.T) {
	s := newScaffolder(t, creatingRunner{})
	path := filepath.Join(t.TempDir(), "myproject")

	result, err := s.Create(context.Background(), path, "basic")
	require.NoError(t, err)

	assert.False(t, result.UsedFallback)
	assert.Contains(t, result.Files, "main.qmd")
	assert.Contains(t, result.Files, "qmd.yml")
}

func TestCreateFallsBackWhenCompilerUnavailable(t *testing.T) {
	s := newScaffolder(t, unavailableRunner{})
	path := filepath.Join(t.TempDir(), "offline")

	result, err := s.Create(context.Background(), path, "basic")
	require.NoError(t, err)

	assert.True(t, result.UsedFallback)
	assert.FileExists(t, filepath.Join(path, "main.qmd"))
}

func TestCreateWritesManifest(t *testing.T) {
	s := newScaffolder(t, creatingRunner{})
	path := filepath.Join(t.TempDir(), "withmanifest")

	_, err := s.Create(context.Background(), path, "article")
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(path, "qmd.yml"))
	require.NoError(t, err)

	var m Manifest
	require.NoError(t, yaml.Unmarshal(data, &m))
	assert.Equal(t, "withmanifest", m.Name)
	assert.Equal(t, "article", m.Template)
	assert.Equal(t, "main.qmd", m.Main)
	assert.False(t, m.Created.IsZero())
}

func TestCreateRejectsNonEmptyDirectory(t *testing.T) {
	s := newScaffolder(t, creatingRunner{})
	path := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(path, "existing.txt"), []byte("x"), 0o644))

	_, err := s.Create(context.Background(), path, "basic")
	assert.Error(t, err)
}

func TestCreateRequiresPath(t *testing.T) {
	s := newScaffolder(t, creatingRunner{})
	_, err := s.Create(context.Background(), "", "basic")
	assert.Error(t, err)
}
