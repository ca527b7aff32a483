//go:build !windows

package compiler

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	qmderrors "github.com/conneroisu/qmd/internal/errors"
)

func TestExecRunnerCapturesOutput(t *testing.T) {
	r := NewExecRunner(0, nil)
	out, err := r.Run(context.Background(), Invocation{
		Argv: []string{"sh", "-c", "echo out; echo err >&2"},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, out.ExitCode)
	assert.Equal(t, "out\n", out.Stdout)
	assert.Equal(t, "err\n", out.Stderr)
	assert.False(t, out.TimedOut)
}

func TestExecRunnerNonzeroExitIsNotAnError(t *testing.T) {
	r := NewExecRunner(0, nil)
	out, err := r.Run(context.Background(), Invocation{
		Argv: []string{"sh", "-c", "exit 7"},
	})
	require.NoError(t, err)
	assert.Equal(t, 7, out.ExitCode)
}

func TestExecRunnerMissingBinary(t *testing.T) {
	r := NewExecRunner(0, nil)
	_, err := r.Run(context.Background(), Invocation{
		Argv: []string{"definitely-not-a-real-binary-qmd"},
	})
	require.Error(t, err)
	assert.True(t, qmderrors.IsInvocation(err))
}

func TestExecRunnerTimeout(t *testing.T) {
	r := NewExecRunner(0, nil)
	start := time.Now()
	out, err := r.Run(context.Background(), Invocation{
		Argv:    []string{"sh", "-c", "sleep 10"},
		Timeout: 100 * time.Millisecond,
	})
	require.NoError(t, err)
	assert.True(t, out.TimedOut)
	assert.Equal(t, -1, out.ExitCode)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestExecRunnerTruncatesLongOutput(t *testing.T) {
	r := NewExecRunner(64, nil)
	out, err := r.Run(context.Background(), Invocation{
		Argv: []string{"sh", "-c", "yes x | head -n 1000"},
	})
	require.NoError(t, err)
	assert.True(t, out.StdoutTruncated)
	assert.True(t, strings.HasSuffix(out.Stdout, TruncationMarker))
	// 64 bytes of capture plus the marker, nothing more.
	assert.LessOrEqual(t, len(out.Stdout), 64+len(TruncationMarker))
}

func TestExecRunnerStdin(t *testing.T) {
	r := NewExecRunner(0, nil)
	out, err := r.Run(context.Background(), Invocation{
		Argv:  []string{"cat"},
		Stdin: "hello",
	})
	require.NoError(t, err)
	assert.Equal(t, "hello", out.Stdout)
}

func TestExecRunnerWorkingDirectory(t *testing.T) {
	dir := t.TempDir()
	r := NewExecRunner(0, nil)
	out, err := r.Run(context.Background(), Invocation{
		Argv: []string{"pwd"},
		Dir:  dir,
	})
	require.NoError(t, err)
	assert.Contains(t, strings.TrimSpace(out.Stdout), dir)
}

func TestExecRunnerEmptyArgv(t *testing.T) {
	r := NewExecRunner(0, nil)
	_, err := r.Run(context.Background(), Invocation{})
	assert.Error(t, err)
}

func TestCappedBuffer(t *testing.T) {
	b := &cappedBuffer{limit: 5}
	n, err := b.Write([]byte("abcdefgh"))
	require.NoError(t, err)
	// Writes always report full consumption so the subprocess never
	// blocks on a short write.
	assert.Equal(t, 8, n)
	assert.True(t, b.truncated)
	assert.Equal(t, "abcde"+TruncationMarker, b.String())
}
