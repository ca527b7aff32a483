package compiler

import (
	"context"
	"errors"
	"os/exec"
	"strings"
	"syscall"
	"time"

	qmderrors "github.com/conneroisu/qmd/internal/errors"
	"github.com/conneroisu/qmd/internal/logging"
)

// TruncationMarker is appended to a captured stream that exceeded the
// capture limit. Excess output is cut, never silently dropped.
const TruncationMarker = "\n...[output truncated]"

// Invocation is one subprocess execution request.
type Invocation struct {
	Argv    []string
	Dir     string
	Stdin   string
	Timeout time.Duration
}

// Output is the raw observable outcome of a subprocess. A nonzero exit code
// is a normal, representable outcome, not an error of the runner.
type Output struct {
	ExitCode        int
	Stdout          string
	Stderr          string
	TimedOut        bool
	StdoutTruncated bool
	StderrTruncated bool
	Duration        time.Duration
}

// Runner executes the external compiler. The only errors it returns are
// invocation errors: the process could not be started at all.
type Runner interface {
	Run(ctx context.Context, inv Invocation) (*Output, error)
}

// ExecRunner runs subprocesses via os/exec with bounded output capture and
// process-group termination on timeout or cancellation.
type ExecRunner struct {
	maxCapture int
	log        logging.Logger
}

// NewExecRunner creates a runner capturing at most maxCapture bytes per
// stream.
func NewExecRunner(maxCapture int, log logging.Logger) *ExecRunner {
	if maxCapture <= 0 {
		maxCapture = 1 << 20
	}
	if log == nil {
		log = logging.Nop()
	}
	return &ExecRunner{maxCapture: maxCapture, log: log.WithComponent("runner")}
}

// cappedBuffer collects writes up to a byte limit and records truncation.
type cappedBuffer struct {
	buf       strings.Builder
	limit     int
	truncated bool
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	remaining := b.limit - b.buf.Len()
	if remaining <= 0 {
		b.truncated = true
		return len(p), nil
	}
	if len(p) > remaining {
		b.buf.Write(p[:remaining])
		b.truncated = true
		return len(p), nil
	}
	b.buf.Write(p)
	return len(p), nil
}

func (b *cappedBuffer) String() string {
	if b.truncated {
		return b.buf.String() + TruncationMarker
	}
	return b.buf.String()
}

// Run starts the program and waits for it, enforcing the invocation timeout
// by killing the whole process group. The process and its children are
// reaped on all exit paths.
func (r *ExecRunner) Run(ctx context.Context, inv Invocation) (*Output, error) {
	if len(inv.Argv) == 0 {
		return nil, qmderrors.NewInvocationError("empty command", nil)
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if inv.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, inv.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, inv.Argv[0], inv.Argv[1:]...)
	cmd.Dir = inv.Dir
	if inv.Stdin != "" {
		cmd.Stdin = strings.NewReader(inv.Stdin)
	}

	stdout := &cappedBuffer{limit: r.maxCapture}
	stderr := &cappedBuffer{limit: r.maxCapture}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	// Start in its own process group so a timeout kill takes child
	// processes (the JVM forks renderers for pdf output) down with it.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	cmd.WaitDelay = 5 * time.Second

	start := time.Now()
	r.log.Debug(ctx, "executing compiler", "argv", strings.Join(inv.Argv, " "), "dir", inv.Dir)

	if err := cmd.Start(); err != nil {
		return nil, qmderrors.NewInvocationError("compiler could not be started", err).
			WithContext("argv", strings.Join(inv.Argv, " "))
	}

	err := cmd.Wait()
	out := &Output{
		Stdout:          stdout.String(),
		Stderr:          stderr.String(),
		StdoutTruncated: stdout.truncated,
		StderrTruncated: stderr.truncated,
		Duration:        time.Since(start),
	}

	switch {
	case err == nil:
		out.ExitCode = 0
	case runCtx.Err() != nil && ctx.Err() == nil:
		// The per-invocation deadline fired, not the caller's context.
		out.TimedOut = true
		out.ExitCode = -1
	case ctx.Err() != nil:
		out.TimedOut = true
		out.ExitCode = -1
	default:
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			out.ExitCode = exitErr.ExitCode()
		} else {
			return nil, qmderrors.NewInvocationError("compiler execution failed", err)
		}
	}

	r.log.Debug(ctx, "compiler finished",
		"exit_code", out.ExitCode,
		"timed_out", out.TimedOut,
		"duration_ms", out.Duration.Milliseconds(),
	)

	return out, nil
}
