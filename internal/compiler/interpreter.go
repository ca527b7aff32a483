package compiler

import (
	"os"
	"regexp"
	"strconv"
	"strings"
)

// DefaultErrorTokens is the empirically derived vocabulary of tokens the
// compiler is known to print when something went wrong even though it
// exited 0. The list is configurable (compiler.error_tokens) and should be
// revisited against the real compiler's output rather than assumed
// exhaustive.
var DefaultErrorTokens = []string{"error", "failed", "unresolved", "exception", "cannot"}

// Interpreter decides success or failure of a compiler invocation. The
// wrapped compiler sometimes exits 0 while printing an error, so the exit
// code is corroborated by text inspection and output existence.
type Interpreter struct {
	tokenRe   *regexp.Regexp
	warningRe *regexp.Regexp
	lineRe    *regexp.Regexp
}

// NewInterpreter builds an interpreter over the given error-token
// vocabulary. Tokens match whole words, case-insensitively, so benign words
// that merely contain a token never trip the scan.
func NewInterpreter(tokens []string) *Interpreter {
	if len(tokens) == 0 {
		tokens = DefaultErrorTokens
	}
	quoted := make([]string, len(tokens))
	for i, t := range tokens {
		quoted[i] = regexp.QuoteMeta(t)
	}
	return &Interpreter{
		tokenRe:   regexp.MustCompile(`(?i)(^|[^a-z0-9_])(` + strings.Join(quoted, "|") + `)($|[^a-z0-9_])`),
		warningRe: regexp.MustCompile(`(?i)(^|[^a-z0-9_])warning($|[^a-z0-9_])`),
		lineRe:    regexp.MustCompile(`(?i)\bline[:\s]+(\d+)`),
	}
}

// ContainsErrorToken reports whether the text contains any error token as a
// whole word.
func (in *Interpreter) ContainsErrorToken(text string) bool {
	return in.tokenRe.MatchString(text)
}

// Interpret turns raw invoker output into a structured CompileResult.
//
// Decision rule: succeeded iff the exit code is zero, no error token
// appears in the combined output, and, when an output artifact was
// requested, that artifact now exists and is non-empty.
func (in *Interpreter) Interpret(out *Output, requestedOutput string) *CompileResult {
	result := &CompileResult{
		ExitCode: out.ExitCode,
		Stdout:   out.Stdout,
		Stderr:   out.Stderr,
		TimedOut: out.TimedOut,
		Duration: out.Duration,
	}

	if out.TimedOut {
		result.Errors = append(result.Errors, Diagnostic{
			Severity: SeverityError,
			Rule:     "timeout",
			Message:  "compiler did not finish within the allotted time",
		})
		return result
	}

	combined := out.Stdout + "\n" + out.Stderr
	tainted := in.ContainsErrorToken(combined)
	artifactOK := requestedOutput == "" || existsNonEmpty(requestedOutput)

	result.Errors, result.Warnings = in.scanDiagnostics(combined)

	succeeded := out.ExitCode == 0 && !tainted && artifactOK
	if succeeded {
		// A successful result never carries error-severity diagnostics
		// scanned from output.
		result.Errors = nil
		result.Succeeded = true
		result.OutputPath = requestedOutput
		return result
	}

	if requestedOutput != "" && !artifactOK && out.ExitCode == 0 && !tainted {
		result.Errors = append(result.Errors, Diagnostic{
			Severity: SeverityError,
			Rule:     "no-output",
			Message:  "compiler exited cleanly but produced no output file",
		})
	}

	if len(result.Errors) == 0 {
		result.Errors = append(result.Errors, Diagnostic{
			Severity: SeverityError,
			Rule:     "compiler",
			Message:  syntheticMessage(out),
		})
	}

	return result
}

// scanDiagnostics derives diagnostics from severity-tagged output lines.
func (in *Interpreter) scanDiagnostics(text string) (errs, warns []Diagnostic) {
	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}

		var severity Severity
		switch {
		case in.warningRe.MatchString(line):
			severity = SeverityWarning
		case in.tokenRe.MatchString(line):
			severity = SeverityError
		default:
			continue
		}

		d := Diagnostic{
			Severity: severity,
			Rule:     "compiler",
			Message:  line,
		}
		if m := in.lineRe.FindStringSubmatch(line); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil {
				d.Line = n
			}
		}

		if severity == SeverityError {
			errs = append(errs, d)
		} else {
			warns = append(warns, d)
		}
	}
	return errs, warns
}

// syntheticMessage builds a fallback error message from the stderr tail
// when no structured diagnostics could be parsed.
func syntheticMessage(out *Output) string {
	tail := lastLines(out.Stderr, 5)
	if tail == "" {
		tail = lastLines(out.Stdout, 5)
	}
	if tail == "" {
		return "compilation failed with exit code " + strconv.Itoa(out.ExitCode)
	}
	return tail
}

func lastLines(text string, n int) string {
	lines := strings.Split(strings.TrimSpace(text), "\n")
	var kept []string
	for _, l := range lines {
		if strings.TrimSpace(l) != "" {
			kept = append(kept, strings.TrimSpace(l))
		}
	}
	if len(kept) == 0 {
		return ""
	}
	if len(kept) > n {
		kept = kept[len(kept)-n:]
	}
	return strings.Join(kept, "\n")
}

func existsNonEmpty(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Size() > 0
}
