// Package compiler drives the external Quarkdown compiler: it maps compile
// requests onto the compiler's command-line surface, executes it as a
// bounded subprocess, and interprets exit status and output text into
// structured compile results.
package compiler

import (
	"fmt"
	"time"
)

// Format is a render target understood by the compiler.
type Format string

const (
	FormatHTML     Format = "html"
	FormatPDF      Format = "pdf"
	FormatTeX      Format = "tex"
	FormatMarkdown Format = "md"
	FormatDocx     Format = "docx"
)

// SupportedFormats lists every render target the compiler accepts.
func SupportedFormats() []Format {
	return []Format{FormatHTML, FormatPDF, FormatTeX, FormatMarkdown, FormatDocx}
}

// ParseFormat validates a render target string.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatHTML, FormatPDF, FormatTeX, FormatMarkdown, FormatDocx:
		return Format(s), nil
	}
	return "", fmt.Errorf("unsupported output format: %q", s)
}

// Ext returns the file extension for artifacts of this format.
func (f Format) Ext() string {
	return "." + string(f)
}

// Binary reports whether the format produces non-text artifacts.
func (f Format) Binary() bool {
	return f == FormatPDF || f == FormatDocx
}

// ContentType returns the MIME type served for this format.
func (f Format) ContentType() string {
	switch f {
	case FormatHTML:
		return "text/html; charset=utf-8"
	case FormatPDF:
		return "application/pdf"
	case FormatTeX:
		return "application/x-tex"
	case FormatMarkdown:
		return "text/markdown; charset=utf-8"
	case FormatDocx:
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	default:
		return "application/octet-stream"
	}
}

// Severity classifies a diagnostic.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Diagnostic is one structured error or warning with an optional source
// location. Immutable value.
type Diagnostic struct {
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
	Rule     string   `json:"rule"`
	Line     int      `json:"line,omitempty"`
	Column   int      `json:"column,omitempty"`
}

func (d Diagnostic) String() string {
	if d.Line > 0 {
		return fmt.Sprintf("%s [%s] line %d: %s", d.Severity, d.Rule, d.Line, d.Message)
	}
	return fmt.Sprintf("%s [%s]: %s", d.Severity, d.Rule, d.Message)
}

// CompileRequest describes one compilation. Immutable once constructed;
// exactly one of SourceContent or InputFile must be set.
type CompileRequest struct {
	SourceContent string
	InputFile     string
	Format        Format
	OutputPath    string
	Pretty        bool
	Wrap          bool
	WorkingDir    string
	Template      string
}

// Validate checks request preconditions before any subprocess is spawned.
func (r CompileRequest) Validate() error {
	if r.SourceContent == "" && r.InputFile == "" {
		return fmt.Errorf("either source content or an input file must be provided")
	}
	if r.SourceContent != "" && r.InputFile != "" {
		return fmt.Errorf("source content and input file are mutually exclusive")
	}
	if _, err := ParseFormat(string(r.Format)); err != nil {
		return err
	}
	return nil
}

// CompileResult is the interpreted outcome of one compiler invocation.
// Owned by the caller after return.
type CompileResult struct {
	Succeeded  bool          `json:"succeeded"`
	ExitCode   int           `json:"exit_code"`
	Stdout     string        `json:"stdout"`
	Stderr     string        `json:"stderr"`
	OutputPath string        `json:"output_path,omitempty"`
	Output     []byte        `json:"-"`
	Errors     []Diagnostic  `json:"errors"`
	Warnings   []Diagnostic  `json:"warnings"`
	TimedOut   bool          `json:"timed_out"`
	Duration   time.Duration `json:"duration"`
}

// RawLog returns the combined captured output for caller-side diagnosis.
func (r *CompileResult) RawLog() string {
	if r.Stdout == "" {
		return r.Stderr
	}
	if r.Stderr == "" {
		return r.Stdout
	}
	return r.Stdout + "\n" + r.Stderr
}
