// Package validate implements static syntax validation for Quarkdown source
// text. The validator is a pure function over the source and its mode
// flags: it never shells out to the compiler, and identical input always
// yields an identical report.
package validate

import (
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/conneroisu/qmd/internal/compiler"
	"github.com/conneroisu/qmd/internal/config"
)

// Rule identifiers. Strict mode promotes promotableRules from warning to
// error; promotion never demotes and never removes a diagnostic another
// rule produced.
const (
	RuleCalloutType        = "callout-type"
	RuleFunctionUnbalanced = "function-unbalanced"
	RuleUnknownContainer   = "unknown-container"
	RuleImageAlt           = "image-alt"
	RuleUndefinedVariable  = "undefined-variable"
	RuleLinkUnreachable    = "link-unreachable"
	RuleLinkCheckSkipped   = "link-check-skipped"
	RuleEncoding           = "encoding"
)

var promotableRules = map[string]bool{
	RuleCalloutType:      true,
	RuleUnknownContainer: true,
}

// Options selects which rule groups run and whether strict promotion
// applies.
type Options struct {
	Strict         bool
	CheckFunctions bool
	CheckVariables bool
	CheckLinks     bool
}

// DefaultOptions mirrors the tool schema defaults: function and variable
// checks on, link probing off.
func DefaultOptions() Options {
	return Options{CheckFunctions: true, CheckVariables: true}
}

// ValidationReport is the outcome of one validation. Valid is true iff no
// error-severity diagnostics exist; warnings never affect validity.
type ValidationReport struct {
	Valid    bool                  `json:"valid"`
	Errors   []compiler.Diagnostic `json:"errors"`
	Warnings []compiler.Diagnostic `json:"warnings"`
}

// Validator checks Quarkdown source for structural defects the compiler
// does not always report cleanly.
type Validator struct {
	allowNetwork bool
	client       *http.Client
}

// New creates a validator honoring the configured network policy.
func New(cfg config.ValidatorConfig) *Validator {
	return &Validator{
		allowNetwork: cfg.AllowNetwork,
		client: &http.Client{
			Timeout: time.Duration(cfg.LinkTimeoutSeconds) * time.Second,
		},
	}
}

var (
	calloutRe   = regexp.MustCompile(`^\s*\.callout\b`)
	containerRe = regexp.MustCompile(`^:::\s*([A-Za-z-]*)`)
	imageRe     = regexp.MustCompile(`!\[([^\]]*)\]\(([^)]*)\)`)
	funcCallRe  = regexp.MustCompile(`\{\{([^}]*)(\}\})?`)
	dotFuncRe   = regexp.MustCompile(`^\s*\.function\b`)
	varDefRe    = regexp.MustCompile(`^\s*\$\s*([A-Za-z_][A-Za-z0-9_]*)\s*=`)
	varUseRe    = regexp.MustCompile(`\$([A-Za-z_][A-Za-z0-9_]*)`)
	linkRe      = regexp.MustCompile(`[^!]\[([^\]]+)\]\((https?://[^)\s]+)\)`)
)

var knownContainers = map[string]bool{
	"callout":   true,
	"container": true,
	"div":       true,
}

// Validate runs the enabled rules over the source text and returns a
// report. Rules are additive: no rule removes a diagnostic another rule
// produced.
func (v *Validator) Validate(source string, opts Options) ValidationReport {
	var errs, warns []compiler.Diagnostic

	// Malformed encoding is reported once at the top, then validation
	// continues best-effort over the repaired text.
	if !utf8.ValidString(source) {
		errs = append(errs, compiler.Diagnostic{
			Severity: compiler.SeverityError,
			Rule:     RuleEncoding,
			Message:  "source contains invalid UTF-8; validating best-effort",
		})
		source = strings.ToValidUTF8(source, "�")
	}

	lines := strings.Split(source, "\n")
	definedAt := map[string]int{}

	for i, line := range lines {
		num := i + 1
		trimmed := strings.TrimSpace(line)

		if calloutRe.MatchString(line) && !strings.HasPrefix(trimmed, "#") {
			if !strings.Contains(line, "type:") && !strings.Contains(line, "{") {
				warns = append(warns, compiler.Diagnostic{
					Severity: compiler.SeverityWarning,
					Rule:     RuleCalloutType,
					Message:  "callout missing type parameter",
					Line:     num,
				})
			}
		}

		// A bare ::: is a closing fence, not a container opening.
		if m := containerRe.FindStringSubmatch(trimmed); m != nil && m[1] != "" {
			if !knownContainers[strings.ToLower(m[1])] {
				warns = append(warns, compiler.Diagnostic{
					Severity: compiler.SeverityWarning,
					Rule:     RuleUnknownContainer,
					Message:  fmt.Sprintf("unknown container type %q, may not be supported", m[1]),
					Line:     num,
				})
			}
		}

		for _, img := range imageRe.FindAllStringSubmatch(line, -1) {
			if len(strings.TrimSpace(img[1])) == 0 {
				warns = append(warns, compiler.Diagnostic{
					Severity: compiler.SeverityWarning,
					Rule:     RuleImageAlt,
					Message:  "image missing descriptive alt text",
					Line:     num,
				})
			}
		}

		if opts.CheckFunctions {
			errs = append(errs, checkFunctionSyntax(line, num)...)
		}

		if opts.CheckVariables {
			if m := varDefRe.FindStringSubmatch(line); m != nil {
				if _, seen := definedAt[m[1]]; !seen {
					definedAt[m[1]] = num
				}
				continue
			}
			for _, use := range varUseRe.FindAllStringSubmatch(line, -1) {
				def, seen := definedAt[use[1]]
				if !seen || def > num {
					warns = append(warns, compiler.Diagnostic{
						Severity: compiler.SeverityWarning,
						Rule:     RuleUndefinedVariable,
						Message:  fmt.Sprintf("variable $%s referenced before definition", use[1]),
						Line:     num,
					})
				}
			}
		}
	}

	if opts.CheckLinks {
		warns = append(warns, v.checkLinks(source)...)
	}

	if opts.Strict {
		errs, warns = promote(errs, warns)
	}

	return ValidationReport{
		Valid:    len(errs) == 0,
		Errors:   errs,
		Warnings: warns,
	}
}

// checkFunctionSyntax flags function-call syntax with unbalanced or missing
// closing parentheses. Always an error, never demoted.
func checkFunctionSyntax(line string, num int) []compiler.Diagnostic {
	var errs []compiler.Diagnostic

	for _, call := range funcCallRe.FindAllStringSubmatch(line, -1) {
		body := call[1]
		closed := call[2] == "}}"
		if !closed || strings.Count(body, "(") != strings.Count(body, ")") {
			errs = append(errs, compiler.Diagnostic{
				Severity: compiler.SeverityError,
				Rule:     RuleFunctionUnbalanced,
				Message:  fmt.Sprintf("unbalanced function call: %s", strings.TrimSpace(body)),
				Line:     num,
			})
		}
	}

	if dotFuncRe.MatchString(line) && !strings.HasSuffix(strings.TrimSpace(line), ")") {
		errs = append(errs, compiler.Diagnostic{
			Severity: compiler.SeverityError,
			Rule:     RuleFunctionUnbalanced,
			Message:  "function call missing closing parenthesis",
			Line:     num,
		})
	}

	return errs
}

// checkLinks probes externally-resolvable links. When network access is
// disallowed by configuration the check is skipped, and the absence of the
// check is itself reported rather than silently omitted.
func (v *Validator) checkLinks(source string) []compiler.Diagnostic {
	links := linkRe.FindAllStringSubmatch(source, -1)
	if len(links) == 0 {
		return nil
	}

	if !v.allowNetwork {
		return []compiler.Diagnostic{{
			Severity: compiler.SeverityWarning,
			Rule:     RuleLinkCheckSkipped,
			Message:  fmt.Sprintf("link reachability check skipped for %d link(s): network access disallowed by configuration", len(links)),
		}}
	}

	var warns []compiler.Diagnostic
	seen := map[string]bool{}
	for _, link := range links {
		url := link[2]
		if seen[url] {
			continue
		}
		seen[url] = true

		resp, err := v.client.Head(url)
		if err != nil {
			warns = append(warns, compiler.Diagnostic{
				Severity: compiler.SeverityWarning,
				Rule:     RuleLinkUnreachable,
				Message:  fmt.Sprintf("link %s is unreachable: %v", url, err),
			})
			continue
		}
		resp.Body.Close()
		if resp.StatusCode >= 400 {
			warns = append(warns, compiler.Diagnostic{
				Severity: compiler.SeverityWarning,
				Rule:     RuleLinkUnreachable,
				Message:  fmt.Sprintf("link %s returned status %d", url, resp.StatusCode),
			})
		}
	}
	return warns
}

// promote moves promotable warnings into the error list. Promotion is
// monotone: the strict error set is a superset of the relaxed one, and the
// strict warning set is a subset.
func promote(errs, warns []compiler.Diagnostic) ([]compiler.Diagnostic, []compiler.Diagnostic) {
	remaining := warns[:0:0]
	for _, w := range warns {
		if promotableRules[w.Rule] {
			w.Severity = compiler.SeverityError
			errs = append(errs, w)
		} else {
			remaining = append(remaining, w)
		}
	}
	return errs, remaining
}
