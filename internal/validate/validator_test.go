package validate

import (
	"reflect"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/qmd/internal/compiler"
	"github.com/conneroisu/qmd/internal/config"
)

func newTestValidator() *Validator {
	return New(config.Default().Validator)
}

func TestValidateCleanDocument(t *testing.T) {
	v := newTestValidator()
	report := v.Validate("# Title\n\nJust some prose.\n", DefaultOptions())
	assert.True(t, report.Valid)
	assert.Empty(t, report.Errors)
	assert.Empty(t, report.Warnings)
}

func TestValidateKitchenSink(t *testing.T) {
	v := newTestValidator()
	source := "# Document\n\n.callout\n\n![](image.png)\n\n{{ func("

	opts := DefaultOptions()
	opts.Strict = true
	report := v.Validate(source, opts)

	assert.False(t, report.Valid)

	var sawUnbalanced, sawCallout, sawAlt bool
	for _, d := range report.Errors {
		if d.Rule == RuleFunctionUnbalanced {
			sawUnbalanced = true
		}
		if d.Rule == RuleCalloutType {
			sawCallout = true
		}
	}
	for _, d := range append(report.Warnings, report.Errors...) {
		if d.Rule == RuleImageAlt {
			sawAlt = true
		}
	}
	assert.True(t, sawUnbalanced, "expected an unbalanced function call error")
	assert.True(t, sawCallout, "expected callout-type promoted to error under strict")
	assert.True(t, sawAlt, "expected an image alt text diagnostic")
}

func TestValidateCalloutRule(t *testing.T) {
	v := newTestValidator()

	report := v.Validate(".callout\ncontent", DefaultOptions())
	require.Len(t, report.Warnings, 1)
	assert.Equal(t, RuleCalloutType, report.Warnings[0].Rule)
	assert.True(t, report.Valid, "warnings never affect validity")

	// A typed callout is fine.
	report = v.Validate(".callout {note}\ncontent", DefaultOptions())
	assert.Empty(t, report.Warnings)
}

func TestValidateFunctionRules(t *testing.T) {
	v := newTestValidator()

	tests := []struct {
		name    string
		source  string
		wantErr bool
	}{
		{"balanced call", "{{ greet(name) }}", false},
		{"unbalanced parens", "{{ greet(name }}", true},
		{"missing close brace", "{{ greet(", true},
		{"dot function unterminated", ".function {greet}\n  body(", true},
		{"no functions at all", "plain text", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report := v.Validate(tt.source, DefaultOptions())
			if tt.wantErr {
				assert.False(t, report.Valid)
				require.NotEmpty(t, report.Errors)
				assert.Equal(t, RuleFunctionUnbalanced, report.Errors[0].Rule)
			} else {
				assert.True(t, report.Valid, "errors: %v", report.Errors)
			}
		})
	}
}

func TestValidateFunctionCheckToggle(t *testing.T) {
	v := newTestValidator()
	opts := DefaultOptions()
	opts.CheckFunctions = false

	report := v.Validate("{{ broken(", opts)
	assert.True(t, report.Valid)
}

func TestValidateUnknownContainer(t *testing.T) {
	v := newTestValidator()

	report := v.Validate("::: mystery\ncontent\n:::", DefaultOptions())
	require.NotEmpty(t, report.Warnings)
	assert.Equal(t, RuleUnknownContainer, report.Warnings[0].Rule)

	report = v.Validate("::: callout\ncontent\n:::", DefaultOptions())
	assert.Empty(t, report.Warnings)
}

func TestValidateVariableOrder(t *testing.T) {
	v := newTestValidator()

	// Use before definition is flagged, definition before use is not.
	report := v.Validate("value is $x\n$x = 3\n", DefaultOptions())
	require.NotEmpty(t, report.Warnings)
	assert.Equal(t, RuleUndefinedVariable, report.Warnings[0].Rule)

	report = v.Validate("$x = 3\nvalue is $x\n", DefaultOptions())
	assert.Empty(t, report.Warnings)
}

func TestValidateLinkCheckSkippedWithoutNetwork(t *testing.T) {
	cfg := config.Default().Validator
	cfg.AllowNetwork = false
	v := New(cfg)

	opts := DefaultOptions()
	opts.CheckLinks = true
	report := v.Validate("see [docs](https://example.invalid/page)", opts)

	// The absence of the check is reported, never silently omitted.
	require.Len(t, report.Warnings, 1)
	assert.Equal(t, RuleLinkCheckSkipped, report.Warnings[0].Rule)
	assert.True(t, report.Valid)

	// No links, nothing to report.
	report = v.Validate("no links here", opts)
	assert.Empty(t, report.Warnings)
}

func TestValidateInvalidEncoding(t *testing.T) {
	v := newTestValidator()
	report := v.Validate("# Title\n\xff\xfe broken", DefaultOptions())
	assert.False(t, report.Valid)
	require.NotEmpty(t, report.Errors)
	assert.Equal(t, RuleEncoding, report.Errors[0].Rule)
}

func TestValidateIdempotence(t *testing.T) {
	v := newTestValidator()
	source := "# Doc\n\n.callout\n\n{{ f( }}\n\n::: weird\n"

	first := v.Validate(source, DefaultOptions())
	second := v.Validate(source, DefaultOptions())
	assert.True(t, reflect.DeepEqual(first, second))
}

// Strict promotion is monotone: strict errors are a superset of relaxed
// errors, and strict warnings a subset of relaxed warnings.
func TestValidateStrictMonotonicity(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.Rng.Seed(1234)
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)
	v := newTestValidator()

	fragments := gen.SliceOfN(8, gen.OneConstOf(
		"# Heading\n",
		".callout\n",
		".callout {tip}\n",
		"::: mystery\n",
		"::: callout\n",
		"![](pic.png)\n",
		"![a chart](pic.png)\n",
		"{{ f( }}\n",
		"{{ f() }}\n",
		"$x = 1\n",
		"uses $y\n",
		"plain prose\n",
	))

	properties.Property("strict never demotes and never loses diagnostics", prop.ForAll(
		func(parts []string) bool {
			source := strings.Join(parts, "\n")

			relaxed := v.Validate(source, DefaultOptions())
			strictOpts := DefaultOptions()
			strictOpts.Strict = true
			strict := v.Validate(source, strictOpts)

			if len(strict.Errors) < len(relaxed.Errors) {
				return false
			}
			if len(strict.Warnings) > len(relaxed.Warnings) {
				return false
			}
			// Every relaxed error survives strict mode.
			for _, e := range relaxed.Errors {
				if !containsDiagnostic(strict.Errors, e) {
					return false
				}
			}
			// Every strict warning already existed in relaxed mode.
			for _, w := range strict.Warnings {
				if !containsDiagnostic(relaxed.Warnings, w) {
					return false
				}
			}
			return true
		},
		fragments,
	))

	properties.Property("validation is deterministic", prop.ForAll(
		func(parts []string) bool {
			source := strings.Join(parts, "\n")
			a := v.Validate(source, DefaultOptions())
			b := v.Validate(source, DefaultOptions())
			return reflect.DeepEqual(a, b)
		},
		fragments,
	))

	properties.TestingRun(t)
}

func containsDiagnostic(ds []compiler.Diagnostic, want compiler.Diagnostic) bool {
	for _, d := range ds {
		if d.Rule == want.Rule && d.Line == want.Line && d.Message == want.Message {
			return true
		}
	}
	return false
}
