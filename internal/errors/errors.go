// Package errors provides structured error types for qmd with error kinds
// that map onto the orchestration layer's failure modes: subprocess start
// failures, timeouts, compile failures, batch preconditions, and preview
// server binding.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Kind categorizes an error by the failure mode it represents.
type Kind string

const (
	KindInvocation Kind = "invocation"  // subprocess could not start
	KindTimeout    Kind = "timeout"     // subprocess exceeded its deadline
	KindCompile    Kind = "compile"     // compiler ran but reported failure
	KindValidation Kind = "validation"  // malformed validator input
	KindBatchAbort Kind = "batch_abort" // batch precondition failure
	KindBind       Kind = "bind"        // preview listener could not bind
	KindConfig     Kind = "config"      // invalid configuration
	KindInternal   Kind = "internal"
)

// QmdError is a structured error with kind, code, and context.
type QmdError struct {
	Kind    Kind
	Code    string
	Message string
	Cause   error
	Op      string
	Context map[string]interface{}
}

// Error implements the error interface.
func (e *QmdError) Error() string {
	var parts []string

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("[%s]", e.Code))
	}

	if e.Op != "" {
		parts = append(parts, "op:"+e.Op)
	}

	parts = append(parts, e.Message)

	result := strings.Join(parts, " ")

	if e.Cause != nil {
		result += fmt.Sprintf(": %v", e.Cause)
	}

	return result
}

// Unwrap returns the underlying cause error.
func (e *QmdError) Unwrap() error {
	return e.Cause
}

// Is implements error comparison by kind and code.
func (e *QmdError) Is(target error) bool {
	var t *QmdError
	if errors.As(target, &t) {
		return e.Kind == t.Kind && (t.Code == "" || e.Code == t.Code)
	}

	return false
}

// WithContext adds context information to the error.
func (e *QmdError) WithContext(key string, value interface{}) *QmdError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value

	return e
}

// WithOp adds the failing operation name.
func (e *QmdError) WithOp(op string) *QmdError {
	e.Op = op

	return e
}

// NewInvocationError reports that the compiler subprocess could not be
// started (missing binary, permission denied). Never retried.
func NewInvocationError(message string, cause error) *QmdError {
	return &QmdError{
		Kind:    KindInvocation,
		Code:    "ERR_INVOCATION",
		Message: message,
		Cause:   cause,
	}
}

// NewTimeoutError reports that the compiler subprocess exceeded its deadline.
func NewTimeoutError(message string) *QmdError {
	return &QmdError{
		Kind:    KindTimeout,
		Code:    "ERR_TIMEOUT",
		Message: message,
	}
}

// NewCompileError reports that the compiler ran but its output indicates
// failure.
func NewCompileError(message string, cause error) *QmdError {
	return &QmdError{
		Kind:    KindCompile,
		Code:    "ERR_COMPILE",
		Message: message,
		Cause:   cause,
	}
}

// NewValidationError reports malformed input to the syntax validator.
func NewValidationError(code, message string) *QmdError {
	return &QmdError{
		Kind:    KindValidation,
		Code:    code,
		Message: message,
	}
}

// NewBatchAbort reports a batch precondition failure. The whole batch stops
// before any worker dispatch.
func NewBatchAbort(code, message string) *QmdError {
	return &QmdError{
		Kind:    KindBatchAbort,
		Code:    code,
		Message: message,
	}
}

// NewBindError reports that the preview listener could not bind its port.
func NewBindError(port int, cause error) *QmdError {
	return (&QmdError{
		Kind:    KindBind,
		Code:    "ERR_PREVIEW_BIND",
		Message: fmt.Sprintf("preview server could not bind port %d", port),
		Cause:   cause,
	}).WithContext("port", port)
}

// NewConfigError reports invalid configuration.
func NewConfigError(code, message string) *QmdError {
	return &QmdError{
		Kind:    KindConfig,
		Code:    code,
		Message: message,
	}
}

// NewInternalError wraps an unexpected failure.
func NewInternalError(message string, cause error) *QmdError {
	return &QmdError{
		Kind:    KindInternal,
		Code:    "ERR_INTERNAL",
		Message: message,
		Cause:   cause,
	}
}

// IsKind reports whether any error in the chain has the given kind.
func IsKind(err error, kind Kind) bool {
	var qe *QmdError
	if errors.As(err, &qe) {
		return qe.Kind == kind
	}

	return false
}

// IsTimeout reports whether the error chain contains a timeout.
func IsTimeout(err error) bool {
	return IsKind(err, KindTimeout)
}

// IsInvocation reports whether the error chain contains an invocation error.
func IsInvocation(err error) bool {
	return IsKind(err, KindInvocation)
}
