package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorFormatting(t *testing.T) {
	err := NewInvocationError("compiler could not be started", errors.New("exec: not found"))
	assert.Contains(t, err.Error(), "ERR_INVOCATION")
	assert.Contains(t, err.Error(), "compiler could not be started")
	assert.Contains(t, err.Error(), "exec: not found")

	withOp := NewTimeoutError("deadline exceeded").WithOp("compile")
	assert.Contains(t, withOp.Error(), "op:compile")
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := NewInternalError("wrapper", cause)
	assert.ErrorIs(t, err, cause)
}

func TestIsMatchesByKindAndCode(t *testing.T) {
	err := NewBatchAbort("ERR_DUPLICATE_NAME", "duplicate item name")

	assert.True(t, errors.Is(err, &QmdError{Kind: KindBatchAbort}))
	assert.True(t, errors.Is(err, &QmdError{Kind: KindBatchAbort, Code: "ERR_DUPLICATE_NAME"}))
	assert.False(t, errors.Is(err, &QmdError{Kind: KindBatchAbort, Code: "ERR_OTHER"}))
	assert.False(t, errors.Is(err, &QmdError{Kind: KindTimeout}))
}

func TestKindPredicates(t *testing.T) {
	assert.True(t, IsInvocation(NewInvocationError("nope", nil)))
	assert.True(t, IsTimeout(NewTimeoutError("slow")))
	assert.True(t, IsKind(NewBindError(8080, nil), KindBind))
	assert.False(t, IsTimeout(errors.New("plain")))

	// Predicates see through wrapping.
	wrapped := fmt.Errorf("starting preview: %w", NewBindError(8080, nil))
	assert.True(t, IsKind(wrapped, KindBind))
}

func TestWithContext(t *testing.T) {
	err := NewBindError(9090, nil)
	assert.Equal(t, 9090, err.Context["port"])

	err.WithContext("host", "localhost")
	assert.Equal(t, "localhost", err.Context["host"])
}
