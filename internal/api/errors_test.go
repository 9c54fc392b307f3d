package api

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestErrorHelpersMatchWrappedErrors(t *testing.T) {
	base := NewInstanceNotFoundError("inst-1")
	wrapped := fmt.Errorf("lookup failed: %w", base)

	assert.True(t, IsNotFound(base))
	assert.True(t, IsNotFound(wrapped))
	assert.False(t, IsNotFound(errors.New("plain")))
	assert.Equal(t, "instance inst-1 not found", base.Error())

	conflict := NewConflictError("inst-1", "start requires a configuration")
	assert.True(t, IsConflict(fmt.Errorf("command rejected: %w", conflict)))
	assert.False(t, IsConflict(wrapped))

	validation := NewValidationError("port", "out of range")
	assert.True(t, IsValidation(validation))
	assert.Contains(t, validation.Error(), "port")

	timeout := NewTimeoutError("instance.commands.process", 30*time.Second)
	assert.True(t, IsTimeout(fmt.Errorf("start: %w", timeout)))
	assert.Contains(t, timeout.Error(), "instance.commands.process")
	assert.Contains(t, timeout.Error(), "30s")
}

func TestTransportAndPlatformErrorsUnwrap(t *testing.T) {
	cause := errors.New("connection refused")

	te := NewTransportError("publish", "status.events", cause)
	assert.True(t, IsTransport(te))
	assert.True(t, errors.Is(te, cause))

	pe := NewPlatformError(PlatformProcess, "start", "inst-1", cause)
	assert.True(t, IsPlatformError(fmt.Errorf("worker: %w", pe)))
	assert.True(t, errors.Is(pe, cause))
	assert.Contains(t, pe.Error(), "process")
	assert.Contains(t, pe.Error(), "inst-1")

	// Classification helpers must not cross-match.
	assert.False(t, IsTimeout(te))
	assert.False(t, IsNotFound(pe))
}

func TestValidationErrorWithoutField(t *testing.T) {
	// Without a field the reason passes through untouched. Messages
	// decoded from API error bodies must not gain a second prefix.
	err := NewValidationError("", "patch document is not valid JSON")
	assert.Equal(t, "patch document is not valid JSON", err.Error())
}
