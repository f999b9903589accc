package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_Error(t *testing.T) {
	err := Wrap(ErrConnection, errors.New("dial tcp: refused"), "connecting to database")
	assert.Contains(t, err.Error(), "connection error")
	assert.Contains(t, err.Error(), "connecting to database")
	assert.Contains(t, err.Error(), "refused")
}

func TestError_WithoutCause(t *testing.T) {
	err := Invalid("--min-age must not be negative, got %d", -1)
	assert.Equal(t, "invalid argument: --min-age must not be negative, got -1", err.Error())
}

func TestError_Is(t *testing.T) {
	inner := errors.New("exec: \"pkill\": executable file not found")
	err := Wrap(ErrActuation, inner, "starting kill command")

	assert.ErrorIs(t, err, ErrActuation)
	assert.ErrorIs(t, err, inner)
	assert.NotErrorIs(t, err, ErrConnection)

	wrapped := fmt.Errorf("reaping: %w", err)
	assert.ErrorIs(t, wrapped, ErrActuation)
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, ExitCode(nil))
	assert.Equal(t, 2, ExitCode(Invalid("bad")))
	assert.Equal(t, 1, ExitCode(Wrap(ErrDataShape, nil, "row 3")))
	assert.Equal(t, 1, ExitCode(Wrap(ErrActuation, nil, "kill")))
	assert.Equal(t, 1, ExitCode(errors.New("other")))
}
