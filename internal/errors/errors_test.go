package errors

import (
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestHasCodeThroughWrapping(t *testing.T) {
	err := fmt.Errorf("attach: %w", ConnectionFailed("127.0.0.1:5678", io.EOF))
	assert.True(t, HasCode(err, CodeConnectionFailed))
	assert.False(t, HasCode(err, CodeRequestTimeout))
	assert.False(t, HasCode(io.EOF, CodeConnectionFailed))
	assert.ErrorIs(t, err, io.EOF)
}

func TestErrorTextCarriesHint(t *testing.T) {
	err := RequestTimeout("CMD_GET_FRAME", 7, 2*time.Second)
	assert.Contains(t, err.Error(), "debugger not responding")
	assert.Contains(t, err.Error(), " | Hint: ")
	assert.Equal(t, 7, err.Details["seq"])

	bare := &DebugError{Code: CodeProtocolError, Message: "bad frame"}
	assert.Equal(t, "bad frame", bare.Error())
}

func TestConnectionLostHasNoAddress(t *testing.T) {
	err := ConnectionFailed("", nil)
	assert.Equal(t, "connection to debugger lost", err.Message)
	assert.Nil(t, err.Unwrap())
}

func TestPermissionDeniedNamesTheSetting(t *testing.T) {
	assert.Contains(t, PermissionDenied("spawn", "full").Hint, "allow_spawn")
	assert.Contains(t, PermissionDenied("attach", "full").Hint, "allow_attach")
	assert.Contains(t, PermissionDenied("step", "readonly").Hint, `"readonly"`)
}

func TestConfigNotFoundListsAlternatives(t *testing.T) {
	assert.Equal(t, "Available configurations: Run, Attach", ConfigNotFound("x", []string{"Run", "Attach"}).Hint)
	assert.Contains(t, ConfigNotFound("x", nil).Hint, "no Python configurations")
}
