// Package errors defines the structured errors returned by the engine and the
// MCP tools. Each error has a stable code for programs and a hint telling the
// calling agent what to try next.
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"time"
)

// ErrorCode classifies a DebugError.
type ErrorCode string

const (
	CodeConnectionFailed ErrorCode = "CONNECTION_FAILED"
	CodeProtocolError    ErrorCode = "PROTOCOL_ERROR"
	CodeRequestTimeout   ErrorCode = "REQUEST_TIMEOUT"
	CodeRemoteFault      ErrorCode = "REMOTE_FAULT"

	CodeSessionNotFound     ErrorCode = "SESSION_NOT_FOUND"
	CodeSessionLimitReached ErrorCode = "SESSION_LIMIT_REACHED"
	CodeSessionTerminated   ErrorCode = "SESSION_TERMINATED"

	CodeLaunchFailed       ErrorCode = "LAUNCH_FAILED"
	CodeInterpreterTooOld  ErrorCode = "INTERPRETER_TOO_OLD"
	CodeThreadNotSuspended ErrorCode = "THREAD_NOT_SUSPENDED"
	CodeThreadNotFound     ErrorCode = "THREAD_NOT_FOUND"

	CodeMissingParameter ErrorCode = "MISSING_PARAMETER"
	CodeInvalidParameter ErrorCode = "INVALID_PARAMETER"
	CodeInvalidJSON      ErrorCode = "INVALID_JSON"
	CodePermissionDenied ErrorCode = "PERMISSION_DENIED"

	CodeConfigNotFound ErrorCode = "CONFIG_NOT_FOUND"
	CodeConfigInvalid  ErrorCode = "CONFIG_INVALID"
)

// DebugError is what tools report back to the agent. Message says what went
// wrong, Hint says how to recover, Details holds the offending values.
type DebugError struct {
	Code    ErrorCode      `json:"code"`
	Message string         `json:"message"`
	Hint    string         `json:"hint,omitempty"`
	Details map[string]any `json:"details,omitempty"`
	Cause   error          `json:"-"`
}

func (e *DebugError) Error() string {
	if e.Hint == "" {
		return e.Message
	}
	return e.Message + " | Hint: " + e.Hint
}

func (e *DebugError) Unwrap() error {
	return e.Cause
}

// WithDetails records key=value in Details and returns e.
func (e *DebugError) WithDetails(key string, value any) *DebugError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithCause sets the wrapped error and returns e.
func (e *DebugError) WithCause(err error) *DebugError {
	e.Cause = err
	return e
}

// HasCode reports whether err (or anything it wraps) is a DebugError with the given code.
func HasCode(err error, code ErrorCode) bool {
	var de *DebugError
	return stderrors.As(err, &de) && de.Code == code
}

// newError builds a DebugError; kv alternates detail keys and values.
func newError(code ErrorCode, msg, hint string, kv ...any) *DebugError {
	e := &DebugError{Code: code, Message: msg, Hint: hint}
	for i := 0; i+1 < len(kv); i += 2 {
		e.WithDetails(kv[i].(string), kv[i+1])
	}
	return e
}

// ConnectionFailed is returned when the interpreter cannot be reached, the
// accept window elapses, or the connection drops while a request is waiting.
// An empty address means an established connection was lost.
func ConnectionFailed(address string, err error) *DebugError {
	msg := "connection to debugger lost"
	if address != "" {
		msg = "failed to connect to debugger at " + address
	}
	if err != nil {
		msg = fmt.Sprintf("%s: %v", msg, err)
	}
	return newError(CodeConnectionFailed, msg,
		"The debugged process may have exited or never started its debugger. Use debug_disconnect to clean up and debug_launch or debug_attach to start over.",
		"address", address).WithCause(err)
}

// ProtocolError is returned for frames or payloads that cannot be decoded.
func ProtocolError(reason string, err error) *DebugError {
	return newError(CodeProtocolError, "protocol error: "+reason,
		"The debugger sent a reply this server does not understand. Check that the pydevd version is supported.").WithCause(err)
}

// RequestTimeout is the "debugger not responding" condition.
func RequestTimeout(command string, seq int, timeout time.Duration) *DebugError {
	return newError(CodeRequestTimeout,
		fmt.Sprintf("debugger not responding: %s (seq %d) got no reply within %s", command, seq, timeout),
		"The program may be busy, blocked on input, or deadlocked. Try debug_pause, or terminate the session with debug_disconnect.",
		"command", command, "seq", seq, "timeout", timeout.String())
}

// RemoteFault carries a failure the interpreter reported for a request,
// usually a traceback.
func RemoteFault(command string, message string) *DebugError {
	return newError(CodeRemoteFault,
		fmt.Sprintf("%s failed in the debugged process: %s", command, message),
		"Check the expression or arguments; the debugged process rejected the request.",
		"command", command, "remote", message)
}

func SessionNotFound(sessionID string) *DebugError {
	return newError(CodeSessionNotFound, fmt.Sprintf("session %q not found", sessionID),
		"Call debug_list_sessions for the live sessions, or start one with debug_launch or debug_attach.",
		"sessionId", sessionID)
}

func SessionLimitReached(maxSessions int) *DebugError {
	return newError(CodeSessionLimitReached, fmt.Sprintf("session limit of %d reached", maxSessions),
		"End a session with debug_disconnect, or raise max_sessions in the configuration.",
		"maxSessions", maxSessions)
}

// SessionTerminated is returned for operations on a session whose connection is gone.
func SessionTerminated(sessionID string) *DebugError {
	return newError(CodeSessionTerminated, fmt.Sprintf("session %q is no longer connected", sessionID),
		"Use debug_disconnect to clean up and debug_launch to create a new session.",
		"sessionId", sessionID)
}

// LaunchFailed creates an error when the interpreter cannot be started.
func LaunchFailed(program string, err error) *DebugError {
	return newError(CodeLaunchFailed, fmt.Sprintf("failed to launch %s under pydevd: %v", program, err),
		"Ensure Python is installed and pydevd is importable (pip install pydevd), or set python.pydevd_path in the configuration.",
		"program", program).WithCause(err)
}

// InterpreterTooOld is returned when the handshake reports an unsupported debugger version.
func InterpreterTooOld(got, minimum string) *DebugError {
	return newError(CodeInterpreterTooOld, fmt.Sprintf("pydevd %s is older than the minimum supported %s", got, minimum),
		"Upgrade pydevd in the target environment (pip install -U pydevd).",
		"version", got, "minimum", minimum)
}

func ThreadNotFound(threadID string) *DebugError {
	return newError(CodeThreadNotFound, fmt.Sprintf("thread %q not found", threadID),
		"Use debug_snapshot to list the threads of the session.",
		"threadId", threadID)
}

// ThreadNotSuspended is returned for frame-scoped operations on a running thread.
func ThreadNotSuspended(threadID string) *DebugError {
	return newError(CodeThreadNotSuspended, fmt.Sprintf("thread %q is not suspended", threadID),
		"Frames and variables are only available while a thread is stopped. Use debug_pause or set a breakpoint first.",
		"threadId", threadID)
}

// MissingParameter reports an absent tool argument; hint says what to pass.
func MissingParameter(paramName, hint string) *DebugError {
	return newError(CodeMissingParameter, fmt.Sprintf("missing required parameter %q", paramName), hint,
		"parameter", paramName)
}

func InvalidParameter(paramName string, value any, expected string) *DebugError {
	return newError(CodeInvalidParameter, fmt.Sprintf("parameter %q has invalid value %v", paramName, value),
		"Expected "+expected,
		"parameter", paramName, "value", value, "expected", expected)
}

// InvalidJSON is returned for JSON-encoded tool arguments that do not parse.
func InvalidJSON(paramName string, err error, example string) *DebugError {
	return newError(CodeInvalidJSON, fmt.Sprintf("parameter %q is not valid JSON: %v", paramName, err),
		"Pass JSON such as "+example,
		"parameter", paramName, "example", example).WithCause(err)
}

// PermissionDenied reports an operation the configuration forbids.
// operation is one of spawn, attach, evaluate or modify.
func PermissionDenied(operation, mode string) *DebugError {
	hint := fmt.Sprintf("The server runs in %q mode, which does not allow this.", mode)
	switch operation {
	case "spawn":
		hint = "Launching programs is disabled; set 'allow_spawn: true' in the configuration."
	case "attach":
		hint = "Attaching is disabled; set 'allow_attach: true' in the configuration."
	case "evaluate":
		hint = "Evaluation is disabled; set 'allow_execute: true' in the configuration."
	case "modify":
		hint = "Changing variables needs full mode and 'allow_modify: true'."
	}
	return newError(CodePermissionDenied, fmt.Sprintf("%s is not permitted (mode %s)", operation, mode), hint,
		"operation", operation, "mode", mode)
}

// ConfigNotFound is returned when launch.json has no configuration called
// configName; available lists the Python ones it does have.
func ConfigNotFound(configName string, available []string) *DebugError {
	hint := "launch.json has no Python configurations."
	if len(available) > 0 {
		hint = "Available configurations: " + strings.Join(available, ", ")
	}
	return newError(CodeConfigNotFound, fmt.Sprintf("launch configuration %q not found", configName), hint,
		"configName", configName, "availableConfigs", available)
}

func ConfigInvalid(configName, reason string) *DebugError {
	return newError(CodeConfigInvalid, fmt.Sprintf("launch configuration %q: %s", configName, reason),
		"Fix the configuration in .vscode/launch.json.",
		"configName", configName, "reason", reason)
}

// Wrap attaches a code and hint to err.
func Wrap(code ErrorCode, message string, hint string, err error) *DebugError {
	return newError(code, message, hint).WithCause(err)
}
