// Package types defines shared data types used across the pydevd-MCP server.
//
// This package provides type definitions for:
//   - SessionStatus and SessionMode: debug session states and how they began
//   - Request types: LaunchRequest, AttachRequest, BreakpointRequest
//   - Info types: SessionInfo, EvaluateResult, OutputLine
//   - DebugSnapshot: complete debug state for inspection, in DAP shapes
//
// Thread, frame and variable views reuse the go-dap structs so agents that
// already understand DAP see familiar field names.
package types

import (
	"time"

	"github.com/google/go-dap"
)

// SessionStatus represents the status of a debug session
type SessionStatus string

const (
	SessionStatusInitializing SessionStatus = "initializing"
	SessionStatusRunning      SessionStatus = "running"
	SessionStatusStopped      SessionStatus = "stopped"
	SessionStatusTerminated   SessionStatus = "terminated"
)

// SessionMode records how a session reached its interpreter.
type SessionMode string

const (
	SessionModeLaunch SessionMode = "launch"
	SessionModeAttach SessionMode = "attach"
)

// LaunchRequest represents a request to start a Python program under pydevd
type LaunchRequest struct {
	Program      string            `json:"program,omitempty"`
	Module       string            `json:"module,omitempty"`
	Args         []string          `json:"args,omitempty"`
	Cwd          string            `json:"cwd,omitempty"`
	Env          map[string]string `json:"env,omitempty"`
	Python       string            `json:"python,omitempty"`
	StopOnEntry  bool              `json:"stopOnEntry,omitempty"`
	Multiprocess bool              `json:"multiprocess,omitempty"`
}

// AttachRequest represents a request to connect to a waiting pydevd server
type AttachRequest struct {
	Host string `json:"host,omitempty"`
	Port int    `json:"port"`
}

// SessionInfo represents information about a debug session
type SessionInfo struct {
	SessionID          string        `json:"sessionId"`
	Mode               SessionMode   `json:"mode"`
	Status             SessionStatus `json:"status"`
	Address            string        `json:"address,omitempty"`
	InterpreterVersion string        `json:"interpreterVersion,omitempty"`
	PID                int           `json:"pid,omitempty"`
	Program            string        `json:"program,omitempty"`
	CreatedAt          time.Time     `json:"createdAt"`
	LastActive         time.Time     `json:"lastActive"`
}

// BreakpointRequest represents a request to set a breakpoint
type BreakpointRequest struct {
	Line          int    `json:"line"`
	Condition     string `json:"condition,omitempty"`
	LogMessage    string `json:"logMessage,omitempty"`
	FuncName      string `json:"funcName,omitempty"`
	SuspendPolicy string `json:"suspendPolicy,omitempty"`
	Kind          string `json:"kind,omitempty"`
}

// EvaluateResult represents the result of evaluating an expression
type EvaluateResult struct {
	Result             string `json:"result"`
	Type               string `json:"type,omitempty"`
	VariablesReference int    `json:"variablesReference"`
	Expression         string `json:"expression,omitempty"`
}

// OutputLine is one chunk of program output.
type OutputLine struct {
	Seq      int64     `json:"seq"`
	Time     time.Time `json:"time"`
	Category string    `json:"category"`
	Text     string    `json:"text"`
}

// DebugSnapshot represents a complete snapshot of debug state
type DebugSnapshot struct {
	SessionID     string                   `json:"sessionId"`
	Status        SessionStatus            `json:"status"`
	FocusedThread int                      `json:"focusedThread,omitempty"`
	StopReason    string                   `json:"stopReason,omitempty"`
	Threads       []dap.Thread             `json:"threads"`
	Stacks        map[int][]dap.StackFrame `json:"stacks"`              // threadId -> stack frames
	Variables     map[int][]dap.Variable   `json:"variables,omitempty"` // frameId -> top-level variables
}
