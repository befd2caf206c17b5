package pydevd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dbgerrors "github.com/ctagard/pydevd-mcp/internal/errors"
	"github.com/ctagard/pydevd-mcp/internal/protocol"
)

func TestCommandFields(t *testing.T) {
	cases := []struct {
		name     string
		cmd      Command
		code     protocol.Code
		fields   []string
		response bool
	}{
		{"version", Version{Platform: "UNIX"}, protocol.CmdVersion, []string{"1.1", "UNIX", "ID"}, true},
		{"run", Run{}, protocol.CmdRun, nil, false},
		{"list threads", ListThreads{}, protocol.CmdListThreads, nil, true},
		{"evaluate", Evaluate{ThreadID: "t", FrameID: "f", Expression: "a+b"}, protocol.CmdEvaluateExpression, []string{"t", "f", "FRAME", "a+b", "0"}, true},
		{"exec", Evaluate{ThreadID: "t", FrameID: "f", Expression: "x = 1", Execute: true}, protocol.CmdExecExpression, []string{"t", "f", "FRAME", "x = 1", "1"}, true},
		{"get variable", GetVariable{ThreadID: "t", FrameID: "f", Path: []string{"a", "b"}}, protocol.CmdGetVariable, []string{"t", "f", "FRAME", "a", "b"}, true},
		{"step into", Resume{ThreadID: "t", Mode: protocol.StepInto}, protocol.CmdStepInto, []string{"t"}, false},
		{"step into my code", Resume{ThreadID: "t", Mode: protocol.StepIntoMyCode}, protocol.CmdStepIntoMyCode, []string{"t"}, false},
		{"suspend", Suspend{ThreadID: AllThreads}, protocol.CmdThreadSuspend, []string{"*"}, false},
		{"set next", SetNextStatement{ThreadID: "t", Line: 7}, protocol.CmdSetNextStatement, []string{"t", "7", "None"}, false},
		{"exception", AddExceptionBreakpoint{Exception: "ValueError", NotifyUnhandled: true}, protocol.CmdAddExceptionBreak, []string{"ValueError", "None", "None", "0", "1", "0"}, false},
		{"return values", ShowReturnValues{Enabled: true}, protocol.CmdShowReturnValues, []string{"CMD_SHOW_RETURN_VALUES", "1"}, false},
		{"console", ConsoleExec{ThreadID: "t", FrameID: "f", Line: "print(1)"}, protocol.CmdConsoleExec, []string{"t", "f", "FRAME", "print(1)"}, true},
		{"exit", Exit{}, protocol.CmdExit, nil, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.code, tc.cmd.Code())
			assert.Equal(t, tc.fields, tc.cmd.Fields())
			assert.Equal(t, tc.response, tc.cmd.ExpectsResponse())
		})
	}
}

func TestParseVersionRejectsEmptyReply(t *testing.T) {
	_, err := ParseVersion(protocol.Frame{Seq: 1, Code: protocol.CmdVersion})
	require.Error(t, err)
	assert.True(t, dbgerrors.HasCode(err, dbgerrors.CodeProtocolError))

	v, err := ParseVersion(protocol.Frame{Seq: 1, Code: protocol.CmdVersion, Fields: []string{" 3.0.1 "}})
	require.NoError(t, err)
	assert.Equal(t, "3.0.1", v)
}

func TestParseArrayChunkRejectsOutOfRangeCells(t *testing.T) {
	payload, err := protocol.MarshalDocument(&protocol.Document{Array: &protocol.Array{
		Slice: "m", Rows: 1, Cols: 1,
		Cells: []protocol.ArrayCell{{Row: 1, Col: 0, Value: "x"}},
	}})
	require.NoError(t, err)

	_, err = ParseArrayChunk(protocol.Frame{Code: protocol.CmdGetArray, Fields: []string{payload}}, 0, 0)
	require.Error(t, err)
	assert.True(t, dbgerrors.HasCode(err, dbgerrors.CodeProtocolError))
}

func TestSuspendPolicy(t *testing.T) {
	assert.Equal(t, SuspendAll, ParseSuspendPolicy("all"))
	assert.Equal(t, SuspendThread, ParseSuspendPolicy("thread"))
	text, err := SuspendAll.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "ALL", string(text))
}
