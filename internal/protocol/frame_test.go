package protocol

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestFrameRoundTrip verifies that fields with reserved characters survive encode/decode.
func TestFrameRoundTrip(t *testing.T) {
	cases := []struct {
		name   string
		fields []string
	}{
		{"no fields", nil},
		{"single empty field", []string{""}},
		{"plain", []string{"pid_1_id_2", "12", "FRAME"}},
		{"delimiter", []string{"a|b", "|", "||x"}},
		{"newline and tab", []string{"line1\nline2", "\tindented", "crlf\r\n"}},
		{"escape tokens", []string{"%7C", "100%", "%0A%09"}},
		{"trailing empties", []string{"x", "", ""}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			line := Encode(7, CmdEvaluateExpression, tc.fields)
			assert.NotContains(t, line, "\n")
			assert.NotContains(t, line, "\r")

			frame, err := Decode(line)
			require.NoError(t, err)
			assert.Equal(t, 7, frame.Seq)
			assert.Equal(t, CmdEvaluateExpression, frame.Code)
			if len(tc.fields) == 0 {
				assert.Empty(t, frame.Fields)
			} else {
				assert.Equal(t, tc.fields, frame.Fields)
			}
		})
	}
}

// TestEncode_Layout verifies the exact wire layout.
func TestEncode_Layout(t *testing.T) {
	assert.Equal(t, "1\t501\t1.1|UNIX|ID", Encode(1, CmdVersion, []string{"1.1", "UNIX", "ID"}))
	assert.Equal(t, "3\t102", Encode(3, CmdListThreads, nil))
	assert.Equal(t, "5\t113\t", Encode(5, CmdEvaluateExpression, []string{""}))
	assert.Equal(t, "9\t113\ta%7Cb|c%0Ad%09e", Encode(9, CmdEvaluateExpression, []string{"a|b", "c\nd\te"}))
}

// TestDecode_EmptyAndSingleFieldDiffer verifies [] and [""] decode distinctly.
func TestDecode_EmptyAndSingleFieldDiffer(t *testing.T) {
	none, err := Decode("3\t102")
	require.NoError(t, err)
	assert.Nil(t, none.Fields)

	one, err := Decode("3\t102\t")
	require.NoError(t, err)
	assert.Equal(t, []string{""}, one.Fields)
}

// TestDecode_TrailingNewline verifies line terminators are ignored.
func TestDecode_TrailingNewline(t *testing.T) {
	frame, err := Decode("4\t502\tok\r\n")
	require.NoError(t, err)
	assert.Equal(t, 4, frame.Seq)
	assert.Equal(t, CmdReturn, frame.Code)
	assert.Equal(t, "ok", frame.Payload())
}

// TestDecode_Malformed verifies lines without numeric prefixes are rejected.
func TestDecode_Malformed(t *testing.T) {
	for _, line := range []string{
		"",
		"garbage",
		"12",
		"x\t113\tpayload",
		"12\tabc\tpayload",
		"\t\t",
	} {
		_, err := Decode(line)
		require.Error(t, err, "line %q", line)
		assert.True(t, errors.Is(err, ErrMalformedFrame), "line %q: %v", line, err)
	}
}

// TestFrame_Field verifies out-of-range field access returns "".
func TestFrame_Field(t *testing.T) {
	f := Frame{Seq: 1, Code: CmdReturn, Fields: []string{"a", "b"}}
	assert.Equal(t, "a", f.Payload())
	assert.Equal(t, "b", f.Field(1))
	assert.Equal(t, "", f.Field(2))
	assert.Equal(t, "", f.Field(-1))
	assert.Equal(t, "", Frame{}.Payload())
}

// TestCode_Class verifies routing classes of the registry.
func TestCode_Class(t *testing.T) {
	for _, c := range []Code{CmdThreadCreate, CmdThreadKill, CmdThreadSuspend, CmdThreadRun, CmdShowConsole} {
		assert.Equal(t, ClassThread, c.Class(), c.String())
	}
	assert.Equal(t, ClassConsole, CmdWriteToConsole.Class())
	assert.Equal(t, ClassSignature, CmdSignatureCallTrace.Class())
	assert.Equal(t, ClassConcurrency, CmdGetConcurrencyEvent.Class())
	assert.Equal(t, ClassInput, CmdInputRequested.Class())
	assert.Equal(t, ClassProcess, CmdProcessCreated.Class())
	for _, c := range []Code{CmdVersion, CmdReturn, CmdError, CmdGetFrame, CmdEvaluateExpression, Code(999)} {
		assert.Equal(t, ClassReply, c.Class(), c.String())
	}
}

// TestCode_String verifies known and unknown code names.
func TestCode_String(t *testing.T) {
	assert.Equal(t, "VERSION", CmdVersion.String())
	assert.Equal(t, "GET_ARRAY", CmdGetArray.String())
	assert.Equal(t, "777", Code(777).String())
}

// TestParseStepMode verifies user-facing step names.
func TestParseStepMode(t *testing.T) {
	cases := map[string]StepMode{
		"continue":     StepResume,
		"over":         StepOver,
		"next":         StepOver,
		"in":           StepInto,
		"out":          StepReturn,
		"into-my-code": StepIntoMyCode,
	}
	for name, want := range cases {
		got, ok := ParseStepMode(name)
		require.True(t, ok, name)
		assert.Equal(t, want, got, name)
	}
	_, ok := ParseStepMode("sideways")
	assert.False(t, ok)

	assert.Equal(t, CmdThreadRun, StepResume.Code())
	assert.Equal(t, CmdStepOver, StepOver.Code())
	assert.Equal(t, CmdStepIntoMyCode, StepIntoMyCode.Code())
}
