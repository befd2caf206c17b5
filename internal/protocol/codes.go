package protocol

import "strconv"

// Code is a numeric command code from the fixed protocol registry.
type Code int

const (
	CmdRun                  Code = 101
	CmdListThreads          Code = 102
	CmdThreadCreate         Code = 103
	CmdThreadKill           Code = 104
	CmdThreadSuspend        Code = 105
	CmdThreadRun            Code = 106
	CmdStepInto             Code = 107
	CmdStepOver             Code = 108
	CmdStepReturn           Code = 109
	CmdGetVariable          Code = 110
	CmdSetBreak             Code = 111
	CmdRemoveBreak          Code = 112
	CmdEvaluateExpression   Code = 113
	CmdGetFrame             Code = 114
	CmdExecExpression       Code = 115
	CmdWriteToConsole       Code = 116
	CmdChangeVariable       Code = 117
	CmdRunToLine            Code = 118
	CmdGetCompletions       Code = 120
	CmdConsoleExec          Code = 121
	CmdAddExceptionBreak    Code = 122
	CmdRemoveExceptionBreak Code = 123
	CmdLoadSource           Code = 124
	CmdSetNextStatement     Code = 127
	CmdSmartStepInto        Code = 128
	CmdExit                 Code = 129
	CmdSignatureCallTrace   Code = 130
	CmdRunCustomOperation   Code = 135
	CmdStepCaughtException  Code = 137
	CmdShowConsole          Code = 142
	CmdGetArray             Code = 143
	CmdStepIntoMyCode       Code = 144
	CmdGetConcurrencyEvent  Code = 145
	CmdShowReturnValues     Code = 146
	CmdInputRequested       Code = 147
	CmdGetDescription       Code = 148
	CmdProcessCreated       Code = 149
	CmdLoadFullValue        Code = 151
	CmdVersion              Code = 501
	CmdReturn               Code = 502
	CmdError                Code = 901
)

var codeNames = map[Code]string{
	CmdRun:                  "RUN",
	CmdListThreads:          "LIST_THREADS",
	CmdThreadCreate:         "THREAD_CREATE",
	CmdThreadKill:           "THREAD_KILL",
	CmdThreadSuspend:        "THREAD_SUSPEND",
	CmdThreadRun:            "THREAD_RUN",
	CmdStepInto:             "STEP_INTO",
	CmdStepOver:             "STEP_OVER",
	CmdStepReturn:           "STEP_RETURN",
	CmdGetVariable:          "GET_VARIABLE",
	CmdSetBreak:             "SET_BREAK",
	CmdRemoveBreak:          "REMOVE_BREAK",
	CmdEvaluateExpression:   "EVALUATE_EXPRESSION",
	CmdGetFrame:             "GET_FRAME",
	CmdExecExpression:       "EXEC_EXPRESSION",
	CmdWriteToConsole:       "WRITE_TO_CONSOLE",
	CmdChangeVariable:       "CHANGE_VARIABLE",
	CmdRunToLine:            "RUN_TO_LINE",
	CmdGetCompletions:       "GET_COMPLETIONS",
	CmdConsoleExec:          "CONSOLE_EXEC",
	CmdAddExceptionBreak:    "ADD_EXCEPTION_BREAK",
	CmdRemoveExceptionBreak: "REMOVE_EXCEPTION_BREAK",
	CmdLoadSource:           "LOAD_SOURCE",
	CmdSetNextStatement:     "SET_NEXT_STATEMENT",
	CmdSmartStepInto:        "SMART_STEP_INTO",
	CmdExit:                 "EXIT",
	CmdSignatureCallTrace:   "SIGNATURE_CALL_TRACE",
	CmdRunCustomOperation:   "RUN_CUSTOM_OPERATION",
	CmdStepCaughtException:  "STEP_CAUGHT_EXCEPTION",
	CmdShowConsole:          "SHOW_CONSOLE",
	CmdGetArray:             "GET_ARRAY",
	CmdStepIntoMyCode:       "STEP_INTO_MY_CODE",
	CmdGetConcurrencyEvent:  "GET_CONCURRENCY_EVENT",
	CmdShowReturnValues:     "SHOW_RETURN_VALUES",
	CmdInputRequested:       "INPUT_REQUESTED",
	CmdGetDescription:       "GET_DESCRIPTION",
	CmdProcessCreated:       "PROCESS_CREATED",
	CmdLoadFullValue:        "LOAD_FULL_VALUE",
	CmdVersion:              "VERSION",
	CmdReturn:               "RETURN",
	CmdError:                "ERROR",
}

// String returns the registry name of the code, or its number if unknown.
func (c Code) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return strconv.Itoa(int(c))
}

// Class groups codes by how an incoming frame is routed.
type Class int

const (
	// ClassReply frames answer an outstanding request.
	ClassReply Class = iota
	// ClassThread frames carry thread lifecycle events.
	ClassThread
	// ClassConsole frames carry debuggee stdout/stderr.
	ClassConsole
	// ClassSignature frames carry recorded call signatures.
	ClassSignature
	// ClassConcurrency frames carry threading/asyncio instrumentation events.
	ClassConcurrency
	// ClassInput frames signal that the debuggee waits on stdin.
	ClassInput
	// ClassProcess frames announce a child process attaching.
	ClassProcess
)

// Class returns the routing class of the code.
func (c Code) Class() Class {
	switch c {
	case CmdThreadCreate, CmdThreadKill, CmdThreadSuspend, CmdThreadRun, CmdShowConsole:
		return ClassThread
	case CmdWriteToConsole:
		return ClassConsole
	case CmdSignatureCallTrace:
		return ClassSignature
	case CmdGetConcurrencyEvent:
		return ClassConcurrency
	case CmdInputRequested:
		return ClassInput
	case CmdProcessCreated:
		return ClassProcess
	default:
		return ClassReply
	}
}

// StepMode selects the resume flavour of a thread run command.
type StepMode int

const (
	StepResume StepMode = iota
	StepInto
	StepOver
	StepReturn
	StepIntoMyCode
)

// Code returns the wire code for the step mode.
func (m StepMode) Code() Code {
	switch m {
	case StepInto:
		return CmdStepInto
	case StepOver:
		return CmdStepOver
	case StepReturn:
		return CmdStepReturn
	case StepIntoMyCode:
		return CmdStepIntoMyCode
	default:
		return CmdThreadRun
	}
}

func (m StepMode) String() string {
	switch m {
	case StepInto:
		return "into"
	case StepOver:
		return "over"
	case StepReturn:
		return "return"
	case StepIntoMyCode:
		return "into-my-code"
	default:
		return "resume"
	}
}

// ParseStepMode maps a user-facing name to a StepMode.
func ParseStepMode(s string) (StepMode, bool) {
	switch s {
	case "resume", "continue":
		return StepResume, true
	case "into", "in":
		return StepInto, true
	case "over", "next":
		return StepOver, true
	case "return", "out":
		return StepReturn, true
	case "into-my-code", "mycode":
		return StepIntoMyCode, true
	}
	return StepResume, false
}
