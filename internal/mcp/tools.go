package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// registerTools registers the debug tool API
func (s *Server) registerTools() {
	// Session Management (both modes)
	s.registerDebugLaunch()
	s.registerDebugAttach()
	s.registerDebugDisconnect()
	s.registerDebugListSessions()

	// Inspection (both modes)
	s.registerDebugSnapshot()
	s.registerDebugVariables()
	s.registerDebugEvaluate()
	s.registerDebugOutput()

	// Control (full mode only)
	if s.config.CanUseControlTools() {
		s.registerDebugBreakpoints()
		s.registerDebugStep()
		s.registerDebugContinue()
		s.registerDebugPause()
		s.registerDebugSetVariable()
		s.registerDebugRunToLine()
		s.registerDebugGetArray()
	}
}

// Session Management Tools

func (s *Server) registerDebugLaunch() {
	tool := mcp.NewTool("debug_launch",
		mcp.WithDescription("Launch a Python program under the pydevd debugger. Can use direct arguments OR reference a VS Code launch.json configuration. Returns sessionId needed for all other tools. Use stopOnEntry=true to pause before the program runs, or pass breakpoints to install them before it starts."),
		mcp.WithString("program",
			mcp.Description("Path to the Python script to debug. Not required if module or configName is provided."),
		),
		mcp.WithString("module",
			mcp.Description("Python module to run with -m semantics (e.g., 'pytest', 'mypkg.cli')."),
		),
		mcp.WithString("args",
			mcp.Description("JSON array of program arguments: [\"--verbose\", \"input.txt\"]"),
		),
		mcp.WithString("cwd",
			mcp.Description("Working directory for the program"),
		),
		mcp.WithString("env",
			mcp.Description("JSON object of extra environment variables: {\"DEBUG\": \"1\"}"),
		),
		mcp.WithString("python",
			mcp.Description("Path to the Python interpreter (for venv support), e.g. '/path/to/venv/bin/python'. Also accepted as 'pythonPath'."),
		),
		mcp.WithString("pythonPath",
			mcp.Description("Alias of 'python'."),
		),
		mcp.WithBoolean("stopOnEntry",
			mcp.Description("Pause all threads as soon as the program starts (default: false)"),
		),
		mcp.WithBoolean("multiprocess",
			mcp.Description("Follow subprocesses started by the program (default: from server config)"),
		),
		mcp.WithString("breakpoints",
			mcp.Description("JSON object mapping file paths to breakpoint arrays, installed before the program runs: {\"/app/main.py\": [{\"line\": 10}]}"),
		),
		// Launch.json configuration support
		mcp.WithString("configPath",
			mcp.Description("Path to launch.json file. Auto-discovers from workspace if not provided."),
		),
		mcp.WithString("configName",
			mcp.Description("Name of configuration in launch.json to use. If provided, loads settings from launch.json; direct arguments override them."),
		),
		mcp.WithString("workspace",
			mcp.Description("Workspace root for variable resolution (e.g., ${workspaceFolder}) and config discovery."),
		),
		mcp.WithString("inputValues",
			mcp.Description("JSON object with values for ${input:} variables in launch.json. Example: {\"testFile\": \"test_main.py\"}"),
		),
	)
	s.mcpServer.AddTool(tool, s.handleDebugLaunch)
}

func (s *Server) registerDebugAttach() {
	tool := mcp.NewTool("debug_attach",
		mcp.WithDescription("Connect to a pydevd server listening in a running program (started with pydevd.settrace or 'python -m pydevd --port N --server'). Can use direct arguments OR reference a VS Code launch.json attach configuration."),
		mcp.WithString("host",
			mcp.Description("Host address of the pydevd server (default: 127.0.0.1)"),
		),
		mcp.WithNumber("port",
			mcp.Description("Port of the pydevd server. Not required if configName is provided."),
		),
		mcp.WithString("breakpoints",
			mcp.Description("JSON object mapping file paths to breakpoint arrays, installed before the program is released: {\"/app/main.py\": [{\"line\": 10}]}"),
		),
		// Launch.json configuration support
		mcp.WithString("configPath",
			mcp.Description("Path to launch.json file. Auto-discovers from workspace if not provided."),
		),
		mcp.WithString("configName",
			mcp.Description("Name of attach configuration in launch.json to use."),
		),
		mcp.WithString("workspace",
			mcp.Description("Workspace root for variable resolution and config discovery."),
		),
		mcp.WithString("inputValues",
			mcp.Description("JSON object with values for ${input:} variables in launch.json."),
		),
	)
	s.mcpServer.AddTool(tool, s.handleDebugAttach)
}

func (s *Server) registerDebugDisconnect() {
	tool := mcp.NewTool("debug_disconnect",
		mcp.WithDescription("Disconnect from a debug session"),
		mcp.WithString("sessionId",
			mcp.Required(),
			mcp.Description("The session ID to disconnect from"),
		),
		mcp.WithBoolean("terminateDebuggee",
			mcp.Description("Terminate the debugged program (default: false)"),
		),
	)
	s.mcpServer.AddTool(tool, s.handleDebugDisconnect)
}

func (s *Server) registerDebugListSessions() {
	tool := mcp.NewTool("debug_list_sessions",
		mcp.WithDescription("List all active debug sessions"),
	)
	s.mcpServer.AddTool(tool, s.handleDebugListSessions)
}

// Inspection Tools

func (s *Server) registerDebugSnapshot() {
	tool := mcp.NewTool("debug_snapshot",
		mcp.WithDescription("Get complete debug state in ONE call: all threads, the stacks of stopped threads, and the top-frame variables. This is the primary inspection tool. Returns: {threads, stacks, variables, focusedThread, stopReason}."),
		mcp.WithString("sessionId",
			mcp.Required(),
			mcp.Description("The session ID"),
		),
		mcp.WithNumber("maxStackDepth",
			mcp.Description("Maximum stack depth to return (default: 10)"),
		),
		mcp.WithBoolean("expandVariables",
			mcp.Description("Include top-frame variables of each stopped thread (default: true)"),
		),
	)
	s.mcpServer.AddTool(tool, s.handleDebugSnapshot)
}

func (s *Server) registerDebugVariables() {
	tool := mcp.NewTool("debug_variables",
		mcp.WithDescription("List variables: the children of a container (variablesReference from debug_snapshot or debug_evaluate) or the locals of a frame (frameId)."),
		mcp.WithString("sessionId",
			mcp.Required(),
			mcp.Description("The session ID"),
		),
		mcp.WithNumber("variablesReference",
			mcp.Description("Container to expand"),
		),
		mcp.WithNumber("frameId",
			mcp.Description("Frame whose locals to list (default: top frame of the focused thread)"),
		),
	)
	s.mcpServer.AddTool(tool, s.handleDebugVariables)
}

func (s *Server) registerDebugEvaluate() {
	tool := mcp.NewTool("debug_evaluate",
		mcp.WithDescription("Evaluate one or more expressions in the current debug context. Supports single expression OR batch mode. context='repl' runs a statement, 'console' feeds the interactive console, 'stdin' writes the text to the program's standard input."),
		mcp.WithString("sessionId",
			mcp.Required(),
			mcp.Description("The session ID"),
		),
		mcp.WithString("expression",
			mcp.Description("Single expression to evaluate (e.g., 'len(my_list)', 'x + y')"),
		),
		mcp.WithString("expressions",
			mcp.Description("JSON array of expressions for batch evaluation: [\"x\", \"y\", \"len(arr)\"]"),
		),
		mcp.WithNumber("frameId",
			mcp.Description("Stack frame ID for context (default: top frame of the focused thread)"),
		),
		mcp.WithString("context",
			mcp.Description("Evaluation context: 'watch', 'hover', 'repl', 'console' or 'stdin' (default: 'watch')"),
		),
	)
	s.mcpServer.AddTool(tool, s.handleDebugEvaluate)
}

func (s *Server) registerDebugOutput() {
	tool := mcp.NewTool("debug_output",
		mcp.WithDescription("Read program output (stdout/stderr) captured for a session. Pass the last seq you saw as 'since' to read only newer output."),
		mcp.WithString("sessionId",
			mcp.Required(),
			mcp.Description("The session ID"),
		),
		mcp.WithNumber("since",
			mcp.Description("Return only output with seq greater than this (default: 0, everything buffered)"),
		),
	)
	s.mcpServer.AddTool(tool, s.handleDebugOutput)
}

// Control Tools (Full mode only)

func (s *Server) registerDebugBreakpoints() {
	tool := mcp.NewTool("debug_breakpoints",
		mcp.WithDescription("Set breakpoints in a source file, and/or exception breakpoints. Note: line breakpoints REPLACE all breakpoints in the file - include all desired breakpoints in each call; an empty array clears the file."),
		mcp.WithString("sessionId",
			mcp.Required(),
			mcp.Description("The session ID"),
		),
		mcp.WithString("path",
			mcp.Description("The source file path"),
		),
		mcp.WithString("breakpoints",
			mcp.Description("JSON array of breakpoints: [{line: number, condition?: string, logMessage?: string, funcName?: string, suspendPolicy?: 'all'|'thread'}]"),
		),
		mcp.WithString("exceptions",
			mcp.Description("JSON array of exception type names to break on when raised uncaught, e.g. [\"ValueError\"]. Replaces the previous list."),
		),
	)
	s.mcpServer.AddTool(tool, s.handleDebugBreakpoints)
}

func (s *Server) registerDebugStep() {
	tool := mcp.NewTool("debug_step",
		mcp.WithDescription("Execute a step command and wait for the thread to stop again. Use type='over' to step to next line, 'into' to enter function calls, 'out' to exit current function, 'intoMyCode' to skip library code."),
		mcp.WithString("sessionId",
			mcp.Required(),
			mcp.Description("The session ID"),
		),
		mcp.WithNumber("threadId",
			mcp.Description("The thread ID to step (default: the focused thread)"),
		),
		mcp.WithString("type",
			mcp.Required(),
			mcp.Description("Step type: 'over' (next line), 'into' (enter function), 'out' (exit function), 'intoMyCode'"),
		),
		mcp.WithNumber("timeout",
			mcp.Description("Seconds to wait for the step to complete (default: 10)"),
		),
	)
	s.mcpServer.AddTool(tool, s.handleDebugStep)
}

func (s *Server) registerDebugContinue() {
	tool := mcp.NewTool("debug_continue",
		mcp.WithDescription("Continue program execution until next breakpoint or program end. Returns immediately - use debug_snapshot to check state after stopping. For 'run to line X', use debug_run_to_line instead."),
		mcp.WithString("sessionId",
			mcp.Required(),
			mcp.Description("The session ID"),
		),
		mcp.WithNumber("threadId",
			mcp.Description("The thread ID to continue (default: all threads)"),
		),
	)
	s.mcpServer.AddTool(tool, s.handleDebugContinue)
}

func (s *Server) registerDebugPause() {
	tool := mcp.NewTool("debug_pause",
		mcp.WithDescription("Pause program execution. Use when program is running and you need to inspect state."),
		mcp.WithString("sessionId",
			mcp.Required(),
			mcp.Description("The session ID"),
		),
		mcp.WithNumber("threadId",
			mcp.Description("The thread ID to pause (default: all threads)"),
		),
	)
	s.mcpServer.AddTool(tool, s.handleDebugPause)
}

func (s *Server) registerDebugSetVariable() {
	tool := mcp.NewTool("debug_set_variable",
		mcp.WithDescription("Modify the value of a variable during debugging. Identify the variable by name inside a container (variablesReference) or among a frame's locals (frameId)."),
		mcp.WithString("sessionId",
			mcp.Required(),
			mcp.Description("The session ID"),
		),
		mcp.WithNumber("variablesReference",
			mcp.Description("The container holding the variable (from debug_snapshot or debug_variables)"),
		),
		mcp.WithNumber("frameId",
			mcp.Description("The frame whose local to modify (default: top frame of the focused thread)"),
		),
		mcp.WithString("name",
			mcp.Required(),
			mcp.Description("The variable name to modify"),
		),
		mcp.WithString("value",
			mcp.Required(),
			mcp.Description("The new value, as a Python expression"),
		),
	)
	s.mcpServer.AddTool(tool, s.handleDebugSetVariable)
}

func (s *Server) registerDebugRunToLine() {
	tool := mcp.NewTool("debug_run_to_line",
		mcp.WithDescription("Run until execution reaches a specific line. Sets a temporary breakpoint, continues, waits for the stop, and returns a snapshot with stack and local variables. More efficient than set breakpoint + continue + snapshot."),
		mcp.WithString("sessionId",
			mcp.Required(),
			mcp.Description("The session ID"),
		),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("The source file path"),
		),
		mcp.WithNumber("line",
			mcp.Required(),
			mcp.Description("The line number to run to"),
		),
		mcp.WithNumber("threadId",
			mcp.Description("The thread ID to resume (default: all threads)"),
		),
		mcp.WithNumber("timeout",
			mcp.Description("Seconds to wait for the line to be reached (default: 30)"),
		),
	)
	s.mcpServer.AddTool(tool, s.handleDebugRunToLine)
}

func (s *Server) registerDebugGetArray() {
	tool := mcp.NewTool("debug_get_array",
		mcp.WithDescription("Read a rectangular slice of an array-like value (numpy array, pandas DataFrame, nested list) as a grid of formatted cells."),
		mcp.WithString("sessionId",
			mcp.Required(),
			mcp.Description("The session ID"),
		),
		mcp.WithString("expression",
			mcp.Required(),
			mcp.Description("Expression naming the array, e.g. 'df' or 'arr[0]'"),
		),
		mcp.WithNumber("frameId",
			mcp.Description("Stack frame ID for context (default: top frame of the focused thread)"),
		),
		mcp.WithNumber("rowOffset",
			mcp.Description("First row to read (default: 0)"),
		),
		mcp.WithNumber("colOffset",
			mcp.Description("First column to read (default: 0)"),
		),
		mcp.WithNumber("rows",
			mcp.Description("Number of rows (default: 20)"),
		),
		mcp.WithNumber("cols",
			mcp.Description("Number of columns (default: 20)"),
		),
		mcp.WithString("format",
			mcp.Description("printf-style cell format, e.g. '%.3f' (default: the debugger's choice)"),
		),
	)
	s.mcpServer.AddTool(tool, s.handleDebugGetArray)
}
