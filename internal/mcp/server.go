// Package mcp provides the Model Context Protocol (MCP) server implementation.
//
// This package exposes pydevd debugging sessions through MCP tools that can be
// used by AI assistants and other MCP clients:
//
// Session Management (always available):
//   - debug_launch: Launch a Python program under pydevd
//   - debug_attach: Connect to a pydevd server waiting in a running program
//   - debug_disconnect: Disconnect from a session
//   - debug_list_sessions: List active sessions
//
// Inspection (always available):
//   - debug_snapshot: Get complete debug state (threads, stacks, variables)
//   - debug_variables: Expand a container or list a frame's locals
//   - debug_evaluate: Evaluate expressions, run statements, feed stdin
//   - debug_output: Read buffered program output
//
// Control (full mode only):
//   - debug_breakpoints: Set/clear line and exception breakpoints
//   - debug_step: Step over/into/out
//   - debug_continue: Resume execution
//   - debug_pause: Pause execution
//   - debug_set_variable: Modify variable values
//   - debug_run_to_line: Run to a specific line
//   - debug_get_array: Read a 2-D slice of an array-like value
package mcp

import (
	"context"
	"os"
	"sync"

	"github.com/mark3labs/mcp-go/server"
	"pkt.systems/pslog"

	"github.com/ctagard/pydevd-mcp/internal/config"
	"github.com/ctagard/pydevd-mcp/internal/dapview"
	dbgerrors "github.com/ctagard/pydevd-mcp/internal/errors"
	"github.com/ctagard/pydevd-mcp/internal/launcher"
	"github.com/ctagard/pydevd-mcp/internal/pydevd"
	"github.com/ctagard/pydevd-mcp/internal/version"
)

// Server wraps the MCP server with debugging capabilities
type Server struct {
	mcpServer      *server.MCPServer
	sessionManager *pydevd.SessionManager
	launcher       *launcher.Launcher
	config         *config.Config
	logger         pslog.Logger

	mu     sync.Mutex
	states map[string]*sessionState
}

// sessionState is the per-session view state the tools share: DAP handles
// and a notifier for stops.
type sessionState struct {
	session *pydevd.Session
	handles *dapview.Handles
	stops   *stopWatch
}

// NewServer creates a new pydevd-MCP server. The logger is taken from ctx.
func NewServer(ctx context.Context, cfg *config.Config) *Server {
	mcpServer := server.NewMCPServer(
		"pydevd-mcp",
		version.Version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)

	s := &Server{
		mcpServer:      mcpServer,
		sessionManager: pydevd.NewSessionManager(ctx, cfg.MaxSessions, cfg.SessionTimeout),
		launcher:       launcher.New(cfg),
		config:         cfg,
		logger:         pslog.Ctx(ctx).With("component", "mcp"),
		states:         make(map[string]*sessionState),
	}

	s.registerTools()

	return s
}

// ServeStdio serves MCP over stdin/stdout until ctx ends or stdin closes.
func (s *Server) ServeStdio(ctx context.Context) error {
	stdio := server.NewStdioServer(s.mcpServer)
	stdio.SetErrorLogger(pslog.LogLogger(s.logger))
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// Close shuts down the server
func (s *Server) Close() {
	s.sessionManager.Close()
}

// GetSessionManager returns the session manager
func (s *Server) GetSessionManager() *pydevd.SessionManager {
	return s.sessionManager
}

// GetConfig returns the server configuration
func (s *Server) GetConfig() *config.Config {
	return s.config
}

// toolContext carries the server logger, tagged with the tool name, into a
// handler's request context.
func (s *Server) toolContext(ctx context.Context, tool string) context.Context {
	return pslog.ContextWithLogger(ctx, s.logger.With("tool", tool))
}

// track registers the view state of a freshly connected session.
func (s *Server) track(session *pydevd.Session) *sessionState {
	state := &sessionState{
		session: session,
		handles: dapview.NewHandles(),
		stops:   newStopWatch(),
	}
	engine := session.Engine()
	engine.AddListener(state.handles)
	engine.AddListener(state.stops)

	s.mu.Lock()
	s.states[session.ID] = state
	s.mu.Unlock()
	return state
}

func (s *Server) forget(sessionID string) {
	s.mu.Lock()
	delete(s.states, sessionID)
	s.mu.Unlock()
}

// state looks up a connected session. Sessions removed by the idle cleanup
// drop their view state here.
func (s *Server) state(sessionID string) (*sessionState, error) {
	session, err := s.sessionManager.GetSession(sessionID)
	if err != nil {
		s.forget(sessionID)
		return nil, err
	}

	s.mu.Lock()
	state, ok := s.states[sessionID]
	s.mu.Unlock()
	if !ok || session.Engine() == nil {
		return nil, dbgerrors.SessionTerminated(sessionID)
	}
	return state, nil
}

// connected returns the engine of a session that still has its connection.
func (st *sessionState) connected() (*pydevd.Engine, error) {
	engine := st.session.Engine()
	if engine == nil || !engine.IsConnected() {
		return nil, dbgerrors.SessionTerminated(st.session.ID)
	}
	return engine, nil
}
