package pydevd

import (
	"context"
	"io"
	"os/exec"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"pkt.systems/pslog"

	dbgerrors "github.com/ctagard/pydevd-mcp/internal/errors"
	"github.com/ctagard/pydevd-mcp/pkg/types"
)

// Session represents an active debug session
type Session struct {
	ID        string
	Mode      types.SessionMode
	Program   string
	CreatedAt time.Time

	mu         sync.RWMutex
	status     types.SessionStatus
	engine     *Engine
	process    *exec.Cmd
	stdin      io.WriteCloser
	pid        int
	lastActive time.Time
}

// Engine returns the protocol engine, nil until the session is connected.
func (s *Session) Engine() *Engine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// Status returns the current session status.
func (s *Session) Status() types.SessionStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

func (s *Session) setStatus(status types.SessionStatus) {
	s.mu.Lock()
	if s.status != types.SessionStatusTerminated {
		s.status = status
	}
	s.mu.Unlock()
}

// WriteInput sends text to the standard input of a launched program.
func (s *Session) WriteInput(text string) error {
	s.mu.RLock()
	stdin := s.stdin
	s.mu.RUnlock()
	if stdin == nil {
		return dbgerrors.InvalidParameter("session", s.ID, "a launched session (attached programs have no stdin)")
	}
	_, err := io.WriteString(stdin, text)
	return err
}

// Touch records activity, postponing idle cleanup.
func (s *Session) Touch() {
	s.mu.Lock()
	s.lastActive = time.Now()
	s.mu.Unlock()
}

func (s *Session) idleSince() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastActive
}

// GetInfo returns session info for a session
func (s *Session) GetInfo() types.SessionInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	info := types.SessionInfo{
		SessionID:  s.ID,
		Mode:       s.Mode,
		Status:     s.status,
		PID:        s.pid,
		Program:    s.Program,
		CreatedAt:  s.CreatedAt,
		LastActive: s.lastActive,
	}
	if s.engine != nil {
		info.Address = s.engine.transport.Address()
		info.InterpreterVersion = s.engine.InterpreterVersion()
	}
	return info
}

// statusTracker follows engine events to keep the session status current.
type statusTracker struct {
	NopListener
	session *Session
}

func (t statusTracker) ThreadSuspended(ThreadInfo, bool) {
	t.session.setStatus(types.SessionStatusStopped)
}

func (t statusTracker) ConsoleShown(ThreadInfo) {
	t.session.setStatus(types.SessionStatusStopped)
}

func (t statusTracker) ThreadResumed(ThreadInfo) {
	t.settle()
}

func (t statusTracker) ThreadKilled(string) {
	t.settle()
}

// settle marks the session running once no thread is left suspended.
func (t statusTracker) settle() {
	if engine := t.session.Engine(); engine != nil && !engine.AnySuspended() {
		t.session.setStatus(types.SessionStatusRunning)
	}
}

func (t statusTracker) Detached() {
	t.session.setStatus(types.SessionStatusTerminated)
}

// SessionManager manages multiple debug sessions
type SessionManager struct {
	sessions map[string]*Session
	mu       sync.RWMutex

	maxSessions    int
	sessionTimeout time.Duration
	logger         pslog.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// NewSessionManager creates a new session manager. The logger is taken from
// ctx; cancelling ctx stops the idle cleanup loop.
func NewSessionManager(ctx context.Context, maxSessions int, sessionTimeout time.Duration) *SessionManager {
	ctx, cancel := context.WithCancel(ctx)
	sm := &SessionManager{
		sessions:       make(map[string]*Session),
		maxSessions:    maxSessions,
		sessionTimeout: sessionTimeout,
		logger:         pslog.Ctx(ctx),
		ctx:            ctx,
		cancel:         cancel,
	}

	if sessionTimeout > 0 {
		go sm.cleanupLoop()
	}
	return sm
}

// cleanupLoop periodically cleans up idle sessions
func (sm *SessionManager) cleanupLoop() {
	interval := time.Minute
	if sm.sessionTimeout < interval {
		interval = sm.sessionTimeout
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-sm.ctx.Done():
			return
		case <-ticker.C:
			sm.cleanupExpiredSessions(time.Now())
		}
	}
}

// cleanupExpiredSessions terminates sessions idle for longer than the timeout
func (sm *SessionManager) cleanupExpiredSessions(now time.Time) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	for id, session := range sm.sessions {
		if now.Sub(session.idleSince()) > sm.sessionTimeout {
			sm.logger.Info("pydevd.session.expired", "session", id)
			sm.terminateSessionLocked(id)
		}
	}
}

// CreateSession reserves a new session slot
func (sm *SessionManager) CreateSession(mode types.SessionMode, program string) (*Session, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if len(sm.sessions) >= sm.maxSessions {
		return nil, dbgerrors.SessionLimitReached(sm.maxSessions)
	}

	now := time.Now()
	session := &Session{
		ID:         uuid.New().String(),
		Mode:       mode,
		Program:    program,
		CreatedAt:  now,
		status:     types.SessionStatusInitializing,
		lastActive: now,
	}
	sm.sessions[session.ID] = session
	sm.logger.Debug("pydevd.session.created", "session", session.ID, "mode", string(mode))
	return session, nil
}

// GetSession retrieves a session by ID and marks it active
func (sm *SessionManager) GetSession(id string) (*Session, error) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	session, ok := sm.sessions[id]
	if !ok {
		return nil, dbgerrors.SessionNotFound(id)
	}
	session.Touch()
	return session, nil
}

// ListSessions returns all active sessions, oldest first
func (sm *SessionManager) ListSessions() []*Session {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	sessions := make([]*Session, 0, len(sm.sessions))
	for _, session := range sm.sessions {
		sessions = append(sessions, session)
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].CreatedAt.Before(sessions[j].CreatedAt)
	})
	return sessions
}

// SetSessionEngine binds a connected engine to a session
func (sm *SessionManager) SetSessionEngine(id string, engine *Engine) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	session, ok := sm.sessions[id]
	if !ok {
		return dbgerrors.SessionNotFound(id)
	}

	session.mu.Lock()
	session.engine = engine
	if session.status == types.SessionStatusInitializing {
		session.status = types.SessionStatusRunning
	}
	session.mu.Unlock()

	engine.AddListener(statusTracker{session: session})
	return nil
}

// SetSessionProcess records the launched interpreter process of a session.
func (sm *SessionManager) SetSessionProcess(id string, cmd *exec.Cmd, stdin io.WriteCloser) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	session, ok := sm.sessions[id]
	if !ok {
		return dbgerrors.SessionNotFound(id)
	}

	session.mu.Lock()
	session.process = cmd
	session.stdin = stdin
	if cmd.Process != nil {
		session.pid = cmd.Process.Pid
	}
	session.mu.Unlock()
	return nil
}

// TerminateSession ends a session. With terminateDebuggee the interpreter is
// asked to exit and a launched process group is killed.
func (sm *SessionManager) TerminateSession(id string, terminateDebuggee bool) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if _, ok := sm.sessions[id]; !ok {
		return dbgerrors.SessionNotFound(id)
	}
	sm.terminate(sm.sessions[id], terminateDebuggee)
	delete(sm.sessions, id)
	return nil
}

// terminateSessionLocked terminates a session (must be called with lock held)
func (sm *SessionManager) terminateSessionLocked(id string) {
	session, ok := sm.sessions[id]
	if !ok {
		return
	}
	sm.terminate(session, true)
	delete(sm.sessions, id)
}

func (sm *SessionManager) terminate(session *Session, terminateDebuggee bool) {
	session.mu.Lock()
	engine, cmd, pid, stdin := session.engine, session.process, session.pid, session.stdin
	session.status = types.SessionStatusTerminated
	session.mu.Unlock()

	if stdin != nil {
		_ = stdin.Close()
	}

	if engine != nil {
		if terminateDebuggee && engine.IsConnected() {
			engine.Exit()
		}
		if err := engine.Close(); err != nil {
			sm.logger.Warn("pydevd.session.close_failed", "session", session.ID, "err", err)
		}
	}

	if terminateDebuggee && cmd != nil {
		if err := killProcessGroup(pid, cmd); err != nil {
			sm.logger.Warn("pydevd.session.kill_failed", "session", session.ID, "pid", pid, "err", err)
		}
	}
	sm.logger.Info("pydevd.session.terminated", "session", session.ID)
}

// Close shuts down the session manager and all sessions
func (sm *SessionManager) Close() {
	sm.cancel()

	sm.mu.Lock()
	defer sm.mu.Unlock()

	var g errgroup.Group
	for _, session := range sm.sessions {
		g.Go(func() error {
			sm.terminate(session, true)
			return nil
		})
	}
	_ = g.Wait()
	clear(sm.sessions)
}
