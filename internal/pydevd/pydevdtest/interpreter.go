// Package pydevdtest provides a scripted pydevd interpreter for tests. It
// speaks the wire protocol over loopback TCP so engines under test run
// their real transport code.
package pydevdtest

import (
	"bufio"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ctagard/pydevd-mcp/internal/protocol"
)

// WaitTimeout bounds every wait on the engine.
const WaitTimeout = 2 * time.Second

// Interpreter plays the interpreter side of the protocol. The version
// handshake is answered automatically; every other frame is queued for the
// test to inspect and answer.
type Interpreter struct {
	// Version is the debugger version reported in the handshake.
	Version string

	t        testing.TB
	listener net.Listener

	mu   sync.Mutex
	conn net.Conn
	seq  int

	received  chan protocol.Frame
	connected chan struct{}
}

// New starts an interpreter waiting for an engine in client mode. It is
// closed when the test ends.
func New(t testing.TB) *Interpreter {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	f := &Interpreter{
		Version:   "3.2.3",
		t:         t,
		listener:  ln,
		received:  make(chan protocol.Frame, 256),
		connected: make(chan struct{}),
	}
	go f.accept()
	t.Cleanup(f.Close)
	return f
}

// Addr is the address an engine dials.
func (f *Interpreter) Addr() string {
	return f.listener.Addr().String()
}

// Port is the port an engine dials.
func (f *Interpreter) Port() int {
	return f.listener.Addr().(*net.TCPAddr).Port
}

func (f *Interpreter) accept() {
	conn, err := f.listener.Accept()
	if err != nil {
		return
	}
	f.serve(conn)
}

// Dial runs the interpreter in server mode, connecting to an engine
// listening at addr.
func (f *Interpreter) Dial(addr string) {
	conn, err := net.Dial("tcp", addr)
	require.NoError(f.t, err)
	_ = f.listener.Close()
	go f.serve(conn)
}

func (f *Interpreter) serve(conn net.Conn) {
	f.mu.Lock()
	f.conn = conn
	f.mu.Unlock()
	close(f.connected)

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 64<<20)
	for scanner.Scan() {
		frame, err := protocol.Decode(scanner.Text())
		if err != nil {
			continue
		}
		if frame.Code == protocol.CmdVersion {
			f.Reply(frame, f.Version)
			continue
		}
		f.received <- frame
	}
}

// WriteLine sends a raw line.
func (f *Interpreter) WriteLine(line string) {
	f.t.Helper()
	select {
	case <-f.connected:
	case <-time.After(WaitTimeout):
		require.FailNow(f.t, "interpreter is not connected")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, err := f.conn.Write([]byte(line + "\n")); err != nil {
		f.t.Logf("fake interpreter write: %v", err)
	}
}

// Reply answers req with the given fields.
func (f *Interpreter) Reply(req protocol.Frame, fields ...string) {
	f.WriteLine(protocol.Encode(req.Seq, req.Code, fields))
}

// Fail answers req with an error frame.
func (f *Interpreter) Fail(req protocol.Frame, message string) {
	f.WriteLine(protocol.Encode(req.Seq, protocol.CmdError, []string{message}))
}

// Event sends an interpreter-originated frame. Those use even sequence numbers.
func (f *Interpreter) Event(code protocol.Code, fields ...string) {
	f.mu.Lock()
	f.seq += 2
	seq := f.seq
	f.mu.Unlock()
	f.WriteLine(protocol.Encode(seq, code, fields))
}

// ThreadEvent sends a thread lifecycle event carrying threads.
func (f *Interpreter) ThreadEvent(code protocol.Code, threads ...protocol.Thread) {
	f.t.Helper()
	payload, err := protocol.MarshalDocument(&protocol.Document{Threads: threads})
	require.NoError(f.t, err)
	f.Event(code, payload)
}

// Next returns the next frame sent by the engine.
func (f *Interpreter) Next() protocol.Frame {
	f.t.Helper()
	select {
	case frame := <-f.received:
		return frame
	case <-time.After(WaitTimeout):
		require.FailNow(f.t, "timed out waiting for a frame from the engine")
		return protocol.Frame{}
	}
}

// ExpectNone asserts that the engine sends nothing for a short while.
func (f *Interpreter) ExpectNone(d time.Duration) {
	f.t.Helper()
	select {
	case frame := <-f.received:
		require.FailNowf(f.t, "unexpected frame", "%s", frame)
	case <-time.After(d):
	}
}

// Drop closes the connection from the interpreter side.
func (f *Interpreter) Drop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.conn != nil {
		_ = f.conn.Close()
	}
}

// Close stops listening and drops the connection.
func (f *Interpreter) Close() {
	_ = f.listener.Close()
	f.Drop()
}

// VarsPayload encodes a variables reply.
func VarsPayload(t testing.TB, vars ...protocol.Var) string {
	t.Helper()
	payload, err := protocol.MarshalDocument(&protocol.Document{Vars: vars})
	require.NoError(t, err)
	return payload
}

// SuspendedThread describes a thread stopped for reason.
func SuspendedThread(id string, reason protocol.Code, frames ...protocol.StackFrame) protocol.Thread {
	return protocol.Thread{ID: id, Name: "MainThread", StopReason: int(reason), Frames: frames}
}
