// Package pydevd implements the IDE side of the pydevd remote debugging
// protocol.
//
// The package provides:
//   - Transport: line-oriented socket I/O in two topologies (client and server mode)
//   - Engine: request/response correlation, the thread state machine and event dispatch
//   - Commands: one typed value per protocol verb
//   - SessionManager: many concurrent engine sessions with lifecycle management
//
// The wire format itself lives in the protocol package.
package pydevd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"pkt.systems/pslog"

	dbgerrors "github.com/ctagard/pydevd-mcp/internal/errors"
	"github.com/ctagard/pydevd-mcp/internal/protocol"
)

// maxLineSize bounds a single wire line; large variable dumps can be several MB.
const maxLineSize = 64 << 20

// FrameHandler receives everything the reader loop produces.
type FrameHandler interface {
	// ProcessFrame is called from the reader goroutine for every decoded line.
	ProcessFrame(frame protocol.Frame)
	// ConnectionClosed is called once when the reader loop ends. err is nil when
	// the connection was closed locally.
	ConnectionClosed(err error)
}

// Transport is a connection strategy feeding the frame decoder.
type Transport interface {
	// WaitForConnect establishes the connection and starts the reader loop.
	WaitForConnect(ctx context.Context, handler FrameHandler) error
	// Send writes one frame. It is safe for concurrent use.
	Send(frame protocol.Frame) error
	IsConnected() bool
	// Disconnect drops the connection; the handler sees ConnectionClosed(nil).
	Disconnect()
	// Close disconnects and releases every resource owned by the transport.
	Close() error
	// Address describes the remote or listening endpoint.
	Address() string
}

// errLineTooLong marks a line that exceeded maxLine; the rest of it was discarded.
var errLineTooLong = errors.New("line too long")

// lineConn owns one established connection and its reader goroutine.
type lineConn struct {
	logger  pslog.Logger
	maxLine int

	connMu sync.Mutex // guards conn only, never held across I/O
	conn   net.Conn

	writeMu sync.Mutex // guards writer
	writer  *bufio.Writer

	closing   atomic.Bool
	connected atomic.Bool
	done      chan struct{}
}

func newLineConn(logger pslog.Logger) *lineConn {
	return &lineConn{logger: logger, maxLine: maxLineSize, done: make(chan struct{})}
}

// start binds the connection and launches the reader loop.
func (c *lineConn) start(conn net.Conn, handler FrameHandler) {
	c.writeMu.Lock()
	c.writer = bufio.NewWriter(conn)
	c.writeMu.Unlock()
	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()
	c.connected.Store(true)

	go c.readLoop(conn, handler)
}

// readLoop reads newline-terminated frames until the stream ends. It never
// takes the writer lock.
func (c *lineConn) readLoop(conn net.Conn, handler FrameHandler) {
	defer close(c.done)

	reader := bufio.NewReaderSize(conn, 64*1024)
	var err error
	for {
		var line string
		line, err = c.readLine(reader)
		if errors.Is(err, errLineTooLong) {
			c.logger.Warn("pydevd.frame.too_long", "limit", c.maxLine)
			continue
		}
		if err != nil {
			break
		}
		if line == "" {
			continue
		}
		frame, derr := protocol.Decode(line)
		if derr != nil {
			c.logger.Warn("pydevd.frame.malformed", "err", derr)
			continue
		}
		c.logger.Trace("pydevd.frame.recv", "seq", frame.Seq, "code", frame.Code.String())
		handler.ProcessFrame(frame)
	}

	c.connected.Store(false)
	if c.closing.Load() {
		err = nil
	}
	if err != nil {
		c.logger.Info("pydevd.connection.lost", "err", err)
	}
	handler.ConnectionClosed(err)
}

// readLine returns the next line without its terminator. A line longer than
// maxLine is consumed up to its newline and reported as errLineTooLong. A
// final line without a newline is returned before io.EOF.
func (c *lineConn) readLine(r *bufio.Reader) (string, error) {
	var buf []byte
	tooLong := false
	for {
		chunk, err := r.ReadSlice('\n')
		if !tooLong {
			if len(buf)+len(chunk) > c.maxLine+1 {
				tooLong = true
				buf = nil
			} else {
				buf = append(buf, chunk...)
			}
		}
		switch {
		case err == nil:
			if tooLong {
				return "", errLineTooLong
			}
			return strings.TrimSuffix(string(buf[:len(buf)-1]), "\r"), nil
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case errors.Is(err, io.EOF) && len(buf) > 0 && !tooLong:
			return strings.TrimSuffix(string(buf), "\r"), nil
		default:
			return "", err
		}
	}
}

func (c *lineConn) send(frame protocol.Frame) error {
	if !c.connected.Load() {
		return dbgerrors.ConnectionFailed("", net.ErrClosed)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.writer == nil {
		return dbgerrors.ConnectionFailed("", net.ErrClosed)
	}
	if _, err := c.writer.WriteString(frame.Encode()); err != nil {
		return dbgerrors.ConnectionFailed("", fmt.Errorf("write frame: %w", err))
	}
	if err := c.writer.WriteByte('\n'); err != nil {
		return dbgerrors.ConnectionFailed("", fmt.Errorf("write frame: %w", err))
	}
	if err := c.writer.Flush(); err != nil {
		return dbgerrors.ConnectionFailed("", fmt.Errorf("flush frame: %w", err))
	}
	c.logger.Trace("pydevd.frame.sent", "seq", frame.Seq, "code", frame.Code.String())
	return nil
}

// disconnect closes the socket without waiting for a writer, which unblocks
// a Send stuck on a peer that stopped reading.
func (c *lineConn) disconnect() {
	c.closing.Store(true)
	c.connMu.Lock()
	conn := c.conn
	c.connMu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
}

// wait blocks until the reader loop has exited, or the timeout elapses.
func (c *lineConn) wait(timeout time.Duration) {
	c.connMu.Lock()
	started := c.conn != nil
	c.connMu.Unlock()
	if !started {
		return
	}
	select {
	case <-c.done:
	case <-time.After(timeout):
	}
}

// ClientTransport connects out to an interpreter that is listening.
type ClientTransport struct {
	address    string
	retries    int
	retryDelay time.Duration
	dialer     net.Dialer

	*lineConn
}

// NewClientTransport creates an outbound transport. retries is the number of
// extra dial attempts after the first one fails.
func NewClientTransport(ctx context.Context, address string, retries int, retryDelay time.Duration) *ClientTransport {
	if retries < 0 {
		retries = 0
	}
	if retryDelay <= 0 {
		retryDelay = 100 * time.Millisecond
	}
	return &ClientTransport{
		address:    address,
		retries:    retries,
		retryDelay: retryDelay,
		lineConn:   newLineConn(pslog.Ctx(ctx).With("transport", "client", "address", address)),
	}
}

// WaitForConnect dials the interpreter with bounded retries.
func (t *ClientTransport) WaitForConnect(ctx context.Context, handler FrameHandler) error {
	var lastErr error
	for attempt := 0; attempt <= t.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return dbgerrors.ConnectionFailed(t.address, ctx.Err())
			case <-time.After(t.retryDelay):
			}
		}
		conn, err := t.dialer.DialContext(ctx, "tcp", t.address)
		if err == nil {
			t.logger.Debug("pydevd.connect.ok", "attempt", attempt+1)
			t.start(conn, handler)
			return nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	return dbgerrors.ConnectionFailed(t.address, fmt.Errorf("after %d attempts: %w", t.retries+1, lastErr))
}

func (t *ClientTransport) Send(frame protocol.Frame) error { return t.send(frame) }

func (t *ClientTransport) IsConnected() bool { return t.connected.Load() }

func (t *ClientTransport) Disconnect() { t.disconnect() }

func (t *ClientTransport) Close() error {
	t.disconnect()
	t.wait(time.Second)
	return nil
}

func (t *ClientTransport) Address() string { return t.address }

// ServerTransport accepts exactly one interpreter connection on a listener it owns.
type ServerTransport struct {
	listener      net.Listener
	acceptTimeout time.Duration

	*lineConn
}

// NewServerTransport creates an inbound transport on an already bound listener.
func NewServerTransport(ctx context.Context, listener net.Listener, acceptTimeout time.Duration) *ServerTransport {
	return &ServerTransport{
		listener:      listener,
		acceptTimeout: acceptTimeout,
		lineConn:      newLineConn(pslog.Ctx(ctx).With("transport", "server", "address", listener.Addr().String())),
	}
}

// Listen binds a loopback listener on an ephemeral port and wraps it in a ServerTransport.
func Listen(ctx context.Context, acceptTimeout time.Duration) (*ServerTransport, error) {
	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", "127.0.0.1:0")
	if err != nil {
		return nil, dbgerrors.ConnectionFailed("127.0.0.1:0", err)
	}
	return NewServerTransport(ctx, listener, acceptTimeout), nil
}

// Port returns the TCP port the transport is listening on.
func (t *ServerTransport) Port() int {
	if addr, ok := t.listener.Addr().(*net.TCPAddr); ok {
		return addr.Port
	}
	return 0
}

type acceptResult struct {
	conn net.Conn
	err  error
}

// WaitForConnect waits for the interpreter to connect, bounded by the accept timeout.
func (t *ServerTransport) WaitForConnect(ctx context.Context, handler FrameHandler) error {
	if t.acceptTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.acceptTimeout)
		defer cancel()
	}

	results := make(chan acceptResult, 1)
	go func() {
		conn, err := t.listener.Accept()
		results <- acceptResult{conn, err}
	}()

	select {
	case res := <-results:
		if res.err != nil {
			return dbgerrors.ConnectionFailed(t.Address(), res.err)
		}
		t.logger.Debug("pydevd.accept.ok", "remote", res.conn.RemoteAddr().String())
		t.start(res.conn, handler)
		return nil
	case <-ctx.Done():
		// Unblock Accept; a connection that raced in is dropped.
		_ = t.listener.Close()
		if res := <-results; res.conn != nil {
			_ = res.conn.Close()
		}
		err := ctx.Err()
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("no connection within %s: %w", t.acceptTimeout, err)
		}
		return dbgerrors.ConnectionFailed(t.Address(), err)
	}
}

func (t *ServerTransport) Send(frame protocol.Frame) error { return t.send(frame) }

func (t *ServerTransport) IsConnected() bool { return t.connected.Load() }

func (t *ServerTransport) Disconnect() { t.disconnect() }

func (t *ServerTransport) Close() error {
	t.disconnect()
	err := t.listener.Close()
	t.wait(time.Second)
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

func (t *ServerTransport) Address() string { return t.listener.Addr().String() }
