package pydevd

import (
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"time"

	"pkt.systems/pslog"

	dbgerrors "github.com/ctagard/pydevd-mcp/internal/errors"
	"github.com/ctagard/pydevd-mcp/internal/protocol"
)

// DefaultResponseTimeout bounds the wait for a single reply.
const DefaultResponseTimeout = 60 * time.Second

// EngineOptions tunes an Engine. Zero values select the defaults.
type EngineOptions struct {
	ResponseTimeout time.Duration
	OutputLines     int
}

// Engine is one debugging session over one connection. It correlates
// requests with replies and routes interpreter events to listeners.
type Engine struct {
	transport       Transport
	logger          pslog.Logger
	responseTimeout time.Duration

	seqMu sync.Mutex
	seq   int

	slotsMu sync.Mutex
	slots   map[int]chan protocol.Frame

	closed    chan struct{}
	closeOnce sync.Once
	closeErr  error

	listenersMu sync.RWMutex
	listeners   []Listener

	threads     threadRegistry
	tempVars    *tempVarRegistry
	breakpoints *breakpointRegistry
	output      *OutputBuffer

	valuesMu sync.Mutex
	values   map[string]map[string]*ValueTable // thread -> frame -> table

	versionMu          sync.Mutex
	interpreterVersion string
}

// NewEngine creates an engine over transport. The logger is taken from ctx.
func NewEngine(ctx context.Context, transport Transport, opts EngineOptions) *Engine {
	if opts.ResponseTimeout <= 0 {
		opts.ResponseTimeout = DefaultResponseTimeout
	}
	return &Engine{
		transport:       transport,
		logger:          pslog.Ctx(ctx).With("remote", transport.Address()),
		responseTimeout: opts.ResponseTimeout,
		seq:             1,
		slots:           make(map[int]chan protocol.Frame),
		closed:          make(chan struct{}),
		tempVars:        newTempVarRegistry(),
		breakpoints:     newBreakpointRegistry(),
		output:          NewOutputBuffer(opts.OutputLines),
		values:          make(map[string]map[string]*ValueTable),
	}
}

// AddListener registers a listener for session events.
func (e *Engine) AddListener(l Listener) {
	e.listenersMu.Lock()
	e.listeners = append(e.listeners, l)
	e.listenersMu.Unlock()
}

func (e *Engine) notify(fn func(Listener)) {
	e.listenersMu.RLock()
	listeners := make([]Listener, len(e.listeners))
	copy(listeners, e.listeners)
	e.listenersMu.RUnlock()

	for _, l := range listeners {
		fn(l)
	}
}

// Connect waits for the transport and performs the version handshake, which
// must complete before any other command is issued.
func (e *Engine) Connect(ctx context.Context) (string, error) {
	if err := e.transport.WaitForConnect(ctx, e); err != nil {
		return "", err
	}
	version, err := e.Version(ctx)
	if err != nil {
		return "", err
	}
	e.logger.Info("pydevd.handshake.ok", "version", version)
	return version, nil
}

// InterpreterVersion returns the version reported in the handshake.
func (e *Engine) InterpreterVersion() string {
	e.versionMu.Lock()
	defer e.versionMu.Unlock()
	return e.interpreterVersion
}

// NextSeq allocates a request sequence number. Requests use odd numbers only.
func (e *Engine) NextSeq() int {
	e.seqMu.Lock()
	defer e.seqMu.Unlock()
	seq := e.seq
	e.seq += 2
	return seq
}

// IsConnected reports whether the session still has a live connection.
func (e *Engine) IsConnected() bool {
	select {
	case <-e.closed:
		return false
	default:
	}
	return e.transport.IsConnected()
}

// Done is closed once the session has lost its connection.
func (e *Engine) Done() <-chan struct{} {
	return e.closed
}

// Output returns the console history of the session.
func (e *Engine) Output() *OutputBuffer {
	return e.output
}

// Execute sends cmd without waiting for its reply. Failures are logged and
// never returned. Resuming or stepping first deletes the thread's temp variables.
func (e *Engine) Execute(cmd Command) {
	switch c := cmd.(type) {
	case Resume:
		e.purgeTempVars(c.ThreadID)
	case SmartStepInto:
		e.purgeTempVars(c.ThreadID)
	}

	if !cmd.ExpectsResponse() {
		if _, err := e.send(cmd); err != nil {
			e.logger.Warn("pydevd.execute.failed", "code", cmd.Code().String(), "err", err)
		}
		return
	}

	seq, slot, err := e.begin(cmd)
	if err != nil {
		e.logger.Warn("pydevd.execute.failed", "code", cmd.Code().String(), "err", err)
		return
	}
	go func() {
		if _, err := e.await(context.Background(), cmd, seq, slot); err != nil {
			e.logger.Warn("pydevd.execute.failed", "seq", seq, "code", cmd.Code().String(), "err", err)
		}
	}()
}

// Request sends cmd and blocks until its reply, the context ends, the
// response timeout elapses or the connection drops. Commands that expect no
// reply return an empty frame once sent.
func (e *Engine) Request(ctx context.Context, cmd Command) (protocol.Frame, error) {
	if !cmd.ExpectsResponse() {
		_, err := e.send(cmd)
		return protocol.Frame{}, err
	}
	seq, slot, err := e.begin(cmd)
	if err != nil {
		return protocol.Frame{}, err
	}
	return e.await(ctx, cmd, seq, slot)
}

// request runs cmd and converts its reply.
func request[T any](ctx context.Context, e *Engine, cmd Command, parse func(protocol.Frame) (T, error)) (T, error) {
	var zero T
	frame, err := e.Request(ctx, cmd)
	if err != nil {
		return zero, err
	}
	return parse(frame)
}

func (e *Engine) connectionError() error {
	cause := e.closeErr
	if cause == nil {
		cause = net.ErrClosed
	}
	return dbgerrors.ConnectionFailed("", cause)
}

// send writes cmd under a fresh sequence number without registering a slot.
func (e *Engine) send(cmd Command) (int, error) {
	select {
	case <-e.closed:
		return 0, e.connectionError()
	default:
	}
	seq := e.NextSeq()
	return seq, e.transport.Send(protocol.Frame{Seq: seq, Code: cmd.Code(), Fields: cmd.Fields()})
}

// begin registers the response slot before the frame leaves, so a fast reply
// always finds it.
func (e *Engine) begin(cmd Command) (int, chan protocol.Frame, error) {
	select {
	case <-e.closed:
		return 0, nil, e.connectionError()
	default:
	}

	seq := e.NextSeq()
	slot := make(chan protocol.Frame, 1)
	e.slotsMu.Lock()
	e.slots[seq] = slot
	e.slotsMu.Unlock()

	if err := e.transport.Send(protocol.Frame{Seq: seq, Code: cmd.Code(), Fields: cmd.Fields()}); err != nil {
		e.removeSlot(seq)
		return 0, nil, err
	}
	return seq, slot, nil
}

func (e *Engine) await(ctx context.Context, cmd Command, seq int, slot chan protocol.Frame) (protocol.Frame, error) {
	defer e.removeSlot(seq)

	timer := time.NewTimer(e.responseTimeout)
	defer timer.Stop()

	select {
	case frame := <-slot:
		return e.reply(cmd, frame)
	case <-ctx.Done():
		return protocol.Frame{}, ctx.Err()
	case <-timer.C:
		e.logger.Warn("pydevd.request.timeout", "seq", seq, "code", cmd.Code().String())
		return protocol.Frame{}, dbgerrors.RequestTimeout(cmd.Code().String(), seq, e.responseTimeout)
	case <-e.closed:
		// A reply that raced the disconnect still wins.
		select {
		case frame := <-slot:
			return e.reply(cmd, frame)
		default:
		}
		return protocol.Frame{}, e.connectionError()
	}
}

func (e *Engine) reply(cmd Command, frame protocol.Frame) (protocol.Frame, error) {
	if frame.Code == protocol.CmdError {
		return frame, dbgerrors.RemoteFault(cmd.Code().String(), strings.Join(frame.Fields, " "))
	}
	return frame, nil
}

func (e *Engine) removeSlot(seq int) {
	e.slotsMu.Lock()
	delete(e.slots, seq)
	e.slotsMu.Unlock()
}

// placeResponse delivers a reply to its waiter. Replies nobody waits for any
// more (timed out, fire-and-forget) are dropped.
func (e *Engine) placeResponse(frame protocol.Frame) {
	e.slotsMu.Lock()
	slot, ok := e.slots[frame.Seq]
	if ok {
		select {
		case slot <- frame:
		default:
		}
	}
	e.slotsMu.Unlock()

	if !ok {
		e.logger.Trace("pydevd.reply.unclaimed", "seq", frame.Seq, "code", frame.Code.String())
	}
}

// ProcessFrame routes one incoming frame by code class. It runs on the
// transport's reader goroutine.
func (e *Engine) ProcessFrame(frame protocol.Frame) {
	switch frame.Code.Class() {
	case protocol.ClassThread:
		e.handleThreadEvent(frame)
	case protocol.ClassConsole:
		kind := OutputStdout
		if frame.Field(0) == "2" {
			kind = OutputStderr
		}
		text := frame.Field(1)
		e.output.Append(kind, text)
		e.notify(func(l Listener) { l.ConsoleOutput(kind, text) })
	case protocol.ClassSignature:
		sig, err := protocol.ParseSignature(frame.Payload())
		if err != nil {
			e.logger.Warn("pydevd.signature.malformed", "err", err)
			return
		}
		e.notify(func(l Listener) { l.SignatureRecorded(*sig) })
	case protocol.ClassConcurrency:
		events, err := protocol.ParseConcurrencyEvents(frame.Payload())
		if err != nil {
			e.logger.Warn("pydevd.concurrency.malformed", "err", err)
			return
		}
		for _, ev := range events {
			e.notify(func(l Listener) { l.ConcurrencyEvent(ev) })
		}
	case protocol.ClassInput:
		waiting := strings.EqualFold(frame.Field(0), "true") || frame.Field(0) == "1"
		e.notify(func(l Listener) { l.InputRequested(waiting) })
	case protocol.ClassProcess:
		e.notify(func(l Listener) { l.ProcessCreated() })
	default:
		if frame.Code == protocol.CmdListThreads {
			e.registerListedThreads(frame)
		}
		e.placeResponse(frame)
	}
}

// ConnectionClosed is called by the transport when its reader loop ends.
func (e *Engine) ConnectionClosed(err error) {
	e.shutdown(err)
}

// shutdown wakes every waiter at once and notifies listeners.
func (e *Engine) shutdown(err error) {
	e.closeOnce.Do(func() {
		e.closeErr = err
		close(e.closed)

		if err != nil && !errors.Is(err, net.ErrClosed) {
			e.logger.Warn("pydevd.session.communication_error", "err", err)
			e.notify(func(l Listener) { l.CommunicationError(err) })
		}
		e.logger.Info("pydevd.session.detached")
		e.notify(func(l Listener) { l.Detached() })
	})
}

// Disconnect drops the connection. Outstanding requests fail immediately,
// even when a send is blocked on a peer that stopped reading.
func (e *Engine) Disconnect() {
	e.shutdown(nil)
	e.transport.Disconnect()
}

// Close disconnects and releases the transport.
func (e *Engine) Close() error {
	e.Disconnect()
	return e.transport.Close()
}

// purgeTempVars deletes the temp variables of a thread, or of every thread
// for AllThreads. The deletes are sent ahead of the resume on the same stream.
func (e *Engine) purgeTempVars(threadID string) {
	ids := []string{threadID}
	if threadID == AllThreads {
		ids = e.tempVars.threadIDs()
	}
	for _, id := range ids {
		for frameID, names := range e.tempVars.take(id) {
			cmd := Evaluate{ThreadID: id, FrameID: frameID, Expression: deleteStatement(names), Execute: true}
			if _, err := e.send(cmd); err != nil {
				e.logger.Warn("pydevd.tempvars.purge_failed", "thread", id, "frame", frameID, "err", err)
				continue
			}
			e.logger.Debug("pydevd.tempvars.purged", "thread", id, "frame", frameID, "count", len(names))
		}
	}
}

func (e *Engine) discardValues(threadID string) {
	e.valuesMu.Lock()
	delete(e.values, threadID)
	e.valuesMu.Unlock()
}
