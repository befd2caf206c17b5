package pydevd

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"pkt.systems/pslog"

	"github.com/ctagard/pydevd-mcp/internal/protocol"
	"github.com/ctagard/pydevd-mcp/internal/pydevd/pydevdtest"
)

const waitTimeout = pydevdtest.WaitTimeout

// event is one recorded listener callback.
type event struct {
	kind  string
	info  ThreadInfo
	focus bool
	id    string
	text  string
	err   error
}

// recorder is a Listener that queues every callback.
type recorder struct {
	events chan event
}

func newRecorder() *recorder {
	return &recorder{events: make(chan event, 256)}
}

func (r *recorder) ThreadSuspended(info ThreadInfo, focus bool) {
	r.events <- event{kind: "suspended", info: info, focus: focus, id: info.ID}
}
func (r *recorder) ThreadResumed(info ThreadInfo) {
	r.events <- event{kind: "resumed", info: info, id: info.ID}
}
func (r *recorder) ThreadKilled(id string) { r.events <- event{kind: "killed", id: id} }
func (r *recorder) ConsoleShown(info ThreadInfo) {
	r.events <- event{kind: "console", info: info, id: info.ID}
}
func (r *recorder) ConsoleOutput(kind OutputKind, text string) {
	r.events <- event{kind: "output:" + kind.String(), text: text}
}
func (r *recorder) InputRequested(waiting bool) {
	r.events <- event{kind: "input", focus: waiting}
}
func (r *recorder) SignatureRecorded(sig protocol.Signature) {
	r.events <- event{kind: "signature", text: sig.Name}
}
func (r *recorder) ConcurrencyEvent(ev protocol.ConcurrencyEvent) {
	r.events <- event{kind: "concurrency", id: ev.ThreadID, text: ev.Event}
}
func (r *recorder) ProcessCreated()              { r.events <- event{kind: "process"} }
func (r *recorder) CommunicationError(err error) { r.events <- event{kind: "error", err: err} }
func (r *recorder) Detached()                    { r.events <- event{kind: "detached"} }

// wait returns the next event of the given kind, skipping others.
func (r *recorder) wait(t *testing.T, kind string) event {
	t.Helper()
	deadline := time.After(waitTimeout)
	for {
		select {
		case ev := <-r.events:
			if ev.kind == kind {
				return ev
			}
		case <-deadline:
			require.FailNowf(t, "timed out", "waiting for %q event", kind)
			return event{}
		}
	}
}

// logCapture collects structured log lines.
type logCapture struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (c *logCapture) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.Write(p)
}

// messages returns the message of every captured entry.
func (c *logCapture) messages() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for _, line := range bytes.Split(c.buf.Bytes(), []byte{'\n'}) {
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		entry := map[string]any{}
		if err := json.Unmarshal(line, &entry); err != nil {
			continue
		}
		if msg, ok := entry["message"].(string); ok {
			out = append(out, msg)
		} else if msg, ok := entry["msg"].(string); ok {
			out = append(out, msg)
		}
	}
	return out
}

func testContext(t *testing.T) (context.Context, *logCapture) {
	t.Helper()
	capture := &logCapture{}
	logger := pslog.NewWithOptions(capture, pslog.Options{
		Mode:          pslog.ModeStructured,
		NoColor:       true,
		VerboseFields: true,
		MinLevel:      pslog.DebugLevel,
	})
	return pslog.ContextWithLogger(context.Background(), logger), capture
}

// connectEngine starts an engine in client mode against a fresh fake
// interpreter and completes the handshake.
func connectEngine(t *testing.T, opts EngineOptions) (*Engine, *pydevdtest.Interpreter, *recorder) {
	t.Helper()
	ctx, _ := testContext(t)
	fake := pydevdtest.New(t)

	engine := NewEngine(ctx, NewClientTransport(ctx, fake.Addr(), 0, 0), opts)
	rec := newRecorder()
	engine.AddListener(rec)

	version, err := engine.Connect(ctx)
	require.NoError(t, err)
	require.Equal(t, fake.Version, version)
	t.Cleanup(func() { _ = engine.Close() })
	return engine, fake, rec
}
