package pydevd

import "github.com/ctagard/pydevd-mcp/internal/protocol"

// OutputKind tags console text with the stream it came from.
type OutputKind int

const (
	OutputStdout OutputKind = iota + 1
	OutputStderr
	// OutputSystem is text produced by the engine itself.
	OutputSystem
)

func (k OutputKind) String() string {
	switch k {
	case OutputStdout:
		return "stdout"
	case OutputStderr:
		return "stderr"
	default:
		return "system"
	}
}

func (k OutputKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Listener receives session events. Callbacks run on the reader goroutine and
// must not block on engine requests.
type Listener interface {
	// ThreadSuspended reports a stopped thread; focus is true when it becomes
	// the current position.
	ThreadSuspended(info ThreadInfo, focus bool)
	ThreadResumed(info ThreadInfo)
	ThreadKilled(threadID string)
	// ConsoleShown reports a thread stopped for an interactive console.
	ConsoleShown(info ThreadInfo)
	ConsoleOutput(kind OutputKind, text string)
	// InputRequested signals that the debuggee started (or stopped) waiting on stdin.
	InputRequested(waiting bool)
	SignatureRecorded(sig protocol.Signature)
	ConcurrencyEvent(ev protocol.ConcurrencyEvent)
	ProcessCreated()
	CommunicationError(err error)
	Detached()
}

// NopListener implements Listener with empty callbacks, for embedding.
type NopListener struct{}

func (NopListener) ThreadSuspended(ThreadInfo, bool)           {}
func (NopListener) ThreadResumed(ThreadInfo)                   {}
func (NopListener) ThreadKilled(string)                        {}
func (NopListener) ConsoleShown(ThreadInfo)                    {}
func (NopListener) ConsoleOutput(OutputKind, string)           {}
func (NopListener) InputRequested(bool)                        {}
func (NopListener) SignatureRecorded(protocol.Signature)       {}
func (NopListener) ConcurrencyEvent(protocol.ConcurrencyEvent) {}
func (NopListener) ProcessCreated()                            {}
func (NopListener) CommunicationError(error)                   {}
func (NopListener) Detached()                                  {}
