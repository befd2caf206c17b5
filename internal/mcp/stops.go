package mcp

import (
	"context"
	"sync"
	"time"

	"github.com/ctagard/pydevd-mcp/internal/pydevd"
)

// stopWatch lets a tool wait for the next thread stop after it resumes the
// program. Each stop closes the current generation channel.
type stopWatch struct {
	pydevd.NopListener

	mu   sync.Mutex
	gen  chan struct{}
	last pydevd.ThreadInfo
}

func newStopWatch() *stopWatch {
	return &stopWatch{gen: make(chan struct{})}
}

// next returns a channel closed by the first stop after the call. Take it
// before issuing the command whose stop is awaited.
func (w *stopWatch) next() <-chan struct{} {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.gen
}

func (w *stopWatch) lastStop() pydevd.ThreadInfo {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.last
}

func (w *stopWatch) ThreadSuspended(info pydevd.ThreadInfo, _ bool) { w.fire(info) }
func (w *stopWatch) ConsoleShown(info pydevd.ThreadInfo)            { w.fire(info) }

func (w *stopWatch) fire(info pydevd.ThreadInfo) {
	w.mu.Lock()
	w.last = info
	close(w.gen)
	w.gen = make(chan struct{})
	w.mu.Unlock()
}

type waitOutcome int

const (
	waitStopped waitOutcome = iota
	waitTimedOut
	waitDetached
)

// waitForStop blocks until stopped fires, the engine goes away, ctx ends or
// timeout elapses.
func waitForStop(ctx context.Context, engine *pydevd.Engine, stopped <-chan struct{}, timeout time.Duration) (waitOutcome, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-stopped:
		return waitStopped, nil
	case <-engine.Done():
		return waitDetached, nil
	case <-timer.C:
		return waitTimedOut, nil
	case <-ctx.Done():
		return waitTimedOut, ctx.Err()
	}
}
