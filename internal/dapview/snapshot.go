package dapview

import (
	"context"

	"github.com/google/go-dap"
	"pkt.systems/pslog"

	"github.com/ctagard/pydevd-mcp/internal/pydevd"
	"github.com/ctagard/pydevd-mcp/pkg/types"
)

// SnapshotOptions control how much state a snapshot fetches.
type SnapshotOptions struct {
	// Variables fetches the top frame's locals for every suspended thread.
	Variables bool
	// MaxFrames caps each stack; zero keeps all frames.
	MaxFrames int
}

// Snapshot collects threads, stacks and optionally top-frame variables of
// a session. Variable fetch failures are logged and leave that frame out.
func (h *Handles) Snapshot(ctx context.Context, session *pydevd.Session, opts SnapshotOptions) *types.DebugSnapshot {
	snap := &types.DebugSnapshot{
		SessionID: session.ID,
		Status:    session.Status(),
		Threads:   []dap.Thread{},
		Stacks:    map[int][]dap.StackFrame{},
	}
	engine := session.Engine()
	if engine == nil {
		return snap
	}

	if focused, ok := engine.FocusedThread(); ok {
		snap.FocusedThread = h.ThreadRef(focused.ID)
		snap.StopReason = StopReason(focused.StopReason)
	}

	for _, info := range engine.Threads() {
		thread := h.Thread(info)
		snap.Threads = append(snap.Threads, thread)
		if info.State != pydevd.StateSuspended {
			continue
		}

		frames := h.StackFrames(info)
		if opts.MaxFrames > 0 && len(frames) > opts.MaxFrames {
			frames = frames[:opts.MaxFrames]
		}
		snap.Stacks[thread.Id] = frames

		top, ok := info.TopFrame()
		if !opts.Variables || !ok {
			continue
		}
		table, err := engine.FrameVariables(ctx, info.ID, top.ID)
		if err != nil {
			pslog.Ctx(ctx).Warn("dapview.snapshot.variables_failed", "session", session.ID, "thread", info.ID, "err", err)
			continue
		}
		if snap.Variables == nil {
			snap.Variables = map[int][]dap.Variable{}
		}
		snap.Variables[frames[0].Id] = h.Variables(table, table.Children(pydevd.NoParent))
	}
	return snap
}
