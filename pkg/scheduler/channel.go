package scheduler

import (
	"github.com/rrflink/sbcd/pkg/gcode"
	"github.com/rrflink/sbcd/pkg/interpreter"
)

// channelState is the per-channel FIFO of queued codes plus the stack
// of macro readers currently open on that channel.
type channelState struct {
	queue      []*gcode.QueuedCode
	macroStack []*macroFrame
	locked     bool

	// reading guards against re-entering this channel's macro reader
	// while a ReadCode call further up the call stack is blocked in
	// Flush driving extra ticks, see Scheduler.Flush.
	reading bool
}

// headUnsent returns the first code in Queued state, or nil if the
// head of the queue is still Sent/AwaitingReply (in flight) or the
// queue is empty.
func (cs *channelState) headUnsent() *gcode.QueuedCode {
	if len(cs.queue) == 0 {
		return nil
	}
	if cs.queue[0].State == gcode.StateQueued {
		return cs.queue[0]
	}
	return nil
}

// dequeueFinished drops completed entries from the front of the queue.
func (cs *channelState) dequeueFinished() {
	for len(cs.queue) > 0 {
		st := cs.queue[0].State
		if st != gcode.StateFinished && st != gcode.StateFailed {
			break
		}
		cs.queue = cs.queue[1:]
	}
}

// macroFrame is one entry on a channel's macro stack: an open
// interpreter.Reader plus the underlying stream it was built on,
// closed together when the frame pops.
type macroFrame struct {
	reader        *interpreter.Reader
	stream        interpreter.ReadSeekCloser
	filename      string
	reportMissing bool
}

func (f *macroFrame) close() {
	f.reader.Close()
	f.stream.Close()
}
