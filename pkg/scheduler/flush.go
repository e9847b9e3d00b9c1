package scheduler

import (
	"context"
	"fmt"

	"github.com/rrflink/sbcd/pkg/gcode"
)

// maxFlushPumps bounds how many extra transport round trips Flush will
// drive before giving up; a macro stuck waiting on the firmware
// forever would otherwise hang the whole channel indefinitely.
const maxFlushPumps = 200

// flushAdapter exposes Scheduler.Flush under the interpreter.Flusher
// interface, so every macro/job reader this scheduler opens can await
// completion of its previously emitted codes before re-seeking a loop.
type flushAdapter struct{ s *Scheduler }

func (a flushAdapter) Flush(ctx context.Context, channel gcode.Channel) error {
	return a.s.Flush(ctx, channel)
}

// SetPump installs the daemon's "drive one more transport round trip"
// callback (one Machine.Tick followed by one Scheduler.Tick). Flush
// uses it to make progress without spawning a goroutine per channel:
// the whole daemon stays single-threaded on its transport pump task.
func (s *Scheduler) SetPump(pump func(context.Context) error) {
	s.pump = pump
}

// Flush blocks the calling macro reader until every code it has
// already emitted on channel reaches Finished or Failed, driving
// additional transport round trips itself if none are in flight from
// the caller. This is what lets a `while` loop re-seek only once the
// firmware has actually caught up with its pending codes.
func (s *Scheduler) Flush(ctx context.Context, channel gcode.Channel) error {
	if s.isChannelIdle(channel) {
		return nil
	}
	if s.pump == nil {
		return fmt.Errorf("scheduler: Flush on channel %s with no pump configured", channel)
	}
	for i := 0; i < maxFlushPumps; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.pump(ctx); err != nil {
			return err
		}
		if s.isChannelIdle(channel) {
			return nil
		}
	}
	return fmt.Errorf("scheduler: Flush on channel %s did not converge after %d round trips", channel, maxFlushPumps)
}

func (s *Scheduler) isChannelIdle(channel gcode.Channel) bool {
	cs := s.state(channel)
	cs.dequeueFinished()
	for _, qc := range cs.queue {
		if qc.State != gcode.StateFinished && qc.State != gcode.StateFailed {
			return false
		}
	}
	return true
}
