package gcode

import "strings"

// QueueState is a QueuedCode's position in its lifecycle.
type QueueState int

const (
	StateQueued QueueState = iota
	StateSent
	StateAwaitingReply
	StateFinished
	StateFailed
)

func (s QueueState) String() string {
	switch s {
	case StateQueued:
		return "Queued"
	case StateSent:
		return "Sent"
	case StateAwaitingReply:
		return "AwaitingReply"
	case StateFinished:
		return "Finished"
	case StateFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// QueuedCode wraps a Code with the bookkeeping the scheduler needs to
// drive it through Queued -> Sent -> (AwaitingReply ->) Finished|Failed.
type QueuedCode struct {
	Code *Code

	State QueueState

	// IsSystem marks a code that originated from a firmware-requested
	// macro rather than an externally-awaited submission: its
	// completion is observed by the macro reader, not by an IPC client.
	IsSystem bool

	// RequestID is the wire packet id this code was last sent under,
	// used to match CodeReply fragments back to this code.
	RequestID uint16

	reply strings.Builder
	err   error
}

// AppendReply accumulates one CodeReply fragment.
func (q *QueuedCode) AppendReply(text string) {
	q.reply.WriteString(text)
}

// Reply returns the accumulated reply text so far.
func (q *QueuedCode) Reply() string {
	return q.reply.String()
}

// SetReply replaces the accumulated reply text outright, used by a
// Post-phase interceptor that rewrites a code's result before it
// reaches the original requester.
func (q *QueuedCode) SetReply(text string) {
	q.reply.Reset()
	q.reply.WriteString(text)
}

// Fail marks the code Failed with err and delivers the failure on its
// completion channel, whether or not it is a system code.
func (q *QueuedCode) Fail(err error) {
	q.State = StateFailed
	q.err = err
	q.deliver()
}

// Finish marks the code Finished and delivers its accumulated reply.
func (q *QueuedCode) Finish() {
	q.State = StateFinished
	q.deliver()
}

func (q *QueuedCode) deliver() {
	if q.Code.Completion == nil {
		return
	}
	select {
	case q.Code.Completion <- Result{Reply: q.reply.String(), Err: q.err}:
	default:
		// Already delivered (or nobody is listening); never block the
		// scheduler on a slow or absent consumer.
	}
}

// Err returns the error a Failed code completed with, if any.
func (q *QueuedCode) Err() error { return q.err }
