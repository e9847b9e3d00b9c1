package scheduler

import (
	"context"
	"fmt"

	"github.com/rrflink/sbcd/internal/logging"
	"github.com/rrflink/sbcd/pkg/gcode"
	"github.com/rrflink/sbcd/pkg/interpreter"
	"github.com/rrflink/sbcd/pkg/protocol"
)

// Scheduler implements protocol.Handler: Machine.Tick dispatches every
// firmware-originated request straight into these methods.
var _ protocol.Handler = (*Scheduler)(nil)

func (s *Scheduler) OnReportState(busyChannels uint32) {
	s.busy = protocol.ChannelMask(busyChannels)
}

func (s *Scheduler) OnObjectModel(module uint8, json []byte) {
	if s.model == nil {
		return
	}
	if err := s.model.ApplyObjectModel(module, json); err != nil && s.log != nil {
		s.log.Warn("scheduler: object model apply failed", logging.F("module", module), logging.F("err", err.Error()))
	}
}

// OnCodeReply routes a firmware reply fragment: addressed channels
// receive it on their in-flight code, unaddressed text falls through
// to the message log.
func (s *Scheduler) OnCodeReply(flags protocol.ReplyFlags, channels protocol.ChannelMask, text string) {
	matched := false
	for _, ch := range gcode.AllChannels() {
		if !channels.Has(int(ch)) {
			continue
		}
		matched = true
		cs := s.state(ch)
		if len(cs.queue) == 0 {
			continue
		}
		head := cs.queue[0]
		if head.State != gcode.StateSent && head.State != gcode.StateAwaitingReply {
			continue
		}
		head.AppendReply(text)
		if flags&protocol.ReplyFlagTerminator != 0 {
			if s.intercept != nil {
				if verdict, reply, err := s.intercept.Offer(context.Background(), head.Code, InterceptPost); err == nil && verdict == InterceptResolved {
					head.SetReply(reply)
				}
			}
			head.Finish()
			s.busy = s.busy.Clear(int(ch))
			cs.dequeueFinished()
		} else {
			head.State = gcode.StateAwaitingReply
		}
	}
	if matched {
		return
	}

	if s.msgLog == nil {
		return
	}
	severity := SeverityInfo
	switch {
	case flags&protocol.ReplyFlagError != 0:
		severity = SeverityError
	case flags&protocol.ReplyFlagWarning != 0:
		severity = SeverityWarning
	}
	s.msgLog.Log(severity, text)
}

// OnExecuteMacro resolves filename and pushes a new interpreter.Reader
// onto the channel's macro stack. Resolution failure reports
// MacroCompleted(error=true) so the firmware is never left waiting.
//
// Pushing a macro stack frame is one of the operations that needs the
// global machine lock: the channel stops being advanced (Tick skips it
// while cs.locked) until the firmware's Locked reply grants it back,
// which OnLocked clears.
func (s *Scheduler) OnExecuteMacro(channel uint8, filename string, reportMissing bool) {
	ch := gcode.Channel(channel)
	if s.resolver == nil {
		s.failMacro(ch, filename, reportMissing, fmt.Errorf("no macro resolver configured"))
		return
	}
	stream, err := s.resolver.Open(ch, filename)
	if err != nil {
		s.failMacro(ch, filename, reportMissing, err)
		return
	}
	reader := interpreter.NewReader(stream, ch, gcode.OriginMacro, s.evaluator, flushAdapter{s}, s.scope)
	cs := s.state(ch)
	cs.macroStack = append(cs.macroStack, &macroFrame{reader: reader, stream: stream, filename: filename, reportMissing: reportMissing})
	cs.locked = true
}

func (s *Scheduler) failMacro(ch gcode.Channel, filename string, reportMissing bool, err error) {
	if reportMissing && s.msgLog != nil {
		s.msgLog.Log(SeverityError, fmt.Sprintf("macro file %s not found: %v", filename, err))
	}
	if _, werr := s.machine.WriteMacroCompleted(uint8(ch), true); werr != nil && s.log != nil {
		s.log.Warn("scheduler: WriteMacroCompleted failed", logging.F("err", werr.Error()))
	}
}

// OnAbortFile empties the channel's macro stack and, for the File
// channel, completes any in-flight code with a synthesized
// paused/aborted reply.
func (s *Scheduler) OnAbortFile(channel uint8) {
	ch := gcode.Channel(channel)
	cs := s.state(ch)
	for _, f := range cs.macroStack {
		f.close()
	}
	cs.macroStack = nil
	cs.locked = false

	if ch != gcode.ChannelFile {
		return
	}
	for _, qc := range cs.queue {
		if qc.State == gcode.StateSent || qc.State == gcode.StateAwaitingReply {
			qc.AppendReply(fmt.Sprintf("paused/aborted at byte %d", qc.Code.Pos.Byte))
			qc.Finish()
		}
	}
	s.busy = s.busy.Clear(int(ch))
	cs.dequeueFinished()
}

func (s *Scheduler) OnStackEvent(channel uint8, depth uint8, flags uint32, feedrate float64) {
	// Stack-depth bookkeeping is informational for the SBC side; the
	// authoritative macro depth lives on this scheduler's own stack.
}

func (s *Scheduler) OnPrintPaused(filePosition int64, reason protocol.PauseReason) {
	if s.msgLog != nil {
		s.msgLog.Log(SeverityInfo, fmt.Sprintf("print paused at byte %d (reason %d)", filePosition, reason))
	}
}

// OnHeightMap stores the firmware's most recent mesh-compensation
// height map in the object model, under the same move.compensation
// namespace RepRapFirmware itself uses for compensation state.
func (s *Scheduler) OnHeightMap(data []byte) {
	if s.model == nil {
		return
	}
	if err := s.model.ApplyHeightMap(data); err != nil && s.log != nil {
		s.log.Warn("scheduler: height map apply failed", logging.F("err", err.Error()))
	}
}

// OnLocked releases the channel that was waiting on the global
// machine lock.
func (s *Scheduler) OnLocked(channel uint8) {
	s.state(gcode.Channel(channel)).locked = false
}

func (s *Scheduler) OnIAPSegment(offset uint32, final bool) {
	// IAP (firmware update) flow is driven by cmd/sbcctl, not the
	// steady-state scheduler; no-op here.
}

func (s *Scheduler) OnVariableResult(name, value, errText string) {
	if errText != "" && s.msgLog != nil {
		s.msgLog.Log(SeverityError, fmt.Sprintf("variable %s: %s", name, errText))
	}
}

func (s *Scheduler) OnEvaluationResult(result, errText string) {
	if errText != "" && s.msgLog != nil {
		s.msgLog.Log(SeverityError, fmt.Sprintf("evaluation failed: %s", errText))
	}
	if s.evalSink != nil {
		s.evalSink.DeliverEvaluation(result, errText)
	}
}

