// Package scheduler implements the channel scheduler: per-channel
// code queues and macro stacks, busy-mask flow control against the
// firmware, reply routing, and cross-channel resource locks.
package scheduler

import (
	"context"
	"fmt"

	"github.com/rrflink/sbcd/internal/logging"
	"github.com/rrflink/sbcd/pkg/gcode"
	"github.com/rrflink/sbcd/pkg/interpreter"
	"github.com/rrflink/sbcd/pkg/protocol"
)

// Severity classifies a message routed into the object-model log.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityError
)

// MessageLog receives text that CodeReply couldn't address to a
// waiting code, and macro/abort diagnostics.
type MessageLog interface {
	Log(severity Severity, text string)
}

// ObjectModelSink applies a firmware-reported object-model fragment or
// height map; implemented by the model store.
type ObjectModelSink interface {
	ApplyObjectModel(module uint8, json []byte) error
	ApplyHeightMap(data []byte) error
}

// MacroResolver turns an ExecuteMacro filename into an openable,
// seekable stream, the way the daemon resolves sys/macro directories.
type MacroResolver interface {
	Open(channel gcode.Channel, filename string) (interpreter.ReadSeekCloser, error)
}

// VariableScope clears locals declared inside a popped if/while block
// or a completed macro file, forwarded to every interpreter.Reader.
type VariableScope = interpreter.VariableScope

// Evaluator resolves if/while/abort expressions for every macro and
// job-file reader this scheduler opens.
type Evaluator = interpreter.Evaluator

const numChannels = 14 // len(gcode.AllChannels())

// Scheduler is the channel scheduler. It implements
// protocol.Handler directly: Machine dispatches firmware-originated
// requests straight into it.
type Scheduler struct {
	machine   *protocol.Machine
	log       *logging.Logger
	msgLog    MessageLog
	model     ObjectModelSink
	resolver  MacroResolver
	evaluator Evaluator
	scope     VariableScope

	busy     protocol.ChannelMask
	channels [numChannels]*channelState
	module   uint8 // next object-model module to poll, round-robin

	pump      func(context.Context) error
	intercept *InterceptorRegistry

	evalSink EvaluationSink
}

// EvaluationSink receives the firmware's answer to an
// EvaluateExpression request, correlated by whichever Evaluator issued
// it. Only one expression is ever outstanding at a time, since the
// interpreter blocks on Evaluate before emitting anything else.
type EvaluationSink interface {
	DeliverEvaluation(result, errText string)
}

// SetInterceptorRegistry installs the registry pkg/ipc's Intercept-mode
// connections register against. Nil (the default) means no code is
// ever offered for interception.
func (s *Scheduler) SetInterceptorRegistry(r *InterceptorRegistry) {
	s.intercept = r
}

// SetEvaluationSink installs the Evaluator's result channel. Nil (the
// default) means evaluation replies are only logged, never delivered.
func (s *Scheduler) SetEvaluationSink(sink EvaluationSink) {
	s.evalSink = sink
}

// New constructs a Scheduler bound to machine. msgLog and model may be
// nil during tests that don't exercise those paths.
func New(machine *protocol.Machine, log *logging.Logger, msgLog MessageLog, model ObjectModelSink, resolver MacroResolver, evaluator Evaluator, scope VariableScope) *Scheduler {
	s := &Scheduler{
		machine:   machine,
		log:       log,
		msgLog:    msgLog,
		model:     model,
		resolver:  resolver,
		evaluator: evaluator,
		scope:     scope,
	}
	for i := range s.channels {
		s.channels[i] = &channelState{}
	}
	return s
}

func (s *Scheduler) state(ch gcode.Channel) *channelState {
	return s.channels[int(ch)]
}

// Submit enqueues code for execution on its channel and returns
// immediately; the caller awaits code.Completion for the result.
func (s *Scheduler) Submit(code *gcode.Code) {
	s.state(code.Channel).queue = append(s.state(code.Channel).queue, &gcode.QueuedCode{Code: code})
}

// Tick runs one pass of the operation cycle: for every channel not
// currently busy or locked, try to send its next code (pulling from
// the macro stack if the user queue is empty), then enqueue the
// standing state/model poll.
func (s *Scheduler) Tick(ctx context.Context) error {
	for _, ch := range gcode.AllChannels() {
		if s.busy.Has(int(ch)) {
			continue
		}
		cs := s.state(ch)
		if cs.locked {
			continue
		}
		if err := s.advanceChannel(ctx, ch, cs); err != nil {
			if s.log != nil {
				s.log.Warn("scheduler: channel advance failed", logging.F("channel", ch.String()), logging.F("err", err.Error()))
			}
		}
	}

	if _, err := s.machine.WriteGetState(); err != nil {
		return fmt.Errorf("scheduler: WriteGetState: %w", err)
	}
	if _, err := s.machine.WriteGetObjectModel(s.module); err != nil {
		return fmt.Errorf("scheduler: WriteGetObjectModel: %w", err)
	}
	s.module++
	return nil
}

func (s *Scheduler) advanceChannel(ctx context.Context, ch gcode.Channel, cs *channelState) error {
	qc := cs.headUnsent()
	if qc == nil {
		code, err := s.pullFromMacroStack(ctx, ch, cs)
		if err != nil {
			return err
		}
		if code == nil {
			return nil
		}
		qc = &gcode.QueuedCode{Code: code, IsSystem: code.Origin == gcode.OriginMacro}
		cs.queue = append(cs.queue, qc)
	}

	if s.intercept != nil {
		verdict, reply, err := s.intercept.Offer(ctx, qc.Code, InterceptPre)
		if err != nil {
			return err
		}
		switch verdict {
		case InterceptResolved:
			qc.AppendReply(reply)
			qc.Finish()
			cs.dequeueFinished()
			return nil
		case InterceptCancelled:
			qc.Fail(fmt.Errorf("scheduler: code cancelled by interceptor"))
			cs.dequeueFinished()
			return nil
		}
	}

	payload := protocol.CodePayload{
		Channel:    uint8(ch),
		Type:       uint8(qc.Code.Type),
		Major:      int32(qc.Code.Major),
		Minor:      int32(qc.Code.Minor),
		HasMajor:   qc.Code.HasMajor,
		Keyword:    uint8(qc.Code.Keyword),
		KeywordArg: qc.Code.KeywordArg,
		Flags:      uint32(qc.Code.Flags),
	}
	for _, p := range qc.Code.Parameters {
		payload.Params = append(payload.Params, protocol.CodeParamPayload{Letter: p.Letter, Value: p.Value})
	}

	id, err := s.machine.WriteCode(payload)
	if err != nil {
		// Soft failure (outgoing buffer full): retry next tick.
		return nil
	}
	qc.RequestID = id
	qc.State = gcode.StateSent
	s.busy = s.busy.Set(int(ch))
	return nil
}

// pullFromMacroStack advances the topmost open macro reader on ch,
// popping exhausted readers and reporting MacroCompleted as each one
// finishes.
func (s *Scheduler) pullFromMacroStack(ctx context.Context, ch gcode.Channel, cs *channelState) (*gcode.Code, error) {
	if cs.reading {
		// A ReadCode call for this channel is already in progress
		// further up the call stack (inside a Flush-driven nested
		// tick); don't touch the reader concurrently.
		return nil, nil
	}
	cs.reading = true
	defer func() { cs.reading = false }()

	for len(cs.macroStack) > 0 {
		frame := cs.macroStack[len(cs.macroStack)-1]
		code, err := frame.reader.ReadCode(ctx)
		if err != nil {
			frame.close()
			cs.macroStack = cs.macroStack[:len(cs.macroStack)-1]
			if s.msgLog != nil {
				s.msgLog.Log(SeverityError, fmt.Sprintf("macro %s: %v", frame.filename, err))
			}
			if _, werr := s.machine.WriteMacroCompleted(uint8(ch), true); werr != nil {
				return nil, werr
			}
			continue
		}
		if code == nil {
			frame.close()
			cs.macroStack = cs.macroStack[:len(cs.macroStack)-1]
			if _, werr := s.machine.WriteMacroCompleted(uint8(ch), false); werr != nil {
				return nil, werr
			}
			continue
		}
		return code, nil
	}
	return nil, nil
}
