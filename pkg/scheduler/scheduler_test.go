package scheduler

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/rrflink/sbcd/pkg/gcode"
	"github.com/rrflink/sbcd/pkg/interpreter"
	"github.com/rrflink/sbcd/pkg/protocol"
	"github.com/rrflink/sbcd/pkg/wire"
)

type trueEvaluator struct{}

func (trueEvaluator) Evaluate(code *gcode.Code, expectBool bool) (string, error) { return "true", nil }

type stringStream struct{ *strings.Reader }

func (stringStream) Close() error { return nil }

type fakeResolver struct{ body string }

func (r *fakeResolver) Open(channel gcode.Channel, filename string) (interpreter.ReadSeekCloser, error) {
	return stringStream{strings.NewReader(r.body)}, nil
}

type missingFileResolver struct{}

func (missingFileResolver) Open(channel gcode.Channel, filename string) (interpreter.ReadSeekCloser, error) {
	return nil, fmt.Errorf("macro file %s: %w", filename, os.ErrNotExist)
}

type logSink struct{ lines []string }

func (l *logSink) Log(sev Severity, text string) { l.lines = append(l.lines, text) }

func newTestScheduler() *Scheduler {
	return newTestSchedulerWithModel(nil)
}

func newTestSchedulerWithModel(model ObjectModelSink) *Scheduler {
	tr := wire.NewLoopbackTransceiver(512, func(hostTx []byte) []byte {
		reply := make([]byte, 512)
		h := &wire.TransferHeader{FormatCode: wire.FormatFirmwareStandalone, ProtocolVersion: wire.CurrentProtocolVersion}
		copy(reply, h.Encode())
		return reply
	})
	link := wire.NewLink(tr, wire.MinimumSupportedProtocolVersion, wire.CurrentProtocolVersion, 3)
	machine := protocol.NewMachine(link, &noopHandler{})
	return New(machine, nil, nil, model, nil, trueEvaluator{}, nil)
}

type fakeModelSink struct {
	objectModel map[uint8][]byte
	heightMap   []byte
}

func (f *fakeModelSink) ApplyObjectModel(module uint8, json []byte) error {
	if f.objectModel == nil {
		f.objectModel = map[uint8][]byte{}
	}
	f.objectModel[module] = json
	return nil
}

func (f *fakeModelSink) ApplyHeightMap(data []byte) error {
	f.heightMap = data
	return nil
}

type noopHandler struct{}

func (noopHandler) OnReportState(uint32)                             {}
func (noopHandler) OnObjectModel(uint8, []byte)                      {}
func (noopHandler) OnCodeReply(protocol.ReplyFlags, protocol.ChannelMask, string) {}
func (noopHandler) OnExecuteMacro(uint8, string, bool)               {}
func (noopHandler) OnAbortFile(uint8)                                {}
func (noopHandler) OnStackEvent(uint8, uint8, uint32, float64)       {}
func (noopHandler) OnPrintPaused(int64, protocol.PauseReason)        {}
func (noopHandler) OnHeightMap([]byte)                               {}
func (noopHandler) OnLocked(uint8)                                   {}
func (noopHandler) OnIAPSegment(uint32, bool)                        {}
func (noopHandler) OnVariableResult(string, string, string)          {}
func (noopHandler) OnEvaluationResult(string, string)                {}

func TestScheduler_ExecuteMacroPullsCode(t *testing.T) {
	s := newTestScheduler()
	s.resolver = &fakeResolver{body: "G28\n"}

	s.OnExecuteMacro(uint8(gcode.ChannelSBC), "homeall.g", false)

	cs := s.state(gcode.ChannelSBC)
	if len(cs.macroStack) != 1 {
		t.Fatalf("expected one macro frame, got %d", len(cs.macroStack))
	}

	code, err := s.pullFromMacroStack(context.Background(), gcode.ChannelSBC, cs)
	if err != nil {
		t.Fatalf("pullFromMacroStack: %v", err)
	}
	if code == nil || code.Type != gcode.TypeG || code.Major != 28 {
		t.Fatalf("unexpected code: %v", code)
	}
}

func TestScheduler_CodeReplyRoutesToWaitingCode(t *testing.T) {
	s := newTestScheduler()
	code := gcode.NewCode(gcode.ChannelHTTP)
	code.Type = gcode.TypeM
	code.Major = 115
	s.Submit(code)

	cs := s.state(gcode.ChannelHTTP)
	cs.queue[0].State = gcode.StateSent

	mask := protocol.ChannelMask(0).Set(int(gcode.ChannelHTTP))
	s.OnCodeReply(protocol.ReplyFlagTerminator, mask, "FIRMWARE_NAME: RepRapFirmware")

	select {
	case res := <-code.Completion:
		if res.Reply != "FIRMWARE_NAME: RepRapFirmware" {
			t.Fatalf("unexpected reply: %q", res.Reply)
		}
	default:
		t.Fatal("expected completion to be delivered")
	}
}

func TestScheduler_CodeReplyFallsThroughToLog(t *testing.T) {
	s := newTestScheduler()
	log := &logSink{}
	s.msgLog = log

	s.OnCodeReply(protocol.ReplyFlagError, 0, "stack fault")

	if len(log.lines) != 1 || log.lines[0] != "stack fault" {
		t.Fatalf("unexpected log lines: %v", log.lines)
	}
}

func TestScheduler_AbortFileClearsMacroStack(t *testing.T) {
	s := newTestScheduler()
	s.resolver = &fakeResolver{body: "G1 X1\n"}
	s.OnExecuteMacro(uint8(gcode.ChannelFile), "print.gcode", false)

	s.OnAbortFile(uint8(gcode.ChannelFile))

	if len(s.state(gcode.ChannelFile).macroStack) != 0 {
		t.Fatal("expected macro stack to be cleared")
	}
}

func TestScheduler_ExecuteMacroLocksChannelUntilLockedReply(t *testing.T) {
	s := newTestScheduler()
	s.resolver = &fakeResolver{body: "G28\n"}

	s.OnExecuteMacro(uint8(gcode.ChannelSBC), "homeall.g", false)

	cs := s.state(gcode.ChannelSBC)
	if !cs.locked {
		t.Fatal("expected macro stack push to lock the channel")
	}

	s.OnLocked(uint8(gcode.ChannelSBC))
	if cs.locked {
		t.Fatal("expected OnLocked to release the channel")
	}
}

func TestScheduler_ExecuteMacroOnMissingFileReportsErrorAndCompletesMacro(t *testing.T) {
	s := newTestScheduler()
	s.resolver = missingFileResolver{}
	log := &logSink{}
	s.msgLog = log

	s.OnExecuteMacro(uint8(gcode.ChannelSBC), "homeall.g", true)

	cs := s.state(gcode.ChannelSBC)
	if len(cs.macroStack) != 0 {
		t.Fatalf("expected no macro frame pushed, got %d", len(cs.macroStack))
	}
	if cs.locked {
		t.Fatal("a failed macro resolution must not leave the channel locked")
	}
	if len(log.lines) != 1 {
		t.Fatalf("expected exactly one log error, got %v", log.lines)
	}
}

func TestScheduler_ExecuteMacroOnMissingFileWithoutReportMissingStaysQuiet(t *testing.T) {
	s := newTestScheduler()
	s.resolver = missingFileResolver{}
	log := &logSink{}
	s.msgLog = log

	s.OnExecuteMacro(uint8(gcode.ChannelSBC), "homeall.g", false)

	if len(log.lines) != 0 {
		t.Fatalf("expected no log lines when reportMissing is false, got %v", log.lines)
	}
}

func TestScheduler_OnHeightMapStoresDataInModel(t *testing.T) {
	model := &fakeModelSink{}
	s := newTestSchedulerWithModel(model)

	s.OnHeightMap([]byte("RepRapFirmware height map file v2\n"))

	if string(model.heightMap) != "RepRapFirmware height map file v2\n" {
		t.Fatalf("unexpected stored height map: %q", model.heightMap)
	}
}

func TestScheduler_AbortFileReleasesLock(t *testing.T) {
	s := newTestScheduler()
	s.resolver = &fakeResolver{body: "G1 X1\n"}
	s.OnExecuteMacro(uint8(gcode.ChannelFile), "print.gcode", false)

	s.OnAbortFile(uint8(gcode.ChannelFile))

	if s.state(gcode.ChannelFile).locked {
		t.Fatal("expected abort to release the channel lock")
	}
}
