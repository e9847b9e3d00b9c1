package protocol

import (
	"context"
	"testing"

	"github.com/rrflink/sbcd/pkg/wire"
)

type fakeHandler struct {
	replies []string
}

func (f *fakeHandler) OnReportState(uint32)                       {}
func (f *fakeHandler) OnObjectModel(uint8, []byte)                 {}
func (f *fakeHandler) OnCodeReply(flags ReplyFlags, ch ChannelMask, text string) {
	f.replies = append(f.replies, text)
}
func (f *fakeHandler) OnExecuteMacro(uint8, string, bool)     {}
func (f *fakeHandler) OnAbortFile(uint8)                     {}
func (f *fakeHandler) OnStackEvent(uint8, uint8, uint32, float64) {}
func (f *fakeHandler) OnPrintPaused(int64, PauseReason)       {}
func (f *fakeHandler) OnHeightMap([]byte)                     {}
func (f *fakeHandler) OnLocked(uint8)                         {}
func (f *fakeHandler) OnIAPSegment(uint32, bool)              {}
func (f *fakeHandler) OnVariableResult(string, string, string) {}
func (f *fakeHandler) OnEvaluationResult(string, string)       {}

func TestMachine_DispatchesCodeReply(t *testing.T) {
	payload, err := EncodePayload(CodeReplyPayload{
		Flags: uint32(ReplyFlagTerminator),
		Text:  "FIRMWARE_NAME: RepRapFirmware",
	})
	if err != nil {
		t.Fatal(err)
	}
	ph := wire.PacketHeader{Request: uint16(ReqCodeReply), Length: uint16(len(payload))}
	frame := append(ph.Encode(), payload...)
	aligned := wire.AlignedLength(len(frame))
	for len(frame) < aligned {
		frame = append(frame, 0)
	}

	tr := wire.NewLoopbackTransceiver(256, func(hostTx []byte) []byte {
		reply := make([]byte, 256)
		h := &wire.TransferHeader{
			FormatCode:      wire.FormatFirmwareStandalone,
			ProtocolVersion: wire.CurrentProtocolVersion,
			PayloadLength:   uint16(len(frame)),
			DataCRC:         wire.CalculateCRC(frame),
		}
		copy(reply, h.Encode())
		copy(reply[wire.TransferHeaderSize:], frame)
		return reply
	})

	link := wire.NewLink(tr, wire.MinimumSupportedProtocolVersion, wire.CurrentProtocolVersion, 3)
	handler := &fakeHandler{}
	m := NewMachine(link, handler)
	m.state = StateReady

	if err := m.Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if len(handler.replies) != 1 || handler.replies[0] != "FIRMWARE_NAME: RepRapFirmware" {
		t.Errorf("unexpected replies: %v", handler.replies)
	}
}
