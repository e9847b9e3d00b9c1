package wire

import (
	"context"
	"testing"
)

func TestLink_WritePacket_Overflow(t *testing.T) {
	tr := NewLoopbackTransceiver(64, nil)
	link := NewLink(tr, MinimumSupportedProtocolVersion, CurrentProtocolVersion, 3)

	big := make([]byte, 100)
	if _, err := link.WritePacket(1, big); err != ErrOutgoingBufferFull {
		t.Fatalf("expected ErrOutgoingBufferFull, got %v", err)
	}
}

func TestLink_RoundTrip_SimplePacket(t *testing.T) {
	const size = 256
	var echoed []byte

	tr := NewLoopbackTransceiver(size, func(hostTx []byte) []byte {
		// Echo the host's payload back wrapped in a firmware-standalone
		// transfer header, simulating one CodeReply packet.
		hdr, err := DecodeTransferHeader(hostTx)
		if err != nil {
			t.Fatalf("host frame should be well-formed: %v", err)
		}
		echoed = append([]byte{}, hostTx[TransferHeaderSize:TransferHeaderSize+int(hdr.PayloadLength)]...)

		reply := make([]byte, size)
		replyHeader := &TransferHeader{
			FormatCode:      FormatFirmwareStandalone,
			ProtocolVersion: CurrentProtocolVersion,
			PayloadLength:   uint16(len(echoed)),
			DataCRC:         CalculateCRC(echoed),
		}
		copy(reply, replyHeader.Encode())
		copy(reply[TransferHeaderSize:], echoed)
		return reply
	})

	link := NewLink(tr, MinimumSupportedProtocolVersion, CurrentProtocolVersion, 3)
	if _, err := link.WritePacket(42, []byte("M115")); err != nil {
		t.Fatalf("WritePacket: %v", err)
	}

	if err := link.PerformFullTransfer(context.Background()); err != nil {
		t.Fatalf("PerformFullTransfer: %v", err)
	}

	pkt, ok := link.ReadPacket()
	if !ok {
		t.Fatal("expected one echoed packet")
	}
	if pkt.Header.Request != 42 || string(pkt.Payload) != "M115" {
		t.Errorf("unexpected echoed packet: %+v", pkt)
	}
	if _, ok := link.ReadPacket(); ok {
		t.Error("expected exactly one packet")
	}
}

func TestLink_DataCRCMismatch(t *testing.T) {
	const size = 64
	tr := NewLoopbackTransceiver(size, func(hostTx []byte) []byte {
		reply := make([]byte, size)
		h := &TransferHeader{
			FormatCode:      FormatFirmwareStandalone,
			ProtocolVersion: CurrentProtocolVersion,
			PayloadLength:   4,
			DataCRC:         0xFFFF, // deliberately wrong
		}
		copy(reply, h.Encode())
		copy(reply[TransferHeaderSize:], []byte{1, 2, 3, 4})
		return reply
	})

	link := NewLink(tr, MinimumSupportedProtocolVersion, CurrentProtocolVersion, 3)
	err := link.PerformFullTransfer(context.Background())
	if err == nil {
		t.Fatal("expected a data CRC mismatch error")
	}
}

func TestLink_VersionMismatchIsFatal(t *testing.T) {
	const size = 64
	tr := NewLoopbackTransceiver(size, func(hostTx []byte) []byte {
		reply := make([]byte, size)
		h := &TransferHeader{FormatCode: FormatFirmwareStandalone, ProtocolVersion: 1}
		copy(reply, h.Encode())
		return reply
	})

	link := NewLink(tr, MinimumSupportedProtocolVersion, CurrentProtocolVersion, 3)
	err := link.PerformFullTransfer(context.Background())
	if err == nil {
		t.Fatal("expected version mismatch error")
	}
}

func TestLink_ResendBudgetExhausted(t *testing.T) {
	tr := NewLoopbackTransceiver(64, nil)
	link := NewLink(tr, MinimumSupportedProtocolVersion, CurrentProtocolVersion, 2)

	if err := link.ResendPacket(7); err != nil {
		t.Fatalf("resend 1: %v", err)
	}
	if err := link.ResendPacket(7); err != nil {
		t.Fatalf("resend 2: %v", err)
	}
	if err := link.ResendPacket(7); err == nil {
		t.Fatal("expected resend budget exhausted on third resend of same sequence")
	}
}
