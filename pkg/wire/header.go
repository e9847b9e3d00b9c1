package wire

import (
	"encoding/binary"
	"fmt"
)

// TransferHeader is the fixed 12-byte header at the start of every
// duplex buffer exchanged over the link.
type TransferHeader struct {
	FormatCode      uint8
	Reserved        uint8
	SequenceID      uint16
	ProtocolVersion uint16
	PayloadLength   uint16
	HeaderCRC       uint16
	DataCRC         uint16
}

// Encode writes the header to a 12-byte buffer. HeaderCRC is computed
// over the preceding 8 bytes and written as part of the encoding.
func (h *TransferHeader) Encode() []byte {
	buf := make([]byte, TransferHeaderSize)
	buf[0] = h.FormatCode
	buf[1] = h.Reserved
	binary.LittleEndian.PutUint16(buf[2:4], h.SequenceID)
	binary.LittleEndian.PutUint16(buf[4:6], h.ProtocolVersion)
	binary.LittleEndian.PutUint16(buf[6:8], h.PayloadLength)
	h.HeaderCRC = CalculateCRC(buf[:8])
	binary.LittleEndian.PutUint16(buf[8:10], h.HeaderCRC)
	binary.LittleEndian.PutUint16(buf[10:12], h.DataCRC)
	return buf
}

// DecodeTransferHeader parses the first TransferHeaderSize bytes of buf.
func DecodeTransferHeader(buf []byte) (*TransferHeader, error) {
	if len(buf) < TransferHeaderSize {
		return nil, fmt.Errorf("wire: short transfer header: %d bytes", len(buf))
	}
	h := &TransferHeader{
		FormatCode:      buf[0],
		Reserved:        buf[1],
		SequenceID:      binary.LittleEndian.Uint16(buf[2:4]),
		ProtocolVersion: binary.LittleEndian.Uint16(buf[4:6]),
		PayloadLength:   binary.LittleEndian.Uint16(buf[6:8]),
		HeaderCRC:       binary.LittleEndian.Uint16(buf[8:10]),
		DataCRC:         binary.LittleEndian.Uint16(buf[10:12]),
	}
	if got := CalculateCRC(buf[:8]); got != h.HeaderCRC {
		return h, fmt.Errorf("%w: expected 0x%04X, got 0x%04X", ErrHeaderCRCMismatch, got, h.HeaderCRC)
	}
	return h, nil
}

// PacketHeader prefixes every packet packed into a transfer's payload.
type PacketHeader struct {
	Request  uint16
	ID       uint16
	Length   uint16
	Reserved uint16
}

// Encode writes the 8-byte packet header.
func (p *PacketHeader) Encode() []byte {
	buf := make([]byte, PacketHeaderSize)
	binary.LittleEndian.PutUint16(buf[0:2], p.Request)
	binary.LittleEndian.PutUint16(buf[2:4], p.ID)
	binary.LittleEndian.PutUint16(buf[4:6], p.Length)
	binary.LittleEndian.PutUint16(buf[6:8], p.Reserved)
	return buf
}

// DecodePacketHeader parses the first PacketHeaderSize bytes of buf.
func DecodePacketHeader(buf []byte) (*PacketHeader, error) {
	if len(buf) < PacketHeaderSize {
		return nil, fmt.Errorf("wire: short packet header: %d bytes", len(buf))
	}
	return &PacketHeader{
		Request:  binary.LittleEndian.Uint16(buf[0:2]),
		ID:       binary.LittleEndian.Uint16(buf[2:4]),
		Length:   binary.LittleEndian.Uint16(buf[4:6]),
		Reserved: binary.LittleEndian.Uint16(buf[6:8]),
	}, nil
}

// AlignedLength rounds n up to PayloadAlignment.
func AlignedLength(n int) int {
	rem := n % PayloadAlignment
	if rem == 0 {
		return n
	}
	return n + (PayloadAlignment - rem)
}
