package wire

import (
	"context"
	"fmt"
)

// RequestResendPacket is the control request code the protocol layer
// writes into the outgoing queue (via ResendPacket) when a transfer's
// payload CRC fails. It carries a 2-byte payload: the sequence id of
// the transfer to resend.
const RequestResendPacket uint16 = 0x0001

// Link drives the full-duplex transfer cycle over a Transceiver: it owns
// the outgoing packet queue, the freshly-decoded incoming packet queue,
// and the resend-budget bookkeeping.
type Link struct {
	tx Transceiver

	minVersion, maxVersion uint16

	outSeq    uint16
	outQueue  []outgoingPacket
	nextID    uint16

	lastRxHeader *TransferHeader
	inQueue      []Packet
	inCursor     int
	lastMalformed []byte

	resendCounts map[uint16]int
	maxResends   int
}

// NewLink creates a Link over tx, accepting firmware protocol versions in
// [minVersion, maxVersion] inclusive.
func NewLink(tx Transceiver, minVersion, maxVersion uint16, maxResends int) *Link {
	return &Link{
		tx:           tx,
		minVersion:   minVersion,
		maxVersion:   maxVersion,
		resendCounts: make(map[uint16]int),
		maxResends:   maxResends,
	}
}

// WritePacket enqueues a packet for the next transfer. It fails softly
// with ErrOutgoingBufferFull if the packet would not fit in one transfer
// buffer; the caller is expected to retry on a later tick.
func (l *Link) WritePacket(request uint16, payload []byte) (id uint16, err error) {
	size := l.pendingOutgoingSize() + PacketHeaderSize + AlignedLength(len(payload))
	if size > l.tx.BufferSize()-TransferHeaderSize {
		return 0, ErrOutgoingBufferFull
	}
	id = l.nextID
	l.nextID++
	l.outQueue = append(l.outQueue, outgoingPacket{request: request, id: id, payload: payload})
	return id, nil
}

func (l *Link) pendingOutgoingSize() int {
	total := 0
	for _, p := range l.outQueue {
		total += PacketHeaderSize + AlignedLength(len(p.payload))
	}
	return total
}

// ResendPacket requests that the peer resend the transfer identified by
// seqID. It is the bounded-retry recovery path for a corrupted frame.
func (l *Link) ResendPacket(seqID uint16) error {
	l.resendCounts[seqID]++
	if l.resendCounts[seqID] > l.maxResends {
		return fmt.Errorf("%w: sequence %d resent %d times", ErrResendBudgetExhausted, seqID, l.resendCounts[seqID])
	}
	payload := []byte{byte(seqID), byte(seqID >> 8)}
	_, err := l.WritePacket(RequestResendPacket, payload)
	return err
}

// DumpMalformed returns the raw bytes of the last transfer that could not
// be fully parsed into packets, for diagnostics.
func (l *Link) DumpMalformed() []byte {
	return l.lastMalformed
}

// PerformFullTransfer runs one duplex buffer exchange: serializes the
// outgoing queue, calls the transceiver, and decodes the reply into the
// incoming packet queue. Returns a fatal error (version mismatch) or a
// recoverable one (CRC mismatch, malformed packet) that the caller
// should react to; the resend budget is enforced by ResendPacket.
func (l *Link) PerformFullTransfer(ctx context.Context) error {
	bufSize := l.tx.BufferSize()
	tx := make([]byte, bufSize)
	rx := make([]byte, bufSize)

	payload := l.serializeOutgoing()
	header := &TransferHeader{
		FormatCode:      FormatHost,
		SequenceID:      l.outSeq,
		ProtocolVersion: l.maxVersion,
		PayloadLength:   uint16(len(payload)),
		DataCRC:         CalculateCRC(payload),
	}
	encoded := header.Encode()
	copy(tx, encoded)
	copy(tx[TransferHeaderSize:], payload)

	if err := l.tx.Exchange(tx, rx); err != nil {
		return fmt.Errorf("wire: transfer exchange: %w", err)
	}

	l.outSeq++
	l.outQueue = l.outQueue[:0]

	return l.decodeIncoming(rx)
}

func (l *Link) serializeOutgoing() []byte {
	buf := make([]byte, 0, 256)
	for _, p := range l.outQueue {
		ph := PacketHeader{Request: p.request, ID: p.id, Length: uint16(len(p.payload))}
		buf = append(buf, ph.Encode()...)
		buf = append(buf, p.payload...)
		aligned := AlignedLength(len(p.payload))
		for pad := len(p.payload); pad < aligned; pad++ {
			buf = append(buf, 0)
		}
	}
	return buf
}

func (l *Link) decodeIncoming(rx []byte) error {
	header, err := DecodeTransferHeader(rx)
	if err != nil {
		return err
	}
	l.lastRxHeader = header

	if header.FormatCode == FormatInvalid {
		l.inQueue = l.inQueue[:0]
		l.inCursor = 0
		return nil
	}

	if header.ProtocolVersion < l.minVersion || header.ProtocolVersion > l.maxVersion {
		return fmt.Errorf("%w: firmware speaks %d, supported [%d,%d]",
			ErrVersionMismatch, header.ProtocolVersion, l.minVersion, l.maxVersion)
	}

	end := TransferHeaderSize + int(header.PayloadLength)
	if end > len(rx) {
		l.lastMalformed = rx
		return fmt.Errorf("%w: payload length %d exceeds buffer", ErrMalformedPacket, header.PayloadLength)
	}
	payload := rx[TransferHeaderSize:end]

	if got := CalculateCRC(payload); got != header.DataCRC {
		l.lastMalformed = append([]byte{}, rx[:end]...)
		return fmt.Errorf("%w: expected 0x%04X, got 0x%04X", ErrDataCRCMismatch, header.DataCRC, got)
	}

	packets, malformedTail, parseErr := readPackets(payload)
	l.inQueue = packets
	l.inCursor = 0
	if parseErr != nil {
		l.lastMalformed = malformedTail
		return fmt.Errorf("%w: %v", ErrMalformedPacket, parseErr)
	}
	return nil
}

// readPackets peels packets from payload until it is exhausted or a
// structurally invalid packet is found. It always returns the packets
// successfully parsed before any failure.
func readPackets(payload []byte) (packets []Packet, malformedTail []byte, err error) {
	offset := 0
	for offset < len(payload) {
		if offset+PacketHeaderSize > len(payload) {
			return packets, payload[offset:], fmt.Errorf("truncated packet header at offset %d", offset)
		}
		ph, herr := DecodePacketHeader(payload[offset : offset+PacketHeaderSize])
		if herr != nil {
			return packets, payload[offset:], herr
		}
		dataStart := offset + PacketHeaderSize
		dataEnd := dataStart + int(ph.Length)
		if dataEnd > len(payload) {
			return packets, payload[offset:], fmt.Errorf("packet length %d at offset %d exceeds payload", ph.Length, offset)
		}
		body := make([]byte, ph.Length)
		copy(body, payload[dataStart:dataEnd])
		packets = append(packets, Packet{Header: *ph, Payload: body})

		aligned := AlignedLength(int(ph.Length))
		offset = dataStart + aligned
	}
	return packets, nil, nil
}

// ReadPacket pops the next decoded incoming packet, or ok=false once the
// current transfer's queue is exhausted.
func (l *Link) ReadPacket() (Packet, bool) {
	if l.inCursor >= len(l.inQueue) {
		return Packet{}, false
	}
	p := l.inQueue[l.inCursor]
	l.inCursor++
	return p, true
}

// LastSequenceID returns the sequence id of the most recently decoded
// incoming transfer header, even if its payload failed CRC validation.
func (l *Link) LastSequenceID() uint16 {
	if l.lastRxHeader == nil {
		return 0
	}
	return l.lastRxHeader.SequenceID
}
