package wire

import "errors"

var (
	// ErrHeaderCRCMismatch is returned when a transfer header's own CRC
	// does not match its content: the header itself is untrustworthy,
	// so the whole transfer is discarded.
	ErrHeaderCRCMismatch = errors.New("wire: transfer header CRC mismatch")

	// ErrDataCRCMismatch is returned when a transfer's payload CRC does
	// not match the header's DataCRC field.
	ErrDataCRCMismatch = errors.New("wire: transfer payload CRC mismatch")

	// ErrVersionMismatch is a fatal protocol error: the peer's protocol
	// version is outside the supported window.
	ErrVersionMismatch = errors.New("wire: protocol version mismatch")

	// ErrMalformedPacket is returned by ReadPacket when a packet's
	// structure cannot be parsed (e.g. length runs past the payload).
	ErrMalformedPacket = errors.New("wire: malformed packet")

	// ErrOutgoingBufferFull is returned by WritePacket when the packet
	// would not fit in the remaining space of the current outgoing
	// transfer; the caller is expected to retry on the next tick.
	ErrOutgoingBufferFull = errors.New("wire: outgoing buffer full")

	// ErrResendBudgetExhausted is fatal: the same sequence id has been
	// resent more times than the configured budget allows.
	ErrResendBudgetExhausted = errors.New("wire: resend budget exhausted")
)
