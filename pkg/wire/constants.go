// Package wire implements the SPI transport framing layer: the
// fixed-size duplex buffer exchange, transfer/packet headers, CRC
// validation, and resend/malformed-frame recovery.
package wire

// Transfer format codes (TransferHeader.FormatCode).
const (
	FormatHost             uint8 = 0x5F // host -> firmware
	FormatFirmwareStandalone uint8 = 0x60 // firmware -> host, no matching host transfer
	FormatInvalid          uint8 = 0xC9 // peer has nothing new to send
)

// CurrentProtocolVersion is the protocol version this build speaks.
// Bumped whenever the wire layout of a request type changes incompatibly.
const CurrentProtocolVersion uint16 = 5

// MinimumSupportedProtocolVersion is the oldest firmware protocol version
// this daemon will still handshake with.
const MinimumSupportedProtocolVersion uint16 = 3

// Sizes, in bytes, of the fixed wire structures.
const (
	TransferHeaderSize = 12 // format(1) + reserved(1) + seq(2) + version(2) + len(2) + hcrc(2) + dcrc(2)
	PacketHeaderSize   = 8  // request(2) + id(2) + length(2) + reserved(2)
	PayloadAlignment   = 4
)

// DefaultTransferSize is the typical duplex buffer size exchanged per
// transfer, matching real RRF SBC links.
const DefaultTransferSize = 8192
