package wire

import "context"

// Transceiver is the blocking duplex-transfer primitive this package is
// built on: one fixed-size buffer exchange per call, plus a way to wait
// for the peer's "data ready" edge signal. Concrete implementations live
// in spi_linux.go (real spidev) and spi_loopback.go (tests, simulators).
type Transceiver interface {
	// Exchange performs one full-duplex transfer: tx is written to the
	// peer while rx is filled with whatever the peer sent back. Both
	// slices must be the same length.
	Exchange(tx, rx []byte) error

	// WaitForDataReady blocks until the peer's data-ready edge fires or
	// ctx is cancelled. Implementations that cannot observe an edge
	// signal may instead sleep for a poll interval and return nil.
	WaitForDataReady(ctx context.Context) error

	// BufferSize is the fixed size of the buffers Exchange expects.
	BufferSize() int
}
