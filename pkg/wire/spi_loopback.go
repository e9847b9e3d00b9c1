package wire

import (
	"context"
	"sync"
)

// LoopbackTransceiver is an in-memory Transceiver used by tests and by
// sbcctl's simulated-firmware mode. A FirmwareFunc supplies the "reply"
// buffer for each Exchange call, given the bytes the host just sent.
type LoopbackTransceiver struct {
	size    int
	mu      sync.Mutex
	reply   func(hostTx []byte) []byte
	ready   chan struct{}
}

// NewLoopbackTransceiver creates a loopback of the given buffer size. If
// reply is nil, Exchange leaves rx untouched (all zeros for the buffers
// Link allocates, which do not decode as a valid transfer header).
func NewLoopbackTransceiver(size int, reply func(hostTx []byte) []byte) *LoopbackTransceiver {
	return &LoopbackTransceiver{size: size, reply: reply, ready: make(chan struct{}, 1)}
}

func (l *LoopbackTransceiver) Exchange(tx, rx []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.reply != nil {
		out := l.reply(tx)
		copy(rx, out)
	}
	return nil
}

func (l *LoopbackTransceiver) WaitForDataReady(ctx context.Context) error {
	select {
	case <-l.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SignalDataReady wakes one pending WaitForDataReady call, simulating the
// firmware's edge signal.
func (l *LoopbackTransceiver) SignalDataReady() {
	select {
	case l.ready <- struct{}{}:
	default:
	}
}

func (l *LoopbackTransceiver) BufferSize() int { return l.size }
