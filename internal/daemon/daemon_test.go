package daemon

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/rrflink/sbcd/internal/config"
	"github.com/rrflink/sbcd/internal/logging"
	"github.com/rrflink/sbcd/pkg/wire"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.IPC.SocketPath = t.TempDir() + "/sbcd.sock"
	cfg.Macro.SysDir = t.TempDir()
	cfg.Macro.MacroDir = t.TempDir()
	return cfg
}

func idleLoopback() *wire.LoopbackTransceiver {
	return wire.NewLoopbackTransceiver(512, func(hostTx []byte) []byte {
		reply := make([]byte, 512)
		h := &wire.TransferHeader{FormatCode: wire.FormatFirmwareStandalone, ProtocolVersion: wire.CurrentProtocolVersion, DataCRC: wire.CalculateCRC(nil)}
		copy(reply, h.Encode())
		return reply
	})
}

func TestNew_WiresHandlerProxyToRealScheduler(t *testing.T) {
	d := New(testConfig(t), logging.Default(), idleLoopback())
	if d.sched == nil {
		t.Fatal("expected a constructed Scheduler")
	}
	if d.proxy.sched != d.sched {
		t.Fatal("handlerProxy was not pointed at the real scheduler")
	}
}

func TestRun_HandshakeThenCancel(t *testing.T) {
	d := New(testConfig(t), logging.Default(), idleLoopback())

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- d.Run(ctx) }()

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}

func TestRun_UpdateOnlyNeverBindsIPCSocket(t *testing.T) {
	cfg := testConfig(t)
	d := New(cfg, logging.Default(), idleLoopback())
	d.SetUpdateOnly(true)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- d.Run(ctx) }()

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after context cancellation")
	}

	if _, err := os.Stat(cfg.IPC.SocketPath); !os.IsNotExist(err) {
		t.Fatalf("expected no IPC socket to be created in update-only mode, stat err: %v", err)
	}
}
