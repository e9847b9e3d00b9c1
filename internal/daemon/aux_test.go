package daemon

import (
	"bufio"
	"context"
	"net"
	"testing"
	"time"

	"github.com/rrflink/sbcd/internal/logging"
	"github.com/rrflink/sbcd/pkg/gcode"
)

type fakeAuxSubmitter struct {
	autoReply string
}

func (f *fakeAuxSubmitter) Submit(code *gcode.Code) {
	code.Completion <- gcode.Result{Reply: f.autoReply}
}

func TestAuxBridge_SubmitsLineAndWritesReply(t *testing.T) {
	portSide, driverSide := net.Pipe()
	defer driverSide.Close()

	sub := &fakeAuxSubmitter{autoReply: "ok"}
	bridge := NewAuxBridge(portSide, sub, logging.Default())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- bridge.Run(ctx) }()

	if _, err := driverSide.Write([]byte("G28\n")); err != nil {
		t.Fatalf("writing to aux port: %v", err)
	}

	driverSide.SetReadDeadline(time.Now().Add(2 * time.Second))
	reply, err := bufio.NewReader(driverSide).ReadString('\n')
	if err != nil {
		t.Fatalf("reading aux reply: %v", err)
	}
	if reply != "ok\n" {
		t.Fatalf("reply = %q, want %q", reply, "ok\n")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}

func TestAuxBridge_CommentLineIsSkipped(t *testing.T) {
	portSide, driverSide := net.Pipe()
	defer driverSide.Close()

	sub := &fakeAuxSubmitter{autoReply: "reply to G28"}
	bridge := NewAuxBridge(portSide, sub, logging.Default())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- bridge.Run(ctx) }()

	if _, err := driverSide.Write([]byte("; just a comment\nG28\n")); err != nil {
		t.Fatalf("writing to aux port: %v", err)
	}

	driverSide.SetReadDeadline(time.Now().Add(2 * time.Second))
	reply, err := bufio.NewReader(driverSide).ReadString('\n')
	if err != nil {
		t.Fatalf("reading aux reply: %v", err)
	}
	if reply != "reply to G28\n" {
		t.Fatalf("reply = %q, want the G28 reply, not a reply to the comment", reply)
	}

	cancel()
	<-done
}
