package ipc

import (
	"context"

	"github.com/rrflink/sbcd/pkg/gcode"
	"github.com/rrflink/sbcd/pkg/interpreter"
)

// codeStreamProcessor implements CodeStream mode: a fire-and-forget
// per-connection channel (always gcode.ChannelSBC) that submits codes
// as fast as the client sends them, without waiting for each to
// complete, while a second goroutine
// streams their replies back in submission order.
type codeStreamProcessor struct {
	sched CodeSubmitter
}

// pendingBacklog bounds how far ahead of its own reply stream a
// CodeStream client may run before submission blocks.
const pendingBacklog = 64

type codeStreamLine struct {
	Code string `json:"Code"`
}

type codeStreamResult struct {
	Reply string `json:"Reply"`
	Error string `json:"Error,omitempty"`
}

func (p *codeStreamProcessor) Process(ctx context.Context, conn *Connection, init ClientInitMessage) error {
	backlog := pendingBacklog
	if init.BufferSize > 0 {
		backlog = init.BufferSize
	}
	pending := make(chan *gcode.Code, backlog)
	writerDone := make(chan error, 1)
	go func() { writerDone <- p.writeResults(ctx, conn, pending) }()

	readErr := p.readAndSubmit(ctx, conn, pending)
	close(pending)

	if writerErr := <-writerDone; readErr == nil {
		return writerErr
	}
	return readErr
}

func (p *codeStreamProcessor) readAndSubmit(ctx context.Context, conn *Connection, pending chan<- *gcode.Code) error {
	for {
		var line codeStreamLine
		if err := conn.ReadLine(&line); err != nil {
			return err
		}

		code, err := interpreter.ParseLine(line.Code, gcode.ChannelSBC)
		if err != nil {
			if werr := conn.WriteLine(codeStreamResult{Error: err.Error()}); werr != nil {
				return werr
			}
			continue
		}
		if code.Type == gcode.TypeComment {
			continue
		}
		code.Origin = gcode.OriginIPC
		p.sched.Submit(code)

		select {
		case pending <- code:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// writeResults drains pending strictly in submission order, relying on
// the scheduler's per-channel FIFO guarantee that a later code on
// ChannelSBC never completes before an earlier one.
func (p *codeStreamProcessor) writeResults(ctx context.Context, conn *Connection, pending <-chan *gcode.Code) error {
	for {
		select {
		case code, ok := <-pending:
			if !ok {
				return nil
			}
			select {
			case res := <-code.Completion:
				out := codeStreamResult{Reply: res.Reply}
				if res.Err != nil {
					out.Error = res.Err.Error()
				}
				if err := conn.WriteLine(out); err != nil {
					return err
				}
			case <-ctx.Done():
				return ctx.Err()
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
