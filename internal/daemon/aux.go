package daemon

import (
	"bufio"
	"context"
	"fmt"
	"io"

	"github.com/rrflink/sbcd/internal/logging"
	"github.com/rrflink/sbcd/pkg/gcode"
	"github.com/rrflink/sbcd/pkg/interpreter"
)

// AuxSubmitter is the scheduler surface AuxBridge needs: submit a code
// and wait for its reply.
type AuxSubmitter interface {
	Submit(code *gcode.Code)
}

// AuxBridge reads newline-terminated gcode lines from a PanelDue-style
// serial display on the Aux channel, submits each as a code, and
// writes the reply back out to the same port, mirroring how pkg/ipc's
// commandProcessor drives Code submission over the IPC socket.
type AuxBridge struct {
	port io.ReadWriteCloser
	r    *bufio.Reader
	sub  AuxSubmitter
	log  *logging.Logger
}

// NewAuxBridge returns a bridge that will read from and write to port
// once Run is called.
func NewAuxBridge(port io.ReadWriteCloser, sub AuxSubmitter, log *logging.Logger) *AuxBridge {
	return &AuxBridge{port: port, r: bufio.NewReader(port), sub: sub, log: log}
}

// Run is T4: it blocks reading lines from the Aux port until ctx is
// cancelled or the port errors.
func (b *AuxBridge) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		b.port.Close()
	}()

	for {
		line, err := b.r.ReadString('\n')
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("daemon: reading aux port: %w", err)
		}

		code, err := interpreter.ParseLine(line, gcode.ChannelAux)
		if err != nil {
			b.writeReply(fmt.Sprintf("Error: %v", err))
			continue
		}
		code.Origin = gcode.OriginAux
		if code.Type == gcode.TypeComment {
			continue
		}

		b.sub.Submit(code)
		select {
		case res := <-code.Completion:
			if res.Err != nil {
				b.writeReply(fmt.Sprintf("Error: %v", res.Err))
			} else if res.Reply != "" {
				b.writeReply(res.Reply)
			}
		case <-ctx.Done():
			return nil
		}
	}
}

func (b *AuxBridge) writeReply(reply string) {
	if _, err := b.port.Write([]byte(reply + "\n")); err != nil {
		b.log.Warn("daemon: writing aux reply failed", logging.F("err", err.Error()))
	}
}
