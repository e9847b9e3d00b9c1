package wire

import (
	"fmt"

	"go.bug.st/serial"
)

// AuxPort is a PanelDue-style serial display bridged onto the Aux
// channel: codes typed on the panel arrive as lines of text, and replies
// routed to the Aux channel are written back out.
type AuxPort struct {
	port serial.Port
}

// OpenAuxPort opens the serial device backing the Aux channel.
func OpenAuxPort(device string, baud int) (*AuxPort, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(device, mode)
	if err != nil {
		return nil, fmt.Errorf("wire: open aux port %s: %w", device, err)
	}
	return &AuxPort{port: port}, nil
}

func (a *AuxPort) Read(p []byte) (int, error)  { return a.port.Read(p) }
func (a *AuxPort) Write(p []byte) (int, error) { return a.port.Write(p) }
func (a *AuxPort) Close() error                { return a.port.Close() }
