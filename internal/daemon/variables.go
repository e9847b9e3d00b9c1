package daemon

import "github.com/rrflink/sbcd/pkg/protocol"

// RemoteVariableScope implements interpreter.VariableScope. The
// firmware owns the variable namespace, so clearing a local is a
// fire-and-forget SetVariable request; there is no dedicated
// clear-variable request code, so "null" is sent as the clear
// sentinel per RRF meta-gcode's own null literal.
type RemoteVariableScope struct {
	machine *protocol.Machine
}

// NewRemoteVariableScope returns a VariableScope bound to machine.
func NewRemoteVariableScope(machine *protocol.Machine) *RemoteVariableScope {
	return &RemoteVariableScope{machine: machine}
}

// ClearLocals sends SetVariable(name, "null") for each name declared
// inside the block or macro frame that just popped.
func (s *RemoteVariableScope) ClearLocals(names []string) {
	for _, name := range names {
		s.machine.WriteSetVariable(name, "null")
	}
}
