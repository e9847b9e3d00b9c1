package protocol

import (
	"context"
	"errors"
	"fmt"

	"github.com/rrflink/sbcd/pkg/wire"
)

// Machine drives a wire.Link through Disconnected -> Handshaking ->
// Ready -> Failed, and in Ready dispatches every decoded incoming packet
// to Handler before returning control to the channel scheduler, which
// then writes its own host-originated packets via Write*.
type Machine struct {
	link    *wire.Link
	handler Handler
	state   State
}

// NewMachine creates a Machine over link, in StateDisconnected.
func NewMachine(link *wire.Link, handler Handler) *Machine {
	return &Machine{link: link, handler: handler, state: StateDisconnected}
}

// State returns the machine's current phase.
func (m *Machine) State() State { return m.state }

// Handshake performs the single full transfer whose sole purpose is to
// negotiate protocol version; both sides accept only if the versions
// match within the supported window (enforced inside wire.Link).
func (m *Machine) Handshake(ctx context.Context) error {
	m.state = StateHandshaking
	if err := m.link.PerformFullTransfer(ctx); err != nil {
		m.state = StateFailed
		return fmt.Errorf("protocol: handshake: %w", err)
	}
	m.state = StateReady
	return nil
}

// Tick performs one transfer and dispatches every resulting incoming
// packet to Handler. It returns a recoverable error (the caller should
// call Resync or request a resend) or a fatal one (Failed is entered).
func (m *Machine) Tick(ctx context.Context) error {
	if m.state != StateReady {
		return fmt.Errorf("protocol: Tick called in state %s", m.state)
	}

	err := m.link.PerformFullTransfer(ctx)
	if err != nil {
		if isFatal(err) {
			m.state = StateFailed
			return err
		}
		// Recoverable: CRC/malformed. Request a resend of the offending
		// transfer and let the caller retry next tick, unless that
		// transfer has used up its resend budget, which is fatal.
		if rerr := m.link.ResendPacket(m.link.LastSequenceID()); errors.Is(rerr, wire.ErrResendBudgetExhausted) {
			m.state = StateFailed
			return rerr
		}
		return err
	}

	for {
		pkt, ok := m.link.ReadPacket()
		if !ok {
			break
		}
		if derr := m.dispatch(RequestCode(pkt.Header.Request), pkt.Payload); derr != nil {
			// Protocol violation: the packet is dropped without being
			// reported; one bad packet never aborts the whole tick.
			continue
		}
	}
	return nil
}

func isFatal(err error) bool {
	return errors.Is(err, wire.ErrVersionMismatch) || errors.Is(err, wire.ErrResendBudgetExhausted)
}

func (m *Machine) dispatch(code RequestCode, payload []byte) error {
	switch code {
	case ReqReportState:
		var p ReportStatePayload
		if err := DecodePayload(payload, &p); err != nil {
			return err
		}
		m.handler.OnReportState(p.BusyChannels)

	case ReqObjectModel:
		var p ObjectModelPayload
		if err := DecodePayload(payload, &p); err != nil {
			return err
		}
		m.handler.OnObjectModel(p.Module, p.JSON)

	case ReqCodeReply:
		var p CodeReplyPayload
		if err := DecodePayload(payload, &p); err != nil {
			return err
		}
		m.handler.OnCodeReply(ReplyFlags(p.Flags), ChannelMask(p.Channels), p.Text)

	case ReqExecuteMacro:
		var p ExecuteMacroPayload
		if err := DecodePayload(payload, &p); err != nil {
			return err
		}
		m.handler.OnExecuteMacro(p.Channel, p.Filename, p.ReportMissing)

	case ReqAbortFile:
		var p AbortFilePayload
		if err := DecodePayload(payload, &p); err != nil {
			return err
		}
		m.handler.OnAbortFile(p.Channel)

	case ReqStackEvent:
		var p StackEventPayload
		if err := DecodePayload(payload, &p); err != nil {
			return err
		}
		m.handler.OnStackEvent(p.Channel, p.Depth, p.Flags, p.Feedrate)

	case ReqPrintPaused:
		var p PrintPausedPayload
		if err := DecodePayload(payload, &p); err != nil {
			return err
		}
		m.handler.OnPrintPaused(p.FilePosition, PauseReason(p.Reason))

	case ReqHeightMap:
		var p HeightMapPayload
		if err := DecodePayload(payload, &p); err != nil {
			return err
		}
		m.handler.OnHeightMap(p.Data)

	case ReqLocked:
		var p LockedPayload
		if err := DecodePayload(payload, &p); err != nil {
			return err
		}
		m.handler.OnLocked(p.Channel)

	case ReqIAPSegment:
		var p IAPSegmentPayload
		if err := DecodePayload(payload, &p); err != nil {
			return err
		}
		m.handler.OnIAPSegment(p.Offset, p.Final)

	case ReqVariableResult:
		var p VariableResultPayload
		if err := DecodePayload(payload, &p); err != nil {
			return err
		}
		m.handler.OnVariableResult(p.Name, p.Value, p.Err)

	case ReqEvaluationResult:
		var p EvaluationResultPayload
		if err := DecodePayload(payload, &p); err != nil {
			return err
		}
		m.handler.OnEvaluationResult(p.Result, p.Err)

	case ReqResendPacket:
		// The firmware is asking us to resend; handled by the caller's
		// outgoing retransmit path, not by Handler.
		return nil

	default:
		return fmt.Errorf("protocol: unknown request code %d", code)
	}
	return nil
}

// WriteCode writes a host-originated Code request and returns the wire
// packet id it was assigned, for the scheduler to correlate replies.
func (m *Machine) WriteCode(p CodePayload) (uint16, error) {
	payload, err := EncodePayload(p)
	if err != nil {
		return 0, err
	}
	return m.link.WritePacket(uint16(ReqCode), payload)
}

// WriteGetState enqueues the standing GetState request.
func (m *Machine) WriteGetState() (uint16, error) {
	return m.link.WritePacket(uint16(ReqGetState), nil)
}

// WriteGetObjectModel enqueues a GetObjectModel(module) request.
func (m *Machine) WriteGetObjectModel(module uint8) (uint16, error) {
	payload, err := EncodePayload(GetObjectModelPayload{Module: module})
	if err != nil {
		return 0, err
	}
	return m.link.WritePacket(uint16(ReqGetObjectModel), payload)
}

// WriteMacroCompleted enqueues a MacroCompleted(channel, error) request.
func (m *Machine) WriteMacroCompleted(channel uint8, errored bool) (uint16, error) {
	payload, err := EncodePayload(MacroCompletedPayload{Channel: channel, Error: errored})
	if err != nil {
		return 0, err
	}
	return m.link.WritePacket(uint16(ReqMacroCompleted), payload)
}

// WriteSetVariable enqueues a SetVariable request.
func (m *Machine) WriteSetVariable(name, value string) (uint16, error) {
	payload, err := EncodePayload(SetVariablePayload{Name: name, Value: value})
	if err != nil {
		return 0, err
	}
	return m.link.WritePacket(uint16(ReqSetVariable), payload)
}

// WriteEvaluateExpression enqueues an EvaluateExpression request.
func (m *Machine) WriteEvaluateExpression(channel uint8, expr string) (uint16, error) {
	payload, err := EncodePayload(EvaluateExpressionPayload{Channel: channel, Expression: expr})
	if err != nil {
		return 0, err
	}
	return m.link.WritePacket(uint16(ReqEvaluateExpression), payload)
}

// WriteIAPUpload enqueues one firmware-update segment.
func (m *Machine) WriteIAPUpload(offset uint32, data []byte, final bool) (uint16, error) {
	payload, err := EncodePayload(IAPUploadPayload{Offset: offset, Data: data, Final: final})
	if err != nil {
		return 0, err
	}
	return m.link.WritePacket(uint16(ReqIAPUpload), payload)
}
