// Package protocol implements the protocol state machine: the
// Disconnected -> Handshaking -> Ready -> Failed lifecycle, and the
// typed firmware-originated / host-originated requests multiplexed over
// a pkg/wire.Link in the Ready state.
package protocol

// RequestCode identifies a packet's payload shape, carried in
// wire.PacketHeader.Request.
type RequestCode uint16

// Firmware-originated request codes, handled by the host in Ready state.
const (
	ReqResendPacket RequestCode = iota + 1
	ReqReportState
	ReqObjectModel
	ReqCodeReply
	ReqExecuteMacro
	ReqAbortFile
	ReqStackEvent
	ReqPrintPaused
	ReqHeightMap
	ReqLocked
	ReqIAPSegment
	ReqVariableResult
	ReqEvaluationResult
)

// Host-originated request codes, handled by the firmware.
const (
	ReqGetState RequestCode = iota + 100
	ReqGetObjectModel
	ReqCode
	ReqMacroCompleted
	ReqSetVariable
	ReqEvaluateExpression
	ReqIAPUpload
)

// ReplyFlags are the bits CodeReply carries about the message it encloses.
type ReplyFlags uint32

const (
	ReplyFlagError ReplyFlags = 1 << iota
	ReplyFlagWarning
	ReplyFlagPushMore  // more fragments for this code will follow
	ReplyFlagTerminator
)

// ChannelMask is a bitmask over gcode.Channel values, used by ReportState
// (busy channels) and CodeReply (addressed channels).
type ChannelMask uint32

func (m ChannelMask) Has(ch int) bool { return m&(1<<uint(ch)) != 0 }
func (m ChannelMask) Set(ch int) ChannelMask { return m | (1 << uint(ch)) }
func (m ChannelMask) Clear(ch int) ChannelMask { return m &^ (1 << uint(ch)) }

// PauseReason explains why PrintPaused fired.
type PauseReason int

const (
	PauseUser PauseReason = iota
	PauseFilamentChange
	PauseTrigger
	PauseFileError
)
