package protocol

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Firmware-originated payloads. Each is CBOR-encoded as the packet's
// body, preferring CBOR over an ad-hoc binary layout for
// variable-shaped request bodies.

type ResendPacketPayload struct {
	SequenceID uint16 `cbor:"0,keyasint"`
}

type ReportStatePayload struct {
	BusyChannels uint32 `cbor:"0,keyasint"`
}

type ObjectModelPayload struct {
	Module uint8  `cbor:"0,keyasint"`
	JSON   []byte `cbor:"1,keyasint"`
}

type CodeReplyPayload struct {
	Flags   uint32 `cbor:"0,keyasint"`
	Channels uint32 `cbor:"1,keyasint"`
	Text    string `cbor:"2,keyasint"`
}

type ExecuteMacroPayload struct {
	Channel       uint8  `cbor:"0,keyasint"`
	Filename      string `cbor:"1,keyasint"`
	ReportMissing bool   `cbor:"2,keyasint"`
}

type AbortFilePayload struct {
	Channel uint8 `cbor:"0,keyasint"`
}

type StackEventPayload struct {
	Channel   uint8   `cbor:"0,keyasint"`
	Depth     uint8   `cbor:"1,keyasint"`
	Flags     uint32  `cbor:"2,keyasint"`
	Feedrate  float64 `cbor:"3,keyasint"`
}

type PrintPausedPayload struct {
	FilePosition int64 `cbor:"0,keyasint"`
	Reason       uint8 `cbor:"1,keyasint"`
}

type HeightMapPayload struct {
	Data []byte `cbor:"0,keyasint"`
}

type LockedPayload struct {
	Channel uint8 `cbor:"0,keyasint"`
}

type IAPSegmentPayload struct {
	Offset uint32 `cbor:"0,keyasint"`
	Final  bool   `cbor:"1,keyasint"`
}

type VariableResultPayload struct {
	Name  string `cbor:"0,keyasint"`
	Value string `cbor:"1,keyasint"`
	Err   string `cbor:"2,keyasint"`
}

type EvaluationResultPayload struct {
	Result string `cbor:"0,keyasint"`
	Err    string `cbor:"1,keyasint"`
}

// Host-originated payloads.

type GetObjectModelPayload struct {
	Module uint8 `cbor:"0,keyasint"`
}

type CodePayload struct {
	Channel    uint8             `cbor:"0,keyasint"`
	Type       uint8             `cbor:"1,keyasint"`
	Major      int32             `cbor:"2,keyasint"`
	Minor      int32             `cbor:"3,keyasint"`
	HasMajor   bool              `cbor:"4,keyasint"`
	Params     []CodeParamPayload `cbor:"5,keyasint"`
	Keyword    uint8             `cbor:"6,keyasint"`
	KeywordArg string            `cbor:"7,keyasint"`
	Flags      uint32            `cbor:"8,keyasint"`
}

type CodeParamPayload struct {
	Letter byte   `cbor:"0,keyasint"`
	Value  string `cbor:"1,keyasint"`
}

type MacroCompletedPayload struct {
	Channel uint8 `cbor:"0,keyasint"`
	Error   bool  `cbor:"1,keyasint"`
}

type SetVariablePayload struct {
	Name  string `cbor:"0,keyasint"`
	Value string `cbor:"1,keyasint"`
}

type EvaluateExpressionPayload struct {
	Channel    uint8  `cbor:"0,keyasint"`
	Expression string `cbor:"1,keyasint"`
}

type IAPUploadPayload struct {
	Offset uint32 `cbor:"0,keyasint"`
	Data   []byte `cbor:"1,keyasint"`
	Final  bool   `cbor:"2,keyasint"`
}

// EncodePayload CBOR-marshals v for placement in a packet body.
func EncodePayload(v interface{}) ([]byte, error) {
	data, err := cbor.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("protocol: encode payload: %w", err)
	}
	return data, nil
}

// DecodePayload CBOR-unmarshals data into v.
func DecodePayload(data []byte, v interface{}) error {
	if err := cbor.Unmarshal(data, v); err != nil {
		return fmt.Errorf("protocol: decode payload: %w", err)
	}
	return nil
}
