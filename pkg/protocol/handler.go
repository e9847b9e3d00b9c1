package protocol

// Handler receives the firmware-originated requests decoded in the
// Ready state. Implementations (the channel scheduler for most of
// these, the object-model store for ObjectModel/HeightMap) perform a
// deterministic state mutation and/or notify a consumer; they must not
// block.
type Handler interface {
	OnReportState(busyChannels uint32)
	OnObjectModel(module uint8, json []byte)
	OnCodeReply(flags ReplyFlags, channels ChannelMask, text string)
	OnExecuteMacro(channel uint8, filename string, reportMissing bool)
	OnAbortFile(channel uint8)
	OnStackEvent(channel uint8, depth uint8, flags uint32, feedrate float64)
	OnPrintPaused(filePosition int64, reason PauseReason)
	OnHeightMap(data []byte)
	OnLocked(channel uint8)
	OnIAPSegment(offset uint32, final bool)
	OnVariableResult(name, value, errText string)
	OnEvaluationResult(result, errText string)
}
