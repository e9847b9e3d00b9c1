// Package ipc implements the IPC server and subscription fan-out:
// a local stream socket that negotiates a mode per connection and then
// serves Command/Intercept/Subscribe/CodeStream/PluginService traffic
// against the channel scheduler and the object-model store.
package ipc

// MinimumProtocolVersion and CurrentProtocolVersion bound the versions
// this server accepts from a ClientInitMessage.
const (
	MinimumProtocolVersion = 1
	CurrentProtocolVersion = 12

	// JobLayersArrayVersion is the first client version the patch
	// emitter sends the job.layers array diff to; clients below this
	// only ever see it as part of a Full resync.
	JobLayersArrayVersion = 11
)

// ProcessorKind is the mode a connection negotiates at init time.
type ProcessorKind string

const (
	ModeCommand       ProcessorKind = "Command"
	ModeIntercept     ProcessorKind = "Intercept"
	ModeSubscribe     ProcessorKind = "Subscribe"
	ModeCodeStream    ProcessorKind = "CodeStream"
	ModePluginService ProcessorKind = "PluginService"
)

// ServerInitMessage is the first, unconditional message sent down every
// new connection, before the client has declared anything.
type ServerInitMessage struct {
	Version int    `json:"Version"`
	ID      string `json:"Id"`
}

// ClientInitMessage is the client's reply declaring its protocol
// version and the mode it wants to run in, plus mode-specific fields
// that every mode's init payload may carry.
type ClientInitMessage struct {
	Version int           `json:"Version"`
	Mode    ProcessorKind `json:"Mode"`

	// Subscribe mode.
	SubscriptionMode SubscriptionMode `json:"SubscriptionMode,omitempty"`
	Filters          []string         `json:"Filters,omitempty"`

	// Intercept mode.
	InterceptionMode InterceptionMode `json:"InterceptionMode,omitempty"`
	Filter           string           `json:"Filter,omitempty"`

	// CodeStream mode.
	BufferSize int `json:"BufferSize,omitempty"`
}

// SubscriptionMode selects whether a Subscribe connection receives the
// full object model on every wake or a structural diff since the last
// send.
type SubscriptionMode string

const (
	SubscriptionFull  SubscriptionMode = "Full"
	SubscriptionPatch SubscriptionMode = "Patch"
)

// InterceptionMode selects which phase of code execution an Intercept
// connection is offered codes at.
type InterceptionMode string

const (
	InterceptPre      InterceptionMode = "Pre"
	InterceptPost     InterceptionMode = "Post"
	InterceptExecuted InterceptionMode = "Executed"
)

// SuccessReply wraps a successful command result.
type SuccessReply struct {
	Success bool        `json:"Success"`
	Result  interface{} `json:"Result,omitempty"`
}

// ErrorReply wraps a failed command result.
type ErrorReply struct {
	Success bool      `json:"Success"`
	Error   ErrorBody `json:"Error"`
}

// ErrorBody is the typed error carried by ErrorReply and by the init
// handshake's rejection message.
type ErrorBody struct {
	Type    string `json:"Type"`
	Message string `json:"Message"`
}

// Acknowledge is the only message a Subscribe-mode client ever sends.
type Acknowledge struct {
	Acknowledge bool `json:"Acknowledge"`
}

// errorReply builds an ErrorReply for errType/msg, the shape every
// processor uses to report a client-facing failure.
func errorReply(errType, msg string) ErrorReply {
	return ErrorReply{Error: ErrorBody{Type: errType, Message: msg}}
}
