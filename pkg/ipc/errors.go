package ipc

import (
	"errors"
	"fmt"
)

// errPeerGone is returned by a Subscribe-mode loop when a liveness
// probe finds the client has disconnected during an idle wait.
var errPeerGone = errors.New("ipc: subscriber disconnected")

// ClientError is a recoverable per-connection fault: a malformed init
// payload, an unsupported command for the negotiated mode, or a
// permission failure. One raised during the init handshake closes the
// connection after it is reported; one raised by a Command-mode request
// is reported and the connection keeps serving requests. The listener
// itself keeps running either way.
type ClientError struct {
	Type    string
	Message string
}

func (e *ClientError) Error() string {
	return fmt.Sprintf("ipc: %s: %s", e.Type, e.Message)
}

func newClientError(errType, format string, args ...interface{}) *ClientError {
	return &ClientError{Type: errType, Message: fmt.Sprintf(format, args...)}
}
