package transport

import (
	"errors"
	"fmt"
)

// ErrorKind classifies transport failures so callers can distinguish a slow
// agent from a dead connection or a malformed stream.
type ErrorKind string

const (
	// KindTimeout indicates no matching response arrived within the window
	KindTimeout ErrorKind = "timeout"

	// KindProtocol indicates the inbound stream carried undecodable data
	KindProtocol ErrorKind = "protocol"

	// KindDisconnected indicates the connection was absent or dropped
	KindDisconnected ErrorKind = "disconnected"

	// KindRemote indicates the agent answered with an error frame
	KindRemote ErrorKind = "remote"
)

// Error is a tagged transport error
type Error struct {
	Kind    ErrorKind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	return fmt.Sprintf("transport %s: %s (%s)", e.Op, msg, e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf extracts the ErrorKind from err, or "" if err is not a transport
// error.
func KindOf(err error) ErrorKind {
	var terr *Error
	if errors.As(err, &terr) {
		return terr.Kind
	}
	return ""
}
