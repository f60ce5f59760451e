package wamp

import "fmt"

// A WAMPError is returned when a message does not follow the WAMP protocol.
type WAMPError struct {
	Msg string
}

// Error implements the error interface to provide a message.
func (e *WAMPError) Error() string {
	return "wamp: " + e.Msg
}

var (
	// ErrUnknownMessageType is returned for a message code that is not defined
	// for the direction being decoded.
	ErrUnknownMessageType = &WAMPError{"unknown message type"}
	// ErrInvalidEnvelope is returned when a payload is not an array led by a
	// non-negative integer message code.
	ErrInvalidEnvelope = &WAMPError{"invalid message envelope"}
)

// A DecodeError describes a message whose fields have the wrong arity or
// shape. It is a soft error: the message is dropped and the session goes on.
type DecodeError struct {
	Type MessageType
	// Field is the position of the bad field in the wire array (the code is
	// position 0), or 0 when the arity is wrong.
	Field  int
	Reason string
}

func (e *DecodeError) Error() string {
	if e.Field == 0 {
		return fmt.Sprintf("wamp: malformed %s message: %s", e.Type, e.Reason)
	}
	return fmt.Sprintf("wamp: malformed %s message: field %d: %s", e.Type, e.Field, e.Reason)
}

func kindOf(v Value) string {
	switch v.(type) {
	case Integer:
		return "integer"
	case String:
		return "string"
	case Bool:
		return "bool"
	case List:
		return "list"
	case Dict:
		return "dict"
	case nil:
		return "nothing"
	}
	return fmt.Sprintf("%T", v)
}
