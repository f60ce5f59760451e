package wampclient

import (
	"errors"
	"fmt"

	"github.com/frol/wampclient/wamp"
)

var (
	// ErrSessionClosed is returned to requests still waiting when the
	// session ends, and by operations started after it ended.
	ErrSessionClosed = errors.New("wampclient: session closed")
	// ErrNotReady wraps the context error of a request that gave up before
	// the router welcomed the session.
	ErrNotReady = errors.New("wampclient: session not established")
	// ErrAlreadyJoined is returned by a second call to Join.
	ErrAlreadyJoined = errors.New("wampclient: join already sent")
	// ErrAlreadyRunning is returned by a second call to Run.
	ErrAlreadyRunning = errors.New("wampclient: client already running")
)

// AbortError is the fatal error of a session the router aborted.
type AbortError struct {
	Reason  wamp.URI
	Details wamp.Dict
}

func (e *AbortError) Error() string {
	return "wampclient: session aborted: " + string(e.Reason) + formatUnknownMap(e.Details)
}

// RPCError is the ERROR reply a router sent for a CALL, REGISTER or
// UNREGISTER request.
type RPCError struct {
	Err *wamp.Error
}

func (e *RPCError) Error() string {
	s := fmt.Sprintf("%s failed: %s", e.Err.Type, e.Err.Error)
	if len(e.Err.Arguments) > 0 {
		s += fmt.Sprintf(" %v", wamp.Raw(e.Err.Arguments))
	}
	return s + formatUnknownMap(e.Err.ArgumentsKw)
}

// URI returns the error URI the router replied with.
func (e *RPCError) URI() wamp.URI {
	return e.Err.Error
}
