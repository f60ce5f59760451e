package wampclient

import (
	"fmt"

	"github.com/frol/wampclient/wamp"
)

// AuthFunc takes the HELLO details and CHALLENGE extra and returns the
// signature string and the AUTHENTICATE extra.
type AuthFunc func(hello wamp.Dict, challenge wamp.Dict) (string, wamp.Dict, error)

// TicketAuth answers a ticket CHALLENGE with a fixed ticket.
func TicketAuth(ticket string) AuthFunc {
	return func(wamp.Dict, wamp.Dict) (string, wamp.Dict, error) {
		return ticket, wamp.Dict{}, nil
	}
}

// authenticate picks the AuthFunc for the challenge's method.
func authenticate(auth map[string]AuthFunc, hello wamp.Dict, msg *wamp.Challenge) (*wamp.Authenticate, error) {
	fn, ok := auth[msg.AuthMethod]
	if !ok {
		return nil, fmt.Errorf("no auth handler for method: %s", msg.AuthMethod)
	}
	signature, extra, err := fn(hello, msg.Extra)
	if err != nil {
		return nil, fmt.Errorf("%s authentication: %w", msg.AuthMethod, err)
	}
	if extra == nil {
		extra = wamp.Dict{}
	}
	return &wamp.Authenticate{Signature: signature, Extra: extra}, nil
}
