package wamp

import (
	"fmt"
	"regexp"
)

// URIs are dot-separated identifiers, where each component *should* only
// contain letters, numbers or underscores.
//
// See the documentation for specifics: https://wamp-proto.org/wamp_latest_ietf.html#name-uris
type URI string

// URIPolicy selects how strictly ParseURI checks URI syntax.
type URIPolicy int

const (
	// Relaxed accepts any non-empty string.
	Relaxed URIPolicy = iota
	// Strict accepts only dot-separated components of [0-9a-z_].
	Strict
)

var strictURI = regexp.MustCompile(`^([0-9a-z_]+\.)*([0-9a-z_]+)$`)

// ErrMalformedURI is returned (wrapped) when a string is not a valid URI under
// the requested policy.
var ErrMalformedURI = &WAMPError{"invalid URI"}

// ParseURI validates s under policy.
func ParseURI(s string, policy URIPolicy) (URI, error) {
	switch policy {
	case Relaxed:
		if s == "" {
			return "", fmt.Errorf("%w: empty string", ErrMalformedURI)
		}
	case Strict:
		if !strictURI.MatchString(s) {
			return "", fmt.Errorf("%w: %q", ErrMalformedURI, s)
		}
	default:
		return "", fmt.Errorf("unknown URI policy: %d", policy)
	}
	return URI(s), nil
}

// MustURI is like ParseURI but panics on error. Use it for constants.
func MustURI(s string, policy URIPolicy) URI {
	u, err := ParseURI(s, policy)
	if err != nil {
		panic(err)
	}
	return u
}

func (policy URIPolicy) String() string {
	switch policy {
	case Relaxed:
		return "relaxed"
	case Strict:
		return "strict"
	}
	return fmt.Sprintf("URIPolicy(%d)", int(policy))
}

// UnmarshalText lets the policy be set from configuration files.
func (policy *URIPolicy) UnmarshalText(text []byte) error {
	switch string(text) {
	case "", "relaxed":
		*policy = Relaxed
	case "strict":
		*policy = Strict
	default:
		return fmt.Errorf("unknown URI policy %q", text)
	}
	return nil
}

const (
	// --- Interactions ---

	// Peer provided an incorrect URI for any URI-based attribute of WAMP message,
	// such as realm, topic or procedure.
	ErrInvalidUri = URI("wamp.error.invalid_uri")

	// A Dealer could not perform a call, since no procedure is currently
	// registered under the given URI.
	ErrNoSuchProcedure = URI("wamp.error.no_such_procedure")

	// A procedure could not be registered, since a procedure with the given URI
	// is already registered.
	ErrProcedureAlreadyExists = URI("wamp.error.procedure_already_exists")

	// A Dealer could not perform an unregister, since the given registration is
	// not active.
	ErrNoSuchRegistration = URI("wamp.error.no_such_registration")

	// A call failed, since the given argument types or values are not acceptable
	// to the called procedure.
	ErrInvalidArgument = URI("wamp.error.invalid_argument")

	// --- Session Close ---

	// The Peer is shutting down completely - used as a GOODBYE (or ABORT) reason.
	ErrSystemShutdown = URI("wamp.error.system_shutdown")

	// The Peer wants to leave the realm - used as a GOODBYE reason.
	ErrCloseRealm = URI("wamp.close.close_realm")

	// A Peer acknowledges ending of a session - used as a GOODBYE reply reason.
	ErrGoodbyeAndOut = URI("wamp.close.goodbye_and_out")

	// --- Authorization ---

	// A join, call, register, publish or subscribe failed, since the Peer is not
	// authorized to perform the operation.
	ErrNotAuthorized = URI("wamp.error.not_authorized")

	// Peer wanted to join a non-existing realm.
	ErrNoSuchRealm = URI("wamp.error.no_such_realm")
)
