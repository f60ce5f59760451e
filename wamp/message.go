package wamp

import "fmt"

// Message is a generic container for a WAMP message.
type Message interface {
	MessageType() MessageType
}

// ClientMessage is a message this peer can send to a router.
type ClientMessage interface {
	Message
	clientMessage()
}

// RouterMessage is a message this peer can receive from a router.
type RouterMessage interface {
	Message
	routerMessage()
}

type MessageType int

const (
	HELLO        MessageType = 1
	WELCOME      MessageType = 2
	ABORT        MessageType = 3
	CHALLENGE    MessageType = 4
	AUTHENTICATE MessageType = 5
	GOODBYE      MessageType = 6
	ERROR        MessageType = 8

	PUBLISH   MessageType = 16 //	Tx 	Rx
	PUBLISHED MessageType = 17 //	Rx 	Tx

	SUBSCRIBE    MessageType = 32 //	Rx 	Tx
	SUBSCRIBED   MessageType = 33 //	Tx 	Rx
	UNSUBSCRIBE  MessageType = 34 //	Rx 	Tx
	UNSUBSCRIBED MessageType = 35 //	Tx 	Rx
	EVENT        MessageType = 36 //	Tx 	Rx

	CALL   MessageType = 48 //	Tx 	Rx
	RESULT MessageType = 50 //	Rx 	Tx

	REGISTER     MessageType = 64 //	Rx 	Tx
	REGISTERED   MessageType = 65 //	Tx 	Rx
	UNREGISTER   MessageType = 66 //	Rx 	Tx
	UNREGISTERED MessageType = 67 //	Tx 	Rx
	INVOCATION   MessageType = 68 //	Tx 	Rx
	YIELD        MessageType = 70 //	Rx 	Tx
)

// RouterMessageTypes lists every message type a router may send to a client.
var RouterMessageTypes = []MessageType{
	WELCOME, ABORT, CHALLENGE, GOODBYE, ERROR,
	SUBSCRIBED, UNSUBSCRIBED, EVENT, PUBLISHED,
	REGISTERED, UNREGISTERED, INVOCATION, RESULT,
}

// newRouterMessage returns an empty router message of type mt, or nil if mt
// is not something a router sends.
func (mt MessageType) newRouterMessage() RouterMessage {
	switch mt {
	case WELCOME:
		return new(Welcome)
	case ABORT:
		return new(Abort)
	case CHALLENGE:
		return new(Challenge)
	case GOODBYE:
		return new(Goodbye)
	case ERROR:
		return new(Error)

	case PUBLISHED:
		return new(Published)

	case SUBSCRIBED:
		return new(Subscribed)
	case UNSUBSCRIBED:
		return new(Unsubscribed)
	case EVENT:
		return new(Event)

	case RESULT:
		return new(Result)

	case REGISTERED:
		return new(Registered)
	case UNREGISTERED:
		return new(Unregistered)
	case INVOCATION:
		return new(Invocation)
	default:
		return nil
	}
}

// Defined reports whether mt is a WAMP code known to this package.
func (mt MessageType) Defined() bool {
	switch mt {
	case HELLO, WELCOME, ABORT, CHALLENGE, AUTHENTICATE, GOODBYE, ERROR,
		PUBLISH, PUBLISHED, SUBSCRIBE, SUBSCRIBED, UNSUBSCRIBE, UNSUBSCRIBED, EVENT,
		CALL, RESULT, REGISTER, REGISTERED, UNREGISTER, UNREGISTERED, INVOCATION, YIELD:
		return true
	}
	return false
}

func (mt MessageType) String() string {
	switch mt {
	case HELLO:
		return "HELLO"
	case WELCOME:
		return "WELCOME"
	case ABORT:
		return "ABORT"
	case CHALLENGE:
		return "CHALLENGE"
	case AUTHENTICATE:
		return "AUTHENTICATE"
	case GOODBYE:
		return "GOODBYE"
	case ERROR:
		return "ERROR"

	case PUBLISH:
		return "PUBLISH"
	case PUBLISHED:
		return "PUBLISHED"

	case SUBSCRIBE:
		return "SUBSCRIBE"
	case SUBSCRIBED:
		return "SUBSCRIBED"
	case UNSUBSCRIBE:
		return "UNSUBSCRIBE"
	case UNSUBSCRIBED:
		return "UNSUBSCRIBED"
	case EVENT:
		return "EVENT"

	case CALL:
		return "CALL"
	case RESULT:
		return "RESULT"

	case REGISTER:
		return "REGISTER"
	case REGISTERED:
		return "REGISTERED"
	case UNREGISTER:
		return "UNREGISTER"
	case UNREGISTERED:
		return "UNREGISTERED"
	case INVOCATION:
		return "INVOCATION"
	case YIELD:
		return "YIELD"
	default:
		return fmt.Sprintf("MessageType(%d)", int(mt))
	}
}

// --- sent by the client ---

// [HELLO, Realm|uri, Details|dict]
type Hello struct {
	Realm   URI
	Details Dict
}

func (msg *Hello) MessageType() MessageType { return HELLO }

// [AUTHENTICATE, Signature|string, Extra|dict]
type Authenticate struct {
	Signature string
	Extra     Dict
}

func (msg *Authenticate) MessageType() MessageType { return AUTHENTICATE }

// [GOODBYE, Details|dict, Reason|uri]
//
// Goodbye travels in both directions.
type Goodbye struct {
	Details Dict
	Reason  URI
}

func (msg *Goodbye) MessageType() MessageType { return GOODBYE }

// InvocationError is the ERROR a callee sends back instead of a YIELD.
//
// [ERROR, INVOCATION, INVOCATION.Request|id, Details|dict, Error|uri]
// [ERROR, INVOCATION, INVOCATION.Request|id, Details|dict, Error|uri, Arguments|list]
// [ERROR, INVOCATION, INVOCATION.Request|id, Details|dict, Error|uri, Arguments|list, ArgumentsKw|dict]
type InvocationError struct {
	Type        MessageType
	Request     RouterID
	Details     Dict
	Error       URI
	Arguments   List `wamp:"omitempty"`
	ArgumentsKw Dict `wamp:"omitempty"`
}

func (msg *InvocationError) MessageType() MessageType { return ERROR }

// [PUBLISH, Request|id, Options|dict, Topic|uri]
// [PUBLISH, Request|id, Options|dict, Topic|uri, Arguments|list]
// [PUBLISH, Request|id, Options|dict, Topic|uri, Arguments|list, ArgumentsKw|dict]
type Publish struct {
	Request     SessionID
	Options     Dict
	Topic       URI
	Arguments   List `wamp:"omitempty"`
	ArgumentsKw Dict `wamp:"omitempty"`
}

func (msg *Publish) MessageType() MessageType { return PUBLISH }

// [SUBSCRIBE, Request|id, Options|dict, Topic|uri]
type Subscribe struct {
	Request SessionID
	Options Dict
	Topic   URI
}

func (msg *Subscribe) MessageType() MessageType { return SUBSCRIBE }

// [UNSUBSCRIBE, Request|id, SUBSCRIBED.Subscription|id]
type Unsubscribe struct {
	Request      SessionID
	Subscription RouterID
}

func (msg *Unsubscribe) MessageType() MessageType { return UNSUBSCRIBE }

// [CALL, Request|id, Options|dict, Procedure|uri]
// [CALL, Request|id, Options|dict, Procedure|uri, Arguments|list]
// [CALL, Request|id, Options|dict, Procedure|uri, Arguments|list, ArgumentsKw|dict]
type Call struct {
	Request     SessionID
	Options     Dict
	Procedure   URI
	Arguments   List `wamp:"omitempty"`
	ArgumentsKw Dict `wamp:"omitempty"`
}

func (msg *Call) MessageType() MessageType { return CALL }

// [REGISTER, Request|id, Options|dict, Procedure|uri]
type Register struct {
	Request   SessionID
	Options   Dict
	Procedure URI
}

func (msg *Register) MessageType() MessageType { return REGISTER }

// [UNREGISTER, Request|id, REGISTERED.Registration|id]
type Unregister struct {
	Request      SessionID
	Registration RouterID
}

func (msg *Unregister) MessageType() MessageType { return UNREGISTER }

// [YIELD, INVOCATION.Request|id, Options|dict]
// [YIELD, INVOCATION.Request|id, Options|dict, Arguments|list]
// [YIELD, INVOCATION.Request|id, Options|dict, Arguments|list, ArgumentsKw|dict]
type Yield struct {
	Request     RouterID
	Options     Dict
	Arguments   List `wamp:"omitempty"`
	ArgumentsKw Dict `wamp:"omitempty"`
}

func (msg *Yield) MessageType() MessageType { return YIELD }

func (*Hello) clientMessage()           {}
func (*Authenticate) clientMessage()    {}
func (*Goodbye) clientMessage()         {}
func (*InvocationError) clientMessage() {}
func (*Publish) clientMessage()         {}
func (*Subscribe) clientMessage()       {}
func (*Unsubscribe) clientMessage()     {}
func (*Call) clientMessage()            {}
func (*Register) clientMessage()        {}
func (*Unregister) clientMessage()      {}
func (*Yield) clientMessage()           {}

// --- sent by the router ---

// [WELCOME, Session|id, Details|dict]
type Welcome struct {
	Session GlobalID
	Details Dict
}

func (msg *Welcome) MessageType() MessageType { return WELCOME }

// [ABORT, Details|dict, Reason|uri]
type Abort struct {
	Details Dict
	Reason  URI
}

func (msg *Abort) MessageType() MessageType { return ABORT }

// [CHALLENGE, AuthMethod|string, Extra|dict]
type Challenge struct {
	AuthMethod string
	Extra      Dict
}

func (msg *Challenge) MessageType() MessageType { return CHALLENGE }

// [ERROR, REQUEST.Type|int, REQUEST.Request|id, Details|dict, Error|uri]
// [ERROR, REQUEST.Type|int, REQUEST.Request|id, Details|dict, Error|uri, Arguments|list]
// [ERROR, REQUEST.Type|int, REQUEST.Request|id, Details|dict, Error|uri, Arguments|list, ArgumentsKw|dict]
type Error struct {
	Type        MessageType
	Request     SessionID
	Details     Dict
	Error       URI
	Arguments   List `wamp:"omitempty"`
	ArgumentsKw Dict `wamp:"omitempty"`
}

func (msg *Error) MessageType() MessageType { return ERROR }

// [PUBLISHED, PUBLISH.Request|id, Publication|id]
type Published struct {
	Request     SessionID
	Publication GlobalID
}

func (msg *Published) MessageType() MessageType { return PUBLISHED }

// [SUBSCRIBED, SUBSCRIBE.Request|id, Subscription|id]
type Subscribed struct {
	Request      SessionID
	Subscription RouterID
}

func (msg *Subscribed) MessageType() MessageType { return SUBSCRIBED }

// [UNSUBSCRIBED, UNSUBSCRIBE.Request|id]
type Unsubscribed struct {
	Request SessionID
}

func (msg *Unsubscribed) MessageType() MessageType { return UNSUBSCRIBED }

// [EVENT, SUBSCRIBED.Subscription|id, PUBLISHED.Publication|id, Details|dict]
// [EVENT, SUBSCRIBED.Subscription|id, PUBLISHED.Publication|id, Details|dict, PUBLISH.Arguments|list]
// [EVENT, SUBSCRIBED.Subscription|id, PUBLISHED.Publication|id, Details|dict, PUBLISH.Arguments|list, PUBLISH.ArgumentsKw|dict]
type Event struct {
	Subscription RouterID
	Publication  GlobalID
	Details      Dict
	Arguments    List `wamp:"omitempty"`
	ArgumentsKw  Dict `wamp:"omitempty"`
}

func (msg *Event) MessageType() MessageType { return EVENT }

// [RESULT, CALL.Request|id, Details|dict]
// [RESULT, CALL.Request|id, Details|dict, YIELD.Arguments|list]
// [RESULT, CALL.Request|id, Details|dict, YIELD.Arguments|list, YIELD.ArgumentsKw|dict]
type Result struct {
	Request     SessionID
	Details     Dict
	Arguments   List `wamp:"omitempty"`
	ArgumentsKw Dict `wamp:"omitempty"`
}

func (msg *Result) MessageType() MessageType { return RESULT }

// [REGISTERED, REGISTER.Request|id, Registration|id]
type Registered struct {
	Request      SessionID
	Registration RouterID
}

func (msg *Registered) MessageType() MessageType { return REGISTERED }

// [UNREGISTERED, UNREGISTER.Request|id]
type Unregistered struct {
	Request SessionID
}

func (msg *Unregistered) MessageType() MessageType { return UNREGISTERED }

// [INVOCATION, Request|id, REGISTERED.Registration|id, Details|dict]
// [INVOCATION, Request|id, REGISTERED.Registration|id, Details|dict, CALL.Arguments|list]
// [INVOCATION, Request|id, REGISTERED.Registration|id, Details|dict, CALL.Arguments|list, CALL.ArgumentsKw|dict]
type Invocation struct {
	Request      RouterID
	Registration RouterID
	Details      Dict
	Arguments    List `wamp:"omitempty"`
	ArgumentsKw  Dict `wamp:"omitempty"`
}

func (msg *Invocation) MessageType() MessageType { return INVOCATION }

func (*Welcome) routerMessage()      {}
func (*Abort) routerMessage()        {}
func (*Challenge) routerMessage()    {}
func (*Goodbye) routerMessage()      {}
func (*Error) routerMessage()        {}
func (*Published) routerMessage()    {}
func (*Subscribed) routerMessage()   {}
func (*Unsubscribed) routerMessage() {}
func (*Event) routerMessage()        {}
func (*Result) routerMessage()       {}
func (*Registered) routerMessage()   {}
func (*Unregistered) routerMessage() {}
func (*Invocation) routerMessage()   {}
