// Package wampclient implements the client side of WAMPv2 - The Web
// Application Messaging Protocol - in the caller and callee roles.
//
// A Client runs one session over a Transport: a websocket (DialWebsocket), a
// rawsocket (DialRawSocket) or an in-process Pipe. Run starts the session's
// goroutines, Join performs the HELLO/WELCOME handshake (answering ticket or
// custom challenges), Register publishes procedures and Call invokes them.
// Messages are encoded with the serializers of package wamp: JSON, msgpack
// or CBOR.
//
// See the official WAMP documentation at http://wamp.ws for more details on the
// protocol.
package wampclient
