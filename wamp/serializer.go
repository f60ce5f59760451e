package wamp

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"reflect"

	"github.com/fxamacker/cbor/v2"
	"github.com/ugorji/go/codec"
)

// Serialization indicates the data serialization format used in a WAMP session
type Serialization int

const (
	// Use JSON-encoded strings as a payload.
	JSON Serialization = iota
	// Use msgpack-encoded strings as a payload.
	MSGPACK
	// Use CBOR-encoded strings as a payload.
	CBOR
)

const (
	jsonWebsocketProtocol    = "wamp.2.json"
	msgpackWebsocketProtocol = "wamp.2.msgpack"
	cborWebsocketProtocol    = "wamp.2.cbor"
)

func (s Serialization) String() string {
	switch s {
	case JSON:
		return "json"
	case MSGPACK:
		return "msgpack"
	case CBOR:
		return "cbor"
	}
	return fmt.Sprintf("Serialization(%d)", int(s))
}

// UnmarshalText lets the serialization be chosen by name in configuration.
func (s *Serialization) UnmarshalText(text []byte) error {
	switch string(text) {
	case "", "json":
		*s = JSON
	case "msgpack":
		*s = MSGPACK
	case "cbor":
		*s = CBOR
	default:
		return fmt.Errorf("unsupported serialization %q", text)
	}
	return nil
}

// WebsocketProtocol is the websocket subprotocol announcing s.
func (s Serialization) WebsocketProtocol() string {
	switch s {
	case MSGPACK:
		return msgpackWebsocketProtocol
	case CBOR:
		return cborWebsocketProtocol
	default:
		return jsonWebsocketProtocol
	}
}

// RawSocketID is the serializer number sent in the rawsocket handshake.
func (s Serialization) RawSocketID() byte {
	switch s {
	case MSGPACK:
		return 2
	case CBOR:
		return 3
	default:
		return 1
	}
}

// Binary reports whether payloads of s go in binary frames.
func (s Serialization) Binary() bool {
	return s != JSON
}

// Serializer is the interface implemented by an object that can turn a wire
// array into bytes and bytes back into a Value.
type Serializer interface {
	Serialize(List) ([]byte, error)
	Deserialize([]byte) (Value, error)
}

// NewSerializer returns the Serializer for s.
func NewSerializer(s Serialization) (Serializer, error) {
	switch s {
	case JSON:
		return new(JSONSerializer), nil
	case MSGPACK:
		return NewMessagePackSerializer(), nil
	case CBOR:
		return NewCBORSerializer()
	default:
		return nil, fmt.Errorf("Unsupported serialization: %v", s)
	}
}

// JSONSerializer is an implementation of Serializer that handles serializing
// and deserializing JSON encoded payloads.
type JSONSerializer struct {
}

// Serialize marshals the payload into a message.
func (s *JSONSerializer) Serialize(msg List) ([]byte, error) {
	return json.Marshal(Raw(msg))
}

// Deserialize unmarshals the payload into a value. Numbers are kept as
// json.Number so that negative and floating point values are rejected
// instead of rounded.
func (s *JSONSerializer) Deserialize(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("trailing data after JSON value")
	}
	return ValueOf(v)
}

// MessagePackSerializer is an implementation of Serializer that handles
// serializing and deserializing msgpack encoded payloads.
type MessagePackSerializer struct {
	handle *codec.MsgpackHandle
}

func NewMessagePackSerializer() *MessagePackSerializer {
	h := new(codec.MsgpackHandle)
	h.RawToString = true
	h.WriteExt = true
	h.MapType = reflect.TypeOf(map[string]interface{}(nil))
	return &MessagePackSerializer{handle: h}
}

// Serialize encodes a wire array into a msgpack payload.
func (s *MessagePackSerializer) Serialize(msg List) ([]byte, error) {
	var b []byte
	return b, codec.NewEncoderBytes(&b, s.handle).Encode(Raw(msg))
}

// Deserialize decodes a msgpack payload into a Value.
func (s *MessagePackSerializer) Deserialize(data []byte) (Value, error) {
	var v interface{}
	if err := codec.NewDecoderBytes(data, s.handle).Decode(&v); err != nil {
		return nil, err
	}
	return ValueOf(v)
}

// CBORSerializer is an implementation of Serializer that handles
// serializing and deserializing CBOR encoded payloads.
type CBORSerializer struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

func NewCBORSerializer() (*CBORSerializer, error) {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		return nil, err
	}
	dm, err := cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]interface{}(nil)),
	}.DecMode()
	if err != nil {
		return nil, err
	}
	return &CBORSerializer{enc: em, dec: dm}, nil
}

// Serialize encodes a wire array into a CBOR payload.
func (s *CBORSerializer) Serialize(msg List) ([]byte, error) {
	return s.enc.Marshal(Raw(msg))
}

// Deserialize decodes a CBOR payload into a Value.
func (s *CBORSerializer) Deserialize(data []byte) (Value, error) {
	var v interface{}
	if err := s.dec.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return ValueOf(v)
}
