package wamp

import (
	"fmt"
	"math"
	"reflect"
	"strings"
)

var (
	dictType = reflect.TypeOf(Dict(nil))
	listType = reflect.TypeOf(List(nil))

	globalIDType  = reflect.TypeOf(GlobalID(0))
	routerIDType  = reflect.TypeOf(RouterID(0))
	sessionIDType = reflect.TypeOf(SessionID(0))
)

// ToList converts a message into its wire array: the message code followed by
// its fields in protocol order.
//
// The first nil `omitempty` field ends the array, so ArgumentsKw is never
// sent without Arguments.
func ToList(msg Message) List {
	val := reflect.ValueOf(msg)
	if val.Kind() == reflect.Ptr {
		val = val.Elem()
	}

	ret := List{Integer(msg.MessageType())}
	for i := 0; i < val.NumField(); i++ {
		tag := val.Type().Field(i).Tag.Get("wamp")
		if strings.Contains(tag, "omitempty") && val.Field(i).IsNil() {
			break
		}
		ret = append(ret, fieldValue(val.Field(i)))
	}
	return ret
}

func fieldValue(f reflect.Value) Value {
	switch f.Type() {
	case dictType:
		if f.IsNil() {
			return Dict{}
		}
		return f.Interface().(Dict)
	case listType:
		if f.IsNil() {
			return List{}
		}
		return f.Interface().(List)
	}
	switch f.Kind() {
	case reflect.Uint64:
		return Integer(f.Uint())
	case reflect.Int:
		return Integer(f.Int())
	case reflect.String:
		return String(f.String())
	}
	panic(fmt.Sprintf("wamp: unsupported message field type %s", f.Type()))
}

// ParseEnvelope checks that v is a list led by a non-negative integer code
// and splits it into the code and the remaining fields.
func ParseEnvelope(v Value) (MessageType, List, error) {
	arr, ok := v.(List)
	if !ok {
		return 0, nil, fmt.Errorf("%w: expected list, got %s", ErrInvalidEnvelope, kindOf(v))
	}
	if len(arr) == 0 {
		return 0, nil, fmt.Errorf("%w: empty list", ErrInvalidEnvelope)
	}
	code, ok := arr[0].(Integer)
	if !ok {
		return 0, nil, fmt.Errorf("%w: message code is %s, not integer", ErrInvalidEnvelope, kindOf(arr[0]))
	}
	if uint64(code) > math.MaxInt32 {
		return 0, nil, fmt.Errorf("%w: message code %d out of range", ErrInvalidEnvelope, uint64(code))
	}
	return MessageType(code), arr[1:], nil
}

// DecodeRouterMessage builds the typed router message for mt from its
// positional fields (the envelope without the code).
func DecodeRouterMessage(mt MessageType, fields List) (RouterMessage, error) {
	msg := mt.newRouterMessage()
	if msg == nil {
		return nil, fmt.Errorf("%w: %d", ErrUnknownMessageType, int(mt))
	}
	if err := apply(msg, fields); err != nil {
		return nil, err
	}
	return msg, nil
}

// DecodeClientMessage is the counterpart of DecodeRouterMessage for messages
// sent by clients. Routers and test doubles use it.
func DecodeClientMessage(mt MessageType, fields List) (ClientMessage, error) {
	msg := mt.newClientMessage()
	if msg == nil {
		return nil, fmt.Errorf("%w: %d", ErrUnknownMessageType, int(mt))
	}
	if err := apply(msg, fields); err != nil {
		return nil, err
	}
	return msg, nil
}

func (mt MessageType) newClientMessage() ClientMessage {
	switch mt {
	case HELLO:
		return new(Hello)
	case AUTHENTICATE:
		return new(Authenticate)
	case GOODBYE:
		return new(Goodbye)
	case ERROR:
		return new(InvocationError)
	case PUBLISH:
		return new(Publish)
	case SUBSCRIBE:
		return new(Subscribe)
	case UNSUBSCRIBE:
		return new(Unsubscribe)
	case CALL:
		return new(Call)
	case REGISTER:
		return new(Register)
	case UNREGISTER:
		return new(Unregister)
	case YIELD:
		return new(Yield)
	default:
		return nil
	}
}

// applies a list of values from a WAMP message to a message type, checking
// arity and the type of every field
func apply(msg Message, fields List) error {
	val := reflect.ValueOf(msg).Elem()
	typ := val.Type()

	required := 0
	for i := 0; i < typ.NumField(); i++ {
		if !strings.Contains(typ.Field(i).Tag.Get("wamp"), "omitempty") {
			required = i + 1
		}
	}
	if len(fields) < required || len(fields) > typ.NumField() {
		return &DecodeError{
			Type:   msg.MessageType(),
			Reason: fmt.Sprintf("expected %d to %d fields, got %d", required, typ.NumField(), len(fields)),
		}
	}

	for i, field := range fields {
		if err := setField(val.Field(i), field); err != nil {
			return &DecodeError{Type: msg.MessageType(), Field: i + 1, Reason: err.Error()}
		}
	}
	return nil
}

func setField(f reflect.Value, v Value) error {
	switch f.Type() {
	case dictType:
		d, ok := v.(Dict)
		if !ok {
			return fmt.Errorf("expected dict, got %s", kindOf(v))
		}
		f.Set(reflect.ValueOf(d))
		return nil
	case listType:
		l, ok := v.(List)
		if !ok {
			return fmt.Errorf("expected list, got %s", kindOf(v))
		}
		f.Set(reflect.ValueOf(l))
		return nil
	}

	switch f.Kind() {
	case reflect.Uint64:
		i, ok := v.(Integer)
		if !ok {
			return fmt.Errorf("expected id, got %s", kindOf(v))
		}
		if uint64(i) > MaxID {
			return fmt.Errorf("id %d exceeds 2^53", uint64(i))
		}
		f.Set(taggedID(f.Type(), uint64(i)))
	case reflect.Int:
		i, ok := v.(Integer)
		if !ok {
			return fmt.Errorf("expected integer, got %s", kindOf(v))
		}
		if uint64(i) > math.MaxInt32 {
			return fmt.Errorf("integer %d out of range", uint64(i))
		}
		f.SetInt(int64(i))
	case reflect.String:
		s, ok := v.(String)
		if !ok {
			return fmt.Errorf("expected string, got %s", kindOf(v))
		}
		if f.Type() == reflect.TypeOf(URI("")) && s == "" {
			return fmt.Errorf("empty URI")
		}
		f.SetString(string(s))
	default:
		return fmt.Errorf("unsupported field type %s", f.Type())
	}
	return nil
}

// taggedID tags a wire id with the scope of the field receiving it.
func taggedID(t reflect.Type, v uint64) reflect.Value {
	switch t {
	case globalIDType:
		return reflect.ValueOf(GlobalIDFromRaw(v))
	case routerIDType:
		return reflect.ValueOf(RouterIDFromRaw(v))
	case sessionIDType:
		return reflect.ValueOf(SessionIDFromRaw(v))
	}
	return reflect.ValueOf(v).Convert(t)
}
