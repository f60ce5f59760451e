package wamp

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
)

// Value is any value that can travel in a WAMP payload: a non-negative
// integer, a string, a boolean, a list or a string-keyed dictionary.
//
// There is no null and no signed or floating point number.
type Value interface {
	isValue()
}

// Integer is a non-negative WAMP integer.
type Integer uint64

// String is a UTF-8 WAMP string.
type String string

// Bool is a WAMP boolean.
type Bool bool

// List is an ordered list of values.
type List []Value

// Dict is a string-to-value mapping.
type Dict map[string]Value

func (Integer) isValue() {}
func (String) isValue()  {}
func (Bool) isValue()    {}
func (List) isValue()    {}
func (Dict) isValue()    {}

// AsInteger returns v as an integer if it is one.
func AsInteger(v Value) (uint64, bool) {
	i, ok := v.(Integer)
	return uint64(i), ok
}

// AsString returns v as a string if it is one.
func AsString(v Value) (string, bool) {
	s, ok := v.(String)
	return string(s), ok
}

// AsBool returns v as a boolean if it is one.
func AsBool(v Value) (bool, bool) {
	b, ok := v.(Bool)
	return bool(b), ok
}

// AsList returns v as a list if it is one.
func AsList(v Value) (List, bool) {
	l, ok := v.(List)
	return l, ok
}

// AsDict returns v as a dictionary if it is one.
func AsDict(v Value) (Dict, bool) {
	d, ok := v.(Dict)
	return d, ok
}

// A ConversionError is returned when a generic value cannot be represented as
// a Value.
type ConversionError struct {
	// Path locates the offending value, e.g. "[3].roles.callee".
	Path   string
	Reason string
}

func (e *ConversionError) Error() string {
	if e.Path == "" {
		return "wamp: cannot convert value: " + e.Reason
	}
	return fmt.Sprintf("wamp: cannot convert value at %s: %s", e.Path, e.Reason)
}

// ValueOf converts the output of a generic decoder (encoding/json with
// UseNumber, msgpack, cbor) into a Value.
//
// nil, negative and floating point numbers are rejected with a
// *ConversionError; nothing is coerced.
func ValueOf(v interface{}) (Value, error) {
	return valueOf(v, "")
}

func valueOf(v interface{}, path string) (Value, error) {
	switch x := v.(type) {
	case nil:
		return nil, &ConversionError{path, "null is not supported"}
	case Value:
		return x, nil
	case bool:
		return Bool(x), nil
	case string:
		return String(x), nil
	case []byte:
		return String(x), nil
	case json.Number:
		u, err := strconv.ParseUint(string(x), 10, 64)
		if err != nil {
			return nil, &ConversionError{path, "negative or floating point number " + string(x) + " is not supported"}
		}
		return Integer(u), nil
	case float32, float64:
		return nil, &ConversionError{path, fmt.Sprintf("floating point number %v is not supported", x)}
	case []interface{}:
		l := make(List, len(x))
		for i, e := range x {
			val, err := valueOf(e, fmt.Sprintf("%s[%d]", path, i))
			if err != nil {
				return nil, err
			}
			l[i] = val
		}
		return l, nil
	case map[string]interface{}:
		d := make(Dict, len(x))
		for k, e := range x {
			val, err := valueOf(e, path+"."+k)
			if err != nil {
				return nil, err
			}
			d[k] = val
		}
		return d, nil
	case map[interface{}]interface{}:
		d := make(Dict, len(x))
		for k, e := range x {
			key, ok := stringKey(k)
			if !ok {
				return nil, &ConversionError{path, fmt.Sprintf("dictionary key %v (%T) is not a string", k, k)}
			}
			val, err := valueOf(e, path+"."+key)
			if err != nil {
				return nil, err
			}
			d[key] = val
		}
		return d, nil
	}

	// remaining integer kinds from msgpack and cbor decoders
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if rv.Int() < 0 {
			return nil, &ConversionError{path, fmt.Sprintf("negative number %d is not supported", rv.Int())}
		}
		return Integer(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return Integer(rv.Uint()), nil
	}
	return nil, &ConversionError{path, fmt.Sprintf("unsupported type %T", v)}
}

func stringKey(k interface{}) (string, bool) {
	switch s := k.(type) {
	case string:
		return s, true
	case []byte:
		return string(s), true
	}
	return "", false
}

// Raw converts a Value into plain Go values (uint64, string, bool,
// []interface{}, map[string]interface{}) suitable for any encoder.
func Raw(v Value) interface{} {
	switch x := v.(type) {
	case Integer:
		return uint64(x)
	case String:
		return string(x)
	case Bool:
		return bool(x)
	case List:
		l := make([]interface{}, len(x))
		for i, e := range x {
			l[i] = Raw(e)
		}
		return l
	case Dict:
		d := make(map[string]interface{}, len(x))
		for k, e := range x {
			d[k] = Raw(e)
		}
		return d
	}
	return nil
}
