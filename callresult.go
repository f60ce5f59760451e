package wampclient

import "github.com/frol/wampclient/wamp"

// CallResult represents the result of an INVOCATION: the payload of a YIELD,
// or of an ERROR when err is set.
type CallResult struct {
	args   wamp.List
	kwargs wamp.Dict
	err    wamp.URI
}

func ValueResult(value wamp.Value) *CallResult {
	return &CallResult{args: wamp.List{value}}
}

func SliceResult(slice wamp.List) *CallResult {
	return &CallResult{args: slice}
}

func MapResult(mapValue wamp.Dict) *CallResult {
	return &CallResult{kwargs: mapValue}
}

func SimpleErrorResult(err wamp.URI) *CallResult {
	return &CallResult{err: err}
}

func ErrorResult(err wamp.URI, args wamp.List, kwargs wamp.Dict) *CallResult {
	return &CallResult{
		args:   args,
		kwargs: kwargs,
		err:    err,
	}
}

// reply builds the message answering the invocation request.
func (r *CallResult) reply(request wamp.RouterID) wamp.ClientMessage {
	if r == nil {
		return &wamp.Yield{Request: request, Options: wamp.Dict{}}
	}
	args := r.args
	if args == nil && r.kwargs != nil {
		args = wamp.List{}
	}
	if r.err != "" {
		return &wamp.InvocationError{
			Type:        wamp.INVOCATION,
			Request:     request,
			Details:     wamp.Dict{},
			Error:       r.err,
			Arguments:   args,
			ArgumentsKw: r.kwargs,
		}
	}
	return &wamp.Yield{
		Request:     request,
		Options:     wamp.Dict{},
		Arguments:   args,
		ArgumentsKw: r.kwargs,
	}
}
