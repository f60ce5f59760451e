package wampclient

import (
	"fmt"
	"sync"

	"github.com/frol/wampclient/wamp"
)

// outcomes delivered to a waiting request. Exactly one is delivered per
// request, on a channel with room for it, so delivery never blocks.

type registrationOutcome struct {
	registration wamp.RouterID
	err          error
}

type callOutcome struct {
	result *wamp.Result
	err    error
}

type pendingRegistration struct {
	done    chan registrationOutcome
	handler InvocationHandler
}

type pendingCall struct {
	done chan callOutcome
}

type pendingUnregistration struct {
	registration wamp.RouterID
	done         chan error
}

// pendingRequests correlates requests sent to the router with their replies.
//
// Each kind of request lives in its own map behind its own lock so calls and
// registrations never contend. An entry is removed exactly once: by its
// reply, by an ERROR, by cancellation or by session teardown, whichever comes
// first, and only the remover delivers the outcome.
type pendingRequests struct {
	regMu         sync.Mutex
	registrations map[wamp.SessionID]*pendingRegistration

	callMu sync.Mutex
	calls  map[wamp.SessionID]*pendingCall

	unregMu         sync.Mutex
	unregistrations map[wamp.SessionID]*pendingUnregistration

	// set once by closeAll; later adds fail with it
	closeMu sync.RWMutex
	closed  error
}

func newPendingRequests() *pendingRequests {
	return &pendingRequests{
		registrations:   make(map[wamp.SessionID]*pendingRegistration),
		calls:           make(map[wamp.SessionID]*pendingCall),
		unregistrations: make(map[wamp.SessionID]*pendingUnregistration),
	}
}

// Ids come from a monotonic allocator, so a duplicate means two requests
// were minted from the same id: a programming error.
func duplicate(kind string, id wamp.SessionID) string {
	return fmt.Sprintf("wampclient: duplicate pending %s %v", kind, id)
}

func (p *pendingRequests) addRegistration(id wamp.SessionID, handler InvocationHandler) (<-chan registrationOutcome, error) {
	p.closeMu.RLock()
	defer p.closeMu.RUnlock()
	if p.closed != nil {
		return nil, p.closed
	}

	p.regMu.Lock()
	defer p.regMu.Unlock()
	if _, ok := p.registrations[id]; ok {
		panic(duplicate("registration", id))
	}
	reg := &pendingRegistration{done: make(chan registrationOutcome, 1), handler: handler}
	p.registrations[id] = reg
	pendingGauge.WithLabelValues("registration").Inc()
	return reg.done, nil
}

// resolveRegistration removes the pending registration id, hands its handler
// to publish and then completes it. It reports false if nothing was pending.
// publish runs after regMu is released.
func (p *pendingRequests) resolveRegistration(id wamp.SessionID, registration wamp.RouterID, publish func(wamp.RouterID, InvocationHandler)) bool {
	p.regMu.Lock()
	reg, ok := p.registrations[id]
	if ok {
		delete(p.registrations, id)
		pendingGauge.WithLabelValues("registration").Dec()
	}
	p.regMu.Unlock()
	if !ok {
		return false
	}
	publish(registration, reg.handler)
	reg.done <- registrationOutcome{registration: registration}
	return true
}

func (p *pendingRequests) failRegistration(id wamp.SessionID, err error) bool {
	p.regMu.Lock()
	defer p.regMu.Unlock()
	reg, ok := p.registrations[id]
	if !ok {
		return false
	}
	delete(p.registrations, id)
	pendingGauge.WithLabelValues("registration").Dec()
	reg.done <- registrationOutcome{err: err}
	return true
}

// cancelRegistration drops an entry whose waiter gave up. It reports false
// if a reply already claimed the entry.
func (p *pendingRequests) cancelRegistration(id wamp.SessionID) bool {
	p.regMu.Lock()
	defer p.regMu.Unlock()
	if _, ok := p.registrations[id]; !ok {
		return false
	}
	delete(p.registrations, id)
	pendingGauge.WithLabelValues("registration").Dec()
	return true
}

func (p *pendingRequests) addCall(id wamp.SessionID) (<-chan callOutcome, error) {
	p.closeMu.RLock()
	defer p.closeMu.RUnlock()
	if p.closed != nil {
		return nil, p.closed
	}

	p.callMu.Lock()
	defer p.callMu.Unlock()
	if _, ok := p.calls[id]; ok {
		panic(duplicate("call", id))
	}
	call := &pendingCall{done: make(chan callOutcome, 1)}
	p.calls[id] = call
	pendingGauge.WithLabelValues("call").Inc()
	return call.done, nil
}

func (p *pendingRequests) resolveCall(id wamp.SessionID, result *wamp.Result) bool {
	return p.completeCall(id, callOutcome{result: result})
}

func (p *pendingRequests) failCall(id wamp.SessionID, err error) bool {
	return p.completeCall(id, callOutcome{err: err})
}

func (p *pendingRequests) completeCall(id wamp.SessionID, out callOutcome) bool {
	p.callMu.Lock()
	defer p.callMu.Unlock()
	call, ok := p.calls[id]
	if !ok {
		return false
	}
	delete(p.calls, id)
	pendingGauge.WithLabelValues("call").Dec()
	call.done <- out
	return true
}

func (p *pendingRequests) cancelCall(id wamp.SessionID) bool {
	p.callMu.Lock()
	defer p.callMu.Unlock()
	if _, ok := p.calls[id]; !ok {
		return false
	}
	delete(p.calls, id)
	pendingGauge.WithLabelValues("call").Dec()
	return true
}

func (p *pendingRequests) addUnregistration(id wamp.SessionID, registration wamp.RouterID) (<-chan error, error) {
	p.closeMu.RLock()
	defer p.closeMu.RUnlock()
	if p.closed != nil {
		return nil, p.closed
	}

	p.unregMu.Lock()
	defer p.unregMu.Unlock()
	if _, ok := p.unregistrations[id]; ok {
		panic(duplicate("unregistration", id))
	}
	unreg := &pendingUnregistration{registration: registration, done: make(chan error, 1)}
	p.unregistrations[id] = unreg
	pendingGauge.WithLabelValues("unregistration").Inc()
	return unreg.done, nil
}

// resolveUnregistration removes the pending unregistration id, passes its
// registration to remove and then completes it.
func (p *pendingRequests) resolveUnregistration(id wamp.SessionID, remove func(wamp.RouterID)) bool {
	p.unregMu.Lock()
	unreg, ok := p.unregistrations[id]
	if ok {
		delete(p.unregistrations, id)
		pendingGauge.WithLabelValues("unregistration").Dec()
	}
	p.unregMu.Unlock()
	if !ok {
		return false
	}
	remove(unreg.registration)
	unreg.done <- nil
	return true
}

func (p *pendingRequests) failUnregistration(id wamp.SessionID, err error) bool {
	p.unregMu.Lock()
	defer p.unregMu.Unlock()
	unreg, ok := p.unregistrations[id]
	if !ok {
		return false
	}
	delete(p.unregistrations, id)
	pendingGauge.WithLabelValues("unregistration").Dec()
	unreg.done <- err
	return true
}

func (p *pendingRequests) cancelUnregistration(id wamp.SessionID) bool {
	p.unregMu.Lock()
	defer p.unregMu.Unlock()
	if _, ok := p.unregistrations[id]; !ok {
		return false
	}
	delete(p.unregistrations, id)
	pendingGauge.WithLabelValues("unregistration").Dec()
	return true
}

// closeAll fails every pending request with err and makes later adds fail
// too, so no waiter outlives the session.
func (p *pendingRequests) closeAll(err error) {
	p.closeMu.Lock()
	if p.closed == nil {
		p.closed = err
	}
	p.closeMu.Unlock()

	p.regMu.Lock()
	for id, reg := range p.registrations {
		delete(p.registrations, id)
		pendingGauge.WithLabelValues("registration").Dec()
		reg.done <- registrationOutcome{err: err}
	}
	p.regMu.Unlock()

	p.callMu.Lock()
	for id, call := range p.calls {
		delete(p.calls, id)
		pendingGauge.WithLabelValues("call").Dec()
		call.done <- callOutcome{err: err}
	}
	p.callMu.Unlock()

	p.unregMu.Lock()
	for id, unreg := range p.unregistrations {
		delete(p.unregistrations, id)
		pendingGauge.WithLabelValues("unregistration").Dec()
		unreg.done <- err
	}
	p.unregMu.Unlock()
}

func (p *pendingRequests) counts() (registrations, calls, unregistrations int) {
	p.regMu.Lock()
	registrations = len(p.registrations)
	p.regMu.Unlock()
	p.callMu.Lock()
	calls = len(p.calls)
	p.callMu.Unlock()
	p.unregMu.Lock()
	unregistrations = len(p.unregistrations)
	p.unregMu.Unlock()
	return
}
