package wampclient

import (
	"context"
	"sync"

	"github.com/frol/wampclient/wamp"
)

// InvocationHandler is an RPC endpoint. It runs on its own goroutine for
// every INVOCATION of the registration it was registered with; ctx is
// cancelled when the session ends.
type InvocationHandler func(ctx context.Context, inv *wamp.Invocation) *CallResult

// procedureTable maps router-assigned registration ids to handlers.
type procedureTable struct {
	mu       sync.RWMutex
	handlers map[wamp.RouterID]InvocationHandler
}

func newProcedureTable() *procedureTable {
	return &procedureTable{handlers: make(map[wamp.RouterID]InvocationHandler)}
}

// add stores handler for id and reports whether it replaced another.
func (t *procedureTable) add(id wamp.RouterID, handler InvocationHandler) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, replaced := t.handlers[id]
	t.handlers[id] = handler
	return replaced
}

// get returns the handler for id. The lock is released before the caller
// runs it.
func (t *procedureTable) get(id wamp.RouterID) (InvocationHandler, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	h, ok := t.handlers[id]
	return h, ok
}

func (t *procedureTable) remove(id wamp.RouterID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.handlers[id]; !ok {
		return false
	}
	delete(t.handlers, id)
	return true
}

func (t *procedureTable) size() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.handlers)
}
