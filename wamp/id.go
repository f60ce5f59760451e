package wamp

import (
	"fmt"
	"sync/atomic"
)

// MaxID is the largest id WAMP allows (2^53), so ids survive a round trip
// through IEEE-754 doubles in JSON implementations.
const MaxID uint64 = 1 << 53

// GlobalID is assigned by the router and unique across the whole router,
// e.g. a session or publication id.
type GlobalID uint64

// RouterID is assigned by the router and unique per router-managed resource,
// e.g. a registration or subscription id, or the request id of an
// INVOCATION.
type RouterID uint64

// SessionID is assigned locally and unique per outstanding request on one
// connection.
//
// The three id types share a representation but are distinct types: they
// cannot be compared with, stored alongside, or passed in place of each
// other without an explicit conversion.
type SessionID uint64

// GlobalIDFromRaw tags a router-assigned wire value as a GlobalID.
func GlobalIDFromRaw(v uint64) GlobalID { return GlobalID(v) }

// RouterIDFromRaw tags a router-assigned wire value as a RouterID.
func RouterIDFromRaw(v uint64) RouterID { return RouterID(v) }

// SessionIDFromRaw re-hydrates a SessionID echoed back by the router. It never
// allocates; use an IDAllocator to mint new ids.
func SessionIDFromRaw(v uint64) SessionID { return SessionID(v) }

func (id GlobalID) String() string  { return fmt.Sprintf("global:%d", uint64(id)) }
func (id RouterID) String() string  { return fmt.Sprintf("router:%d", uint64(id)) }
func (id SessionID) String() string { return fmt.Sprintf("session:%d", uint64(id)) }

// IDAllocator mints SessionIDs for one session. It is safe for concurrent
// use.
type IDAllocator struct {
	last atomic.Uint64
}

// NewIDAllocator returns an allocator whose first id is 1.
func NewIDAllocator() *IDAllocator {
	return &IDAllocator{}
}

// NewIDAllocatorFrom returns an allocator whose first id is start. It exists
// so tests can pin the ids a session will use.
func NewIDAllocatorFrom(start uint64) *IDAllocator {
	if start == 0 || start > MaxID {
		panic(fmt.Sprintf("wamp: allocator start %d outside [1, 2^53]", start))
	}
	a := &IDAllocator{}
	a.last.Store(start - 1)
	return a
}

// Next returns the next id. Ids are strictly increasing; running past MaxID
// would make correlation ambiguous and panics.
func (a *IDAllocator) Next() SessionID {
	id := a.last.Add(1)
	if id > MaxID || id == 0 {
		panic("wamp: session id space exhausted")
	}
	return SessionID(id)
}
