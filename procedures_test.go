package wampclient

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/frol/wampclient/wamp"
)

func TestProcedureTable(t *testing.T) {
	table := newProcedureTable()
	_, ok := table.get(1)
	assert.False(t, ok)

	table.add(1, func(ctx context.Context, inv *wamp.Invocation) *CallResult {
		return ValueResult(wamp.String("one"))
	})
	h, ok := table.get(1)
	assert.True(t, ok)
	assert.Equal(t, wamp.List{wamp.String("one")}, h(context.Background(), &wamp.Invocation{}).args)

	assert.True(t, table.add(1, nil), "a second add reports the replacement")

	assert.True(t, table.remove(1))
	assert.False(t, table.remove(1))
	assert.Zero(t, table.size())
}

func TestProcedureTableHandlerCanUseTable(t *testing.T) {
	table := newProcedureTable()
	// a handler touching the table must not deadlock: get releases the lock
	table.add(1, func(ctx context.Context, inv *wamp.Invocation) *CallResult {
		table.add(2, nil)
		return nil
	})
	h, _ := table.get(1)
	h(context.Background(), &wamp.Invocation{})
	assert.Equal(t, 2, table.size())
}

func TestProcedureTableConcurrent(t *testing.T) {
	table := newProcedureTable()
	var wg sync.WaitGroup
	for i := 1; i <= 100; i++ {
		wg.Add(2)
		id := wamp.RouterID(i)
		go func() {
			defer wg.Done()
			table.add(id, func(ctx context.Context, inv *wamp.Invocation) *CallResult { return nil })
		}()
		go func() {
			defer wg.Done()
			table.get(id)
		}()
	}
	wg.Wait()
	assert.Equal(t, 100, table.size())
}
