package wampclient

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frol/wampclient/wamp"
)

const testTimeout = 5 * time.Second

// stubRouter plays the router end of a Pipe, speaking the client's
// serialization.
type stubRouter struct {
	t          *testing.T
	transport  Transport
	serializer wamp.Serializer
}

func newTestClient(t *testing.T, cfg *Config) (*Client, *stubRouter, <-chan error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	clientSide, routerSide := Pipe()
	c, err := NewClient(clientSide, cfg)
	require.NoError(t, err)
	s, err := wamp.NewSerializer(cfg.Serialization)
	require.NoError(t, err)

	runErr := make(chan error, 1)
	go func() { runErr <- c.Run(context.Background()) }()
	t.Cleanup(func() {
		c.cancel()
		select {
		case <-c.Done():
		case <-time.After(testTimeout):
			t.Error("client did not stop")
		}
	})
	return c, &stubRouter{t: t, transport: routerSide, serializer: s}, runErr
}

func (r *stubRouter) nextFrame() (Frame, error) {
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	return r.transport.ReadFrame(ctx)
}

func (r *stubRouter) next() (wamp.ClientMessage, error) {
	f, err := r.nextFrame()
	if err != nil {
		return nil, err
	}
	v, err := r.serializer.Deserialize(f.Payload)
	if err != nil {
		return nil, err
	}
	mt, fields, err := wamp.ParseEnvelope(v)
	if err != nil {
		return nil, err
	}
	return wamp.DecodeClientMessage(mt, fields)
}

func (r *stubRouter) receive() wamp.ClientMessage {
	msg, err := r.next()
	require.NoError(r.t, err)
	return msg
}

func (r *stubRouter) readPayload() string {
	f, err := r.nextFrame()
	require.NoError(r.t, err)
	return string(f.Payload)
}

func (r *stubRouter) write(f Frame) error {
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	return r.transport.WriteFrame(ctx, f)
}

func (r *stubRouter) deliver(msg wamp.RouterMessage) error {
	b, err := r.serializer.Serialize(wamp.ToList(msg))
	if err != nil {
		return err
	}
	return r.write(Frame{Kind: TextFrame, Payload: b})
}

func (r *stubRouter) send(msg wamp.RouterMessage) {
	require.NoError(r.t, r.deliver(msg))
}

func (r *stubRouter) sendRaw(s string) {
	require.NoError(r.t, r.write(Frame{Kind: TextFrame, Payload: []byte(s)}))
}

// join answers the client's HELLO with a WELCOME.
func (r *stubRouter) join(c *Client) {
	joined := make(chan error, 1)
	go func() {
		_, err := c.Join(context.Background(), "realm1", nil)
		joined <- err
	}()
	_, ok := r.receive().(*wamp.Hello)
	require.True(r.t, ok, "expected HELLO")
	r.send(&wamp.Welcome{Session: 1, Details: wamp.Dict{}})
	require.NoError(r.t, waitErr(joined))
}

// barrier makes a round trip through the dispatcher, so everything the
// router sent before it has been handled when it returns.
func (r *stubRouter) barrier(c *Client) {
	done := make(chan error, 1)
	go func() {
		_, err := c.Call(context.Background(), "test.barrier", nil, nil)
		done <- err
	}()
	call, ok := r.receive().(*wamp.Call)
	require.True(r.t, ok, "expected CALL")
	r.send(&wamp.Result{Request: call.Request, Details: wamp.Dict{}})
	require.NoError(r.t, waitErr(done))
}

func waitErr(ch <-chan error) error {
	select {
	case err := <-ch:
		return err
	case <-time.After(testTimeout):
		return errors.New("timed out")
	}
}

func TestClientSession(t *testing.T) {
	Convey("Joining with ticket authentication, registering and being invoked", t, func() {
		cfg := DefaultConfig()
		cfg.Ticket = "test"
		c, r, runErr := newTestClient(t, cfg)
		ctx := context.Background()

		joined := make(chan error, 1)
		go func() {
			_, err := c.Join(ctx, "realmX", nil)
			joined <- err
		}()

		So(r.readPayload(), ShouldEqual,
			`[1,"realmX",{"agent":"wampclient-0.1.0","roles":{"callee":{},"caller":{},"publisher":{},"subscriber":{}}}]`)
		r.sendRaw(`[4,"ticket",{}]`)
		So(r.readPayload(), ShouldEqual, `[5,"test",{}]`)
		So(c.State(), ShouldEqual, StateAwaitingWelcome)

		r.sendRaw(`[2,1234,{}]`)
		So(waitErr(joined), ShouldBeNil)
		So(c.State(), ShouldEqual, StateEstablished)

		registered := make(chan error, 1)
		var registration wamp.RouterID
		go func() {
			var err error
			registration, err = c.Register(ctx, "com.demo.echo", func(ctx context.Context, inv *wamp.Invocation) *CallResult {
				return ValueResult(wamp.String("resp"))
			})
			registered <- err
		}()
		So(r.readPayload(), ShouldEqual, `[64,1,{},"com.demo.echo"]`)
		r.sendRaw(`[65,1,77]`)
		So(waitErr(registered), ShouldBeNil)
		So(registration, ShouldEqual, wamp.RouterID(77))

		r.sendRaw(`[68,9,77,{}]`)
		So(r.readPayload(), ShouldEqual, `[70,9,{},["resp"]]`)

		called := make(chan error, 1)
		var result *wamp.Result
		go func() {
			var err error
			result, err = c.Call(ctx, "com.demo.echo", wamp.List{wamp.String("hi")}, nil)
			called <- err
		}()
		So(r.readPayload(), ShouldEqual, `[48,2,{},"com.demo.echo",["hi"]]`)
		r.sendRaw(`[50,2,{},["hi"]]`)
		So(waitErr(called), ShouldBeNil)
		So(result.Arguments, ShouldResemble, wamp.List{wamp.String("hi")})

		r.sendRaw(`[6,{},"wamp.close.system_shutdown"]`)
		So(r.readPayload(), ShouldEqual, `[6,{},"wamp.close.goodbye_and_out"]`)
		So(waitErr(runErr), ShouldBeNil)
		So(c.State(), ShouldEqual, StateClosed)
		So(c.Err(), ShouldBeNil)
	})
}

func TestClientHelloDetails(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Roles = []string{RoleCaller}
	cfg.AuthID = "joe"
	cfg.AuthMethods = []string{"ticket"}
	c, r, _ := newTestClient(t, cfg)

	go c.Join(context.Background(), "realm1", wamp.Dict{"agent": wamp.String("custom")})
	assert.Equal(t,
		`[1,"realm1",{"agent":"custom","authid":"joe","authmethods":["ticket"],"roles":{"caller":{}}}]`,
		r.readPayload())
}

func TestConcurrentCalls(t *testing.T) {
	const n = 1000
	c, r, _ := newTestClient(t, nil)
	r.join(c)

	// collect every CALL, then answer in random order echoing the arguments
	routerErr := make(chan error, 1)
	go func() {
		calls := make([]*wamp.Call, 0, n)
		for len(calls) < n {
			msg, err := r.next()
			if err != nil {
				routerErr <- err
				return
			}
			call, ok := msg.(*wamp.Call)
			if !ok {
				routerErr <- fmt.Errorf("expected CALL, got %s", msg.MessageType())
				return
			}
			calls = append(calls, call)
		}
		rand.Shuffle(len(calls), func(i, j int) { calls[i], calls[j] = calls[j], calls[i] })
		for _, call := range calls {
			err := r.deliver(&wamp.Result{Request: call.Request, Details: wamp.Dict{}, Arguments: call.Arguments})
			if err != nil {
				routerErr <- err
				return
			}
		}
		routerErr <- nil
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := c.Call(ctx, "com.demo.echo", wamp.List{wamp.Integer(i)}, nil)
			if err != nil {
				errs <- err
				return
			}
			if len(res.Arguments) != 1 || res.Arguments[0] != wamp.Integer(i) {
				errs <- fmt.Errorf("call %d got %v", i, res.Arguments)
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
	require.NoError(t, waitErr(routerErr))

	regs, calls, unregs := c.pending.counts()
	assert.Zero(t, regs)
	assert.Zero(t, calls)
	assert.Zero(t, unregs)
}

func TestDispatchRouting(t *testing.T) {
	c, r, _ := newTestClient(t, nil)
	r.join(c)

	tests := []struct {
		name    string
		msg     string
		counter func() float64
	}{
		{"duplicate welcome", `[2,5,{}]`, counterOf(messagesTotal.WithLabelValues(directionIn, "WELCOME"))},
		{"late challenge", `[4,"ticket",{}]`, counterOf(messagesTotal.WithLabelValues(directionIn, "CHALLENGE"))},
		{"error without request", `[8,48,4242,{},"wamp.error.no_such_procedure"]`, counterOf(correlationMisses.WithLabelValues("ERROR"))},
		{"error for publish", `[8,16,4242,{},"wamp.error.not_authorized"]`, counterOf(unhandledMessages.WithLabelValues("ERROR"))},
		{"published", `[17,1,2]`, counterOf(unhandledMessages.WithLabelValues("PUBLISHED"))},
		{"subscribed", `[33,1,2]`, counterOf(unhandledMessages.WithLabelValues("SUBSCRIBED"))},
		{"unsubscribed", `[35,1]`, counterOf(unhandledMessages.WithLabelValues("UNSUBSCRIBED"))},
		{"event", `[36,1,2,{}]`, counterOf(unhandledMessages.WithLabelValues("EVENT"))},
		{"result without call", `[50,4242,{}]`, counterOf(correlationMisses.WithLabelValues("RESULT"))},
		{"registered without register", `[65,4242,3]`, counterOf(correlationMisses.WithLabelValues("REGISTERED"))},
		{"unregistered without unregister", `[67,4242]`, counterOf(correlationMisses.WithLabelValues("UNREGISTERED"))},
		{"invocation without handler", `[68,1,3,{}]`, counterOf(correlationMisses.WithLabelValues("INVOCATION"))},
		{"undefined code", `[999,1,2]`, counterOf(unhandledMessages.WithLabelValues(unknownType))},
		{"another undefined code", `[1000,1]`, counterOf(unhandledMessages.WithLabelValues(unknownType))},
	}
	for _, tt := range tests {
		before := tt.counter()
		r.sendRaw(tt.msg)
		r.barrier(c)
		assert.Equal(t, before+1, tt.counter(), tt.name)
	}
	assert.Equal(t, StateEstablished, c.State())
	assert.False(t, unhandledMessages.DeleteLabelValues("MessageType(999)"), "undefined codes get no series of their own")
}

func counterOf(c prometheus.Collector) func() float64 {
	return func() float64 { return testutil.ToFloat64(c) }
}

func TestDecodeFailuresAreDropped(t *testing.T) {
	c, r, _ := newTestClient(t, nil)
	r.join(c)

	tests := []struct {
		payload string
		stage   string
	}{
		{`[65,1`, stageDeserialize},
		{`[65,-1,2]`, stageDeserialize},
		{`{"a":1}`, stageEnvelope},
		{`[]`, stageEnvelope},
		{`["x",1]`, stageEnvelope},
		{`[65,"x",1]`, stageMessage},
		{`[65,1]`, stageMessage},
		{`[50,1,{},[],{},1]`, stageMessage},
	}
	for _, tt := range tests {
		before := testutil.ToFloat64(decodeFailures.WithLabelValues(tt.stage))
		r.sendRaw(tt.payload)
		r.barrier(c)
		assert.Equal(t, before+1, testutil.ToFloat64(decodeFailures.WithLabelValues(tt.stage)), tt.payload)
	}
	assert.Equal(t, StateEstablished, c.State())
}

func TestPingIsAnswered(t *testing.T) {
	_, r, _ := newTestClient(t, nil)

	require.NoError(t, r.write(Frame{Kind: PingFrame, Payload: []byte("abc")}))
	f, err := r.nextFrame()
	require.NoError(t, err)
	assert.Equal(t, PongFrame, f.Kind)
	assert.Equal(t, "abc", string(f.Payload))
}

func TestFatalFrames(t *testing.T) {
	Convey("Given an established session with a call in flight", t, func() {
		c, r, runErr := newTestClient(t, nil)
		r.join(c)

		called := make(chan error, 1)
		go func() {
			_, err := c.Call(context.Background(), "com.demo.echo", nil, nil)
			called <- err
		}()
		_, ok := r.receive().(*wamp.Call)
		So(ok, ShouldBeTrue)

		Convey("A close frame ends the session", func() {
			So(r.write(Frame{Kind: CloseFrame}), ShouldBeNil)
			err := waitErr(runErr)
			So(errors.Is(err, ErrTransportClosed), ShouldBeTrue)
			So(errors.Is(waitErr(called), ErrSessionClosed), ShouldBeTrue)
			So(c.State(), ShouldEqual, StateClosed)
		})

		Convey("An unsolicited pong ends the session", func() {
			So(r.write(Frame{Kind: PongFrame}), ShouldBeNil)
			err := waitErr(runErr)
			So(errors.Is(err, ErrUnsupportedFrame), ShouldBeTrue)
			So(errors.Is(waitErr(called), ErrSessionClosed), ShouldBeTrue)
		})

		Convey("Closing the transport ends the session", func() {
			So(r.transport.Close(), ShouldBeNil)
			So(waitErr(runErr), ShouldNotBeNil)
			So(errors.Is(waitErr(called), ErrSessionClosed), ShouldBeTrue)
			_, err := c.Call(context.Background(), "com.demo.echo", nil, nil)
			So(errors.Is(err, ErrSessionClosed), ShouldBeTrue)
		})
	})
}

func TestAbort(t *testing.T) {
	c, r, runErr := newTestClient(t, nil)

	joined := make(chan error, 1)
	go func() {
		_, err := c.Join(context.Background(), "realm1", nil)
		joined <- err
	}()
	r.receive()
	r.sendRaw(`[3,{"message":"no"},"wamp.error.no_such_realm"]`)

	var abort *AbortError
	require.ErrorAs(t, waitErr(runErr), &abort)
	assert.Equal(t, wamp.ErrNoSuchRealm, abort.Reason)
	assert.ErrorAs(t, waitErr(joined), &abort)
	assert.Equal(t, StateClosed, c.State())
}

func TestRouterError(t *testing.T) {
	c, r, _ := newTestClient(t, nil)
	r.join(c)

	called := make(chan error, 1)
	go func() {
		_, err := c.Call(context.Background(), "com.demo.missing", nil, nil)
		called <- err
	}()
	call := r.receive().(*wamp.Call)
	r.send(&wamp.Error{
		Type:      wamp.CALL,
		Request:   call.Request,
		Details:   wamp.Dict{},
		Error:     wamp.ErrNoSuchProcedure,
		Arguments: wamp.List{wamp.String("nope")},
	})

	var rpcErr *RPCError
	require.ErrorAs(t, waitErr(called), &rpcErr)
	assert.Equal(t, wamp.ErrNoSuchProcedure, rpcErr.URI())

	registered := make(chan error, 1)
	go func() {
		_, err := c.Register(context.Background(), "com.demo.echo", nil)
		registered <- err
	}()
	reg := r.receive().(*wamp.Register)
	r.send(&wamp.Error{Type: wamp.REGISTER, Request: reg.Request, Details: wamp.Dict{}, Error: wamp.ErrProcedureAlreadyExists})
	require.ErrorAs(t, waitErr(registered), &rpcErr)
	assert.Equal(t, wamp.ErrProcedureAlreadyExists, rpcErr.URI())
	assert.Zero(t, c.procedures.size())
}

func TestInvocationErrorResult(t *testing.T) {
	c, r, _ := newTestClient(t, nil)
	r.join(c)

	registered := make(chan error, 1)
	go func() {
		_, err := c.Register(context.Background(), "com.demo.fail", func(ctx context.Context, inv *wamp.Invocation) *CallResult {
			return ErrorResult(wamp.ErrInvalidArgument, inv.Arguments, nil)
		})
		registered <- err
	}()
	reg := r.receive().(*wamp.Register)
	r.send(&wamp.Registered{Request: reg.Request, Registration: 5})
	require.NoError(t, waitErr(registered))

	r.sendRaw(`[68,3,5,{},[1]]`)
	assert.Equal(t, `[8,68,3,{},"wamp.error.invalid_argument",[1]]`, r.readPayload())
}

func TestUnregister(t *testing.T) {
	c, r, _ := newTestClient(t, nil)
	r.join(c)

	registered := make(chan error, 1)
	go func() {
		_, err := c.Register(context.Background(), "com.demo.echo", func(ctx context.Context, inv *wamp.Invocation) *CallResult {
			return SliceResult(inv.Arguments)
		})
		registered <- err
	}()
	reg := r.receive().(*wamp.Register)
	r.send(&wamp.Registered{Request: reg.Request, Registration: 42})
	require.NoError(t, waitErr(registered))
	require.Equal(t, 1, c.procedures.size())

	unregistered := make(chan error, 1)
	go func() { unregistered <- c.Unregister(context.Background(), 42) }()
	unreg := r.receive().(*wamp.Unregister)
	assert.Equal(t, wamp.RouterID(42), unreg.Registration)
	r.send(&wamp.Unregistered{Request: unreg.Request})
	require.NoError(t, waitErr(unregistered))
	assert.Zero(t, c.procedures.size())

	// invocations for the withdrawn registration are dropped
	before := testutil.ToFloat64(correlationMisses.WithLabelValues("INVOCATION"))
	r.sendRaw(`[68,7,42,{}]`)
	r.barrier(c)
	assert.Equal(t, before+1, testutil.ToFloat64(correlationMisses.WithLabelValues("INVOCATION")))
}

func TestCallCancellation(t *testing.T) {
	c, r, _ := newTestClient(t, nil)
	r.join(c)

	ctx, cancel := context.WithCancel(context.Background())
	called := make(chan error, 1)
	go func() {
		_, err := c.Call(ctx, "com.demo.slow", nil, nil)
		called <- err
	}()
	call := r.receive().(*wamp.Call)
	cancel()
	assert.ErrorIs(t, waitErr(called), context.Canceled)

	_, calls, _ := c.pending.counts()
	assert.Zero(t, calls)

	// the late reply matches nothing
	before := testutil.ToFloat64(correlationMisses.WithLabelValues("RESULT"))
	r.send(&wamp.Result{Request: call.Request, Details: wamp.Dict{}})
	r.barrier(c)
	assert.Equal(t, before+1, testutil.ToFloat64(correlationMisses.WithLabelValues("RESULT")))
}

func TestCallBeforeWelcome(t *testing.T) {
	c, _, _ := newTestClient(t, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := c.Call(ctx, "com.demo.echo", nil, nil)
	assert.ErrorIs(t, err, ErrNotReady)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, StateUnauthenticated, c.State())
}

func TestJoinTwice(t *testing.T) {
	c, r, _ := newTestClient(t, nil)
	r.join(c)

	_, err := c.Join(context.Background(), "realm1", nil)
	assert.ErrorIs(t, err, ErrAlreadyJoined)
}

func TestStrictURIPolicy(t *testing.T) {
	cfg := DefaultConfig()
	cfg.URIPolicy = wamp.Strict
	c, _, _ := newTestClient(t, cfg)

	_, err := c.Call(context.Background(), "com.Demo.echo!", nil, nil)
	assert.ErrorIs(t, err, wamp.ErrMalformedURI)
	_, err = c.Join(context.Background(), "Realm 1", nil)
	assert.ErrorIs(t, err, wamp.ErrMalformedURI)
}

func TestCallKeywordArgumentsOnly(t *testing.T) {
	c, r, _ := newTestClient(t, nil)
	r.join(c)

	called := make(chan error, 1)
	go func() {
		_, err := c.Call(context.Background(), "com.demo.kw", nil, wamp.Dict{"a": wamp.Integer(1)})
		called <- err
	}()
	assert.JSONEq(t, `[48,1,{},"com.demo.kw",[],{"a":1}]`, r.readPayload())
	r.send(&wamp.Result{Request: 1, Details: wamp.Dict{}})
	require.NoError(t, waitErr(called))
}

func TestRunAfterCancel(t *testing.T) {
	clientSide, _ := Pipe()
	c, err := NewClient(clientSide, DefaultConfig())
	require.NoError(t, err)

	c.cancel()
	assert.ErrorIs(t, c.Run(context.Background()), ErrSessionClosed)
	select {
	case <-c.Done():
	case <-time.After(testTimeout):
		t.Fatal("Done not closed")
	}
	assert.Equal(t, StateClosed, c.State())
}

func TestClose(t *testing.T) {
	Convey("Closing an established session", t, func() {
		c, r, runErr := newTestClient(t, nil)
		r.join(c)

		closed := make(chan error, 1)
		go func() { closed <- c.Close() }()

		bye, ok := r.receive().(*wamp.Goodbye)
		So(ok, ShouldBeTrue)
		So(bye.Reason, ShouldEqual, wamp.ErrCloseRealm)
		r.send(&wamp.Goodbye{Details: wamp.Dict{}, Reason: wamp.ErrGoodbyeAndOut})

		So(waitErr(closed), ShouldBeNil)
		So(waitErr(runErr), ShouldBeNil)
		So(c.State(), ShouldEqual, StateClosed)

		_, err := c.Call(context.Background(), "com.demo.echo", nil, nil)
		So(errors.Is(err, ErrSessionClosed), ShouldBeTrue)
	})

	Convey("Closing a client that never ran", t, func() {
		clientSide, _ := Pipe()
		c, err := NewClient(clientSide, nil)
		So(err, ShouldBeNil)
		So(c.Close(), ShouldBeNil)
		So(c.Run(context.Background()), ShouldEqual, ErrSessionClosed)
	})
}

func TestRunTwice(t *testing.T) {
	c, _, _ := newTestClient(t, nil)
	// wait for the first Run to claim the client
	require.Eventually(t, func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.started
	}, testTimeout, time.Millisecond)
	assert.Equal(t, ErrAlreadyRunning, c.Run(context.Background()))
}

func TestClientSerializations(t *testing.T) {
	for _, s := range []wamp.Serialization{wamp.JSON, wamp.MSGPACK, wamp.CBOR} {
		t.Run(s.String(), func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Serialization = s
			c, r, _ := newTestClient(t, cfg)
			r.join(c)

			called := make(chan error, 1)
			var res *wamp.Result
			go func() {
				var err error
				res, err = c.Call(context.Background(), "com.demo.echo", wamp.List{wamp.String("hi")}, wamp.Dict{"n": wamp.Integer(3)})
				called <- err
			}()
			f, err := r.nextFrame()
			require.NoError(t, err)
			if s.Binary() {
				assert.Equal(t, BinaryFrame, f.Kind)
			} else {
				assert.Equal(t, TextFrame, f.Kind)
			}
			v, err := r.serializer.Deserialize(f.Payload)
			require.NoError(t, err)
			mt, fields, err := wamp.ParseEnvelope(v)
			require.NoError(t, err)
			msg, err := wamp.DecodeClientMessage(mt, fields)
			require.NoError(t, err)
			call := msg.(*wamp.Call)
			r.send(&wamp.Result{Request: call.Request, Details: wamp.Dict{}, Arguments: call.Arguments, ArgumentsKw: call.ArgumentsKw})

			require.NoError(t, waitErr(called))
			assert.Equal(t, wamp.List{wamp.String("hi")}, res.Arguments)
			assert.Equal(t, wamp.Dict{"n": wamp.Integer(3)}, res.ArgumentsKw)
		})
	}
}
