package wampclient

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	uuid "github.com/satori/go.uuid"
	"golang.org/x/sync/errgroup"

	"github.com/frol/wampclient/wamp"
)

// SessionState is the lifecycle stage of a Client's session.
type SessionState int32

const (
	StateUnauthenticated SessionState = iota
	StateAwaitingChallengeOrWelcome
	StateAwaitingWelcome
	StateEstablished
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAwaitingChallengeOrWelcome:
		return "awaiting challenge or welcome"
	case StateAwaitingWelcome:
		return "awaiting welcome"
	case StateEstablished:
		return "established"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("SessionState(%d)", int32(s))
}

// how long Close waits for the router to answer GOODBYE
const closeTimeout = time.Second

const (
	directionIn  = "in"
	directionOut = "out"
)

type outgoing struct {
	msg wamp.ClientMessage
	// closed once the message is written, if set
	written chan struct{}
}

// A Client is one WAMP session over a Transport, acting as caller and
// callee. Create it with NewClient, start it with Run and join a realm with
// Join.
type Client struct {
	transport  Transport
	serializer wamp.Serializer
	frameKind  FrameKind
	cfg        *Config
	auth       map[string]AuthFunc
	ids        *wamp.IDAllocator
	pending    *pendingRequests
	procedures *procedureTable
	log        Logger

	// stage pipeline: reader -> rawIn -> decoder -> decoded -> dispatcher,
	// callers -> outbound -> serializer -> frames -> writer
	rawIn    chan []byte
	decoded  chan wamp.Value
	outbound chan outgoing
	frames   chan Frame

	state   atomic.Int32
	closing atomic.Bool

	mu      sync.Mutex
	started bool
	hello   wamp.Dict
	welcome wamp.Dict
	err     error

	ready     chan struct{}
	readyOnce sync.Once
	goodbye   chan struct{}
	byeOnce   sync.Once
	done      chan struct{}
	doneOnce  sync.Once

	// cancelled by Close
	ctx    context.Context
	cancel context.CancelFunc
}

// NewClient returns a Client speaking over t. A nil cfg means
// DefaultConfig().
func NewClient(t Transport, cfg *Config) (*Client, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	serializer, err := wamp.NewSerializer(cfg.Serialization)
	if err != nil {
		return nil, err
	}
	frameKind := TextFrame
	if cfg.Serialization.Binary() {
		frameKind = BinaryFrame
	}

	auth := make(map[string]AuthFunc, len(cfg.Auth)+1)
	for method, fn := range cfg.Auth {
		auth[method] = fn
	}
	if _, ok := auth["ticket"]; !ok && cfg.Ticket != "" {
		auth["ticket"] = TicketAuth(cfg.Ticket)
	}

	ids := cfg.IDs
	if ids == nil {
		ids = wamp.NewIDAllocator()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		transport:  t,
		serializer: serializer,
		frameKind:  frameKind,
		cfg:        cfg,
		auth:       auth,
		ids:        ids,
		pending:    newPendingRequests(),
		procedures: newProcedureTable(),
		log:        sessionLogger(logger, uuid.NewV4().String()),
		rawIn:      make(chan []byte, 1),
		decoded:    make(chan wamp.Value, 1),
		outbound:   make(chan outgoing, 1),
		frames:     make(chan Frame, 1),
		ready:      make(chan struct{}),
		goodbye:    make(chan struct{}),
		done:       make(chan struct{}),
		ctx:        ctx,
		cancel:     cancel,
	}
	return c, nil
}

// State returns the current session state.
func (c *Client) State() SessionState {
	return SessionState(c.state.Load())
}

// Ready is closed once the router welcomed the session.
func (c *Client) Ready() <-chan struct{} {
	return c.ready
}

// Done is closed once the session ended and every stage stopped.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Err returns the error that ended the session, or nil if it is still
// running or was closed cleanly.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Run drives the session until the transport fails, the router ends it,
// Close is called or ctx is done. It returns nil for a session closed by
// either side with GOODBYE or by Close.
func (c *Client) Run(ctx context.Context) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return ErrAlreadyRunning
	}
	if c.ctx.Err() != nil {
		c.mu.Unlock()
		logErr(c.log, c.transport.Close())
		c.shutdown(nil)
		return ErrSessionClosed
	}
	c.started = true
	c.mu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(c.ctx, cancel)
	defer stop()

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error { return c.readFrames(gctx) })
	g.Go(func() error { return c.decode(gctx) })
	g.Go(func() error { return c.dispatch(gctx) })
	g.Go(func() error { return c.serialize(gctx) })
	g.Go(func() error { return c.writeFrames(gctx) })
	// unblocks a reader stuck in the transport
	g.Go(func() error {
		<-gctx.Done()
		logErr(c.log, c.transport.Close())
		return nil
	})

	err := g.Wait()
	switch {
	case errors.Is(err, ErrSessionClosed):
		err = nil
	case c.ctx.Err() != nil && errors.Is(err, context.Canceled):
		err = nil
	}
	if err != nil {
		c.log.Println("session ended:", err)
	} else {
		c.log.Println("session closed")
	}
	c.shutdown(err)
	return err
}

// shutdown fails whatever is still pending and marks the session done.
func (c *Client) shutdown(err error) {
	c.doneOnce.Do(func() {
		c.mu.Lock()
		c.err = err
		c.mu.Unlock()
		c.state.Store(int32(StateClosed))
		if err != nil {
			c.pending.closeAll(fmt.Errorf("%w: %w", ErrSessionClosed, err))
		} else {
			c.pending.closeAll(ErrSessionClosed)
		}
		close(c.done)
	})
}

// Join sends HELLO for realm and waits for the router's WELCOME, answering a
// CHALLENGE on the way if one comes. details are merged over the announced
// roles and auth settings. It returns the WELCOME details.
func (c *Client) Join(ctx context.Context, realm string, details wamp.Dict) (wamp.Dict, error) {
	uri, err := wamp.ParseURI(realm, c.cfg.URIPolicy)
	if err != nil {
		return nil, fmt.Errorf("realm %q: %w", realm, err)
	}
	if !c.state.CompareAndSwap(int32(StateUnauthenticated), int32(StateAwaitingChallengeOrWelcome)) {
		return nil, ErrAlreadyJoined
	}
	hello := helloDetails(c.cfg, details)
	c.mu.Lock()
	c.hello = hello
	c.mu.Unlock()

	if err := c.send(ctx, &wamp.Hello{Realm: uri, Details: hello}); err != nil {
		return nil, err
	}
	select {
	case <-c.ready:
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.welcome, nil
	case <-c.done:
		if err := c.Err(); err != nil {
			return nil, err
		}
		return nil, ErrSessionClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Register registers handler for procedure and returns the registration id
// the router assigned. Invocations may arrive as soon as it returns.
func (c *Client) Register(ctx context.Context, procedure string, handler InvocationHandler) (wamp.RouterID, error) {
	uri, err := wamp.ParseURI(procedure, c.cfg.URIPolicy)
	if err != nil {
		return 0, fmt.Errorf("procedure %q: %w", procedure, err)
	}
	if err := c.awaitReady(ctx); err != nil {
		return 0, err
	}

	id := c.ids.Next()
	done, err := c.pending.addRegistration(id, handler)
	if err != nil {
		return 0, err
	}
	if err := c.send(ctx, &wamp.Register{Request: id, Options: wamp.Dict{}, Procedure: uri}); err != nil {
		c.pending.cancelRegistration(id)
		return 0, err
	}
	out, err := await(ctx, done, func() bool { return c.pending.cancelRegistration(id) })
	if err != nil {
		return 0, err
	}
	if out.err != nil {
		return 0, fmt.Errorf("error registering procedure '%v': %w", procedure, out.err)
	}
	return out.registration, nil
}

// Unregister withdraws a registration made with Register. Its handler is
// dropped once the router confirms.
func (c *Client) Unregister(ctx context.Context, registration wamp.RouterID) error {
	if err := c.awaitReady(ctx); err != nil {
		return err
	}

	id := c.ids.Next()
	done, err := c.pending.addUnregistration(id, registration)
	if err != nil {
		return err
	}
	if err := c.send(ctx, &wamp.Unregister{Request: id, Registration: registration}); err != nil {
		c.pending.cancelUnregistration(id)
		return err
	}
	out, err := await(ctx, done, func() bool { return c.pending.cancelUnregistration(id) })
	if err != nil {
		return err
	}
	if out != nil {
		return fmt.Errorf("error unregistering %v: %w", registration, out)
	}
	return nil
}

// Call calls a procedure given a URI and waits for its RESULT. nil args and
// kwargs are left out of the CALL; args go out empty when only kwargs are
// given.
func (c *Client) Call(ctx context.Context, procedure string, args wamp.List, kwargs wamp.Dict) (*wamp.Result, error) {
	uri, err := wamp.ParseURI(procedure, c.cfg.URIPolicy)
	if err != nil {
		return nil, fmt.Errorf("procedure %q: %w", procedure, err)
	}
	if err := c.awaitReady(ctx); err != nil {
		return nil, err
	}

	if args == nil && kwargs != nil {
		args = wamp.List{}
	}
	id := c.ids.Next()
	done, err := c.pending.addCall(id)
	if err != nil {
		return nil, err
	}
	call := &wamp.Call{
		Request:     id,
		Options:     wamp.Dict{},
		Procedure:   uri,
		Arguments:   args,
		ArgumentsKw: kwargs,
	}
	if err := c.send(ctx, call); err != nil {
		c.pending.cancelCall(id)
		return nil, err
	}
	out, err := await(ctx, done, func() bool { return c.pending.cancelCall(id) })
	if err != nil {
		return nil, err
	}
	if out.err != nil {
		return nil, fmt.Errorf("error calling procedure '%v': %w", procedure, out.err)
	}
	return out.result, nil
}

// Close leaves the realm with GOODBYE if the session is established, then
// stops the session and closes the transport. It returns the error that
// ended the session, if any.
func (c *Client) Close() error {
	c.mu.Lock()
	started := c.started
	c.mu.Unlock()

	if started && c.State() == StateEstablished && c.closing.CompareAndSwap(false, true) {
		ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		defer cancel()
		bye := &wamp.Goodbye{Details: wamp.Dict{}, Reason: wamp.ErrCloseRealm}
		if err := c.send(ctx, bye); err == nil {
			select {
			case <-c.goodbye:
			case <-c.done:
			case <-ctx.Done():
				c.log.Println("no GOODBYE reply from router")
			}
		}
	}

	c.mu.Lock()
	c.cancel()
	started = c.started
	c.mu.Unlock()
	if !started {
		c.transport.Close()
		c.shutdown(nil)
	}
	<-c.done
	return c.Err()
}

// awaitReady blocks until the session is established.
func (c *Client) awaitReady(ctx context.Context) error {
	select {
	case <-c.ready:
		return nil
	default:
	}
	select {
	case <-c.ready:
		return nil
	case <-c.done:
		if err := c.Err(); err != nil {
			return fmt.Errorf("%w: %w", ErrSessionClosed, err)
		}
		return ErrSessionClosed
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrNotReady, ctx.Err())
	}
}

// await waits for a request's outcome. If ctx ends first and cancel still
// finds the request pending, the request is abandoned; otherwise a reply won
// the race and its outcome is returned.
func await[T any](ctx context.Context, done <-chan T, cancel func() bool) (T, error) {
	select {
	case out := <-done:
		return out, nil
	case <-ctx.Done():
		if cancel() {
			var zero T
			return zero, ctx.Err()
		}
		return <-done, nil
	}
}

func (c *Client) send(ctx context.Context, msg wamp.ClientMessage) error {
	return c.enqueue(ctx, outgoing{msg: msg})
}

func (c *Client) enqueue(ctx context.Context, out outgoing) error {
	select {
	case c.outbound <- out:
		return nil
	case <-c.done:
		return ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// readFrames hands message payloads to the decoder and answers pings.
func (c *Client) readFrames(ctx context.Context) error {
	for {
		f, err := c.transport.ReadFrame(ctx)
		if err != nil {
			return err
		}
		switch f.Kind {
		case TextFrame, BinaryFrame:
			select {
			case c.rawIn <- f.Payload:
			case <-ctx.Done():
				return ctx.Err()
			}
		case PingFrame:
			select {
			case c.frames <- Frame{Kind: PongFrame, Payload: f.Payload}:
			case <-ctx.Done():
				return ctx.Err()
			}
		case CloseFrame:
			return ErrTransportClosed
		default:
			return fmt.Errorf("%w: %s", ErrUnsupportedFrame, f.Kind)
		}
	}
}

func (c *Client) decode(ctx context.Context) error {
	for {
		var b []byte
		select {
		case b = <-c.rawIn:
		case <-ctx.Done():
			return ctx.Err()
		}
		v, err := c.serializer.Deserialize(b)
		if err != nil {
			c.log.Println("error deserializing message:", err)
			recordDecodeFailure(stageDeserialize)
			continue
		}
		select {
		case c.decoded <- v:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *Client) dispatch(ctx context.Context) error {
	for {
		var v wamp.Value
		select {
		case v = <-c.decoded:
		case <-ctx.Done():
			return ctx.Err()
		}
		mt, fields, err := wamp.ParseEnvelope(v)
		if err != nil {
			c.log.Println("dropping message:", err)
			recordDecodeFailure(stageEnvelope)
			continue
		}
		msg, err := wamp.DecodeRouterMessage(mt, fields)
		if errors.Is(err, wamp.ErrUnknownMessageType) {
			c.log.Println("unknown message code:", int(mt))
			recordUnhandled(mt)
			continue
		} else if err != nil {
			c.log.Println("dropping message:", err)
			recordDecodeFailure(stageMessage)
			continue
		}
		recordMessage(directionIn, mt)
		if err := c.handle(ctx, msg); err != nil {
			return err
		}
	}
}

// handle acts on one router message. A non-nil error ends the session.
func (c *Client) handle(ctx context.Context, msg wamp.RouterMessage) error {
	switch msg := msg.(type) {

	case *wamp.Welcome:
		c.handleWelcome(msg)

	case *wamp.Abort:
		return &AbortError{Reason: msg.Reason, Details: msg.Details}

	case *wamp.Challenge:
		return c.handleChallenge(ctx, msg)

	case *wamp.Goodbye:
		return c.handleGoodbye(ctx, msg)

	case *wamp.Error:
		c.handleError(msg)

	case *wamp.Registered:
		if !c.pending.resolveRegistration(msg.Request, msg.Registration, c.publish) {
			c.log.Println("no pending registration for request:", msg.Request)
			recordCorrelationMiss(wamp.REGISTERED)
		}

	case *wamp.Unregistered:
		removed := c.pending.resolveUnregistration(msg.Request, func(id wamp.RouterID) {
			if !c.procedures.remove(id) {
				c.log.Println("unregistered unknown registration:", id)
			}
		})
		if !removed {
			c.log.Println("no pending unregistration for request:", msg.Request)
			recordCorrelationMiss(wamp.UNREGISTERED)
		}

	case *wamp.Result:
		if !c.pending.resolveCall(msg.Request, msg) {
			c.log.Println("no pending call for request:", msg.Request)
			recordCorrelationMiss(wamp.RESULT)
		}

	case *wamp.Invocation:
		c.handleInvocation(ctx, msg)

	default:
		c.log.Println("unhandled message:", msg.MessageType())
		recordUnhandled(msg.MessageType())
	}
	return nil
}

func (c *Client) handleWelcome(msg *wamp.Welcome) {
	switch c.State() {
	case StateAwaitingChallengeOrWelcome, StateAwaitingWelcome:
	default:
		c.log.Println("unexpected WELCOME in state:", c.State())
		return
	}
	c.mu.Lock()
	c.welcome = msg.Details
	c.mu.Unlock()
	c.state.Store(int32(StateEstablished))
	c.log.Printf("joined session %d%s", uint64(msg.Session), formatUnknownMap(msg.Details))
	c.readyOnce.Do(func() { close(c.ready) })
}

func (c *Client) handleChallenge(ctx context.Context, msg *wamp.Challenge) error {
	if !c.state.CompareAndSwap(int32(StateAwaitingChallengeOrWelcome), int32(StateAwaitingWelcome)) {
		c.log.Println("unexpected CHALLENGE in state:", c.State())
		return nil
	}
	c.mu.Lock()
	hello := c.hello
	c.mu.Unlock()

	reply, err := authenticate(c.auth, hello, msg)
	if err != nil {
		return err
	}
	return c.send(ctx, reply)
}

func (c *Client) handleGoodbye(ctx context.Context, msg *wamp.Goodbye) error {
	c.log.Println("client received Goodbye message:", msg.Reason)
	if c.closing.Load() {
		c.byeOnce.Do(func() { close(c.goodbye) })
		return ErrSessionClosed
	}

	reply := outgoing{
		msg:     &wamp.Goodbye{Details: wamp.Dict{}, Reason: wamp.ErrGoodbyeAndOut},
		written: make(chan struct{}),
	}
	if err := c.enqueue(ctx, reply); err != nil {
		return err
	}
	select {
	case <-reply.written:
	case <-ctx.Done():
		return ctx.Err()
	}
	return ErrSessionClosed
}

// publish makes handler answer invocations of registration.
func (c *Client) publish(registration wamp.RouterID, handler InvocationHandler) {
	if c.procedures.add(registration, handler) {
		c.log.Println("replacing handler for registration:", registration)
	}
}

func (c *Client) handleError(msg *wamp.Error) {
	err := &RPCError{Err: msg}
	var ok bool
	switch msg.Type {
	case wamp.CALL:
		ok = c.pending.failCall(msg.Request, err)
	case wamp.REGISTER:
		ok = c.pending.failRegistration(msg.Request, err)
	case wamp.UNREGISTER:
		ok = c.pending.failUnregistration(msg.Request, err)
	default:
		c.log.Println("unhandled ERROR for request type:", msg.Type)
		recordUnhandled(wamp.ERROR)
		return
	}
	if !ok {
		c.log.Println("no pending request for ERROR:", msg.Type, msg.Request)
		recordCorrelationMiss(wamp.ERROR)
	}
}

func (c *Client) handleInvocation(ctx context.Context, msg *wamp.Invocation) {
	handler, ok := c.procedures.get(msg.Registration)
	if !ok {
		c.log.Println("no handler registered for registration:", msg.Registration)
		recordCorrelationMiss(wamp.INVOCATION)
		return
	}
	go func() {
		start := time.Now()
		result := handler(ctx, msg)
		recordInvocation(time.Since(start))
		if err := c.send(ctx, result.reply(msg.Request)); err != nil {
			c.log.Println("error sending message:", err)
		}
	}()
}

func (c *Client) serialize(ctx context.Context) error {
	for {
		var out outgoing
		select {
		case out = <-c.outbound:
		case <-ctx.Done():
			return ctx.Err()
		}
		mt := out.msg.MessageType()
		b, err := c.serializer.Serialize(wamp.ToList(out.msg))
		if err != nil {
			return fmt.Errorf("serializing %s: %w", mt, err)
		}
		recordMessage(directionOut, mt)
		select {
		case c.frames <- Frame{Kind: c.frameKind, Payload: b, written: out.written}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *Client) writeFrames(ctx context.Context) error {
	for {
		var f Frame
		select {
		case f = <-c.frames:
		case <-ctx.Done():
			return ctx.Err()
		}
		if err := c.transport.WriteFrame(ctx, f); err != nil {
			return fmt.Errorf("writing %s frame: %w", f.Kind, err)
		}
		if f.written != nil {
			close(f.written)
		}
	}
}
