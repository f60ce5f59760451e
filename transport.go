package wampclient

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// FrameKind is the kind of a transport frame.
type FrameKind int

const (
	TextFrame FrameKind = iota + 1
	BinaryFrame
	PingFrame
	PongFrame
	CloseFrame
)

func (k FrameKind) String() string {
	switch k {
	case TextFrame:
		return "text"
	case BinaryFrame:
		return "binary"
	case PingFrame:
		return "ping"
	case PongFrame:
		return "pong"
	case CloseFrame:
		return "close"
	}
	return fmt.Sprintf("FrameKind(%d)", int(k))
}

// Frame is one discrete unit of a message-oriented transport.
type Frame struct {
	Kind    FrameKind
	Payload []byte

	// closed by the writer stage once the frame is on the wire
	written chan struct{}
}

// Transport is the interface that must be implemented by the connection a
// Client runs over.
type Transport interface {
	// ReadFrame blocks until the next frame arrives, ctx is done or the
	// transport fails.
	ReadFrame(ctx context.Context) (Frame, error)
	// WriteFrame writes one frame. Frames are written by a single goroutine.
	WriteFrame(ctx context.Context, f Frame) error
	// Closes the connection and unblocks ReadFrame.
	// Multiple calls to Close() will have no effect.
	Close() error
}

// errors.
var (
	ErrTransportClosed  = errors.New("transport is closed")
	ErrUnsupportedFrame = errors.New("unsupported frame kind")
)

// Pipe creates two linked transports. Frames written to one are read from
// the other. This is useful for running a Client against an in-process
// router or a test double.
func Pipe() (Transport, Transport) {
	aToB := make(chan Frame, 10)
	bToA := make(chan Frame, 10)
	closing := make(chan struct{})
	once := new(sync.Once)

	a := &localTransport{incoming: bToA, outgoing: aToB, closing: closing, once: once}
	b := &localTransport{incoming: aToB, outgoing: bToA, closing: closing, once: once}
	return a, b
}

type localTransport struct {
	outgoing chan<- Frame
	incoming <-chan Frame
	closing  chan struct{}
	once     *sync.Once
}

func (t *localTransport) ReadFrame(ctx context.Context) (Frame, error) {
	// frames already sent are delivered before the close is noticed
	select {
	case f := <-t.incoming:
		return f, nil
	default:
	}
	select {
	case f := <-t.incoming:
		return f, nil
	case <-t.closing:
		return Frame{}, ErrTransportClosed
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	}
}

func (t *localTransport) WriteFrame(ctx context.Context, f Frame) error {
	f.written = nil
	select {
	case <-t.closing:
		return ErrTransportClosed
	default:
	}
	select {
	case t.outgoing <- f:
		return nil
	case <-t.closing:
		return ErrTransportClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *localTransport) Close() error {
	t.once.Do(func() { close(t.closing) })
	return nil
}
