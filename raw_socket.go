package wampclient

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/frol/wampclient/wamp"
)

const (
	magic = 0x7f
)

// rawsocket frame types, the low 3 bits of the first header byte
const (
	rawSocketMessage = 0
	rawSocketPing    = 1
	rawSocketPong    = 2
)

// largest length exponent: 2**24 bytes
const maxLengthExponent = 0xf

// largest payload the 24-bit length header can carry
const maxFrameLength = 1<<24 - 1

type rawSocketTransport struct {
	conn    net.Conn
	reader  *bufio.Reader
	frames  chan Frame
	closing chan struct{}
	once    sync.Once

	writeMu      sync.Mutex
	writeTimeout time.Duration
	idleTimeout  time.Duration

	// maxSend is the limit the router announced, maxRecv the one we did
	maxSend int
	maxRecv int

	readErr  error
	readDone chan struct{}
}

func intToBytes(i int) [3]byte {
	return [3]byte{
		byte((i >> 16) & 0xff),
		byte((i >> 8) & 0xff),
		byte(i & 0xff),
	}
}

func bytesToInt(arr []byte) (val int) {
	shift := uint(8 * (len(arr) - 1))
	for _, b := range arr {
		val |= int(uint(b) << shift)
		shift -= 8
	}
	return
}

// toLength converts a 4-bit length exponent to a byte count between 2**9
// and 2**24.
func toLength(b byte) int {
	return (2 << 8) << b
}

// frameLimit is the payload limit announced by exponent b, capped to what
// the length header can encode.
func frameLimit(b byte) int {
	if n := toLength(b); n < maxFrameLength {
		return n
	}
	return maxFrameLength
}

// lengthExponent returns the smallest exponent whose length holds max bytes.
func lengthExponent(max int64) byte {
	if max <= 0 {
		return maxLengthExponent
	}
	for b := byte(0); b < maxLengthExponent; b++ {
		if int64(toLength(b)) >= max {
			return b
		}
	}
	return maxLengthExponent
}

// DialRawSocket connects to a rawsocket router over TCP at addr and performs
// the rawsocket handshake for serialization.
func DialRawSocket(ctx context.Context, addr string, serialization wamp.Serialization, cfg *ConnectionConfig) (Transport, error) {
	if cfg == nil {
		cfg = &ConnectionConfig{}
	}
	dialer := net.Dialer{Timeout: cfg.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	t, err := newRawSocketClient(ctx, conn, serialization, cfg)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return t, nil
}

func newRawSocketClient(ctx context.Context, conn net.Conn, serialization wamp.Serialization, cfg *ConnectionConfig) (*rawSocketTransport, error) {
	ep := &rawSocketTransport{
		conn:         conn,
		reader:       bufio.NewReader(conn),
		frames:       make(chan Frame),
		closing:      make(chan struct{}),
		readDone:     make(chan struct{}),
		writeTimeout: cfg.WriteTimeout,
		idleTimeout:  cfg.IdleTimeout,
	}
	if d, ok := ctx.Deadline(); ok {
		conn.SetDeadline(d)
	} else if cfg.DialTimeout > 0 {
		conn.SetDeadline(time.Now().Add(cfg.DialTimeout))
	}
	if err := ep.handshakeClient(serialization, lengthExponent(cfg.MaxMsgSize)); err != nil {
		return nil, err
	}
	conn.SetDeadline(time.Time{})
	go ep.run()
	return ep, nil
}

func (ep *rawSocketTransport) handshakeClient(serialization wamp.Serialization, length byte) error {
	serializer := serialization.RawSocketID()

	if _, err := ep.conn.Write([]byte{magic, length<<4 | serializer, 0, 0}); err != nil {
		return err
	}
	var buf [4]byte
	if _, err := io.ReadFull(ep.reader, buf[:]); err != nil {
		return err
	}
	if buf[0] != magic {
		return errors.New("unknown protocol: first byte received not the WAMP magic value")
	}
	if buf[1]&0xf == 0 {
		errCode := buf[1] >> 4
		switch errCode {
		case 0:
			return errors.New("serializer unsupported")
		case 1:
			return errors.New("maximum message length unsupported")
		case 2:
			return errors.New("use of reserved bits (unsupported feature)")
		case 3:
			return errors.New("maximum connection count reached")
		default:
			return fmt.Errorf("unknown error: %d", errCode)
		}
	}
	if buf[1]&0xf != serializer {
		return errors.New("serializer mismatch: server responded with different serializer than requested")
	}
	ep.maxSend = frameLimit(buf[1] >> 4)
	ep.maxRecv = frameLimit(length)
	return nil
}

func (ep *rawSocketTransport) ReadFrame(ctx context.Context) (Frame, error) {
	select {
	case f := <-ep.frames:
		return f, nil
	case <-ep.readDone:
		return Frame{}, ep.readErr
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	}
}

func (ep *rawSocketTransport) WriteFrame(ctx context.Context, f Frame) error {
	var kind byte
	switch f.Kind {
	case TextFrame, BinaryFrame:
		kind = rawSocketMessage
	case PingFrame:
		kind = rawSocketPing
	case PongFrame:
		kind = rawSocketPong
	case CloseFrame:
		// rawsocket has no close frame: closing is dropping the connection
		return ep.Close()
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedFrame, f.Kind)
	}

	if len(f.Payload) > ep.maxSend {
		return fmt.Errorf("message too big: %d > %d", len(f.Payload), ep.maxSend)
	}

	ep.writeMu.Lock()
	defer ep.writeMu.Unlock()
	if ep.isClosed() {
		return ErrTransportClosed
	}
	deadline := time.Time{}
	if ep.writeTimeout > 0 {
		deadline = time.Now().Add(ep.writeTimeout)
	}
	if d, ok := ctx.Deadline(); ok && (deadline.IsZero() || d.Before(deadline)) {
		deadline = d
	}
	ep.conn.SetWriteDeadline(deadline)

	arr := intToBytes(len(f.Payload))
	header := []byte{kind, arr[0], arr[1], arr[2]}
	_, err := ep.conn.Write(append(header, f.Payload...))
	return err
}

func (ep *rawSocketTransport) isClosed() bool {
	select {
	case <-ep.closing:
		return true
	default:
		return false
	}
}

func (ep *rawSocketTransport) Close() error {
	var err error
	ep.once.Do(func() {
		close(ep.closing)
		err = ep.conn.Close()
	})
	return err
}

func (ep *rawSocketTransport) deliver(f Frame) bool {
	select {
	case ep.frames <- f:
		return true
	case <-ep.closing:
		return false
	}
}

func (ep *rawSocketTransport) run() {
	defer close(ep.readDone)
	ep.readErr = ep.readFrames()
	if ep.isClosed() {
		ep.readErr = ErrTransportClosed
	} else {
		log.Println("error reading from peer:", ep.readErr)
	}
}

func (ep *rawSocketTransport) readFrames() error {
	for {
		if ep.idleTimeout > 0 {
			ep.conn.SetReadDeadline(time.Now().Add(ep.idleTimeout))
		}
		var header [4]byte
		if _, err := io.ReadFull(ep.reader, header[:]); err != nil {
			return fmt.Errorf("reading rawsocket header: %w", err)
		}

		length := bytesToInt(header[1:])
		if length > ep.maxRecv {
			return fmt.Errorf("message too big: %d > %d", length, ep.maxRecv)
		}
		buf := make([]byte, length)
		if _, err := io.ReadFull(ep.reader, buf); err != nil {
			return fmt.Errorf("reading rawsocket payload: %w", err)
		}

		var f Frame
		switch header[0] & 0x7 {
		case rawSocketMessage:
			f = Frame{Kind: BinaryFrame, Payload: buf}
		case rawSocketPing:
			f = Frame{Kind: PingFrame, Payload: buf}
		case rawSocketPong:
			f = Frame{Kind: PongFrame, Payload: buf}
		default:
			return fmt.Errorf("unknown rawsocket frame type: %d", header[0]&0x7)
		}
		if !ep.deliver(f) {
			return ErrTransportClosed
		}
	}
}
