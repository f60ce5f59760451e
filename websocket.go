package wampclient

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/frol/wampclient/wamp"
)

type websocketTransport struct {
	conn     *websocket.Conn
	frames   chan Frame
	closing  chan struct{}
	mutex    sync.Mutex
	readErr  error
	readDone chan struct{}
	*ConnectionConfig
}

// DialWebsocket connects to the websocket server at the specified url,
// negotiating the subprotocol for serialization.
func DialWebsocket(ctx context.Context, url string, serialization wamp.Serialization, tlscfg *tls.Config, cfg *ConnectionConfig) (Transport, error) {
	if cfg == nil {
		cfg = &ConnectionConfig{}
	}
	protocol := serialization.WebsocketProtocol()
	dialer := websocket.Dialer{
		Subprotocols:     []string{protocol},
		TLSClientConfig:  tlscfg,
		HandshakeTimeout: cfg.DialTimeout,
	}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	if conn.Subprotocol() != protocol {
		conn.Close()
		return nil, fmt.Errorf("router did not accept subprotocol %s", protocol)
	}
	return newWebsocketTransport(conn, cfg), nil
}

func newWebsocketTransport(conn *websocket.Conn, cfg *ConnectionConfig) *websocketTransport {
	ep := &websocketTransport{
		conn:             conn,
		frames:           make(chan Frame),
		closing:          make(chan struct{}),
		readDone:         make(chan struct{}),
		ConnectionConfig: cfg,
	}
	go ep.run()
	return ep
}

func (ep *websocketTransport) ReadFrame(ctx context.Context) (Frame, error) {
	select {
	case f := <-ep.frames:
		return f, nil
	case <-ep.readDone:
		return Frame{}, ep.readErr
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	}
}

func (ep *websocketTransport) WriteFrame(ctx context.Context, f Frame) error {
	ep.mutex.Lock()
	defer ep.mutex.Unlock()
	if ep.isClosed() {
		return ErrTransportClosed
	}

	deadline := time.Time{}
	if ep.WriteTimeout > 0 {
		deadline = time.Now().Add(ep.WriteTimeout)
	}
	if d, ok := ctx.Deadline(); ok && (deadline.IsZero() || d.Before(deadline)) {
		deadline = d
	}

	switch f.Kind {
	case TextFrame:
		ep.conn.SetWriteDeadline(deadline)
		return ep.conn.WriteMessage(websocket.TextMessage, f.Payload)
	case BinaryFrame:
		ep.conn.SetWriteDeadline(deadline)
		return ep.conn.WriteMessage(websocket.BinaryMessage, f.Payload)
	case PingFrame:
		return ep.conn.WriteControl(websocket.PingMessage, f.Payload, deadline)
	case PongFrame:
		return ep.conn.WriteControl(websocket.PongMessage, f.Payload, deadline)
	case CloseFrame:
		return ep.conn.WriteControl(websocket.CloseMessage, f.Payload, deadline)
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedFrame, f.Kind)
	}
}

func (ep *websocketTransport) isClosed() bool {
	select {
	case <-ep.closing:
		return true
	default:
		return false
	}
}

func (ep *websocketTransport) Close() error {
	ep.mutex.Lock()
	if ep.isClosed() {
		ep.mutex.Unlock()
		return nil
	}
	close(ep.closing)
	closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "goodbye")
	err := ep.conn.WriteControl(websocket.CloseMessage, closeMsg, time.Now().Add(5*time.Second))
	ep.mutex.Unlock()
	if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		log.Println("error sending close message:", err)
	}
	return ep.conn.Close()
}

func (ep *websocketTransport) updateReadDeadline() {
	if ep.IdleTimeout > 0 {
		ep.conn.SetReadDeadline(time.Now().Add(ep.IdleTimeout))
	}
}

// deliver hands a frame to ReadFrame unless the transport is closing.
func (ep *websocketTransport) deliver(f Frame) bool {
	select {
	case ep.frames <- f:
		return true
	case <-ep.closing:
		return false
	}
}

func (ep *websocketTransport) run() {
	defer close(ep.readDone)

	if ep.MaxMsgSize > 0 {
		ep.conn.SetReadLimit(ep.MaxMsgSize)
	}
	// control frames are surfaced as frames: the client answers pings itself
	ep.conn.SetPingHandler(func(v string) error {
		ep.updateReadDeadline()
		ep.deliver(Frame{Kind: PingFrame, Payload: []byte(v)})
		return nil
	})
	ep.conn.SetPongHandler(func(v string) error {
		ep.updateReadDeadline()
		ep.deliver(Frame{Kind: PongFrame, Payload: []byte(v)})
		return nil
	})
	ep.conn.SetCloseHandler(func(code int, text string) error {
		ep.deliver(Frame{Kind: CloseFrame, Payload: websocket.FormatCloseMessage(code, text)})
		return nil
	})

	for {
		ep.updateReadDeadline()
		msgType, b, err := ep.conn.ReadMessage()
		if err != nil {
			if ep.isClosed() {
				log.Println("peer connection closed")
				ep.readErr = ErrTransportClosed
			} else {
				log.Println("error reading from peer:", err)
				ep.readErr = fmt.Errorf("reading websocket: %w", err)
			}
			return
		}
		kind := TextFrame
		if msgType == websocket.BinaryMessage {
			kind = BinaryFrame
		}
		if !ep.deliver(Frame{Kind: kind, Payload: b}) {
			ep.readErr = ErrTransportClosed
			return
		}
	}
}
