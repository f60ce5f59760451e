package wampclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frol/wampclient/wamp"
)

func newTestWebsocketServer(t *testing.T, protocols []string, handle func(conn *websocket.Conn)) string {
	upgrader := websocket.Upgrader{Subprotocols: protocols}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		handle(conn)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

// drain reads until the connection fails so control frames get processed.
func drain(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func dialTestWebsocket(t *testing.T, url string, s wamp.Serialization) Transport {
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	tr, err := DialWebsocket(ctx, url, s, nil, &ConnectionConfig{WriteTimeout: time.Second})
	require.NoError(t, err)
	t.Cleanup(func() { tr.Close() })
	return tr
}

func TestWebsocketSubprotocol(t *testing.T) {
	url := newTestWebsocketServer(t, []string{"wamp.2.json"}, drain)

	_, err := DialWebsocket(context.Background(), url, wamp.MSGPACK, nil, nil)
	assert.Error(t, err)

	tr := dialTestWebsocket(t, url, wamp.JSON)
	assert.NotNil(t, tr)
}

func TestWebsocketEcho(t *testing.T) {
	url := newTestWebsocketServer(t, []string{"wamp.2.msgpack"}, func(conn *websocket.Conn) {
		for {
			mt, b, err := conn.ReadMessage()
			if err != nil {
				return
			}
			conn.WriteMessage(mt, b)
		}
	})
	tr := dialTestWebsocket(t, url, wamp.MSGPACK)
	ctx := context.Background()

	require.NoError(t, tr.WriteFrame(ctx, Frame{Kind: BinaryFrame, Payload: []byte{0x93, 1, 2, 3}}))
	f, err := tr.ReadFrame(ctx)
	require.NoError(t, err)
	assert.Equal(t, BinaryFrame, f.Kind)
	assert.Equal(t, []byte{0x93, 1, 2, 3}, f.Payload)

	require.NoError(t, tr.WriteFrame(ctx, Frame{Kind: TextFrame, Payload: []byte("[1]")}))
	f, err = tr.ReadFrame(ctx)
	require.NoError(t, err)
	assert.Equal(t, TextFrame, f.Kind)
}

func TestWebsocketPing(t *testing.T) {
	pongs := make(chan string, 1)
	url := newTestWebsocketServer(t, []string{"wamp.2.json"}, func(conn *websocket.Conn) {
		conn.SetPongHandler(func(s string) error {
			pongs <- s
			return nil
		})
		conn.WriteControl(websocket.PingMessage, []byte("p1"), time.Now().Add(time.Second))
		drain(conn)
	})
	tr := dialTestWebsocket(t, url, wamp.JSON)
	ctx := context.Background()

	f, err := tr.ReadFrame(ctx)
	require.NoError(t, err)
	assert.Equal(t, PingFrame, f.Kind)
	assert.Equal(t, "p1", string(f.Payload))

	require.NoError(t, tr.WriteFrame(ctx, Frame{Kind: PongFrame, Payload: f.Payload}))
	select {
	case s := <-pongs:
		assert.Equal(t, "p1", s)
	case <-time.After(testTimeout):
		t.Fatal("no pong")
	}
}

func TestWebsocketServerClose(t *testing.T) {
	url := newTestWebsocketServer(t, []string{"wamp.2.json"}, func(conn *websocket.Conn) {
		msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "bye")
		conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		drain(conn)
	})
	tr := dialTestWebsocket(t, url, wamp.JSON)

	f, err := tr.ReadFrame(context.Background())
	require.NoError(t, err)
	assert.Equal(t, CloseFrame, f.Kind)
}

// A minimal router: welcomes, echoes one call and says goodbye.
func echoRouter() func(conn *websocket.Conn) {
	return func(conn *websocket.Conn) {
		s := new(wamp.JSONSerializer)
		read := func() wamp.ClientMessage {
			_, b, err := conn.ReadMessage()
			if err != nil {
				return nil
			}
			v, err := s.Deserialize(b)
			if err != nil {
				return nil
			}
			mt, fields, err := wamp.ParseEnvelope(v)
			if err != nil {
				return nil
			}
			msg, _ := wamp.DecodeClientMessage(mt, fields)
			return msg
		}
		write := func(msg wamp.RouterMessage) {
			b, _ := s.Serialize(wamp.ToList(msg))
			conn.WriteMessage(websocket.TextMessage, b)
		}

		if _, ok := read().(*wamp.Hello); !ok {
			return
		}
		write(&wamp.Welcome{Session: 99, Details: wamp.Dict{"roles": wamp.Dict{"dealer": wamp.Dict{}}}})
		call, ok := read().(*wamp.Call)
		if !ok {
			return
		}
		write(&wamp.Result{Request: call.Request, Details: wamp.Dict{}, Arguments: call.Arguments})
		if _, ok := read().(*wamp.Goodbye); !ok {
			return
		}
		write(&wamp.Goodbye{Details: wamp.Dict{}, Reason: wamp.ErrGoodbyeAndOut})
		drain(conn)
	}
}

func TestClientOverWebsocket(t *testing.T) {
	url := newTestWebsocketServer(t, []string{"wamp.2.json"}, echoRouter())
	cfg := DefaultConfig()
	cfg.URL = url

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	c, err := Connect(ctx, cfg)
	require.NoError(t, err)
	runErr := make(chan error, 1)
	go func() { runErr <- c.Run(context.Background()) }()

	details, err := c.Join(ctx, "realm1", nil)
	require.NoError(t, err)
	assert.Contains(t, details, "roles")

	res, err := c.Call(ctx, "com.demo.echo", wamp.List{wamp.String("over the wire")}, nil)
	require.NoError(t, err)
	assert.Equal(t, wamp.List{wamp.String("over the wire")}, res.Arguments)

	assert.NoError(t, c.Close())
	assert.NoError(t, waitErr(runErr))
}
