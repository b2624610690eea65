// Package ddptest provides an in-process DDP server for tests, in the
// spirit of net/http/httptest.
package ddptest

import (
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/NeboLoop/rocketchat-go-sdk/ddp"
)

// Server answers connect, login, sub and unsub the way a Rocket.Chat
// server would. Hooks override the default answers.
type Server struct {
	*httptest.Server

	// SendServerID makes the server greet with {"server_id":"0"} first.
	SendServerID bool
	// RejectConnect answers connect with failed.
	RejectConnect bool
	// FailMethod, when it returns true, answers the call with an error.
	FailMethod func(m ddp.Message) bool
	// FailSub, when it returns true, answers the sub with nosub.
	FailSub func(m ddp.Message) bool

	conns chan *Conn
}

// NewServer starts a server listening on a loopback address. The
// WebSocket endpoint is mounted at /websocket.
func NewServer() *Server {
	s := &Server{conns: make(chan *Conn, 16)}
	mux := http.NewServeMux()
	mux.HandleFunc("/websocket", s.handle)
	s.Server = httptest.NewServer(mux)
	return s
}

// WebSocketURL returns the ws:// address of the DDP endpoint.
func (s *Server) WebSocketURL() string {
	return "ws://" + strings.TrimPrefix(s.Server.URL, "http://") + "/websocket"
}

// Accept returns the next client connection, or nil after timeout.
func (s *Server) Accept(timeout time.Duration) *Conn {
	select {
	case c := <-s.conns:
		return c
	case <-time.After(timeout):
		return nil
	}
}

// Conn is the server side of one client connection.
type Conn struct {
	conn     net.Conn
	mu       sync.Mutex
	received chan ddp.Message
	closed   chan struct{}
}

// Send writes a message to the client.
func (c *Conn) Send(m ddp.Message) error {
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return c.SendRaw(data)
}

// SendRaw writes an arbitrary text frame to the client.
func (c *Conn) SendRaw(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return wsutil.WriteServerText(c.conn, data)
}

// Next returns the next message received from the client.
func (c *Conn) Next(timeout time.Duration) (ddp.Message, bool) {
	select {
	case m := <-c.received:
		return m, true
	case <-time.After(timeout):
		return ddp.Message{}, false
	}
}

// NextOf skips received messages until one of type msg arrives.
func (c *Conn) NextOf(msg string, timeout time.Duration) (ddp.Message, bool) {
	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return ddp.Message{}, false
		}
		m, ok := c.Next(remaining)
		if !ok {
			return ddp.Message{}, false
		}
		if m.Msg == msg {
			return m, true
		}
	}
}

// Closed is closed once the client connection has gone away.
func (c *Conn) Closed() <-chan struct{} { return c.closed }

// Close drops the connection from the server side.
func (c *Conn) Close() error { return c.conn.Close() }

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	conn, brw, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		return
	}
	c := &Conn{
		conn:     conn,
		received: make(chan ddp.Message, 256),
		closed:   make(chan struct{}),
	}
	defer close(c.closed)
	defer conn.Close()

	s.conns <- c

	if s.SendServerID {
		c.SendRaw([]byte(`{"server_id":"0"}`))
	}

	rw := struct {
		io.Reader
		io.Writer
	}{brw.Reader, conn}

	for {
		data, err := wsutil.ReadClientText(rw)
		if err != nil {
			return
		}
		m, err := ddp.Decode(data)
		if err != nil {
			continue
		}
		select {
		case c.received <- m:
		default:
		}
		s.respond(c, m)
	}
}

func (s *Server) respond(c *Conn, m ddp.Message) {
	switch m.Msg {
	case ddp.TypeConnect:
		if s.RejectConnect {
			c.Send(ddp.Message{Msg: ddp.TypeFailed, Version: "pre2"})
			return
		}
		c.Send(ddp.Message{Msg: ddp.TypeConnected, Session: "test-session"})

	case ddp.TypeMethod:
		if s.FailMethod != nil && s.FailMethod(m) {
			c.Send(ddp.Message{Msg: ddp.TypeResult, ID: m.ID, Error: &ddp.Error{
				Code:    json.RawMessage(`403`),
				Reason:  "You've been logged out by the server. Please log in again.",
				Message: "You've been logged out by the server. Please log in again. [403]",
			}})
			return
		}
		c.Send(ddp.Message{Msg: ddp.TypeResult, ID: m.ID, Result: json.RawMessage(`{"id":"test-user"}`)})

	case ddp.TypeSub:
		if s.FailSub != nil && s.FailSub(m) {
			c.Send(ddp.Message{Msg: ddp.TypeNoSub, ID: m.ID, Error: &ddp.Error{
				Code:    json.RawMessage(`"not-allowed"`),
				Reason:  "Not allowed",
				Message: "Not allowed [not-allowed]",
			}})
			return
		}
		c.Send(ddp.Message{Msg: ddp.TypeReady, Subs: []string{m.ID}})

	case ddp.TypeUnsub:
		c.Send(ddp.Message{Msg: ddp.TypeNoSub, ID: m.ID})

	case ddp.TypePing:
		c.Send(ddp.Pong(m.ID))
	}
}
