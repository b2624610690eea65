package ddp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"slices"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/google/uuid"
)

const handshakeTimeout = 10 * time.Second

var (
	ErrClosed        = errors.New("ddp: connection closed")
	ErrConnectFailed = errors.New("ddp: server rejected protocol version")
)

// Handler receives collection notifications (added, changed, removed).
type Handler func(Message)

// Options configures Dial.
type Options struct {
	// Handler is invoked from the read loop for every collection frame.
	Handler Handler
	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Conn is a DDP session over a single WebSocket.
type Conn struct {
	conn    net.Conn
	rw      io.ReadWriter
	logger  *slog.Logger
	handler Handler
	session string

	writeMu sync.Mutex
	sendCh  chan []byte
	done    chan struct{}
	once    sync.Once

	mu      sync.Mutex
	calls   map[string]chan Message // method id -> result waiter
	pending map[string]chan Message // sub id -> ready/nosub waiter
	active  []string                // ready subscription ids, in subscribe order
	err     error
}

// lockedWriter serialises frame writes coming from the write loop,
// control-frame replies in the read path, and Close.
type lockedWriter struct{ c *Conn }

func (w lockedWriter) Write(p []byte) (int, error) {
	w.c.writeMu.Lock()
	defer w.c.writeMu.Unlock()
	return w.c.conn.Write(p)
}

type readWriter struct {
	io.Reader
	io.Writer
}

// Dial opens a WebSocket to url and performs the DDP connect handshake.
func Dial(ctx context.Context, url string, opts Options) (*Conn, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	conn, br, _, err := ws.Dial(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}

	c := &Conn{
		conn:    conn,
		logger:  logger,
		handler: opts.Handler,
		sendCh:  make(chan []byte, 256),
		done:    make(chan struct{}),
		calls:   make(map[string]chan Message),
		pending: make(map[string]chan Message),
	}
	var r io.Reader = conn
	if br != nil {
		// The server may have written frames right after the upgrade.
		r = io.MultiReader(br, conn)
	}
	c.rw = readWriter{Reader: r, Writer: lockedWriter{c}}

	if err := c.handshake(ctx); err != nil {
		conn.Close()
		return nil, err
	}

	logger.Info("connected to realtime endpoint", "url", url, "session", c.session)

	go c.readLoop()
	go c.writeLoop()

	return c, nil
}

func (c *Conn) handshake(ctx context.Context) error {
	data, _ := Encode(Connect())
	if err := c.writeFrame(data); err != nil {
		return fmt.Errorf("send connect: %w", err)
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(handshakeTimeout)
	}
	c.conn.SetReadDeadline(deadline)
	defer c.conn.SetReadDeadline(time.Time{})

	for {
		frame, err := wsutil.ReadServerText(c.rw)
		if err != nil {
			return fmt.Errorf("read connected: %w", err)
		}
		m, err := Decode(frame)
		if err != nil {
			return fmt.Errorf("decode connected: %w", err)
		}
		switch {
		case m.IsServerID():
			continue
		case m.Msg == TypePing:
			pong, _ := Encode(Pong(m.ID))
			if err := c.writeFrame(pong); err != nil {
				return fmt.Errorf("send pong: %w", err)
			}
		case m.Msg == TypeConnected:
			c.session = m.Session
			return nil
		case m.Msg == TypeFailed:
			return fmt.Errorf("%w: server wants version %q", ErrConnectFailed, m.Version)
		default:
			return fmt.Errorf("unexpected %q before connected", m.Msg)
		}
	}
}

// Session returns the server-assigned session id.
func (c *Conn) Session() string { return c.session }

// Done is closed once the connection has ended.
func (c *Conn) Done() <-chan struct{} { return c.done }

// Err returns the error that ended the connection, or nil while it is open
// or after a clean Close.
func (c *Conn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Call invokes a remote method and waits for its result.
func (c *Conn) Call(ctx context.Context, method string, params ...any) (json.RawMessage, error) {
	id := uuid.NewString()
	ch := make(chan Message, 1)

	c.mu.Lock()
	c.calls[id] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.calls, id)
		c.mu.Unlock()
	}()

	if err := c.send(ctx, Method(id, method, params...)); err != nil {
		return nil, err
	}

	select {
	case m := <-ch:
		if m.Error != nil {
			return nil, fmt.Errorf("method %s: %w", method, m.Error)
		}
		return m.Result, nil
	case <-c.done:
		return nil, c.closedErr()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Subscribe starts a subscription and waits until the server marks it ready.
// It returns the subscription id.
func (c *Conn) Subscribe(ctx context.Context, name string, params ...any) (string, error) {
	id := uuid.NewString()
	ch := make(chan Message, 1)

	c.mu.Lock()
	c.pending[id] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	if err := c.send(ctx, Sub(id, name, params...)); err != nil {
		return "", err
	}

	select {
	case m := <-ch:
		if m.Msg == TypeNoSub {
			if m.Error != nil {
				return "", fmt.Errorf("subscribe %s: %w", name, m.Error)
			}
			return "", fmt.Errorf("subscribe %s: rejected", name)
		}
		c.mu.Lock()
		c.active = append(c.active, id)
		c.mu.Unlock()
		return id, nil
	case <-c.done:
		return "", c.closedErr()
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Unsubscribe stops a subscription. It does not wait for the server's nosub.
func (c *Conn) Unsubscribe(ctx context.Context, id string) error {
	c.mu.Lock()
	c.active = slices.DeleteFunc(c.active, func(s string) bool { return s == id })
	c.mu.Unlock()
	return c.send(ctx, Unsub(id))
}

// UnsubscribeAll stops every ready subscription, returning the first error.
func (c *Conn) UnsubscribeAll(ctx context.Context) error {
	c.mu.Lock()
	ids := slices.Clone(c.active)
	c.mu.Unlock()

	var first error
	for _, id := range ids {
		if err := c.Unsubscribe(ctx, id); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Subscriptions returns the ids of ready subscriptions.
func (c *Conn) Subscriptions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.active)
}

// Close disconnects. Safe to call more than once.
func (c *Conn) Close() error {
	return c.shutdown(nil)
}

func (c *Conn) shutdown(cause error) error {
	var err error
	c.once.Do(func() {
		c.mu.Lock()
		c.err = cause
		c.mu.Unlock()
		close(c.done)

		if cause == nil {
			c.flush()
		}
		var buf bytes.Buffer
		if werr := wsutil.WriteClientMessage(&buf, ws.OpClose, ws.NewCloseFrameBody(ws.StatusNormalClosure, "")); werr == nil {
			c.writeFrameRaw(buf.Bytes())
		}
		err = c.conn.Close()
	})
	return err
}

// flush writes frames still queued when a clean Close begins, so unsub
// requests issued just before Close reach the server.
func (c *Conn) flush() {
	for {
		select {
		case data := <-c.sendCh:
			if err := c.writeFrame(data); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (c *Conn) closedErr() error {
	if err := c.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrClosed, err)
	}
	return ErrClosed
}

func (c *Conn) send(ctx context.Context, m Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := Encode(m)
	if err != nil {
		return err
	}
	select {
	case c.sendCh <- data:
		return nil
	case <-c.done:
		return c.closedErr()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Conn) writeFrame(payload []byte) error {
	var buf bytes.Buffer
	if err := wsutil.WriteClientText(&buf, payload); err != nil {
		return err
	}
	return c.writeFrameRaw(buf.Bytes())
}

func (c *Conn) writeFrameRaw(frame []byte) error {
	_, err := lockedWriter{c}.Write(frame)
	return err
}

// --- Internal ---

func (c *Conn) readLoop() {
	for {
		data, err := wsutil.ReadServerText(c.rw)
		if err != nil {
			select {
			case <-c.done:
			default:
				c.logger.Warn("realtime read error, disconnecting", "error", err)
				c.shutdown(err)
			}
			return
		}

		m, err := Decode(data)
		if err != nil {
			c.logger.Debug("bad ddp frame", "error", err)
			continue
		}
		c.dispatch(m)
	}
}

func (c *Conn) dispatch(m Message) {
	switch m.Msg {
	case TypePing:
		data, _ := Encode(Pong(m.ID))
		select {
		case c.sendCh <- data:
		case <-c.done:
		}

	case TypeResult:
		c.mu.Lock()
		ch, ok := c.calls[m.ID]
		c.mu.Unlock()
		if ok {
			deliver(ch, m)
		}

	case TypeReady:
		c.mu.Lock()
		for _, id := range m.Subs {
			if ch, ok := c.pending[id]; ok {
				deliver(ch, m)
			}
		}
		c.mu.Unlock()

	case TypeNoSub:
		c.mu.Lock()
		ch, ok := c.pending[m.ID]
		c.active = slices.DeleteFunc(c.active, func(s string) bool { return s == m.ID })
		c.mu.Unlock()
		if ok {
			deliver(ch, m)
		} else if m.Error != nil {
			c.logger.Warn("subscription ended by server", "id", m.ID, "error", m.Error)
		}

	case TypeAdded, TypeChanged, TypeRemoved:
		if c.handler != nil {
			c.handler(m)
		}

	case TypeError:
		c.logger.Warn("realtime protocol error", "reason", m.Reason)

	case TypePong, TypeUpdated, TypeConnected:
		// informational
	}
}

// deliver hands m to a single-shot waiter without blocking the read loop.
func deliver(ch chan Message, m Message) {
	select {
	case ch <- m:
	default:
	}
}

func (c *Conn) writeLoop() {
	for {
		select {
		case data := <-c.sendCh:
			if err := c.writeFrame(data); err != nil {
				c.logger.Warn("realtime write error", "error", err)
				c.shutdown(err)
				return
			}
		case <-c.done:
			return
		}
	}
}
