package rocketchat

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/NeboLoop/rocketchat-go-sdk/ddp"
	"github.com/NeboLoop/rocketchat-go-sdk/wire"
)

const unsubscribeTimeout = 5 * time.Second

// EventKind classifies realtime events.
type EventKind string

const (
	EventMessage EventKind = "message" // new or edited message in the room
	EventDelete  EventKind = "delete"  // message removed from the room
)

// Event is one realtime notification forwarded to the subscriber.
type Event struct {
	Kind       EventKind
	Collection string
	EventName  string
	RoomID     string
	// Raw is the DDP frame exactly as received.
	Raw json.RawMessage
	// Message is set for EventMessage when the payload decodes.
	Message *wire.RoomMessage
	// DeletedID is set for EventDelete.
	DeletedID string
}

// Subscription is a live realtime session for the client's room.
type Subscription struct {
	conn    *ddp.Conn
	roomID  string
	events  chan Event
	logger  *slog.Logger
	metrics *Metrics

	once   sync.Once
	mu     sync.Mutex
	closed bool
}

// Realtime connects to the realtime endpoint, resumes the REST session and
// subscribes to the room's message, delete and typing streams. It returns
// once every step has completed. If any step fails the subscriptions made
// so far are dropped, the connection is closed and the error is returned.
func (c *Client) Realtime(ctx context.Context) (*Subscription, error) {
	s := &Subscription{
		roomID:  c.roomID,
		events:  make(chan Event, c.cfg.EventBuffer),
		logger:  c.logger.With("room_id", c.roomID),
		metrics: c.metrics,
	}

	conn, err := ddp.Dial(ctx, c.wsURL, ddp.Options{Handler: s.handle, Logger: c.logger})
	if err != nil {
		return nil, c.fail("realtime", fmt.Errorf("realtime connect: %w", err))
	}
	s.conn = conn

	if err := s.start(ctx, c.Credentials().Token); err != nil {
		s.teardown()
		return nil, c.fail("realtime", err)
	}

	c.metrics.connectionDelta(1)
	go s.watch()

	s.logger.Info("realtime subscription ready", "session", conn.Session())
	return s, nil
}

func (s *Subscription) start(ctx context.Context, token string) error {
	if _, err := s.conn.Call(ctx, wire.MethodLogin, wire.ResumeParams{Resume: token}); err != nil {
		return fmt.Errorf("realtime resume login: %w", err)
	}

	subs := []struct{ name, param string }{
		{wire.StreamRoomMessages, s.roomID},
		{wire.StreamNotifyRoom, s.roomID + "/" + wire.EventDeleteMessage},
		{wire.StreamNotifyRoom, s.roomID + "/" + wire.EventTyping},
	}
	for _, sub := range subs {
		if _, err := s.conn.Subscribe(ctx, sub.name, sub.param, false); err != nil {
			return fmt.Errorf("realtime subscribe %s %s: %w", sub.name, sub.param, err)
		}
	}
	return nil
}

// watch closes the event channel once the connection ends.
func (s *Subscription) watch() {
	<-s.conn.Done()

	s.mu.Lock()
	s.closed = true
	close(s.events)
	s.mu.Unlock()

	s.metrics.connectionDelta(-1)
	if err := s.conn.Err(); err != nil {
		s.logger.Warn("realtime connection ended", "error", err)
	} else {
		s.logger.Info("realtime connection closed")
	}
}

// handle runs on the connection's read loop.
func (s *Subscription) handle(m ddp.Message) {
	if m.Msg != ddp.TypeChanged {
		return
	}

	var fields wire.StreamFields
	if err := json.Unmarshal(m.Fields, &fields); err != nil {
		s.logger.Debug("malformed stream fields", "collection", m.Collection, "error", err)
		return
	}

	switch m.Collection {
	case wire.StreamRoomMessages:
		ev := Event{
			Kind:       EventMessage,
			Collection: m.Collection,
			EventName:  fields.EventName,
			RoomID:     fields.EventName,
			Raw:        m.Raw,
		}
		if len(fields.Args) > 0 {
			var msg wire.RoomMessage
			if err := json.Unmarshal(fields.Args[0], &msg); err == nil {
				ev.Message = &msg
				if msg.RoomID != "" {
					ev.RoomID = msg.RoomID
				}
			}
		}
		s.deliver(ev)

	case wire.StreamNotifyRoom:
		roomID, event := wire.SplitEventName(fields.EventName)
		if roomID != s.roomID || event != wire.EventDeleteMessage {
			return
		}
		ev := Event{
			Kind:       EventDelete,
			Collection: m.Collection,
			EventName:  fields.EventName,
			RoomID:     roomID,
			Raw:        m.Raw,
		}
		if len(fields.Args) > 0 {
			var p wire.DeleteMessagePayload
			if err := json.Unmarshal(fields.Args[0], &p); err == nil {
				ev.DeletedID = p.ID
			}
		}
		s.deliver(ev)
	}
}

func (s *Subscription) deliver(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.events <- ev:
		s.metrics.eventDelivered(ev.Kind)
	default:
		s.logger.Warn("realtime event dropped, subscriber too slow", "kind", ev.Kind, "event_name", ev.EventName)
		s.metrics.eventDropped()
	}
}

// Events returns the event stream. It is closed when the connection ends.
func (s *Subscription) Events() <-chan Event { return s.events }

// Done is closed when the connection ends.
func (s *Subscription) Done() <-chan struct{} { return s.conn.Done() }

// Err reports why the connection ended; nil after Close.
func (s *Subscription) Err() error { return s.conn.Err() }

// Close unsubscribes every stream and disconnects. Safe to call more than
// once.
func (s *Subscription) Close() error {
	var err error
	s.once.Do(func() { err = s.teardown() })
	return err
}

func (s *Subscription) teardown() error {
	ctx, cancel := context.WithTimeout(context.Background(), unsubscribeTimeout)
	defer cancel()
	if err := s.conn.UnsubscribeAll(ctx); err != nil {
		s.logger.Debug("unsubscribe on close", "error", err)
	}
	return s.conn.Close()
}
