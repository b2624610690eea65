// Package ddp implements the subset of Meteor's Distributed Data Protocol
// that Rocket.Chat's realtime API speaks: connect, ping/pong, method calls,
// subscriptions and collection change notifications, carried as JSON text
// frames over a WebSocket.
//
// Message shapes (one JSON object per frame, discriminated by "msg"):
//
//	connect   {msg, version, support}          client -> server
//	connected {msg, session}                   server -> client
//	failed    {msg, version}                   server -> client
//	ping/pong {msg, id?}                       both directions
//	method    {msg, id, method, params}        client -> server
//	result    {msg, id, result?, error?}       server -> client
//	sub       {msg, id, name, params}          client -> server
//	unsub     {msg, id}                        client -> server
//	ready     {msg, subs}                      server -> client
//	nosub     {msg, id, error?}                server -> client
//	added/changed/removed {msg, collection, id, fields?}
package ddp

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Version is the only DDP protocol version this package negotiates.
const Version = "1"

// MaxFrameLen bounds a single decoded frame.
const MaxFrameLen = 4 * 1024 * 1024

// Message types.
const (
	TypeConnect   = "connect"
	TypeConnected = "connected"
	TypeFailed    = "failed"
	TypePing      = "ping"
	TypePong      = "pong"
	TypeMethod    = "method"
	TypeResult    = "result"
	TypeUpdated   = "updated"
	TypeSub       = "sub"
	TypeUnsub     = "unsub"
	TypeReady     = "ready"
	TypeNoSub     = "nosub"
	TypeAdded     = "added"
	TypeChanged   = "changed"
	TypeRemoved   = "removed"
	TypeError     = "error"
)

var (
	ErrNoType        = errors.New("ddp: message has no msg field")
	ErrFrameTooLarge = errors.New("ddp: frame exceeds maximum size")
)

// Message is a single DDP frame. Only the fields relevant to Msg are set.
type Message struct {
	Msg        string          `json:"msg,omitempty"`
	ID         string          `json:"id,omitempty"`
	Session    string          `json:"session,omitempty"`
	Version    string          `json:"version,omitempty"`
	Support    []string        `json:"support,omitempty"`
	Method     string          `json:"method,omitempty"`
	Name       string          `json:"name,omitempty"`
	Params     []any           `json:"params,omitempty"`
	Result     json.RawMessage `json:"result,omitempty"`
	Error      *Error          `json:"error,omitempty"`
	Subs       []string        `json:"subs,omitempty"`
	Methods    []string        `json:"methods,omitempty"`
	Collection string          `json:"collection,omitempty"`
	Fields     json.RawMessage `json:"fields,omitempty"`
	Reason     string          `json:"reason,omitempty"`

	// ServerID is sent once by Meteor servers right after the upgrade,
	// before any DDP message, as {"server_id":"0"}.
	ServerID string `json:"server_id,omitempty"`

	// Raw holds the frame exactly as received. Set by Decode only.
	Raw json.RawMessage `json:"-"`
}

// IsServerID reports whether m is the bare server_id greeting.
func (m Message) IsServerID() bool { return m.Msg == "" && m.ServerID != "" }

// Error is the error object carried by result, nosub and error frames.
type Error struct {
	Code      json.RawMessage `json:"error,omitempty"`
	Reason    string          `json:"reason,omitempty"`
	Message   string          `json:"message,omitempty"`
	ErrorType string          `json:"errorType,omitempty"`
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Reason
	}
	if len(e.Code) > 0 {
		return fmt.Sprintf("ddp: %s: %s", string(e.Code), msg)
	}
	return "ddp: " + msg
}

// Encode serialises a message into a text frame payload.
func Encode(m Message) ([]byte, error) {
	if m.Msg == "" {
		return nil, ErrNoType
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("ddp: encode %s: %w", m.Msg, err)
	}
	if len(data) > MaxFrameLen {
		return nil, ErrFrameTooLarge
	}
	return data, nil
}

// Decode parses a text frame payload into a message.
func Decode(data []byte) (Message, error) {
	if len(data) > MaxFrameLen {
		return Message{}, ErrFrameTooLarge
	}
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, fmt.Errorf("ddp: decode: %w", err)
	}
	if m.Msg == "" && !m.IsServerID() {
		return Message{}, ErrNoType
	}
	m.Raw = data
	return m, nil
}

// Connect builds the opening handshake message.
func Connect() Message {
	return Message{Msg: TypeConnect, Version: Version, Support: []string{Version}}
}

// Pong builds the reply to a server ping, echoing its id.
func Pong(id string) Message {
	return Message{Msg: TypePong, ID: id}
}

// Method builds a remote method call.
func Method(id, method string, params ...any) Message {
	if params == nil {
		params = []any{}
	}
	return Message{Msg: TypeMethod, ID: id, Method: method, Params: params}
}

// Sub builds a subscription request.
func Sub(id, name string, params ...any) Message {
	if params == nil {
		params = []any{}
	}
	return Message{Msg: TypeSub, ID: id, Name: name, Params: params}
}

// Unsub builds an unsubscribe request.
func Unsub(id string) Message {
	return Message{Msg: TypeUnsub, ID: id}
}
