// Package wire defines the JSON payload types carried inside Rocket.Chat
// realtime (DDP) frames: stream names, resume login parameters and the
// message and delete notification shapes.
package wire

import (
	"encoding/json"
	"strings"
)

// Stream names.
const (
	StreamRoomMessages = "stream-room-messages"
	StreamNotifyRoom   = "stream-notify-room"
)

// Room notification event names (the part after "<roomId>/").
const (
	EventDeleteMessage = "deleteMessage"
	EventTyping        = "typing"
)

// MethodLogin is the DDP method used to resume a REST session.
const MethodLogin = "login"

// ResumeParams is the single parameter of a resume login call.
type ResumeParams struct {
	Resume string `json:"resume"`
}

// ResumeResult is returned by a successful resume login.
type ResumeResult struct {
	ID           string          `json:"id"`
	Token        string          `json:"token"`
	TokenExpires json.RawMessage `json:"tokenExpires,omitempty"`
	Type         string          `json:"type,omitempty"`
}

// StreamFields is the "fields" object of a stream "changed" frame.
type StreamFields struct {
	EventName string            `json:"eventName"`
	Args      []json.RawMessage `json:"args"`
}

// SplitEventName splits a notify-room event name "<roomId>/<event>" at the
// first slash. A name without a slash yields an empty event.
func SplitEventName(name string) (roomID, event string) {
	roomID, event, _ = strings.Cut(name, "/")
	return roomID, event
}

// UserRef identifies the author of a message.
type UserRef struct {
	ID       string `json:"_id"`
	Username string `json:"username,omitempty"`
	Name     string `json:"name,omitempty"`
}

// Reaction lists who reacted with one emoji.
type Reaction struct {
	Usernames []string `json:"usernames"`
}

// Attachment is a message attachment as delivered by the server.
type Attachment struct {
	Title       string `json:"title,omitempty"`
	TitleLink   string `json:"title_link,omitempty"`
	Type        string `json:"type,omitempty"`
	Description string `json:"description,omitempty"`
	ImageURL    string `json:"image_url,omitempty"`
}

// RoomMessage is a chat message as delivered on stream-room-messages and
// returned by history endpoints.
type RoomMessage struct {
	ID          string              `json:"_id"`
	RoomID      string              `json:"rid"`
	Msg         string              `json:"msg"`
	TS          json.RawMessage     `json:"ts,omitempty"`
	UpdatedAt   json.RawMessage     `json:"_updatedAt,omitempty"`
	EditedAt    json.RawMessage     `json:"editedAt,omitempty"`
	User        UserRef             `json:"u"`
	Type        string              `json:"t,omitempty"`
	Pinned      bool                `json:"pinned,omitempty"`
	Starred     []UserRef           `json:"starred,omitempty"`
	Reactions   map[string]Reaction `json:"reactions,omitempty"`
	Attachments []Attachment        `json:"attachments,omitempty"`
}

// DeleteMessagePayload is the argument of a <roomId>/deleteMessage event.
type DeleteMessagePayload struct {
	ID string `json:"_id"`
}
