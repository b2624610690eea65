package rocketchat

import (
	"context"
	"encoding/json"
	"net/http"
)

// Every method here is one authenticated REST call scoped to the client's
// room. The response body comes back as an *Envelope whatever its HTTP
// status; only transport failures and non-JSON bodies return an error.

// --------------------------------------------------------------------------
// Room
// --------------------------------------------------------------------------

// ChannelInfo fetches the room document.
func (c *Client) ChannelInfo(ctx context.Context) (*Envelope, error) {
	return c.doJSON(ctx, http.MethodGet, "channels.info", roomQuery(c.roomID), nil)
}

// Messages fetches the room history. Anonymous selects the reduced
// read-only endpoint, which servers allow without a logged-in user when
// anonymous read is enabled.
func (c *Client) Messages(ctx context.Context, anonymous bool) (*Envelope, error) {
	endpoint := "channels.messages"
	if anonymous {
		endpoint = "channels.anonymousread"
	}
	return c.doJSON(ctx, http.MethodGet, endpoint, roomQuery(c.roomID), nil)
}

// ChannelMembers lists the room's members.
func (c *Client) ChannelMembers(ctx context.Context) (*Envelope, error) {
	return c.doJSON(ctx, http.MethodGet, "channels.members", roomQuery(c.roomID), nil)
}

// Me fetches the signed-in account.
func (c *Client) Me(ctx context.Context) (*Envelope, error) {
	return c.doJSON(ctx, http.MethodGet, "me", nil, nil)
}

// --------------------------------------------------------------------------
// Messages
// --------------------------------------------------------------------------

// SendMessage posts text to the room.
func (c *Client) SendMessage(ctx context.Context, text string) (*Envelope, error) {
	return c.doJSON(ctx, http.MethodPost, "chat.sendMessage", nil, SendMessageRequest{
		Message: OutgoingMessage{RoomID: c.roomID, Msg: text},
	})
}

// DeleteMessage removes a message, acting as the signed-in user.
func (c *Client) DeleteMessage(ctx context.Context, msgID string) (*Envelope, error) {
	return c.doJSON(ctx, http.MethodPost, "chat.delete", nil, DeleteMessageRequest{
		RoomID: c.roomID,
		MsgID:  msgID,
		AsUser: true,
	})
}

// UpdateMessage replaces a message's text.
func (c *Client) UpdateMessage(ctx context.Context, msgID, text string) (*Envelope, error) {
	return c.doJSON(ctx, http.MethodPost, "chat.update", nil, UpdateMessageRequest{
		RoomID: c.roomID,
		MsgID:  msgID,
		Text:   text,
	})
}

// ReactToMessage sets (shouldReact) or clears an emoji reaction.
func (c *Client) ReactToMessage(ctx context.Context, emoji, msgID string, shouldReact bool) (*Envelope, error) {
	return c.doJSON(ctx, http.MethodPost, "chat.react", nil, ReactRequest{
		MessageID:   msgID,
		Emoji:       emoji,
		ShouldReact: shouldReact,
	})
}

// --------------------------------------------------------------------------
// Stars
// --------------------------------------------------------------------------

// StarMessage stars a message for the signed-in user.
func (c *Client) StarMessage(ctx context.Context, msgID string) (*Envelope, error) {
	return c.doJSON(ctx, http.MethodPost, "chat.starMessage", nil, MessageIDRequest{MessageID: msgID})
}

// UnstarMessage removes the signed-in user's star.
func (c *Client) UnstarMessage(ctx context.Context, msgID string) (*Envelope, error) {
	return c.doJSON(ctx, http.MethodPost, "chat.unStarMessage", nil, MessageIDRequest{MessageID: msgID})
}

// StarredMessages lists messages in the room starred by the signed-in user.
func (c *Client) StarredMessages(ctx context.Context) (*Envelope, error) {
	return c.doJSON(ctx, http.MethodGet, "chat.getStarredMessages", roomQuery(c.roomID), nil)
}

// --------------------------------------------------------------------------
// Pins
// --------------------------------------------------------------------------

// PinMessage pins a message. Unlike the other calls, a failure also yields
// an envelope, whose body is {"error": "<reason>"}.
func (c *Client) PinMessage(ctx context.Context, msgID string) (*Envelope, error) {
	env, err := c.doJSON(ctx, http.MethodPost, "chat.pinMessage", nil, MessageIDRequest{MessageID: msgID})
	if err != nil {
		body, _ := json.Marshal(map[string]string{"error": err.Error()})
		return &Envelope{Body: body}, err
	}
	return env, nil
}

// UnpinMessage unpins a message.
func (c *Client) UnpinMessage(ctx context.Context, msgID string) (*Envelope, error) {
	return c.doJSON(ctx, http.MethodPost, "chat.unPinMessage", nil, MessageIDRequest{MessageID: msgID})
}

// PinnedMessages lists the room's pinned messages.
func (c *Client) PinnedMessages(ctx context.Context) (*Envelope, error) {
	return c.doJSON(ctx, http.MethodGet, "chat.getPinnedMessages", roomQuery(c.roomID), nil)
}
