package rocketchat

import "context"

// --------------------------------------------------------------------------
// Authentication Types
// --------------------------------------------------------------------------

// IdentityTokens are issued by an external identity provider sign-in.
type IdentityTokens struct {
	AccessToken string `json:"access_token"`
	IDToken     string `json:"id_token"`
}

// SignInFunc performs the identity provider sign-in (browser popup, device
// flow, ...) and returns its tokens. The adapter never implements it.
type SignInFunc func(ctx context.Context) (IdentityTokens, error)

// LoginRequest is sent to POST /api/v1/login for OAuth service logins.
type LoginRequest struct {
	ServiceName string `json:"serviceName"`
	AccessToken string `json:"accessToken"`
	IDToken     string `json:"idToken"`
	ExpiresIn   int    `json:"expiresIn"`
}

// LoginResponse is returned by POST /api/v1/login.
type LoginResponse struct {
	Status  string    `json:"status"`
	Message string    `json:"message,omitempty"`
	Data    LoginData `json:"data"`
}

// LoginData carries the new session and the caller's profile.
type LoginData struct {
	AuthToken string  `json:"authToken"`
	UserID    string  `json:"userId"`
	Me        Profile `json:"me"`
}

// LoginResult is what LoginWithIdentityProvider hands back.
type LoginResult struct {
	Status string
	Me     Profile
	// UsernameUpdate is the users.update answer when a username had to be
	// provisioned during login, nil otherwise.
	UsernameUpdate *Envelope
}

// --------------------------------------------------------------------------
// User Types
// --------------------------------------------------------------------------

// Email is one of the account's addresses.
type Email struct {
	Address  string `json:"address"`
	Verified bool   `json:"verified"`
}

// Profile is the subset of the account document returned by /me and login.
type Profile struct {
	ID        string   `json:"_id"`
	Username  string   `json:"username,omitempty"`
	Name      string   `json:"name,omitempty"`
	Status    string   `json:"status,omitempty"`
	Active    bool     `json:"active,omitempty"`
	UTCOffset float64  `json:"utcOffset,omitempty"`
	Emails    []Email  `json:"emails,omitempty"`
	Roles     []string `json:"roles,omitempty"`
}

// UpdateUserRequest is sent to POST /api/v1/users.update.
type UpdateUserRequest struct {
	UserID string         `json:"userId"`
	Data   UpdateUserData `json:"data"`
}

// UpdateUserData holds the fields being changed.
type UpdateUserData struct {
	Username string `json:"username"`
}

// UsernameSuggestionResponse is returned by GET /api/v1/users.getUsernameSuggestion.
type UsernameSuggestionResponse struct {
	Success bool   `json:"success"`
	Result  string `json:"result"`
}

// --------------------------------------------------------------------------
// Chat Types
// --------------------------------------------------------------------------

// SendMessageRequest is sent to POST /api/v1/chat.sendMessage.
type SendMessageRequest struct {
	Message OutgoingMessage `json:"message"`
}

// OutgoingMessage is the message being posted.
type OutgoingMessage struct {
	RoomID string `json:"rid"`
	Msg    string `json:"msg"`
}

// DeleteMessageRequest is sent to POST /api/v1/chat.delete.
type DeleteMessageRequest struct {
	RoomID string `json:"roomId"`
	MsgID  string `json:"msgId"`
	AsUser bool   `json:"asUser"`
}

// UpdateMessageRequest is sent to POST /api/v1/chat.update.
type UpdateMessageRequest struct {
	RoomID string `json:"roomId"`
	MsgID  string `json:"msgId"`
	Text   string `json:"text"`
}

// MessageIDRequest is the body of star, unstar, pin and unpin.
type MessageIDRequest struct {
	MessageID string `json:"messageId"`
}

// ReactRequest is sent to POST /api/v1/chat.react.
type ReactRequest struct {
	MessageID   string `json:"messageId"`
	Emoji       string `json:"emoji"`
	ShouldReact bool   `json:"shouldReact"`
}
