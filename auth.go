package rocketchat

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strings"
)

var (
	whitespaceRun = regexp.MustCompile(`\s+`)
	validUsername = regexp.MustCompile(`^[0-9a-zA-Z_.-]+$`)
)

// NormalizeUsername turns a display name into a username candidate:
// whitespace runs become "." and the result is lowercased.
func NormalizeUsername(name string) string {
	return strings.ToLower(whitespaceRun.ReplaceAllString(name, "."))
}

// ValidUsername reports whether name uses only the characters the server
// accepts in usernames.
func ValidUsername(name string) bool {
	return validUsername.MatchString(name)
}

// LoginWithIdentityProvider runs signIn, exchanges its tokens for a
// Rocket.Chat session and stores the session credentials. Accounts created
// by the exchange have no username yet; one is provisioned from the
// display name before returning.
func (c *Client) LoginWithIdentityProvider(ctx context.Context, signIn SignInFunc) (*LoginResult, error) {
	tokens, err := signIn(ctx)
	if err != nil {
		return nil, err
	}

	env, err := c.doJSONAs(ctx, http.MethodPost, "login", "login", nil, LoginRequest{
		ServiceName: c.cfg.LoginService,
		AccessToken: tokens.AccessToken,
		IDToken:     tokens.IDToken,
		ExpiresIn:   c.cfg.LoginExpiresIn,
	}, false)
	if err != nil {
		return nil, err
	}

	var resp LoginResponse
	if err := env.Decode(&resp); err != nil {
		return nil, c.fail("login", err)
	}
	if resp.Status != "success" {
		apiErr := env.Err()
		if apiErr == nil {
			apiErr = &APIError{StatusCode: env.StatusCode, Status: resp.Status, Message: "unexpected login status"}
		}
		return nil, c.fail("login", fmt.Errorf("%w: %w", ErrLoginFailed, apiErr))
	}

	if err := c.SetCredentials(Credentials{Token: resp.Data.AuthToken, UserID: resp.Data.UserID}); err != nil {
		return nil, c.fail("login", err)
	}
	c.logger.Info("logged in", "user_id", resp.Data.UserID, "username", resp.Data.Me.Username)

	result := &LoginResult{Status: resp.Status, Me: resp.Data.Me}
	if resp.Data.Me.Username == "" {
		update, err := c.ProvisionUsername(ctx, resp.Data.UserID, resp.Data.Me.Name)
		if err != nil {
			c.logger.Warn("username provisioning failed", "user_id", resp.Data.UserID, "error", err)
		}
		result.UsernameUpdate = update
	}
	return result, nil
}

// Logout ends the server session. The stored credentials are cleared once
// the server has answered, whatever the answer says; on a transport
// failure they are left untouched.
func (c *Client) Logout(ctx context.Context) (*Envelope, error) {
	req, err := c.newRequest(ctx, http.MethodPost, "logout", nil, nil, "application/json", true)
	if err != nil {
		return nil, c.fail("logout", err)
	}
	status, body, err := c.roundTrip(req, "logout")
	if err != nil {
		return nil, c.fail("logout", err)
	}

	if err := c.SetCredentials(Credentials{}); err != nil {
		return nil, c.fail("logout", err)
	}

	env, err := envelope("logout", status, body)
	if err != nil {
		return nil, c.fail("logout", err)
	}
	return env, nil
}

// ProvisionUsername gives userID a username derived from displayName. The
// normalized name is tried first; if it is malformed or the server cannot
// save it, the server's own suggestion is used instead.
func (c *Client) ProvisionUsername(ctx context.Context, userID, displayName string) (*Envelope, error) {
	candidate := NormalizeUsername(displayName)
	if !ValidUsername(candidate) {
		c.logger.Debug("username candidate rejected locally", "candidate", candidate)
		return c.usernameFromSuggestion(ctx, userID)
	}

	env, err := c.UpdateUsername(ctx, userID, candidate)
	if err != nil {
		return nil, err
	}
	if !env.Success() && env.ErrorType() == ErrTypeCouldNotSaveIdentity {
		c.logger.Debug("username candidate rejected by server", "candidate", candidate)
		return c.usernameFromSuggestion(ctx, userID)
	}
	return env, nil
}

func (c *Client) usernameFromSuggestion(ctx context.Context, userID string) (*Envelope, error) {
	env, err := c.UsernameSuggestion(ctx)
	if err != nil {
		return nil, err
	}
	var suggestion UsernameSuggestionResponse
	if err := env.Decode(&suggestion); err != nil {
		return nil, c.fail("users.getUsernameSuggestion", err)
	}
	if !suggestion.Success || suggestion.Result == "" {
		return nil, ErrNoUsernameSuggestion
	}
	return c.UpdateUsername(ctx, userID, suggestion.Result)
}

// UsernameSuggestion asks the server for an unused username.
func (c *Client) UsernameSuggestion(ctx context.Context) (*Envelope, error) {
	return c.doJSON(ctx, http.MethodGet, "users.getUsernameSuggestion", nil, nil)
}

// UpdateUsername sets the username of userID.
func (c *Client) UpdateUsername(ctx context.Context, userID, username string) (*Envelope, error) {
	return c.doJSON(ctx, http.MethodPost, "users.update", nil, UpdateUserRequest{
		UserID: userID,
		Data:   UpdateUserData{Username: username},
	})
}
