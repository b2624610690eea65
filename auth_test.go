package rocketchat

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signInWith(tokens IdentityTokens) SignInFunc {
	return func(context.Context) (IdentityTokens, error) { return tokens, nil }
}

const loginOK = `{"status":"success","data":{"authToken":"new-token","userId":"user-9","me":{"_id":"user-9","username":"jane","name":"Jane Doe"}}}`

func TestNormalizeUsername(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Jane Doe", "jane.doe"},
		{"Jane   Doe", "jane.doe"},
		{"Jane\tQ\nDoe", "jane.q.doe"},
		{"jane.doe", "jane.doe"},
		{"JANE", "jane"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := NormalizeUsername(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got, NormalizeUsername(got))
		})
	}
}

func TestValidUsername(t *testing.T) {
	assert.True(t, ValidUsername("jane.doe"))
	assert.True(t, ValidUsername("jane_doe-2"))
	assert.False(t, ValidUsername("jane!doe"))
	assert.False(t, ValidUsername(""))
	assert.False(t, ValidUsername("jané"))
}

func TestLoginStoresCredentials(t *testing.T) {
	f := newFakeServer(t)
	f.respond("POST /api/v1/login", http.StatusOK, loginOK)
	c := newTestClient(t, f, Credentials{})

	res, err := c.LoginWithIdentityProvider(t.Context(), signInWith(IdentityTokens{AccessToken: "at", IDToken: "it"}))
	require.NoError(t, err)

	assert.Equal(t, "success", res.Status)
	assert.Equal(t, "jane", res.Me.Username)
	assert.Nil(t, res.UsernameUpdate)
	assert.Equal(t, Credentials{Token: "new-token", UserID: "user-9"}, c.Credentials())

	r := f.last(t)
	assert.Empty(t, r.Header.Get("X-Auth-Token"))
	assert.Equal(t, map[string]any{
		"serviceName": "google",
		"accessToken": "at",
		"idToken":     "it",
		"expiresIn":   float64(3600),
	}, decodeBody(t, r))
}

func TestLoginProvisionsUsername(t *testing.T) {
	f := newFakeServer(t)
	f.respond("POST /api/v1/login", http.StatusOK,
		`{"status":"success","data":{"authToken":"new-token","userId":"user-9","me":{"_id":"user-9","name":"Jane Doe"}}}`)
	f.respond("POST /api/v1/users.update", http.StatusOK, `{"success":true,"user":{"username":"jane.doe"}}`)
	c := newTestClient(t, f, Credentials{})

	res, err := c.LoginWithIdentityProvider(t.Context(), signInWith(IdentityTokens{AccessToken: "at"}))
	require.NoError(t, err)
	require.NotNil(t, res.UsernameUpdate)
	assert.True(t, res.UsernameUpdate.Success())

	r := f.last(t)
	assert.Equal(t, "/api/v1/users.update", r.Path)
	assert.Equal(t, "new-token", r.Header.Get("X-Auth-Token"))
	assert.Equal(t, map[string]any{
		"userId": "user-9",
		"data":   map[string]any{"username": "jane.doe"},
	}, decodeBody(t, r))
}

func TestLoginFailure(t *testing.T) {
	f := newFakeServer(t)
	f.respond("POST /api/v1/login", http.StatusUnauthorized, `{"status":"error","error":"Unauthorized","message":"Unauthorized"}`)
	c := newTestClient(t, f, testCreds)

	_, err := c.LoginWithIdentityProvider(t.Context(), signInWith(IdentityTokens{AccessToken: "bad"}))
	require.ErrorIs(t, err, ErrLoginFailed)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Equal(t, testCreds, c.Credentials())
}

func TestLoginSignInError(t *testing.T) {
	f := newFakeServer(t)
	c := newTestClient(t, f, Credentials{})
	boom := errors.New("popup closed")

	_, err := c.LoginWithIdentityProvider(t.Context(), func(context.Context) (IdentityTokens, error) {
		return IdentityTokens{}, boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, f.all())
}

func TestLogoutClearsCredentials(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"success", http.StatusOK, `{"status":"success","data":{"message":"You've been logged out!"}}`},
		{"error body", http.StatusUnauthorized, `{"status":"error","message":"You must be logged in to do this."}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFakeServer(t)
			f.respond("POST /api/v1/logout", tt.status, tt.body)
			c := newTestClient(t, f, testCreds)

			env, err := c.Logout(t.Context())
			require.NoError(t, err)
			assert.Equal(t, tt.status, env.StatusCode)
			assert.True(t, c.Credentials().Empty())

			r := f.last(t)
			assert.Equal(t, "auth-token", r.Header.Get("X-Auth-Token"))
			assert.Equal(t, "user-1", r.Header.Get("X-User-Id"))
		})
	}
}

func TestLogoutTransportFailureKeepsCredentials(t *testing.T) {
	f := newFakeServer(t)
	c := newTestClient(t, f, testCreds)
	f.Close()

	_, err := c.Logout(t.Context())
	require.Error(t, err)
	assert.Equal(t, testCreds, c.Credentials())
}

func TestProvisionUsernameInvalidUsesSuggestion(t *testing.T) {
	f := newFakeServer(t)
	f.respond("GET /api/v1/users.getUsernameSuggestion", http.StatusOK, `{"success":true,"result":"jane.doe.7"}`)
	c := newTestClient(t, f, testCreds)

	env, err := c.ProvisionUsername(t.Context(), "user-1", "jane!doe")
	require.NoError(t, err)
	assert.True(t, env.Success())

	reqs := f.all()
	require.Len(t, reqs, 2)
	assert.Equal(t, "/api/v1/users.getUsernameSuggestion", reqs[0].Path)
	assert.Equal(t, "/api/v1/users.update", reqs[1].Path)
	assert.Equal(t, map[string]any{
		"userId": "user-1",
		"data":   map[string]any{"username": "jane.doe.7"},
	}, decodeBody(t, reqs[1]))
}

func TestProvisionUsernameServerRejectionUsesSuggestion(t *testing.T) {
	f := newFakeServer(t)
	var updates []string
	f.handle("POST /api/v1/users.update", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if len(updates) == 0 {
			updates = append(updates, "first")
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"success":false,"error":"Could not save identity [error-could-not-save-identity]","errorType":"error-could-not-save-identity"}`))
			return
		}
		updates = append(updates, "second")
		w.Write([]byte(`{"success":true}`))
	})
	f.respond("GET /api/v1/users.getUsernameSuggestion", http.StatusOK, `{"success":true,"result":"jane.doe1"}`)
	c := newTestClient(t, f, testCreds)

	env, err := c.ProvisionUsername(t.Context(), "user-1", "Jane Doe")
	require.NoError(t, err)
	assert.True(t, env.Success())

	reqs := f.all()
	require.Len(t, reqs, 3)
	assert.Equal(t, "jane.doe", decodeBody(t, reqs[0])["data"].(map[string]any)["username"])
	assert.Equal(t, "/api/v1/users.getUsernameSuggestion", reqs[1].Path)
	assert.Equal(t, "jane.doe1", decodeBody(t, reqs[2])["data"].(map[string]any)["username"])
}

func TestProvisionUsernameOtherErrorIsReturned(t *testing.T) {
	f := newFakeServer(t)
	f.respond("POST /api/v1/users.update", http.StatusBadRequest,
		`{"success":false,"error":"Username is already in use","errorType":"error-field-unavailable"}`)
	c := newTestClient(t, f, testCreds)

	env, err := c.ProvisionUsername(t.Context(), "user-1", "Jane Doe")
	require.NoError(t, err)
	assert.Equal(t, ErrTypeFieldUnavailable, env.ErrorType())
	assert.Len(t, f.all(), 1)
}

func TestProvisionUsernameNoSuggestion(t *testing.T) {
	f := newFakeServer(t)
	f.respond("GET /api/v1/users.getUsernameSuggestion", http.StatusOK, `{"success":false}`)
	c := newTestClient(t, f, testCreds)

	_, err := c.ProvisionUsername(t.Context(), "user-1", "!!!")
	assert.ErrorIs(t, err, ErrNoUsernameSuggestion)
}
