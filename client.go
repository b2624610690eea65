// Package rocketchat is a client for one Rocket.Chat room. It signs in
// through an external identity provider, wraps the room-scoped REST API
// (send, edit, delete, react, pin, star, history, members, upload) and
// streams new and deleted messages over the realtime API.
package rocketchat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/klauspost/compress/gzhttp"
)

const (
	defaultLoginService   = "google"
	defaultLoginExpiresIn = 3600
	defaultEventBuffer    = 256
)

// Config holds connection parameters.
type Config struct {
	Host   string // server URL (e.g. "https://chat.example.com"); an http:// host disables TLS for realtime too
	RoomID string // the single room every room-scoped call targets

	HTTPClient *http.Client // defaults to a gzip-aware client
	Logger     *slog.Logger // defaults to slog.Default()
	Store      SessionStore // defaults to an empty MemoryStore
	Metrics    *Metrics     // nil disables instrumentation

	LoginService   string // OAuth service name for login, default "google"
	LoginExpiresIn int    // seconds, default 3600
	EventBuffer    int    // realtime event queue length, default 256
}

// Client talks to one room on one Rocket.Chat server.
type Client struct {
	cfg        Config
	roomID     string
	apiBase    string // resolved REST API base URL (e.g. "https://chat.example.com/api/v1")
	wsURL      string // resolved realtime URL (e.g. "wss://chat.example.com/websocket")
	httpClient *http.Client
	logger     *slog.Logger
	store      SessionStore
	metrics    *Metrics
}

// New validates cfg and returns a Client. It does not contact the server.
func New(cfg Config) (*Client, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("rocketchat: host is required")
	}
	if _, err := url.Parse(cfg.Host); err != nil {
		return nil, fmt.Errorf("rocketchat: invalid host %q: %w", cfg.Host, err)
	}
	if cfg.RoomID == "" {
		return nil, fmt.Errorf("rocketchat: room id is required")
	}
	if cfg.LoginService == "" {
		cfg.LoginService = defaultLoginService
	}
	if cfg.LoginExpiresIn <= 0 {
		cfg.LoginExpiresIn = defaultLoginExpiresIn
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = defaultEventBuffer
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Transport: gzhttp.Transport(http.DefaultTransport)}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	store := cfg.Store
	if store == nil {
		store = NewMemoryStore(Credentials{})
	}

	return &Client{
		cfg:        cfg,
		roomID:     cfg.RoomID,
		apiBase:    resolveAPIBase(cfg.Host),
		wsURL:      resolveRealtimeURL(cfg.Host),
		httpClient: httpClient,
		logger:     logger,
		store:      store,
		metrics:    cfg.Metrics,
	}, nil
}

// RoomID returns the room this client is scoped to.
func (c *Client) RoomID() string { return c.roomID }

// RealtimeURL returns the WebSocket endpoint used by Realtime.
func (c *Client) RealtimeURL() string { return c.wsURL }

// Credentials returns the stored session credentials. A store failure is
// logged and reads as empty credentials.
func (c *Client) Credentials() Credentials {
	creds, err := c.store.Load()
	if err != nil {
		c.logger.Error("load session credentials", "error", err)
		return Credentials{}
	}
	return creds
}

// SetCredentials replaces the stored session credentials. Passing the zero
// value clears them.
func (c *Client) SetCredentials(creds Credentials) error {
	if err := c.store.Save(creds); err != nil {
		return fmt.Errorf("save session credentials: %w", err)
	}
	return nil
}

// --- HTTP helpers ---

func roomQuery(roomID string) url.Values {
	return url.Values{"roomId": {roomID}}
}

// newRequest builds a request against the REST API. When authed is set the
// current credentials are attached.
func (c *Client) newRequest(ctx context.Context, method, endpoint string, query url.Values, body io.Reader, contentType string, authed bool) (*http.Request, error) {
	u := c.apiBase + "/" + endpoint
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if authed {
		creds := c.Credentials()
		req.Header.Set("X-Auth-Token", creds.Token)
		req.Header.Set("X-User-Id", creds.UserID)
	}
	return req, nil
}

// roundTrip sends req and reads the whole response body.
func (c *Client) roundTrip(req *http.Request, endpoint string) (int, []byte, error) {
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.observeRequest(endpoint, "error", time.Since(start))
		return 0, nil, fmt.Errorf("%s %s: %w", req.Method, endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	c.metrics.observeRequest(endpoint, strconv.Itoa(resp.StatusCode), time.Since(start))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read %s response: %w", endpoint, err)
	}
	return resp.StatusCode, body, nil
}

// envelope wraps a response body, which must be JSON whatever the status.
func envelope(endpoint string, status int, body []byte) (*Envelope, error) {
	if !json.Valid(body) {
		return nil, fmt.Errorf("decode %s response: status %d: body is not JSON", endpoint, status)
	}
	return &Envelope{StatusCode: status, Body: json.RawMessage(body)}, nil
}

// fail logs a failed call at the call boundary and passes err through.
func (c *Client) fail(endpoint string, err error) error {
	if errors.Is(err, context.Canceled) {
		c.logger.Debug("rocketchat request canceled", "endpoint", endpoint)
		return err
	}
	c.logger.Error("rocketchat request failed", "endpoint", endpoint, "error", err)
	return err
}

// doJSON sends an authed request with an optional JSON body and returns the
// response envelope, whatever its HTTP status.
func (c *Client) doJSON(ctx context.Context, method, endpoint string, query url.Values, reqBody any) (*Envelope, error) {
	return c.doJSONAs(ctx, method, endpoint, endpoint, query, reqBody, true)
}

func (c *Client) doJSONAs(ctx context.Context, method, endpoint, label string, query url.Values, reqBody any, authed bool) (*Envelope, error) {
	var body io.Reader
	if reqBody != nil {
		b, err := json.Marshal(reqBody)
		if err != nil {
			return nil, c.fail(label, fmt.Errorf("marshal request: %w", err))
		}
		body = bytes.NewReader(b)
	}

	req, err := c.newRequest(ctx, method, endpoint, query, body, "application/json", authed)
	if err != nil {
		return nil, c.fail(label, err)
	}

	status, respBody, err := c.roundTrip(req, label)
	if err != nil {
		return nil, c.fail(label, err)
	}
	env, err := envelope(label, status, respBody)
	if err != nil {
		return nil, c.fail(label, err)
	}
	return env, nil
}

func resolveAPIBase(host string) string {
	return strings.TrimRight(host, "/") + "/api/v1"
}

// resolveRealtimeURL maps the server URL to its DDP endpoint. Only an
// explicit http:// host selects plain ws://.
func resolveRealtimeURL(host string) string {
	scheme := "wss"
	if strings.HasPrefix(strings.ToLower(host), "http://") {
		scheme = "ws"
	}
	rest := host
	if i := strings.Index(rest, "://"); i >= 0 {
		rest = rest[i+len("://"):]
	}
	return scheme + "://" + strings.TrimRight(rest, "/") + "/websocket"
}
