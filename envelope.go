package rocketchat

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// Envelope is a response body returned as-is. The adapter only looks at
// the success/status discriminators; everything else is for the caller.
type Envelope struct {
	StatusCode int
	Body       json.RawMessage
}

// discriminator holds the fields Rocket.Chat uses to signal failure.
type discriminator struct {
	Success   *bool           `json:"success"`
	Status    string          `json:"status"`
	ErrorType string          `json:"errorType"`
	Error     json.RawMessage `json:"error"`
	Message   string          `json:"message"`
}

func (e *Envelope) discriminator() discriminator {
	var d discriminator
	if e != nil {
		json.Unmarshal(e.Body, &d)
	}
	return d
}

// Success reports the body's "success" field.
func (e *Envelope) Success() bool {
	d := e.discriminator()
	return d.Success != nil && *d.Success
}

// Status returns the body's "status" field ("success" or "error" on
// login/logout, empty elsewhere).
func (e *Envelope) Status() string { return e.discriminator().Status }

// ErrorType returns the body's "errorType" field.
func (e *Envelope) ErrorType() string { return e.discriminator().ErrorType }

// Err returns an *APIError when the body reports failure, or nil.
func (e *Envelope) Err() error {
	if e == nil {
		return nil
	}
	d := e.discriminator()
	failed := (d.Success != nil && !*d.Success) || d.Status == "error"
	if !failed && e.StatusCode < http.StatusBadRequest {
		return nil
	}

	msg := d.Message
	if len(d.Error) > 0 {
		var s string
		if json.Unmarshal(d.Error, &s) == nil {
			msg = s
		} else {
			msg = string(d.Error)
		}
	}
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	return &APIError{
		StatusCode: e.StatusCode,
		Status:     d.Status,
		ErrorType:  d.ErrorType,
		Message:    msg,
	}
}

// Decode unmarshals the body into v.
func (e *Envelope) Decode(v any) error {
	if e == nil {
		return fmt.Errorf("decode: nil envelope")
	}
	if err := json.Unmarshal(e.Body, v); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return nil
}

// MarshalJSON passes the body through unchanged.
func (e Envelope) MarshalJSON() ([]byte, error) {
	if len(e.Body) == 0 {
		return []byte("null"), nil
	}
	return e.Body, nil
}
