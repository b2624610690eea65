package rocketchat

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
)

// UploadAttachment posts r as a file named name to the room. The body is
// streamed; the call returns once the server has answered.
func (c *Client) UploadAttachment(ctx context.Context, name string, r io.Reader) (*Envelope, error) {
	const label = "rooms.upload"

	pr, pw := io.Pipe()
	defer pr.Close()
	mw := multipart.NewWriter(pw)

	go func() {
		part, err := mw.CreateFormFile("file", name)
		if err == nil {
			_, err = io.Copy(part, r)
		}
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()

	req, err := c.newRequest(ctx, http.MethodPost, "rooms.upload/"+url.PathEscape(c.roomID), nil, pr, mw.FormDataContentType(), true)
	if err != nil {
		return nil, c.fail(label, err)
	}
	status, body, err := c.roundTrip(req, label)
	if err != nil {
		return nil, c.fail(label, err)
	}
	env, err := envelope(label, status, body)
	if err != nil {
		return nil, c.fail(label, err)
	}
	return env, nil
}

// UploadFile uploads the file at path under its base name.
func (c *Client) UploadFile(ctx context.Context, path string) (*Envelope, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, c.fail("rooms.upload", fmt.Errorf("open attachment: %w", err))
	}
	defer f.Close()
	return c.UploadAttachment(ctx, filepath.Base(path), f)
}
