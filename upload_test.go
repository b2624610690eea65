package rocketchat

import (
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type uploadSeen struct {
	path     string
	token    string
	filename string
	content  string
}

func uploadServer(t *testing.T) (*fakeServer, chan uploadSeen) {
	t.Helper()
	f := newFakeServer(t)
	seen := make(chan uploadSeen, 1)
	f.handle("POST /api/v1/rooms.upload/"+testRoom, func(w http.ResponseWriter, r *http.Request) {
		mr, err := r.MultipartReader()
		if err != nil {
			http.Error(w, `{"success":false}`, http.StatusBadRequest)
			return
		}
		part, err := mr.NextPart()
		if err != nil {
			http.Error(w, `{"success":false}`, http.StatusBadRequest)
			return
		}
		data, _ := io.ReadAll(part)
		seen <- uploadSeen{
			path:     r.URL.Path,
			token:    r.Header.Get("X-Auth-Token"),
			filename: part.FileName(),
			content:  string(data),
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"success":true}`))
	})
	return f, seen
}

func TestUploadAttachment(t *testing.T) {
	f, seen := uploadServer(t)
	c := newTestClient(t, f, testCreds)

	env, err := c.UploadAttachment(t.Context(), "notes.txt", strings.NewReader("hello upload"))
	require.NoError(t, err)
	assert.True(t, env.Success())

	// The call is synchronous: the server has seen the whole file by now.
	select {
	case got := <-seen:
		assert.Equal(t, "/api/v1/rooms.upload/"+testRoom, got.path)
		assert.Equal(t, "auth-token", got.token)
		assert.Equal(t, "notes.txt", got.filename)
		assert.Equal(t, "hello upload", got.content)
	default:
		t.Fatal("upload not received before return")
	}
}

func TestUploadFile(t *testing.T) {
	f, seen := uploadServer(t)
	c := newTestClient(t, f, testCreds)

	path := filepath.Join(t.TempDir(), "report.csv")
	require.NoError(t, os.WriteFile(path, []byte("a,b\n1,2\n"), 0o600))

	_, err := c.UploadFile(t.Context(), path)
	require.NoError(t, err)

	got := <-seen
	assert.Equal(t, "report.csv", got.filename)
	assert.Equal(t, "a,b\n1,2\n", got.content)
}

func TestUploadFileMissing(t *testing.T) {
	f := newFakeServer(t)
	c := newTestClient(t, f, testCreds)

	_, err := c.UploadFile(t.Context(), filepath.Join(t.TempDir(), "missing"))
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.Empty(t, f.all())
}
