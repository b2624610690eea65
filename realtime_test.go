package rocketchat

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NeboLoop/rocketchat-go-sdk/ddp"
	"github.com/NeboLoop/rocketchat-go-sdk/ddp/ddptest"
	"github.com/NeboLoop/rocketchat-go-sdk/wire"
)

const wait = 2 * time.Second

func newRealtimeClient(t *testing.T, srv *ddptest.Server, cfg Config) *Client {
	t.Helper()
	cfg.Host = srv.URL
	cfg.RoomID = testRoom
	if cfg.Store == nil {
		cfg.Store = NewMemoryStore(testCreds)
	}
	c, err := New(cfg)
	require.NoError(t, err)
	return c
}

func startRealtime(t *testing.T, srv *ddptest.Server, cfg Config) (*Subscription, *ddptest.Conn) {
	t.Helper()
	c := newRealtimeClient(t, srv, cfg)
	sub, err := c.Realtime(t.Context())
	require.NoError(t, err)
	t.Cleanup(func() { sub.Close() })

	sc := srv.Accept(wait)
	require.NotNil(t, sc, "no realtime connection")
	return sub, sc
}

func nextEvent(t *testing.T, sub *Subscription) Event {
	t.Helper()
	select {
	case ev, ok := <-sub.Events():
		require.True(t, ok, "events closed")
		return ev
	case <-time.After(wait):
		t.Fatal("no event")
		return Event{}
	}
}

func roomMessageFrame(rid, id, text string) string {
	return `{"msg":"changed","collection":"stream-room-messages","id":"id","fields":{"eventName":"` + rid +
		`","args":[{"_id":"` + id + `","rid":"` + rid + `","msg":"` + text + `","u":{"_id":"u1","username":"jane"}}]}}`
}

func notifyFrame(eventName, id string) string {
	return `{"msg":"changed","collection":"stream-notify-room","id":"id","fields":{"eventName":"` + eventName +
		`","args":[{"_id":"` + id + `"}]}}`
}

func TestRealtimeHandshakeAndSubscriptions(t *testing.T) {
	srv := ddptest.NewServer()
	defer srv.Close()

	_, sc := startRealtime(t, srv, Config{})

	m, ok := sc.NextOf(ddp.TypeConnect, wait)
	require.True(t, ok)
	assert.Equal(t, ddp.Version, m.Version)

	m, ok = sc.NextOf(ddp.TypeMethod, wait)
	require.True(t, ok)
	assert.Equal(t, wire.MethodLogin, m.Method)
	assert.Equal(t, []any{map[string]any{"resume": "auth-token"}}, m.Params)

	want := [][]any{
		{wire.StreamRoomMessages, []any{testRoom, false}},
		{wire.StreamNotifyRoom, []any{testRoom + "/deleteMessage", false}},
		{wire.StreamNotifyRoom, []any{testRoom + "/typing", false}},
	}
	for _, w := range want {
		m, ok = sc.NextOf(ddp.TypeSub, wait)
		require.True(t, ok)
		assert.Equal(t, w[0], m.Name)
		assert.Equal(t, w[1], m.Params)
	}
}

func TestRealtimeForwardsRoomMessages(t *testing.T) {
	srv := ddptest.NewServer()
	defer srv.Close()

	sub, sc := startRealtime(t, srv, Config{})

	frame := roomMessageFrame(testRoom, "m1", "hello")
	require.NoError(t, sc.SendRaw([]byte(frame)))

	ev := nextEvent(t, sub)
	assert.Equal(t, EventMessage, ev.Kind)
	assert.Equal(t, wire.StreamRoomMessages, ev.Collection)
	assert.Equal(t, testRoom, ev.RoomID)
	assert.Equal(t, frame, string(ev.Raw))
	require.NotNil(t, ev.Message)
	assert.Equal(t, "m1", ev.Message.ID)
	assert.Equal(t, "hello", ev.Message.Msg)
	assert.Equal(t, "jane", ev.Message.User.Username)
}

func TestRealtimeForwardsUndecodableRoomMessages(t *testing.T) {
	srv := ddptest.NewServer()
	defer srv.Close()

	sub, sc := startRealtime(t, srv, Config{})

	frame := `{"msg":"changed","collection":"stream-room-messages","id":"id","fields":{"eventName":"GENERAL","args":["not a message"]}}`
	require.NoError(t, sc.SendRaw([]byte(frame)))

	ev := nextEvent(t, sub)
	assert.Equal(t, EventMessage, ev.Kind)
	assert.Nil(t, ev.Message)
	assert.Equal(t, frame, string(ev.Raw))
}

func TestRealtimeFiltersNotifications(t *testing.T) {
	srv := ddptest.NewServer()
	defer srv.Close()

	sub, sc := startRealtime(t, srv, Config{})

	require.NoError(t, sc.SendRaw([]byte(notifyFrame("OTHER/deleteMessage", "x1"))))
	require.NoError(t, sc.SendRaw([]byte(notifyFrame(testRoom+"/typing", "x2"))))
	require.NoError(t, sc.SendRaw([]byte(notifyFrame(testRoom+"/deleteMessageBulk", "x3"))))
	require.NoError(t, sc.SendRaw([]byte(notifyFrame(testRoom, "x4"))))
	match := notifyFrame(testRoom+"/deleteMessage", "m7")
	require.NoError(t, sc.SendRaw([]byte(match)))

	ev := nextEvent(t, sub)
	assert.Equal(t, EventDelete, ev.Kind)
	assert.Equal(t, testRoom+"/deleteMessage", ev.EventName)
	assert.Equal(t, testRoom, ev.RoomID)
	assert.Equal(t, "m7", ev.DeletedID)
	assert.Equal(t, match, string(ev.Raw))

	select {
	case ev := <-sub.Events():
		t.Fatalf("unexpected event %+v", ev)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestRealtimeIgnoresAddedAndRemoved(t *testing.T) {
	srv := ddptest.NewServer()
	defer srv.Close()

	sub, sc := startRealtime(t, srv, Config{})

	require.NoError(t, sc.Send(ddp.Message{Msg: ddp.TypeAdded, Collection: wire.StreamRoomMessages, ID: "id", Fields: json.RawMessage(`{}`)}))
	require.NoError(t, sc.Send(ddp.Message{Msg: ddp.TypeRemoved, Collection: wire.StreamRoomMessages, ID: "id"}))
	require.NoError(t, sc.SendRaw([]byte(roomMessageFrame(testRoom, "m2", "after"))))

	ev := nextEvent(t, sub)
	require.NotNil(t, ev.Message)
	assert.Equal(t, "m2", ev.Message.ID)
}

func TestRealtimeLoginFailure(t *testing.T) {
	srv := ddptest.NewServer()
	defer srv.Close()
	srv.FailMethod = func(ddp.Message) bool { return true }

	c := newRealtimeClient(t, srv, Config{})
	sub, err := c.Realtime(t.Context())
	require.Error(t, err)
	assert.Nil(t, sub)

	sc := srv.Accept(wait)
	require.NotNil(t, sc)
	select {
	case <-sc.Closed():
	case <-time.After(wait):
		t.Fatal("connection left open after failed login")
	}
	_, ok := sc.NextOf(ddp.TypeSub, 50*time.Millisecond)
	assert.False(t, ok, "subscribed after failed login")
}

func TestRealtimeSubscribeFailureTearsDown(t *testing.T) {
	srv := ddptest.NewServer()
	defer srv.Close()
	srv.FailSub = func(m ddp.Message) bool {
		return len(m.Params) > 0 && m.Params[0] == testRoom+"/typing"
	}

	c := newRealtimeClient(t, srv, Config{})
	_, err := c.Realtime(t.Context())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "typing")

	sc := srv.Accept(wait)
	require.NotNil(t, sc)

	var subs, unsubs []string
	for {
		m, ok := sc.Next(wait)
		if !ok {
			break
		}
		switch m.Msg {
		case ddp.TypeSub:
			subs = append(subs, m.ID)
		case ddp.TypeUnsub:
			unsubs = append(unsubs, m.ID)
		}
		if len(unsubs) == 2 {
			break
		}
	}
	require.Len(t, subs, 3)
	assert.ElementsMatch(t, subs[:2], unsubs)

	select {
	case <-sc.Closed():
	case <-time.After(wait):
		t.Fatal("connection left open after failed subscribe")
	}
}

func TestRealtimeDialFailure(t *testing.T) {
	srv := ddptest.NewServer()
	srv.RejectConnect = true
	defer srv.Close()

	c := newRealtimeClient(t, srv, Config{})
	_, err := c.Realtime(t.Context())
	assert.ErrorIs(t, err, ddp.ErrConnectFailed)
}

func TestRealtimeClose(t *testing.T) {
	srv := ddptest.NewServer()
	defer srv.Close()

	reg := newRegistry()
	metrics := NewMetrics(reg)
	sub, sc := startRealtime(t, srv, Config{Metrics: metrics})
	assert.Equal(t, 1.0, gaugeValue(t, metrics.RealtimeConnections))

	require.NoError(t, sub.Close())
	assert.NoError(t, sub.Close())

	select {
	case _, ok := <-sub.Events():
		assert.False(t, ok)
	case <-time.After(wait):
		t.Fatal("events not closed")
	}
	assert.NoError(t, sub.Err())

	unsubs := 0
	for unsubs < 3 {
		if _, ok := sc.NextOf(ddp.TypeUnsub, wait); !ok {
			break
		}
		unsubs++
	}
	assert.Equal(t, 3, unsubs)

	require.Eventually(t, func() bool {
		return gaugeValue(t, metrics.RealtimeConnections) == 0
	}, wait, 10*time.Millisecond)
}

func TestRealtimeServerDisconnect(t *testing.T) {
	srv := ddptest.NewServer()
	defer srv.Close()

	sub, sc := startRealtime(t, srv, Config{})
	sc.Close()

	select {
	case _, ok := <-sub.Events():
		assert.False(t, ok)
	case <-time.After(wait):
		t.Fatal("events not closed")
	}
	assert.Error(t, sub.Err())
}

func TestRealtimeDropsWhenBufferFull(t *testing.T) {
	srv := ddptest.NewServer()
	defer srv.Close()

	reg := newRegistry()
	metrics := NewMetrics(reg)
	sub, sc := startRealtime(t, srv, Config{Metrics: metrics, EventBuffer: 1})

	require.NoError(t, sc.SendRaw([]byte(roomMessageFrame(testRoom, "m1", "one"))))
	require.NoError(t, sc.SendRaw([]byte(roomMessageFrame(testRoom, "m2", "two"))))

	require.Eventually(t, func() bool {
		return counterValue(t, metrics.RealtimeDropped) == 1
	}, wait, 10*time.Millisecond)

	ev := nextEvent(t, sub)
	assert.Equal(t, "m1", ev.Message.ID)
	assert.Equal(t, 1.0, counterValue(t, metrics.RealtimeEvents.WithLabelValues("message")))
}
