package ws

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lejs5034/LegionOfBrothers-sub000/internal/realtime"
)

var errNoAccess = errors.New("no access")

type allowList map[string]bool

func (a allowList) AuthorizeContext(_ context.Context, _ string, key string) error {
	if a[key] {
		return nil
	}
	return errNoAccess
}

type harness struct {
	hub    *Hub
	broker *realtime.Broker
	server *httptest.Server
}

func newHarness(t *testing.T, auth Authorizer) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	broker := realtime.NewBroker(rdb, nil)

	hub := NewHub(broker, auth, nil)
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		_ = hub.Run(ctx)
	}()

	r := gin.New()
	r.GET("/ws", func(c *gin.Context) {
		if id := c.Query("user"); id != "" {
			c.Set("user_id", id)
		}
		ServeWs(hub, c)
	})
	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		srv.Close()
		cancel()
		<-stopped
	})
	return &harness{hub: hub, broker: broker, server: srv}
}

func (h *harness) dial(t *testing.T, user string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(h.server.URL, "http") + "/ws?user=" + user
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	require.Eventually(t, func() bool {
		return h.hub.Subscribers(realtime.UserKey(user)) > 0
	}, 2*time.Second, 10*time.Millisecond)
	return conn
}

func read(t *testing.T, conn *websocket.Conn) realtime.Event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var ev realtime.Event
	require.NoError(t, conn.ReadJSON(&ev))
	return ev
}

func TestHub_JoinAndReceive(t *testing.T) {
	key := realtime.ChannelKey("c1")
	h := newHarness(t, allowList{key: true})
	conn := h.dial(t, "u1")

	require.NoError(t, conn.WriteJSON(Request{Action: ActionJoin, Key: key}))
	ack := read(t, conn)
	assert.Equal(t, EventSubscribed, ack.Type)
	assert.Equal(t, key, ack.Key)

	require.NoError(t, h.broker.Publish(context.Background(), key, realtime.MessageCreated, map[string]string{"id": "m1"}))
	ev := read(t, conn)
	assert.Equal(t, realtime.MessageCreated, ev.Type)
	assert.JSONEq(t, `{"id":"m1"}`, string(ev.Payload))
}

func TestHub_OwnNotifications(t *testing.T) {
	h := newHarness(t, allowList{})
	conn := h.dial(t, "u1")

	require.NoError(t, h.broker.Publish(context.Background(), realtime.UserKey("u1"), realtime.MentionCreated, map[string]string{"message_id": "m1"}))
	ev := read(t, conn)
	assert.Equal(t, realtime.MentionCreated, ev.Type)
	assert.Equal(t, realtime.UserKey("u1"), ev.Key)
}

func TestHub_JoinRefused(t *testing.T) {
	h := newHarness(t, allowList{})
	conn := h.dial(t, "u1")

	key := realtime.ChannelKey("secret")
	require.NoError(t, conn.WriteJSON(Request{Action: ActionJoin, Key: key}))
	ev := read(t, conn)
	assert.Equal(t, EventError, ev.Type)
	assert.Contains(t, string(ev.Payload), errNoAccess.Error())
	assert.Zero(t, h.hub.Subscribers(key))

	require.NoError(t, conn.WriteJSON(Request{Action: "shout"}))
	ev = read(t, conn)
	assert.Equal(t, EventError, ev.Type)
	assert.Contains(t, string(ev.Payload), ErrUnknownAction.Error())
}

func TestHub_SwitchContext(t *testing.T) {
	first, second := realtime.ChannelKey("c1"), realtime.DirectKey("u1", "u2")
	h := newHarness(t, allowList{first: true, second: true})
	conn := h.dial(t, "u1")

	require.NoError(t, conn.WriteJSON(Request{Action: ActionJoin, Key: first}))
	read(t, conn)
	require.NoError(t, conn.WriteJSON(Request{Action: ActionJoin, Key: second}))
	read(t, conn)
	assert.Zero(t, h.hub.Subscribers(first))
	assert.Equal(t, 1, h.hub.Subscribers(second))

	ctx := context.Background()
	require.NoError(t, h.broker.Publish(ctx, first, realtime.MessageCreated, map[string]string{"id": "old"}))
	require.NoError(t, h.broker.Publish(ctx, second, realtime.MessageCreated, map[string]string{"id": "new"}))
	ev := read(t, conn)
	assert.Equal(t, second, ev.Key)

	require.NoError(t, conn.WriteJSON(Request{Action: ActionLeave}))
	ack := read(t, conn)
	assert.Equal(t, EventSubscribed, ack.Type)
	assert.Empty(t, ack.Key)
	assert.Zero(t, h.hub.Subscribers(second))
}

func TestHub_Disconnect(t *testing.T) {
	h := newHarness(t, allowList{})
	conn := h.dial(t, "u1")
	require.NoError(t, conn.Close())

	assert.Eventually(t, func() bool {
		return h.hub.Subscribers(realtime.UserKey("u1")) == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestServeWs_Unauthorized(t *testing.T) {
	h := newHarness(t, allowList{})
	url := "ws" + strings.TrimPrefix(h.server.URL, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, 401, resp.StatusCode)
}
