package realtime

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBroker(t *testing.T) *Broker {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewBroker(client, nil)
}

func next(t *testing.T, s *Subscription) Event {
	t.Helper()
	select {
	case ev, ok := <-s.Events():
		require.True(t, ok, "stream closed")
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("no event")
		return Event{}
	}
}

func TestKeys(t *testing.T) {
	assert.Equal(t, DirectKey("a", "b"), DirectKey("b", "a"))
	assert.Equal(t, "dm:a:b", DirectKey("b", "a"))
	assert.Equal(t, "channel:c1", ChannelKey("c1"))
}

func TestSplitKey(t *testing.T) {
	cases := []struct {
		key   string
		scope string
		ids   []string
	}{
		{ChannelKey("c1"), ScopeChannel, []string{"c1"}},
		{DirectKey("b", "a"), ScopeDirect, []string{"a", "b"}},
		{UserKey("u1"), ScopeUser, []string{"u1"}},
		{"channel:", "", nil},
		{"dm:a", "", nil},
		{"guild:1", "", nil},
		{"nokey", "", nil},
	}
	for _, tc := range cases {
		t.Run(tc.key, func(t *testing.T) {
			scope, ids := SplitKey(tc.key)
			assert.Equal(t, tc.scope, scope)
			assert.Equal(t, tc.ids, ids)
		})
	}
}

func TestBroker_PublishSubscribe(t *testing.T) {
	b := newTestBroker(t)
	ctx := context.Background()

	sub, err := b.Subscribe(ctx, ChannelKey("c1"))
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, b.Publish(ctx, ChannelKey("c2"), MessageCreated, map[string]string{"id": "other"}))
	require.NoError(t, b.Publish(ctx, ChannelKey("c1"), MessageCreated, map[string]string{"id": "m1"}))

	ev := next(t, sub)
	assert.Equal(t, MessageCreated, ev.Type)
	assert.Equal(t, "channel:c1", ev.Key)
	assert.JSONEq(t, `{"id":"m1"}`, string(ev.Payload))
}

func TestBroker_SubscribeAll(t *testing.T) {
	b := newTestBroker(t)
	ctx := context.Background()

	sub, err := b.SubscribeAll(ctx)
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, b.Publish(ctx, DirectKey("u1", "u2"), MessageDeleted, map[string]string{"id": "d1"}))
	ev := next(t, sub)
	assert.Equal(t, "dm:u1:u2", ev.Key)
	assert.Equal(t, MessageDeleted, ev.Type)
}

func TestSubscription_Close(t *testing.T) {
	b := newTestBroker(t)
	sub, err := b.Subscribe(context.Background(), ChannelKey("c1"))
	require.NoError(t, err)

	require.NoError(t, sub.Close())
	assert.NoError(t, sub.Close(), "second close is a no-op")

	select {
	case _, ok := <-sub.Events():
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("events not closed")
	}
}
