// Package realtime fans domain events out over redis pub/sub. Every API node
// publishes to and subscribes from the same redis, so a client connected to
// any node sees every change.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const channelPrefix = "lob:events:"

// Event types carried on the stream.
const (
	MessageCreated = "message.created"
	MessageUpdated = "message.updated"
	MessageDeleted = "message.deleted"
	MentionCreated = "mention.created"
)

var ErrClosed = errors.New("subscription closed")

// Event is one change in a context. Payload is the JSON of the changed row.
type Event struct {
	Type    string          `json:"type"`
	Key     string          `json:"key"`
	Payload json.RawMessage `json:"payload"`
}

// Context key scopes.
const (
	ScopeChannel = "channel"
	ScopeDirect  = "dm"
	ScopeUser    = "user"
)

// ChannelKey is the context key of a server channel.
func ChannelKey(channelID string) string { return ScopeChannel + ":" + channelID }

// DirectKey is the context key of a DM pair; it is the same from both sides.
func DirectKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return ScopeDirect + ":" + a + ":" + b
}

// UserKey addresses notifications for a single user.
func UserKey(userID string) string { return ScopeUser + ":" + userID }

// SplitKey breaks a context key into its scope and ids. A key with an unknown
// scope or the wrong number of ids yields an empty scope.
func SplitKey(key string) (scope string, ids []string) {
	parts := strings.Split(key, ":")
	if len(parts) < 2 {
		return "", nil
	}
	for _, p := range parts[1:] {
		if p == "" {
			return "", nil
		}
	}
	scope, ids = parts[0], parts[1:]
	switch {
	case scope == ScopeChannel && len(ids) == 1,
		scope == ScopeUser && len(ids) == 1,
		scope == ScopeDirect && len(ids) == 2:
		return scope, ids
	}
	return "", nil
}

type Broker struct {
	redis  *redis.Client
	logger *zap.Logger
	buffer int
}

func NewBroker(client *redis.Client, logger *zap.Logger) *Broker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Broker{redis: client, logger: logger.Named("realtime"), buffer: 64}
}

// Publish marshals payload and sends it to every subscriber of key.
func (b *Broker) Publish(ctx context.Context, key, eventType string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	data, err := json.Marshal(Event{Type: eventType, Key: key, Payload: raw})
	if err != nil {
		return err
	}
	if err := b.redis.Publish(ctx, channelPrefix+key, data).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", key, err)
	}
	return nil
}

// Subscribe opens a stream for the given context keys. The subscription is
// confirmed by redis before Subscribe returns, so nothing published after
// that point is missed.
func (b *Broker) Subscribe(ctx context.Context, keys ...string) (*Subscription, error) {
	channels := make([]string, len(keys))
	for i, k := range keys {
		channels[i] = channelPrefix + k
	}
	return b.open(ctx, b.redis.Subscribe(ctx, channels...))
}

// SubscribeAll streams every context. The websocket hub uses it to route
// events to local connections.
func (b *Broker) SubscribeAll(ctx context.Context) (*Subscription, error) {
	return b.open(ctx, b.redis.PSubscribe(ctx, channelPrefix+"*"))
}

func (b *Broker) open(ctx context.Context, ps *redis.PubSub) (*Subscription, error) {
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe: %w", err)
	}
	s := &Subscription{
		pubsub: ps,
		events: make(chan Event, b.buffer),
		done:   make(chan struct{}),
		logger: b.logger,
	}
	s.wg.Add(1)
	go s.run()
	return s, nil
}

// Subscription is a live stream. Close stops it and closes Events.
type Subscription struct {
	pubsub *redis.PubSub
	events chan Event
	done   chan struct{}
	once   sync.Once
	wg     sync.WaitGroup
	logger *zap.Logger
}

func (s *Subscription) Events() <-chan Event { return s.events }

func (s *Subscription) run() {
	defer s.wg.Done()
	defer close(s.events)

	for msg := range s.pubsub.Channel() {
		var ev Event
		if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
			s.logger.Warn("drop malformed event", zap.String("channel", msg.Channel), zap.Error(err))
			continue
		}
		if ev.Key == "" {
			ev.Key = strings.TrimPrefix(msg.Channel, channelPrefix)
		}
		select {
		case s.events <- ev:
		case <-s.done:
			return
		}
	}
}

func (s *Subscription) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.pubsub.Close()
		s.wg.Wait()
	})
	return err
}
