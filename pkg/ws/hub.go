package ws

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/Lejs5034/LegionOfBrothers-sub000/internal/realtime"
)

// Authorizer decides whether a user may follow a realtime context key.
type Authorizer interface {
	AuthorizeContext(ctx context.Context, userID, key string) error
}

// Hub 维护活跃的客户端连接，并把 realtime 事件按上下文 key 分发给本节点的连接
type Hub struct {
	// 注册的客户端
	clients map[*Client]bool

	// 上下文 key -> 订阅该 key 的客户端集合
	rooms map[string]map[*Client]bool

	// 互斥锁，保护 map 的并发读写
	mu sync.RWMutex

	register   chan *Client
	unregister chan *Client
	join       chan joinRequest

	broker *realtime.Broker
	auth   Authorizer
	logger *zap.Logger

	// Run 退出后关闭，避免客户端阻塞在注销上
	done chan struct{}
}

// joinRequest switches a client's context. A request carrying err only
// reports the refusal back to the client.
type joinRequest struct {
	client *Client
	key    string
	err    error
}

func NewHub(broker *realtime.Broker, auth Authorizer, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients:    make(map[*Client]bool),
		rooms:      make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		join:       make(chan joinRequest),
		broker:     broker,
		auth:       auth,
		logger:     logger.Named("ws"),
		done:       make(chan struct{}),
	}
}

// Run subscribes to every realtime context and serves the hub until ctx is
// cancelled. Every local connection is closed on return.
func (h *Hub) Run(ctx context.Context) error {
	sub, err := h.broker.SubscribeAll(ctx)
	if err != nil {
		close(h.done)
		return err
	}
	defer func() {
		_ = sub.Close()
		h.mu.Lock()
		for client := range h.clients {
			h.dropLocked(client)
		}
		h.mu.Unlock()
		close(h.done)
	}()

	events := sub.Events()
	for {
		select {
		case <-ctx.Done():
			return nil

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			// 每个连接都自动订阅自己的通知流
			h.addLocked(client, realtime.UserKey(client.userID))
			h.mu.Unlock()
			h.logger.Debug("client registered", zap.String("user_id", client.userID))

		case client := <-h.unregister:
			h.mu.Lock()
			if h.clients[client] {
				h.dropLocked(client)
			}
			h.mu.Unlock()

		case req := <-h.join:
			h.mu.Lock()
			if h.clients[req.client] && req.err != nil {
				h.deliverLocked(req.client, errorEvent(req.key, req.err))
			} else if h.clients[req.client] {
				// 一个连接同一时间只关注一个会话
				if prev := req.client.context; prev != "" {
					h.removeLocked(req.client, prev)
				}
				req.client.context = req.key
				if req.key != "" {
					h.addLocked(req.client, req.key)
				}
				h.deliverLocked(req.client, realtime.Event{Type: EventSubscribed, Key: req.key})
			}
			h.mu.Unlock()

		case ev, ok := <-events:
			if !ok {
				h.logger.Warn("realtime stream closed")
				return realtime.ErrClosed
			}
			h.broadcast(ev)
		}
	}
}

func (h *Hub) broadcast(ev realtime.Event) {
	h.mu.RLock()
	// 收集需要关闭的客户端，避免在 RLock 中修改 map
	var slow []*Client
	for client := range h.rooms[ev.Key] {
		select {
		case client.send <- ev:
		default:
			slow = append(slow, client)
		}
	}
	h.mu.RUnlock()

	if len(slow) == 0 {
		return
	}
	h.mu.Lock()
	for _, client := range slow {
		if h.clients[client] {
			h.logger.Warn("dropping slow client", zap.String("user_id", client.userID))
			h.dropLocked(client)
		}
	}
	h.mu.Unlock()
}

func (h *Hub) deliverLocked(client *Client, ev realtime.Event) {
	select {
	case client.send <- ev:
	default:
		h.dropLocked(client)
	}
}

func (h *Hub) addLocked(client *Client, key string) {
	room, ok := h.rooms[key]
	if !ok {
		room = make(map[*Client]bool)
		h.rooms[key] = room
	}
	room[client] = true
}

func (h *Hub) removeLocked(client *Client, key string) {
	if room, ok := h.rooms[key]; ok {
		delete(room, client)
		if len(room) == 0 {
			delete(h.rooms, key)
		}
	}
}

func (h *Hub) dropLocked(client *Client) {
	delete(h.clients, client)
	h.removeLocked(client, realtime.UserKey(client.userID))
	if client.context != "" {
		h.removeLocked(client, client.context)
	}
	close(client.send)
}

// Subscribers reports how many local connections follow key.
func (h *Hub) Subscribers(key string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[key])
}

func (h *Hub) enter(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) leave(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

func (h *Hub) follow(client *Client, key string, err error) {
	select {
	case h.join <- joinRequest{client: client, key: key, err: err}:
	case <-h.done:
	}
}
