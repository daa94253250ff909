package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Lejs5034/LegionOfBrothers-sub000/internal/realtime"
)

const (
	writeWait      = 10 * time.Second    // 允许写入消息到对端的最大时间
	pongWait       = 60 * time.Second    // 允许读取下一个 pong 消息的最大时间
	pingPeriod     = (pongWait * 9) / 10 // 发送 ping 到对端的周期。必须小于 pongWait
	maxMessageSize = 512                 // 允许来自对端的最大消息大小
	authorizeWait  = 5 * time.Second
)

// Frames the hub sends besides realtime events.
const (
	EventSubscribed = "subscribed"
	EventError      = "error"
)

// Client actions.
const (
	ActionJoin  = "join"
	ActionLeave = "leave"
)

var ErrUnknownAction = errors.New("unknown action")

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Request is a frame sent by the client.
type Request struct {
	Action string `json:"action"`
	Key    string `json:"key,omitempty"`
}

// Client 代表一个 WebSocket 连接客户端
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan realtime.Event // 缓冲通道，只由 hub 写入和关闭
	userID string

	// 当前关注的会话 key，只在 hub 的 Run 协程中读写
	context string
}

func errorEvent(key string, err error) realtime.Event {
	payload, _ := json.Marshal(gin.H{"error": err.Error()})
	return realtime.Event{Type: EventError, Key: key, Payload: payload}
}

// readPump 读取客户端发来的 join/leave 请求
func (c *Client) readPump() {
	defer func() {
		c.hub.leave(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Warn("websocket read", zap.String("user_id", c.userID), zap.Error(err))
			}
			return
		}

		var req Request
		if err := json.Unmarshal(data, &req); err != nil {
			c.hub.follow(c, "", err)
			continue
		}
		switch req.Action {
		case ActionJoin:
			c.hub.follow(c, req.Key, c.authorize(req.Key))
		case ActionLeave:
			c.hub.follow(c, "", nil)
		default:
			c.hub.follow(c, req.Key, ErrUnknownAction)
		}
	}
}

func (c *Client) authorize(key string) error {
	if c.hub.auth == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), authorizeWait)
	defer cancel()
	if err := c.hub.auth.AuthorizeContext(ctx, c.userID, key); err != nil {
		c.hub.logger.Debug("join refused", zap.String("user_id", c.userID), zap.String("key", key), zap.Error(err))
		return err
	}
	return nil
}

// writePump 把 hub 分发的事件写到 WebSocket 连接
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case ev, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub 关闭了通道
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ServeWs upgrades an authenticated request. The auth middleware must have set
// user_id.
func ServeWs(hub *Hub, c *gin.Context) {
	userID := c.GetString("user_id")
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		hub.logger.Warn("websocket upgrade", zap.Error(err))
		return
	}

	client := &Client{
		hub:    hub,
		conn:   conn,
		send:   make(chan realtime.Event, 256),
		userID: userID,
	}
	if !hub.enter(client) {
		conn.Close()
		return
	}
	go client.writePump()
	go client.readPump()
}
