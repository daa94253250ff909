// Package backend connects the client core to the platform services in the
// same process. It implements chatview.Backend for one signed-in user over the
// service layer and the realtime broker.
package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Lejs5034/LegionOfBrothers-sub000/internal/chatview"
	"github.com/Lejs5034/LegionOfBrothers-sub000/internal/mention"
	"github.com/Lejs5034/LegionOfBrothers-sub000/internal/realtime"
	"github.com/Lejs5034/LegionOfBrothers-sub000/internal/services"
)

// Client acts on behalf of a single user.
type Client struct {
	me       chatview.Identity
	messages *services.MessageService
	pins     *services.PinService
	broker   *realtime.Broker
	logger   *zap.Logger
}

var _ chatview.Backend = (*Client)(nil)

func NewClient(me chatview.Identity, messages *services.MessageService, pins *services.PinService,
	broker *realtime.Broker, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{me: me, messages: messages, pins: pins, broker: broker, logger: logger.Named("backend")}
}

func (c *Client) key(conv chatview.Conversation) string {
	if conv.Kind == chatview.DirectConversation {
		return realtime.DirectKey(c.me.ID, conv.ID)
	}
	return realtime.ChannelKey(conv.ID)
}

func (c *Client) Subscribe(ctx context.Context, conv chatview.Conversation) (chatview.Subscription, error) {
	sub, err := c.broker.Subscribe(ctx, c.key(conv))
	if err != nil {
		return nil, err
	}
	s := &subscription{src: sub, events: make(chan chatview.Event, 16), logger: c.logger}
	s.wg.Add(1)
	go s.run()
	return s, nil
}

func (c *Client) Channel(ctx context.Context, channelID string) (chatview.ChannelInfo, error) {
	ch, err := c.messages.Channel(ctx, c.me.ID, channelID)
	if err != nil {
		return chatview.ChannelInfo{}, err
	}
	return chatview.ChannelInfo{
		ID:                 ch.ID,
		Name:               ch.Name,
		ServerID:           ch.ServerID,
		AllowedWriterRoles: ch.AllowedWriterRoles,
	}, nil
}

func (c *Client) ChannelHistory(ctx context.Context, channelID string) ([]chatview.Message, error) {
	rows, err := c.messages.ChannelHistory(ctx, c.me.ID, channelID)
	if err != nil {
		return nil, err
	}
	return toMessages(rows), nil
}

func (c *Client) DirectHistory(ctx context.Context, friendID string) ([]chatview.Message, error) {
	rows, err := c.messages.DirectHistory(ctx, c.me.ID, friendID)
	if err != nil {
		return nil, err
	}
	return toMessages(rows), nil
}

func (c *Client) Members(ctx context.Context, conv chatview.Conversation) ([]mention.Member, error) {
	var (
		rows []services.MemberDTO
		err  error
	)
	if conv.Kind == chatview.DirectConversation {
		rows, err = c.messages.DirectMembers(ctx, c.me.ID, conv.ID)
	} else {
		rows, err = c.messages.Members(ctx, c.me.ID, conv.ID)
	}
	if err != nil {
		return nil, err
	}
	out := make([]mention.Member, len(rows))
	for i, r := range rows {
		out[i] = mention.Member{ID: r.ID, Username: r.Username, RolePosition: r.RolePosition}
	}
	return out, nil
}

func (c *Client) PinnedSet(ctx context.Context, channelID string) ([]string, error) {
	return c.pins.List(ctx, c.me.ID, channelID)
}

func (c *Client) ReplyCounts(ctx context.Context, channelID string) (map[string]int, error) {
	return c.messages.ReplyCounts(ctx, c.me.ID, channelID)
}

// ResolveMessage reloads a pushed row so author display and attachments match
// what history would return.
func (c *Client) ResolveMessage(ctx context.Context, m chatview.Message) (chatview.Message, error) {
	var (
		dto *services.MessageDTO
		err error
	)
	if m.ChannelID != "" {
		dto, err = c.messages.GetMessage(ctx, c.me.ID, m.ID)
	} else {
		dto, err = c.messages.GetDirectMessage(ctx, c.me.ID, m.ID)
	}
	if err != nil {
		return chatview.Message{}, err
	}
	return toMessage(*dto), nil
}

func (c *Client) SendMessage(ctx context.Context, m chatview.NewMessage) (chatview.Message, error) {
	req := &services.SendMessageRequest{
		Content:         m.Content,
		ParentMessageID: m.ParentMessageID,
		HasAttachments:  m.HasAttachments,
	}
	var (
		dto *services.MessageDTO
		err error
	)
	if m.Conversation.Kind == chatview.DirectConversation {
		dto, err = c.messages.SendDirectMessage(ctx, c.me.ID, m.Conversation.ID, req)
	} else {
		dto, err = c.messages.SendChannelMessage(ctx, c.me.ID, m.Conversation.ID, req)
	}
	if err != nil {
		return chatview.Message{}, err
	}
	return toMessage(*dto), nil
}

func (c *Client) PublishMessage(ctx context.Context, conv chatview.Conversation, id string) error {
	if conv.Kind == chatview.DirectConversation {
		return c.messages.PublishDirectMessage(ctx, c.me.ID, id)
	}
	return c.messages.PublishChannelMessage(ctx, c.me.ID, id)
}

func (c *Client) UpdateMessage(ctx context.Context, conv chatview.Conversation, id, content string) (time.Time, error) {
	req := &services.UpdateMessageRequest{Content: content}
	if conv.Kind == chatview.DirectConversation {
		return c.messages.UpdateDirectMessage(ctx, c.me.ID, id, req)
	}
	return c.messages.UpdateMessage(ctx, c.me.ID, id, req)
}

func (c *Client) DeleteMessage(ctx context.Context, conv chatview.Conversation, id string) error {
	if conv.Kind == chatview.DirectConversation {
		return c.messages.DeleteDirectMessage(ctx, c.me.ID, id)
	}
	return c.messages.DeleteMessage(ctx, c.me.ID, id)
}

func (c *Client) PinMessage(ctx context.Context, channelID, messageID string) error {
	return c.pins.Pin(ctx, c.me.ID, channelID, messageID)
}

func (c *Client) UnpinMessage(ctx context.Context, channelID, messageID string) error {
	return c.pins.Unpin(ctx, c.me.ID, channelID, messageID)
}

func (c *Client) MarkDirectRead(ctx context.Context, friendID string) error {
	_, err := c.messages.MarkDirectRead(ctx, c.me.ID, friendID)
	return err
}

// subscription converts broker events into view events.
type subscription struct {
	src    *realtime.Subscription
	events chan chatview.Event
	wg     sync.WaitGroup
	logger *zap.Logger
}

func (s *subscription) Events() <-chan chatview.Event { return s.events }

func (s *subscription) run() {
	defer s.wg.Done()
	defer close(s.events)
	for ev := range s.src.Events() {
		out, err := toEvent(ev)
		if err != nil {
			s.logger.Warn("skip event", zap.String("type", ev.Type), zap.Error(err))
			continue
		}
		s.events <- out
	}
}

// Close stops the broker stream; run then drains and closes Events.
func (s *subscription) Close() error {
	err := s.src.Close()
	go func() {
		for range s.events {
		}
	}()
	s.wg.Wait()
	return err
}

func toEvent(ev realtime.Event) (chatview.Event, error) {
	var t chatview.EventType
	switch ev.Type {
	case realtime.MessageCreated:
		t = chatview.EventCreated
	case realtime.MessageUpdated:
		t = chatview.EventUpdated
	case realtime.MessageDeleted:
		t = chatview.EventDeleted
	default:
		return chatview.Event{}, fmt.Errorf("unsupported event type %q", ev.Type)
	}
	var dto services.MessageDTO
	if err := json.Unmarshal(ev.Payload, &dto); err != nil {
		return chatview.Event{}, err
	}
	return chatview.Event{Type: t, Message: toMessage(dto)}, nil
}

func toMessages(rows []services.MessageDTO) []chatview.Message {
	out := make([]chatview.Message, len(rows))
	for i, r := range rows {
		out[i] = toMessage(r)
	}
	return out
}

func toMessage(d services.MessageDTO) chatview.Message {
	m := chatview.Message{
		ID:              d.ID,
		Content:         d.Content,
		UserID:          d.UserID,
		ChannelID:       d.ChannelID,
		ReceiverID:      d.ReceiverID,
		ParentMessageID: d.ParentMessageID,
		CreatedAt:       d.CreatedAt,
		EditedAt:        d.EditedAt,
		Read:            d.Read,
		Author: chatview.Author{
			ID:       d.Author.ID,
			Username: d.Author.Username,
			Rank:     d.Author.Rank,
			Display:  d.Author.Display,
		},
	}
	for _, a := range d.Attachments {
		m.Attachments = append(m.Attachments, chatview.Attachment{
			ID:          a.ID,
			StoragePath: a.StoragePath,
			FileName:    a.FileName,
			FileType:    a.FileType,
			FileSize:    a.FileSize,
			URL:         a.URL,
		})
	}
	return m
}
