package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/Lejs5034/LegionOfBrothers-sub000/internal/mention"
	"github.com/Lejs5034/LegionOfBrothers-sub000/internal/models"
	"github.com/Lejs5034/LegionOfBrothers-sub000/internal/permission"
	"github.com/Lejs5034/LegionOfBrothers-sub000/internal/rank"
	"github.com/Lejs5034/LegionOfBrothers-sub000/internal/realtime"
	"github.com/Lejs5034/LegionOfBrothers-sub000/internal/repositories"
	"github.com/Lejs5034/LegionOfBrothers-sub000/utils/ratelimit"
)

const (
	DefaultHistoryLimit     = 200
	DefaultMaxContentLength = 2000
)

// MentionBatchEvent is the event type of mention batches on the queue.
const MentionBatchEvent = "mention.batch"

// Producer publishes mention batches to the message queue.
type Producer interface {
	Publish(ctx context.Context, key, eventType string, v any) error
}

// ObjectRemover deletes stored attachment objects.
type ObjectRemover interface {
	Delete(ctx context.Context, paths ...string) error
}

// MessageDeps are the collaborators of MessageService. Broker, Limiter,
// Producer and Objects may be nil.
type MessageDeps struct {
	Users    *repositories.UserRepository
	Servers  *repositories.ServerRepository
	Messages *repositories.MessageRepository
	Directs  *repositories.DirectMessageRepository
	Mentions *repositories.MentionRepository

	Broker    *realtime.Broker
	Limiter   *ratelimit.Limiter
	Producer  Producer
	Objects   ObjectRemover
	PublicURL func(path string) string
	Logger    *zap.Logger
}

type MessageOptions struct {
	HistoryLimit     int
	MaxContentLength int
}

// MessageService 消息服务: channel messages, DMs and mention side effects.
type MessageService struct {
	MessageDeps
	validate     *validator.Validate
	historyLimit int
	maxContent   int
	now          func() time.Time
}

func NewMessageService(deps MessageDeps, opts MessageOptions) *MessageService {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = DefaultHistoryLimit
	}
	if opts.MaxContentLength <= 0 {
		opts.MaxContentLength = DefaultMaxContentLength
	}
	return &MessageService{
		MessageDeps:  deps,
		validate:     newValidator(),
		historyLimit: opts.HistoryLimit,
		maxContent:   opts.MaxContentLength,
		now:          time.Now,
	}
}

// SendMessageRequest is a new channel message or DM.
type SendMessageRequest struct {
	Content         string `json:"content"`
	ParentMessageID string `json:"parent_message_id"`
	// HasAttachments permits empty content. The created event is then left to
	// PublishChannelMessage or PublishDirectMessage once the files are linked.
	HasAttachments bool `json:"-"`
}

type UpdateMessageRequest struct {
	Content string `json:"content"`
}

// MentionBatch is every mention found in one message, in text order.
type MentionBatch struct {
	MessageID        string            `json:"message_id"`
	ChannelID        string            `json:"channel_id"`
	MentioningUserID string            `json:"mentioning_user_id"`
	Mentions         []mention.Mention `json:"mentions"`
}

func (s *MessageService) checkContent(content string, allowEmpty bool) error {
	if !allowEmpty && strings.TrimSpace(content) == "" {
		return &ValidationError{Fields: map[string]string{"content": "required"}}
	}
	if err := s.validate.Var(content, fmt.Sprintf("max=%d", s.maxContent)); err != nil {
		return &ValidationError{Fields: map[string]string{"content": "max"}}
	}
	return nil
}

func (s *MessageService) loadUser(ctx context.Context, id string) (*models.User, error) {
	user, err := s.Users.GetByID(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	return user, err
}

// AuthorizeContext reports whether userID may follow the realtime context key:
// a channel of a server they belong to, a DM they are part of, or their own
// notification stream.
func (s *MessageService) AuthorizeContext(ctx context.Context, userID, key string) error {
	scope, ids := realtime.SplitKey(key)
	switch scope {
	case realtime.ScopeChannel:
		_, err := memberChannel(ctx, s.Servers, userID, ids[0])
		return err
	case realtime.ScopeDirect:
		if ids[0] == userID || ids[1] == userID {
			return nil
		}
		return ErrForbidden
	case realtime.ScopeUser:
		if ids[0] == userID {
			return nil
		}
		return ErrForbidden
	}
	return ErrNotFound
}

func (s *MessageService) allow(ctx context.Context, userID string) error {
	if s.Limiter == nil {
		return nil
	}
	ok, err := s.Limiter.Allow(ctx, userID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrRateLimited
	}
	return nil
}

func (s *MessageService) publish(ctx context.Context, key, eventType string, payload any) {
	if s.Broker == nil {
		return
	}
	if err := s.Broker.Publish(ctx, key, eventType, payload); err != nil {
		s.Logger.Warn("publish event failed", zap.String("key", key), zap.String("type", eventType), zap.Error(err))
	}
}

// Channel returns channel metadata and whether userID may post in it.
func (s *MessageService) Channel(ctx context.Context, userID, channelID string) (*ChannelDTO, error) {
	channel, err := memberChannel(ctx, s.Servers, userID, channelID)
	if err != nil {
		return nil, err
	}
	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &ChannelDTO{
		ID:                 channel.ID,
		Name:               channel.Name,
		ServerID:           channel.ServerID,
		AllowedWriterRoles: channel.AllowedWriterRoles,
		CanWrite:           !user.Banned && permission.CanWrite(channel.AllowedWriterRoles, user.Rank),
	}, nil
}

// Members lists the members of the channel's server.
func (s *MessageService) Members(ctx context.Context, userID, channelID string) ([]MemberDTO, error) {
	channel, err := memberChannel(ctx, s.Servers, userID, channelID)
	if err != nil {
		return nil, err
	}
	rows, err := s.Servers.ListMembers(ctx, channel.ServerID)
	if err != nil {
		return nil, err
	}
	out := make([]MemberDTO, len(rows))
	for i := range rows {
		out[i] = toMemberDTO(&rows[i])
	}
	return out, nil
}

// DirectMembers is the member list of a DM conversation: both participants.
func (s *MessageService) DirectMembers(ctx context.Context, userID, friendID string) ([]MemberDTO, error) {
	users, err := s.Users.GetByIDs(ctx, []string{userID, friendID})
	if err != nil {
		return nil, err
	}
	out := make([]MemberDTO, 0, 2)
	for _, id := range []string{userID, friendID} {
		u, ok := users[id]
		if !ok {
			return nil, ErrNotFound
		}
		out = append(out, MemberDTO{
			ID:       u.ID,
			Username: u.UserName,
			Rank:     u.Rank,
			Display:  rank.EffectiveDisplay(u.Rank, nil),
		})
	}
	return out, nil
}

// roles maps user id to the server role appearance used for author display.
func (s *MessageService) roles(ctx context.Context, serverID string) (map[string]*models.ServerRole, error) {
	members, err := s.Servers.ListMembers(ctx, serverID)
	if err != nil {
		return nil, err
	}
	out := make(map[string]*models.ServerRole, len(members))
	for _, m := range members {
		out[m.UserID] = m.Role
	}
	return out, nil
}

func (s *MessageService) author(u *models.User, userID string, role *models.ServerRole) AuthorDTO {
	if u == nil {
		return AuthorDTO{ID: userID, Display: rank.MemberAppearance}
	}
	return AuthorDTO{
		ID:       u.ID,
		Username: u.UserName,
		Rank:     u.Rank,
		Display:  rank.EffectiveDisplay(u.Rank, roleAppearance(role)),
	}
}

func (s *MessageService) toMessageDTO(m *models.Message, role *models.ServerRole) MessageDTO {
	return MessageDTO{
		ID:              m.ID,
		Content:         m.Content,
		UserID:          m.UserID,
		ChannelID:       m.ChannelID,
		ParentMessageID: derefString(m.ParentMessageID),
		CreatedAt:       m.CreatedAt,
		EditedAt:        m.EditedAt,
		Author:          s.author(m.Author, m.UserID, role),
		Attachments:     toAttachmentDTOs(m.Attachments, s.PublicURL),
	}
}

func (s *MessageService) toDirectDTO(m *models.DirectMessage) MessageDTO {
	return MessageDTO{
		ID:          m.ID,
		Content:     m.Content,
		UserID:      m.SenderID,
		ReceiverID:  m.ReceiverID,
		CreatedAt:   m.CreatedAt,
		EditedAt:    m.EditedAt,
		Read:        m.Read,
		Author:      s.author(m.Sender, m.SenderID, nil),
		Attachments: toAttachmentDTOs(m.Attachments, s.PublicURL),
	}
}

// ChannelHistory returns the newest messages of a channel in chronological
// order with authors and attachments resolved.
func (s *MessageService) ChannelHistory(ctx context.Context, userID, channelID string) ([]MessageDTO, error) {
	channel, err := memberChannel(ctx, s.Servers, userID, channelID)
	if err != nil {
		return nil, err
	}
	rows, err := s.Messages.ListByChannel(ctx, channelID, s.historyLimit)
	if err != nil {
		return nil, err
	}
	roles, err := s.roles(ctx, channel.ServerID)
	if err != nil {
		return nil, err
	}
	out := make([]MessageDTO, len(rows))
	for i := range rows {
		out[i] = s.toMessageDTO(&rows[i], roles[rows[i].UserID])
	}
	return out, nil
}

// GetMessage loads one channel message, resolved the same way as history.
func (s *MessageService) GetMessage(ctx context.Context, userID, id string) (*MessageDTO, error) {
	m, err := s.Messages.GetByID(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	channel, err := memberChannel(ctx, s.Servers, userID, m.ChannelID)
	if err != nil {
		return nil, err
	}
	var role *models.ServerRole
	if member, err := s.Servers.GetMember(ctx, channel.ServerID, m.UserID); err == nil {
		role = member.Role
	}
	dto := s.toMessageDTO(m, role)
	return &dto, nil
}

func (s *MessageService) ReplyCounts(ctx context.Context, userID, channelID string) (map[string]int, error) {
	if _, err := memberChannel(ctx, s.Servers, userID, channelID); err != nil {
		return nil, err
	}
	return s.Messages.ReplyCounts(ctx, channelID)
}

// SendChannelMessage is the authoritative send: the sender must be an unbanned
// member allowed to write in the channel.
func (s *MessageService) SendChannelMessage(ctx context.Context, senderID, channelID string, req *SendMessageRequest) (*MessageDTO, error) {
	if err := s.checkContent(req.Content, req.HasAttachments); err != nil {
		return nil, err
	}
	sender, err := s.loadUser(ctx, senderID)
	if err != nil {
		return nil, err
	}
	if sender.Banned {
		return nil, ErrBanned
	}
	channel, err := memberChannel(ctx, s.Servers, senderID, channelID)
	if err != nil {
		return nil, err
	}
	if !permission.CanWrite(channel.AllowedWriterRoles, sender.Rank) {
		return nil, ErrCannotWrite
	}
	if err := s.allow(ctx, senderID); err != nil {
		return nil, err
	}

	var parentID *string
	if req.ParentMessageID != "" {
		parent, err := s.Messages.GetByID(ctx, req.ParentMessageID)
		if err != nil || parent.ChannelID != channelID {
			return nil, ErrInvalidParent
		}
		parentID = &parent.ID
	}

	// Everything that can fail runs before the row exists.
	members, err := s.Servers.ListMembers(ctx, channel.ServerID)
	if err != nil {
		return nil, err
	}
	var role *models.ServerRole
	known := make([]mention.Member, 0, len(members))
	for _, m := range members {
		if m.UserID == senderID {
			role = m.Role
		}
		if m.User != nil {
			known = append(known, mention.Member{ID: m.UserID, Username: m.User.UserName})
		}
	}

	msg := &models.Message{
		ChannelID:       channelID,
		UserID:          senderID,
		Content:         req.Content,
		ParentMessageID: parentID,
	}
	if err := s.Messages.Create(ctx, msg); err != nil {
		return nil, err
	}
	msg.Author = sender

	if found := mention.Extract(msg.Content, known); len(found) > 0 {
		s.dispatchMentions(ctx, MentionBatch{
			MessageID:        msg.ID,
			ChannelID:        channelID,
			MentioningUserID: senderID,
			Mentions:         found,
		})
	}

	dto := s.toMessageDTO(msg, role)
	if !req.HasAttachments {
		s.publish(ctx, realtime.ChannelKey(channelID), realtime.MessageCreated, dto)
	}
	return &dto, nil
}

// PublishChannelMessage announces a stored channel message, attachments
// included, to the channel's subscribers.
func (s *MessageService) PublishChannelMessage(ctx context.Context, userID, id string) error {
	dto, err := s.GetMessage(ctx, userID, id)
	if err != nil {
		return err
	}
	s.publish(ctx, realtime.ChannelKey(dto.ChannelID), realtime.MessageCreated, dto)
	return nil
}

// dispatchMentions hands the batch to Kafka, or records it directly when no
// producer is configured or the broker is unreachable.
func (s *MessageService) dispatchMentions(ctx context.Context, batch MentionBatch) {
	if s.Producer != nil {
		err := s.Producer.Publish(ctx, batch.ChannelID, MentionBatchEvent, batch)
		if err == nil {
			return
		}
		s.Logger.Warn("mention publish failed, recording directly", zap.String("message_id", batch.MessageID), zap.Error(err))
	}
	if err := s.RecordMentions(ctx, batch); err != nil {
		s.Logger.Error("record mentions", zap.String("message_id", batch.MessageID), zap.Error(err))
	}
}

// RecordMentions stores one row per mention and notifies each mentioned user.
func (s *MessageService) RecordMentions(ctx context.Context, batch MentionBatch) error {
	rows := make([]models.Mention, 0, len(batch.Mentions))
	for _, m := range batch.Mentions {
		rows = append(rows, models.Mention{
			MessageID:        batch.MessageID,
			MentionedUserID:  m.UserID,
			MentioningUserID: batch.MentioningUserID,
		})
	}
	if err := s.Mentions.CreateBatch(ctx, rows); err != nil {
		return err
	}
	notified := make(map[string]bool, len(rows))
	for _, r := range rows {
		if notified[r.MentionedUserID] {
			continue
		}
		notified[r.MentionedUserID] = true
		s.publish(ctx, realtime.UserKey(r.MentionedUserID), realtime.MentionCreated, r)
	}
	return nil
}

// UpdateMessage edits the caller's own channel message.
func (s *MessageService) UpdateMessage(ctx context.Context, userID, id string, req *UpdateMessageRequest) (time.Time, error) {
	if err := s.checkContent(req.Content, false); err != nil {
		return time.Time{}, err
	}
	m, err := s.Messages.GetByID(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return time.Time{}, ErrNotFound
	}
	if err != nil {
		return time.Time{}, err
	}
	if m.UserID != userID {
		return time.Time{}, ErrNotOwner
	}

	editedAt := s.now().UTC()
	if err := s.Messages.UpdateContent(ctx, id, req.Content, editedAt); err != nil {
		return time.Time{}, err
	}
	m.Content = req.Content
	m.EditedAt = &editedAt
	s.publish(ctx, realtime.ChannelKey(m.ChannelID), realtime.MessageUpdated, s.toMessageDTO(m, nil))
	return editedAt, nil
}

// DeleteMessage removes the caller's own channel message and its stored files.
func (s *MessageService) DeleteMessage(ctx context.Context, userID, id string) error {
	m, err := s.Messages.GetByID(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if m.UserID != userID {
		return ErrNotOwner
	}
	paths, err := s.Messages.Delete(ctx, id)
	if err != nil {
		return err
	}
	s.removeObjects(ctx, paths)
	s.publish(ctx, realtime.ChannelKey(m.ChannelID), realtime.MessageDeleted,
		MessageDTO{ID: m.ID, UserID: m.UserID, ChannelID: m.ChannelID, CreatedAt: m.CreatedAt})
	return nil
}

func (s *MessageService) removeObjects(ctx context.Context, paths []string) {
	if s.Objects == nil || len(paths) == 0 {
		return
	}
	if err := s.Objects.Delete(ctx, paths...); err != nil {
		s.Logger.Warn("remove attachment objects", zap.Strings("paths", paths), zap.Error(err))
	}
}

// DirectHistory returns the conversation between userID and friendID.
func (s *MessageService) DirectHistory(ctx context.Context, userID, friendID string) ([]MessageDTO, error) {
	if _, err := s.loadUser(ctx, friendID); err != nil {
		return nil, err
	}
	rows, err := s.Directs.ListConversation(ctx, userID, friendID, s.historyLimit)
	if err != nil {
		return nil, err
	}
	out := make([]MessageDTO, len(rows))
	for i := range rows {
		out[i] = s.toDirectDTO(&rows[i])
	}
	return out, nil
}

// GetDirectMessage loads a DM the caller sent or received.
func (s *MessageService) GetDirectMessage(ctx context.Context, userID, id string) (*MessageDTO, error) {
	m, err := s.Directs.GetByID(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if m.SenderID != userID && m.ReceiverID != userID {
		return nil, ErrNotFound
	}
	dto := s.toDirectDTO(m)
	return &dto, nil
}

func (s *MessageService) SendDirectMessage(ctx context.Context, senderID, receiverID string, req *SendMessageRequest) (*MessageDTO, error) {
	if err := s.checkContent(req.Content, req.HasAttachments); err != nil {
		return nil, err
	}
	if senderID == receiverID {
		return nil, ErrSelfMessage
	}
	sender, err := s.loadUser(ctx, senderID)
	if err != nil {
		return nil, err
	}
	if sender.Banned {
		return nil, ErrBanned
	}
	if _, err := s.loadUser(ctx, receiverID); err != nil {
		return nil, err
	}
	if err := s.allow(ctx, senderID); err != nil {
		return nil, err
	}

	dm := &models.DirectMessage{SenderID: senderID, ReceiverID: receiverID, Content: req.Content}
	if err := s.Directs.Create(ctx, dm); err != nil {
		return nil, err
	}
	dm.Sender = sender

	dto := s.toDirectDTO(dm)
	if !req.HasAttachments {
		s.publish(ctx, realtime.DirectKey(senderID, receiverID), realtime.MessageCreated, dto)
	}
	return &dto, nil
}

// PublishDirectMessage announces a stored DM, attachments included, to both
// participants.
func (s *MessageService) PublishDirectMessage(ctx context.Context, userID, id string) error {
	dto, err := s.GetDirectMessage(ctx, userID, id)
	if err != nil {
		return err
	}
	s.publish(ctx, realtime.DirectKey(dto.UserID, dto.ReceiverID), realtime.MessageCreated, dto)
	return nil
}

func (s *MessageService) UpdateDirectMessage(ctx context.Context, userID, id string, req *UpdateMessageRequest) (time.Time, error) {
	if err := s.checkContent(req.Content, false); err != nil {
		return time.Time{}, err
	}
	m, err := s.Directs.GetByID(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return time.Time{}, ErrNotFound
	}
	if err != nil {
		return time.Time{}, err
	}
	if m.SenderID != userID {
		return time.Time{}, ErrNotOwner
	}

	editedAt := s.now().UTC()
	if err := s.Directs.UpdateContent(ctx, id, req.Content, editedAt); err != nil {
		return time.Time{}, err
	}
	m.Content = req.Content
	m.EditedAt = &editedAt
	s.publish(ctx, realtime.DirectKey(m.SenderID, m.ReceiverID), realtime.MessageUpdated, s.toDirectDTO(m))
	return editedAt, nil
}

func (s *MessageService) DeleteDirectMessage(ctx context.Context, userID, id string) error {
	m, err := s.Directs.GetByID(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if m.SenderID != userID {
		return ErrNotOwner
	}
	paths, err := s.Directs.Delete(ctx, id)
	if err != nil {
		return err
	}
	s.removeObjects(ctx, paths)
	s.publish(ctx, realtime.DirectKey(m.SenderID, m.ReceiverID), realtime.MessageDeleted,
		MessageDTO{ID: m.ID, UserID: m.SenderID, ReceiverID: m.ReceiverID, CreatedAt: m.CreatedAt})
	return nil
}

// MarkDirectRead marks every DM from friendID to userID as read.
func (s *MessageService) MarkDirectRead(ctx context.Context, userID, friendID string) (int64, error) {
	return s.Directs.MarkRead(ctx, userID, friendID)
}
