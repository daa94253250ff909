package services

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/Lejs5034/LegionOfBrothers-sub000/internal/models"
	"github.com/Lejs5034/LegionOfBrothers-sub000/internal/permission"
	"github.com/Lejs5034/LegionOfBrothers-sub000/internal/repositories"
)

// PinService keeps the pinned-message set of each channel.
type PinService struct {
	users    *repositories.UserRepository
	servers  *repositories.ServerRepository
	messages *repositories.MessageRepository
	pins     *repositories.PinRepository
}

func NewPinService(users *repositories.UserRepository, servers *repositories.ServerRepository,
	messages *repositories.MessageRepository, pins *repositories.PinRepository) *PinService {
	return &PinService{users: users, servers: servers, messages: messages, pins: pins}
}

// List returns the pinned message ids of a channel.
func (s *PinService) List(ctx context.Context, userID, channelID string) ([]string, error) {
	if _, err := memberChannel(ctx, s.servers, userID, channelID); err != nil {
		return nil, err
	}
	return s.pins.ListMessageIDs(ctx, channelID)
}

func (s *PinService) Pin(ctx context.Context, userID, channelID, messageID string) error {
	channel, err := s.authorize(ctx, userID, channelID, messageID)
	if err != nil {
		return err
	}
	err = s.pins.Pin(ctx, &models.PinnedMessage{
		MessageID: messageID,
		ChannelID: channelID,
		ServerID:  channel.ServerID,
		PinnedBy:  userID,
	})
	if errors.Is(err, repositories.ErrAlreadyPinned) {
		return ErrAlreadyPinned
	}
	return err
}

func (s *PinService) Unpin(ctx context.Context, userID, channelID, messageID string) error {
	if _, err := s.authorize(ctx, userID, channelID, messageID); err != nil {
		return err
	}
	err := s.pins.Unpin(ctx, channelID, messageID)
	if errors.Is(err, repositories.ErrNotPinned) {
		return ErrNotPinned
	}
	return err
}

// authorize requires a moderator-level member and a message that lives in the channel.
func (s *PinService) authorize(ctx context.Context, userID, channelID, messageID string) (*models.Channel, error) {
	channel, err := memberChannel(ctx, s.servers, userID, channelID)
	if err != nil {
		return nil, err
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.Banned || !permission.CanPin(user.Rank) {
		return nil, ErrForbidden
	}
	msg, err := s.messages.GetByID(ctx, messageID)
	if errors.Is(err, gorm.ErrRecordNotFound) || (err == nil && msg.ChannelID != channelID) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return channel, nil
}
