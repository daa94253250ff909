package services

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/Lejs5034/LegionOfBrothers-sub000/internal/models"
	"github.com/Lejs5034/LegionOfBrothers-sub000/internal/repositories"
)

// memberChannel loads the channel and verifies userID belongs to its server.
func memberChannel(ctx context.Context, servers *repositories.ServerRepository, userID, channelID string) (*models.Channel, error) {
	channel, err := servers.GetChannel(ctx, channelID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	ok, err := servers.IsMember(ctx, channel.ServerID, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotMember
	}
	return channel, nil
}
