package services

import (
	"context"
	"errors"

	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"

	"github.com/Lejs5034/LegionOfBrothers-sub000/internal/models"
	"github.com/Lejs5034/LegionOfBrothers-sub000/internal/rank"
	"github.com/Lejs5034/LegionOfBrothers-sub000/internal/repositories"
)

// ServerService 服务器服务: communities, their channels and roles.
type ServerService struct {
	users    *repositories.UserRepository
	servers  *repositories.ServerRepository
	validate *validator.Validate
}

func NewServerService(users *repositories.UserRepository, servers *repositories.ServerRepository) *ServerService {
	v := newValidator()
	_ = v.RegisterValidation("rank_key", func(fl validator.FieldLevel) bool {
		return rank.Known(fl.Field().String())
	})
	return &ServerService{users: users, servers: servers, validate: v}
}

type CreateServerRequest struct {
	Name string `json:"name" validate:"required,max=100"`
}

type CreateChannelRequest struct {
	Name               string   `json:"name" validate:"required,max=100"`
	AllowedWriterRoles []string `json:"allowed_writer_roles" validate:"omitempty,dive,rank_key"`
}

type CreateRoleRequest struct {
	Name    string `json:"name" validate:"required,max=64"`
	Rank    int    `json:"rank" validate:"gte=0"`
	Color   string `json:"color" validate:"omitempty,hexcolor"`
	Icon    string `json:"icon" validate:"max=16"`
	RoleKey string `json:"role_key" validate:"max=64"`
}

type ServerDTO struct {
	ID       string       `json:"id"`
	Name     string       `json:"name"`
	OwnerID  string       `json:"owner_id"`
	Channels []ChannelDTO `json:"channels,omitempty"`
}

func (s *ServerService) CreateServer(ctx context.Context, ownerID string, req *CreateServerRequest) (*ServerDTO, error) {
	if err := check(s.validate, req); err != nil {
		return nil, err
	}
	server := &models.Server{Name: req.Name, OwnerID: ownerID}
	if err := s.servers.CreateServer(ctx, server); err != nil {
		return nil, err
	}
	return &ServerDTO{ID: server.ID, Name: server.Name, OwnerID: server.OwnerID}, nil
}

// Join adds userID to a server. Joining twice is not an error.
func (s *ServerService) Join(ctx context.Context, userID, serverID string) error {
	if _, err := s.server(ctx, serverID); err != nil {
		return err
	}
	member, err := s.servers.IsMember(ctx, serverID, userID)
	if err != nil || member {
		return err
	}
	return s.servers.AddMember(ctx, serverID, userID)
}

// ListServers returns the servers userID belongs to.
func (s *ServerService) ListServers(ctx context.Context, userID string) ([]ServerDTO, error) {
	ids, err := s.servers.GetUserServerIDs(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]ServerDTO, 0, len(ids))
	for _, id := range ids {
		server, err := s.servers.GetServer(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, ServerDTO{ID: server.ID, Name: server.Name, OwnerID: server.OwnerID})
	}
	return out, nil
}

func (s *ServerService) CreateChannel(ctx context.Context, actorID, serverID string, req *CreateChannelRequest) (*ChannelDTO, error) {
	if err := check(s.validate, req); err != nil {
		return nil, err
	}
	if err := s.requireManager(ctx, actorID, serverID); err != nil {
		return nil, err
	}
	channel := &models.Channel{ServerID: serverID, Name: req.Name, AllowedWriterRoles: req.AllowedWriterRoles}
	if err := s.servers.CreateChannel(ctx, channel); err != nil {
		return nil, err
	}
	return &ChannelDTO{
		ID:                 channel.ID,
		Name:               channel.Name,
		ServerID:           channel.ServerID,
		AllowedWriterRoles: channel.AllowedWriterRoles,
	}, nil
}

func (s *ServerService) CreateRole(ctx context.Context, actorID, serverID string, req *CreateRoleRequest) (*models.ServerRole, error) {
	if err := check(s.validate, req); err != nil {
		return nil, err
	}
	if err := s.requireManager(ctx, actorID, serverID); err != nil {
		return nil, err
	}
	role := &models.ServerRole{
		ServerID: serverID,
		Name:     req.Name,
		Rank:     req.Rank,
		Color:    req.Color,
		Icon:     req.Icon,
		RoleKey:  req.RoleKey,
	}
	if err := s.servers.CreateRole(ctx, role); err != nil {
		return nil, err
	}
	return role, nil
}

func (s *ServerService) server(ctx context.Context, id string) (*models.Server, error) {
	server, err := s.servers.GetServer(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	return server, err
}

// requireManager allows the owner and admins or above.
func (s *ServerService) requireManager(ctx context.Context, actorID, serverID string) error {
	server, err := s.server(ctx, serverID)
	if err != nil {
		return err
	}
	if server.OwnerID == actorID {
		return nil
	}
	actor, err := s.users.GetByID(ctx, actorID)
	if err != nil {
		return err
	}
	if actor.Banned || rank.PowerLevel(actor.Rank) < rank.PowerLevel(rank.Admin) {
		return ErrForbidden
	}
	return nil
}
