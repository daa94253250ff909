package repositories

import (
	"context"

	"gorm.io/gorm"

	"github.com/Lejs5034/LegionOfBrothers-sub000/internal/models"
)

type ServerRepository struct {
	db *gorm.DB
}

func NewServerRepository(db *gorm.DB) *ServerRepository {
	return &ServerRepository{db: db}
}

// CreateServer inserts the server and makes the owner its first member in one
// transaction.
func (r *ServerRepository) CreateServer(ctx context.Context, server *models.Server) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(server).Error; err != nil {
			return err
		}
		member := models.ServerMember{ServerID: server.ID, UserID: server.OwnerID}
		return tx.Create(&member).Error
	})
}

func (r *ServerRepository) GetServer(ctx context.Context, id string) (*models.Server, error) {
	var server models.Server
	if err := r.db.WithContext(ctx).First(&server, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &server, nil
}

// AddMember inserts a membership row without a role.
func (r *ServerRepository) AddMember(ctx context.Context, serverID, userID string) error {
	member := models.ServerMember{ServerID: serverID, UserID: userID}
	return r.db.WithContext(ctx).Create(&member).Error
}

func (r *ServerRepository) IsMember(ctx context.Context, serverID, userID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.ServerMember{}).
		Where("server_id = ? AND user_id = ?", serverID, userID).
		Count(&count).Error
	return count > 0, err
}

// GetMember loads a membership with its role.
func (r *ServerRepository) GetMember(ctx context.Context, serverID, userID string) (*models.ServerMember, error) {
	var member models.ServerMember
	err := r.db.WithContext(ctx).Preload("Role").
		Where("server_id = ? AND user_id = ?", serverID, userID).
		First(&member).Error
	if err != nil {
		return nil, err
	}
	return &member, nil
}

// ListMembers returns every member of a server with user and role preloaded.
func (r *ServerRepository) ListMembers(ctx context.Context, serverID string) ([]models.ServerMember, error) {
	var members []models.ServerMember
	err := r.db.WithContext(ctx).Preload("User").Preload("Role").
		Where("server_id = ?", serverID).
		Order("created_at ASC").
		Find(&members).Error
	return members, err
}

// AssignRole sets the member's server role; a nil roleID clears it.
func (r *ServerRepository) AssignRole(ctx context.Context, serverID, userID string, roleID *string) error {
	res := r.db.WithContext(ctx).Model(&models.ServerMember{}).
		Where("server_id = ? AND user_id = ?", serverID, userID).
		Update("role_id", roleID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *ServerRepository) CreateRole(ctx context.Context, role *models.ServerRole) error {
	return r.db.WithContext(ctx).Create(role).Error
}

func (r *ServerRepository) GetRole(ctx context.Context, id string) (*models.ServerRole, error) {
	var role models.ServerRole
	if err := r.db.WithContext(ctx).First(&role, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &role, nil
}

func (r *ServerRepository) CreateChannel(ctx context.Context, channel *models.Channel) error {
	return r.db.WithContext(ctx).Create(channel).Error
}

func (r *ServerRepository) GetChannel(ctx context.Context, id string) (*models.Channel, error) {
	var channel models.Channel
	if err := r.db.WithContext(ctx).First(&channel, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &channel, nil
}

// GetUserServerIDs lists the servers a user belongs to.
func (r *ServerRepository) GetUserServerIDs(ctx context.Context, userID string) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).Model(&models.ServerMember{}).
		Where("user_id = ?", userID).
		Pluck("server_id", &ids).Error
	return ids, err
}
