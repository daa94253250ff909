package repositories

import (
	"context"
	"encoding/json"
	"time"

	redis "github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/Lejs5034/LegionOfBrothers-sub000/internal/models"
)

const (
	userCacheKeyPrefix = "user:info:" // redis string holding the user JSON
	userCacheTTL       = 1 * time.Hour
)

type UserRepository struct {
	db    *gorm.DB
	redis *redis.Client
}

// NewUserRepository builds the repository. redis may be nil, which disables caching.
func NewUserRepository(db *gorm.DB, redis *redis.Client) *UserRepository {
	return &UserRepository{db: db, redis: redis}
}

func userCacheKey(id string) string {
	return userCacheKeyPrefix + id
}

// Create inserts a user.
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	return r.db.WithContext(ctx).Create(user).Error
}

// GetByID loads a user, reading through the cache.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	if r.redis != nil {
		val, err := r.redis.Get(ctx, userCacheKey(id)).Result()
		if err == nil {
			var user models.User
			if json.Unmarshal([]byte(val), &user) == nil {
				return &user, nil
			}
		}
	}

	var user models.User
	if err := r.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		return nil, err
	}

	if r.redis != nil {
		if data, err := json.Marshal(&user); err == nil {
			r.redis.Set(ctx, userCacheKey(id), data, userCacheTTL)
		}
	}
	return &user, nil
}

// GetByUserName looks a user up by exact username.
func (r *UserRepository) GetByUserName(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("username = ?", username).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) ExistsByUserName(ctx context.Context, username string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.User{}).Where("username = ?", username).Count(&count).Error
	return count > 0, err
}

func (r *UserRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.User{}).Where("email = ?", email).Count(&count).Error
	return count > 0, err
}

// UpdateRank sets the global rank and drops the cached copy.
func (r *UserRepository) UpdateRank(ctx context.Context, id, rankKey string) error {
	return r.updateColumn(ctx, id, "rank", rankKey)
}

// SetBanned flips the banned flag and drops the cached copy.
func (r *UserRepository) SetBanned(ctx context.Context, id string, banned bool) error {
	return r.updateColumn(ctx, id, "banned", banned)
}

func (r *UserRepository) updateColumn(ctx context.Context, id, column string, value any) error {
	res := r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Update(column, value)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	r.invalidate(ctx, id)
	return nil
}

func (r *UserRepository) invalidate(ctx context.Context, id string) {
	if r.redis != nil {
		r.redis.Del(ctx, userCacheKey(id))
	}
}

// GetByIDs loads users in bulk: one MGET against the cache, then one query for
// the misses, which are written back in a pipeline.
func (r *UserRepository) GetByIDs(ctx context.Context, ids []string) (map[string]*models.User, error) {
	result := make(map[string]*models.User, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	var missingIDs []string
	if r.redis != nil {
		keys := make([]string, len(ids))
		for i, id := range ids {
			keys[i] = userCacheKey(id)
		}
		vals, err := r.redis.MGet(ctx, keys...).Result()
		if err == nil {
			for i, val := range vals {
				if s, ok := val.(string); ok {
					var user models.User
					if json.Unmarshal([]byte(s), &user) == nil {
						result[ids[i]] = &user
						continue
					}
				}
				missingIDs = append(missingIDs, ids[i])
			}
		} else {
			missingIDs = ids
		}
	} else {
		missingIDs = ids
	}

	if len(missingIDs) == 0 {
		return result, nil
	}

	var users []models.User
	if err := r.db.WithContext(ctx).Where("id IN ?", missingIDs).Find(&users).Error; err != nil {
		return result, err
	}

	var pipe redis.Pipeliner
	if r.redis != nil {
		pipe = r.redis.Pipeline()
	}
	for i := range users {
		u := &users[i]
		result[u.ID] = u
		if pipe != nil {
			if data, err := json.Marshal(u); err == nil {
				pipe.Set(ctx, userCacheKey(u.ID), data, userCacheTTL)
			}
		}
	}
	if pipe != nil {
		_, _ = pipe.Exec(ctx)
	}
	return result, nil
}
