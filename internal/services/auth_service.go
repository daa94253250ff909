package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/Lejs5034/LegionOfBrothers-sub000/internal/models"
	"github.com/Lejs5034/LegionOfBrothers-sub000/internal/rank"
	"github.com/Lejs5034/LegionOfBrothers-sub000/internal/repositories"
	"github.com/Lejs5034/LegionOfBrothers-sub000/middleware/jwt"
)

// AuthService 认证服务
type AuthService struct {
	userRepo *repositories.UserRepository
	tokens   *jwt.TokenManager
	validate *validator.Validate
	cost     int
}

func NewAuthService(userRepo *repositories.UserRepository, tokens *jwt.TokenManager) *AuthService {
	return &AuthService{
		userRepo: userRepo,
		tokens:   tokens,
		validate: newValidator(),
		cost:     bcrypt.DefaultCost,
	}
}

type RegisterRequest struct {
	Username string `json:"username" validate:"required,min=3,max=32,username"`
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type AuthResponse struct {
	Token string   `json:"token"`
	User  *UserDTO `json:"user"`
}

// Register creates an account with the default rank and signs it in.
func (s *AuthService) Register(ctx context.Context, req *RegisterRequest) (*AuthResponse, error) {
	if err := check(s.validate, req); err != nil {
		return nil, err
	}

	exists, err := s.userRepo.ExistsByUserName(ctx, req.Username)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrUserNameTaken
	}
	if exists, err = s.userRepo.ExistsByEmail(ctx, req.Email); err != nil {
		return nil, err
	} else if exists {
		return nil, ErrEmailTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &models.User{
		UserName:     req.Username,
		Email:        req.Email,
		PasswordHash: string(hash),
		Rank:         rank.User,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, err
	}
	return s.issue(user)
}

func (s *AuthService) Login(ctx context.Context, req *LoginRequest) (*AuthResponse, error) {
	if err := check(s.validate, req); err != nil {
		return nil, err
	}

	user, err := s.userRepo.GetByUserName(ctx, req.Username)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		return nil, ErrInvalidCredentials
	}
	if user.Banned {
		return nil, ErrBanned
	}
	return s.issue(user)
}

// Verify checks a session token and that its user still exists and is not banned.
func (s *AuthService) Verify(ctx context.Context, token string) (*jwt.Claims, error) {
	claims, err := s.tokens.ParseToken(token)
	if err != nil {
		return nil, err
	}
	user, err := s.userRepo.GetByID(ctx, claims.UserID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, jwt.ErrInvalidToken
	}
	if err != nil {
		return nil, err
	}
	if user.Banned {
		return nil, ErrBanned
	}
	claims.Rank = user.Rank
	return claims, nil
}

// Refresh reissues a token close to its expiry.
func (s *AuthService) Refresh(token string) (string, error) {
	return s.tokens.RefreshToken(token)
}

func (s *AuthService) Me(ctx context.Context, userID string) (*UserDTO, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return toUserDTO(user), nil
}

func (s *AuthService) issue(user *models.User) (*AuthResponse, error) {
	token, err := s.tokens.GenerateToken(user.ID, user.UserName, user.Rank)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}
	return &AuthResponse{Token: token, User: toUserDTO(user)}, nil
}
