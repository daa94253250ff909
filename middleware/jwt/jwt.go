// Package jwt issues and verifies the session tokens handed to clients.
package jwt

import (
	"errors"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken     = errors.New("invalid token")
	ErrExpiredToken     = errors.New("token has expired")
	ErrTokenNotYetValid = errors.New("token not yet valid")
	ErrNotRefreshable   = errors.New("token is not eligible for refresh")
)

// Claims carried by a session token. Rank is informational; authorization
// always reloads the user's current rank.
type Claims struct {
	UserID   string `json:"user_id"`
	UserName string `json:"user_name"`
	Rank     string `json:"rank"`
	jwt.RegisteredClaims
}

type TokenManager struct {
	secret     []byte
	expireDur  time.Duration
	refreshDur time.Duration
	now        func() time.Time
}

// NewTokenManager signs with secret. Tokens live for ttl and may be refreshed
// within refreshWindow of their expiry.
func NewTokenManager(secret string, ttl, refreshWindow time.Duration) *TokenManager {
	return &TokenManager{
		secret:     []byte(secret),
		expireDur:  ttl,
		refreshDur: refreshWindow,
		now:        time.Now,
	}
}

func (tm *TokenManager) GenerateToken(userID, username, rankKey string) (string, error) {
	now := tm.now()
	claims := Claims{
		UserID:   userID,
		UserName: username,
		Rank:     rankKey,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(now.Add(tm.expireDur)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(tm.secret)
}

func (tm *TokenManager) keyFunc(token *jwt.Token) (any, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, ErrInvalidToken
	}
	return tm.secret, nil
}

func (tm *TokenManager) ParseToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, tm.keyFunc, jwt.WithTimeFunc(tm.now))
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrExpiredToken
		case errors.Is(err, jwt.ErrTokenNotValidYet):
			return nil, ErrTokenNotYetValid
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// RefreshToken reissues a token that expires, or expired, within the refresh
// window.
func (tm *TokenManager) RefreshToken(tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, tm.keyFunc, jwt.WithoutClaimsValidation())
	if err != nil {
		return "", ErrInvalidToken
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || claims.ExpiresAt == nil {
		return "", ErrInvalidToken
	}

	now := tm.now()
	expiry := claims.ExpiresAt.Time
	gap := expiry.Sub(now)
	if gap < 0 {
		gap = -gap
	}
	if gap > tm.refreshDur {
		return "", ErrNotRefreshable
	}
	return tm.GenerateToken(claims.UserID, claims.UserName, claims.Rank)
}
