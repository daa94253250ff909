// Package prefs keeps per-user UI preferences and the current session token
// in redis under fixed keys.
package prefs

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// Fixed preference keys.
const (
	KeyShowMemberList = "show_member_list"
	KeySessionToken   = "session_token"
)

var ErrNoSession = errors.New("no session token stored")

// Preferences is the flag set returned to clients.
type Preferences struct {
	ShowMemberList bool `json:"show_member_list"`
}

// Defaults apply when nothing is stored.
var Defaults = Preferences{ShowMemberList: true}

type Store struct {
	redis *redis.Client
}

func NewStore(client *redis.Client) *Store {
	return &Store{redis: client}
}

func flagsKey(userID string) string { return "prefs:" + userID }

func tokenKey(userID string) string { return "prefs:" + userID + ":" + KeySessionToken }

func (s *Store) Get(ctx context.Context, userID string) (Preferences, error) {
	p := Defaults
	val, err := s.redis.HGet(ctx, flagsKey(userID), KeyShowMemberList).Result()
	if errors.Is(err, redis.Nil) {
		return p, nil
	}
	if err != nil {
		return p, fmt.Errorf("load preferences: %w", err)
	}
	if b, err := strconv.ParseBool(val); err == nil {
		p.ShowMemberList = b
	}
	return p, nil
}

func (s *Store) SetShowMemberList(ctx context.Context, userID string, show bool) error {
	return s.redis.HSet(ctx, flagsKey(userID), KeyShowMemberList, strconv.FormatBool(show)).Err()
}

// SaveSessionToken stores the token until ttl elapses.
func (s *Store) SaveSessionToken(ctx context.Context, userID, token string, ttl time.Duration) error {
	return s.redis.Set(ctx, tokenKey(userID), token, ttl).Err()
}

func (s *Store) SessionToken(ctx context.Context, userID string) (string, error) {
	token, err := s.redis.Get(ctx, tokenKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNoSession
	}
	return token, err
}

func (s *Store) ClearSessionToken(ctx context.Context, userID string) error {
	return s.redis.Del(ctx, tokenKey(userID)).Err()
}
