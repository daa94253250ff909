package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Lejs5034/LegionOfBrothers-sub000/middleware/jwt"
)

type verifierFunc func(ctx context.Context, token string) (*jwt.Claims, error)

func (f verifierFunc) Verify(ctx context.Context, token string) (*jwt.Claims, error) {
	return f(ctx, token)
}

func TestChecker(t *testing.T) {
	ok := verifierFunc(func(context.Context, string) (*jwt.Claims, error) {
		return &jwt.Claims{UserID: "u1"}, nil
	})

	t.Run("valid token", func(t *testing.T) {
		res := NewChecker(ok, time.Second, "/signin", nil).Check(context.Background(), "tok")
		assert.True(t, res.Authenticated)
		assert.Equal(t, "u1", res.Claims.UserID)
		assert.Empty(t, res.Redirect)
	})

	t.Run("missing token", func(t *testing.T) {
		res := NewChecker(ok, time.Second, "/signin", nil).Check(context.Background(), "")
		assert.False(t, res.Authenticated)
		assert.Equal(t, "/signin", res.Redirect)
	})

	t.Run("rejected token", func(t *testing.T) {
		bad := verifierFunc(func(context.Context, string) (*jwt.Claims, error) {
			return nil, jwt.ErrExpiredToken
		})
		res := NewChecker(bad, time.Second, "/signin", nil).Check(context.Background(), "tok")
		assert.False(t, res.Authenticated)
		assert.ErrorIs(t, res.Err, jwt.ErrExpiredToken)
	})

	t.Run("slow verifier times out", func(t *testing.T) {
		release := make(chan struct{})
		defer close(release)
		slow := verifierFunc(func(context.Context, string) (*jwt.Claims, error) {
			<-release
			return nil, errors.New("too late")
		})

		start := time.Now()
		res := NewChecker(slow, 20*time.Millisecond, "/signin", nil).Check(context.Background(), "tok")
		assert.Less(t, time.Since(start), time.Second)
		assert.False(t, res.Authenticated)
		assert.Equal(t, "/signin", res.Redirect)
		assert.ErrorIs(t, res.Err, ErrTimeout)
	})
}
