// Package session resolves a session token into a signed-in user within a
// hard time limit. A check that does not finish in time counts as signed out.
package session

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/Lejs5034/LegionOfBrothers-sub000/middleware/jwt"
)

const DefaultTimeout = 5 * time.Second

var ErrTimeout = errors.New("auth check timed out")

// Verifier validates a token against current account state.
type Verifier interface {
	Verify(ctx context.Context, token string) (*jwt.Claims, error)
}

// Result of a check. Redirect is set whenever Authenticated is false.
type Result struct {
	Authenticated bool
	Claims        *jwt.Claims
	Redirect      string
	Err           error
}

type Checker struct {
	verifier   Verifier
	timeout    time.Duration
	signInPath string
	logger     *zap.Logger
}

func NewChecker(verifier Verifier, timeout time.Duration, signInPath string, logger *zap.Logger) *Checker {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Checker{verifier: verifier, timeout: timeout, signInPath: signInPath, logger: logger}
}

// Check never blocks longer than the configured timeout, even when the
// verifier ignores its context.
func (c *Checker) Check(ctx context.Context, token string) Result {
	if token == "" {
		return c.signedOut(jwt.ErrInvalidToken)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	type outcome struct {
		claims *jwt.Claims
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		claims, err := c.verifier.Verify(ctx, token)
		done <- outcome{claims, err}
	}()

	select {
	case o := <-done:
		if o.err != nil {
			return c.signedOut(o.err)
		}
		return Result{Authenticated: true, Claims: o.claims}
	case <-ctx.Done():
		c.logger.Warn("auth check timed out", zap.Duration("timeout", c.timeout))
		return c.signedOut(ErrTimeout)
	}
}

func (c *Checker) signedOut(err error) Result {
	return Result{Redirect: c.signInPath, Err: err}
}
