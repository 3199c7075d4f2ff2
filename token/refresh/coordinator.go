// Package refresh coordinates access-token renewal for every client sharing a session.
package refresh

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/jrsteele09/go-tenant-session/credentials"
	"github.com/jrsteele09/go-tenant-session/internal/errors"
	"github.com/jrsteele09/go-tenant-session/internal/logging"
)

const refreshKey = "refresh"

// Exchanger trades a refresh token for a new credential pair.
type Exchanger interface {
	Exchange(ctx context.Context, refreshToken string) (credentials.Credential, error)
}

// Terminator is told when a failed refresh ended the session.
type Terminator interface {
	SessionExpired(ctx context.Context, err error)
}

// ContextClearer removes the active tenant context. *tenants.ContextStore satisfies it.
type ContextClearer interface {
	Clear(ctx context.Context) error
}

// Coordinator makes sure concurrent callers share a single refresh exchange.
type Coordinator struct {
	creds      credentials.Store
	contexts   ContextClearer
	exchanger  Exchanger
	terminator Terminator
	group      singleflight.Group
	calls      atomic.Int64
	logger     zerolog.Logger
}

// NewCoordinator wires the stores the coordinator updates. terminator may be nil.
func NewCoordinator(creds credentials.Store, contexts ContextClearer, exchanger Exchanger, terminator Terminator) *Coordinator {
	return &Coordinator{
		creds:      creds,
		contexts:   contexts,
		exchanger:  exchanger,
		terminator: terminator,
		logger:     logging.Component("refresh"),
	}
}

// Refresh returns a fresh access token. staleAccessToken is the token the
// caller sent; when the store already holds a different one the refresh has
// happened since and that token is returned without a network call.
//
// On failure both stores are cleared and the error wraps errors.ErrRefreshFailed.
func (c *Coordinator) Refresh(ctx context.Context, staleAccessToken string) (string, error) {
	ctx = context.WithoutCancel(ctx)
	v, err, shared := c.group.Do(refreshKey, func() (any, error) {
		return c.refresh(ctx, staleAccessToken)
	})
	if shared {
		c.logger.Debug().Msg("joined in-flight refresh")
	}
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Calls is the number of exchanges sent to the identity provider.
func (c *Coordinator) Calls() int64 {
	return c.calls.Load()
}

func (c *Coordinator) refresh(ctx context.Context, staleAccessToken string) (string, error) {
	current, err := c.creds.Get(ctx)
	if err != nil {
		return "", c.fail(ctx, current != nil, err)
	}
	if current != nil && current.AccessToken != staleAccessToken {
		return current.AccessToken, nil
	}
	if !current.HasRefreshToken() {
		return "", c.fail(ctx, current != nil, errors.ErrNoRefreshToken)
	}

	c.calls.Add(1)
	next, err := c.exchanger.Exchange(ctx, current.RefreshToken)
	if err != nil {
		return "", c.fail(ctx, true, err)
	}
	if next.RefreshToken == "" {
		next.RefreshToken = current.RefreshToken
	}
	if err := c.creds.Set(ctx, next); err != nil {
		return "", c.fail(ctx, true, err)
	}

	c.logger.Info().
		Str("previous", logging.Fingerprint(current.AccessToken)).
		Str("current", logging.Fingerprint(next.AccessToken)).
		Msg("access token refreshed")
	return next.AccessToken, nil
}

// fail tears the session down. The terminator only hears about it when a
// credential was actually lost, so repeated failures after teardown stay quiet.
func (c *Coordinator) fail(ctx context.Context, hadSession bool, cause error) error {
	err := fmt.Errorf("%w: %w", errors.ErrRefreshFailed, cause)
	if clearErr := c.creds.Clear(ctx); clearErr != nil {
		log.Err(clearErr).Msg("[Coordinator Refresh] clearing credentials")
	}
	if c.contexts != nil {
		if clearErr := c.contexts.Clear(ctx); clearErr != nil {
			log.Err(clearErr).Msg("[Coordinator Refresh] clearing active context")
		}
	}
	c.logger.Warn().Err(cause).Bool("had_session", hadSession).Msg("refresh failed, session cleared")
	if hadSession && c.terminator != nil {
		c.terminator.SessionExpired(ctx, err)
	}
	return err
}
