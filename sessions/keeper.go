package sessions

import (
	"context"
	"sync"
	"time"

	"github.com/jrsteele09/go-tenant-session/credentials"
	"github.com/jrsteele09/go-tenant-session/token"
)

// keeper periodically refreshes the access token before it expires.
type keeper struct {
	manager  *Manager
	interval time.Duration

	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
}

func newKeeper(m *Manager, interval time.Duration) *keeper {
	return &keeper{
		manager:  m,
		interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

func (k *keeper) Start() {
	go k.run()
	k.manager.logger.Debug().Dur("interval", k.interval).Msg("token keeper started")
}

// Stop blocks until the worker has finished any in-progress refresh.
func (k *keeper) Stop() {
	k.stopOnce.Do(func() { close(k.stopCh) })
	<-k.doneCh
}

func (k *keeper) run() {
	defer close(k.doneCh)

	ticker := time.NewTicker(k.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			k.check()
		case <-k.stopCh:
			return
		}
	}
}

func (k *keeper) check() {
	ctx := context.Background()
	accessToken, err := credentials.AccessToken(ctx, k.manager.creds)
	if err != nil || accessToken == "" {
		return
	}
	if !token.ExpiresWithin(accessToken, k.manager.opts.minTokenValidity) {
		return
	}
	if _, err := k.manager.coordinator.Refresh(ctx, accessToken); err != nil {
		k.manager.logger.Warn().Err(err).Msg("background token refresh failed")
	}
}
