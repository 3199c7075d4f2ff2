// Package sessions owns the lifetime of one user session: the stores, the
// refresh coordinator, the service clients and the realtime channel.
package sessions

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/go-tenant-session/clients"
	"github.com/jrsteele09/go-tenant-session/credentials"
	"github.com/jrsteele09/go-tenant-session/internal/errors"
	"github.com/jrsteele09/go-tenant-session/internal/logging"
	"github.com/jrsteele09/go-tenant-session/realtime"
	"github.com/jrsteele09/go-tenant-session/tenants"
	"github.com/jrsteele09/go-tenant-session/token"
	"github.com/jrsteele09/go-tenant-session/token/refresh"
)

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

type LogoutReason string

const (
	ReasonUser           LogoutReason = "user"
	ReasonSessionExpired LogoutReason = "session_expired"
)

// LogoutEvent is delivered to OnLogout handlers when the session ends.
type LogoutEvent struct {
	Reason    LogoutReason
	Err       error // Why the session expired, nil for a user logout
	At        time.Time
	LogoutURL string // Where to send the browser, empty without a provider
}

// Deps are the collaborators a Manager cannot default.
type Deps struct {
	Credentials credentials.Store
	Contexts    tenants.Repo
	Exchanger   refresh.Exchanger
	Bindings    []clients.Binding
	Closers     []io.Closer // Released by Close, e.g. a Redis connection
}

var _ refresh.Terminator = (*Manager)(nil)

type Manager struct {
	creds       credentials.Store
	contexts    *tenants.ContextStore
	coordinator *refresh.Coordinator
	registry    *clients.Registry
	channel     *realtime.Channel
	keeper      *keeper
	closers     []io.Closer
	opts        options
	logger      zerolog.Logger

	handlersMu sync.RWMutex
	handlers   map[uuid.UUID]func(LogoutEvent)
}

// New wires a session from explicit dependencies.
func New(ctx context.Context, deps Deps, opts ...Option) (*Manager, error) {
	if deps.Credentials == nil || deps.Contexts == nil || deps.Exchanger == nil {
		return nil, fmt.Errorf("[Manager New] credentials, contexts and exchanger are required")
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	contexts, err := tenants.NewContextStore(ctx, deps.Contexts)
	if err != nil {
		return nil, fmt.Errorf("[Manager New] %w", err)
	}

	m := &Manager{
		creds:    deps.Credentials,
		contexts: contexts,
		registry: clients.NewRegistry(),
		closers:  deps.Closers,
		opts:     o,
		logger:   logging.Component("sessions"),
		handlers: make(map[uuid.UUID]func(LogoutEvent)),
	}
	m.coordinator = refresh.NewCoordinator(deps.Credentials, contexts, deps.Exchanger, m)

	for _, binding := range deps.Bindings {
		pipeline := clients.NewPipeline(binding, deps.Credentials, contexts, m.coordinator,
			clients.WithTransport(o.transport),
			clients.WithMinValidity(o.minTokenValidity),
		)
		client, err := clients.NewClient(binding, pipeline, o.httpTimeout)
		if err != nil {
			return nil, fmt.Errorf("[Manager New] %w", err)
		}
		m.registry.Register(client)

		if binding.Name == o.realtimeService {
			m.channel, err = realtime.New(binding.BaseURL, deps.Credentials, contexts, o.realtimeOptions...)
			if err != nil {
				return nil, fmt.Errorf("[Manager New] %w", err)
			}
		}
	}
	if o.realtimeService != "" && m.channel == nil {
		return nil, errors.Wrapf(errors.ErrUnknownService, "[Manager New] realtime service %q", o.realtimeService)
	}

	if o.keepAliveInterval > 0 {
		m.keeper = newKeeper(m, o.keepAliveInterval)
		m.keeper.Start()
	}
	return m, nil
}

// Login stores the credential obtained from the identity provider.
func (m *Manager) Login(ctx context.Context, credential credentials.Credential) error {
	if err := m.creds.Set(ctx, credential); err != nil {
		return fmt.Errorf("[Manager Login] %w", err)
	}
	m.logger.Info().Str("token", logging.Fingerprint(credential.AccessToken)).Msg("session started")
	return nil
}

// SelectContext records the user's establishment and role choice.
func (m *Manager) SelectContext(ctx context.Context, establishmentID string, role tenants.Role) error {
	return m.contexts.Set(ctx, establishmentID, role)
}

func (m *Manager) ActiveContext() tenants.ActiveContext {
	return m.contexts.Get()
}

// Contexts exposes the context store, mainly for Subscribe.
func (m *Manager) Contexts() *tenants.ContextStore {
	return m.contexts
}

// Authenticated reports whether a credential is held.
func (m *Manager) Authenticated(ctx context.Context) (bool, error) {
	accessToken, err := credentials.AccessToken(ctx, m.creds)
	return accessToken != "", err
}

// DisplayName reads name, preferred_username or email from the access token.
func (m *Manager) DisplayName(ctx context.Context) (string, error) {
	claims, err := m.claims(ctx)
	if err != nil {
		return "", err
	}
	return claims.DisplayName(), nil
}

// Roles are the identity provider realm roles, not the tenant role.
func (m *Manager) Roles(ctx context.Context) ([]string, error) {
	claims, err := m.claims(ctx)
	if err != nil {
		return nil, err
	}
	return claims.Roles, nil
}

func (m *Manager) claims(ctx context.Context) (*token.Claims, error) {
	accessToken, err := credentials.AccessToken(ctx, m.creds)
	if err != nil {
		return nil, err
	}
	return token.ParseClaims(accessToken)
}

// Client returns the service client registered under name.
func (m *Manager) Client(name string) (*clients.Client, error) {
	return m.registry.Get(name)
}

// Services lists the configured service names.
func (m *Manager) Services() []string {
	return m.registry.Names()
}

// Realtime returns the realtime channel, nil when none is configured.
func (m *Manager) Realtime() *realtime.Channel {
	return m.channel
}

// Refresh forces a token refresh outside of any request.
func (m *Manager) Refresh(ctx context.Context) (string, error) {
	accessToken, err := credentials.AccessToken(ctx, m.creds)
	if err != nil {
		return "", err
	}
	return m.coordinator.Refresh(ctx, accessToken)
}

// RefreshCalls is the number of refresh exchanges made so far.
func (m *Manager) RefreshCalls() int64 {
	return m.coordinator.Calls()
}

// OnLogout registers fn for logout and session expiry. The returned func removes it.
// A user Logout calls handlers before returning; session expiry calls them
// asynchronously, so a handler may call Close.
func (m *Manager) OnLogout(fn func(LogoutEvent)) (unsubscribe func()) {
	id := uuid.New()
	m.handlersMu.Lock()
	m.handlers[id] = fn
	m.handlersMu.Unlock()
	return func() {
		m.handlersMu.Lock()
		delete(m.handlers, id)
		m.handlersMu.Unlock()
	}
}

// Logout is a hard reset: the realtime channel is closed, both stores are
// cleared and handlers are told. Clearing continues past individual failures.
func (m *Manager) Logout(ctx context.Context) error {
	if m.channel != nil {
		m.channel.Disconnect()
	}

	var firstErr error
	if err := m.creds.Clear(ctx); err != nil {
		firstErr = fmt.Errorf("[Manager Logout] clearing credentials: %w", err)
	}
	if err := m.contexts.Clear(ctx); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("[Manager Logout] clearing context: %w", err)
	}

	m.logger.Info().Msg("session ended by user")
	m.notify(LogoutEvent{Reason: ReasonUser, At: NowTimeFunc(), LogoutURL: m.LogoutURL()})
	return firstErr
}

// SessionExpired is called by the refresh coordinator after it cleared the stores.
func (m *Manager) SessionExpired(ctx context.Context, err error) {
	if m.channel != nil {
		m.channel.Disconnect()
	}
	log.Warn().Err(err).Msg("[Manager SessionExpired] session expired, logging out")
	// Async: this may run on the keeper goroutine, which Close waits for.
	go m.notify(LogoutEvent{Reason: ReasonSessionExpired, Err: err, At: NowTimeFunc(), LogoutURL: m.LogoutURL()})
}

// LogoutURL is the identity provider end-session URL, empty without a provider.
func (m *Manager) LogoutURL() string {
	if m.opts.provider == nil {
		return ""
	}
	return m.opts.provider.LogoutURL(m.opts.clientID, m.opts.postLogoutRedirectURI)
}

// Close stops background work and releases the stores. It does not log out.
func (m *Manager) Close() error {
	if m.keeper != nil {
		m.keeper.Stop()
	}
	if m.channel != nil {
		m.channel.Disconnect()
	}
	var firstErr error
	for _, closer := range m.closers {
		if err := closer.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (m *Manager) notify(event LogoutEvent) {
	m.handlersMu.RLock()
	handlers := make([]func(LogoutEvent), 0, len(m.handlers))
	for _, fn := range m.handlers {
		handlers = append(handlers, fn)
	}
	m.handlersMu.RUnlock()

	for _, fn := range handlers {
		fn(event)
	}
}
