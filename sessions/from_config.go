package sessions

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/jrsteele09/go-tenant-session/clients"
	"github.com/jrsteele09/go-tenant-session/credentials"
	credmem "github.com/jrsteele09/go-tenant-session/credentials/memstore"
	"github.com/jrsteele09/go-tenant-session/internal/config"
	"github.com/jrsteele09/go-tenant-session/internal/storage/redisstore"
	"github.com/jrsteele09/go-tenant-session/realtime"
	"github.com/jrsteele09/go-tenant-session/tenants"
	tenantmem "github.com/jrsteele09/go-tenant-session/tenants/memstore"
	"github.com/jrsteele09/go-tenant-session/token/refresh"
)

// NewFromConfig builds a Manager from environment configuration: stores
// (Redis when REDIS_URL is set), OIDC discovery, service bindings and the
// realtime channel. Extra opts are applied last.
func NewFromConfig(ctx context.Context, cfg config.Config, opts ...Option) (*Manager, error) {
	if cfg.GetIssuer() == "" {
		return nil, fmt.Errorf("[Manager NewFromConfig] OIDC_ISSUER is required")
	}

	var (
		creds   credentials.Store
		repo    tenants.Repo
		closers []io.Closer
	)
	if redisURL := cfg.GetRedisURL(); redisURL != "" {
		store, err := redisstore.New(redisURL, cfg.GetKeyPrefix(), cfg.GetCredentialTTL())
		if err != nil {
			return nil, fmt.Errorf("[Manager NewFromConfig] %w", err)
		}
		creds, repo = store.Credentials(), store.Contexts()
		closers = append(closers, store)
	} else {
		creds, repo = credmem.New(), tenantmem.New()
	}

	httpClient := &http.Client{Timeout: cfg.GetHTTPTimeout()}
	provider, err := refresh.Discover(ctx, cfg.GetIssuer(), httpClient)
	if err != nil {
		closeAll(closers)
		return nil, fmt.Errorf("[Manager NewFromConfig] %w", err)
	}
	exchanger := refresh.NewOAuth2Exchanger(provider.OAuth2Config(cfg.GetClientID(), cfg.GetScopes()), httpClient)

	serviceBindings, err := config.LoadBindings(cfg.GetBindingsFile())
	if err != nil {
		closeAll(closers)
		return nil, fmt.Errorf("[Manager NewFromConfig] %w", err)
	}
	bindings := make([]clients.Binding, 0, len(serviceBindings))
	for _, sb := range serviceBindings {
		bindings = append(bindings, clients.BindingFromConfig(sb, cfg.GetDefaultEstablishmentID()))
	}

	configured := []Option{
		WithHTTPTimeout(cfg.GetHTTPTimeout()),
		WithMinTokenValidity(cfg.GetMinTokenValidity()),
		WithLogoutRedirect(provider, cfg.GetClientID(), cfg.GetPostLogoutRedirectURI()),
		WithRealtime(cfg.GetRealtimeService(),
			realtime.WithPath(cfg.GetRealtimePath()),
			realtime.WithDialer(realtime.GorillaDialer(cfg.GetHandshakeTimeout())),
			realtime.WithBackoff(realtime.Backoff{
				Base:        cfg.GetReconnectBaseDelay(),
				Max:         cfg.GetReconnectMaxDelay(),
				MaxAttempts: cfg.GetMaxReconnectAttempts(),
			}),
		),
	}

	m, err := New(ctx, Deps{
		Credentials: creds,
		Contexts:    repo,
		Exchanger:   exchanger,
		Bindings:    bindings,
		Closers:     closers,
	}, append(configured, opts...)...)
	if err != nil {
		closeAll(closers)
		return nil, err
	}
	return m, nil
}

func closeAll(closers []io.Closer) {
	for _, closer := range closers {
		_ = closer.Close()
	}
}
