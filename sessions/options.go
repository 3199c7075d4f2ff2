package sessions

import (
	"net/http"
	"time"

	"github.com/jrsteele09/go-tenant-session/realtime"
	"github.com/jrsteele09/go-tenant-session/token/refresh"
)

type options struct {
	transport             http.RoundTripper
	httpTimeout           time.Duration
	minTokenValidity      time.Duration
	keepAliveInterval     time.Duration
	realtimeService       string
	realtimeOptions       []realtime.Option
	provider              *refresh.Provider
	clientID              string
	postLogoutRedirectURI string
}

func defaultOptions() options {
	return options{
		transport:        http.DefaultTransport,
		httpTimeout:      15 * time.Second,
		minTokenValidity: 30 * time.Second,
	}
}

type Option func(*options)

// WithTransport sets the RoundTripper every service pipeline sends through.
func WithTransport(transport http.RoundTripper) Option {
	return func(o *options) {
		o.transport = transport
	}
}

func WithHTTPTimeout(timeout time.Duration) Option {
	return func(o *options) {
		o.httpTimeout = timeout
	}
}

// WithMinTokenValidity refreshes access tokens expiring within d before a request is sent.
func WithMinTokenValidity(d time.Duration) Option {
	return func(o *options) {
		o.minTokenValidity = d
	}
}

// WithKeepAlive checks the token every interval and refreshes it ahead of expiry
// even when no request is being made.
func WithKeepAlive(interval time.Duration) Option {
	return func(o *options) {
		o.keepAliveInterval = interval
	}
}

// WithRealtime builds the realtime channel on the named service binding.
func WithRealtime(service string, opts ...realtime.Option) Option {
	return func(o *options) {
		o.realtimeService = service
		o.realtimeOptions = opts
	}
}

// WithLogoutRedirect enables LogoutURL.
func WithLogoutRedirect(provider *refresh.Provider, clientID, postLogoutRedirectURI string) Option {
	return func(o *options) {
		o.provider = provider
		o.clientID = clientID
		o.postLogoutRedirectURI = postLogoutRedirectURI
	}
}
