package clients

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jrsteele09/go-tenant-session/credentials"
	"github.com/jrsteele09/go-tenant-session/internal/logging"
	"github.com/jrsteele09/go-tenant-session/tenants"
	"github.com/jrsteele09/go-tenant-session/token"
)

const (
	HeaderAuthorization = "Authorization"
	HeaderRequestID     = "X-Request-ID"

	maxRetries     = 1
	maxDrainBytes  = 64 << 10
	redactedBearer = "Bearer [redacted]"
)

// ContextStore is the part of *tenants.ContextStore the pipeline needs.
type ContextStore interface {
	Get() tenants.ActiveContext
	Confirm(ctx context.Context, establishmentID, rawRole string) bool
}

// Refresher renews the access token. *refresh.Coordinator satisfies it.
type Refresher interface {
	Refresh(ctx context.Context, staleAccessToken string) (string, error)
}

var _ http.RoundTripper = (*Pipeline)(nil)

// Pipeline decorates every outbound request with the session credential and
// tenant selection, reconciles the tenant context from responses and retries
// a request once after a 401 with a refreshed token.
type Pipeline struct {
	binding     Binding
	creds       credentials.Store
	contexts    ContextStore
	refresher   Refresher
	next        http.RoundTripper
	minValidity time.Duration
	logger      zerolog.Logger
}

type PipelineOption func(*Pipeline)

// WithTransport sets the RoundTripper requests are finally sent through.
func WithTransport(next http.RoundTripper) PipelineOption {
	return func(p *Pipeline) {
		p.next = next
	}
}

// WithMinValidity refreshes tokens expiring within d before sending. Zero disables it.
func WithMinValidity(d time.Duration) PipelineOption {
	return func(p *Pipeline) {
		p.minValidity = d
	}
}

func NewPipeline(binding Binding, creds credentials.Store, contexts ContextStore, refresher Refresher, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		binding:   binding,
		creds:     creds,
		contexts:  contexts,
		refresher: refresher,
		next:      http.DefaultTransport,
		logger:    logging.Component("clients").With().Str("service", binding.Name).Logger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Pipeline) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	attempt := Attempt(ctx)

	accessToken, err := p.accessToken(ctx)
	if err != nil {
		closeBody(req)
		return nil, err
	}

	out := req.Clone(ctx)
	if accessToken != "" {
		out.Header.Set(HeaderAuthorization, "Bearer "+accessToken)
	}
	p.applySelection(out)
	if out.Header.Get(HeaderRequestID) == "" {
		out.Header.Set(HeaderRequestID, uuid.NewString())
	}
	p.logRequest(out, attempt)

	resp, err := p.next.RoundTrip(out)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < http.StatusBadRequest {
		p.reconcile(ctx, resp)
		return resp, nil
	}
	if resp.StatusCode != http.StatusUnauthorized || attempt >= maxRetries || !replayable(req) {
		return resp, nil
	}

	drain(resp)
	refreshed, err := p.refresher.Refresh(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	p.logger.Debug().
		Str("request_id", out.Header.Get(HeaderRequestID)).
		Str("token", logging.Fingerprint(refreshed)).
		Msg("retrying after refresh")

	retry := req.Clone(WithAttempt(ctx, attempt+1))
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, err
		}
		retry.Body = body
	}
	return p.RoundTrip(retry)
}

// accessToken reads the current token, refreshing it first when it is about to expire.
func (p *Pipeline) accessToken(ctx context.Context) (string, error) {
	current, err := credentials.AccessToken(ctx, p.creds)
	if err != nil || current == "" {
		return current, err
	}
	if p.minValidity > 0 && token.ExpiresWithin(current, p.minValidity) {
		p.logger.Debug().Str("token", logging.Fingerprint(current)).Msg("access token near expiry, refreshing")
		return p.refresher.Refresh(ctx, current)
	}
	return current, nil
}

func (p *Pipeline) applySelection(req *http.Request) {
	names := p.binding.Headers
	active := p.contexts.Get()

	establishmentID := active.EstablishmentID
	if establishmentID == "" {
		establishmentID = p.binding.DefaultEstablishmentID
	}
	if names.EstablishmentSelect != "" && establishmentID != "" {
		req.Header.Set(names.EstablishmentSelect, establishmentID)
	}
	if names.RoleSelect != "" && active.Role != "" {
		req.Header.Set(names.RoleSelect, string(active.Role))
	}
}

// reconcile applies the server's confirmation. It always wins over the last selection.
func (p *Pipeline) reconcile(ctx context.Context, resp *http.Response) {
	names := p.binding.Headers
	if names.EstablishmentConfirm == "" || names.RoleConfirm == "" {
		return
	}
	establishmentID := resp.Header.Get(names.EstablishmentConfirm)
	roles := resp.Header.Get(names.RoleConfirm)
	if establishmentID == "" && roles == "" {
		return
	}
	p.contexts.Confirm(ctx, establishmentID, roles)
}

func (p *Pipeline) logRequest(req *http.Request, attempt int) {
	event := p.logger.Debug()
	if !event.Enabled() {
		return
	}
	headers := make(map[string]string, len(req.Header))
	for name := range req.Header {
		headers[name] = req.Header.Get(name)
	}
	if _, ok := headers[HeaderAuthorization]; ok {
		headers[HeaderAuthorization] = redactedBearer
	}
	event.
		Str("method", req.Method).
		Str("url", req.URL.String()).
		Int("attempt", attempt).
		Interface("headers", headers).
		Msg("request")
}

// replayable reports whether the request body can be sent a second time.
func replayable(req *http.Request) bool {
	return req.Body == nil || req.Body == http.NoBody || req.GetBody != nil
}

func closeBody(req *http.Request) {
	if req.Body != nil {
		_ = req.Body.Close()
	}
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrainBytes))
	_ = resp.Body.Close()
}
