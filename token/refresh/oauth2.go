package refresh

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/jrsteele09/go-tenant-session/credentials"
)

var _ Exchanger = (*OAuth2Exchanger)(nil)

// OAuth2Exchanger runs the refresh_token grant against the provider's token endpoint.
type OAuth2Exchanger struct {
	config     *oauth2.Config
	httpClient *http.Client
}

// NewOAuth2Exchanger uses httpClient for token requests when it is non nil.
func NewOAuth2Exchanger(config *oauth2.Config, httpClient *http.Client) *OAuth2Exchanger {
	return &OAuth2Exchanger{config: config, httpClient: httpClient}
}

func (e *OAuth2Exchanger) Exchange(ctx context.Context, refreshToken string) (credentials.Credential, error) {
	if e.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, e.httpClient)
	}
	tok, err := e.config.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return credentials.Credential{}, fmt.Errorf("[OAuth2Exchanger Exchange] %w", err)
	}
	return credentials.Credential{AccessToken: tok.AccessToken, RefreshToken: tok.RefreshToken}, nil
}

// Provider is the discovered identity provider.
type Provider struct {
	Issuer             string
	Endpoint           oauth2.Endpoint
	EndSessionEndpoint string
}

// Discover reads the provider's OpenID configuration from issuer.
func Discover(ctx context.Context, issuer string, httpClient *http.Client) (*Provider, error) {
	if httpClient != nil {
		ctx = oidc.ClientContext(ctx, httpClient)
	}
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to create OIDC provider: %w", err)
	}

	var extra struct {
		EndSessionEndpoint string `json:"end_session_endpoint"`
	}
	if err := provider.Claims(&extra); err != nil {
		return nil, fmt.Errorf("failed to read provider metadata: %w", err)
	}

	endpoint := provider.Endpoint()
	endpoint.AuthStyle = oauth2.AuthStyleInParams // Public client, no secret
	return &Provider{
		Issuer:             issuer,
		Endpoint:           endpoint,
		EndSessionEndpoint: extra.EndSessionEndpoint,
	}, nil
}

// OAuth2Config builds the client configuration used for refresh grants.
func (p *Provider) OAuth2Config(clientID string, scopes []string) *oauth2.Config {
	return &oauth2.Config{
		ClientID: clientID,
		Endpoint: p.Endpoint,
		Scopes:   scopes,
	}
}

// LogoutURL is the end-session URL that sends the browser back to
// postLogoutRedirectURI. Returns "" when the provider has no end-session endpoint.
func (p *Provider) LogoutURL(clientID, postLogoutRedirectURI string) string {
	if p.EndSessionEndpoint == "" {
		return ""
	}
	u, err := url.Parse(p.EndSessionEndpoint)
	if err != nil {
		return ""
	}
	q := u.Query()
	q.Set("client_id", clientID)
	if redirect := strings.TrimRight(postLogoutRedirectURI, "/"); redirect != "" {
		q.Set("post_logout_redirect_uri", redirect)
	}
	u.RawQuery = q.Encode()
	return u.String()
}
