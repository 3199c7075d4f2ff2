package config

type OIDCConfig interface {
	GetIssuer() string
	GetClientID() string
	GetPostLogoutRedirectURI() string
	GetScopes() []string
}

type OIDC struct{}

var _ OIDCConfig = OIDC{}

// GetIssuer returns the identity provider issuer (e.g., "https://sso.example.com/realms/edc")
func (OIDC) GetIssuer() string {
	return GetEnv("OIDC_ISSUER", "")
}

func (OIDC) GetClientID() string {
	return GetEnv("OIDC_CLIENT_ID", "edc-frontend")
}

func (OIDC) GetPostLogoutRedirectURI() string {
	return GetEnv("OIDC_POST_LOGOUT_REDIRECT_URI", "http://localhost:8000/")
}

func (OIDC) GetScopes() []string {
	return []string{"openid", "profile", "email", "offline_access"}
}
