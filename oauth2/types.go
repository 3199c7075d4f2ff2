package oauth2

// GrantType is the grant_type form value sent to the token endpoint.
type GrantType string

const (
	// RefreshTokenGrant exchanges a refresh token for a new access token and,
	// when the provider rotates them, a new refresh token.
	RefreshTokenGrant GrantType = "refresh_token"
)

// Token endpoint error codes.
const (
	ErrorInvalidRequest       = "invalid_request"
	ErrorInvalidClient        = "invalid_client"
	ErrorInvalidGrant         = "invalid_grant"
	ErrorUnsupportedGrantType = "unsupported_grant_type"
)

// TokenTypeBearer is the only token type issued.
const TokenTypeBearer = "Bearer"
