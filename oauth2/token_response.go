package oauth2

// TokenResponse is the token endpoint response body (RFC 6749 section 5.1).
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type,omitempty"`
	// ExpiresIn is a hint in seconds. The JWT "exp" claim is what expiry checks read.
	ExpiresIn int `json:"expires_in,omitempty"`
	// RefreshToken is omitted when the provider does not rotate it; callers keep the previous one.
	RefreshToken string `json:"refresh_token,omitempty"`
	IDToken      string `json:"id_token,omitempty"`
	Scope        string `json:"scope,omitempty"`
}

// ErrorResponse is the token endpoint error body (RFC 6749 section 5.2).
// Most tenant services reuse the same shape for their own failures.
type ErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}
