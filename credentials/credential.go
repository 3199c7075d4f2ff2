package credentials

import (
	"strings"

	"github.com/jrsteele09/go-tenant-session/internal/errors"
)

// Credential is the access/refresh token pair of the current session.
type Credential struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"` // May be empty, the session then cannot refresh
}

// Validate only checks that an access token is present.
func (c Credential) Validate() error {
	if strings.TrimSpace(c.AccessToken) == "" {
		return errors.ErrEmptyToken
	}
	return nil
}

// HasRefreshToken reports whether the credential can be exchanged for a new access token.
func (c *Credential) HasRefreshToken() bool {
	return c != nil && strings.TrimSpace(c.RefreshToken) != ""
}
