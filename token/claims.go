// Package token reads claims from the session access token. Tokens are parsed
// without verification: the services verify them, the client only displays
// what they carry and watches their expiry.
package token

import (
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"github.com/jrsteele09/go-tenant-session/internal/errors"
	"github.com/jrsteele09/go-tenant-session/internal/utils"
)

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

// Claims is the subset of access-token claims the session runtime uses.
type Claims struct {
	Subject           string
	Name              string
	PreferredUsername string
	Email             string
	ExpiresAt         time.Time // Zero when the token has no exp
	Roles             []string  // realm_access.roles
}

// ParseClaims extracts Claims from rawToken without checking its signature.
func ParseClaims(rawToken string) (*Claims, error) {
	if strings.TrimSpace(rawToken) == "" {
		return nil, errors.ErrEmptyToken
	}

	unverifiedToken, _, err := jwtlib.NewParser().ParseUnverified(rawToken, jwtlib.MapClaims{})
	if err != nil {
		return nil, errors.Wrapf(errors.ErrInvalidToken, "[token ParseClaims] %v", err)
	}

	claims, ok := unverifiedToken.Claims.(jwtlib.MapClaims)
	if !ok {
		return nil, errors.Wrapf(errors.ErrInvalidToken, "[token ParseClaims] error extracting claims")
	}

	var expiresAt time.Time
	if exp, ok := claims["exp"].(float64); ok {
		expiresAt = time.Unix(int64(exp), 0)
	}

	return &Claims{
		Subject:           utils.String(claims, "sub"),
		Name:              utils.String(claims, "name"),
		PreferredUsername: utils.String(claims, "preferred_username"),
		Email:             utils.String(claims, "email"),
		ExpiresAt:         expiresAt,
		Roles:             utils.Strings(utils.Object(claims, "realm_access"), "roles"),
	}, nil
}

// DisplayName picks name, then preferred_username, then email.
func (c *Claims) DisplayName() string {
	for _, candidate := range []string{c.Name, c.PreferredUsername, c.Email} {
		if strings.TrimSpace(candidate) != "" {
			return candidate
		}
	}
	return ""
}

// ExpiresWithin reports whether the token expires in less than d.
// Tokens without an exp claim never do.
func (c *Claims) ExpiresWithin(d time.Duration) bool {
	if c.ExpiresAt.IsZero() {
		return false
	}
	return c.ExpiresAt.Sub(NowTimeFunc()) < d
}

// ExpiresWithin parses rawToken and reports whether it expires within d.
// Opaque tokens that are not JWTs report false.
func ExpiresWithin(rawToken string, d time.Duration) bool {
	claims, err := ParseClaims(rawToken)
	if err != nil {
		return false
	}
	return claims.ExpiresWithin(d)
}
