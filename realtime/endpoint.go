package realtime

import (
	"net/url"
	"strings"

	"github.com/jrsteele09/go-tenant-session/internal/errors"
)

// Handshake carries the values sent as query parameters on connect.
// Browsers cannot set headers on a websocket handshake, so the services read them from the URL.
type Handshake struct {
	Token           string
	EstablishmentID string
	Role            string
}

// Endpoint derives the websocket URL from an HTTP service base URL:
// http becomes ws, https becomes wss, and path is appended to the base path.
func Endpoint(baseURL, path string, handshake Handshake) (string, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return "", errors.Wrapf(errors.ErrInvalidBaseURL, "%q: %v", baseURL, err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", errors.Wrapf(errors.ErrInvalidBaseURL, "%q", baseURL)
	}
	if u.Host == "" {
		return "", errors.Wrapf(errors.ErrInvalidBaseURL, "%q", baseURL)
	}

	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	u.Path += strings.TrimLeft(path, "/")
	u.RawPath = ""

	query := url.Values{}
	if handshake.Token != "" {
		query.Set("token", handshake.Token)
	}
	if handshake.EstablishmentID != "" {
		query.Set("etab_id", handshake.EstablishmentID)
	}
	if handshake.Role != "" {
		query.Set("role", handshake.Role)
	}
	u.RawQuery = query.Encode()
	u.Fragment = ""
	return u.String(), nil
}
