package config

import "time"

type SessionConfig interface {
	GetMinTokenValidity() time.Duration
	GetCredentialTTL() time.Duration
	GetHTTPTimeout() time.Duration
}

type Session struct{}

var _ SessionConfig = Session{}

// GetMinTokenValidity is how close to expiry an access token may get before it is refreshed ahead of a request
func (Session) GetMinTokenValidity() time.Duration {
	return GetEnvDuration("SESSION_MIN_TOKEN_VALIDITY", 30*time.Second)
}

// GetCredentialTTL bounds how long credentials live in a shared (Redis) store
func (Session) GetCredentialTTL() time.Duration {
	return GetEnvDuration("SESSION_CREDENTIAL_TTL", 12*time.Hour)
}

func (Session) GetHTTPTimeout() time.Duration {
	return GetEnvDuration("SESSION_HTTP_TIMEOUT", 15*time.Second)
}
