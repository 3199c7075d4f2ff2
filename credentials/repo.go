package credentials

import "context"

// Store holds the current session credential.
// A missing credential is a valid state: Get returns (nil, nil) for an anonymous session.
type Store interface {
	Get(ctx context.Context) (*Credential, error)
	Set(ctx context.Context, credential Credential) error
	Clear(ctx context.Context) error
}

// AccessToken reads the access token from the store at the moment it is needed.
// It returns "" when no credential is stored.
func AccessToken(ctx context.Context, store Store) (string, error) {
	c, err := store.Get(ctx)
	if err != nil || c == nil {
		return "", err
	}
	return c.AccessToken, nil
}
