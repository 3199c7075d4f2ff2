package redisstore

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/jrsteele09/go-tenant-session/credentials"
)

var _ credentials.Store = (*CredentialStore)(nil)

// CredentialStore keeps the token pair under <prefix>access_token and <prefix>refresh_token.
type CredentialStore struct {
	store *Store
}

func (c *CredentialStore) Get(ctx context.Context) (*credentials.Credential, error) {
	s := c.store
	values, err := s.client.MGet(ctx, s.key(accessTokenKey), s.key(refreshTokenKey)).Result()
	if err != nil {
		return nil, fmt.Errorf("[redisstore CredentialGet] %w", err)
	}
	access := stringValue(values[0])
	if access == "" {
		return nil, nil
	}
	return &credentials.Credential{AccessToken: access, RefreshToken: stringValue(values[1])}, nil
}

func (c *CredentialStore) Set(ctx context.Context, credential credentials.Credential) error {
	if err := credential.Validate(); err != nil {
		return err
	}
	s := c.store
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(accessTokenKey), credential.AccessToken, s.ttl)
		if credential.HasRefreshToken() {
			pipe.Set(ctx, s.key(refreshTokenKey), credential.RefreshToken, s.ttl)
		} else {
			pipe.Del(ctx, s.key(refreshTokenKey))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("[redisstore CredentialSet] %w", err)
	}
	return nil
}

// Clear removes both tokens with one DEL.
func (c *CredentialStore) Clear(ctx context.Context) error {
	s := c.store
	if err := s.client.Del(ctx, s.key(accessTokenKey), s.key(refreshTokenKey)).Err(); err != nil {
		return fmt.Errorf("[redisstore CredentialClear] %w", err)
	}
	return nil
}
