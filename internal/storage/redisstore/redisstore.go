// Package redisstore persists the session credential and the active tenant
// context in Redis so a session survives a restart. It is not a way to share
// one live session between processes: the active context is read only at
// startup and refreshes are coordinated per process.
package redisstore

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	accessTokenKey  = "access_token"
	refreshTokenKey = "refresh_token"
	etabKey         = "active_etab_id"
	roleKey         = "active_role"
	ctxAtKey        = "active_ctx_at"

	pingTimeout = 5 * time.Second
)

// Store owns the Redis client shared by the credential store and the context repo.
type Store struct {
	client *redis.Client
	prefix string
	ttl    time.Duration // Credential expiry, zero keeps keys forever
}

// New connects to redisURL and checks the server is reachable.
func New(redisURL, prefix string, ttl time.Duration) (*Store, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("[redisstore New] parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("[redisstore New] connect to redis: %w", err)
	}
	return NewWithClient(client, prefix, ttl), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client *redis.Client, prefix string, ttl time.Duration) *Store {
	return &Store{client: client, prefix: prefix, ttl: ttl}
}

// Credentials returns the credentials.Store view.
func (s *Store) Credentials() *CredentialStore {
	return &CredentialStore{store: s}
}

// Contexts returns the tenants.Repo view.
func (s *Store) Contexts() *ContextRepo {
	return &ContextRepo{store: s}
}

// Close closes the Redis connection.
func (s *Store) Close() error {
	return s.client.Close()
}

// Ping checks if Redis is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *Store) key(name string) string {
	return s.prefix + name
}

func stringValue(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}
