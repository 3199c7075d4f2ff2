package redisstore

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/jrsteele09/go-tenant-session/tenants"
)

var _ tenants.Repo = (*ContextRepo)(nil)

// ContextRepo keeps the active context triple. Every operation is one command
// so the three keys are never observed half written.
type ContextRepo struct {
	store *Store
}

func (r *ContextRepo) Load(ctx context.Context) (tenants.ActiveContext, error) {
	s := r.store
	values, err := s.client.MGet(ctx, s.key(etabKey), s.key(roleKey), s.key(ctxAtKey)).Result()
	if err != nil {
		return tenants.ActiveContext{}, fmt.Errorf("[redisstore ContextLoad] %w", err)
	}
	return tenants.ActiveContext{
		EstablishmentID: stringValue(values[0]),
		Role:            tenants.Role(stringValue(values[1])),
		ConfirmedAt:     parseMillis(stringValue(values[2])),
	}, nil
}

func (r *ContextRepo) Save(ctx context.Context, activeContext tenants.ActiveContext) error {
	s := r.store
	var confirmedAt string
	if !activeContext.ConfirmedAt.IsZero() {
		confirmedAt = strconv.FormatInt(activeContext.ConfirmedAt.UnixMilli(), 10)
	}
	err := s.client.MSet(ctx,
		s.key(etabKey), activeContext.EstablishmentID,
		s.key(roleKey), string(activeContext.Role),
		s.key(ctxAtKey), confirmedAt,
	).Err()
	if err != nil {
		return fmt.Errorf("[redisstore ContextSave] %w", err)
	}
	return nil
}

func (r *ContextRepo) Clear(ctx context.Context) error {
	s := r.store
	if err := s.client.Del(ctx, s.key(etabKey), s.key(roleKey), s.key(ctxAtKey)).Err(); err != nil {
		return fmt.Errorf("[redisstore ContextClear] %w", err)
	}
	return nil
}

// parseMillis reads the epoch milliseconds stored under active_ctx_at.
func parseMillis(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
