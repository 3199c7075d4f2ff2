package tenants

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/go-tenant-session/internal/errors"
)

// NowTimeFunc is overridden in tests to pin ConfirmedAt.
var NowTimeFunc = time.Now

// ContextStore holds the active establishment and role. The triple is kept in
// memory and written through to a Repo on every change.
type ContextStore struct {
	repo        Repo
	current     ActiveContext
	lock        sync.RWMutex
	subscribers map[uuid.UUID]func(ActiveContext)
	subLock     sync.Mutex
}

// NewContextStore restores the last persisted context from repo.
func NewContextStore(ctx context.Context, repo Repo) (*ContextStore, error) {
	restored, err := repo.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("[ContextStore New] restoring active context: %w", err)
	}
	if restored.Role != "" && !restored.Role.Valid() {
		log.Warn().Str("role", string(restored.Role)).Msg("[ContextStore New] dropping persisted role outside the allowed set")
		restored.Role = ""
	}
	return &ContextStore{
		repo:        repo,
		current:     restored,
		subscribers: make(map[uuid.UUID]func(ActiveContext)),
	}, nil
}

// Get returns a consistent snapshot of the active context.
func (s *ContextStore) Get() ActiveContext {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.current
}

// Set records the user's selection.
func (s *ContextStore) Set(ctx context.Context, establishmentID string, role Role) error {
	establishmentID = strings.TrimSpace(establishmentID)
	if establishmentID == "" {
		return errors.ErrEmptyEstablishmentID
	}
	if !role.Valid() {
		return errors.Wrapf(errors.ErrContextInvalid, "[ContextStore Set] role %q", role)
	}
	next, err := s.apply(ctx, establishmentID, role)
	if err != nil {
		return err
	}
	s.notify(next)
	return nil
}

// Confirm applies a server confirmation. rawRole may be a comma separated
// list, only its first entry is considered. Returns false, leaving the
// context untouched, when either value is missing or the role is not allowed.
func (s *ContextStore) Confirm(ctx context.Context, establishmentID, rawRole string) bool {
	establishmentID = strings.TrimSpace(establishmentID)
	role, ok := FirstRole(rawRole)
	if establishmentID == "" || !ok {
		if establishmentID != "" || rawRole != "" {
			log.Debug().Str("establishment_id", establishmentID).Str("role", rawRole).Msg("[ContextStore Confirm] ignoring invalid confirmation")
		}
		return false
	}
	next, err := s.apply(ctx, establishmentID, role)
	if err != nil {
		log.Err(err).Msg("[ContextStore Confirm] persisting confirmation")
		return false
	}
	s.notify(next)
	return true
}

// Clear removes the whole triple.
func (s *ContextStore) Clear(ctx context.Context) error {
	s.lock.Lock()
	if err := s.repo.Clear(ctx); err != nil {
		s.lock.Unlock()
		return fmt.Errorf("[ContextStore Clear] %w", err)
	}
	s.current = ActiveContext{}
	s.lock.Unlock()
	s.notify(ActiveContext{})
	return nil
}

// Subscribe registers fn to be called after every change. The returned func removes it.
func (s *ContextStore) Subscribe(fn func(ActiveContext)) (unsubscribe func()) {
	id := uuid.New()
	s.subLock.Lock()
	s.subscribers[id] = fn
	s.subLock.Unlock()
	return func() {
		s.subLock.Lock()
		delete(s.subscribers, id)
		s.subLock.Unlock()
	}
}

func (s *ContextStore) apply(ctx context.Context, establishmentID string, role Role) (ActiveContext, error) {
	next := ActiveContext{
		EstablishmentID: establishmentID,
		Role:            role,
		ConfirmedAt:     NowTimeFunc(),
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	if err := s.repo.Save(ctx, next); err != nil {
		return ActiveContext{}, fmt.Errorf("[ContextStore Save] %w", err)
	}
	s.current = next
	return next, nil
}

func (s *ContextStore) notify(activeContext ActiveContext) {
	s.subLock.Lock()
	fns := make([]func(ActiveContext), 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		fns = append(fns, fn)
	}
	s.subLock.Unlock()

	for _, fn := range fns {
		fn(activeContext)
	}
}
