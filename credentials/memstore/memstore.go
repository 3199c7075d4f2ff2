package memstore

import (
	"context"
	"sync"

	"github.com/jrsteele09/go-tenant-session/credentials"
)

var _ credentials.Store = (*Store)(nil)

// Store keeps the credential in process memory, scoped to the lifetime of the session runtime.
type Store struct {
	credential *credentials.Credential
	lock       sync.RWMutex
}

func New() *Store {
	return &Store{}
}

func (s *Store) Get(_ context.Context) (*credentials.Credential, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	if s.credential == nil {
		return nil, nil
	}
	c := *s.credential
	return &c, nil
}

func (s *Store) Set(_ context.Context, credential credentials.Credential) error {
	if err := credential.Validate(); err != nil {
		return err
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	s.credential = &credential
	return nil
}

func (s *Store) Clear(_ context.Context) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.credential = nil
	return nil
}
