package memstore

import (
	"context"
	"sync"

	"github.com/jrsteele09/go-tenant-session/tenants"
)

var _ tenants.Repo = (*Repo)(nil)

type Repo struct {
	activeContext tenants.ActiveContext
	lock          sync.RWMutex
}

func New() *Repo {
	return &Repo{}
}

func (r *Repo) Load(_ context.Context) (tenants.ActiveContext, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return r.activeContext, nil
}

func (r *Repo) Save(_ context.Context, activeContext tenants.ActiveContext) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.activeContext = activeContext
	return nil
}

func (r *Repo) Clear(_ context.Context) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.activeContext = tenants.ActiveContext{}
	return nil
}
