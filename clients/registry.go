package clients

import (
	"sort"
	"sync"

	"github.com/jrsteele09/go-tenant-session/internal/errors"
)

// Registry holds one Client per service name.
type Registry struct {
	clients map[string]*Client
	lock    sync.RWMutex
}

func NewRegistry() *Registry {
	return &Registry{
		clients: make(map[string]*Client),
	}
}

// Register adds c, replacing any client with the same name.
func (r *Registry) Register(c *Client) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.clients[c.Name()] = c
}

func (r *Registry) Get(name string) (*Client, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	c, ok := r.clients[name]
	if !ok {
		return nil, errors.Wrapf(errors.ErrUnknownService, "%q", name)
	}
	return c, nil
}

// Names lists the registered services in order.
func (r *Registry) Names() []string {
	r.lock.RLock()
	defer r.lock.RUnlock()
	names := make([]string, 0, len(r.clients))
	for name := range r.clients {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
