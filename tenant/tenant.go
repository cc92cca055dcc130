// Package tenant maps request hostnames to tenant records. Resolution is
// deliberately thin here: the platform treats the lookup table as an
// external collaborator and only needs the boundary.
package tenant

import (
	"errors"
	"net"
	"strings"
	"sync"
)

// ErrUnknownHost is returned when no tenant is registered for a hostname.
var ErrUnknownHost = errors.New("no tenant for host")

// Tenant is one tenant of the platform, reached via its own domain.
type Tenant struct {
	ID   string
	Name string
	Host string
}

// Resolver maps a request Host to a tenant.
type Resolver interface {
	Resolve(host string) (*Tenant, error)
}

// StaticResolver resolves from a fixed in-memory table.
type StaticResolver struct {
	mu     sync.RWMutex
	byHost map[string]*Tenant
}

var _ Resolver = (*StaticResolver)(nil)

func NewStaticResolver(tenants ...Tenant) *StaticResolver {
	r := &StaticResolver{byHost: make(map[string]*Tenant, len(tenants))}
	for i := range tenants {
		t := tenants[i]
		r.byHost[canonicalHost(t.Host)] = &t
	}
	return r
}

// Add registers a tenant, replacing any previous holder of the host.
func (r *StaticResolver) Add(t Tenant) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byHost[canonicalHost(t.Host)] = &t
}

func (r *StaticResolver) Resolve(host string) (*Tenant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.byHost[canonicalHost(host)]
	if !ok {
		return nil, ErrUnknownHost
	}
	cp := *t
	return &cp, nil
}

// canonicalHost lowercases and strips any port from a request Host value.
func canonicalHost(host string) string {
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	return strings.ToLower(strings.TrimSuffix(host, "."))
}
