package policy

import (
	"context"
	"sync"
)

// StaticRegistry serves policies from memory. It backs local development and
// tests when no policy service is reachable.
type StaticRegistry struct {
	mu       sync.RWMutex
	policies map[string]Policy
}

func NewStaticRegistry(policies ...Policy) *StaticRegistry {
	r := &StaticRegistry{policies: make(map[string]Policy, len(policies))}
	for _, p := range policies {
		r.policies[p.ID] = p
	}
	return r
}

// Put registers or replaces a policy.
func (r *StaticRegistry) Put(p Policy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.policies[p.ID] = p
}

func (r *StaticRegistry) Get(_ context.Context, policyID string) (*Policy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.policies[policyID]
	if !ok {
		return nil, ErrNotFound
	}
	out := p
	return &out, nil
}

// PermissiveRegistry treats every policy id as active. Used when no policy
// service is configured; billing requests carry their own premium terms.
type PermissiveRegistry struct{}

func NewPermissiveRegistry() *PermissiveRegistry {
	return &PermissiveRegistry{}
}

func (PermissiveRegistry) Get(_ context.Context, policyID string) (*Policy, error) {
	return &Policy{ID: policyID, Status: StatusActive}, nil
}
