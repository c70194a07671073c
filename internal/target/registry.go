// Package target resolves configured targets and checks caller permissions.
package target

import (
	"sort"

	"pgsentry/internal/domain"
)

// Registry is an immutable set of targets keyed by alias.
type Registry struct {
	targets map[string]*domain.Target
}

// NewRegistry creates a registry from the given targets. Map keys are the
// aliases; a target's Alias field is set from its key.
func NewRegistry(targets map[string]*domain.Target) *Registry {
	r := &Registry{targets: make(map[string]*domain.Target, len(targets))}
	for alias, t := range targets {
		copied := *t
		copied.Alias = alias
		r.targets[alias] = &copied
	}
	return r
}

// Resolve returns the target with the given alias.
func (r *Registry) Resolve(alias string) (*domain.Target, error) {
	t, ok := r.targets[alias]
	if !ok {
		return nil, domain.ErrTargetNotFound
	}
	return t, nil
}

// Aliases returns all target aliases in sorted order.
func (r *Registry) Aliases() []string {
	aliases := make([]string, 0, len(r.targets))
	for alias := range r.targets {
		aliases = append(aliases, alias)
	}
	sort.Strings(aliases)
	return aliases
}

// Authorize checks that the identity may act on the target. Service
// identities are always allowed; human identities must be target admins.
func (r *Registry) Authorize(identity domain.Identity, t *domain.Target) error {
	if !identity.IsHuman() {
		return nil
	}
	if !t.IsAdmin(*identity.UserID) {
		return domain.ErrNotEnoughPermissions
	}
	return nil
}
