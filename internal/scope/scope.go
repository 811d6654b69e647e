// Package scope decides what an action applies to.
package scope

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"secopsmcp/internal/domain"
	"secopsmcp/internal/transport"
)

// ScopesPath lists the predefined scope names known to the backend.
const ScopesPath = "/api/external/v1/settings/GetScopes"

// DefaultScope is used when a caller names no scope and no entities.
const DefaultScope = "All entities"

// Resolver validates scope input against a fixed set of scope names.
type Resolver struct {
	valid  map[string]struct{}
	sorted []string
}

// NewResolver builds a resolver for the given scope names. The set is copied
// and never changes afterwards.
func NewResolver(names []string) *Resolver {
	r := &Resolver{valid: make(map[string]struct{}, len(names))}
	for _, n := range names {
		if n == "" {
			continue
		}
		if _, dup := r.valid[n]; dup {
			continue
		}
		r.valid[n] = struct{}{}
		r.sorted = append(r.sorted, n)
	}
	sort.Strings(r.sorted)
	return r
}

// Valid returns the accepted scope names in sorted order.
func (r *Resolver) Valid() []string {
	out := make([]string, len(r.sorted))
	copy(out, r.sorted)
	return out
}

// Resolve returns explicit entities when any are given, ignoring named.
// Otherwise named must be one of the valid scopes.
func (r *Resolver) Resolve(explicit []domain.TargetEntity, named string) (domain.ScopeSpecifier, error) {
	if len(explicit) > 0 {
		return domain.ExplicitEntities(explicit), nil
	}
	if _, ok := r.valid[named]; !ok {
		return domain.ScopeSpecifier{}, domain.Errorf(domain.InvalidScope,
			"Invalid scope '%s'. Allowed values are: %s", named, strings.Join(r.sorted, ", "))
	}
	return domain.NamedScope(named), nil
}

// Fetch loads the scope names from the backend. Called once at startup.
func Fetch(ctx context.Context, client *transport.Client) ([]string, error) {
	res := client.Get(ctx, ScopesPath, nil)
	if !res.OK() {
		return nil, res.Err
	}
	items, ok := res.Payload.([]any)
	if !ok {
		return nil, domain.Errorf(domain.UpstreamMalformedResponse, "scope list is %T, want array", res.Payload)
	}
	names := make([]string, 0, len(items))
	for _, it := range items {
		s, ok := it.(string)
		if !ok {
			return nil, domain.Errorf(domain.UpstreamMalformedResponse, "scope entry is %T, want string", it)
		}
		names = append(names, s)
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("backend returned no scopes")
	}
	return names, nil
}
