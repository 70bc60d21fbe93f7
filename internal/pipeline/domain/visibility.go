package domain

import (
	"sort"
	"strings"

	"github.com/google/uuid"
)

const (
	// RoleMaster grants unrestricted visibility across all firms.
	RoleMaster = "master"
	// FirmAll is the sentinel firm-set entry granting unrestricted firm
	// visibility without the master role.
	FirmAll = "all"
)

// Actor is the authenticated principal acting on the pipeline.
type Actor struct {
	ID    uuid.UUID
	Role  string
	Firms []string
}

// Scope is an actor's resolved firm visibility. Every listing, count and
// mutation-target lookup must be evaluated against a Scope; skipping it
// is how cross-tenant leaks happen.
type Scope struct {
	unrestricted bool
	firms        map[string]struct{}
}

// NormalizeFirm canonicalizes a firm name for comparison.
func NormalizeFirm(firm string) string {
	return strings.ToLower(strings.TrimSpace(firm))
}

// ScopeFor resolves the visibility scope of an actor. Masters and actors
// whose firm set contains the "all" sentinel see everything; everyone
// else sees only their own firms.
func ScopeFor(actor Actor) Scope {
	if actor.Role == RoleMaster {
		return Scope{unrestricted: true}
	}

	firms := make(map[string]struct{}, len(actor.Firms))
	for _, f := range actor.Firms {
		normalized := NormalizeFirm(f)
		if normalized == "" {
			continue
		}
		if normalized == FirmAll {
			return Scope{unrestricted: true}
		}
		firms[normalized] = struct{}{}
	}

	return Scope{firms: firms}
}

// Unrestricted reports whether the scope sees every firm.
func (s Scope) Unrestricted() bool {
	return s.unrestricted
}

// CanSee reports whether an entity owned by the given firm is visible.
func (s Scope) CanSee(firm string) bool {
	if s.unrestricted {
		return true
	}
	_, ok := s.firms[NormalizeFirm(firm)]
	return ok
}

// Firms returns the normalized firm list, sorted for stable cache keys
// and SQL parameters. Empty for unrestricted scopes.
func (s Scope) Firms() []string {
	if s.unrestricted {
		return nil
	}
	out := make([]string, 0, len(s.firms))
	for f := range s.firms {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// CacheKey returns a stable string identifying this scope for use in
// pending-count cache keys.
func (s Scope) CacheKey() string {
	if s.unrestricted {
		return FirmAll
	}
	return strings.Join(s.Firms(), ",")
}

// FilterFirms returns the subset of entities whose firm is visible.
// The firmOf callback extracts the owning firm of each element.
func FilterFirms[T any](s Scope, entities []T, firmOf func(T) string) []T {
	if s.unrestricted {
		return entities
	}
	out := make([]T, 0, len(entities))
	for _, e := range entities {
		if s.CanSee(firmOf(e)) {
			out = append(out, e)
		}
	}
	return out
}
