// Package site implements the URL-prefix router (C5) and the per-request
// control flow (C6) that runs on top of a resolved Site.
package site

import (
	"strconv"
	"strings"
	"sync"

	"github.com/edwig/marlin/core/domain"
)

// Registry is a port-scoped longest-prefix router over registered sites.
type Registry struct {
	mu    sync.RWMutex
	sites map[string]*domain.Site
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{sites: make(map[string]*domain.Site)}
}

// key composes the registration key: "{port}:{lowercased trimmed path}",
// query/fragment already stripped by the caller (domain.CrackURL does
// this before the path reaches here).
func key(port int, path string) string {
	trimmed := strings.TrimRight(path, "/")
	return strconv.Itoa(port) + ":" + strings.ToLower(trimmed)
}

// Register adds site under (port, basePath). Returns
// domain.ErrSiteAlreadyExists if the exact key is taken.
func (r *Registry) Register(port int, basePath string, s *domain.Site) error {
	k := key(port, basePath)
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.sites[k]; exists {
		return domain.ErrSiteAlreadyExists
	}
	r.sites[k] = s
	return nil
}

// Unregister removes the site at (port, basePath). Unless force is true,
// it fails with domain.ErrSiteHasChildren if any registered site's
// Parent points at the victim.
func (r *Registry) Unregister(port int, basePath string, force bool) error {
	k := key(port, basePath)
	r.mu.Lock()
	defer r.mu.Unlock()

	victim, ok := r.sites[k]
	if !ok {
		return domain.ErrSiteNotFound
	}
	if !force {
		for other, s := range r.sites {
			if other == k {
				continue
			}
			if s.Parent == victim {
				return domain.ErrSiteHasChildren
			}
		}
	}
	delete(r.sites, k)
	return nil
}

// Find resolves the site owning (port, path) by repeatedly shrinking the
// path back to the last '/' or '\' until a registered prefix matches.
// If parentHint is non-nil, a match whose main-site pointer doesn't
// equal parentHint resolves to parentHint instead, per the original's
// "clients should see the main site unless a sub-site is explicitly
// configured" rule.
func (r *Registry) Find(port int, path string, parentHint *domain.Site) *domain.Site {
	r.mu.RLock()
	defer r.mu.RUnlock()

	candidate := strings.ToLower(strings.TrimRight(path, "/"))
	for {
		if s, ok := r.sites[strconv.Itoa(port)+":"+candidate]; ok {
			if parentHint != nil && s.Parent != parentHint {
				return parentHint
			}
			return s
		}
		idx := lastSlashOrBackslash(candidate)
		if idx < 0 {
			if candidate == "" {
				return nil
			}
			candidate = ""
			continue
		}
		candidate = candidate[:idx]
	}
}

func lastSlashOrBackslash(s string) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == '/' || s[i] == '\\' {
			return i
		}
	}
	return -1
}

// All returns every registered site, for diagnostics; callers must not
// mutate the returned slice's
// elements' routing identity concurrently with Register/Unregister.
func (r *Registry) All() []*domain.Site {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*domain.Site, 0, len(r.sites))
	for _, s := range r.sites {
		out = append(out, s)
	}
	return out
}

// RegisterWithPrefix composes the prefix via CreateURLPrefix, stamps it
// onto the site, and registers it — the convenience path cmd/marlinhub
// uses instead of calling CreateURLPrefix and Register separately.
func (r *Registry) RegisterWithPrefix(kind PrefixType, s *domain.Site) error {
	s.Prefix = CreateURLPrefix(kind, s.Scheme == "https", hostOrWildcard(kind), s.Port, s.BasePath)
	return r.Register(s.Port, s.BasePath, s)
}

func hostOrWildcard(kind PrefixType) string {
	switch kind {
	case PrefixStrong:
		return "+"
	case PrefixWeak:
		return "*"
	default:
		return ""
	}
}
