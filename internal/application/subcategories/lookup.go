// Package subcategories caches the department and club registry.
package subcategories

import (
	"context"
	"log/slog"
	"sync"

	"noticeboard/internal/domain/subcategory"
)

// Backend fetches the registry from the notice API.
type Backend interface {
	Subcategories(ctx context.Context, token string) (subcategory.Registry, error)
}

// Lookup fetches the registry on first use and keeps it until Refresh.
// Any fetch failure substitutes the built-in fallback.
type Lookup struct {
	backend Backend

	fetchMu sync.Mutex
	mu      sync.RWMutex
	loaded  bool
	reg     subcategory.Registry
	usedFB  bool
}

// New creates an empty Lookup.
func New(backend Backend) *Lookup {
	return &Lookup{backend: backend}
}

// Get returns the registry, fetching it with token the first time.
func (l *Lookup) Get(ctx context.Context, token string) subcategory.Registry {
	l.mu.RLock()
	if l.loaded {
		reg := l.reg
		l.mu.RUnlock()
		return reg
	}
	l.mu.RUnlock()

	l.fetchMu.Lock()
	defer l.fetchMu.Unlock()
	l.mu.RLock()
	loaded, reg := l.loaded, l.reg
	l.mu.RUnlock()
	if loaded {
		return reg
	}
	return l.fetch(ctx, token)
}

// Refresh fetches the registry again regardless of what is cached.
func (l *Lookup) Refresh(ctx context.Context, token string) subcategory.Registry {
	l.fetchMu.Lock()
	defer l.fetchMu.Unlock()
	return l.fetch(ctx, token)
}

// UsingFallback reports whether the cached registry is the built-in one.
func (l *Lookup) UsingFallback() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.usedFB
}

// PRE: l.fetchMu is held
func (l *Lookup) fetch(ctx context.Context, token string) subcategory.Registry {
	reg, err := l.backend.Subcategories(ctx, token)
	fallback := false
	switch {
	case err != nil:
		slog.Warn("subcategory_fetch_failed", "error", err)
		reg, fallback = subcategory.Fallback(), true
	case reg.IsEmpty():
		slog.Warn("subcategory_fetch_empty")
		reg, fallback = subcategory.Fallback(), true
	}

	l.mu.Lock()
	l.reg = reg
	l.loaded = true
	l.usedFB = fallback
	l.mu.Unlock()
	return reg
}
