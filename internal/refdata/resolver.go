// Package refdata resolves business codes (payer, provider, facility,
// clinician, denial) to internal reference ids, creating rows on first
// sight so ingestion never stalls on missing reference data.
package refdata

import (
	"context"
	"fmt"
	"sync"

	"github.com/haramkhor2011-ship-it/claims-app-sub001/internal/store"
	"github.com/haramkhor2011-ship-it/claims-app-sub001/internal/store/schema"
)

// Resolver caches (kind, code) to reference id lookups. Reference rows are
// immutable once created, so cached entries never go stale.
type Resolver struct {
	store store.Store

	mu    sync.RWMutex
	cache map[cacheKey]int64
}

type cacheKey struct {
	kind schema.RefKind
	code string
}

// NewResolver creates a resolver backed by the given store
func NewResolver(s store.Store) *Resolver {
	return &Resolver{
		store: s,
		cache: make(map[cacheKey]int64),
	}
}

// Resolve returns the reference id for a code, creating the row on first
// sight. Empty codes resolve to nil: absence is not a reference.
func (r *Resolver) Resolve(ctx context.Context, kind schema.RefKind, code string) (*int64, error) {
	if code == "" {
		return nil, nil
	}

	key := cacheKey{kind: kind, code: code}

	r.mu.RLock()
	id, ok := r.cache[key]
	r.mu.RUnlock()
	if ok {
		return &id, nil
	}

	ref, err := r.store.GetOrCreateRefCode(ctx, kind, code)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s code %q: %w", kind, code, err)
	}

	r.mu.Lock()
	r.cache[key] = ref.ID
	r.mu.Unlock()

	resolved := ref.ID
	return &resolved, nil
}

// Size returns the number of cached entries
func (r *Resolver) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.cache)
}
