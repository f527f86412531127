package registry

import (
	"context"
	"errors"
	"sort"
	"sync"

	"TradeGP/internal/domain/models"
	domrepo "TradeGP/internal/domain/repository"
	applogger "TradeGP/pkg/logger"
)

// Registry holds the servable bundle per key. Bundles are immutable, so a
// reader holding a bundle keeps a consistent view while Put swaps in a
// retrained one.
type Registry struct {
	mu       sync.RWMutex
	bundles  map[models.ModelKey]*models.Bundle
	onChange func(n int)
}

var _ domrepo.ModelRegistry = (*Registry)(nil)

func New() *Registry {
	return &Registry{bundles: make(map[models.ModelKey]*models.Bundle)}
}

// OnChange registers fn to be called with the new size after every Put or
// Remove. It must be set before the registry is shared.
func (r *Registry) OnChange(fn func(n int)) {
	r.onChange = fn
}

func (r *Registry) Get(key models.ModelKey) (*models.Bundle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.bundles[key]
	return b, ok
}

func (r *Registry) Put(b *models.Bundle) {
	r.mu.Lock()
	r.bundles[b.Key] = b
	n := len(r.bundles)
	r.mu.Unlock()
	r.notify(n)
}

// Remove reports whether key was present.
func (r *Registry) Remove(key models.ModelKey) bool {
	r.mu.Lock()
	_, ok := r.bundles[key]
	delete(r.bundles, key)
	n := len(r.bundles)
	r.mu.Unlock()
	if ok {
		r.notify(n)
	}
	return ok
}

// Keys returns the loaded keys sorted by their string form.
func (r *Registry) Keys() []models.ModelKey {
	r.mu.RLock()
	keys := make([]models.ModelKey, 0, len(r.bundles))
	for k := range r.bundles {
		keys = append(keys, k)
	}
	r.mu.RUnlock()
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	return keys
}

// Snapshot is a shallow copy of the key to bundle map.
func (r *Registry) Snapshot() map[models.ModelKey]*models.Bundle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[models.ModelKey]*models.Bundle, len(r.bundles))
	for k, b := range r.bundles {
		out[k] = b
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.bundles)
}

func (r *Registry) notify(n int) {
	if r.onChange != nil {
		r.onChange(n)
	}
}

// LoadAll loads every bundle the store lists. A bundle that fails to load
// is logged and skipped; only a listing failure is returned.
func (r *Registry) LoadAll(ctx context.Context, store domrepo.BundleStore, l *applogger.Logger) (int, error) {
	if l == nil {
		l = applogger.Nop()
	}
	keys, err := store.List(ctx)
	if err != nil {
		return 0, err
	}
	loaded := 0
	for _, key := range keys {
		b, err := store.Load(ctx, key)
		if err != nil {
			if errors.Is(err, models.ErrBundleNotFound) {
				l.Debug("skipping untrained bundle", applogger.String("key", key.String()))
				continue
			}
			l.Error("load bundle failed", applogger.String("key", key.String()), applogger.Error(err))
			continue
		}
		r.Put(b)
		loaded++
	}
	l.Info("bundles loaded", applogger.Int("loaded", loaded), applogger.Int("listed", len(keys)))
	return loaded, nil
}
