package watcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"TradeGP/internal/domain/models"
	domrepo "TradeGP/internal/domain/repository"
	"TradeGP/internal/repository"
	applogger "TradeGP/pkg/logger"

	"github.com/fsnotify/fsnotify"
)

// Registry is what the watcher swaps reloaded bundles into.
type Registry interface {
	Put(b *models.Bundle)
	Remove(key models.ModelKey) bool
}

// ModelWatcher reloads bundles whose models file changes on disk, for
// example after an out-of-process trainer run. Events are coalesced per
// key within the debounce window.
type ModelWatcher struct {
	dir      string
	store    domrepo.BundleStore
	registry Registry
	debounce time.Duration
	l        *applogger.Logger

	watcher *fsnotify.Watcher
	keys    chan models.ModelKey
	done    chan struct{}
	wg      sync.WaitGroup
	stop    sync.Once
}

func New(dir string, store domrepo.BundleStore, registry Registry, debounce time.Duration, l *applogger.Logger) *ModelWatcher {
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	if l == nil {
		l = applogger.Nop()
	}
	return &ModelWatcher{
		dir:      dir,
		store:    store,
		registry: registry,
		debounce: debounce,
		l:        l.Component("model_watcher"),
		keys:     make(chan models.ModelKey, 256),
		done:     make(chan struct{}),
	}
}

// Start watches the models directory until ctx ends or Stop is called.
func (w *ModelWatcher) Start(ctx context.Context) error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("create models dir: %w", err)
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := fw.Add(w.dir); err != nil {
		fw.Close()
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}
	w.watcher = fw

	w.wg.Add(2)
	go w.processEvents(ctx)
	go w.debounceLoop(ctx)
	w.l.Info("watching models dir", applogger.String("dir", w.dir))
	return nil
}

func (w *ModelWatcher) Stop() {
	w.stop.Do(func() {
		close(w.done)
		if w.watcher != nil {
			w.watcher.Close()
		}
		w.wg.Wait()
	})
}

func (w *ModelWatcher) processEvents(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			key, ok := repository.KeyFromModelsFile(event.Name)
			if !ok {
				continue
			}
			select {
			case w.keys <- key:
			default:
				w.l.Warn("reload queue full, dropping event", applogger.String("key", key.String()))
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.l.Warn("watcher error", applogger.Error(err))
		}
	}
}

func (w *ModelWatcher) debounceLoop(ctx context.Context) {
	defer w.wg.Done()
	pending := make(map[models.ModelKey]struct{})
	var timerC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case key := <-w.keys:
			pending[key] = struct{}{}
			if timerC == nil {
				timerC = time.After(w.debounce)
			}
		case <-timerC:
			timerC = nil
			keys := make([]models.ModelKey, 0, len(pending))
			for k := range pending {
				keys = append(keys, k)
				delete(pending, k)
			}
			w.Reload(ctx, keys...)
		}
	}
}

// Reload loads each key from the store and swaps it in. A key whose bundle
// is gone is removed from the registry; a bundle that fails to decode
// leaves the served one in place.
func (w *ModelWatcher) Reload(ctx context.Context, keys ...models.ModelKey) {
	for _, key := range keys {
		b, err := w.store.Load(ctx, key)
		switch {
		case errors.Is(err, models.ErrBundleNotFound):
			if w.registry.Remove(key) {
				w.l.Info("bundle removed", applogger.String("key", key.String()))
			}
		case err != nil:
			w.l.Error("reload bundle failed", applogger.String("key", key.String()), applogger.Error(err))
		default:
			w.registry.Put(b)
			w.l.Info("bundle reloaded",
				applogger.String("key", key.String()),
				applogger.Int("sample_count", b.SampleCount),
			)
		}
	}
}
