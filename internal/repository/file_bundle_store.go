package repository

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"TradeGP/internal/domain/models"
	"TradeGP/internal/domain/repository"
	"TradeGP/internal/services/features"
	applogger "TradeGP/pkg/logger"
	"TradeGP/pkg/util"
)

const (
	modelsSuffix = "_models.json"
	scalerSuffix = "_scaler.json"
)

// FileBundleStore keeps two JSON files per key in one directory:
// {key}_models.json with the whole bundle and {key}_scaler.json with the
// preprocessor alone.
type FileBundleStore struct {
	dir     string
	workers int
	l       *applogger.Logger

	mu sync.Mutex // serializes writers
}

var _ repository.BundleStore = (*FileBundleStore)(nil)

func NewFileBundleStore(dir string, workers int, l *applogger.Logger) *FileBundleStore {
	if l == nil {
		l = applogger.Nop()
	}
	return &FileBundleStore{dir: dir, workers: workers, l: l.Component("bundle_store")}
}

func (s *FileBundleStore) Dir() string { return s.dir }

func (s *FileBundleStore) ModelsPath(key models.ModelKey) string {
	return filepath.Join(s.dir, key.String()+modelsSuffix)
}

func (s *FileBundleStore) ScalerPath(key models.ModelKey) string {
	return filepath.Join(s.dir, key.String()+scalerSuffix)
}

// KeyFromModelsFile maps a bundle file name back to its key. Temp files and
// other artifacts report false.
func KeyFromModelsFile(name string) (models.ModelKey, bool) {
	base := filepath.Base(name)
	if strings.HasPrefix(base, ".") || !strings.HasSuffix(base, modelsSuffix) {
		return models.ModelKey{}, false
	}
	key, err := models.ParseModelKey(strings.TrimSuffix(base, modelsSuffix))
	if err != nil {
		return models.ModelKey{}, false
	}
	return key, true
}

// Save writes the scaler first and the bundle last. The bundle embeds its
// own preprocessor, so a crash between the two renames leaves the previous
// bundle intact and loadable.
func (s *FileBundleStore) Save(ctx context.Context, b *models.Bundle) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	start := time.Now()

	scaler, err := encodeScaler(b)
	if err != nil {
		return fmt.Errorf("%w: encode scaler for %s: %v", models.ErrPersistence, b.Key, err)
	}
	bundle, err := encodeBundle(b)
	if err != nil {
		return fmt.Errorf("%w: encode bundle for %s: %v", models.ErrPersistence, b.Key, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := util.WriteFileAtomic(s.ScalerPath(b.Key), scaler, 0o644); err != nil {
		s.l.Error("write scaler failed", applogger.String("key", b.Key.String()), applogger.Error(err))
		return fmt.Errorf("%w: %v", models.ErrPersistence, err)
	}
	if err := util.WriteFileAtomic(s.ModelsPath(b.Key), bundle, 0o644); err != nil {
		s.l.Error("write bundle failed", applogger.String("key", b.Key.String()), applogger.Error(err))
		return fmt.Errorf("%w: %v", models.ErrPersistence, err)
	}

	s.l.Info("bundle saved",
		applogger.String("key", b.Key.String()),
		applogger.Int("bytes", len(bundle)),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return nil
}

func (s *FileBundleStore) Load(ctx context.Context, key models.ModelKey) (*models.Bundle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(s.ModelsPath(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", models.ErrBundleNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("read bundle %s: %w", key, err)
	}

	b, err := decodeBundle(raw, key, s.workers)
	if errors.Is(err, models.ErrModelNotTrained) {
		// An untrained service snapshot carries no models.
		return nil, fmt.Errorf("%w: %s", models.ErrBundleNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("load bundle %s: %w", key, err)
	}
	return b, nil
}

// LoadScaler reads the standalone preprocessor artifact.
func (s *FileBundleStore) LoadScaler(ctx context.Context, key models.ModelKey) (*features.Preprocessor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(s.ScalerPath(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", models.ErrBundleNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("read scaler %s: %w", key, err)
	}
	return decodeScaler(raw)
}

// List returns every key with a bundle file, sorted by key string.
func (s *FileBundleStore) List(ctx context.Context) ([]models.ModelKey, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list models dir: %w", err)
	}

	var keys []models.ModelKey
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if key, ok := KeyFromModelsFile(e.Name()); ok {
			keys = append(keys, key)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	return keys, nil
}
