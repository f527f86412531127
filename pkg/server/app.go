package server

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"TradeGP/internal/domain/models"
	domrepo "TradeGP/internal/domain/repository"
	"TradeGP/pkg/config"
	xhttp "TradeGP/pkg/http"
	pkgkafka "TradeGP/pkg/kafka"
	applogger "TradeGP/pkg/logger"
)

// Registry is the part of the model registry the app drives at startup.
type Registry interface {
	LoadAll(ctx context.Context, store domrepo.BundleStore, l *applogger.Logger) (int, error)
}

// Watcher reloads bundles written by out-of-process trainers.
type Watcher interface {
	Start(ctx context.Context) error
	Stop()
}

// AutoTrainer trains every key found in a record source.
type AutoTrainer interface {
	TrainFromSource(ctx context.Context, source domrepo.RecordSource, instruments []string) (*models.TrainingSummary, []*models.JobResult, error)
}

// Option configures optional App components.
type Option func(*App)

// WithWatcher hot-reloads the models directory.
func WithWatcher(w Watcher) Option {
	return func(a *App) { a.watcher = w }
}

// WithConsumer runs a Kafka consumer for h's topic alongside the server.
func WithConsumer(c *pkgkafka.Consumer, h pkgkafka.MessageHandler) Option {
	return func(a *App) {
		a.consumer = c
		a.kh = h
	}
}

// WithAutoTrain trains from source when no bundle could be loaded.
func WithAutoTrain(t AutoTrainer, source domrepo.RecordSource) Option {
	return func(a *App) {
		a.autoTrainer = t
		a.source = source
	}
}

// WithClosers registers infrastructure clients closed on shutdown, in order.
func WithClosers(cs ...io.Closer) Option {
	return func(a *App) {
		for _, c := range cs {
			if c != nil {
				a.closers = append(a.closers, c)
			}
		}
	}
}

// App encapsulates the entire application lifecycle.
type App struct {
	cfg        *config.Config
	l          *applogger.Logger
	httpServer *xhttp.Server
	registry   Registry
	store      domrepo.BundleStore

	watcher     Watcher
	consumer    *pkgkafka.Consumer
	kh          pkgkafka.MessageHandler
	autoTrainer AutoTrainer
	source      domrepo.RecordSource
	closers     []io.Closer

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a new App instance with all dependencies.
func New(cfg *config.Config, l *applogger.Logger, httpServer *xhttp.Server, registry Registry, store domrepo.BundleStore, opts ...Option) *App {
	if l == nil {
		l = applogger.Nop()
	}
	a := &App{
		cfg:        cfg,
		l:          l.Component("app"),
		httpServer: httpServer,
		registry:   registry,
		store:      store,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	if err := a.Start(context.Background()); err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	a.l.Info("shutdown signal received")
	return a.Shutdown(context.Background())
}

// Start loads the persisted bundles and launches every background
// component. It returns once the HTTP server is listening.
func (a *App) Start(ctx context.Context) error {
	ctx, a.cancel = context.WithCancel(ctx)

	n, err := a.registry.LoadAll(ctx, a.store, a.l)
	if err != nil {
		a.cancel()
		return fmt.Errorf("load models: %w", err)
	}

	if n == 0 && a.autoTrainer != nil && a.source != nil {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			a.autoTrain(ctx)
		}()
	}

	if a.watcher != nil {
		if err := a.watcher.Start(ctx); err != nil {
			// Serving still works; only out-of-process retrains go unnoticed.
			a.l.Warn("model watcher disabled", applogger.Error(err))
			a.watcher = nil
		}
	}

	if a.consumer != nil && a.kh != nil {
		a.consumer.WithConsumerHook(pkgkafka.NoopHook{})
		a.consumer.RegisterHandler(a.kh)
		if err := a.consumer.Start(); err != nil {
			a.l.Error("kafka consumer error", applogger.Error(err))
		} else {
			a.l.Info("kafka consumer started", applogger.String("topic", a.kh.Topic()))
		}
	}

	if a.httpServer != nil {
		if err := a.httpServer.Start(); err != nil {
			a.l.Error("http server start error", applogger.Error(err))
			a.cancel()
			return err
		}
	}
	return nil
}

func (a *App) autoTrain(ctx context.Context) {
	a.l.Info("no bundles on disk, training from record source")
	start := time.Now()
	summary, _, err := a.autoTrainer.TrainFromSource(ctx, a.source, nil)
	if err != nil {
		a.l.Error("auto-train failed", applogger.Error(err))
		return
	}
	a.l.Info("auto-train finished",
		applogger.String("run_id", summary.RunID),
		applogger.Int("trained", summary.TotalModels),
		applogger.Int("failed", summary.Failed),
		applogger.Duration("duration_ms", time.Since(start)),
	)
}

// Shutdown gracefully stops all services.
func (a *App) Shutdown(ctx context.Context) error {
	a.l.Info("shutting down...")
	if a.cancel != nil {
		a.cancel()
	}

	if a.httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := a.httpServer.Stop(shutdownCtx); err != nil {
			a.l.Error("http shutdown error", applogger.Error(err))
		}
	}

	if a.watcher != nil {
		a.watcher.Stop()
	}

	if a.consumer != nil {
		if err := a.consumer.Stop(ctx); err != nil {
			a.l.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}

	a.wg.Wait()

	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			a.l.Warn("close error", applogger.String("client", fmt.Sprintf("%T", c)), applogger.Error(err))
		}
	}

	a.l.Info("shutdown complete")
	return nil
}
