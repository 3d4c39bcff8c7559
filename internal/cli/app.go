package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/ChuLiYu/catalog-replicator/internal/adapter"
	"github.com/ChuLiYu/catalog-replicator/internal/adapter/memory"
	"github.com/ChuLiYu/catalog-replicator/internal/config"
	"github.com/ChuLiYu/catalog-replicator/internal/controller"
	"github.com/ChuLiYu/catalog-replicator/internal/metrics"
	"github.com/ChuLiYu/catalog-replicator/internal/reconcile"
	"github.com/ChuLiYu/catalog-replicator/internal/server"
	"github.com/ChuLiYu/catalog-replicator/internal/store"
	"github.com/ChuLiYu/catalog-replicator/internal/store/sqlstore"
	"github.com/ChuLiYu/catalog-replicator/internal/worker"
)

// App is a fully wired replicator.
type App struct {
	cfg      *config.Config
	log      *slog.Logger
	store    store.Store
	registry *adapter.Registry
	gatherer *prometheus.Registry
	health   *server.Health
	syncer   *reconcile.Syncer
	ctrl     *controller.Controller
}

// NewApp opens the store, writes the configured seeds and wires every
// component. Sites of kind "memory" are served by network.
func NewApp(ctx context.Context, cfg *config.Config, logger *slog.Logger, network *memory.Network) (*App, error) {
	st, err := openStore(ctx, cfg.Store, logger)
	if err != nil {
		return nil, err
	}
	if err := seed(ctx, st, cfg); err != nil {
		_ = st.Close()
		return nil, err
	}

	registry := adapter.NewRegistry()
	network.Register(registry)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(reg)
	health := server.NewHealth(logger)

	reconciler := reconcile.New(st, reconcile.WithLogger(logger), reconcile.WithMetrics(collector))
	syncer := reconcile.NewSyncer(st, st, st, registry, reconciler,
		reconcile.WithSyncLogger(logger),
		reconcile.WithCallTimeout(cfg.Worker.OperationTimeout))

	localID := cfg.Local.Site
	workers := worker.NewFactory(worker.Deps{
		Sites:    st,
		Adapters: registry,
		Local: func(ctx context.Context) (adapter.NodeAdapter, error) {
			site, err := st.Site(ctx, localID)
			if err != nil {
				return nil, fmt.Errorf("local site %s: %w", localID, err)
			}
			return registry.Create(ctx, site)
		},
		Reconciler: reconciler,
		Metrics:    collector,
		Logger:     logger,
	}, worker.Config{
		OperationTimeout: cfg.Worker.OperationTimeout,
		InitialBackoff:   cfg.Worker.InitialBackoff,
		MaxBackoff:       cfg.Worker.MaxBackoff,
	})

	ctrl := controller.New(controller.Config{
		LocalSite:        localID,
		LocalParallelism: cfg.Local.Parallelism,
		QueueCapacity:    cfg.Queue.Capacity,
		MonitorInterval:  cfg.Controller.MonitorInterval,
		PollPeriod:       cfg.Controller.PollPeriod,
		SyncInterval:     cfg.Controller.SyncInterval,
	}, controller.Deps{
		Sites:    st,
		Filters:  st,
		Indexes:  st,
		Configs:  st,
		Adapters: registry,
		Workers:  workers,
		Syncer:   syncer,
		Metrics:  collector,
		Health:   health,
		Logger:   logger,
	})
	reg.MustRegister(metrics.NewQueueCollector(ctrl.Broker()))

	return &App{
		cfg:      cfg,
		log:      logger,
		store:    st,
		registry: registry,
		gatherer: reg,
		health:   health,
		syncer:   syncer,
		ctrl:     ctrl,
	}, nil
}

func openStore(ctx context.Context, cfg config.StoreConfig, logger *slog.Logger) (store.Store, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		db, err := sqlstore.Connect(ctx, cfg.Postgres)
		if err != nil {
			return nil, err
		}
		if err := sqlstore.Migrate(ctx, db); err != nil {
			_ = db.Close()
			return nil, err
		}
		logger.Info("using postgres store", "host", cfg.Postgres.Host, "dbname", cfg.Postgres.DBName)
		return sqlstore.New(db), nil
	default:
		if cfg.SnapshotPath == "" {
			logger.Info("using volatile memory store")
			return store.NewMemory(), nil
		}
		logger.Info("using memory store", "snapshot", cfg.SnapshotPath)
		return store.OpenMemory(cfg.SnapshotPath)
	}
}

// seed writes the sites, filters and replicator configs of cfg.
func seed(ctx context.Context, st store.Store, cfg *config.Config) error {
	for _, s := range cfg.Sites {
		if err := st.SaveSite(ctx, s); err != nil {
			return fmt.Errorf("seed site %s: %w", s.ID, err)
		}
	}
	for _, f := range cfg.Filters {
		if err := st.SaveFilter(ctx, f); err != nil {
			return fmt.Errorf("seed filter %s: %w", f.ID, err)
		}
	}
	for _, r := range cfg.Replicators {
		if err := st.SaveConfig(ctx, r); err != nil {
			return fmt.Errorf("seed replicator %s: %w", r.ID, err)
		}
	}
	return nil
}

// Run starts the controller and the enabled servers and blocks until ctx
// is done.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := a.ctrl.Start(ctx); err != nil {
		return fmt.Errorf("start controller: %w", err)
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	serve := func(name string, run func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := run(ctx); err != nil {
				a.log.Error("server failed", "server", name, "error", err)
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s server: %w", name, err))
				mu.Unlock()
				cancel()
			}
		}()
	}
	if a.cfg.Metrics.Enabled {
		a.log.Info("serving metrics", "addr", a.cfg.Metrics.Addr)
		serve("metrics", metrics.NewServer(a.cfg.Metrics.Addr, a.gatherer).Run)
	}
	if a.cfg.Health.Enabled {
		serve("health", server.NewServer(a.cfg.Health.Addr, a.health, a.log).Run)
	}

	a.log.Info("replicator started", "local_site", a.cfg.Local.Site)
	<-ctx.Done()
	a.log.Info("shutting down")

	a.ctrl.Stop()
	wg.Wait()
	return errors.Join(errs...)
}

// SyncOnce runs every active replicator config once.
func (a *App) SyncOnce(ctx context.Context) ([]reconcile.Report, error) {
	return a.ctrl.SyncOnce(ctx)
}

// Close releases the store.
func (a *App) Close() error {
	return a.store.Close()
}

// newLogger builds the slog handler selected by cfg.
func newLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
