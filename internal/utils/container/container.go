// Package container provides dependency injection.
package container

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/satishbabariya/cohortsql/internal/adapters/database"
	"github.com/satishbabariya/cohortsql/internal/adapters/database/mysql"
	"github.com/satishbabariya/cohortsql/internal/adapters/database/oracle"
	"github.com/satishbabariya/cohortsql/internal/adapters/database/pgx"
	"github.com/satishbabariya/cohortsql/internal/adapters/database/postgres"
	"github.com/satishbabariya/cohortsql/internal/adapters/database/sqlite"
	"github.com/satishbabariya/cohortsql/internal/adapters/llm"
	"github.com/satishbabariya/cohortsql/internal/adapters/storage"
	"github.com/satishbabariya/cohortsql/internal/adapters/telemetry"
	"github.com/satishbabariya/cohortsql/internal/config"
	"github.com/satishbabariya/cohortsql/internal/core/catalog"
	"github.com/satishbabariya/cohortsql/internal/core/compiler"
	"github.com/satishbabariya/cohortsql/internal/core/dialect"
	"github.com/satishbabariya/cohortsql/internal/core/learnedfix"
	"github.com/satishbabariya/cohortsql/internal/core/orchestrator"
	"github.com/satishbabariya/cohortsql/internal/core/repair"
	"github.com/satishbabariya/cohortsql/internal/core/rewrite"
	"github.com/satishbabariya/cohortsql/internal/core/scoping"
	"github.com/satishbabariya/cohortsql/internal/service"
)

// ErrNoDatabase is returned by Executor when no database is configured.
var ErrNoDatabase = errors.New("no database configured (set database.provider and database.url)")

// Container holds all application dependencies.
type Container struct {
	config *config.Config
	logger *zap.Logger

	// Adapters
	dbAdapter database.Adapter
	executor  *lazyExecutor
	telemetry telemetry.Telemetry
	store     learnedfix.Store
	repairer  orchestrator.Repairer
	metrics   *http.Server

	catalogs *catalog.Holder
	watcher  *catalog.Watcher
	dialect  dialect.Dialect

	// wiring is rebuilt whenever the catalog is reloaded.
	wiring atomic.Pointer[wiring]
}

// wiring is everything built from one catalog snapshot.
type wiring struct {
	catalog      *catalog.Catalog
	engine       *rewrite.Engine
	compiler     *compiler.Compiler
	composer     *scoping.Composer
	orchestrator *orchestrator.Orchestrator
	cohorts      *service.CohortService
	queries      *service.QueryService
}

// NewContainer creates a new dependency injection container. The database
// connection is opened on first use.
func NewContainer(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Container, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Container{config: cfg, logger: logger}

	cat, err := loadCatalog(ctx, cfg.Catalog)
	if err != nil {
		return nil, err
	}
	c.catalogs = catalog.NewHolder(cat)

	if cfg.Database.Provider != "" {
		c.dbAdapter, err = createDatabaseAdapter(cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to create database adapter: %w", err)
		}
	}
	c.dialect, err = resolveDialect(cfg.Catalog.Dialect, c.dbAdapter, cat)
	if err != nil {
		return nil, err
	}

	c.telemetry, err = telemetry.NewTelemetry(&telemetry.Config{
		Type:      cfg.Telemetry.Type,
		Namespace: cfg.Telemetry.Namespace,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create telemetry: %w", err)
	}
	c.serveMetrics(cfg.Telemetry.Listen)

	c.store, err = learnedfix.Open(ctx, cfg.LearnedFixes.Driver, cfg.LearnedFixes.DSN)
	if err != nil {
		c.Close(ctx)
		return nil, fmt.Errorf("failed to open learned fixes: %w", err)
	}

	c.repairer, err = llm.NewRepairer(ctx, llm.Config{
		Provider: cfg.Repair.Provider,
		Model:    cfg.Repair.Model,
		APIKey:   cfg.Repair.APIKey,
		BaseURL:  cfg.Repair.BaseURL,
	}, cat, c.dialect)
	if err != nil {
		c.Close(ctx)
		return nil, fmt.Errorf("failed to create repairer: %w", err)
	}

	c.executor = &lazyExecutor{adapter: c.dbAdapter, opts: []database.EngineOption{
		database.WithMaxRows(cfg.Database.MaxRows),
		database.WithEngineLogger(logger.Named("database")),
		database.WithEngineTelemetry(c.telemetry),
	}}
	c.wiring.Store(c.wire(cat))

	if cfg.Catalog.Watch && cfg.Catalog.Path != "" && storage.Backend(cfg.Catalog.Storage).Watchable() {
		c.watcher, err = catalog.NewWatcher(catalogFile(cfg.Catalog), c.catalogs,
			catalog.WithWatchLogger(logger.Named("catalog")),
			catalog.WithReloadHook(c.onReload),
		)
		if err != nil {
			c.Close(ctx)
			return nil, fmt.Errorf("failed to watch catalog: %w", err)
		}
		c.watcher.Start()
	}
	return c, nil
}

func (c *Container) wire(cat *catalog.Catalog) *wiring {
	cfg := c.config
	engine := rewrite.NewEngine(cat,
		rewrite.WithDialect(c.dialect),
		rewrite.WithLogger(c.logger.Named("rewrite")),
		rewrite.WithObserver(c.telemetry),
		rewrite.WithDefaultRowCap(cfg.Rewrite.DefaultRowCap),
		rewrite.WithMaxValueExpansion(cfg.Rewrite.MaxValueExpansion),
	)
	opts := []orchestrator.Option{
		orchestrator.WithStore(c.store),
		orchestrator.WithTemplates(repair.New(cat, repair.WithDialect(c.dialect), repair.WithLogger(c.logger.Named("repair")))),
		orchestrator.WithBudgets(cfg.Orchestrator.MaxErrorRepairs, cfg.Orchestrator.MaxZeroResultRepairs),
		orchestrator.WithTimeouts(cfg.Orchestrator.ExecutionTimeout, cfg.Orchestrator.RepairTimeout),
		orchestrator.WithTelemetry(c.telemetry),
		orchestrator.WithLogger(c.logger.Named("orchestrator")),
	}
	if c.repairer != nil {
		opts = append(opts, orchestrator.WithRepairer(c.repairer))
	}
	orch := orchestrator.New(engine, c.executor, opts...)
	comp := compiler.New(cat, compiler.WithDialect(c.dialect), compiler.WithLogger(c.logger.Named("compiler")))
	composer := scoping.New(cat, scoping.WithLogger(c.logger.Named("scoping")))
	return &wiring{
		catalog:      cat,
		engine:       engine,
		compiler:     comp,
		composer:     composer,
		orchestrator: orch,
		cohorts:      service.NewCohortService(comp, orch, c.logger.Named("cohort")),
		queries:      service.NewQueryService(engine, orch, composer),
	}
}

func (c *Container) onReload(cat *catalog.Catalog, err error) {
	if err != nil {
		c.logger.Warn("catalog reload failed", zap.Error(err))
		return
	}
	c.wiring.Store(c.wire(cat))
	c.logger.Debug("services rewired for reloaded catalog")
}

func (c *Container) serveMetrics(addr string) {
	if addr == "" {
		return
	}
	h, ok := telemetry.MetricsHandler(c.telemetry)
	if !ok {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", h)
	c.metrics = &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := c.metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			c.logger.Warn("metrics server stopped", zap.Error(err))
		}
	}()
}

// Config returns the configuration the container was built from.
func (c *Container) Config() *config.Config { return c.config }

// Logger returns the application logger.
func (c *Container) Logger() *zap.Logger { return c.logger }

// Catalog returns the current catalog snapshot.
func (c *Container) Catalog() *catalog.Catalog { return c.wiring.Load().catalog }

// Dialect returns the target dialect.
func (c *Container) Dialect() dialect.Dialect { return c.dialect }

// Engine returns the rewrite engine for the current catalog.
func (c *Container) Engine() *rewrite.Engine { return c.wiring.Load().engine }

// Compiler returns the intent compiler for the current catalog.
func (c *Container) Compiler() *compiler.Compiler { return c.wiring.Load().compiler }

// Orchestrator returns the orchestrator for the current catalog.
func (c *Container) Orchestrator() *orchestrator.Orchestrator { return c.wiring.Load().orchestrator }

// CohortService returns the cohort service.
func (c *Container) CohortService() *service.CohortService { return c.wiring.Load().cohorts }

// QueryService returns the query service.
func (c *Container) QueryService() *service.QueryService { return c.wiring.Load().queries }

// LearnedFixes returns the learned-fix store.
func (c *Container) LearnedFixes() learnedfix.Store { return c.store }

// Telemetry returns the telemetry sink.
func (c *Container) Telemetry() telemetry.Telemetry { return c.telemetry }

// Watcher returns the catalog watcher, or nil when watching is disabled.
func (c *Container) Watcher() *catalog.Watcher { return c.watcher }

// Executor returns the read-only execution engine, connecting on first use.
func (c *Container) Executor(ctx context.Context) (database.Executor, error) {
	if err := c.executor.connect(ctx); err != nil {
		return nil, err
	}
	return c.executor, nil
}

// Introspect reads the live database's tables and columns.
func (c *Container) Introspect(ctx context.Context) (database.Schema, error) {
	if err := c.executor.connect(ctx); err != nil {
		return nil, err
	}
	return database.Introspect(ctx, c.dbAdapter)
}

// Close cleans up resources.
func (c *Container) Close(ctx context.Context) error {
	var errs []error
	if c.watcher != nil {
		errs = append(errs, c.watcher.Stop())
	}
	if c.metrics != nil {
		errs = append(errs, c.metrics.Shutdown(ctx))
	}
	if c.store != nil {
		errs = append(errs, c.store.Close())
	}
	if c.telemetry != nil {
		errs = append(errs, c.telemetry.Flush(ctx), c.telemetry.Close(ctx))
	}
	if c.executor != nil && c.executor.connected() {
		errs = append(errs, c.dbAdapter.Disconnect(ctx))
	}
	return errors.Join(errs...)
}

// lazyExecutor connects its adapter on the first Execute.
type lazyExecutor struct {
	adapter database.Adapter
	opts    []database.EngineOption

	mu     sync.Mutex
	engine *database.Engine
}

func (l *lazyExecutor) connect(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.engine != nil {
		return nil
	}
	if l.adapter == nil {
		return ErrNoDatabase
	}
	if err := l.adapter.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	l.engine = database.NewEngine(l.adapter, l.opts...)
	return nil
}

func (l *lazyExecutor) connected() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.engine != nil
}

// Execute implements database.Executor.
func (l *lazyExecutor) Execute(ctx context.Context, sql string) (*database.Result, error) {
	if err := l.connect(ctx); err != nil {
		return nil, err
	}
	return l.engine.Execute(ctx, sql)
}

// createDatabaseAdapter creates the appropriate database adapter based on provider.
func createDatabaseAdapter(cfg config.DatabaseConfig) (database.Adapter, error) {
	dbConfig := database.Config{
		Provider:       cfg.Provider,
		URL:            cfg.URL,
		MaxConnections: cfg.MaxConnections,
		MaxIdleTime:    cfg.MaxIdleTime,
		ConnectTimeout: cfg.ConnectTimeout,
	}

	var adapter database.Adapter
	var err error

	switch cfg.Provider {
	case "postgresql", "postgres":
		adapter, err = postgres.NewPostgresAdapter(dbConfig)
	case "pgx":
		adapter, err = pgx.NewAdapter(dbConfig)
	case "mysql":
		adapter, err = mysql.NewMySQLAdapter(dbConfig)
	case "sqlite", "sqlite3":
		adapter, err = sqlite.NewSQLiteAdapter(dbConfig)
	case "oracle":
		adapter, err = oracle.NewAdapter(dbConfig)
	default:
		return nil, fmt.Errorf("unsupported database provider: %s", cfg.Provider)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to create adapter: %w", err)
	}

	return adapter, nil
}

// resolveDialect prefers an explicit setting, then the database's dialect,
// then the catalog document's.
func resolveDialect(name string, adapter database.Adapter, cat *catalog.Catalog) (dialect.Dialect, error) {
	if name != "" {
		return dialect.Parse(name)
	}
	if adapter != nil {
		return adapter.Dialect(), nil
	}
	return cat.Dialect(), nil
}
