package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nimburion/dbext/pkg/config"
	"github.com/nimburion/dbext/pkg/database"
	"github.com/nimburion/dbext/pkg/database/extensibility"
	"github.com/nimburion/dbext/pkg/database/memdb"
	"github.com/nimburion/dbext/pkg/database/sqldb"
	"github.com/nimburion/dbext/pkg/health"
	"github.com/nimburion/dbext/pkg/observability/logger"
	"github.com/nimburion/dbext/pkg/observability/metrics"
	"github.com/nimburion/dbext/pkg/observability/tracing"
	"github.com/nimburion/dbext/pkg/samples"
	"github.com/nimburion/dbext/pkg/store"
	"github.com/nimburion/dbext/pkg/version"
)

const (
	peopleTable        = "people"
	healthCheckTimeout = 5 * time.Second
)

// Runtime is an opened engine wrapped with observability hooks and the
// configured transaction defaults.
type Runtime struct {
	Config     *config.Config
	Logger     logger.Logger
	Transactor database.Transactor

	health  *health.Registry
	metrics *metrics.Registry
	closers []func(context.Context) error
}

// OpenRuntime connects to the engine named by cfg.Database.Type.
func OpenRuntime(ctx context.Context, cfg *config.Config, log logger.Logger) (*Runtime, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if log == nil {
		log = logger.NewNop()
	}

	rt := &Runtime{
		Config:  cfg,
		Logger:  log,
		health:  health.NewRegistry(),
		metrics: metrics.NewRegistry(),
	}

	tp, err := tracing.NewTracerProvider(ctx, tracing.TracerConfig{
		ServiceName:    serviceName(cfg),
		ServiceVersion: version.Current(cfg.Service.Name).Version,
		Environment:    cfg.Service.Environment,
		Endpoint:       cfg.Observability.TracingEndpoint,
		SampleRate:     cfg.Observability.TracingSampleRate,
		Enabled:        cfg.Observability.TracingEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("create tracer provider: %w", err)
	}
	rt.closers = append(rt.closers, tp.Shutdown)

	engine, system, err := rt.openEngine(ctx)
	if err != nil {
		_ = rt.Close(ctx)
		return nil, err
	}

	base, err := extensibility.NewTransactorBase(engine, extensibility.NewObservedHooks(log, system).WithTracer(tp.Transactions()))
	if err != nil {
		_ = rt.Close(ctx)
		return nil, err
	}
	rt.Transactor = database.WithDefaultOptions(base.WithLogger(log), database.TransactOptions{
		MaxRetries: cfg.Transactions.MaxRetries,
		Timeout:    cfg.Transactions.Timeout,
	})
	rt.health.Register(health.NewTransactorChecker("transactor", rt.Transactor, healthCheckTimeout))

	log.Info("runtime opened", "db_system", system)
	return rt, nil
}

func (rt *Runtime) openEngine(ctx context.Context) (database.Transactor, string, error) {
	cfg := rt.Config
	switch strings.ToLower(strings.TrimSpace(cfg.Database.Type)) {
	case config.DatabaseTypeMemory:
		return memdb.New(
			memdb.WithTypes(samples.Person{}),
			memdb.WithLogger(rt.Logger),
			memdb.WithRetryBackoff(cfg.Transactions.RetryBackoff),
		), "memory", nil
	case config.DatabaseTypePostgres, config.DatabaseTypeMySQL:
		dialect, err := sqldb.DialectFor(cfg.Database.Type)
		if err != nil {
			return nil, "", err
		}
		adapter, err := store.NewSQLAdapter(cfg.Database, rt.Logger)
		if err != nil {
			return nil, "", fmt.Errorf("open %s: %w", dialect.Name(), err)
		}
		rt.closers = append(rt.closers, func(context.Context) error { return adapter.Close() })
		rt.health.Register(health.NewDatabaseChecker("database", adapter))

		schema := sqldb.NewSchema()
		if err := schema.Register(samples.Person{}, peopleTable); err != nil {
			return nil, "", err
		}
		db, err := sqldb.New(adapter, dialect, schema,
			sqldb.WithLogger(rt.Logger),
			sqldb.WithRetryBackoff(cfg.Transactions.RetryBackoff),
		)
		if err != nil {
			return nil, "", err
		}
		if cfg.Database.EnsureSchema {
			if err := db.EnsureSchema(ctx); err != nil {
				return nil, "", err
			}
		}
		return db, dialect.Name(), nil
	default:
		return nil, "", fmt.Errorf("unsupported database.type %q", cfg.Database.Type)
	}
}

// Health returns the registry of checks for the opened engine.
func (rt *Runtime) Health() *health.Registry { return rt.health }

// Metrics returns the registry holding the transaction metrics.
func (rt *Runtime) Metrics() *metrics.Registry { return rt.metrics }

// Close releases the engine and flushes pending spans, newest resource first.
func (rt *Runtime) Close(ctx context.Context) error {
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	rt.closers = nil
	return errors.Join(errs...)
}

func serviceName(cfg *config.Config) string {
	if name := strings.TrimSpace(cfg.Observability.ServiceName); name != "" {
		return name
	}
	return cfg.Service.Name
}
