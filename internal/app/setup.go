package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cardsage/cardsage/db"
	"github.com/cardsage/cardsage/internal/catalog"
	"github.com/cardsage/cardsage/internal/config"
	"github.com/cardsage/cardsage/internal/history"
	"github.com/cardsage/cardsage/internal/log"
	"github.com/cardsage/cardsage/internal/observability"
	"github.com/cardsage/cardsage/internal/pipeline"
)

// Setup creates and initializes the application.
// Returns an App with embedded cleanup state; call Close() to release.
func Setup(ctx context.Context, cfg *config.Config, logger log.Logger) (_ *App, retErr error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	if logger == nil {
		logger = log.NewNop()
	}

	a := &App{Config: cfg, Logger: logger}

	// On error, clean up everything already initialized.
	defer func() {
		if retErr != nil {
			if err := a.Close(); err != nil {
				logger.Warn("cleanup during setup failure", "error", err)
			}
		}
	}()

	// Tracing must attach before Genkit initialization so model and
	// embedding spans land on the same provider.
	a.otelCleanup = provideOtelShutdown(ctx, cfg, logger)

	pool, dbCleanup, err := provideDBPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.dbCleanup = dbCleanup
	a.DBPool = pool

	g, err := provideGenkit(ctx, logger)
	if err != nil {
		return nil, err
	}
	a.Genkit = g

	embedder := googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel)
	if embedder == nil {
		return nil, fmt.Errorf("embedder %q not found", cfg.EmbedderModel)
	}
	a.Embedder = embedder

	a.Catalog = provideCatalog(pool, embedder, cfg, logger)
	a.History = history.New(cfg.HistoryTokenBudget, logger)

	completer := pipeline.NewModelCompleterForName(g, "googleai/"+cfg.ModelName)
	a.Pipeline = pipeline.New(a.Catalog, completer, a.History, cfg.TopK, logger)

	_, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	return a, nil
}

// provideOtelShutdown sets up trace export before Genkit initialization.
func provideOtelShutdown(ctx context.Context, cfg *config.Config, logger log.Logger) func() {
	if !cfg.Tracing.Enabled {
		return func() {}
	}

	shutdown, err := observability.Setup(ctx, observability.Config{
		AgentHost:   cfg.Tracing.AgentHost,
		Environment: cfg.Tracing.Environment,
		ServiceName: cfg.Tracing.ServiceName,
	}, logger)
	if err != nil {
		logger.Warn("tracing setup failed, continuing without traces", "error", err)
		return func() {}
	}

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			logger.Warn("shutting down tracer provider", "error", err)
		}
	}
}

// provideDBPool creates a PostgreSQL connection pool and runs migrations.
func provideDBPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, func(), error) {
	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return nil, nil, fmt.Errorf("running migrations: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresConnectionString())
	if err != nil {
		return nil, nil, fmt.Errorf("parsing connection config: %w", err)
	}

	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	defer pingCancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("pinging database: %w", err)
	}

	return pool, pool.Close, nil
}

// provideGenkit initializes Genkit with the Google AI plugin.
// The plugin reads GEMINI_API_KEY from the environment.
func provideGenkit(ctx context.Context, logger log.Logger) (*genkit.Genkit, error) {
	g := genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
	if g == nil {
		return nil, errors.New("initializing genkit")
	}
	logger.Debug("initialized Genkit with googleai provider")
	return g, nil
}

// provideCatalog wires the configured table mapping into a catalog store.
func provideCatalog(pool *pgxpool.Pool, embedder ai.Embedder, cfg *config.Config, logger log.Logger) *catalog.Store {
	queries := catalog.NewQueries(pool, catalog.TableConfig{
		Table:           cfg.CatalogTable,
		IDColumn:        cfg.ColumnID,
		ContentColumn:   cfg.ColumnContent,
		EmbeddingColumn: cfg.ColumnEmbedding,
		MetadataColumn:  cfg.ColumnMetadata,
		Metric:          cfg.DistanceMetric,
	})
	return catalog.New(queries, embedder, logger)
}
