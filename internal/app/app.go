// Package app provides application initialization and dependency wiring.
//
// App is the container that holds every long-lived component: the
// database pool, the Genkit instance, the catalog store, the session
// history, and the answer pipeline. Setup builds them in dependency
// order and Close tears them down in reverse.
package app

import (
	"context"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cardsage/cardsage/internal/catalog"
	"github.com/cardsage/cardsage/internal/config"
	"github.com/cardsage/cardsage/internal/history"
	"github.com/cardsage/cardsage/internal/log"
	"github.com/cardsage/cardsage/internal/pipeline"
)

// App is the core application container.
type App struct {
	Config *config.Config
	Logger log.Logger

	Genkit   *genkit.Genkit
	Embedder ai.Embedder
	DBPool   *pgxpool.Pool
	Catalog  *catalog.Store
	History  *history.Store
	Pipeline *pipeline.Pipeline

	otelCleanup func()
	dbCleanup   func()
	cancel      context.CancelFunc
}

// Close gracefully shuts down all resources.
func (a *App) Close() error {
	a.Logger.Info("shutting down application")

	if a.cancel != nil {
		a.cancel()
	}
	if a.dbCleanup != nil {
		a.dbCleanup()
		a.Logger.Debug("database pool closed")
	}
	if a.otelCleanup != nil {
		a.otelCleanup()
	}
	return nil
}
