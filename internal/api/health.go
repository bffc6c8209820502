package api

import (
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cardsage/cardsage/internal/log"
)

// health is a liveness probe endpoint.
// Returns 200 OK if the process is alive.
func health(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// readiness returns a readiness probe handler.
// Performs an actual health check by pinging the database.
func readiness(pool *pgxpool.Pool, logger log.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if pool == nil {
			http.Error(w, "database pool not configured", http.StatusServiceUnavailable)
			return
		}
		if err := pool.Ping(r.Context()); err != nil {
			logger.Error("readiness check failed", "error", err)
			http.Error(w, "database not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})
}
