// Package server exposes the document over HTTP.
package server

import (
	"log/slog"
	"net/http"

	"github.com/maruel/mockdb/internal/config"
	"github.com/maruel/mockdb/internal/jsondb"
	"github.com/maruel/mockdb/internal/server/handlers"
	"github.com/maruel/mockdb/internal/server/ratelimit"
)

// NewRouter creates and configures the HTTP router.
//
// tiers may be nil to disable rate limiting.
func NewRouter(logger *slog.Logger, db *jsondb.Database, cfg *config.Server, tiers *ratelimit.Tiers) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	mux := http.NewServeMux()
	res := handlers.NewResources(db)
	health := handlers.NewHealth(db)
	maxBody := cfg.MaxBodyBytes

	mux.Handle("GET /_health", Wrap(health.Check, tiers, maxBody))

	mux.Handle("GET /{path...}", Wrap(res.Read, tiers, maxBody))
	mux.Handle("POST /{path...}", Wrap(res.Create, tiers, maxBody))
	mux.Handle("PUT /{path...}", Wrap(res.Replace, tiers, maxBody))
	mux.Handle("PATCH /{path...}", Wrap(res.Patch, tiers, maxBody))
	mux.Handle("DELETE /{path...}", Wrap(res.Delete, tiers, maxBody))

	return RequestMetadata(LogRequests(logger)(mux))
}
