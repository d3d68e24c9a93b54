// cmd/server/server.go
package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/winstonapp/themestore/internal/allowlist"
	"github.com/winstonapp/themestore/internal/api"
	"github.com/winstonapp/themestore/internal/api/eligibility"
	"github.com/winstonapp/themestore/internal/api/themes"
	"github.com/winstonapp/themestore/internal/blob"
	"github.com/winstonapp/themestore/internal/config"
	"github.com/winstonapp/themestore/internal/ingest"
	"github.com/winstonapp/themestore/internal/ratelimit"
	"github.com/winstonapp/themestore/internal/store"
)

type serverDeps struct {
	store    *store.DB
	blobs    *blob.Client
	pipeline *ingest.Pipeline
	list     *allowlist.List
	limiter  *ratelimit.Limiter
}

func newServer(cfg *config.Config, deps serverDeps) *http.Server {
	router := http.NewServeMux()
	registerRoutes(router, cfg, deps)

	trustProxy := cfg.App.Environment != "development"

	// Setup middleware chain
	handler := api.ChainMiddleware(
		router,
		api.WithLogging,
		api.WithRecovery,
		api.WithRateLimit(deps.limiter, trustProxy),
		api.WithRequestID,
	)

	return &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.App.Port),
		Handler:      handler,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

func registerRoutes(mux *http.ServeMux, cfg *config.Config, deps serverDeps) {
	themeHandler := themes.NewHandler(deps.store, deps.blobs, deps.pipeline, cfg.Cache.Dir)
	eligibilityHandler := eligibility.NewHandler(deps.list)

	auth := api.WithBearerAuth(cfg.App.BearerToken)
	protected := func(h http.HandlerFunc) http.Handler {
		return auth(h)
	}

	// Theme routes
	mux.Handle("POST /themes/upload", protected(themeHandler.HandleUpload))
	mux.Handle("GET /themes", protected(themeHandler.HandleList))
	mux.Handle("GET /themes/{themeID}", protected(themeHandler.HandleGet))
	mux.Handle("GET /themes/name/{name}", protected(themeHandler.HandleSearchByName))
	mux.Handle("GET /themes/status/{themeID}", protected(themeHandler.HandleStatus))
	mux.Handle("DELETE /themes/{themeID}", protected(themeHandler.HandleDelete))
	mux.Handle("PUT /themes/{themeID}", protected(themeHandler.HandleUpdate))
	mux.Handle("GET /themes/attachment/{themeID}", protected(themeHandler.HandleAttachment))
	mux.Handle("GET /themes/previews/{themeID}", protected(themeHandler.HandlePreviews))

	// Download links are shared out of band and carry no credentials.
	mux.HandleFunc("GET /themes/redirect/{themeID}", themeHandler.HandleRedirect)

	// Eligibility
	mux.Handle("GET /eligibility/{token}", protected(eligibilityHandler.HandleCheck))

	// Liveness
	mux.HandleFunc("GET /ping", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
}
