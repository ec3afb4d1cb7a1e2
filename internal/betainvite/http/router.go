// Package http serves the operational endpoints: health checks and metrics.
package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/aussiebroadwan/betainvite/internal/betainvite/store"
	"github.com/aussiebroadwan/betainvite/pkg/httpx"
	"github.com/aussiebroadwan/betainvite/pkg/slogx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Router holds shared dependencies for the ops handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	buildVersion string
	startTime    time.Time
	logger       *slog.Logger

	store    store.Store
	gatherer prometheus.Gatherer
}

func NewRouter(buildVersion string, st store.Store, gatherer prometheus.Gatherer, logger *slog.Logger) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		buildVersion: buildVersion,
		startTime:    time.Now(),
		logger:       logger,
		store:        st,
		gatherer:     gatherer,
	}

	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.Mux.Handle("GET /livez", LivezHandler(r.startTime, r.buildVersion))
	r.Mux.Handle("GET /readyz", ReadyzHandler(r.startTime, r.buildVersion, r.store))

	if r.gatherer != nil {
		r.Mux.Handle("GET /metrics", promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{
			ErrorLog: slog.NewLogLogger(r.logger.Handler(), slog.LevelError),
		}))
	}
}

// ServeHTTP implements http.Handler and applies the global middleware chain.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}
