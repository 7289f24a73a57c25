// Package httptransport assembles the admin HTTP surface.
package httptransport

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	commissionhandler "upline/internal/commission/handler"
	"upline/internal/platform/metrics"
	"upline/internal/platform/middleware"
	referralhandler "upline/internal/referral/handler"
)

// Registerer is implemented by every module handler.
type Registerer interface {
	Register(r chi.Router)
}

// NewRouter wires middleware, module routes and the operational
// endpoints.
func NewRouter(logger *slog.Logger, m *metrics.Metrics, referral *referralhandler.Handler, commission *commissionhandler.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))
	if m != nil {
		r.Use(middleware.Latency(m))
	}

	for _, h := range []Registerer{referral, commission} {
		h.Register(r)
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	return r
}
