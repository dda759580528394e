package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	pkgerrors "SocialMeshPlatform/pkg/errors"
	"SocialMeshPlatform/pkg/health"
	"SocialMeshPlatform/pkg/logger"
	"SocialMeshPlatform/pkg/metrics"
	"SocialMeshPlatform/pkg/middleware"
)

// NewRouter создает chi роутер с общими middleware сервиса и служебными маршрутами
// /health, /ready, /live и /metrics. extra выполняются после общих middleware.
func NewRouter(log logger.Logger, m *metrics.Metrics, checker health.HealthChecker, extra ...func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(
		pkgerrors.Recovery(log),
		middleware.LoggingMiddleware(log),
		m.Middleware,
	)
	r.Use(extra...)

	health.Register(r, checker)
	r.Handle("/metrics", m.GetHandler())
	return r
}
