package server

import (
	"net/http"

	"github.com/fulmenhq/gofulmen/signals"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/tgfiles/tgfiles/internal/observability"
	"github.com/tgfiles/tgfiles/internal/server/handlers"
)

// Admin signal endpoint quota, in requests per minute.
const (
	adminSignalRate  = 10
	adminSignalBurst = 5
)

func (s *Server) registerRoutes() {
	s.router.Route("/health", func(r chi.Router) {
		r.Get("/", handlers.HealthHandler)
		r.Get("/live", handlers.LivenessHandler)
		r.Get("/ready", handlers.ReadinessHandler)
		r.Get("/startup", handlers.StartupHandler)
	})
	s.router.Get("/version", handlers.VersionHandler)
	s.router.Method(http.MethodGet, "/metrics", s.metrics)

	s.router.Get("/api/test", s.api.Status)
	s.router.Get("/api/test/{channel}", s.api.ChannelShortcut)
	s.router.Post("/api/quiz/parse", s.api.QuizParse)
	s.router.Get("/api/quiz/{fileRef}", s.api.QuizFile)
	// The catalog path is configurable and may live outside /api.
	s.router.Get(s.api.FilesPath, s.api.Files)

	if s.adminToken != "" {
		s.mountAdminSignals()
	} else if observability.ServerLogger != nil {
		observability.ServerLogger.Debug("Admin signal endpoint disabled (no admin token configured)")
	}
}

// mountAdminSignals exposes reload and shutdown over HTTP behind a bearer
// token. Signals are delivered to the global signal manager.
func (s *Server) mountAdminSignals() {
	handler := signals.NewHTTPHandler(signals.HTTPConfig{
		TokenAuth: s.adminToken,
		RateLimit: adminSignalRate,
		RateBurst: adminSignalBurst,
	})
	s.router.Post("/admin/signal", handler.ServeHTTP)

	if observability.ServerLogger != nil {
		observability.ServerLogger.Info("Admin signal endpoint enabled",
			zap.String("path", "/admin/signal"),
			zap.Int("rate_per_minute", adminSignalRate),
			zap.Int("burst", adminSignalBurst))
	}
}
