package auth

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"BookStore/pkg/kit"
)

type HTTPDeps struct {
	Log      *zap.Logger
	Service  string
	Registry *prometheus.Registry

	MetricsEnabled bool
	MetricsToken   string
}

const (
	loginLimitPerMin    = 5
	registerLimitPerMin = 3
	limitWindow         = 60 * time.Second
	readyTimeout        = 1 * time.Second
)

func NewHandler(s *Server, deps HTTPDeps) http.Handler {
	r := chi.NewRouter()

	kit.UseCommon(r, deps.Log)
	kit.MountMetrics(r, deps.Registry, deps.Service, deps.MetricsEnabled, deps.MetricsToken)

	loginLimiter := kit.NewIPRateLimiter(loginLimitPerMin, limitWindow)
	registerLimiter := kit.NewIPRateLimiter(registerLimitPerMin, limitWindow)

	r.Route("/auth", func(rr chi.Router) {
		rr.With(loginLimiter.Middleware).Post("/login", s.handleLogin)
		rr.With(registerLimiter.Middleware).Post("/register", s.handleRegister)
		rr.Get("/whoami", s.handleWhoAmI)
	})

	r.Get("/healthz", healthz)
	r.Get("/readyz", s.handleReady)

	return r
}

func healthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	if err := s.Store.Ping(ctx); err != nil {
		s.log().Warn("readyz failed", zap.Error(err))
		kit.WriteError(w, r, http.StatusServiceUnavailable, "not_ready", "not ready", nil)
		return
	}
	w.WriteHeader(http.StatusOK)
}
