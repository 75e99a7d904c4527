package catalog

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
	adminLoginLimitPerMin = 5
	limitWindow           = 60 * time.Second
	readyTimeout          = 1 * time.Second
)

func NewHandler(s *Server, deps HTTPDeps) http.Handler {
	r := chi.NewRouter()

	kit.UseCommon(r, deps.Log)
	kit.MountMetrics(r, deps.Registry, deps.Service, deps.MetricsEnabled, deps.MetricsToken)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Get("/readyz", s.ready)

	loginLimiter := kit.NewIPRateLimiter(adminLoginLimitPerMin, limitWindow)
	r.With(loginLimiter.Middleware).Post("/api/auth/admin", s.adminLogin)

	r.Route("/api/books", func(rr chi.Router) {
		rr.Get("/", s.list)
		rr.Get("/{id}", s.get)

		rr.Group(func(ar chi.Router) {
			ar.Use(RequireAdmin(s.JWT))
			ar.Post("/create-book", s.create)
			ar.Put("/edit/{id}", s.update)
			ar.Delete("/{id}", s.delete)
		})
	})

	return r
}

func (s *Server) ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	if err := s.Store.Ping(ctx); err != nil {
		s.log().Warn("readyz failed", zap.Error(err))
		kit.WriteError(w, r, http.StatusServiceUnavailable, "not_ready", "not ready", nil)
		return
	}
	w.WriteHeader(http.StatusOK)
}
