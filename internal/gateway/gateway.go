// Package gateway is a single-origin edge for the dev backends: catalog
// and admin routes go to the catalog service, /auth to the identity
// service.
package gateway

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
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

type Deps struct {
	AuthURL    string
	CatalogURL string
}

const (
	readyTimeout      = 2 * time.Second
	readyProbeTimeout = 700 * time.Millisecond
)

var readyClient = &http.Client{
	Transport: &http.Transport{
		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 5,
		IdleConnTimeout:     30 * time.Second,
	},
}

func NewHandler(deps Deps, httpDeps HTTPDeps) (http.Handler, error) {
	log := kit.OrNop(httpDeps.Log)

	authProxy, err := NewReverseProxy(deps.AuthURL, log)
	if err != nil {
		return nil, errors.Wrap(err, "auth upstream")
	}
	catalogProxy, err := NewReverseProxy(deps.CatalogURL, log)
	if err != nil {
		return nil, errors.Wrap(err, "catalog upstream")
	}

	r := chi.NewRouter()
	kit.UseCommon(r, log)
	kit.MountMetrics(r, httpDeps.Registry, httpDeps.Service, httpDeps.MetricsEnabled, httpDeps.MetricsToken)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Get("/readyz", readyz(deps, log))

	r.Handle("/auth/*", authProxy)
	r.Handle("/api/auth/*", catalogProxy)
	r.Handle("/api/books", catalogProxy)
	r.Handle("/api/books/*", catalogProxy)

	return r, nil
}

func readyz(deps Deps, log *zap.Logger) http.HandlerFunc {
	upstreams := []struct{ name, url string }{
		{"auth", deps.AuthURL},
		{"catalog", deps.CatalogURL},
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		defer cancel()

		for _, u := range upstreams {
			if err := checkReady(ctx, u.url+"/readyz"); err != nil {
				log.Warn("readyz failed", zap.String("upstream", u.name), zap.Error(err))
				kit.WriteError(w, r, http.StatusServiceUnavailable, "not_ready", u.name+" not ready", nil)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
	}
}

func checkReady(ctx context.Context, url string) error {
	cctx, cancel := context.WithTimeout(ctx, readyProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(cctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := readyClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("status=%d", resp.StatusCode)
	}
	return nil
}
