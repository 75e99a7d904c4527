package main

import (
	"context"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"BookStore/internal/gateway"
	"BookStore/pkg/kit"
)

const service = "gateway"

func main() {
	cfg, err := LoadConfig()
	if err != nil {
		_, _ = os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(2)
	}

	log := kit.NewLogger(service, cfg.LogLevel)
	defer func() { _ = log.Sync() }()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	h, err := gateway.NewHandler(
		gateway.Deps{AuthURL: cfg.AuthURL, CatalogURL: cfg.CatalogURL},
		gateway.HTTPDeps{
			Log:            log,
			Service:        service,
			Registry:       reg,
			MetricsEnabled: cfg.Metrics.Enabled,
			MetricsToken:   cfg.Metrics.Token,
		},
	)
	if err != nil {
		log.Fatal("gateway init", zap.Error(err))
	}

	if err := kit.RunHTTPServer(context.Background(), cfg.Addr, h, log); err != nil {
		log.Fatal("http server stopped", zap.Error(err))
	}
}
