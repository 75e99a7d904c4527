package main

import (
	"context"
	"database/sql"
	"os"

	"github.com/go-faster/errors"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"BookStore/internal/auth"
	"BookStore/pkg/kit"
)

const (
	service = "auth"
	issuer  = "bookstore-auth"
)

func main() {
	cfg, err := LoadConfig()
	if err != nil {
		_, _ = os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(2)
	}

	log := kit.NewLogger(service, cfg.LogLevel)
	defer func() { _ = log.Sync() }()

	if err := run(context.Background(), cfg, log); err != nil {
		log.Fatal("auth stopped", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *Config, log *zap.Logger) error {
	s := &auth.Server{
		Log:      log,
		JWT:      auth.NewTokenMaker(cfg.JWTSecret, issuer),
		TokenTTL: cfg.TokenTTL,
	}

	if cfg.DatabaseURL != "" {
		db, err := sql.Open("pgx", cfg.DatabaseURL)
		if err != nil {
			return errors.Wrap(err, "open db")
		}
		defer func() { _ = db.Close() }()

		if err := auth.Migrate(ctx, db); err != nil {
			return err
		}
		s.Store = auth.NewPostgresStore(db)
		log.Info("using postgres store")
	} else {
		s.Store = auth.NewMemStoreWithCost(cfg.BcryptCost)
		log.Info("using in-memory store")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	h := auth.NewHandler(s, auth.HTTPDeps{
		Log:            log,
		Service:        service,
		Registry:       reg,
		MetricsEnabled: cfg.Metrics.Enabled,
		MetricsToken:   cfg.Metrics.Token,
	})
	return kit.RunHTTPServer(ctx, cfg.Addr, h, log)
}
