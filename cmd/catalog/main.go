package main

import (
	"context"
	"database/sql"
	"os"
	"time"

	"github.com/go-faster/errors"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"BookStore/internal/auth"
	"BookStore/internal/catalog"
	"BookStore/pkg/kit"
)

const (
	service = "catalog"
	issuer  = "bookstore-catalog"
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
		log.Fatal("catalog stopped", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *Config, log *zap.Logger) error {
	s := &catalog.Server{
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

		if err := catalog.Migrate(ctx, db); err != nil {
			return err
		}
		store := catalog.NewPostgresStore(db)
		if err := store.Seed(ctx, catalog.SeedBooks(time.Now().UTC())); err != nil {
			return err
		}
		admins := catalog.NewPostgresAdminStore(db)
		if err := admins.Add(ctx, "admin-1", cfg.Admin.Username, cfg.Admin.Password, cfg.Admin.BcryptCost); err != nil {
			return err
		}
		s.Store, s.Admins = store, admins
		log.Info("using postgres store")
	} else {
		admins := catalog.NewMemAdminStore()
		if err := admins.Add("admin-1", cfg.Admin.Username, cfg.Admin.Password, cfg.Admin.BcryptCost); err != nil {
			return errors.Wrap(err, "seed admin")
		}
		s.Store = catalog.NewMemStore(catalog.SeedBooks(time.Now().UTC())...)
		s.Admins = admins
		log.Info("using in-memory store")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	h := catalog.NewHandler(s, catalog.HTTPDeps{
		Log:            log,
		Service:        service,
		Registry:       reg,
		MetricsEnabled: cfg.Metrics.Enabled,
		MetricsToken:   cfg.Metrics.Token,
	})
	return kit.RunHTTPServer(ctx, cfg.Addr, h, log)
}
