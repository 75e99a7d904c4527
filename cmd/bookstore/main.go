// Command bookstore is an interactive shop client: browse and search the
// catalog, manage a cart, sign in, and edit the catalog as admin.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"BookStore/internal/identity"
	"BookStore/internal/session"
	"BookStore/internal/storefront"
	"BookStore/pkg/kit"
)

func main() {
	cfg, err := LoadConfig()
	if err != nil {
		_, _ = os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(2)
	}

	log := kit.NewLogger("bookstore", cfg.LogLevel)
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("bookstore stopped", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *Config, log *zap.Logger) error {
	r := newREPL(os.Stdout)

	deps := storefront.Deps{
		Log:           log,
		CartNotifier:  r.cartNotifier(),
		OnAdminExpire: r.adminExpired,
	}
	if cfg.AuthURL != "" {
		deps.Identity = identity.New(cfg.AuthURL, identity.WithLogger(log.Named("identity")))
	}
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer func() { _ = rdb.Close() }()
		deps.Credentials = session.NewRedisCredentials(rdb, cfg.Redis.Key)
	}

	sf, err := storefront.New(storefront.Config{
		CatalogURL:  cfg.CatalogURL,
		CacheMaxAge: cfg.CacheMaxAge,
		AdminTTL:    cfg.AdminTTL,
		SearchLimit: cfg.SearchLimit,
	}, deps)
	if err != nil {
		return err
	}
	defer func() {
		if err := sf.Close(); err != nil {
			log.Warn("close storefront", zap.Error(err))
		}
	}()

	sf.Start(ctx)
	r.sf = sf
	return r.Run(ctx, os.Stdin)
}
