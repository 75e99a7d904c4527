package main

import (
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

// Config of the dev catalog service. Env prefix CATALOG_, flags, or
// catalog.yaml.
type Config struct {
	Addr        string        `default:":8082" usage:"HTTP listen address"`
	LogLevel    string        `default:"info" usage:"Log level (debug, info, warn, error)" flag:"log-level"`
	DatabaseURL string        `usage:"PostgreSQL URL; empty serves the seeded in-memory catalog" flag:"database-url"`
	JWTSecret   string        `default:"dev-secret-change-me" usage:"HMAC secret for admin tokens" flag:"jwt-secret"`
	TokenTTL    time.Duration `default:"1h" usage:"Admin token lifetime" flag:"token-ttl"`
	Admin       AdminConfig
	Metrics     MetricsConfig
}

type AdminConfig struct {
	Username   string `default:"admin" usage:"Seeded admin username"`
	Password   string `default:"admin123" usage:"Seeded admin password"`
	BcryptCost int    `default:"10" usage:"bcrypt cost for the seeded admin" flag:"admin-bcrypt-cost"`
}

type MetricsConfig struct {
	Enabled bool   `default:"true" usage:"Expose /metrics"`
	Token   string `usage:"Bearer token guarding /metrics; empty leaves it open"`
}

func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "CATALOG",
		Files:     []string{"catalog.yaml", "/etc/bookstore/catalog.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	if cfg.JWTSecret == "" {
		return nil, errors.New("jwt secret is required: set CATALOG_JWT_SECRET")
	}
	return &cfg, nil
}
