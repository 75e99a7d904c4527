package main

import (
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

// Config of the dev identity service. Env prefix AUTH_, flags, or
// auth.yaml.
type Config struct {
	Addr        string        `default:":8081" usage:"HTTP listen address"`
	LogLevel    string        `default:"info" usage:"Log level (debug, info, warn, error)" flag:"log-level"`
	DatabaseURL string        `usage:"PostgreSQL URL; empty keeps users in memory" flag:"database-url"`
	JWTSecret   string        `default:"dev-auth-secret-change-me" usage:"HMAC secret for user tokens" flag:"jwt-secret"`
	TokenTTL    time.Duration `default:"1h" usage:"User token lifetime" flag:"token-ttl"`
	BcryptCost  int           `default:"10" usage:"bcrypt cost for in-memory users" flag:"bcrypt-cost"`
	Metrics     MetricsConfig
}

type MetricsConfig struct {
	Enabled bool   `default:"true" usage:"Expose /metrics"`
	Token   string `usage:"Bearer token guarding /metrics; empty leaves it open"`
}

func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "AUTH",
		Files:     []string{"auth.yaml", "/etc/bookstore/auth.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	if cfg.JWTSecret == "" {
		return nil, errors.New("jwt secret is required: set AUTH_JWT_SECRET")
	}
	return &cfg, nil
}
