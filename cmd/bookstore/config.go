package main

import (
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

// Config of the interactive client. Env prefix BOOKSTORE_, flags, or
// bookstore.yaml.
type Config struct {
	CatalogURL  string        `default:"http://localhost:8082" usage:"Catalog service base URL" flag:"catalog-url"`
	AuthURL     string        `default:"http://localhost:8081" usage:"Identity service base URL; empty disables user sign-in" flag:"auth-url"`
	LogLevel    string        `default:"warn" usage:"Log level (debug, info, warn, error)" flag:"log-level"`
	CacheMaxAge time.Duration `default:"0s" usage:"Refetch cached catalog reads older than this; 0 keeps them until invalidated" flag:"cache-max-age"`
	AdminTTL    time.Duration `default:"1h" usage:"Lifetime of admin tokens without an exp claim" flag:"admin-ttl"`
	SearchLimit int           `default:"5" usage:"Maximum search results" flag:"search-limit"`
	Redis       RedisConfig
}

// RedisConfig selects Redis for the bearer credential. An empty Addr keeps
// it in memory.
type RedisConfig struct {
	Addr     string `usage:"Redis address (host:port)"`
	Password string `usage:"Redis password"`
	DB       int    `default:"0" usage:"Redis database"`
	Key      string `default:"bookstore:credential" usage:"Key holding the credential"`
}

func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "BOOKSTORE",
		Files:     []string{"bookstore.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	return &cfg, nil
}
