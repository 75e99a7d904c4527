package main

import (
	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

// Config of the edge. Env prefix GATEWAY_, flags, or gateway.yaml.
type Config struct {
	Addr       string `default:":8080" usage:"HTTP listen address"`
	LogLevel   string `default:"info" usage:"Log level (debug, info, warn, error)" flag:"log-level"`
	AuthURL    string `default:"http://localhost:8081" usage:"Identity service base URL" flag:"auth-url"`
	CatalogURL string `default:"http://localhost:8082" usage:"Catalog service base URL" flag:"catalog-url"`
	Metrics    MetricsConfig
}

type MetricsConfig struct {
	Enabled bool   `default:"true" usage:"Expose /metrics"`
	Token   string `usage:"Bearer token guarding /metrics; empty leaves it open"`
}

func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "GATEWAY",
		Files:     []string{"gateway.yaml", "/etc/bookstore/gateway.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	return &cfg, nil
}
