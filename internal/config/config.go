// Package config loads runtime settings from defaults, an optional YAML
// file, and NIGHTJAR_-prefixed environment variables, in that order of
// precedence (later wins).
package config

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "NIGHTJAR_"

// Backend selects the key-value store implementation.
type Backend string

const (
	BackendDynamo Backend = "dynamo"
	BackendLocal  Backend = "local"
)

type Config struct {
	ListenAddr string `koanf:"listen_addr"`
	LogLevel   string `koanf:"log_level"`

	StoreBackend   Backend `koanf:"store_backend"`
	TableName      string  `koanf:"table_name"`
	LocalStorePath string  `koanf:"local_store_path"`

	AWSRegion      string `koanf:"aws_region"`
	AWSEndpointURL string `koanf:"aws_endpoint_url"`

	KinesisStream     string `koanf:"kinesis_stream"`
	ConsumeStream     bool   `koanf:"consume_stream"`
	CatalogRegion     string `koanf:"catalog_region"`
	WatchmodeHost     string `koanf:"watchmode_host"`
	WatchmodeSecretID string `koanf:"watchmode_secret_id"`
	// WatchmodeAPIKey short-circuits Secrets Manager for local runs.
	WatchmodeAPIKey string `koanf:"watchmode_api_key"`
	APIFetchLimit   int    `koanf:"api_fetch_limit"`

	JWTSecret string `koanf:"jwt_secret"`
}

func defaults() Config {
	return Config{
		ListenAddr:     ":8080",
		LogLevel:       "info",
		StoreBackend:   BackendDynamo,
		TableName:      "nightjar",
		LocalStorePath: "nightjar.db",
		AWSRegion:      "eu-west-2",
		KinesisStream:  "nightjar-titles",
		CatalogRegion:  "GB",
		WatchmodeHost:  "https://api.watchmode.com",
		APIFetchLimit:  20,
	}
}

// Load builds the config. path may be empty, in which case only defaults
// and environment variables apply.
func Load(path string) (Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaults(), "koanf"), nil); err != nil {
		return Config{}, fmt.Errorf("load config defaults: %w", err)
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("load config file %s: %w", path, err)
		}
	}
	err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, envPrefix))
	}), nil)
	if err != nil {
		return Config{}, fmt.Errorf("load config env: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.StoreBackend {
	case BackendDynamo:
		if c.TableName == "" {
			return fmt.Errorf("table_name is required with the dynamo backend")
		}
	case BackendLocal:
		if c.LocalStorePath == "" {
			return fmt.Errorf("local_store_path is required with the local backend")
		}
	default:
		return fmt.Errorf("unknown store_backend %q", c.StoreBackend)
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("jwt_secret is required")
	}
	if c.WatchmodeSecretID == "" && c.WatchmodeAPIKey == "" {
		return fmt.Errorf("either watchmode_secret_id or watchmode_api_key is required")
	}
	if c.APIFetchLimit <= 0 {
		return fmt.Errorf("api_fetch_limit must be positive")
	}
	return nil
}
