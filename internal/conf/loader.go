package conf

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	envPrefix         = "STATS_"
	defaultConfigPath = "configs/config.yaml"
)

// Load builds a Config by layering, from low to high precedence:
//  1. defaults (New)
//  2. YAML file from STATS_CONFIG, or configs/config.yaml when present
//  3. env vars with prefix STATS_, "__" separating nested keys (STATS_DATABASE__DSN)
//
// A .env file in the working directory is read first.
func Load(ctx context.Context) (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")

	path := os.Getenv(envPrefix + "CONFIG")
	if path == "" {
		if _, err := os.Stat(defaultConfigPath); err == nil {
			path = defaultConfigPath
		}
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	envProvider := env.Provider(envPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(s, envPrefix)
		if s == "CONFIG" {
			return ""
		}
		return strings.ReplaceAll(strings.ToLower(s), "__", ".")
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("failed to load env config: %w", err)
	}

	// Unmarshal over a copy of the defaults
	cfg := *New()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	// Same credentials the other Feishu tools read
	if cfg.Feishu.AppID == "" {
		cfg.Feishu.AppID = os.Getenv("FEISHU_APP_ID")
	}
	if cfg.Feishu.AppSecret == "" {
		cfg.Feishu.AppSecret = os.Getenv("FEISHU_APP_SECRET")
	}

	return &cfg, nil
}
