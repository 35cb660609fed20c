package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

// Config represents the fitskit configuration file (~/.config/fitskit/config.yaml).
type Config struct {
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// WriteOptions names a YAML file of image write options used by compress
	// when --options is not given.
	WriteOptions string `yaml:"write_options"`
	// MatchRadius is the default match radius in pixels.
	MatchRadius *float64 `yaml:"match_radius"`
}

func configPath() string {
	if p := os.Getenv("FITSKIT_CONFIG"); p != "" {
		return p
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "fitskit", "config.yaml")
}

// LoadConfig reads path. A missing file gives the zero Config.
func LoadConfig(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	if cfg.WriteOptions != "" && !filepath.IsAbs(cfg.WriteOptions) {
		cfg.WriteOptions = filepath.Join(filepath.Dir(path), cfg.WriteOptions)
	}
	return cfg, nil
}

// applyLoggingConfig applies config file defaults when the corresponding flag
// was not set explicitly.
func applyLoggingConfig(c *cli.Command, cfg Config) {
	if cfg.LogLevel != "" && !c.IsSet("log-level") {
		logLevel = cfg.LogLevel
	}
	if cfg.LogFormat != "" && !c.IsSet("log-format") {
		logFormat = cfg.LogFormat
	}
}

type configKey struct{}

func withConfig(ctx context.Context, cfg Config) context.Context {
	return context.WithValue(ctx, configKey{}, cfg)
}

func configFrom(ctx context.Context) Config {
	cfg, _ := ctx.Value(configKey{}).(Config)
	return cfg
}
