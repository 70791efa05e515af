// Package config loads rootstore settings from a YAML file with
// environment overrides.
//
// Precedence, lowest first: Default, the YAML file, ROOTSTORE_* variables.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/roach88/rootstore/internal/aggregate"
	"github.com/roach88/rootstore/internal/schema"
)

// Config describes one store deployment.
type Config struct {
	Database string `yaml:"database" env:"ROOTSTORE_DATABASE"`
	Domain   string `yaml:"domain" env:"ROOTSTORE_DOMAIN"`
	Service  string `yaml:"service" env:"ROOTSTORE_SERVICE"`
	Network  string `yaml:"network" env:"ROOTSTORE_NETWORK"`
	Public   bool   `yaml:"public" env:"ROOTSTORE_PUBLIC"`

	BlockParallel      int           `yaml:"block_parallel" env:"ROOTSTORE_BLOCK_PARALLEL"`
	StreamPageSize     int           `yaml:"stream_page_size" env:"ROOTSTORE_STREAM_PAGE_SIZE"`
	FollowPollInterval time.Duration `yaml:"follow_poll_interval" env:"ROOTSTORE_FOLLOW_POLL_INTERVAL"`

	// Handlers maps each action to a built-in handler name.
	Handlers map[string]string `yaml:"handlers"`
	// SchemaDir holds <action>.cue payload schemas.
	SchemaDir string `yaml:"schema_dir" env:"ROOTSTORE_SCHEMA_DIR"`
	// Schemas are inline CUE payload schemas keyed by action. They win over
	// files of the same name in SchemaDir.
	Schemas map[string]string `yaml:"schemas"`
}

// Default returns the settings used when nothing overrides them.
func Default() Config {
	return Config{
		Database:           "rootstore.db",
		Network:            "local",
		BlockParallel:      100,
		StreamPageSize:     500,
		FollowPollInterval: time.Second,
	}
}

// Load reads path over Default, applies environment overrides and
// validates the result. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := decode(data, &cfg); err != nil {
			return Config{}, err
		}
	}
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func decode(data []byte, cfg *Config) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}
	return nil
}

// Validate reports every problem at once.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Database) == "" {
		errs = append(errs, errors.New("database is required"))
	}
	for name, v := range map[string]string{"domain": c.Domain, "service": c.Service} {
		switch {
		case strings.TrimSpace(v) == "":
			errs = append(errs, fmt.Errorf("%s is required", name))
		case strings.Contains(v, "."):
			errs = append(errs, fmt.Errorf("%s %q must not contain '.'", name, v))
		}
	}
	if c.BlockParallel < 1 {
		errs = append(errs, fmt.Errorf("block_parallel must be positive, got %d", c.BlockParallel))
	}
	if c.StreamPageSize < 1 {
		errs = append(errs, fmt.Errorf("stream_page_size must be positive, got %d", c.StreamPageSize))
	}
	if c.FollowPollInterval <= 0 {
		errs = append(errs, fmt.Errorf("follow_poll_interval must be positive, got %s", c.FollowPollInterval))
	}
	if len(c.Handlers) == 0 {
		errs = append(errs, errors.New("at least one handler is required"))
	}
	for action, name := range c.Handlers {
		if _, ok := aggregate.Builtin(name); !ok {
			errs = append(errs, fmt.Errorf("handler for %q: unknown handler %q", action, name))
		}
	}
	for action := range c.Schemas {
		if _, ok := c.Handlers[action]; !ok {
			errs = append(errs, fmt.Errorf("schema for %q has no handler", action))
		}
	}
	return errors.Join(errs...)
}

// SchemaSources returns the CUE source per action: files from SchemaDir
// overlaid with the inline Schemas.
func (c Config) SchemaSources() (map[string]string, error) {
	sources := map[string]string{}
	if c.SchemaDir != "" {
		var err error
		if sources, err = schema.ReadDir(c.SchemaDir); err != nil {
			return nil, err
		}
	}
	for action, src := range c.Schemas {
		sources[action] = src
	}
	return sources, nil
}
