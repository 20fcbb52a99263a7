// # internal/config/config.go
package config

import (
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	CheckPaths    []string      `toml:"check_paths"`
	Exclude       Exclude       `toml:"exclude"`
	Conventions   Conventions   `toml:"conventions"`
	Watch         Watch         `toml:"watch"`
	History       History       `toml:"history"`
	Observability Observability `toml:"observability"`
}

type Exclude struct {
	Dirs  []string `toml:"dirs"`
	Files []string `toml:"files"`
}

// Conventions are the name-based markers the engine recognizes. The receiver
// name is convention-based, not position-based, so non-standard instance
// names can be configured instead of silently misread.
type Conventions struct {
	Receiver      string `toml:"receiver"`
	SkipDecorator string `toml:"skip_decorator"`
	ScopeBoundary string `toml:"scope_boundary"`
}

type Watch struct {
	Debounce          time.Duration `toml:"debounce"`
	RechecksPerSecond float64       `toml:"rechecks_per_second"`
	Burst             int           `toml:"burst"`
}

type History struct {
	Path string `toml:"path"`
}

type Observability struct {
	MetricsListen string `toml:"metrics_listen"`
	OTLPEndpoint  string `toml:"otlp_endpoint"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if _, err := toml.Decode(string(data), &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	return &cfg, nil
}

// Default returns the configuration used when no config file exists.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (cfg *Config) applyDefaults() {
	if len(cfg.CheckPaths) == 0 {
		cfg.CheckPaths = []string{"."}
	}
	if cfg.Conventions.Receiver == "" {
		cfg.Conventions.Receiver = "self"
	}
	if cfg.Conventions.SkipDecorator == "" {
		cfg.Conventions.SkipDecorator = "no_block_scoping"
	}
	if cfg.Conventions.ScopeBoundary == "" {
		cfg.Conventions.ScopeBoundary = "block_scope"
	}
	if cfg.Watch.Debounce == 0 {
		cfg.Watch.Debounce = 500 * time.Millisecond
	}
	if cfg.Watch.RechecksPerSecond == 0 {
		cfg.Watch.RechecksPerSecond = 10
	}
	if cfg.Watch.Burst == 0 {
		cfg.Watch.Burst = 20
	}
}
