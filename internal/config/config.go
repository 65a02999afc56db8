// Package config loads the JSON run configuration and the environment
// (.env included) and builds the market data provider chain from them.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/contactkeval/option-analytics/internal/analytics"
	"github.com/contactkeval/option-analytics/internal/data"
	"github.com/contactkeval/option-analytics/internal/logger"
)

// Environment variables read by Load.
const (
	EnvMassiveAPIKey = "MASSIVE_API_KEY"
	EnvDataDir       = "OPTION_ANALYTICS_DATA_DIR"
	EnvDBPath        = "OPTION_ANALYTICS_DB"
	EnvPort          = "OPTION_ANALYTICS_PORT"
)

const (
	DefaultPort = ":8080"
	DefaultSeed = 42
)

// Config is the analysis config plus where market data comes from. The
// analysis fields sit at the top level of the JSON file.
type Config struct {
	analytics.Config

	DataDir       string `json:"data_dir,omitempty"` // CSV directory, <dir>/<TICKER>.csv
	DBPath        string `json:"db_path,omitempty"`  // SQLite bar cache
	Seed          int64  `json:"seed,omitempty"`     // synthetic provider seed
	Port          string `json:"port,omitempty"`     // listen address for -serve
	MassiveAPIKey string `json:"-"`                  // environment only
}

// LoadEnv loads the given .env files (".env" when none are named) into the
// process environment. Missing files are skipped.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("loading %s: %w", f, err)
		}
		logger.Debugf("loaded environment from %s", f)
	}
	return nil
}

// Load reads the JSON config at path, applies environment overrides and
// fills defaults. An empty path yields a config built from defaults and the
// environment only.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		if err := json.Unmarshal(b, cfg); err != nil {
			return nil, fmt.Errorf("invalid config %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	cfg.ApplyDefaults()
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.MassiveAPIKey = strings.TrimSpace(os.Getenv(EnvMassiveAPIKey))
	if v := os.Getenv(EnvDataDir); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv(EnvDBPath); v != "" {
		c.DBPath = v
	}
	if v := os.Getenv(EnvPort); v != "" {
		c.Port = v
	}
}

// ApplyDefaults fills zero fields, including the analysis defaults.
func (c *Config) ApplyDefaults() {
	c.Config.ApplyDefaults()
	if c.Port == "" {
		c.Port = DefaultPort
	}
	if c.Seed == 0 {
		c.Seed = DefaultSeed
	}
}

// Provider builds the data provider chain: Massive when an API key is set,
// else the CSV directory when configured, else synthetic data. The synthetic
// provider backs the first two. With DBPath set, a SQLite cache fronts the
// chain. The returned close func releases the cache.
func (c *Config) Provider() (data.Provider, func() error, error) {
	noop := func() error { return nil }

	var prov data.Provider = data.NewSyntheticProvider(c.Seed)
	source := "synthetic"
	switch {
	case c.MassiveAPIKey != "":
		prov, source = data.NewMassiveDataProvider(c.MassiveAPIKey, prov), "massive"
	case c.DataDir != "":
		prov, source = data.NewLocalFileDataProvider(c.DataDir, prov), "csv:"+c.DataDir
	}

	if c.DBPath == "" {
		logger.Infof("%s provider enabled", source)
		return prov, noop, nil
	}
	store, err := data.NewSQLiteStore(c.DBPath, prov)
	if err != nil {
		return nil, noop, err
	}
	logger.Infof("%s provider enabled behind sqlite cache %s", source, c.DBPath)
	return store, store.Close, nil
}
