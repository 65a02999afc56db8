package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contactkeval/option-analytics/internal/analytics"
	"github.com/contactkeval/option-analytics/internal/data"
	"github.com/contactkeval/option-analytics/internal/pricing"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func clearEnv(t *testing.T) {
	for _, k := range []string{EnvMassiveAPIKey, EnvDataDir, EnvDBPath, EnvPort} {
		t.Setenv(k, "")
	}
}

func TestLoad(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, t.TempDir(), "cfg.json", `{
		"underlying": "aapl",
		"as_of": "2025-06-30",
		"model": "Binomial Tree (American)",
		"option": {"option_type": "put", "strike": 180, "dte": 45, "rate": 0.04},
		"volatility": {"window": 30},
		"data_dir": "./bars",
		"seed": 7
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "AAPL", cfg.Underlying)
	assert.Equal(t, pricing.NameBinomialAmerican, cfg.Model)
	assert.Equal(t, pricing.DefaultSteps, cfg.Steps)
	assert.Equal(t, 180.0, cfg.Option.Strike)
	assert.Equal(t, 30, cfg.Volatility.Window)
	assert.Equal(t, "./bars", cfg.DataDir)
	assert.Equal(t, int64(7), cfg.Seed)
	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, analytics.DefaultOutputDir, cfg.OutputDir)
	assert.Empty(t, cfg.MassiveAPIKey)
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvMassiveAPIKey, " secret ")
	t.Setenv(EnvPort, ":9090")
	t.Setenv(EnvDataDir, "/srv/bars")

	path := writeFile(t, t.TempDir(), "cfg.json", `{"underlying": "spy", "data_dir": "./bars"}`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "secret", cfg.MassiveAPIKey)
	assert.Equal(t, ":9090", cfg.Port)
	assert.Equal(t, "/srv/bars", cfg.DataDir)
	assert.Equal(t, int64(DefaultSeed), cfg.Seed)
}

func TestLoadErrors(t *testing.T) {
	clearEnv(t)
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	path := writeFile(t, t.TempDir(), "bad.json", `{"underlying": `)
	_, err = Load(path)
	assert.Error(t, err)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, pricing.NameBlackScholes, cfg.Model)
}

func TestLoadEnvFile(t *testing.T) {
	clearEnv(t)
	os.Unsetenv(EnvMassiveAPIKey)
	dir := t.TempDir()
	env := writeFile(t, dir, ".env", "MASSIVE_API_KEY=from-dotenv\n")

	require.NoError(t, LoadEnv(filepath.Join(dir, "absent.env"), env))
	t.Cleanup(func() { os.Unsetenv(EnvMassiveAPIKey) })

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", cfg.MassiveAPIKey)
}

func TestProviderChain(t *testing.T) {
	ctx := context.Background()
	from := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC)

	cfg := &Config{Seed: 3}
	prov, closeFn, err := cfg.Provider()
	require.NoError(t, err)
	assert.Nil(t, prov.Secondary())
	assert.NoError(t, closeFn())

	// a CSV directory without the ticker falls back to synthetic bars
	cfg = &Config{Seed: 3, DataDir: t.TempDir()}
	prov, _, err = cfg.Provider()
	require.NoError(t, err)
	require.NotNil(t, prov.Secondary())
	bars, err := prov.GetBars(ctx, "SPY", from, to)
	require.NoError(t, err)
	assert.NotEmpty(t, bars)

	cfg = &Config{Seed: 3, DBPath: filepath.Join(t.TempDir(), "bars.db")}
	prov, closeFn, err = cfg.Provider()
	require.NoError(t, err)
	defer closeFn()
	store, ok := prov.(*data.SQLiteStore)
	require.True(t, ok)
	cached, err := store.GetBars(ctx, "SPY", from, to)
	require.NoError(t, err)
	assert.Len(t, cached, len(bars))
}

func TestLoadExampleConfig(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join("..", "..", "configs", "spy_call.json"))
	require.NoError(t, err)
	assert.Equal(t, "SPY", cfg.Underlying)
	assert.Equal(t, data.MatchLower, cfg.MatchType)
	assert.True(t, cfg.Boundary)
	require.NotNil(t, cfg.Option.MarketPrice)
	assert.Equal(t, 2.1, *cfg.Option.MarketPrice)
	assert.Equal(t, 41, cfg.Profile.Points)
	assert.Equal(t, "ATM:+5%", cfg.Option.StrikeExpr)
	assert.Equal(t, "./cache/bars.db", cfg.DBPath)
}
