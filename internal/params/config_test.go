package params

import (
	"os"
	"path/filepath"
	"testing"

	"cdasim/internal/market"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, market.DefaultConfig(), cfg.MarketConfig())
	assert.Equal(t, 360.0, cfg.Market.Horizon())
}

func TestLoad_OverlaysDefaults(t *testing.T) {
	path := writeFile(t, "cdasim.yaml", `
market:
  buyers: 3
  buyer_arrival_rate: 2.5
  minutes: 30
  seed: 42
replicate:
  runs: 4
  scenarios: [bull, neutral]
store:
  path: /tmp/runs
log:
  level: debug
  pretty: true
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Market.Buyers)
	assert.Equal(t, 2.5, cfg.Market.BuyerArrivalRate)
	assert.Equal(t, 6, cfg.Market.Hours, "unset keys keep defaults")
	assert.Equal(t, 30, cfg.Market.Minutes)
	assert.Equal(t, uint64(42), cfg.Market.Seed)
	assert.Equal(t, 100.0, cfg.Market.FundamentalPrice)
	assert.Equal(t, 4, cfg.Replicate.Runs)
	assert.Equal(t, "/tmp/runs", cfg.Store.Path)
	assert.True(t, cfg.Log.Pretty)

	level, err := cfg.LogLevel()
	require.NoError(t, err)
	assert.Equal(t, zerolog.DebugLevel, level)

	scenarios, err := cfg.Scenarios()
	require.NoError(t, err)
	require.Len(t, scenarios, 2)
	assert.Equal(t, "neutral", scenarios[0].Name)
	assert.Equal(t, "bull", scenarios[1].Name)
	assert.Equal(t, 3, scenarios[1].Config.Buyers)
	assert.Equal(t, 2.0, scenarios[1].Config.BuyerArrivalRate)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = Load(writeFile(t, "bad.yaml", "market: [1, 2"))
	assert.Error(t, err)
}

func TestApplyEnv_Priority(t *testing.T) {
	env := writeFile(t, ".env", "CDASIM_SEED=7\nCDASIM_RUNS=3\nCDASIM_LOG_LEVEL=warn\n")
	// Already present in the environment, so the .env value is ignored.
	t.Setenv("CDASIM_RUNS", "9")
	t.Setenv("CDASIM_SELLER_RATE", "0.5")
	t.Setenv("CDASIM_LOG_PRETTY", "true")
	t.Setenv("CDASIM_SCENARIOS", "bear")

	cfg := Default()
	require.NoError(t, cfg.ApplyEnv(env))
	t.Cleanup(func() {
		os.Unsetenv("CDASIM_SEED")
		os.Unsetenv("CDASIM_LOG_LEVEL")
	})

	assert.Equal(t, uint64(7), cfg.Market.Seed)
	assert.Equal(t, 9, cfg.Replicate.Runs)
	assert.Equal(t, 0.5, cfg.Market.SellerArrivalRate)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.True(t, cfg.Log.Pretty)
	assert.Equal(t, []string{"bear"}, cfg.Replicate.Scenarios)
}

func TestApplyEnv_MissingFileIsFine(t *testing.T) {
	cfg := Default()
	assert.NoError(t, cfg.ApplyEnv(filepath.Join(t.TempDir(), "none.env")))
	assert.Equal(t, Default(), cfg)
}

func TestApplyEnv_BadValue(t *testing.T) {
	t.Setenv("CDASIM_BUYERS", "many")
	cfg := Default()
	assert.ErrorIs(t, cfg.ApplyEnv(filepath.Join(t.TempDir(), "none.env")), market.ErrConfiguration)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"no runs", func(c *Config) { c.Replicate.Runs = 0 }},
		{"negative workers", func(c *Config) { c.Replicate.Workers = -1 }},
		{"bad level", func(c *Config) { c.Log.Level = "loud" }},
		{"unknown scenario", func(c *Config) { c.Replicate.Scenarios = []string{"sideways"} }},
		{"bad market", func(c *Config) { c.Market.Hours, c.Market.Minutes = 0, 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(&cfg)
			assert.ErrorIs(t, cfg.Validate(), market.ErrConfiguration)
		})
	}
}
