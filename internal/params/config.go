// Package params loads simulator settings.
//
// Priority: ENV > .env file > YAML file > defaults
package params

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"runtime"
	"slices"
	"strconv"
	"strings"

	"cdasim/internal/market"
	"cdasim/internal/replicate"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

type Replicate struct {
	Runs    int `yaml:"runs"`
	Workers int `yaml:"workers"`
	// Names of the scenarios to run. Empty runs all of them.
	Scenarios []string `yaml:"scenarios"`
}

type Store struct {
	Path string `yaml:"path"` // Empty disables persistence
}

type Log struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

type Config struct {
	Market    market.Config `yaml:"market"`
	Replicate Replicate     `yaml:"replicate"`
	Store     Store         `yaml:"store"`
	Log       Log           `yaml:"log"`
}

func Default() Config {
	return Config{
		Market: market.DefaultConfig(),
		Replicate: Replicate{
			Runs:    10,
			Workers: runtime.NumCPU(),
		},
		Log: Log{Level: "info"},
	}
}

// Load reads a YAML file over the defaults. Keys missing from the file keep
// their default value.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv loads the .env file at envPath (or ./.env when empty), if it
// exists, and overrides cfg from CDASIM_* environment variables. Variables
// already set in the environment win over the .env file.
func (cfg *Config) ApplyEnv(envPath string) error {
	var err error
	if envPath != "" {
		err = godotenv.Load(envPath)
	} else {
		err = godotenv.Load()
	}
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load env file: %w", err)
	}

	overrides := []struct {
		key string
		set func(string) error
	}{
		{"CDASIM_FUNDAMENTAL_PRICE", float(&cfg.Market.FundamentalPrice)},
		{"CDASIM_NOISE_LEVEL", float(&cfg.Market.NoiseLevel)},
		{"CDASIM_BUYERS", integer(&cfg.Market.Buyers)},
		{"CDASIM_SELLERS", integer(&cfg.Market.Sellers)},
		{"CDASIM_BUYER_RATE", float(&cfg.Market.BuyerArrivalRate)},
		{"CDASIM_SELLER_RATE", float(&cfg.Market.SellerArrivalRate)},
		{"CDASIM_HOURS", integer(&cfg.Market.Hours)},
		{"CDASIM_MINUTES", integer(&cfg.Market.Minutes)},
		{"CDASIM_SEED", func(v string) (err error) {
			cfg.Market.Seed, err = strconv.ParseUint(v, 10, 64)
			return err
		}},
		{"CDASIM_RUNS", integer(&cfg.Replicate.Runs)},
		{"CDASIM_WORKERS", integer(&cfg.Replicate.Workers)},
		{"CDASIM_SCENARIOS", func(v string) error {
			cfg.Replicate.Scenarios = strings.Split(v, ",")
			return nil
		}},
		{"CDASIM_STORE_PATH", func(v string) error {
			cfg.Store.Path = v
			return nil
		}},
		{"CDASIM_LOG_LEVEL", func(v string) error {
			cfg.Log.Level = v
			return nil
		}},
		{"CDASIM_LOG_PRETTY", func(v string) (err error) {
			cfg.Log.Pretty, err = strconv.ParseBool(v)
			return err
		}},
	}

	for _, o := range overrides {
		v, ok := os.LookupEnv(o.key)
		if !ok || v == "" {
			continue
		}
		if err := o.set(v); err != nil {
			return fmt.Errorf("%w: %s=%q: %v", market.ErrConfiguration, o.key, v, err)
		}
	}
	return nil
}

func float(dst *float64) func(string) error {
	return func(v string) (err error) {
		*dst, err = strconv.ParseFloat(v, 64)
		return err
	}
}

func integer(dst *int) func(string) error {
	return func(v string) (err error) {
		*dst, err = strconv.Atoi(v)
		return err
	}
}

func (cfg Config) Validate() error {
	if err := cfg.Market.Validate(); err != nil {
		return err
	}
	if cfg.Replicate.Runs <= 0 {
		return fmt.Errorf("%w: runs must be positive, got %d", market.ErrConfiguration, cfg.Replicate.Runs)
	}
	if cfg.Replicate.Workers < 0 {
		return fmt.Errorf("%w: negative worker count %d", market.ErrConfiguration, cfg.Replicate.Workers)
	}
	if _, err := cfg.LogLevel(); err != nil {
		return err
	}
	_, err := cfg.Scenarios()
	return err
}

func (cfg Config) MarketConfig() market.Config {
	return cfg.Market
}

func (cfg Config) LogLevel() (zerolog.Level, error) {
	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("%w: %v", market.ErrConfiguration, err)
	}
	return level, nil
}

// Scenarios returns the selected default scenarios built on the market
// config, in their standard order.
func (cfg Config) Scenarios() ([]replicate.Scenario, error) {
	all := replicate.DefaultScenarios(cfg.Market)
	if len(cfg.Replicate.Scenarios) == 0 {
		return all, nil
	}

	names := make([]string, len(cfg.Replicate.Scenarios))
	for i, name := range cfg.Replicate.Scenarios {
		names[i] = strings.ToLower(strings.TrimSpace(name))
		if !slices.ContainsFunc(all, func(sc replicate.Scenario) bool { return sc.Name == names[i] }) {
			return nil, fmt.Errorf("%w: unknown scenario %q", market.ErrConfiguration, name)
		}
	}

	var selected []replicate.Scenario
	for _, sc := range all {
		if slices.Contains(names, sc.Name) {
			selected = append(selected, sc)
		}
	}
	return selected, nil
}
