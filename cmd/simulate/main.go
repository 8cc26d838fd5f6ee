package main

import (
	"context"
	"flag"
	"fmt"
	"math"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"cdasim/internal/market"
	"cdasim/internal/params"
	"cdasim/internal/replicate"
	"cdasim/internal/store"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	// CLI Parameter Parsing
	configPath := flag.String("config", "", "YAML config file (optional)")
	envPath := flag.String("env", "", ".env file (default ./.env if present)")
	mode := flag.String("mode", "replicate", "What to run: ['single', 'replicate']")

	// Overrides, applied after the config file and the environment
	runs := flag.Int("runs", 0, "Replications per scenario")
	workers := flag.Int("workers", -1, "Concurrent replications")
	seed := flag.Int64("seed", -1, "Base seed")
	scenarios := flag.String("scenarios", "", "Comma-separated scenarios: neutral,bull,bear")
	storePath := flag.String("store", "", "Pebble directory to persist runs into")

	flag.Parse()

	cfg := params.Default()
	if *configPath != "" {
		var err error
		if cfg, err = params.Load(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}
	if err := cfg.ApplyEnv(*envPath); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if *runs > 0 {
		cfg.Replicate.Runs = *runs
	}
	if *workers >= 0 {
		cfg.Replicate.Workers = *workers
	}
	if *seed >= 0 {
		cfg.Market.Seed = uint64(*seed)
	}
	if *scenarios != "" {
		cfg.Replicate.Scenarios = strings.Split(*scenarios, ",")
	}
	if *storePath != "" {
		cfg.Store.Path = *storePath
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		flag.Usage()
		os.Exit(1)
	}
	setupLogging(cfg.Log)

	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGTERM,
		syscall.SIGINT,
	)
	defer stop()

	if err := run(ctx, cfg, *mode); err != nil {
		log.Error().Err(err).Msg("simulation failed")
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg params.Config, mode string) error {
	var db *store.Store
	if cfg.Store.Path != "" {
		var err error
		if db, err = store.Open(cfg.Store.Path, log.Logger); err != nil {
			return err
		}
		defer db.Close()
	}

	switch strings.ToLower(mode) {
	case "single":
		return runSingle(ctx, cfg, db)
	case "replicate":
		return runReplicate(ctx, cfg, db)
	default:
		return fmt.Errorf("unknown mode: %s", mode)
	}
}

func setupLogging(cfg params.Log) {
	level, _ := zerolog.ParseLevel(cfg.Level)
	zerolog.SetGlobalLevel(level)
	if cfg.Pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
}

func runSingle(ctx context.Context, cfg params.Config, db *store.Store) error {
	result, err := market.Simulate(ctx, cfg.MarketConfig(), market.WithLogger(log.Logger))
	if err != nil {
		return err
	}
	if db != nil {
		if err := db.SaveRun("single", result); err != nil {
			return err
		}
	}

	summary, err := replicate.Summarize(result)
	if err != nil {
		return err
	}
	fmt.Printf("Run %s: %d orders, %d trades, %d events\n",
		result.ID, len(result.History.Orders), len(result.History.Trades), result.Events)
	printSummary(summary, replicate.Summary{})
	fmt.Printf("Resting book: %d bids, %d asks\n", len(result.Depth.Bids), len(result.Depth.Asks))
	return nil
}

func runReplicate(ctx context.Context, cfg params.Config, db *store.Store) error {
	scenarios, err := cfg.Scenarios()
	if err != nil {
		return err
	}

	runner := replicate.NewRunner(cfg.Replicate.Runs, cfg.Replicate.Workers, log.Logger)
	if db != nil {
		runner.OnResult(db.SaveRun)
	}

	reports, err := runner.ReplicateAll(ctx, scenarios)
	if err != nil {
		return err
	}
	for _, report := range reports {
		fmt.Printf("\n[%s] %d runs\n", strings.ToUpper(report.Scenario), len(report.Runs))
		printSummary(report.Mean, report.StdErr)
	}
	return nil
}

// printSummary prints one metric per line, with its standard error when one
// is available.
func printSummary(mean, stderr replicate.Summary) {
	errs := stderr.Metrics()
	for i, v := range mean.Metrics() {
		if errs[i] != 0 && !math.IsNaN(errs[i]) {
			fmt.Printf("  %-15s %10.4f ± %.4f\n", replicate.MetricNames[i], v, errs[i])
		} else {
			fmt.Printf("  %-15s %10.4f\n", replicate.MetricNames[i], v)
		}
	}
}
