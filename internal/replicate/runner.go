// Package replicate repeats market runs across seeds and parameter sets on a
// pool of workers and reduces each run to a summary.
package replicate

import (
	"context"
	"fmt"

	"cdasim/internal/market"

	"github.com/rs/zerolog"
	tomb "gopkg.in/tomb.v2"
)

type Scenario struct {
	Name   string        `yaml:"name"`
	Config market.Config `yaml:"config"`
}

// DefaultScenarios derives the neutral, bull and bear markets from base by
// varying the buyer and seller arrival rates.
func DefaultScenarios(base market.Config) []Scenario {
	with := func(name string, buyRate, sellRate float64) Scenario {
		cfg := base
		cfg.BuyerArrivalRate = buyRate
		cfg.SellerArrivalRate = sellRate
		return Scenario{Name: name, Config: cfg}
	}
	return []Scenario{
		with("neutral", 1, 1),
		with("bull", 2, 1),
		with("bear", 1, 2),
	}
}

// ResultHook observes every finished run. It is called from worker
// goroutines and must be safe for concurrent use.
type ResultHook func(scenario string, result *market.Result) error

// Report is the outcome of replicating one scenario.
type Report struct {
	Scenario string
	Runs     []Summary // Indexed by replication number
	Mean     Summary
	StdErr   Summary
}

type Runner struct {
	runs   int
	pool   WorkerPool
	hook   ResultHook
	logger zerolog.Logger
}

func NewRunner(runs, workers int, logger zerolog.Logger) *Runner {
	return &Runner{
		runs:   runs,
		pool:   NewWorkerPool(workers, logger),
		logger: logger,
	}
}

// OnResult registers a hook called with every finished run.
func (r *Runner) OnResult(hook ResultHook) {
	r.hook = hook
}

// Replicate runs the scenario once per replication. Replication i is seeded
// with the scenario seed plus i.
func (r *Runner) Replicate(ctx context.Context, sc Scenario) (*Report, error) {
	if r.runs <= 0 {
		return nil, fmt.Errorf("%w: %d replications", market.ErrConfiguration, r.runs)
	}
	if err := sc.Config.Validate(); err != nil {
		return nil, fmt.Errorf("scenario %s: %w", sc.Name, err)
	}

	logger := r.logger.With().Str("scenario", sc.Name).Logger()
	summaries := make([]Summary, r.runs)

	err := r.pool.Run(ctx, r.runs, func(t *tomb.Tomb, task int) error {
		cfg := sc.Config
		cfg.Seed = sc.Config.Seed + uint64(task)

		result, err := market.Simulate(t.Context(ctx), cfg, market.WithLogger(logger))
		if err != nil {
			return fmt.Errorf("scenario %s replication %d: %w", sc.Name, task, err)
		}
		if r.hook != nil {
			if err := r.hook(sc.Name, result); err != nil {
				return fmt.Errorf("scenario %s replication %d: %w", sc.Name, task, err)
			}
		}

		summary, err := Summarize(result)
		if err != nil {
			return fmt.Errorf("scenario %s replication %d: %w", sc.Name, task, err)
		}
		// Each task owns its own slot.
		summaries[task] = summary
		return nil
	})
	if err != nil {
		return nil, err
	}

	report := &Report{Scenario: sc.Name, Runs: summaries}
	report.Mean, report.StdErr = Aggregate(summaries)

	logger.Info().
		Int("runs", r.runs).
		Float64("fill_ratio", report.Mean.FillRatio).
		Float64("spread", report.Mean.Spread).
		Msg("scenario replicated")
	return report, nil
}

// ReplicateAll replicates each scenario in turn.
func (r *Runner) ReplicateAll(ctx context.Context, scenarios []Scenario) ([]*Report, error) {
	reports := make([]*Report, 0, len(scenarios))
	for _, sc := range scenarios {
		report, err := r.Replicate(ctx, sc)
		if err != nil {
			return nil, err
		}
		reports = append(reports, report)
	}
	return reports, nil
}
