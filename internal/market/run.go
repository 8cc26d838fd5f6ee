package market

import (
	"context"
	"errors"
	"fmt"

	. "cdasim/internal/common"
	"cdasim/internal/engine"
	"cdasim/internal/sampling"
	"cdasim/internal/sim"
	"cdasim/internal/trader"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var ErrAlreadyExecuted = errors.New("run already executed")

// Distributions supplies the noise and arrival samplers of the index-th
// trader on a side.
type Distributions func(side Side, index int) (noise, arrival sampling.Distribution)

type Option func(*Run)

// WithLogger sets the logger; every event carries the run id.
func WithLogger(logger zerolog.Logger) Option {
	return func(r *Run) { r.logger = logger }
}

// WithDistributions replaces the seeded exponential/uniform samplers.
func WithDistributions(d Distributions) Option {
	return func(r *Run) { r.distributions = d }
}

// Run is one simulation: a clock, a book and a population of traders.
// Nothing is shared between runs, so runs may execute in parallel.
type Run struct {
	id            uuid.UUID
	cfg           Config
	clock         *sim.Clock
	book          *engine.OrderBook
	traders       []*trader.Trader
	distributions Distributions
	logger        zerolog.Logger
	executed      bool
}

// New validates cfg and wires the run. No simulated time passes here.
func New(cfg Config, opts ...Option) (*Run, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	p0, err := RoundPrice(cfg.FundamentalPrice)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	r := &Run{
		id:     uuid.New(),
		cfg:    cfg,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.distributions == nil {
		r.distributions = seededDistributions(cfg)
	}
	r.logger = r.logger.With().Str("run", r.id.String()).Logger()

	r.clock = sim.NewClock(r.logger)
	r.book = engine.NewOrderBook(p0, r.logger)

	for i := range cfg.Buyers {
		noise, arrival := r.distributions(Buy, i)
		r.traders = append(r.traders, trader.NewBuyer(fmt.Sprintf("buy_%d", i), noise, arrival, r.book))
	}
	for i := range cfg.Sellers {
		noise, arrival := r.distributions(Sell, i)
		r.traders = append(r.traders, trader.NewSeller(fmt.Sprintf("sell_%d", i), noise, arrival, r.book))
	}
	return r, nil
}

// seededDistributions draws every trader's samples from one generator seeded
// by cfg.Seed, so a run is fully determined by its configuration.
func seededDistributions(cfg Config) Distributions {
	rng := sampling.NewSource(cfg.Seed)
	spread := cfg.FundamentalPrice * cfg.NoiseLevel
	return func(side Side, _ int) (sampling.Distribution, sampling.Distribution) {
		rate := cfg.BuyerArrivalRate
		if side == Sell {
			rate = cfg.SellerArrivalRate
		}
		return sampling.Uniform(rng, -spread, spread), sampling.Exponential(rng, rate)
	}
}

func (r *Run) ID() uuid.UUID { return r.id }

// Book exposes the run's order book, mainly for inspection in tests.
func (r *Run) Book() *engine.OrderBook { return r.book }

// Execute starts every trader and advances the clock to the horizon.
func (r *Run) Execute(ctx context.Context) (*Result, error) {
	if r.executed {
		return nil, ErrAlreadyExecuted
	}
	r.executed = true

	for _, t := range r.traders {
		if err := t.Start(r.clock); err != nil {
			return nil, fmt.Errorf("start %s: %w", t.ID(), err)
		}
	}

	horizon := r.cfg.Horizon()
	r.logger.Info().
		Int("buyers", r.cfg.Buyers).
		Int("sellers", r.cfg.Sellers).
		Float64("horizon", horizon).
		Uint64("seed", r.cfg.Seed).
		Msg("run starting")

	if err := r.clock.Run(ctx, horizon); err != nil {
		r.logger.Error().Err(err).Msg("run aborted")
		return nil, err
	}

	result := &Result{
		ID:      r.id,
		Config:  r.cfg,
		Horizon: horizon,
		Events:  r.clock.Processed(),
		History: r.book.History(),
		Depth:   r.book.Depth(),
		book:    r.book,
	}

	event := r.logger.Info().
		Int("orders", len(result.History.Orders)).
		Int("trades", len(result.History.Trades))
	if ratio, err := result.FillRatio(); err == nil {
		event = event.Float64("fill_ratio", ratio)
	}
	event.Msg("run finished")

	return result, nil
}

// Simulate builds and executes a run in one call.
func Simulate(ctx context.Context, cfg Config, opts ...Option) (*Result, error) {
	run, err := New(cfg, opts...)
	if err != nil {
		return nil, err
	}
	return run.Execute(ctx)
}
