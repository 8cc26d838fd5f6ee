package market

import (
	"context"
	"fmt"
	"testing"

	. "cdasim/internal/common"
	"cdasim/internal/engine"
	"cdasim/internal/sampling"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Setup & Helpers --------------------------------------------------------

func shortConfig(seed uint64) Config {
	cfg := DefaultConfig()
	cfg.Hours = 0
	cfg.Minutes = 90
	cfg.Seed = seed
	return cfg
}

// fingerprint renders a run's observable output so two runs can be compared
// exactly.
func fingerprint(r *Result) []string {
	var out []string
	for _, s := range r.History.Snapshots {
		out = append(out, fmt.Sprintf("snap %v %v %v %v %v %d %d %v %v %v",
			s.Time, s.BestBid, s.BestAsk, s.Midpoint, s.Spread,
			s.BidQueueSize, s.AskQueueSize, s.CompletedWait, s.OngoingWait, s.TotalWait))
	}
	for _, tr := range r.History.Trades {
		out = append(out, fmt.Sprintf("trade %s %v %d %d", tr.Price, tr.Time, tr.Resting.ID, tr.Taker.ID))
	}
	return out
}

// --- Tests ------------------------------------------------------------------

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	cases := map[string]func(*Config){
		"zero price":         func(c *Config) { c.FundamentalPrice = 0 },
		"negative noise":     func(c *Config) { c.NoiseLevel = -0.1 },
		"negative buyers":    func(c *Config) { c.Buyers = -1 },
		"no traders":         func(c *Config) { c.Buyers, c.Sellers = 0, 0 },
		"zero buyer rate":    func(c *Config) { c.BuyerArrivalRate = 0 },
		"negative sell rate": func(c *Config) { c.SellerArrivalRate = -2 },
		"zero horizon":       func(c *Config) { c.Hours, c.Minutes = 0, 0 },
		"negative minutes":   func(c *Config) { c.Hours, c.Minutes = 1, -5 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrConfiguration)

			_, err := New(cfg)
			assert.ErrorIs(t, err, ErrConfiguration)
		})
	}

	// A side without traders does not need an arrival rate.
	cfg := DefaultConfig()
	cfg.Sellers, cfg.SellerArrivalRate = 0, 0
	assert.NoError(t, cfg.Validate())
}

func TestConfig_Horizon(t *testing.T) {
	cfg := Config{Hours: 6, Minutes: 15}
	assert.Equal(t, 375.0, cfg.Horizon())
}

func TestSimulate_Deterministic(t *testing.T) {
	first, err := Simulate(context.Background(), shortConfig(3))
	require.NoError(t, err)
	second, err := Simulate(context.Background(), shortConfig(3))
	require.NoError(t, err)
	other, err := Simulate(context.Background(), shortConfig(4))
	require.NoError(t, err)

	require.NotEmpty(t, first.History.Snapshots)
	assert.Equal(t, fingerprint(first), fingerprint(second))
	assert.NotEqual(t, fingerprint(first), fingerprint(other))
	assert.NotEqual(t, first.ID, second.ID, "every run gets its own id")
}

func TestSimulate_RespectsHorizon(t *testing.T) {
	result, err := Simulate(context.Background(), shortConfig(11))
	require.NoError(t, err)

	assert.Equal(t, 90.0, result.Horizon)
	assert.Equal(t, uint64(len(result.History.Orders)), result.Events)
	for _, o := range result.History.Orders {
		assert.LessOrEqual(t, o.Time, 90.0)
	}

	// Snapshots are taken in non-decreasing simulated time.
	snaps := result.History.Snapshots
	for i := 1; i < len(snaps); i++ {
		assert.LessOrEqual(t, snaps[i-1].Time, snaps[i].Time)
	}

	ratio, err := result.FillRatio()
	require.NoError(t, err)
	assert.Greater(t, ratio, 0.0)
	assert.LessOrEqual(t, ratio, 1.0)

	bids, asks := len(result.Depth.Bids), len(result.Depth.Asks)
	last := snaps[len(snaps)-1]
	assert.Equal(t, last.BidQueueSize, bids)
	assert.Equal(t, last.AskQueueSize, asks)
}

func TestSimulate_NoArrivalBeforeHorizon(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Hours, cfg.Minutes = 0, 1

	late := func(Side, int) (sampling.Distribution, sampling.Distribution) {
		return sampling.Constant(0), sampling.Constant(5)
	}
	result, err := Simulate(context.Background(), cfg, WithDistributions(late))
	require.NoError(t, err)

	assert.Equal(t, uint64(0), result.Events)
	assert.Empty(t, result.History.Orders)
	assert.Empty(t, result.History.Snapshots)
	assert.Empty(t, result.History.Trades)

	_, err = result.FillRatio()
	assert.ErrorIs(t, err, engine.ErrNoOrders)
}

func TestSimulate_ScriptedMarket(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Hours, cfg.Minutes = 0, 3

	// The buyer bids 101 every 2 minutes, the seller asks 99 every 3.
	scripted := func(side Side, _ int) (sampling.Distribution, sampling.Distribution) {
		if side == Buy {
			return sampling.Constant(1), sampling.Constant(2)
		}
		return sampling.Constant(-1), sampling.Constant(3)
	}
	result, err := Simulate(context.Background(), cfg, WithDistributions(scripted))
	require.NoError(t, err)

	orders := result.History.Orders
	require.Len(t, orders, 2)
	assert.Equal(t, "buy_0", orders[0].InvestorID)
	assert.Equal(t, 2.0, orders[0].Time)
	assert.Equal(t, "sell_0", orders[1].InvestorID)
	assert.Equal(t, 3.0, orders[1].Time)

	require.Len(t, result.History.Trades, 1)
	assert.Equal(t, "101", result.History.Trades[0].Price.String())

	ratio, err := result.FillRatio()
	require.NoError(t, err)
	assert.Equal(t, 1.0, ratio)
}

func TestRun_InvalidArrivalAbortsRun(t *testing.T) {
	broken := func(Side, int) (sampling.Distribution, sampling.Distribution) {
		return sampling.Constant(0), sampling.Sequence(1, -1)
	}
	_, err := Simulate(context.Background(), shortConfig(0), WithDistributions(broken))
	assert.Error(t, err)
}

func TestRun_ExecuteOnce(t *testing.T) {
	run, err := New(shortConfig(1))
	require.NoError(t, err)

	_, err = run.Execute(context.Background())
	require.NoError(t, err)
	_, err = run.Execute(context.Background())
	assert.ErrorIs(t, err, ErrAlreadyExecuted)
}

func TestRun_Population(t *testing.T) {
	cfg := shortConfig(5)
	cfg.Buyers, cfg.Sellers = 3, 2

	result, err := Simulate(context.Background(), cfg)
	require.NoError(t, err)

	seen := map[string]bool{}
	for _, o := range result.History.Orders {
		seen[o.InvestorID] = true
	}
	for _, id := range []string{"buy_0", "buy_1", "buy_2", "sell_0", "sell_1"} {
		assert.True(t, seen[id], "trader %s never arrived", id)
	}
}
