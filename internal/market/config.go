package market

import (
	"errors"
	"fmt"
	"math"
)

var ErrConfiguration = errors.New("configuration error")

// Config describes one market run. Arrival rates are per trader, in arrivals
// per minute; the horizon is measured in minutes.
type Config struct {
	FundamentalPrice  float64 `yaml:"fundamental_price" json:"fundamental_price"`
	NoiseLevel        float64 `yaml:"noise_level" json:"noise_level"` // Noise is uniform on ±FundamentalPrice*NoiseLevel
	Buyers            int     `yaml:"buyers" json:"buyers"`
	Sellers           int     `yaml:"sellers" json:"sellers"`
	BuyerArrivalRate  float64 `yaml:"buyer_arrival_rate" json:"buyer_arrival_rate"`
	SellerArrivalRate float64 `yaml:"seller_arrival_rate" json:"seller_arrival_rate"`
	Hours             int     `yaml:"hours" json:"hours"`
	Minutes           int     `yaml:"minutes" json:"minutes"`
	Seed              uint64  `yaml:"seed" json:"seed"`
}

// DefaultConfig is a balanced market: one buyer and one seller each arriving
// once a minute on average over a six hour session.
func DefaultConfig() Config {
	return Config{
		FundamentalPrice:  100,
		NoiseLevel:        0.02,
		Buyers:            1,
		Sellers:           1,
		BuyerArrivalRate:  1,
		SellerArrivalRate: 1,
		Hours:             6,
	}
}

// Horizon is the simulated-time cutoff in minutes.
func (c Config) Horizon() float64 {
	return float64(c.Hours*60 + c.Minutes)
}

// Validate reports the first problem that would make the run meaningless.
func (c Config) Validate() error {
	switch {
	case !positive(c.FundamentalPrice):
		return fmt.Errorf("%w: fundamental price must be positive, got %v", ErrConfiguration, c.FundamentalPrice)
	case math.IsNaN(c.NoiseLevel) || math.IsInf(c.NoiseLevel, 0) || c.NoiseLevel < 0:
		return fmt.Errorf("%w: noise level must be non-negative, got %v", ErrConfiguration, c.NoiseLevel)
	case c.Buyers < 0 || c.Sellers < 0:
		return fmt.Errorf("%w: negative population (%d buyers, %d sellers)", ErrConfiguration, c.Buyers, c.Sellers)
	case c.Buyers+c.Sellers == 0:
		return fmt.Errorf("%w: no traders", ErrConfiguration)
	case c.Buyers > 0 && !positive(c.BuyerArrivalRate):
		return fmt.Errorf("%w: buyer arrival rate must be positive, got %v", ErrConfiguration, c.BuyerArrivalRate)
	case c.Sellers > 0 && !positive(c.SellerArrivalRate):
		return fmt.Errorf("%w: seller arrival rate must be positive, got %v", ErrConfiguration, c.SellerArrivalRate)
	case c.Hours < 0 || c.Minutes < 0 || c.Horizon() <= 0:
		return fmt.Errorf("%w: horizon must be positive, got %dh%dm", ErrConfiguration, c.Hours, c.Minutes)
	}
	return nil
}

func positive(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0) && f > 0
}
