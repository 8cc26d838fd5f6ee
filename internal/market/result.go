package market

import (
	"cdasim/internal/engine"

	"github.com/google/uuid"
)

// Result is everything a finished run hands to downstream analysis.
type Result struct {
	ID      uuid.UUID
	Config  Config
	Horizon float64
	Events  uint64 // Trader resumptions processed before the horizon

	History *engine.History
	Depth   engine.Depth // Resting book when the horizon was reached

	book *engine.OrderBook
}

// FillRatio is the fraction of submitted orders that traded. A run without
// any order reports engine.ErrNoOrders.
func (r *Result) FillRatio() (float64, error) {
	return r.book.FillRatio()
}
