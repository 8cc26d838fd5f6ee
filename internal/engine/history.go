package engine

import (
	"math"

	. "cdasim/internal/common"

	"github.com/shopspring/decimal"
)

// WaitStats summarises wait times over a set of orders. Mean is only
// meaningful when Count > 0.
type WaitStats struct {
	Count int     `json:"count"`
	Mean  float64 `json:"mean"`
}

// Snapshot is the book state right after an order was processed.
type Snapshot struct {
	Time          float64             `json:"time"`
	BestBid       decimal.NullDecimal `json:"best_bid"`
	BestAsk       decimal.NullDecimal `json:"best_ask"`
	Midpoint      decimal.NullDecimal `json:"midpoint"`
	Spread        decimal.NullDecimal `json:"spread"`
	BidQueueSize  int                 `json:"bid_queue_size"`
	AskQueueSize  int                 `json:"ask_queue_size"`
	CompletedWait WaitStats           `json:"completed_wait"`
	OngoingWait   WaitStats           `json:"ongoing_wait"`
	TotalWait     WaitStats           `json:"total_wait"`
}

// Depth is the resting book at a point in time, best price first.
type Depth struct {
	Bids []decimal.Decimal `json:"bids"`
	Asks []decimal.Decimal `json:"asks"`
}

// History holds every append-only log the book keeps.
type History struct {
	Snapshots []Snapshot
	Bids      []Quote
	Asks      []Quote
	Trades    []Trade
	Orders    []*Order

	// Every BestBid/BestAsk observation, in call order.
	BestBids []decimal.NullDecimal
	BestAsks []decimal.NullDecimal
}

// RecordState appends a snapshot taken at the given simulated time.
//
// Wait statistics are recomputed over every order seen so far, so the cost
// grows linearly with the length of the run. This is the hot path of a long
// simulation.
func (book *OrderBook) RecordState(now float64) {
	completed, ongoing, total := waitStats(book.history.Orders, now)

	bid, bidOk := book.BestBid()
	ask, askOk := book.BestAsk()

	snapshot := Snapshot{
		Time:          now,
		BestBid:       decimal.NullDecimal{Decimal: bid, Valid: bidOk},
		BestAsk:       decimal.NullDecimal{Decimal: ask, Valid: askOk},
		BidQueueSize:  book.bids.Len(),
		AskQueueSize:  book.asks.Len(),
		CompletedWait: completed,
		OngoingWait:   ongoing,
		TotalWait:     total,
	}
	if bidOk && askOk {
		snapshot.Midpoint = decimal.NullDecimal{Decimal: bid.Add(ask).Div(two), Valid: true}
		snapshot.Spread = decimal.NullDecimal{Decimal: ask.Sub(bid), Valid: true}
	}
	book.history.Snapshots = append(book.history.Snapshots, snapshot)
}

func waitStats(orders []*Order, now float64) (completed, ongoing, total WaitStats) {
	var completedSum, ongoingSum float64
	for _, o := range orders {
		if o.IsFilled {
			completed.Count++
			completedSum += o.WaitTime(now)
		} else {
			ongoing.Count++
			ongoingSum += o.WaitTime(now)
		}
	}
	total.Count = completed.Count + ongoing.Count
	if completed.Count > 0 {
		completed.Mean = completedSum / float64(completed.Count)
	}
	if ongoing.Count > 0 {
		ongoing.Mean = ongoingSum / float64(ongoing.Count)
	}
	if total.Count > 0 {
		total.Mean = (completedSum + ongoingSum) / float64(total.Count)
	}
	return completed, ongoing, total
}

// Series is the snapshot history laid out column by column. Undefined
// values (an empty side, no orders in a wait bucket) are NaN.
type Series struct {
	Time          []float64
	BestBid       []float64
	BestAsk       []float64
	Midpoint      []float64
	Spread        []float64
	CompletedWait []float64
	OngoingWait   []float64
	TotalWait     []float64
	BidQueueSize  []int
	AskQueueSize  []int
}

// Series converts the snapshots into columns for analysis tools.
func (h *History) Series() Series {
	n := len(h.Snapshots)
	s := Series{
		Time:          make([]float64, n),
		BestBid:       make([]float64, n),
		BestAsk:       make([]float64, n),
		Midpoint:      make([]float64, n),
		Spread:        make([]float64, n),
		CompletedWait: make([]float64, n),
		OngoingWait:   make([]float64, n),
		TotalWait:     make([]float64, n),
		BidQueueSize:  make([]int, n),
		AskQueueSize:  make([]int, n),
	}
	for i, snap := range h.Snapshots {
		s.Time[i] = snap.Time
		s.BestBid[i] = nullFloat(snap.BestBid)
		s.BestAsk[i] = nullFloat(snap.BestAsk)
		s.Midpoint[i] = nullFloat(snap.Midpoint)
		s.Spread[i] = nullFloat(snap.Spread)
		s.CompletedWait[i] = statFloat(snap.CompletedWait)
		s.OngoingWait[i] = statFloat(snap.OngoingWait)
		s.TotalWait[i] = statFloat(snap.TotalWait)
		s.BidQueueSize[i] = snap.BidQueueSize
		s.AskQueueSize[i] = snap.AskQueueSize
	}
	return s
}

var nan = math.NaN()

func nullFloat(d decimal.NullDecimal) float64 {
	if !d.Valid {
		return nan
	}
	return d.Decimal.InexactFloat64()
}

func statFloat(w WaitStats) float64 {
	if w.Count == 0 {
		return nan
	}
	return w.Mean
}
