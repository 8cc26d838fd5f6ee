package replicate

import (
	"fmt"
	"math"

	"cdasim/internal/market"
)

// Summary reduces one run to the time average of each snapshot series,
// skipping instants where a value was undefined, plus the run's fill ratio.
type Summary struct {
	BestBid       float64 `json:"best_bid"`
	BestAsk       float64 `json:"best_ask"`
	Midpoint      float64 `json:"midpoint"`
	Spread        float64 `json:"spread"`
	CompletedWait float64 `json:"completed_wait"`
	OngoingWait   float64 `json:"ongoing_wait"`
	TotalWait     float64 `json:"total_wait"`
	BidQueueSize  float64 `json:"bid_queue_size"`
	AskQueueSize  float64 `json:"ask_queue_size"`
	FillRatio     float64 `json:"fill_ratio"`
}

// MetricNames lists the summary fields in the order Metrics returns them.
var MetricNames = []string{
	"best_bid", "best_ask", "midpoint", "spread",
	"completed_wait", "ongoing_wait", "total_wait",
	"bid_queue_size", "ask_queue_size", "fill_ratio",
}

// Metrics returns the summary values in MetricNames order.
func (s Summary) Metrics() []float64 {
	return []float64{
		s.BestBid, s.BestAsk, s.Midpoint, s.Spread,
		s.CompletedWait, s.OngoingWait, s.TotalWait,
		s.BidQueueSize, s.AskQueueSize, s.FillRatio,
	}
}

func summaryFromMetrics(m []float64) Summary {
	return Summary{
		BestBid:       m[0],
		BestAsk:       m[1],
		Midpoint:      m[2],
		Spread:        m[3],
		CompletedWait: m[4],
		OngoingWait:   m[5],
		TotalWait:     m[6],
		BidQueueSize:  m[7],
		AskQueueSize:  m[8],
		FillRatio:     m[9],
	}
}

// Summarize reduces a finished run. A run that never saw an order has no
// fill ratio and is reported as an error.
func Summarize(result *market.Result) (Summary, error) {
	ratio, err := result.FillRatio()
	if err != nil {
		return Summary{}, fmt.Errorf("run %s: %w", result.ID, err)
	}

	s := result.History.Series()
	return Summary{
		BestBid:       mean(s.BestBid),
		BestAsk:       mean(s.BestAsk),
		Midpoint:      mean(s.Midpoint),
		Spread:        mean(s.Spread),
		CompletedWait: mean(s.CompletedWait),
		OngoingWait:   mean(s.OngoingWait),
		TotalWait:     mean(s.TotalWait),
		BidQueueSize:  meanInt(s.BidQueueSize),
		AskQueueSize:  meanInt(s.AskQueueSize),
		FillRatio:     ratio,
	}, nil
}

// Aggregate averages summaries metric by metric and reports the standard
// error of each mean. Undefined (NaN) entries are skipped.
func Aggregate(summaries []Summary) (avg Summary, stderr Summary) {
	columns := make([][]float64, len(MetricNames))
	for _, s := range summaries {
		for i, v := range s.Metrics() {
			columns[i] = append(columns[i], v)
		}
	}

	means := make([]float64, len(MetricNames))
	errs := make([]float64, len(MetricNames))
	for i, col := range columns {
		means[i], errs[i] = meanStdErr(col)
	}
	return summaryFromMetrics(means), summaryFromMetrics(errs)
}

func mean(values []float64) float64 {
	m, _ := meanStdErr(values)
	return m
}

func meanInt(values []int) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	sum := 0
	for _, v := range values {
		sum += v
	}
	return float64(sum) / float64(len(values))
}

// meanStdErr skips NaN values. The standard error needs at least two values.
func meanStdErr(values []float64) (float64, float64) {
	n, sum := 0, 0.0
	for _, v := range values {
		if math.IsNaN(v) {
			continue
		}
		n++
		sum += v
	}
	if n == 0 {
		return math.NaN(), math.NaN()
	}
	m := sum / float64(n)
	if n < 2 {
		return m, math.NaN()
	}

	ss := 0.0
	for _, v := range values {
		if math.IsNaN(v) {
			continue
		}
		ss += (v - m) * (v - m)
	}
	sd := math.Sqrt(ss / float64(n-1))
	return m, sd / math.Sqrt(float64(n))
}
