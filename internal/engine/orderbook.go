package engine

import (
	"errors"
	"fmt"
	"math"

	. "cdasim/internal/common"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/tidwall/btree"
)

var (
	ErrInvalidOrder = errors.New("invalid order")
	ErrNoOrders     = errors.New("no orders submitted")
)

var two = decimal.NewFromInt(2)

type Orders = btree.BTreeG[*Order]

// OrderBook is a continuous double auction with a single-match policy: an
// incoming order trades against at most one resting order.
//
// The book is not safe for concurrent use. It is driven by exactly one
// simulation process at a time.
type OrderBook struct {
	// Fundamental price used for valuation until both sides are quoted.
	p0 decimal.Decimal

	// Resting orders, best first.
	bids *Orders
	asks *Orders

	nextID uint64
	logger zerolog.Logger

	history History
}

// bidLess orders bids by descending price, then ascending submission time,
// then ascending id. The descending direction is what puts the highest bid
// at Min().
func bidLess(a, b *Order) bool {
	if c := a.Price.Cmp(b.Price); c != 0 {
		return c > 0
	}
	if a.Time != b.Time {
		return a.Time < b.Time
	}
	return a.ID < b.ID
}

// askLess orders asks by ascending price, then ascending submission time,
// then ascending id.
func askLess(a, b *Order) bool {
	if c := a.Price.Cmp(b.Price); c != 0 {
		return c < 0
	}
	if a.Time != b.Time {
		return a.Time < b.Time
	}
	return a.ID < b.ID
}

func NewOrderBook(p0 decimal.Decimal, logger zerolog.Logger) *OrderBook {
	opts := btree.Options{NoLocks: true}
	return &OrderBook{
		p0:     p0,
		bids:   btree.NewBTreeGOptions(bidLess, opts),
		asks:   btree.NewBTreeGOptions(askLess, opts),
		logger: logger,
	}
}

// NextOrderID hands out ids starting at 1. Ids are never reused.
func (book *OrderBook) NextOrderID() uint64 {
	book.nextID++
	return book.nextID
}

// FundamentalPrice is the configured fallback valuation.
func (book *OrderBook) FundamentalPrice() decimal.Decimal { return book.p0 }

// BestBid returns the highest resting bid. Every call is recorded in the
// observation log, whether or not a bid exists.
func (book *OrderBook) BestBid() (decimal.Decimal, bool) {
	price, ok := topPrice(book.bids)
	book.history.BestBids = append(book.history.BestBids, decimal.NullDecimal{Decimal: price, Valid: ok})
	return price, ok
}

// BestAsk returns the lowest resting ask. Every call is recorded in the
// observation log, whether or not an ask exists.
func (book *OrderBook) BestAsk() (decimal.Decimal, bool) {
	price, ok := topPrice(book.asks)
	book.history.BestAsks = append(book.history.BestAsks, decimal.NullDecimal{Decimal: price, Valid: ok})
	return price, ok
}

func topPrice(orders *Orders) (decimal.Decimal, bool) {
	top, ok := orders.Min()
	if !ok {
		return decimal.Zero, false
	}
	return top.Price, true
}

// Valuation is the midpoint of the top of book, or the fundamental price
// while either side is empty. It leaves the observation logs untouched.
func (book *OrderBook) Valuation() decimal.Decimal {
	bid, bidOk := topPrice(book.bids)
	ask, askOk := topPrice(book.asks)
	if !bidOk || !askOk {
		return book.p0
	}
	return bid.Add(ask).Div(two)
}

// Len returns the number of resting bids and asks.
func (book *OrderBook) Len() (bids int, asks int) {
	return book.bids.Len(), book.asks.Len()
}

// Submit validates the order, records it, and then either matches it against
// the best resting order on the other side or rests it in the book. A state
// snapshot is recorded after every accepted order.
//
// Invalid orders are rejected before anything is mutated.
func (book *OrderBook) Submit(order *Order) error {
	if err := validate(order); err != nil {
		return err
	}

	quote := Quote{Price: order.Price, Time: order.Time}
	switch order.Side {
	case Buy:
		book.history.Bids = append(book.history.Bids, quote)
		book.match(order, book.asks, book.bids, func(resting *Order) bool {
			return order.Price.GreaterThanOrEqual(resting.Price)
		})
	case Sell:
		book.history.Asks = append(book.history.Asks, quote)
		book.match(order, book.bids, book.asks, func(resting *Order) bool {
			return order.Price.LessThanOrEqual(resting.Price)
		})
	}

	book.history.Orders = append(book.history.Orders, order)
	book.RecordState(order.Time)
	return nil
}

func validate(order *Order) error {
	if order == nil {
		return fmt.Errorf("%w: nil order", ErrInvalidOrder)
	}
	if !order.Side.Valid() {
		return fmt.Errorf("%w: unknown side %v", ErrInvalidOrder, order.Side)
	}
	if !order.Price.IsPositive() {
		return fmt.Errorf("%w: price %s is not positive", ErrInvalidOrder, order.Price)
	}
	if math.IsNaN(order.Time) || math.IsInf(order.Time, 0) || order.Time < 0 {
		return fmt.Errorf("%w: time %v", ErrInvalidOrder, order.Time)
	}
	if order.IsFilled {
		return fmt.Errorf("%w: order %d is already filled", ErrInvalidOrder, order.ID)
	}
	return nil
}

// match takes at most one resting order from the opposite side when the
// incoming order crosses it. Without a cross the order rests on its own side.
//
// Only the top of the opposite side is ever examined, so a matched order is
// never rested and a rested order never crosses: the book cannot be left
// crossed.
func (book *OrderBook) match(order *Order, opposite, own *Orders, crosses func(resting *Order) bool) {
	resting, ok := opposite.Min()
	if !ok || !crosses(resting) {
		own.Set(order)
		return
	}
	opposite.PopMin()

	resting.Fill(order.Time)
	order.Fill(order.Time)

	trade := Trade{
		Price:   resting.Price,
		Time:    order.Time,
		Resting: resting,
		Taker:   order,
	}
	book.history.Trades = append(book.history.Trades, trade)

	book.logger.Debug().
		Str("side", order.Side.String()).
		Uint64("taker", order.ID).
		Uint64("maker", resting.ID).
		Str("price", trade.Price.StringFixed(PricePlaces)).
		Float64("time", trade.Time).
		Msg("trade")
}

// FillRatio is the fraction of all submitted orders that were matched.
// It is undefined, and reported as ErrNoOrders, before any order arrives.
func (book *OrderBook) FillRatio() (float64, error) {
	total := len(book.history.Orders)
	if total == 0 {
		return 0, ErrNoOrders
	}
	filled := 0
	for _, o := range book.history.Orders {
		if o.IsFilled {
			filled++
		}
	}
	return float64(filled) / float64(total), nil
}

// Depth lists the resting bid and ask prices, each best first.
func (book *OrderBook) Depth() Depth {
	depth := Depth{
		Bids: make([]decimal.Decimal, 0, book.bids.Len()),
		Asks: make([]decimal.Decimal, 0, book.asks.Len()),
	}
	book.bids.Scan(func(o *Order) bool {
		depth.Bids = append(depth.Bids, o.Price)
		return true
	})
	book.asks.Scan(func(o *Order) bool {
		depth.Asks = append(depth.Asks, o.Price)
		return true
	})
	return depth
}

// History returns the book's recorded logs. The slices are shared with the
// book and must be treated as read-only.
func (book *OrderBook) History() *History {
	return &book.history
}
