// Package trader implements the buyer and seller processes of the market:
// each one repeatedly waits a sampled delay, prices an order off the book's
// valuation, and submits it.
package trader

import (
	"fmt"
	"math"

	. "cdasim/internal/common"
	"cdasim/internal/engine"
	"cdasim/internal/sampling"
	"cdasim/internal/sim"

	"github.com/shopspring/decimal"
)

// Book is the part of the order book a trader relies on.
type Book interface {
	Valuation() decimal.Decimal
	NextOrderID() uint64
	Submit(order *Order) error
}

// PriceMapping turns the book valuation and a noise sample into a limit price.
type PriceMapping func(valuation decimal.Decimal, noise float64) (decimal.Decimal, error)

// Noisy prices at valuation + noise, rounded to 2 places.
func Noisy(valuation decimal.Decimal, noise float64) (decimal.Decimal, error) {
	if math.IsNaN(noise) || math.IsInf(noise, 0) {
		return decimal.Zero, fmt.Errorf("%w: noise %v", engine.ErrInvalidOrder, noise)
	}
	return valuation.Add(decimal.NewFromFloat(noise)).RoundBank(PricePlaces), nil
}

// Trader is an investor process. Buyers and sellers differ only by the side
// tag and the price mapping they carry.
type Trader struct {
	id       string
	side     Side
	noise    sampling.Distribution
	arrival  sampling.Distribution
	mapPrice PriceMapping
	book     Book

	submitted uint64
}

func New(id string, side Side, mapping PriceMapping, noise, arrival sampling.Distribution, book Book) *Trader {
	return &Trader{
		id:       id,
		side:     side,
		noise:    noise,
		arrival:  arrival,
		mapPrice: mapping,
		book:     book,
	}
}

func NewBuyer(id string, noise, arrival sampling.Distribution, book Book) *Trader {
	return New(id, Buy, Noisy, noise, arrival, book)
}

func NewSeller(id string, noise, arrival sampling.Distribution, book Book) *Trader {
	return New(id, Sell, Noisy, noise, arrival, book)
}

func (t *Trader) ID() string { return t.id }

func (t *Trader) Side() Side { return t.side }

// Submitted is the number of orders this trader has placed.
func (t *Trader) Submitted() uint64 { return t.submitted }

// Start suspends the trader until its first arrival.
func (t *Trader) Start(clock *sim.Clock) error {
	return clock.ScheduleAfter(t, t.arrival.Sample())
}

// Resume runs one arrival: price an order, submit it, and suspend until the
// next sampled arrival.
func (t *Trader) Resume(clock *sim.Clock) error {
	noise := t.noise.Sample()
	price, err := t.mapPrice(t.book.Valuation(), noise)
	if err != nil {
		return err
	}

	order := NewOrder(t.book.NextOrderID(), t.id, price, clock.Now(), t.side)
	if err := t.book.Submit(order); err != nil {
		return err
	}
	t.submitted++

	return clock.ScheduleAfter(t, t.arrival.Sample())
}
