package common

import (
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// PricePlaces is the number of decimal places every order price carries.
const PricePlaces = 2

var ErrNonFinitePrice = errors.New("non-finite price")

type Order struct {
	ID            uint64          // Book-assigned id, strictly increasing
	InvestorID    string          // Who submitted the order
	Price         decimal.Decimal // Limit price, 2 places
	Time          float64         // Simulated time of submission
	Side          Side            // Order side
	IsFilled      bool            // Matched against a counterparty
	ExecutionTime float64         // Simulated time of the match, valid when IsFilled
}

// NewOrder builds an unfilled order.
func NewOrder(id uint64, investorID string, price decimal.Decimal, at float64, side Side) *Order {
	return &Order{
		ID:         id,
		InvestorID: investorID,
		Price:      price,
		Time:       at,
		Side:       side,
	}
}

// Fill stamps the order as executed at the given simulated time.
func (order *Order) Fill(at float64) {
	order.IsFilled = true
	order.ExecutionTime = at
}

// WaitTime is the time the order spent in the book: until execution when
// filled, otherwise until now.
func (order *Order) WaitTime(now float64) float64 {
	if order.IsFilled {
		return order.ExecutionTime - order.Time
	}
	return now - order.Time
}

// RoundPrice converts a float price to a fixed 2-place decimal using
// round-half-even. NaN and infinities are rejected.
func RoundPrice(f float64) (decimal.Decimal, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return decimal.Zero, fmt.Errorf("%w: %v", ErrNonFinitePrice, f)
	}
	return decimal.NewFromFloat(f).RoundBank(PricePlaces), nil
}

func (order Order) String() string {
	execution := "-"
	if order.IsFilled {
		execution = fmt.Sprintf("%.4f", order.ExecutionTime)
	}
	return fmt.Sprintf(
		`ID:            %d
InvestorID:    %s
Side:          %v
Price:         %s
Time:          %.4f
Filled:        %t
ExecutionTime: %s`,
		order.ID,
		order.InvestorID,
		order.Side,
		order.Price.StringFixed(PricePlaces),
		order.Time,
		order.IsFilled,
		execution,
	)
}
