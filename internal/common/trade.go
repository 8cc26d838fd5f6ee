package common

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Trade accounts for the incoming order and the resting order it matched.
// The trade happens at the resting order's price.
type Trade struct {
	Price   decimal.Decimal
	Time    float64
	Resting *Order
	Taker   *Order
}

func (t Trade) String() string {
	return fmt.Sprintf(
		`Resting: [
%s]
Taker:   [
%s]
Time:    %.4f
Price:   %s`,
		t.Resting.String(),
		t.Taker.String(),
		t.Time,
		t.Price.StringFixed(PricePlaces),
	)
}

// Quote is a submitted price at a point in simulated time.
type Quote struct {
	Price decimal.Decimal `json:"price"`
	Time  float64         `json:"time"`
}
