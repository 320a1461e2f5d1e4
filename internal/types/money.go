// README: Common money value object used across modules (amounts in minor units).
package types

import (
	"fmt"
	"math"
)

// DefaultCurrency is used when the facility config does not name one.
const DefaultCurrency = "USD"

type Money struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

// FromMajor converts a major-unit value such as 5.25 into minor units, rounding to the nearest cent.
func FromMajor(v float64, currency string) Money {
	return Money{Amount: int64(math.Round(v * 100)), Currency: currency}
}

func (m Money) Times(n int64) Money {
	return Money{Amount: m.Amount * n, Currency: m.Currency}
}

// Max returns the larger amount; ties keep m.
func (m Money) Max(o Money) Money {
	if o.Amount > m.Amount {
		return o
	}
	return m
}

func (m Money) Major() float64 {
	return float64(m.Amount) / 100
}

func (m Money) String() string {
	sign := ""
	a := m.Amount
	if a < 0 {
		sign = "-"
		a = -a
	}
	return fmt.Sprintf("%s%d.%02d %s", sign, a/100, a%100, m.Currency)
}
