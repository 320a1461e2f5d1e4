// README: Billing engine computes session fees (ceil-to-hour, per-session minimum charge).
package billing

import (
	"fmt"
	"time"

	"park/internal/modules/spot"
	"park/internal/types"
)

// Engine holds only read-only state after construction and needs no locking.
type Engine struct {
	rates     RateTable
	minCharge types.Money
}

// NewEngine validates that every category has a rate. A missing rate is a
// configuration fault and is reported at startup rather than on first exit.
func NewEngine(rates RateTable, minCharge types.Money) (*Engine, error) {
	if minCharge.Amount < 0 {
		return nil, ErrNegativeAmount
	}
	copied := make(RateTable, len(rates))
	for _, c := range spot.Categories {
		r, ok := rates[c]
		if !ok {
			return nil, fmt.Errorf("no rate for %q: %w", c, ErrUnknownCategory)
		}
		if r.Amount < 0 {
			return nil, fmt.Errorf("rate for %q: %w", c, ErrNegativeAmount)
		}
		if r.Currency != minCharge.Currency {
			return nil, fmt.Errorf("rate for %q is %s, minimum charge is %s: %w", c, r.Currency, minCharge.Currency, ErrCurrencyMismatch)
		}
		copied[c] = r
	}
	for c := range rates {
		if !c.Valid() {
			return nil, fmt.Errorf("rate for %q: %w", c, ErrUnknownCategory)
		}
	}
	return &Engine{rates: copied, minCharge: minCharge}, nil
}

// Compute prices a session: every started hour is billed in full and the
// total never drops below the minimum charge. Sub-second remainders are ignored.
func (e *Engine) Compute(c spot.Category, d time.Duration) (Quote, error) {
	rate, ok := e.rates[c]
	if !ok {
		return Quote{}, ErrUnknownCategory
	}
	if d < 0 {
		return Quote{}, ErrNegativeDuration
	}
	secs := int64(d / time.Second)
	hours := (secs + secondsPerHour - 1) / secondsPerHour
	raw := rate.Times(hours)
	total := raw.Max(e.minCharge)
	return Quote{
		Category:    c,
		Duration:    d,
		Seconds:     secs,
		BilledHours: hours,
		Rate:        rate,
		Raw:         raw,
		Total:       total,
		MinApplied:  total.Amount > raw.Amount,
	}, nil
}

func (e *Engine) Rate(c spot.Category) (types.Money, error) {
	r, ok := e.rates[c]
	if !ok {
		return types.Money{}, ErrUnknownCategory
	}
	return r, nil
}

func (e *Engine) MinCharge() types.Money {
	return e.minCharge
}

// Rates returns a copy of the rate table.
func (e *Engine) Rates() RateTable {
	out := make(RateTable, len(e.rates))
	for c, r := range e.rates {
		out[c] = r
	}
	return out
}
