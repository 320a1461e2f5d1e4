// README: Billing rate table and quote definitions for each spot category.
package billing

import (
	"errors"
	"time"

	"park/internal/modules/spot"
	"park/internal/types"
)

const secondsPerHour = 3600

var (
	ErrUnknownCategory  = spot.ErrUnknownCategory
	ErrNegativeDuration = errors.New("duration must not be negative")
	ErrNegativeAmount   = errors.New("rate and minimum charge must not be negative")
	ErrCurrencyMismatch = errors.New("rates and minimum charge use different currencies")
)

// RateTable maps each category to its price per started hour.
type RateTable map[spot.Category]types.Money

type Quote struct {
	Category    spot.Category `json:"category"`
	Duration    time.Duration `json:"-"`
	Seconds     int64         `json:"duration_seconds"`
	BilledHours int64         `json:"billed_hours"`
	Rate        types.Money   `json:"rate"`
	Raw         types.Money   `json:"raw"`
	Total       types.Money   `json:"total"`
	MinApplied  bool          `json:"min_applied"`
}
