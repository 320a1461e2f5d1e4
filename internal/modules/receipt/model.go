// README: Receipt record produced when a parking session closes.
package receipt

import (
	"time"

	"github.com/google/uuid"

	"park/internal/modules/billing"
	"park/internal/modules/session"
	"park/internal/modules/spot"
	"park/internal/types"
)

type Receipt struct {
	ID          string        `json:"receipt_id"`
	Plate       string        `json:"plate"`
	SpotID      spot.ID       `json:"spot_id"`
	Category    spot.Category `json:"category"`
	EnteredAt   time.Time     `json:"entered_at"`
	ExitedAt    time.Time     `json:"exited_at"`
	Duration    time.Duration `json:"-"`
	Seconds     int64         `json:"duration_seconds"`
	BilledHours int64         `json:"billed_hours"`
	Total       types.Money   `json:"total"`
}

// New converts a closed session and its quote into a receipt.
func New(s session.Session, exitedAt time.Time, q billing.Quote) Receipt {
	return Receipt{
		ID:          uuid.NewString(),
		Plate:       s.Plate,
		SpotID:      s.SpotID,
		Category:    s.Category,
		EnteredAt:   s.EnteredAt,
		ExitedAt:    exitedAt,
		Duration:    q.Duration,
		Seconds:     q.Seconds,
		BilledHours: q.BilledHours,
		Total:       q.Total,
	}
}
