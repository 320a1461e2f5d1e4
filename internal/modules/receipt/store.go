// README: Receipt archive backed by PostgreSQL.
package receipt

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"park/internal/modules/spot"
)

type PGStore struct {
	db *pgxpool.Pool
}

func NewPGStore(db *pgxpool.Pool) *PGStore {
	return &PGStore{db: db}
}

// Insert is idempotent on the receipt id so retried writes never duplicate rows.
func (s *PGStore) Insert(ctx context.Context, r Receipt) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO receipts (
			id, plate, spot_id, category,
			entered_at, exited_at, duration_seconds, billed_hours,
			total_amount, currency
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7, $8,
			$9, $10
		)
		ON CONFLICT (id) DO NOTHING`,
		r.ID,
		r.Plate,
		int(r.SpotID),
		string(r.Category),
		r.EnteredAt,
		r.ExitedAt,
		r.Seconds,
		r.BilledHours,
		r.Total.Amount,
		r.Total.Currency,
	)
	return err
}

func (s *PGStore) ListByPlate(ctx context.Context, plate string) ([]Receipt, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, plate, spot_id, category,
		       entered_at, exited_at, duration_seconds, billed_hours,
		       total_amount, currency
		FROM receipts
		WHERE plate = $1
		ORDER BY exited_at, id`, plate,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Receipt{}
	for rows.Next() {
		var r Receipt
		var spotID int
		var category string
		if err := rows.Scan(
			&r.ID, &r.Plate, &spotID, &category,
			&r.EnteredAt, &r.ExitedAt, &r.Seconds, &r.BilledHours,
			&r.Total.Amount, &r.Total.Currency,
		); err != nil {
			return nil, err
		}
		r.SpotID = spot.ID(spotID)
		r.Category = spot.Category(category)
		r.Duration = time.Duration(r.Seconds) * time.Second
		out = append(out, r)
	}
	return out, rows.Err()
}
