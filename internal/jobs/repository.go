package jobs

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/lib/pq"

	"room-reservation-api/internal/booking"
)

// Repository is the database/sql side of the expiry job. It shares the
// reservations table with the API server.
type Repository struct {
	DB *sql.DB
}

var _ booking.ExpiredDeleter = (*Repository)(nil)

func NewRepository(db *sql.DB) *Repository {
	return &Repository{DB: db}
}

// ExpiredReservationIDs returns the ids of reservations that ended at or
// before the cutoff.
func (r *Repository) ExpiredReservationIDs(ctx context.Context, before time.Time) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id FROM reservations WHERE end_at <= $1 ORDER BY end_at`, before)
	if err != nil {
		return nil, fmt.Errorf("error querying expired reservations: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("error scanning reservation id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error after iterating rows: %w", err)
	}
	return ids, nil
}

// DeleteReservations removes the given ids that are still expired at the
// cutoff.
func (r *Repository) DeleteReservations(ctx context.Context, ids []string, before time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res, err := r.DB.ExecContext(ctx,
		`DELETE FROM reservations WHERE id = ANY($1) AND end_at <= $2`,
		pq.Array(ids), before,
	)
	if err != nil {
		return 0, fmt.Errorf("error deleting expired reservations: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		log.Printf("could not get rows affected: %v", err)
		return 0, nil
	}
	return n, nil
}

func (r *Repository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	ids, err := r.ExpiredReservationIDs(ctx, before)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}
	log.Printf("expiry job: found %d reservations ended by %s: %v", len(ids), before.Format(time.DateTime), ids)
	return r.DeleteReservations(ctx, ids, before)
}
