package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"room-reservation-api/internal/booking"
	"room-reservation-api/internal/model"
)

const reservationColumns = `id, room_id, start_at, end_at, all_day, purpose, owner_id, created_at`

// reservations implements booking.ReservationStore on top of a querier.
type reservations struct {
	q querier
}

var (
	_ booking.ReservationStore = (*Store)(nil)
	_ booking.RoomLocker       = (*Store)(nil)
)

func (s reservations) FindByRoom(ctx context.Context, roomID string) ([]model.Reservation, error) {
	return s.list(ctx,
		`SELECT `+reservationColumns+` FROM reservations
		 WHERE room_id = $1
		 ORDER BY start_at`, roomID)
}

func (s reservations) FindByID(ctx context.Context, id string) (model.Reservation, error) {
	r, err := scanReservation(s.q.QueryRow(ctx,
		`SELECT `+reservationColumns+` FROM reservations WHERE id = $1`, id))
	if err != nil {
		return model.Reservation{}, mapErr(err, booking.ErrNotFound)
	}
	return r, nil
}

func (s reservations) Insert(ctx context.Context, r model.Reservation) (model.Reservation, error) {
	_, err := s.q.Exec(ctx,
		`INSERT INTO reservations (`+reservationColumns+`)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		r.ID, r.Interval.RoomID, r.Interval.Start, r.Interval.End,
		r.AllDay, r.Purpose, r.OwnerID, r.CreatedAt,
	)
	if err != nil {
		// the exclusion constraint caught an overlap the lock missed
		return model.Reservation{}, mapErr(err, booking.ErrNotFound)
	}
	return r, nil
}

func (s reservations) DeleteByID(ctx context.Context, id string) (bool, error) {
	tag, err := s.q.Exec(ctx, `DELETE FROM reservations WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s reservations) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.q.Exec(ctx, `DELETE FROM reservations WHERE end_at <= $1`, before)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s reservations) List(ctx context.Context) ([]model.Reservation, error) {
	return s.list(ctx,
		`SELECT `+reservationColumns+` FROM reservations
		 ORDER BY start_at, room_id`)
}

func (s reservations) ListOverlapping(ctx context.Context, from, to time.Time) ([]model.Reservation, error) {
	return s.list(ctx,
		`SELECT `+reservationColumns+` FROM reservations
		 WHERE start_at < $2 AND end_at > $1
		 ORDER BY start_at, room_id`, from, to)
}

func (s reservations) list(ctx context.Context, sql string, args ...any) ([]model.Reservation, error) {
	rows, err := s.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Reservation
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanReservation(row pgx.Row) (model.Reservation, error) {
	var r model.Reservation
	err := row.Scan(
		&r.ID, &r.Interval.RoomID, &r.Interval.Start, &r.Interval.End,
		&r.AllDay, &r.Purpose, &r.OwnerID, &r.CreatedAt,
	)
	return r, err
}
