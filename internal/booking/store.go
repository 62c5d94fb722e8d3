package booking

import (
	"context"
	"time"

	"room-reservation-api/internal/model"
)

// ExpiredDeleter removes reservations whose interval ended at or before
// the given instant and reports how many were removed.
type ExpiredDeleter interface {
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// ReservationStore is the persistence boundary of the admission controller.
// FindByID returns ErrNotFound when the reservation does not exist.
type ReservationStore interface {
	ExpiredDeleter
	FindByRoom(ctx context.Context, roomID string) ([]model.Reservation, error)
	FindByID(ctx context.Context, id string) (model.Reservation, error)
	Insert(ctx context.Context, r model.Reservation) (model.Reservation, error)
	DeleteByID(ctx context.Context, id string) (bool, error)
	List(ctx context.Context) ([]model.Reservation, error)
	ListOverlapping(ctx context.Context, from, to time.Time) ([]model.Reservation, error)
}

// RoomLocker is implemented by stores that can run a unit of work
// exclusively for one room, e.g. inside a transaction holding a lock.
// The store handed to fn must be used for every read and write of the unit.
type RoomLocker interface {
	WithRoomLock(ctx context.Context, roomID string, fn func(ReservationStore) error) error
}

// Events receives reservation lifecycle notifications after commit.
type Events interface {
	ReservationCreated(ctx context.Context, r model.Reservation) error
	ReservationDeleted(ctx context.Context, r model.Reservation) error
}
