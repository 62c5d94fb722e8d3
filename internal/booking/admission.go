package booking

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"room-reservation-api/internal/model"
)

// DefaultTimeout bounds every store round of an operation.
const DefaultTimeout = 5 * time.Second

// Now is the default clock: the local wall clock in the naive frame.
func Now() time.Time { return Naive(time.Now()) }

type ReserveRequest struct {
	RoomID   string
	OwnerID  string
	Interval RawInterval
	Purpose  string
}

// Controller admits or rejects reservations and owns their lifecycle.
type Controller struct {
	store   ReservationStore
	now     func() time.Time
	newID   func() string
	timeout time.Duration
	events  Events
	logger  *log.Logger
	locks   *roomLocks
}

type Option func(*Controller)

func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

func WithIDGenerator(gen func() string) Option {
	return func(c *Controller) { c.newID = gen }
}

func WithTimeout(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func WithEvents(e Events) Option {
	return func(c *Controller) { c.events = e }
}

func WithLogger(l *log.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

func NewController(store ReservationStore, opts ...Option) *Controller {
	c := &Controller{
		store:   store,
		now:     Now,
		newID:   uuid.NewString,
		timeout: DefaultTimeout,
		logger:  log.Default(),
		locks:   newRoomLocks(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Reserve validates req, sweeps expired reservations, and commits a new
// reservation unless it overlaps an existing one in the same room.
func (c *Controller) Reserve(ctx context.Context, req ReserveRequest) (model.Reservation, error) {
	if strings.TrimSpace(req.RoomID) == "" {
		return model.Reservation{}, &ValidationError{Field: "roomId", Reason: "is required"}
	}
	if strings.TrimSpace(req.OwnerID) == "" {
		return model.Reservation{}, &ValidationError{Field: "ownerId", Reason: "is required"}
	}
	iv, err := ParseInterval(req.RoomID, req.Interval)
	if err != nil {
		return model.Reservation{}, asValidation(err)
	}
	now := c.now()
	// an interval that already ended is refused rather than admitted for the sweep
	if !iv.End.After(now) {
		return model.Reservation{}, &ValidationError{Field: "end", Reason: "interval has already elapsed"}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	release, err := c.locks.acquire(ctx, iv.RoomID)
	if err != nil {
		return model.Reservation{}, storeErr("lock room", err)
	}
	defer release()

	// the sweep spans all rooms, so it stays outside the room transaction
	if _, err := sweep(ctx, c.store, now); err != nil {
		return model.Reservation{}, err
	}

	var created model.Reservation
	err = c.withRoom(ctx, iv.RoomID, func(st ReservationStore) error {
		existing, err := st.FindByRoom(ctx, iv.RoomID)
		if err != nil {
			return storeErr("find by room", err)
		}
		if blocking, ok := FirstConflict(iv, existing); ok {
			return &ConflictError{RoomID: iv.RoomID, ReservationID: blocking.ID}
		}
		created, err = st.Insert(ctx, model.Reservation{
			ID:        c.newID(),
			Interval:  iv,
			AllDay:    req.Interval.allDay(),
			Purpose:   strings.TrimSpace(req.Purpose),
			OwnerID:   strings.TrimSpace(req.OwnerID),
			CreatedAt: now,
		})
		return storeErr("insert", err)
	})
	if err != nil {
		return model.Reservation{}, err
	}

	if c.events != nil {
		if err := c.events.ReservationCreated(ctx, created); err != nil {
			c.logger.Printf("publish reservation %s created: %v", created.ID, err)
		}
	}
	return created, nil
}

// Available reports whether raw could be admitted for roomID right now.
// It takes no lock, so a later Reserve may still fail with ErrConflict.
func (c *Controller) Available(ctx context.Context, roomID string, raw RawInterval) (bool, error) {
	iv, err := ParseInterval(roomID, raw)
	if err != nil {
		return false, asValidation(err)
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	existing, err := c.store.FindByRoom(ctx, iv.RoomID)
	if err != nil {
		return false, storeErr("find by room", err)
	}
	now := c.now()
	live := existing[:0]
	for _, r := range existing {
		if r.Interval.End.After(now) {
			live = append(live, r)
		}
	}
	return !HasConflict(iv.RoomID, iv, intervals(live)), nil
}

// DeleteReservation removes the reservation if requesterID owns it.
func (c *Controller) DeleteReservation(ctx context.Context, id, requesterID string) error {
	if strings.TrimSpace(id) == "" {
		return &ValidationError{Field: "id", Reason: "is required"}
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	r, err := c.store.FindByID(ctx, id)
	if err != nil {
		return storeErr("find by id", err)
	}
	if requesterID == "" || r.OwnerID != requesterID {
		return ErrForbidden
	}
	ok, err := c.store.DeleteByID(ctx, id)
	if err != nil {
		return storeErr("delete", err)
	}
	if !ok {
		return ErrNotFound
	}

	if c.events != nil {
		if err := c.events.ReservationDeleted(ctx, r); err != nil {
			c.logger.Printf("publish reservation %s deleted: %v", r.ID, err)
		}
	}
	return nil
}

func (c *Controller) Get(ctx context.Context, id string) (model.Reservation, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	r, err := c.store.FindByID(ctx, id)
	return r, storeErr("find by id", err)
}

func (c *Controller) List(ctx context.Context) ([]model.Reservation, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	rs, err := c.store.List(ctx)
	return rs, storeErr("list", err)
}

// ListByDate returns the reservations overlapping the given calendar day.
func (c *Controller) ListByDate(ctx context.Context, date string) ([]model.Reservation, error) {
	day, err := parseDate("date", date)
	if err != nil {
		return nil, asValidation(err)
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	rs, err := c.store.ListOverlapping(ctx, day, day.AddDate(0, 0, 1))
	return rs, storeErr("list overlapping", err)
}

func (c *Controller) withRoom(ctx context.Context, roomID string, fn func(ReservationStore) error) error {
	if locker, ok := c.store.(RoomLocker); ok {
		return storeErr("room transaction", locker.WithRoomLock(ctx, roomID, fn))
	}
	return fn(c.store)
}

func asValidation(err error) error {
	var iErr *InvalidIntervalError
	if errors.As(err, &iErr) {
		return &ValidationError{Field: iErr.Field, Reason: iErr.Reason, Err: iErr}
	}
	return &ValidationError{Reason: err.Error(), Err: err}
}
