package model

import "time"

type User struct {
	ID           string
	Email        string
	PasswordHash string
	Name         string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Interval is the half-open range [Start, End) a room is held for.
// Times are naive wall-clock values carried in time.UTC.
type Interval struct {
	RoomID string
	Start  time.Time
	End    time.Time
}

// Overlaps reports whether i and o share an instant. Touching endpoints
// do not overlap, so back-to-back bookings are allowed. Room is not compared.
func (i Interval) Overlaps(o Interval) bool {
	return i.Start.Before(o.End) && i.End.After(o.Start)
}

type Reservation struct {
	ID        string
	Interval  Interval
	AllDay    bool
	Purpose   string
	OwnerID   string
	CreatedAt time.Time
}

type RefreshToken struct {
	ID         string
	UserID     string
	TokenHash  string
	ExpiresAt  time.Time
	Revoked    bool
	ReplacedBy *string
	CreatedAt  time.Time
}
