package booking

import "room-reservation-api/internal/model"

// HasConflict reports whether candidate overlaps any interval in existing
// held for roomID. Intervals of other rooms are ignored.
func HasConflict(roomID string, candidate model.Interval, existing []model.Interval) bool {
	for _, other := range existing {
		if other.RoomID != roomID {
			continue
		}
		if candidate.Overlaps(other) {
			return true
		}
	}
	return false
}

// FirstConflict returns the first reservation in the candidate's room that
// overlaps it.
func FirstConflict(candidate model.Interval, existing []model.Reservation) (model.Reservation, bool) {
	for _, r := range existing {
		if r.Interval.RoomID != candidate.RoomID {
			continue
		}
		if candidate.Overlaps(r.Interval) {
			return r, true
		}
	}
	return model.Reservation{}, false
}

func intervals(rs []model.Reservation) []model.Interval {
	out := make([]model.Interval, len(rs))
	for i := range rs {
		out[i] = rs[i].Interval
	}
	return out
}
