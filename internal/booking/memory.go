package booking

import (
	"context"
	"sort"
	"sync"
	"time"

	"room-reservation-api/internal/model"
)

// MemoryStore is a ReservationStore kept in process memory.
type MemoryStore struct {
	mu     sync.RWMutex
	byID   map[string]model.Reservation
	byRoom map[string]map[string]struct{}
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:   make(map[string]model.Reservation),
		byRoom: make(map[string]map[string]struct{}),
	}
}

func (m *MemoryStore) FindByRoom(ctx context.Context, roomID string) ([]model.Reservation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]model.Reservation, 0, len(m.byRoom[roomID]))
	for id := range m.byRoom[roomID] {
		out = append(out, m.byID[id])
	}
	sortByStart(out)
	return out, nil
}

func (m *MemoryStore) FindByID(ctx context.Context, id string) (model.Reservation, error) {
	if err := ctx.Err(); err != nil {
		return model.Reservation{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.byID[id]
	if !ok {
		return model.Reservation{}, ErrNotFound
	}
	return r, nil
}

// Insert refuses overlapping rows the same way the database exclusion
// constraint does.
func (m *MemoryStore) Insert(ctx context.Context, r model.Reservation) (model.Reservation, error) {
	if err := ctx.Err(); err != nil {
		return model.Reservation{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	room := r.Interval.RoomID
	for id := range m.byRoom[room] {
		if r.Interval.Overlaps(m.byID[id].Interval) {
			return model.Reservation{}, &ConflictError{RoomID: room, ReservationID: id}
		}
	}
	if _, ok := m.byRoom[room]; !ok {
		m.byRoom[room] = make(map[string]struct{})
	}
	m.byRoom[room][r.ID] = struct{}{}
	m.byID[r.ID] = r
	return r, nil
}

func (m *MemoryStore) DeleteByID(ctx context.Context, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.byID[id]; !ok {
		return false, nil
	}
	m.deleteLocked(id)
	return true, nil
}

func (m *MemoryStore) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for id, r := range m.byID {
		if !r.Interval.End.After(before) {
			m.deleteLocked(id)
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) List(ctx context.Context) ([]model.Reservation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]model.Reservation, 0, len(m.byID))
	for _, r := range m.byID {
		out = append(out, r)
	}
	sortByStart(out)
	return out, nil
}

func (m *MemoryStore) ListOverlapping(ctx context.Context, from, to time.Time) ([]model.Reservation, error) {
	all, err := m.List(ctx)
	if err != nil {
		return nil, err
	}
	window := model.Interval{Start: from, End: to}
	out := all[:0]
	for _, r := range all {
		if r.Interval.Overlaps(window) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *MemoryStore) deleteLocked(id string) {
	r := m.byID[id]
	delete(m.byID, id)
	room := m.byRoom[r.Interval.RoomID]
	delete(room, id)
	if len(room) == 0 {
		delete(m.byRoom, r.Interval.RoomID)
	}
}

func sortByStart(rs []model.Reservation) {
	sort.Slice(rs, func(i, j int) bool {
		if rs[i].Interval.Start.Equal(rs[j].Interval.Start) {
			return rs[i].Interval.RoomID < rs[j].Interval.RoomID
		}
		return rs[i].Interval.Start.Before(rs[j].Interval.Start)
	})
}
