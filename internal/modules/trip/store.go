// README: In-memory trip store with per-trip locking and copy-on-read.
package trip

import (
	"sync"
	"time"

	"buslink/internal/types"
)

// Store owns all Trip records. A read lock on the outer map plus a per-trip
// mutex gives single-writer-per-key semantics: operations on the same trip are
// serialized, operations on different trips never block each other.
type Store struct {
	mu    sync.RWMutex
	trips map[types.ID]*entry
	order []types.ID // creation order, keeps listings deterministic
}

type entry struct {
	mu sync.Mutex
	t  Trip
}

func NewStore() *Store {
	return &Store{trips: make(map[types.ID]*entry)}
}

// Create registers a new trip. The id must be unused.
func (s *Store) Create(t Trip) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.trips[t.ID]; exists {
		return ErrConflict
	}
	s.trips[t.ID] = &entry{t: copyTrip(t)}
	s.order = append(s.order, t.ID)
	return nil
}

// Get returns a consistent snapshot of one trip.
func (s *Store) Get(id types.ID) (Trip, error) {
	e, err := s.lookup(id)
	if err != nil {
		return Trip{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return copyTrip(e.t), nil
}

// ListActive returns snapshots of all Ongoing trips in creation order.
// Pending and Completed trips are never part of the matching candidate pool.
func (s *Store) ListActive() []Trip {
	s.mu.RLock()
	ids := make([]types.ID, len(s.order))
	copy(ids, s.order)
	s.mu.RUnlock()

	var out []Trip
	for _, id := range ids {
		e, err := s.lookup(id)
		if err != nil {
			continue
		}
		e.mu.Lock()
		if e.t.Status == StatusOngoing {
			out = append(out, copyTrip(e.t))
		}
		e.mu.Unlock()
	}
	return out
}

// AppendLocation records a sample as the current position and pushes it onto
// the bounded history. The Ongoing gate is checked under the same per-trip
// lock as the write, so a concurrent Complete cannot slip a stale sample in.
func (s *Store) AppendLocation(id types.ID, sample LocationSample) error {
	e, err := s.lookup(id)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.t.Status != StatusOngoing {
		return ErrNotOngoing
	}
	sm := sample
	e.t.CurrentLocation = &sm
	if len(e.t.History) < HistoryCap {
		e.t.History = append(e.t.History, sample)
	} else {
		copy(e.t.History, e.t.History[1:])
		e.t.History[HistoryCap-1] = sample
	}
	return nil
}

// SetStatus applies a lifecycle transition and returns the updated snapshot.
func (s *Store) SetStatus(id types.ID, to Status, at time.Time) (Trip, error) {
	e, err := s.lookup(id)
	if err != nil {
		return Trip{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if !CanTransition(e.t.Status, to) {
		return Trip{}, ErrInvalidState
	}
	e.t.Status = to
	switch to {
	case StatusOngoing:
		t := at
		e.t.StartedAt = &t
	case StatusCompleted:
		t := at
		e.t.CompletedAt = &t
	}
	return copyTrip(e.t), nil
}

// SetOccupiedSeats updates seat accounting, clamped to [0, TotalSeats].
func (s *Store) SetOccupiedSeats(id types.ID, occupied int) (Trip, error) {
	e, err := s.lookup(id)
	if err != nil {
		return Trip{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if occupied < 0 || occupied > e.t.TotalSeats {
		return Trip{}, ErrBadRequest
	}
	e.t.OccupiedSeats = occupied
	return copyTrip(e.t), nil
}

func (s *Store) lookup(id types.ID) (*entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.trips[id]
	if !ok {
		return nil, ErrNotFound
	}
	return e, nil
}

// copyTrip deep-copies the mutable fields so readers never observe a
// half-written location/history pair. RoutePath is immutable and shared.
func copyTrip(t Trip) Trip {
	out := t
	if t.CurrentLocation != nil {
		sm := *t.CurrentLocation
		out.CurrentLocation = &sm
	}
	if t.History != nil {
		h := make([]LocationSample, len(t.History))
		copy(h, t.History)
		out.History = h
	}
	if t.StartedAt != nil {
		v := *t.StartedAt
		out.StartedAt = &v
	}
	if t.CompletedAt != nil {
		v := *t.CompletedAt
		out.CompletedAt = &v
	}
	return out
}
