package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/WebabyApps/RideMate/internal/model"
)

// MemoryLedger is an in-process implementation of the ledger contract.
// It backs the test suite and local development without a MySQL server.
// A single mutex plays the role of the store's transaction isolation:
// every operation reads and writes the shared state atomically, so the
// capacity invariant and the composite-key uniqueness hold exactly as
// they do in the SQL ledger.
type MemoryLedger struct {
	mu       sync.Mutex
	rides    map[string]*model.Ride
	bookings map[string]*model.Booking
	byKey    map[compositeKey]string
}

type compositeKey struct {
	rideID    string
	subjectID string
}

// NewMemoryLedger returns an empty in-memory ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		rides:    make(map[string]*model.Ride),
		bookings: make(map[string]*model.Booking),
		byKey:    make(map[compositeKey]string),
	}
}

// AddRide registers a ride with the ledger.  A copy is stored so the
// caller cannot mutate the reserved counter from outside.
func (m *MemoryLedger) AddRide(ride *model.Ride) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *ride
	m.rides[ride.ID] = &cp
}

// RemoveRide deletes a ride and all of its bookings atomically,
// mirroring RideRepo.DeleteCascade.
func (m *MemoryLedger) RemoveRide(rideID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, b := range m.bookings {
		if b.RideID == rideID {
			delete(m.bookings, id)
			delete(m.byKey, compositeKey{b.RideID, b.SubjectID})
		}
	}
	delete(m.rides, rideID)
}

// Reserve claims one seat for the subject under the same preconditions
// as the SQL ledger.
func (m *MemoryLedger) Reserve(ctx context.Context, rideID, subjectID string, passenger model.Passenger) (*model.Booking, model.RideState, error) {
	if err := ctx.Err(); err != nil {
		return nil, model.RideState{}, translateStoreErr(err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	ride, ok := m.rides[rideID]
	if !ok {
		return nil, model.RideState{}, ErrRideNotFound
	}
	if subjectID == ride.OwnerID {
		return nil, model.RideState{}, ErrSelfBooking
	}
	key := compositeKey{rideID, subjectID}
	if _, exists := m.byKey[key]; exists {
		return nil, model.RideState{}, ErrDuplicateBooking
	}
	if ride.Reserved >= ride.Capacity {
		return nil, model.RideState{}, ErrRideFull
	}

	b := &model.Booking{
		ID:        uuid.NewString(),
		RideID:    rideID,
		SubjectID: subjectID,
		Passenger: passenger,
		CreatedAt: nowUTC(),
	}
	m.bookings[b.ID] = b
	m.byKey[key] = b.ID
	ride.Reserved++
	ride.Version++

	cp := *b
	return &cp, ride.State(), nil
}

// Release deletes the booking and frees its seat.
func (m *MemoryLedger) Release(ctx context.Context, bookingID string) (*model.Booking, model.RideState, error) {
	if err := ctx.Err(); err != nil {
		return nil, model.RideState{}, translateStoreErr(err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.bookings[bookingID]
	if !ok {
		return nil, model.RideState{}, ErrBookingNotFound
	}
	delete(m.bookings, bookingID)
	delete(m.byKey, compositeKey{b.RideID, b.SubjectID})

	ride, ok := m.rides[b.RideID]
	if !ok {
		// Ride deleted out from under the booking; nothing left to update.
		return b, model.RideState{RideID: b.RideID}, nil
	}
	if ride.Reserved > 0 {
		ride.Reserved--
	}
	ride.Version++

	cp := *b
	return &cp, ride.State(), nil
}

// ListBookings returns the live bookings for a ride in creation order.
func (m *MemoryLedger) ListBookings(ctx context.Context, rideID string) ([]model.Booking, error) {
	if err := ctx.Err(); err != nil {
		return nil, translateStoreErr(err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]model.Booking, 0)
	for _, b := range m.bookings {
		if b.RideID == rideID {
			out = append(out, *b)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// RideState returns the current snapshot for a ride.
func (m *MemoryLedger) RideState(ctx context.Context, rideID string) (model.RideState, error) {
	if err := ctx.Err(); err != nil {
		return model.RideState{}, translateStoreErr(err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	ride, ok := m.rides[rideID]
	if !ok {
		return model.RideState{}, ErrRideNotFound
	}
	return ride.State(), nil
}
