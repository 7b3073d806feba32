package model

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Ride represents a trip offered by a driver with a fixed number of
// bookable seats.  The reserved counter is owned exclusively by the
// reservation ledger and must never be mutated elsewhere.
//
// Fields:
//  ID            – opaque UUID identifier.
//  OwnerID       – subject who offered the ride; may not book it.
//  Origin        – human readable departure location.
//  Destination   – human readable arrival location.
//  DepartureTime – scheduled departure in UTC.
//  Capacity      – total seats offered, fixed at creation, always > 0.
//  Reserved      – count of confirmed bookings, 0 <= Reserved <= Capacity.
//  Version       – monotonic counter bumped by every committed seat mutation.
//  PriceCents    – per seat price in cents.
//  CreatedAt     – creation timestamp assigned by the store.
type Ride struct {
	ID            string    `json:"id"`
	OwnerID       string    `json:"owner_id"`
	Origin        string    `json:"origin"`
	Destination   string    `json:"destination"`
	DepartureTime time.Time `json:"departure_time"`
	Capacity      int       `json:"capacity"`
	Reserved      int       `json:"reserved"`
	Version       int64     `json:"version"`
	PriceCents    uint32    `json:"price_cents"`
	CreatedAt     time.Time `json:"created_at"`
}

// Validation errors returned by NewRide.
var (
	ErrRideOwnerRequired = errors.New("ride owner is required")
	ErrRideRouteRequired = errors.New("ride origin and destination are required")
	ErrRideCapacity      = errors.New("ride capacity must be a positive integer")
	ErrRideDeparture     = errors.New("ride departure time is required")
)

// NewRide builds a validated Ride with a generated UUID and explicit
// defaults.  All optional inputs become concrete zero values here rather
// than being interpreted at read time.
func NewRide(ownerID, origin, destination string, departure time.Time, capacity int, priceCents uint32) (*Ride, error) {
	ownerID = strings.TrimSpace(ownerID)
	origin = strings.TrimSpace(origin)
	destination = strings.TrimSpace(destination)
	if ownerID == "" {
		return nil, ErrRideOwnerRequired
	}
	if origin == "" || destination == "" {
		return nil, ErrRideRouteRequired
	}
	if capacity <= 0 {
		return nil, ErrRideCapacity
	}
	if departure.IsZero() {
		return nil, ErrRideDeparture
	}
	return &Ride{
		ID:            uuid.NewString(),
		OwnerID:       ownerID,
		Origin:        origin,
		Destination:   destination,
		DepartureTime: departure.UTC(),
		Capacity:      capacity,
		Reserved:      0,
		Version:       0,
		PriceCents:    priceCents,
		CreatedAt:     time.Now().UTC(),
	}, nil
}

// SeatsRemaining returns the number of unclaimed seats.
func (r *Ride) SeatsRemaining() int { return r.Capacity - r.Reserved }

// IsFull reports whether every seat is booked.
func (r *Ride) IsFull() bool { return r.Reserved >= r.Capacity }

// State returns the ride's current change-feed snapshot.
func (r *Ride) State() RideState {
	return RideState{RideID: r.ID, Reserved: r.Reserved, Capacity: r.Capacity, Version: r.Version}
}

// RideState is the snapshot delivered to change-feed subscribers.  It is
// a full statement of the seat counter, never a diff, so consumers that
// miss an intermediate state converge on the next delivery.  Version
// orders snapshots for a single ride; no ordering exists across rides.
type RideState struct {
	RideID   string `json:"ride_id"`
	Reserved int    `json:"reserved"`
	Capacity int    `json:"capacity"`
	Version  int64  `json:"version"`
}

// Remaining returns the seats still bookable in this snapshot.
func (s RideState) Remaining() int { return s.Capacity - s.Reserved }
