// Package repository defines error types that are reused across the
// reservation ledger and the ride repository. These sentinel values allow
// higher layers such as the service facade and handlers to distinguish
// between failure scenarios. Terminal errors (ride full, duplicate
// booking, not found) are surfaced to callers unchanged; only
// ErrTxConflict is subject to the facade's bounded retry policy.
package repository

import "errors"

// ErrRideNotFound is returned when the referenced ride does not exist.
// Handlers translate this into an HTTP 404 response.
var ErrRideNotFound = errors.New("ride not found")

// ErrRideFull is returned when a reservation is attempted against a ride
// whose capacity is exhausted at transaction time. Never retried
// automatically; callers render it as an informational state.
var ErrRideFull = errors.New("ride is fully booked")

// ErrSelfBooking is returned when a subject attempts to reserve a seat
// on a ride they offered themselves.
var ErrSelfBooking = errors.New("cannot book a seat on your own ride")

// ErrDuplicateBooking is returned when the subject already holds a live
// booking on the ride. Callers should treat this as "already booked"
// rather than as a failure needing recovery.
var ErrDuplicateBooking = errors.New("subject already booked this ride")

// ErrBookingNotFound is returned by Release when the target booking does
// not exist, either because it was already released or never existed.
var ErrBookingNotFound = errors.New("booking not found")

// ErrTxConflict signals an optimistic-concurrency abort reported by the
// store (deadlock or lock wait timeout). It is transient: the service
// facade retries a bounded number of times before surfacing it.
var ErrTxConflict = errors.New("transaction conflict")

// ErrStoreUnavailable is returned when the store cannot be reached at
// all. Terminal from this service's perspective; callers retry at a
// higher level with backoff.
var ErrStoreUnavailable = errors.New("store unavailable")

// ErrForbidden is returned when the caller attempts an operation on a
// resource they do not own, such as deleting someone else's ride.
// Handlers should translate this into an HTTP 403 response.
var ErrForbidden = errors.New("forbidden")
