// Package service implements the reservation facade: it composes the
// ledger, the change feed and the booking-events queue behind the three
// externally callable operations, and owns the single bounded retry
// policy for transaction conflicts so retry semantics are uniform
// instead of scattered per call site.
package service

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/WebabyApps/RideMate/internal/model"
	"github.com/WebabyApps/RideMate/internal/queue"
	"github.com/WebabyApps/RideMate/internal/repository"
)

// Ledger is the transactional seat-accounting collaborator.  Satisfied
// by repository.Ledger (MySQL) and repository.MemoryLedger.
type Ledger interface {
	Reserve(ctx context.Context, rideID, subjectID string, passenger model.Passenger) (*model.Booking, model.RideState, error)
	Release(ctx context.Context, bookingID string) (*model.Booking, model.RideState, error)
	ListBookings(ctx context.Context, rideID string) ([]model.Booking, error)
}

// FeedPublisher receives exactly one committed RideState per successful
// Reserve or Release.
type FeedPublisher interface {
	Publish(ctx context.Context, st model.RideState) error
}

// EventPublisher forwards booking events to the message broker.
type EventPublisher interface {
	PublishBookingEvent(ctx context.Context, ev queue.BookingEvent) error
}

// Retry policy defaults.  A conflicted transaction is attempted at most
// three times before ErrTxConflict surfaces to the caller; each attempt
// is bounded by its own timeout so request latency stays bounded too.
const (
	defaultAttempts       = 3
	defaultAttemptTimeout = 5 * time.Second
	defaultBackoffBase    = 100 * time.Millisecond
	defaultBackoffJitter  = 50 * time.Millisecond
)

// ReservationService is the externally callable facade over the
// reservation engine.
type ReservationService struct {
	ledger Ledger
	feed   FeedPublisher
	events EventPublisher // may be nil when no broker is configured

	attempts       int
	attemptTimeout time.Duration
	backoffBase    time.Duration
	backoffJitter  time.Duration
}

// NewReservationService constructs the facade with the default retry
// policy.  ledger and feed must be non-nil; events may be nil.
func NewReservationService(ledger Ledger, feed FeedPublisher, events EventPublisher) *ReservationService {
	if ledger == nil || feed == nil {
		panic("nil dependency passed to NewReservationService")
	}
	return &ReservationService{
		ledger:         ledger,
		feed:           feed,
		events:         events,
		attempts:       defaultAttempts,
		attemptTimeout: defaultAttemptTimeout,
		backoffBase:    defaultBackoffBase,
		backoffJitter:  defaultBackoffJitter,
	}
}

// Reserve books one seat on the ride for the subject.  Transaction
// conflicts are retried internally with jittered backoff; every other
// error from the ledger surfaces unchanged.  On success exactly one
// change-feed snapshot and one booking.created event are emitted.
func (s *ReservationService) Reserve(ctx context.Context, rideID, subjectID string, passenger model.Passenger) (*model.Booking, error) {
	var booking *model.Booking
	var state model.RideState
	err := s.withRetry(ctx, func(ctx context.Context) error {
		b, st, err := s.ledger.Reserve(ctx, rideID, subjectID, passenger)
		if err != nil {
			return err
		}
		booking, state = b, st
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.emitState(ctx, state)
	s.emitEvent(ctx, queue.BookingEvent{
		Type:       queue.EventBookingCreated,
		BookingID:  booking.ID,
		RideID:     booking.RideID,
		SubjectID:  booking.SubjectID,
		Reserved:   state.Reserved,
		Capacity:   state.Capacity,
		OccurredAt: time.Now().UTC().Format(time.RFC3339),
	})
	return booking, nil
}

// Release cancels a booking and frees its seat.  Same retry and
// emission contract as Reserve.
func (s *ReservationService) Release(ctx context.Context, bookingID string) error {
	var booking *model.Booking
	var state model.RideState
	err := s.withRetry(ctx, func(ctx context.Context) error {
		b, st, err := s.ledger.Release(ctx, bookingID)
		if err != nil {
			return err
		}
		booking, state = b, st
		return nil
	})
	if err != nil {
		return err
	}

	s.emitState(ctx, state)
	s.emitEvent(ctx, queue.BookingEvent{
		Type:       queue.EventBookingReleased,
		BookingID:  booking.ID,
		RideID:     booking.RideID,
		SubjectID:  booking.SubjectID,
		Reserved:   state.Reserved,
		Capacity:   state.Capacity,
		OccurredAt: time.Now().UTC().Format(time.RFC3339),
	})
	return nil
}

// ListBookings returns the live bookings of a ride in creation order.
func (s *ReservationService) ListBookings(ctx context.Context, rideID string) ([]model.Booking, error) {
	return s.ledger.ListBookings(ctx, rideID)
}

// withRetry runs op with the bounded conflict-retry policy.  Only
// repository.ErrTxConflict is retryable; a timed-out attempt already
// arrives translated to that sentinel by the ledger.
func (s *ReservationService) withRetry(ctx context.Context, op func(context.Context) error) error {
	backoff := retry.WithMaxRetries(uint64(s.attempts-1),
		retry.WithJitter(s.backoffJitter, retry.NewExponential(s.backoffBase)))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		attemptCtx, cancel := context.WithTimeout(ctx, s.attemptTimeout)
		defer cancel()
		if err := op(attemptCtx); err != nil {
			if errors.Is(err, repository.ErrTxConflict) {
				return retry.RetryableError(err)
			}
			return err
		}
		return nil
	})
}

// emitState publishes a committed snapshot to the change feed.  A feed
// failure must not fail the already committed operation; local
// subscribers were served before any transport error can occur.
func (s *ReservationService) emitState(ctx context.Context, st model.RideState) {
	if err := s.feed.Publish(ctx, st); err != nil {
		log.Printf("reservation: feed publish failed for ride %s: %v", st.RideID, err)
	}
}

// emitEvent forwards a booking event to the broker, if one is wired.
func (s *ReservationService) emitEvent(ctx context.Context, ev queue.BookingEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishBookingEvent(ctx, ev); err != nil {
		log.Printf("reservation: event publish failed for booking %s: %v", ev.BookingID, err)
	}
}
