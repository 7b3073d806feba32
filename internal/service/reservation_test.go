package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/WebabyApps/RideMate/internal/feed"
	"github.com/WebabyApps/RideMate/internal/model"
	"github.com/WebabyApps/RideMate/internal/queue"
	"github.com/WebabyApps/RideMate/internal/repository"
)

// fakeLedger replays a scripted error sequence; once the script is
// exhausted the operation succeeds.
type fakeLedger struct {
	script   []error
	calls    int
	booking  model.Booking
	state    model.RideState
	listErr  error
	bookings []model.Booking
}

func (f *fakeLedger) next() error {
	defer func() { f.calls++ }()
	if f.calls < len(f.script) {
		return f.script[f.calls]
	}
	return nil
}

func (f *fakeLedger) Reserve(ctx context.Context, rideID, subjectID string, p model.Passenger) (*model.Booking, model.RideState, error) {
	if err := f.next(); err != nil {
		return nil, model.RideState{}, err
	}
	b := f.booking
	return &b, f.state, nil
}

func (f *fakeLedger) Release(ctx context.Context, bookingID string) (*model.Booking, model.RideState, error) {
	if err := f.next(); err != nil {
		return nil, model.RideState{}, err
	}
	b := f.booking
	return &b, f.state, nil
}

func (f *fakeLedger) ListBookings(ctx context.Context, rideID string) ([]model.Booking, error) {
	return f.bookings, f.listErr
}

type recordingFeed struct {
	states []model.RideState
	err    error
}

func (r *recordingFeed) Publish(_ context.Context, st model.RideState) error {
	r.states = append(r.states, st)
	return r.err
}

type recordingEvents struct {
	events []queue.BookingEvent
	err    error
}

func (r *recordingEvents) PublishBookingEvent(_ context.Context, ev queue.BookingEvent) error {
	r.events = append(r.events, ev)
	return r.err
}

func newTestService(l Ledger, f FeedPublisher, e EventPublisher) *ReservationService {
	svc := NewReservationService(l, f, e)
	svc.attemptTimeout = time.Second
	svc.backoffBase = time.Millisecond
	svc.backoffJitter = time.Millisecond
	return svc
}

func TestReserveSuccessEmitsOnce(t *testing.T) {
	ledger := &fakeLedger{
		booking: model.Booking{ID: "b1", RideID: "r1", SubjectID: "alice"},
		state:   model.RideState{RideID: "r1", Reserved: 1, Capacity: 4, Version: 2},
	}
	fd := &recordingFeed{}
	ev := &recordingEvents{}
	svc := newTestService(ledger, fd, ev)

	b, err := svc.Reserve(context.Background(), "r1", "alice", model.Passenger{ID: "alice"})
	require.NoError(t, err)
	assert.Equal(t, "b1", b.ID)
	assert.Equal(t, 1, ledger.calls)

	require.Len(t, fd.states, 1)
	assert.Equal(t, int64(2), fd.states[0].Version)

	require.Len(t, ev.events, 1)
	assert.Equal(t, queue.EventBookingCreated, ev.events[0].Type)
	assert.Equal(t, "b1", ev.events[0].BookingID)
	assert.Equal(t, 1, ev.events[0].Reserved)
}

func TestReserveRetriesConflictThenSucceeds(t *testing.T) {
	ledger := &fakeLedger{
		script:  []error{repository.ErrTxConflict, repository.ErrTxConflict},
		booking: model.Booking{ID: "b1", RideID: "r1", SubjectID: "alice"},
		state:   model.RideState{RideID: "r1", Reserved: 1, Capacity: 2, Version: 3},
	}
	fd := &recordingFeed{}
	svc := newTestService(ledger, fd, nil)

	_, err := svc.Reserve(context.Background(), "r1", "alice", model.Passenger{ID: "alice"})
	require.NoError(t, err)
	assert.Equal(t, 3, ledger.calls)
	assert.Len(t, fd.states, 1, "only the committed attempt publishes")
}

func TestReserveConflictExhaustsAttempts(t *testing.T) {
	ledger := &fakeLedger{
		script: []error{repository.ErrTxConflict, repository.ErrTxConflict, repository.ErrTxConflict, repository.ErrTxConflict},
	}
	fd := &recordingFeed{}
	ev := &recordingEvents{}
	svc := newTestService(ledger, fd, ev)

	_, err := svc.Reserve(context.Background(), "r1", "alice", model.Passenger{ID: "alice"})
	assert.ErrorIs(t, err, repository.ErrTxConflict)
	assert.Equal(t, 3, ledger.calls, "policy allows three attempts total")
	assert.Empty(t, fd.states)
	assert.Empty(t, ev.events)
}

func TestReserveTerminalErrorsNotRetried(t *testing.T) {
	terminal := []error{
		repository.ErrRideNotFound,
		repository.ErrRideFull,
		repository.ErrDuplicateBooking,
		repository.ErrSelfBooking,
		repository.ErrStoreUnavailable,
	}
	for _, want := range terminal {
		ledger := &fakeLedger{script: []error{want}}
		fd := &recordingFeed{}
		svc := newTestService(ledger, fd, nil)

		_, err := svc.Reserve(context.Background(), "r1", "alice", model.Passenger{ID: "alice"})
		assert.ErrorIs(t, err, want)
		assert.Equal(t, 1, ledger.calls, "%v must not be retried", want)
		assert.Empty(t, fd.states)
	}
}

func TestReleaseSuccessEmitsReleasedEvent(t *testing.T) {
	ledger := &fakeLedger{
		booking: model.Booking{ID: "b1", RideID: "r1", SubjectID: "alice"},
		state:   model.RideState{RideID: "r1", Reserved: 0, Capacity: 2, Version: 4},
	}
	fd := &recordingFeed{}
	ev := &recordingEvents{}
	svc := newTestService(ledger, fd, ev)

	require.NoError(t, svc.Release(context.Background(), "b1"))

	require.Len(t, fd.states, 1)
	assert.Equal(t, 0, fd.states[0].Reserved)
	require.Len(t, ev.events, 1)
	assert.Equal(t, queue.EventBookingReleased, ev.events[0].Type)
}

func TestReleaseUnknownBookingNotRetried(t *testing.T) {
	ledger := &fakeLedger{script: []error{repository.ErrBookingNotFound}}
	svc := newTestService(ledger, &recordingFeed{}, nil)

	err := svc.Release(context.Background(), "ghost")
	assert.ErrorIs(t, err, repository.ErrBookingNotFound)
	assert.Equal(t, 1, ledger.calls)
}

func TestFeedFailureDoesNotFailOperation(t *testing.T) {
	ledger := &fakeLedger{
		booking: model.Booking{ID: "b1", RideID: "r1", SubjectID: "alice"},
		state:   model.RideState{RideID: "r1", Reserved: 1, Capacity: 2, Version: 2},
	}
	fd := &recordingFeed{err: errors.New("redis gone")}
	svc := newTestService(ledger, fd, nil)

	b, err := svc.Reserve(context.Background(), "r1", "alice", model.Passenger{ID: "alice"})
	require.NoError(t, err, "a committed reservation must not be failed by the feed")
	assert.Equal(t, "b1", b.ID)
}

func TestEventPublisherOptional(t *testing.T) {
	ledger := &fakeLedger{
		booking: model.Booking{ID: "b1", RideID: "r1", SubjectID: "alice"},
		state:   model.RideState{RideID: "r1", Reserved: 1, Capacity: 2, Version: 2},
	}
	svc := newTestService(ledger, &recordingFeed{}, nil)

	_, err := svc.Reserve(context.Background(), "r1", "alice", model.Passenger{ID: "alice"})
	require.NoError(t, err)
	require.NoError(t, svc.Release(context.Background(), "b1"))
}

func TestNewReservationServiceNilChecks(t *testing.T) {
	assert.Panics(t, func() { NewReservationService(nil, &recordingFeed{}, nil) })
	assert.Panics(t, func() { NewReservationService(&fakeLedger{}, nil, nil) })
}

func TestListBookingsPassesThrough(t *testing.T) {
	want := []model.Booking{{ID: "b1"}, {ID: "b2"}}
	ledger := &fakeLedger{bookings: want}
	svc := newTestService(ledger, &recordingFeed{}, nil)

	got, err := svc.ListBookings(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

// End to end against the in-memory ledger and a real change feed: two
// subjects on a one-seat ride, then a cancellation observed as a
// snapshot with the seat back.
func TestReserveReleaseRoundTrip(t *testing.T) {
	ml := repository.NewMemoryLedger()
	ride, err := model.NewRide("owner", "Berlin", "Hamburg", time.Now().Add(time.Hour), 1, 500)
	require.NoError(t, err)
	ml.AddRide(ride)

	fd := feed.New(ml.RideState, nil)
	svc := newTestService(ml, fd, nil)
	ctx := context.Background()

	sub, err := fd.Subscribe(ctx, ride.ID)
	require.NoError(t, err)
	defer sub.Close()
	seed := <-sub.Updates()
	assert.Equal(t, 1, seed.Remaining())

	b, err := svc.Reserve(ctx, ride.ID, "alice", model.Passenger{ID: "alice"})
	require.NoError(t, err)
	st := <-sub.Updates()
	assert.Equal(t, 0, st.Remaining())

	_, err = svc.Reserve(ctx, ride.ID, "bob", model.Passenger{ID: "bob"})
	assert.ErrorIs(t, err, repository.ErrRideFull)

	require.NoError(t, svc.Release(ctx, b.ID))
	st = <-sub.Updates()
	assert.Equal(t, 1, st.Remaining())
}
