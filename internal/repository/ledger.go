package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"

	"github.com/WebabyApps/RideMate/internal/model"
)

// MySQL server error numbers the ledger translates into sentinel errors.
const (
	mysqlErrDupEntry        = 1062
	mysqlErrLockWaitTimeout = 1205
	mysqlErrDeadlock        = 1213
)

// Ledger owns the invariant between a ride's seat capacity and its set of
// booking records: after every committed transaction,
// rides.reserved == count(bookings for that ride) and never exceeds
// capacity.  Both sides of the invariant are only ever mutated inside a
// single transaction opened here, with the ride row locked FOR UPDATE so
// concurrent reservations against the same ride serialize at the store.
//
// Duplicate detection is structural: bookings carry a composite unique
// key on (ride_id, subject_id), so the store's own constraint is the
// idempotency guard and there is no separate check-then-act step.
type Ledger struct {
	db *sql.DB
}

// NewLedger returns a Ledger bound to the given database.
func NewLedger(db *sql.DB) *Ledger { return &Ledger{db: db} }

// DB exposes the underlying handle for callers that need to compose
// transactions across repositories.
func (l *Ledger) DB() *sql.DB { return l.db }

// Reserve claims one seat on the ride for the subject.  Every
// precondition is checked inside one transaction against the locked ride
// row: the ride exists, has a free seat, is not owned by the subject,
// and the subject holds no live booking on it.  On success the booking
// record and the incremented counter commit atomically and the
// post-commit RideState is returned for change-feed emission.
func (l *Ledger) Reserve(ctx context.Context, rideID, subjectID string, passenger model.Passenger) (*model.Booking, model.RideState, error) {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, model.RideState{}, translateStoreErr(fmt.Errorf("begin reserve tx: %w", err))
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	var ownerID string
	var capacity, reserved int
	var version int64
	const lockQ = `SELECT owner_id, capacity, reserved, version FROM rides WHERE id = ? FOR UPDATE`
	err = tx.QueryRowContext(ctx, lockQ, rideID).Scan(&ownerID, &capacity, &reserved, &version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.RideState{}, ErrRideNotFound
		}
		return nil, model.RideState{}, translateStoreErr(fmt.Errorf("lock ride row: %w", err))
	}
	if subjectID == ownerID {
		return nil, model.RideState{}, ErrSelfBooking
	}

	// The insert runs before the capacity check so that a repeat booking
	// surfaces as DuplicateBooking regardless of arrival order, even when
	// the ride filled up in between.  On a full ride the rollback discards
	// the row again.
	b := &model.Booking{
		ID:        uuid.NewString(),
		RideID:    rideID,
		SubjectID: subjectID,
		Passenger: passenger,
	}
	const insQ = `INSERT INTO bookings (id, ride_id, subject_id, first_name, last_name, avatar_url)
	              VALUES (?, ?, ?, ?, ?, ?)`
	if _, err := tx.ExecContext(ctx, insQ, b.ID, b.RideID, b.SubjectID,
		passenger.FirstName, passenger.LastName, passenger.AvatarURL); err != nil {
		var me *mysql.MySQLError
		if errors.As(err, &me) && me.Number == mysqlErrDupEntry {
			return nil, model.RideState{}, ErrDuplicateBooking
		}
		return nil, model.RideState{}, translateStoreErr(fmt.Errorf("insert booking: %w", err))
	}

	if reserved >= capacity {
		return nil, model.RideState{}, ErrRideFull
	}

	const updQ = `UPDATE rides SET reserved = reserved + 1, version = version + 1 WHERE id = ?`
	if _, err := tx.ExecContext(ctx, updQ, rideID); err != nil {
		return nil, model.RideState{}, translateStoreErr(fmt.Errorf("increment reserved: %w", err))
	}

	// Query back the commit timestamp the store assigned.
	const selQ = `SELECT created_at FROM bookings WHERE id = ?`
	if err := tx.QueryRowContext(ctx, selQ, b.ID).Scan(&b.CreatedAt); err != nil {
		return nil, model.RideState{}, translateStoreErr(fmt.Errorf("read booking timestamp: %w", err))
	}

	if err := tx.Commit(); err != nil {
		return nil, model.RideState{}, translateStoreErr(fmt.Errorf("commit reserve: %w", err))
	}
	committed = true

	state := model.RideState{RideID: rideID, Reserved: reserved + 1, Capacity: capacity, Version: version + 1}
	return b, state, nil
}

// Release deletes the booking and decrements the owning ride's reserved
// counter in one transaction.  The decrement is clamped at zero; given
// the ledger invariant that branch is unreachable, but a defect elsewhere
// must not be able to drive the counter negative.  Returns the deleted
// booking and the post-commit RideState.
func (l *Ledger) Release(ctx context.Context, bookingID string) (*model.Booking, model.RideState, error) {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, model.RideState{}, translateStoreErr(fmt.Errorf("begin release tx: %w", err))
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	b := &model.Booking{ID: bookingID}
	const selQ = `SELECT ride_id, subject_id, first_name, last_name, avatar_url, created_at
	              FROM bookings WHERE id = ? FOR UPDATE`
	err = tx.QueryRowContext(ctx, selQ, bookingID).Scan(&b.RideID, &b.SubjectID,
		&b.Passenger.FirstName, &b.Passenger.LastName, &b.Passenger.AvatarURL, &b.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.RideState{}, ErrBookingNotFound
		}
		return nil, model.RideState{}, translateStoreErr(fmt.Errorf("lock booking row: %w", err))
	}
	b.Passenger.ID = b.SubjectID

	var capacity, reserved int
	var version int64
	const lockQ = `SELECT capacity, reserved, version FROM rides WHERE id = ? FOR UPDATE`
	if err := tx.QueryRowContext(ctx, lockQ, b.RideID).Scan(&capacity, &reserved, &version); err != nil {
		return nil, model.RideState{}, translateStoreErr(fmt.Errorf("lock ride row: %w", err))
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM bookings WHERE id = ?`, bookingID); err != nil {
		return nil, model.RideState{}, translateStoreErr(fmt.Errorf("delete booking: %w", err))
	}
	const updQ = `UPDATE rides SET reserved = GREATEST(CAST(reserved AS SIGNED) - 1, 0), version = version + 1 WHERE id = ?`
	if _, err := tx.ExecContext(ctx, updQ, b.RideID); err != nil {
		return nil, model.RideState{}, translateStoreErr(fmt.Errorf("decrement reserved: %w", err))
	}

	if err := tx.Commit(); err != nil {
		return nil, model.RideState{}, translateStoreErr(fmt.Errorf("commit release: %w", err))
	}
	committed = true

	remaining := reserved - 1
	if remaining < 0 {
		remaining = 0
	}
	state := model.RideState{RideID: b.RideID, Reserved: remaining, Capacity: capacity, Version: version + 1}
	return b, state, nil
}

// ListBookings returns all live bookings for a ride in creation order.
// Read-only; the store's default consistency is sufficient here.
func (l *Ledger) ListBookings(ctx context.Context, rideID string) ([]model.Booking, error) {
	const q = `SELECT id, ride_id, subject_id, first_name, last_name, avatar_url, created_at
	           FROM bookings WHERE ride_id = ? ORDER BY created_at ASC, id ASC`
	rows, err := l.db.QueryContext(ctx, q, rideID)
	if err != nil {
		return nil, translateStoreErr(fmt.Errorf("list bookings: %w", err))
	}
	defer rows.Close()

	bookings := make([]model.Booking, 0)
	for rows.Next() {
		var b model.Booking
		if err := rows.Scan(&b.ID, &b.RideID, &b.SubjectID,
			&b.Passenger.FirstName, &b.Passenger.LastName, &b.Passenger.AvatarURL, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan booking: %w", err)
		}
		b.Passenger.ID = b.SubjectID
		bookings = append(bookings, b)
	}
	if err := rows.Err(); err != nil {
		return nil, translateStoreErr(err)
	}
	return bookings, nil
}

// RideState returns the current seat counter snapshot for a ride.  Used
// by the change feed to seed new subscriptions.
func (l *Ledger) RideState(ctx context.Context, rideID string) (model.RideState, error) {
	const q = `SELECT capacity, reserved, version FROM rides WHERE id = ?`
	st := model.RideState{RideID: rideID}
	err := l.db.QueryRowContext(ctx, q, rideID).Scan(&st.Capacity, &st.Reserved, &st.Version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.RideState{}, ErrRideNotFound
		}
		return model.RideState{}, translateStoreErr(fmt.Errorf("read ride state: %w", err))
	}
	return st, nil
}

// translateStoreErr maps low-level store failures onto the sentinel
// taxonomy.  Deadlocks and lock wait timeouts are optimistic-concurrency
// aborts and therefore retryable; a deadline expiry is treated the same
// way because the store guarantees the transaction either fully committed
// or fully did not.  Connection-level failures become ErrStoreUnavailable.
func translateStoreErr(err error) error {
	if err == nil {
		return nil
	}
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		switch me.Number {
		case mysqlErrDeadlock, mysqlErrLockWaitTimeout:
			return fmt.Errorf("%w: %v", ErrTxConflict, err)
		}
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", ErrTxConflict, err)
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, mysql.ErrInvalidConn) {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	var ne interface{ Timeout() bool }
	if errors.As(err, &ne) && ne.Timeout() {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return err
}

// nowUTC is indirected for tests.
var nowUTC = func() time.Time { return time.Now().UTC() }
