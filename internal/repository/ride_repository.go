package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/WebabyApps/RideMate/internal/model"
)

// RideRepo provides CRUD operations for rides.  Creation and deletion
// are the only mutations it performs; the reserved counter belongs to
// the Ledger and is never touched here.
type RideRepo struct {
	db *sql.DB
}

// NewRideRepo returns a RideRepo bound to the given database.
func NewRideRepo(db *sql.DB) *RideRepo { return &RideRepo{db: db} }

// Create inserts a new ride.  The ride must come from model.NewRide so
// that all invariants (positive capacity, zero reserved) already hold.
func (r *RideRepo) Create(ctx context.Context, ride *model.Ride) error {
	const q = `INSERT INTO rides (id, owner_id, origin, destination, departure_at, capacity, reserved, version, price_cents)
	           VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, q, ride.ID, ride.OwnerID, ride.Origin, ride.Destination,
		ride.DepartureTime, ride.Capacity, ride.Reserved, ride.Version, ride.PriceCents)
	if err != nil {
		return translateStoreErr(fmt.Errorf("insert ride: %w", err))
	}
	// Query back the row to populate the store-assigned creation time.
	const sel = `SELECT created_at FROM rides WHERE id = ?`
	if err := r.db.QueryRowContext(ctx, sel, ride.ID).Scan(&ride.CreatedAt); err != nil {
		return translateStoreErr(fmt.Errorf("read ride timestamp: %w", err))
	}
	return nil
}

// GetByID returns a single ride or ErrRideNotFound.
func (r *RideRepo) GetByID(ctx context.Context, id string) (*model.Ride, error) {
	const q = `SELECT id, owner_id, origin, destination, departure_at, capacity, reserved, version, price_cents, created_at
	           FROM rides WHERE id = ?`
	var ride model.Ride
	err := r.db.QueryRowContext(ctx, q, id).Scan(
		&ride.ID, &ride.OwnerID, &ride.Origin, &ride.Destination, &ride.DepartureTime,
		&ride.Capacity, &ride.Reserved, &ride.Version, &ride.PriceCents, &ride.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRideNotFound
		}
		return nil, translateStoreErr(fmt.Errorf("get ride: %w", err))
	}
	return &ride, nil
}

// Search returns rides matching the optional origin and destination
// substrings, soonest departure first.  Empty filters match everything.
func (r *RideRepo) Search(ctx context.Context, origin, destination string) ([]model.Ride, error) {
	q := `SELECT id, owner_id, origin, destination, departure_at, capacity, reserved, version, price_cents, created_at
	      FROM rides`
	var conds []string
	var args []interface{}
	if s := strings.TrimSpace(origin); s != "" {
		conds = append(conds, "origin LIKE ?")
		args = append(args, "%"+s+"%")
	}
	if s := strings.TrimSpace(destination); s != "" {
		conds = append(conds, "destination LIKE ?")
		args = append(args, "%"+s+"%")
	}
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += " ORDER BY departure_at ASC"

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, translateStoreErr(fmt.Errorf("search rides: %w", err))
	}
	defer rows.Close()

	rides := make([]model.Ride, 0)
	for rows.Next() {
		var ride model.Ride
		if err := rows.Scan(
			&ride.ID, &ride.OwnerID, &ride.Origin, &ride.Destination, &ride.DepartureTime,
			&ride.Capacity, &ride.Reserved, &ride.Version, &ride.PriceCents, &ride.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan ride: %w", err)
		}
		rides = append(rides, ride)
	}
	if err := rows.Err(); err != nil {
		return nil, translateStoreErr(err)
	}
	return rides, nil
}

// DeleteCascade removes a ride together with all of its bookings in one
// transaction so no orphaned booking can survive the ride.  Only the
// offering owner may delete; anyone else gets ErrForbidden.
func (r *RideRepo) DeleteCascade(ctx context.Context, rideID, ownerID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return translateStoreErr(fmt.Errorf("begin delete tx: %w", err))
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	var actualOwnerID string
	err = tx.QueryRowContext(ctx, `SELECT owner_id FROM rides WHERE id = ? FOR UPDATE`, rideID).Scan(&actualOwnerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrRideNotFound
		}
		return translateStoreErr(fmt.Errorf("lock ride row: %w", err))
	}
	if actualOwnerID != ownerID {
		return ErrForbidden
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM bookings WHERE ride_id = ?`, rideID); err != nil {
		return translateStoreErr(fmt.Errorf("delete ride bookings: %w", err))
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM rides WHERE id = ?`, rideID); err != nil {
		return translateStoreErr(fmt.Errorf("delete ride: %w", err))
	}

	if err := tx.Commit(); err != nil {
		return translateStoreErr(fmt.Errorf("commit delete: %w", err))
	}
	committed = true
	return nil
}
