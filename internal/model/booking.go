package model

import "time"

// Passenger carries the denormalized profile of the booking subject so
// that passenger lists render without a lookup against the identity
// collaborator.  Values originate from the caller's verified token.
type Passenger struct {
	ID        string `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	AvatarURL string `json:"avatar_url"`
}

// Booking is one subject's confirmed claim on one seat of one ride.
// The (RideID, SubjectID) pair is unique among live bookings; that
// uniqueness is enforced by the store's composite key, not by
// application-level checks.  Bookings are created by Reserve, deleted
// by Release and never updated in place.
//
// Fields:
//  ID        – opaque UUID identifier.
//  RideID    – ride this seat belongs to.
//  SubjectID – subject holding the seat.
//  Passenger – embedded display profile of the subject.
//  CreatedAt – commit timestamp assigned by the store.
type Booking struct {
	ID        string    `json:"id"`
	RideID    string    `json:"ride_id"`
	SubjectID string    `json:"subject_id"`
	Passenger Passenger `json:"passenger"`
	CreatedAt time.Time `json:"created_at"`
}
