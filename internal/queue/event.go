// Package queue defines message payloads exchanged over the message broker.
package queue

// Booking event types published to the booking.events queue.
const (
	EventBookingCreated  = "booking.created"
	EventBookingReleased = "booking.released"
)

// BookingEvent is published after a reservation commits or a booking is
// released.  It contains enough information for downstream consumers to
// log, notify, or trigger analytics without querying the primary
// database.  Notification delivery itself is owned by those consumers.
type BookingEvent struct {
	Type       string `json:"type"`
	BookingID  string `json:"booking_id"`
	RideID     string `json:"ride_id"`
	SubjectID  string `json:"subject_id"`
	Reserved   int    `json:"reserved"`
	Capacity   int    `json:"capacity"`
	OccurredAt string `json:"occurred_at"`
}
