package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/WebabyApps/RideMate/internal/feed"
	"github.com/WebabyApps/RideMate/internal/model"
	"github.com/WebabyApps/RideMate/internal/repository"
	"github.com/WebabyApps/RideMate/internal/service"
)

// newBookingEnv wires the handler against the in-memory ledger and a
// live change feed, the same composition main uses minus the transports.
func newBookingEnv(t *testing.T) (*ReservationHandler, *repository.MemoryLedger, *model.Ride) {
	t.Helper()
	ml := repository.NewMemoryLedger()
	ride, err := model.NewRide("owner", "Berlin", "Hamburg", time.Now().Add(time.Hour), 1, 500)
	require.NoError(t, err)
	ml.AddRide(ride)

	svc := service.NewReservationService(ml, feed.New(ml.RideState, nil), nil)
	return NewReservationHandler(svc), ml, ride
}

func doBooking(h *ReservationHandler, rideID, subject string) *httptest.ResponseRecorder {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetPath("/v1/rides/:id/bookings")
	c.SetParamNames("id")
	c.SetParamValues(rideID)
	if subject != "" {
		c.Set("subject_id", subject)
		c.Set("first_name", "Ada")
		c.Set("last_name", "Lovelace")
	}
	_ = h.CreateBooking(c)
	return rec
}

func doCancel(h *ReservationHandler, bookingID, subject string) *httptest.ResponseRecorder {
	e := echo.New()
	req := httptest.NewRequest(http.MethodDelete, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetPath("/v1/bookings/:id")
	c.SetParamNames("id")
	c.SetParamValues(bookingID)
	if subject != "" {
		c.Set("subject_id", subject)
	}
	_ = h.CancelBooking(c)
	return rec
}

func TestCreateBookingCreated(t *testing.T) {
	h, _, ride := newBookingEnv(t)

	rec := doBooking(h, ride.ID, "alice")
	require.Equal(t, http.StatusCreated, rec.Code)

	var b model.Booking
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &b))
	assert.Equal(t, ride.ID, b.RideID)
	assert.Equal(t, "alice", b.SubjectID)
	assert.Equal(t, "Ada", b.Passenger.FirstName)
}

func TestCreateBookingConflictStates(t *testing.T) {
	h, _, ride := newBookingEnv(t)

	require.Equal(t, http.StatusCreated, doBooking(h, ride.ID, "alice").Code)

	// Same subject again: structural dedup, not a capacity refusal.
	rec := doBooking(h, ride.ID, "alice")
	assert.Equal(t, http.StatusConflict, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "already_booked", body["error"])

	// A different subject finds the single seat taken.
	rec = doBooking(h, ride.ID, "bob")
	assert.Equal(t, http.StatusConflict, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ride_full", body["error"])
}

func TestCreateBookingOwnRideForbidden(t *testing.T) {
	h, _, ride := newBookingEnv(t)
	rec := doBooking(h, ride.ID, "owner")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestCreateBookingUnknownRide(t *testing.T) {
	h, _, _ := newBookingEnv(t)
	rec := doBooking(h, "no-such-ride", "alice")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateBookingUnauthorized(t *testing.T) {
	h, _, ride := newBookingEnv(t)
	rec := doBooking(h, ride.ID, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCancelBookingLifecycle(t *testing.T) {
	h, _, ride := newBookingEnv(t)

	rec := doBooking(h, ride.ID, "alice")
	require.Equal(t, http.StatusCreated, rec.Code)
	var b model.Booking
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &b))

	assert.Equal(t, http.StatusNoContent, doCancel(h, b.ID, "alice").Code)
	// Gone means gone; a second cancel is a 404, not a silent no-op.
	assert.Equal(t, http.StatusNotFound, doCancel(h, b.ID, "alice").Code)

	// The freed seat is bookable again.
	assert.Equal(t, http.StatusCreated, doBooking(h, ride.ID, "bob").Code)
}

func TestListBookings(t *testing.T) {
	ml := repository.NewMemoryLedger()
	ride, err := model.NewRide("owner", "Berlin", "Hamburg", time.Now().Add(time.Hour), 3, 500)
	require.NoError(t, err)
	ml.AddRide(ride)
	svc := service.NewReservationService(ml, feed.New(ml.RideState, nil), nil)
	h := NewReservationHandler(svc)

	require.Equal(t, http.StatusCreated, doBooking(h, ride.ID, "alice").Code)
	require.Equal(t, http.StatusCreated, doBooking(h, ride.ID, "bob").Code)

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetPath("/v1/rides/:id/bookings")
	c.SetParamNames("id")
	c.SetParamValues(ride.ID)
	require.NoError(t, h.ListBookings(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Bookings []model.Booking `json:"bookings"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Bookings, 2)
	subjects := []string{body.Bookings[0].SubjectID, body.Bookings[1].SubjectID}
	assert.ElementsMatch(t, []string{"alice", "bob"}, subjects)
}
