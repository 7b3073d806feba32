package handler

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/WebabyApps/RideMate/internal/service"
)

// ReservationHandler exposes the reservation facade over HTTP.  All
// methods assume that JWT authentication has already been performed by
// middleware where required; methods return 401 Unauthorized when the
// subject cannot be extracted from the context.
type ReservationHandler struct {
	Svc *service.ReservationService
}

// NewReservationHandler constructs a ReservationHandler.  The service
// must be non-nil.
func NewReservationHandler(svc *service.ReservationService) *ReservationHandler {
	if svc == nil {
		panic("nil service passed to NewReservationHandler")
	}
	return &ReservationHandler{Svc: svc}
}

// CreateBooking handles POST /v1/rides/:id/bookings.  It reserves one
// seat on the ride for the authenticated subject and returns 201 with
// the new booking.  Full rides and repeat bookings come back as 409
// conflict states rather than server failures.
func (h *ReservationHandler) CreateBooking(c echo.Context) error {
	passenger, err := passengerFromContext(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	rideID := strings.TrimSpace(c.Param("id"))
	if rideID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid ride id"})
	}

	booking, err := h.Svc.Reserve(c.Request().Context(), rideID, passenger.ID, passenger)
	if err != nil {
		return writeDomainError(c, err)
	}
	return c.JSON(http.StatusCreated, booking)
}

// CancelBooking handles DELETE /v1/bookings/:id.  The caller must know
// its own booking ID; releasing an already released booking yields 404.
func (h *ReservationHandler) CancelBooking(c echo.Context) error {
	if _, err := subjectID(c); err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	bookingID := strings.TrimSpace(c.Param("id"))
	if bookingID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid booking id"})
	}

	if err := h.Svc.Release(c.Request().Context(), bookingID); err != nil {
		return writeDomainError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// ListBookings handles GET /v1/rides/:id/bookings.  It returns the live
// bookings with embedded passenger info, creation order, for rendering
// passenger lists.
func (h *ReservationHandler) ListBookings(c echo.Context) error {
	rideID := strings.TrimSpace(c.Param("id"))
	if rideID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid ride id"})
	}

	bookings, err := h.Svc.ListBookings(c.Request().Context(), rideID)
	if err != nil {
		return writeDomainError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"bookings": bookings})
}
