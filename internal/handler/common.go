package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/WebabyApps/RideMate/internal/model"
	"github.com/WebabyApps/RideMate/internal/repository"
)

// subjectID extracts the authenticated subject identifier placed in the
// context by the JWT middleware.
func subjectID(c echo.Context) (string, error) {
	if v, ok := c.Get("subject_id").(string); ok && v != "" {
		return v, nil
	}
	return "", errors.New("missing subject_id in context")
}

// passengerFromContext assembles the denormalized passenger profile from
// the token claims stored by the JWT middleware.  Name and avatar are
// optional; the subject ID is not.
func passengerFromContext(c echo.Context) (model.Passenger, error) {
	sid, err := subjectID(c)
	if err != nil {
		return model.Passenger{}, err
	}
	p := model.Passenger{ID: sid}
	if v, ok := c.Get("first_name").(string); ok {
		p.FirstName = v
	}
	if v, ok := c.Get("last_name").(string); ok {
		p.LastName = v
	}
	if v, ok := c.Get("avatar_url").(string); ok {
		p.AvatarURL = v
	}
	return p, nil
}

// writeDomainError maps the sentinel error taxonomy onto HTTP responses.
// RideFull and DuplicateBooking are informational conflict states for the
// caller, not system failures; transient store trouble maps to 503 so
// clients know a higher-level retry is appropriate.
func writeDomainError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, repository.ErrRideNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "ride not found"})
	case errors.Is(err, repository.ErrBookingNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "booking not found"})
	case errors.Is(err, repository.ErrRideFull):
		return c.JSON(http.StatusConflict, echo.Map{"error": "ride_full", "message": "no available seats on this ride"})
	case errors.Is(err, repository.ErrDuplicateBooking):
		return c.JSON(http.StatusConflict, echo.Map{"error": "already_booked", "message": "you have already booked a seat on this ride"})
	case errors.Is(err, repository.ErrSelfBooking):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "cannot book your own ride"})
	case errors.Is(err, repository.ErrForbidden):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	case errors.Is(err, repository.ErrTxConflict), errors.Is(err, repository.ErrStoreUnavailable):
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "temporarily unavailable, please retry"})
	default:
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
}
