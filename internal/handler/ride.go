package handler

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/WebabyApps/RideMate/internal/model"
	"github.com/WebabyApps/RideMate/internal/repository"
)

// RideHandler serves the ride offer/browse surface: creating a ride,
// fetching it, searching by route, and the owner-only cascading delete.
type RideHandler struct {
	Rides *repository.RideRepo
}

// NewRideHandler constructs a RideHandler.  The repository must be
// non-nil.
func NewRideHandler(rides *repository.RideRepo) *RideHandler {
	if rides == nil {
		panic("nil repository passed to NewRideHandler")
	}
	return &RideHandler{Rides: rides}
}

// CreateRide handles POST /v1/rides.  The authenticated subject becomes
// the ride's owner.  The body carries origin, destination, an RFC3339
// departure time, the seat count and an optional per-seat price.
func (h *RideHandler) CreateRide(c echo.Context) error {
	ownerID, err := subjectID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	var body struct {
		Origin        string `json:"origin"`
		Destination   string `json:"destination"`
		DepartureTime string `json:"departure_time"`
		Seats         int    `json:"seats"`
		PriceCents    uint32 `json:"price_cents"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	departure, err := time.Parse(time.RFC3339, body.DepartureTime)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "departure_time must be RFC3339"})
	}

	ride, err := model.NewRide(ownerID, body.Origin, body.Destination, departure, body.Seats, body.PriceCents)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	if err := h.Rides.Create(c.Request().Context(), ride); err != nil {
		return writeDomainError(c, err)
	}
	return c.JSON(http.StatusCreated, ride)
}

// GetRide handles GET /v1/rides/:id.
func (h *RideHandler) GetRide(c echo.Context) error {
	rideID := strings.TrimSpace(c.Param("id"))
	if rideID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid ride id"})
	}
	ride, err := h.Rides.GetByID(c.Request().Context(), rideID)
	if err != nil {
		return writeDomainError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"ride": ride, "seats_remaining": ride.SeatsRemaining()})
}

// SearchRides handles GET /v1/rides.  Both query parameters are
// optional substring filters; results come back soonest departure first.
func (h *RideHandler) SearchRides(c echo.Context) error {
	rides, err := h.Rides.Search(c.Request().Context(), c.QueryParam("origin"), c.QueryParam("destination"))
	if err != nil {
		return writeDomainError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"rides": rides})
}

// DeleteRide handles DELETE /v1/rides/:id.  Only the offering owner may
// delete; the ride's bookings are removed in the same transaction so no
// orphaned booking survives.
func (h *RideHandler) DeleteRide(c echo.Context) error {
	ownerID, err := subjectID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	rideID := strings.TrimSpace(c.Param("id"))
	if rideID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid ride id"})
	}

	if err := h.Rides.DeleteCascade(c.Request().Context(), rideID, ownerID); err != nil {
		if errors.Is(err, repository.ErrForbidden) {
			return c.JSON(http.StatusForbidden, echo.Map{"error": "only the ride owner may delete it"})
		}
		return writeDomainError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
