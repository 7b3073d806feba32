package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/WebabyApps/RideMate/internal/feed"
)

// StreamHandler serves live "seats remaining" displays over
// server-sent events, backed by the change feed.
type StreamHandler struct {
	Feed *feed.Feed
}

// NewStreamHandler constructs a StreamHandler.  The feed must be
// non-nil.
func NewStreamHandler(f *feed.Feed) *StreamHandler {
	if f == nil {
		panic("nil feed passed to NewStreamHandler")
	}
	return &StreamHandler{Feed: f}
}

// StreamSeats handles GET /v1/rides/:id/seats/stream.  The response is a
// text/event-stream of RideState snapshots: a full current snapshot
// first, then one message per committed seat transition.  The stream
// ends when the client disconnects; the subscription is released
// synchronously on the way out.
func (h *StreamHandler) StreamSeats(c echo.Context) error {
	rideID := strings.TrimSpace(c.Param("id"))
	if rideID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid ride id"})
	}

	ctx := c.Request().Context()
	sub, err := h.Feed.Subscribe(ctx, rideID)
	if err != nil {
		return writeDomainError(c, err)
	}
	defer sub.Close()

	resp := c.Response()
	resp.Header().Set(echo.HeaderContentType, "text/event-stream")
	resp.Header().Set(echo.HeaderCacheControl, "no-cache")
	resp.Header().Set(echo.HeaderConnection, "keep-alive")
	resp.WriteHeader(http.StatusOK)
	resp.Flush()

	for {
		select {
		case <-ctx.Done():
			return nil
		case st, ok := <-sub.Updates():
			if !ok {
				return nil
			}
			payload, err := json.Marshal(st)
			if err != nil {
				return err
			}
			if _, err := fmt.Fprintf(resp, "data: %s\n\n", payload); err != nil {
				return nil // client went away
			}
			resp.Flush()
		}
	}
}
