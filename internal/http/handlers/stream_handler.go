// README: Per-trip SSE event stream (location and ETA fan-out).
package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"buslink/internal/broadcast"
	"buslink/internal/modules/trip"
	"buslink/internal/types"
)

type StreamHandler struct {
	trips *trip.Service
	hub   *broadcast.Hub
}

func NewStreamHandler(svc *trip.Service, hub *broadcast.Hub) *StreamHandler {
	return &StreamHandler{trips: svc, hub: hub}
}

// Events subscribes the caller to a trip's live event stream over SSE.
// Passing pickup_lat/pickup_lng registers a pickup point, which turns on ETA
// events recomputed for that point on every position update.
func (h *StreamHandler) Events(c *gin.Context) {
	id := c.Param("id")
	if !isValidID(id) {
		writeError(c, http.StatusBadRequest, "bad trip id format")
		return
	}
	if _, err := h.trips.Get(c.Request.Context(), types.ID(id)); err != nil {
		writeTripError(c, err)
		return
	}

	var pickup *types.Point
	if lat, ok := floatQuery(c, "pickup_lat"); ok {
		lng, ok := floatQuery(c, "pickup_lng")
		if !ok {
			writeError(c, http.StatusBadRequest, "pickup_lng is required with pickup_lat")
			return
		}
		p := types.Point{Lat: lat, Lng: lng}
		if !p.Valid() {
			writeError(c, http.StatusBadRequest, trip.ErrInvalidCoordinate.Error())
			return
		}
		pickup = &p
	}

	sub := h.hub.Subscribe(types.ID(id), pickup)
	defer sub.Close()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)

	c.Stream(func(w io.Writer) bool {
		select {
		case ev, open := <-sub.Events():
			if !open {
				return false
			}
			c.SSEvent(string(ev.Kind), ev)
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}
