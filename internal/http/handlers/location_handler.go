// README: Driver position ingest handler.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"buslink/internal/http/middleware"
	"buslink/internal/modules/trip"
	"buslink/internal/types"
)

type LocationHandler struct {
	trips *trip.Service
}

func NewLocationHandler(svc *trip.Service) *LocationHandler {
	return &LocationHandler{trips: svc}
}

type postLocationReq struct {
	Lat        float64 `json:"lat"`
	Lng        float64 `json:"lng"`
	SpeedKph   float64 `json:"speed_kph" binding:"omitempty,gte=0"`
	HeadingDeg float64 `json:"heading_deg" binding:"omitempty,heading"`
}

// Update ingests one position sample for an ongoing trip. Only the driver who
// owns the trip may post; coordinate range and trip state are enforced by the
// service, which distinguishes 400 / 404 / 409 for the driver app's retry
// policy.
func (h *LocationHandler) Update(c *gin.Context) {
	caller, ok := middleware.Caller(c)
	if !ok || caller.Kind != middleware.PrincipalDriver {
		writeError(c, http.StatusForbidden, "forbidden: driver role required")
		return
	}
	id := c.Param("id")
	if !isValidID(id) {
		writeError(c, http.StatusBadRequest, "bad trip id format")
		return
	}
	t, err := h.trips.Get(c.Request.Context(), types.ID(id))
	if err != nil {
		writeTripError(c, err)
		return
	}
	if !h.trips.Owns(t, caller.ID) {
		writeError(c, http.StatusForbidden, "forbidden: trip belongs to another driver")
		return
	}

	var req postLocationReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}
	err = h.trips.UpdateLocation(c.Request.Context(), trip.UpdateLocationCommand{
		TripID:     types.ID(id),
		Point:      types.Point{Lat: req.Lat, Lng: req.Lng},
		SpeedKph:   req.SpeedKph,
		HeadingDeg: req.HeadingDeg,
	})
	if err != nil {
		writeTripError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"status": "ok"})
}
