// README: Trip handlers for declare/start/complete/detail/nearby.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"buslink/internal/http/middleware"
	"buslink/internal/modules/trip"
	"buslink/internal/types"
)

type TripHandler struct {
	trips    *trip.Service
	geoIndex *trip.RedisGeoIndex // optional
}

func NewTripHandler(svc *trip.Service, geoIndex *trip.RedisGeoIndex) *TripHandler {
	return &TripHandler{trips: svc, geoIndex: geoIndex}
}

type createTripReq struct {
	Source      string  `json:"source" binding:"required"`
	Destination string  `json:"destination" binding:"required"`
	SourceLat   float64 `json:"source_lat" binding:"gte=-90,lte=90"`
	SourceLng   float64 `json:"source_lng" binding:"gte=-180,lte=180"`
	DestLat     float64 `json:"dest_lat" binding:"gte=-90,lte=90"`
	DestLng     float64 `json:"dest_lng" binding:"gte=-180,lte=180"`
	TotalSeats  int     `json:"total_seats" binding:"required,gt=0"`
}

type locationView struct {
	Lat             float64 `json:"lat"`
	Lng             float64 `json:"lng"`
	SpeedKph        float64 `json:"speed_kph"`
	HeadingDeg      float64 `json:"heading_deg"`
	TimestampMillis int64   `json:"timestamp_ms"`
}

type tripView struct {
	ID              types.ID      `json:"trip_id"`
	Source          string        `json:"source"`
	Destination     string        `json:"destination"`
	Status          trip.Status   `json:"status"`
	TotalSeats      int           `json:"total_seats"`
	OccupiedSeats   int           `json:"occupied_seats"`
	RouteDistanceM  int           `json:"route_distance_m"`
	RouteDurationS  int           `json:"route_duration_s"`
	CurrentLocation *locationView `json:"current_location,omitempty"`
}

func toTripView(t trip.Trip) tripView {
	v := tripView{
		ID:             t.ID,
		Source:         t.Source,
		Destination:    t.Destination,
		Status:         t.Status,
		TotalSeats:     t.TotalSeats,
		OccupiedSeats:  t.OccupiedSeats,
		RouteDistanceM: t.RouteDistanceM,
		RouteDurationS: int(t.RouteDuration.Seconds()),
	}
	if t.CurrentLocation != nil {
		v.CurrentLocation = &locationView{
			Lat:             t.CurrentLocation.Point.Lat,
			Lng:             t.CurrentLocation.Point.Lng,
			SpeedKph:        t.CurrentLocation.SpeedKph,
			HeadingDeg:      t.CurrentLocation.HeadingDeg,
			TimestampMillis: t.CurrentLocation.TimestampMillis,
		}
	}
	return v
}

func (h *TripHandler) Create(c *gin.Context) {
	caller, ok := middleware.Caller(c)
	if !ok || caller.Kind != middleware.PrincipalDriver {
		writeError(c, http.StatusForbidden, "forbidden: driver role required")
		return
	}
	var req createTripReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}
	t, err := h.trips.Create(c.Request.Context(), trip.CreateCommand{
		DriverID:    caller.ID,
		Source:      req.Source,
		Destination: req.Destination,
		SourcePoint: types.Point{Lat: req.SourceLat, Lng: req.SourceLng},
		DestPoint:   types.Point{Lat: req.DestLat, Lng: req.DestLng},
		TotalSeats:  req.TotalSeats,
	})
	if err != nil {
		writeTripError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, toTripView(t))
}

func (h *TripHandler) Start(c *gin.Context) {
	t, ok := h.ownedTrip(c)
	if !ok {
		return
	}
	updated, err := h.trips.Start(c.Request.Context(), t.ID)
	if err != nil {
		writeTripError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, toTripView(updated))
}

func (h *TripHandler) Complete(c *gin.Context) {
	t, ok := h.ownedTrip(c)
	if !ok {
		return
	}
	updated, err := h.trips.Complete(c.Request.Context(), t.ID)
	if err != nil {
		writeTripError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, toTripView(updated))
}

func (h *TripHandler) Get(c *gin.Context) {
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
	writeJSON(c, http.StatusOK, toTripView(t))
}

type setSeatsReq struct {
	OccupiedSeats *int `json:"occupied_seats" binding:"required"`
}

// Seats updates the occupied seat count. Riders board and leave offline, so
// the count is driver-reported rather than derived from bookings.
func (h *TripHandler) Seats(c *gin.Context) {
	t, ok := h.ownedTrip(c)
	if !ok {
		return
	}
	var req setSeatsReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}
	updated, err := h.trips.SetSeats(c.Request.Context(), t.ID, *req.OccupiedSeats)
	if err != nil {
		writeTripError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, toTripView(updated))
}

// Nearby lists ongoing trips currently within radius_km of a point, using
// the Redis position index.
func (h *TripHandler) Nearby(c *gin.Context) {
	if h.geoIndex == nil {
		writeError(c, http.StatusServiceUnavailable, "position index disabled")
		return
	}
	lat, ok1 := floatQuery(c, "lat")
	lng, ok2 := floatQuery(c, "lng")
	if !ok1 || !ok2 {
		writeError(c, http.StatusBadRequest, "lat and lng are required")
		return
	}
	p := types.Point{Lat: lat, Lng: lng}
	if !p.Valid() {
		writeError(c, http.StatusBadRequest, trip.ErrInvalidCoordinate.Error())
		return
	}
	radiusKm := 5.0
	if v, ok := floatQuery(c, "radius_km"); ok {
		radiusKm = v
	}
	ids, err := h.geoIndex.Nearby(c.Request.Context(), p, radiusKm)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "internal error")
		return
	}
	views := make([]tripView, 0, len(ids))
	for _, id := range ids {
		t, err := h.trips.Get(c.Request.Context(), id)
		if err != nil || t.Status != trip.StatusOngoing {
			continue
		}
		views = append(views, toTripView(t))
	}
	writeJSON(c, http.StatusOK, gin.H{"trips": views})
}

// ownedTrip loads the path trip and enforces that the authenticated driver
// owns it.
func (h *TripHandler) ownedTrip(c *gin.Context) (trip.Trip, bool) {
	caller, ok := middleware.Caller(c)
	if !ok || caller.Kind != middleware.PrincipalDriver {
		writeError(c, http.StatusForbidden, "forbidden: driver role required")
		return trip.Trip{}, false
	}
	id := c.Param("id")
	if !isValidID(id) {
		writeError(c, http.StatusBadRequest, "bad trip id format")
		return trip.Trip{}, false
	}
	t, err := h.trips.Get(c.Request.Context(), types.ID(id))
	if err != nil {
		writeTripError(c, err)
		return trip.Trip{}, false
	}
	if !h.trips.Owns(t, caller.ID) {
		writeError(c, http.StatusForbidden, "forbidden: trip belongs to another driver")
		return trip.Trip{}, false
	}
	return t, true
}
