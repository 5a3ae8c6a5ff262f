// README: Rider match search handler.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"buslink/internal/modules/match"
	"buslink/internal/types"
)

type MatchHandler struct {
	matches *match.Service
}

func NewMatchHandler(svc *match.Service) *MatchHandler {
	return &MatchHandler{matches: svc}
}

// Find returns ongoing trips whose route covers the rider's journey, ranked
// by match score. Partial results are always preferred: a trip whose ETA
// lookup failed still appears, just without live data.
func (h *MatchHandler) Find(c *gin.Context) {
	pickupLat, ok1 := floatQuery(c, "pickup_lat")
	pickupLng, ok2 := floatQuery(c, "pickup_lng")
	dropLat, ok3 := floatQuery(c, "dropoff_lat")
	dropLng, ok4 := floatQuery(c, "dropoff_lng")
	if !ok1 || !ok2 || !ok3 || !ok4 {
		writeError(c, http.StatusBadRequest, "pickup and dropoff coordinates are required")
		return
	}
	results, err := h.matches.FindMatches(c.Request.Context(),
		types.Point{Lat: pickupLat, Lng: pickupLng},
		types.Point{Lat: dropLat, Lng: dropLng},
	)
	if err != nil {
		writeTripError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"matches": results})
}
