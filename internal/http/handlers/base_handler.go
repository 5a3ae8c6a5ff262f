// README: Base handler utilities (JSON helpers, error mapping).
package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"buslink/internal/modules/trip"
)

type errorResponse struct {
	Error string `json:"error"`
}

// isValidID ensures trip ids are hex and at most 32 chars (matches the ID generator).
func isValidID(v string) bool {
	if v == "" || len(v) > 32 {
		return false
	}
	for _, c := range v {
		if (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') {
			continue
		}
		return false
	}
	return true
}

func writeJSON(c *gin.Context, status int, v any) {
	c.JSON(status, v)
}

func writeError(c *gin.Context, status int, msg string) {
	writeJSON(c, status, errorResponse{Error: msg})
}

// writeTripError maps the trip error taxonomy onto HTTP statuses. A state
// error is deliberately distinct from not-found so clients can tell "wrong
// trip" from "trip already finished".
func writeTripError(c *gin.Context, err error) {
	switch err {
	case trip.ErrBadRequest, trip.ErrInvalidCoordinate:
		writeError(c, http.StatusBadRequest, err.Error())
	case trip.ErrNotFound:
		writeError(c, http.StatusNotFound, err.Error())
	case trip.ErrNotOngoing, trip.ErrInvalidState, trip.ErrConflict:
		writeError(c, http.StatusConflict, err.Error())
	case trip.ErrBadRoute:
		writeError(c, http.StatusBadGateway, err.Error())
	case trip.ErrRouteUnavailable:
		writeError(c, http.StatusServiceUnavailable, err.Error())
	default:
		writeError(c, http.StatusInternalServerError, "internal error")
	}
}

// floatQuery parses a required float query parameter.
func floatQuery(c *gin.Context, name string) (float64, bool) {
	raw := c.Query(name)
	if raw == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
