// README: HTTP router registration.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"buslink/internal/broadcast"
	"buslink/internal/http/handlers"
	"buslink/internal/http/middleware"
	"buslink/internal/modules/match"
	"buslink/internal/modules/trip"
)

type RouterDeps struct {
	Trips    *trip.Service
	Matches  *match.Service
	Hub      *broadcast.Hub
	GeoIndex *trip.RedisGeoIndex
}

func NewRouter(deps RouterDeps) *gin.Engine {
	registerValidators()

	r := gin.New()
	r.Use(middleware.Logging(), middleware.Recovery())

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})

	tripHandler := handlers.NewTripHandler(deps.Trips, deps.GeoIndex)
	locationHandler := handlers.NewLocationHandler(deps.Trips)
	matchHandler := handlers.NewMatchHandler(deps.Matches)
	streamHandler := handlers.NewStreamHandler(deps.Trips, deps.Hub)

	api := r.Group("/api", middleware.Identity())
	api.POST("/trips", tripHandler.Create)
	api.GET("/trips/nearby", tripHandler.Nearby)
	api.GET("/trips/:id", tripHandler.Get)
	api.POST("/trips/:id/start", tripHandler.Start)
	api.POST("/trips/:id/complete", tripHandler.Complete)
	api.POST("/trips/:id/seats", tripHandler.Seats)
	api.POST("/trips/:id/location", locationHandler.Update)
	api.GET("/trips/:id/events", streamHandler.Events)
	api.GET("/matches", matchHandler.Find)

	return r
}

// registerValidators adds the compass-heading rule to gin's binding engine.
func registerValidators() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		_ = v.RegisterValidation("heading", func(fl validator.FieldLevel) bool {
			h := fl.Field().Float()
			return h >= 0 && h <= 360
		})
	}
}
