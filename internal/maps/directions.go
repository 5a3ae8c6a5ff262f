// README: Google Maps Directions adapter; route fetch and ETA oracle.
package maps

import (
	"context"
	"fmt"

	"googlemaps.github.io/maps"

	"buslink/internal/modules/trip"
	"buslink/internal/types"
)

// DirectionsService handles interactions with the Google Maps Directions API.
// It implements both oracle roles the engine consumes: the one-time route
// fetch at trip creation and per-candidate ETA lookups.
type DirectionsService struct {
	client *maps.Client
}

// NewDirectionsService creates a DirectionsService with the given API key.
func NewDirectionsService(apiKey string) (*DirectionsService, error) {
	client, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	return &DirectionsService{client: client}, nil
}

// GetRoute returns the driving route between two free-text place labels:
// the encoded overview polyline plus total distance and duration.
// It assumes driving mode.
func (s *DirectionsService) GetRoute(ctx context.Context, origin, destination string) (trip.RouteInfo, error) {
	r := &maps.DirectionsRequest{
		Origin:      origin,
		Destination: destination,
		Mode:        maps.TravelModeDriving,
	}
	routes, _, err := s.client.Directions(ctx, r)
	if err != nil {
		return trip.RouteInfo{}, fmt.Errorf("maps api error: %w", err)
	}
	if len(routes) == 0 || len(routes[0].Legs) == 0 {
		return trip.RouteInfo{}, fmt.Errorf("no route found from %q to %q", origin, destination)
	}

	route := routes[0]
	leg := route.Legs[0]
	return trip.RouteInfo{
		Polyline:       route.OverviewPolyline.Points,
		DistanceMeters: leg.Distance.Meters,
		Duration:       leg.Duration,
	}, nil
}

// GetETA returns the driving estimate between two coordinates.
func (s *DirectionsService) GetETA(ctx context.Context, origin, dest types.Point) (types.ETA, error) {
	r := &maps.DirectionsRequest{
		Origin:      fmt.Sprintf("%f,%f", origin.Lat, origin.Lng),
		Destination: fmt.Sprintf("%f,%f", dest.Lat, dest.Lng),
		Mode:        maps.TravelModeDriving,
	}
	routes, _, err := s.client.Directions(ctx, r)
	if err != nil {
		return types.ETA{}, fmt.Errorf("maps api error: %w", err)
	}
	if len(routes) == 0 || len(routes[0].Legs) == 0 {
		return types.ETA{}, fmt.Errorf("no route between coordinates")
	}

	leg := routes[0].Legs[0]
	return types.ETA{
		Duration:       leg.Duration,
		DistanceMeters: leg.Distance.Meters,
	}, nil
}
