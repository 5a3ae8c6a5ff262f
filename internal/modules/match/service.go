// README: Match search service ranks ongoing trips for a rider's journey.
package match

import (
	"context"
	"log"
	"sort"
	"time"

	"buslink/internal/metrics"
	"buslink/internal/modules/trip"
	"buslink/internal/types"
)

// TripSource is the candidate pool: all Ongoing trips, in discovery order.
type TripSource interface {
	ListActive() []trip.Trip
}

type ETAOracle interface {
	GetETA(ctx context.Context, origin, dest types.Point) (types.ETA, error)
}

type Config struct {
	BufferKm        float64
	CeilingKm       float64
	ProximityWeight int
	OrderWeight     int
	ETATimeout      time.Duration
}

func DefaultConfig() Config {
	return Config{
		BufferKm:        DefaultBufferKm,
		CeilingKm:       DefaultCeilingKm,
		ProximityWeight: DefaultProximityWeight,
		OrderWeight:     DefaultOrderWeight,
		ETATimeout:      2 * time.Second,
	}
}

// Result is ephemeral; it is computed per search and never persisted.
type Result struct {
	TripID            types.ID `json:"trip_id"`
	Source            string   `json:"source"`
	Destination       string   `json:"destination"`
	Score             int      `json:"score"`
	HasLiveLocation   bool     `json:"has_live_location"`
	ETASeconds        *int     `json:"eta_seconds,omitempty"`
	ETADistanceMeters *int     `json:"eta_distance_meters,omitempty"`
	SeatsAvailable    int      `json:"seats_available"`
}

type Service struct {
	trips   TripSource
	oracle  ETAOracle
	cfg     Config
	metrics *metrics.Collector
}

func NewService(trips TripSource, oracle ETAOracle, cfg Config, m *metrics.Collector) *Service {
	if cfg.ETATimeout <= 0 {
		cfg.ETATimeout = 2 * time.Second
	}
	return &Service{trips: trips, oracle: oracle, cfg: cfg, metrics: m}
}

// FindMatches tests every Ongoing trip against the rider's journey and ranks
// the hits. One slow or failing ETA lookup degrades only its own result to
// no-eta; the search itself never fails on oracle trouble.
func (s *Service) FindMatches(ctx context.Context, pickup, dropoff types.Point) ([]Result, error) {
	if !pickup.Valid() || !dropoff.Valid() {
		return nil, trip.ErrInvalidCoordinate
	}
	start := time.Now()
	if s.metrics != nil {
		s.metrics.MatchSearches.Inc()
	}

	results := make([]Result, 0)
	for _, t := range s.trips.ListActive() {
		route := t.RoutePath
		if len(route) == 0 || !IsJourneyOnRoute(pickup, dropoff, route, s.cfg.BufferKm) {
			continue
		}
		res := Result{
			TripID:         t.ID,
			Source:         t.Source,
			Destination:    t.Destination,
			Score:          RouteMatchScore(pickup, dropoff, route, s.cfg.CeilingKm, s.cfg.ProximityWeight, s.cfg.OrderWeight),
			SeatsAvailable: t.TotalSeats - t.OccupiedSeats,
		}
		// A trip that has not reported a position yet is still a valid match;
		// riders just see it without live data.
		if t.CurrentLocation != nil {
			if eta, ok := s.lookupETA(ctx, t.ID, t.CurrentLocation.Point, pickup); ok {
				res.HasLiveLocation = true
				secs := int(eta.Duration.Seconds())
				res.ETASeconds = &secs
				meters := eta.DistanceMeters
				res.ETADistanceMeters = &meters
			}
		}
		results = append(results, res)
	}

	// Stable: equal-score, equal-eta trips keep their discovery order.
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		a, b := results[i].ETASeconds, results[j].ETASeconds
		switch {
		case a != nil && b != nil:
			return *a < *b
		case a != nil:
			return true // trips with no eta sort last
		default:
			return false
		}
	})

	if s.metrics != nil {
		s.metrics.MatchSearchDuration.Observe(time.Since(start).Seconds())
	}
	return results, nil
}

// lookupETA asks the oracle with a bounded timeout. A failure or timeout is a
// degraded result, not an error.
func (s *Service) lookupETA(ctx context.Context, tripID types.ID, from, to types.Point) (types.ETA, bool) {
	cctx, cancel := context.WithTimeout(ctx, s.cfg.ETATimeout)
	defer cancel()
	start := time.Now()
	eta, err := s.oracle.GetETA(cctx, from, to)
	if s.metrics != nil {
		s.metrics.ETALookupDuration.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		if s.metrics != nil {
			s.metrics.ETAFailures.Inc()
		}
		log.Printf("trip %s: eta lookup failed: %v", tripID, err)
		return types.ETA{}, false
	}
	return eta, true
}
