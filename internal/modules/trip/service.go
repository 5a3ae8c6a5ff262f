// README: Trip service implements lifecycle transitions and location ingest.
package trip

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log"
	"time"

	"buslink/internal/geo"
	"buslink/internal/metrics"
	"buslink/internal/types"
)

var (
	ErrNotFound          = errors.New("trip not found")
	ErrNotOngoing        = errors.New("trip is not ongoing")
	ErrInvalidState      = errors.New("invalid state transition")
	ErrInvalidCoordinate = errors.New("coordinate out of range")
	ErrBadRequest        = errors.New("bad request")
	ErrConflict          = errors.New("trip state conflict")
	ErrBadRoute          = errors.New("route polyline is malformed")
	ErrRouteUnavailable  = errors.New("directions provider unavailable")
)

// RouteInfo is the directions provider's answer for a declared journey.
type RouteInfo struct {
	Polyline       string
	DistanceMeters int
	Duration       time.Duration
}

// RouteSource fetches the road route for a journey, called once per trip.
type RouteSource interface {
	GetRoute(ctx context.Context, origin, destination string) (RouteInfo, error)
}

// ETAOracle estimates travel time between two coordinates. Lookups may be
// slow or fail; callers bound them with a timeout and degrade on error.
type ETAOracle interface {
	GetETA(ctx context.Context, origin, dest types.Point) (types.ETA, error)
}

// Broadcaster fans location and ETA events out to a trip's subscribers.
type Broadcaster interface {
	PublishLocation(tripID types.ID, sample LocationSample)
	// PickupPoints lists the distinct pickup coordinates registered by current
	// subscribers of the trip. Empty means the ETA fan-out is a no-op.
	PickupPoints(tripID types.ID) []types.Point
	PublishETA(tripID types.ID, pickup types.Point, eta types.ETA)
}

// Archive persists trip records and location snapshots.
type Archive interface {
	InsertTrip(ctx context.Context, t Trip) error
	UpdateStatus(ctx context.Context, id types.ID, status Status, at time.Time) error
	AppendSample(ctx context.Context, id types.ID, sample LocationSample) error
	LoadOpen(ctx context.Context) ([]Trip, error)
}

// GeoIndex tracks each trip's latest position for radius queries.
type GeoIndex interface {
	Update(ctx context.Context, id types.ID, p types.Point) error
	Remove(ctx context.Context, id types.ID) error
}

type Service struct {
	store      *Store
	routes     RouteSource
	oracle     ETAOracle
	bcast      Broadcaster
	archive    Archive  // optional
	geoIndex   GeoIndex // optional
	etaTimeout time.Duration
	metrics    *metrics.Collector
}

type ServiceDeps struct {
	Store      *Store
	Routes     RouteSource
	Oracle     ETAOracle
	Broadcast  Broadcaster
	Archive    Archive
	GeoIndex   GeoIndex
	ETATimeout time.Duration
	Metrics    *metrics.Collector
}

func NewService(deps ServiceDeps) *Service {
	if deps.ETATimeout <= 0 {
		deps.ETATimeout = 2 * time.Second
	}
	return &Service{
		store:      deps.Store,
		routes:     deps.Routes,
		oracle:     deps.Oracle,
		bcast:      deps.Broadcast,
		archive:    deps.Archive,
		geoIndex:   deps.GeoIndex,
		etaTimeout: deps.ETATimeout,
		metrics:    deps.Metrics,
	}
}

type CreateCommand struct {
	DriverID    types.ID
	Source      string
	Destination string
	SourcePoint types.Point
	DestPoint   types.Point
	TotalSeats  int
}

// Create declares a new journey. The road route is fetched from the
// directions provider exactly once and decoded eagerly; a trip with an
// undecodable route is never stored.
func (s *Service) Create(ctx context.Context, cmd CreateCommand) (Trip, error) {
	if cmd.DriverID == "" || cmd.Source == "" || cmd.Destination == "" || cmd.TotalSeats <= 0 {
		return Trip{}, ErrBadRequest
	}
	if !cmd.SourcePoint.Valid() || !cmd.DestPoint.Valid() {
		return Trip{}, ErrInvalidCoordinate
	}

	route, err := s.routes.GetRoute(ctx, cmd.Source, cmd.Destination)
	if err != nil {
		return Trip{}, ErrRouteUnavailable
	}
	path, err := geo.DecodePolyline(route.Polyline)
	if err != nil {
		return Trip{}, ErrBadRoute
	}

	t := Trip{
		ID:             newID(),
		DriverID:       cmd.DriverID,
		Source:         cmd.Source,
		Destination:    cmd.Destination,
		SourcePoint:    cmd.SourcePoint,
		DestPoint:      cmd.DestPoint,
		RoutePolyline:  route.Polyline,
		RoutePath:      path,
		RouteDistanceM: route.DistanceMeters,
		RouteDuration:  route.Duration,
		Status:         StatusPending,
		TotalSeats:     cmd.TotalSeats,
		CreatedAt:      time.Now(),
	}
	if err := s.store.Create(t); err != nil {
		return Trip{}, err
	}
	if s.archive != nil {
		if err := s.archive.InsertTrip(ctx, t); err != nil {
			log.Printf("trip %s: archive insert failed: %v", t.ID, err)
		}
	}
	if s.metrics != nil {
		s.metrics.TripsCreated.Inc()
	}
	return t, nil
}

// Start moves a trip to Ongoing. Only Ongoing trips accept location updates
// and appear in the matching candidate pool.
func (s *Service) Start(ctx context.Context, id types.ID) (Trip, error) {
	t, err := s.store.SetStatus(id, StatusOngoing, time.Now())
	if err != nil {
		return Trip{}, err
	}
	s.archiveStatus(ctx, id, StatusOngoing)
	if s.metrics != nil {
		s.metrics.TripsStarted.Inc()
		s.metrics.ActiveTrips.Inc()
	}
	return t, nil
}

// Complete moves a trip to its terminal state and drops it from the live
// position index. The record stays readable for history.
func (s *Service) Complete(ctx context.Context, id types.ID) (Trip, error) {
	t, err := s.store.SetStatus(id, StatusCompleted, time.Now())
	if err != nil {
		return Trip{}, err
	}
	s.archiveStatus(ctx, id, StatusCompleted)
	if s.geoIndex != nil {
		if err := s.geoIndex.Remove(ctx, id); err != nil {
			log.Printf("trip %s: geo index remove failed: %v", id, err)
		}
	}
	if s.metrics != nil {
		s.metrics.TripsCompleted.Inc()
		s.metrics.ActiveTrips.Dec()
	}
	return t, nil
}

func (s *Service) archiveStatus(ctx context.Context, id types.ID, status Status) {
	if s.archive == nil {
		return
	}
	if err := s.archive.UpdateStatus(ctx, id, status, time.Now()); err != nil {
		log.Printf("trip %s: archive status update failed: %v", id, err)
	}
}

func (s *Service) Get(ctx context.Context, id types.ID) (Trip, error) {
	return s.store.Get(id)
}

// SetSeats records the driver's current occupied seat count.
func (s *Service) SetSeats(ctx context.Context, id types.ID, occupied int) (Trip, error) {
	return s.store.SetOccupiedSeats(id, occupied)
}

func (s *Service) Owns(t Trip, driverID types.ID) bool {
	return t.DriverID == driverID
}

type UpdateLocationCommand struct {
	TripID     types.ID
	Point      types.Point
	SpeedKph   float64
	HeadingDeg float64
}

// UpdateLocation is the driver-position ingest path. It validates the sample,
// appends it under the trip's Ongoing gate, then triggers the broadcast
// fan-out: a location event always, an ETA event only when a subscriber has
// registered a pickup point. Safe to call once per second per trip.
func (s *Service) UpdateLocation(ctx context.Context, cmd UpdateLocationCommand) error {
	if !cmd.Point.Valid() {
		s.countRejected("invalid_coordinate")
		return ErrInvalidCoordinate
	}
	if cmd.SpeedKph < 0 || cmd.HeadingDeg < 0 || cmd.HeadingDeg > 360 {
		s.countRejected("invalid_sample")
		return ErrBadRequest
	}
	heading := cmd.HeadingDeg
	if heading == 360 {
		heading = 0
	}

	sample := LocationSample{
		Point:           cmd.Point,
		TimestampMillis: time.Now().UnixMilli(),
		SpeedKph:        cmd.SpeedKph,
		HeadingDeg:      heading,
	}
	if err := s.store.AppendLocation(cmd.TripID, sample); err != nil {
		switch err {
		case ErrNotFound:
			s.countRejected("not_found")
		case ErrNotOngoing:
			s.countRejected("not_ongoing")
		}
		return err
	}
	if s.metrics != nil {
		s.metrics.LocationUpdates.Inc()
	}

	if s.geoIndex != nil {
		if err := s.geoIndex.Update(ctx, cmd.TripID, cmd.Point); err != nil {
			log.Printf("trip %s: geo index update failed: %v", cmd.TripID, err)
		}
	}
	if s.archive != nil {
		// Snapshot persistence is off the hot path; history order is already
		// fixed by the in-memory append above.
		go func() {
			actx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := s.archive.AppendSample(actx, cmd.TripID, sample); err != nil {
				log.Printf("trip %s: snapshot persist failed: %v", cmd.TripID, err)
			}
		}()
	}

	s.bcast.PublishLocation(cmd.TripID, sample)

	pickups := s.bcast.PickupPoints(cmd.TripID)
	if len(pickups) > 0 {
		go s.fanOutETA(cmd.TripID, sample.Point, pickups)
	}
	return nil
}

// fanOutETA recomputes the ETA from the bus's new position to every
// subscribed pickup point. A failed or slow lookup degrades that one pickup;
// it never blocks the ingest path or other pickups' events.
func (s *Service) fanOutETA(tripID types.ID, from types.Point, pickups []types.Point) {
	for _, pickup := range pickups {
		ctx, cancel := context.WithTimeout(context.Background(), s.etaTimeout)
		eta, err := s.oracle.GetETA(ctx, from, pickup)
		cancel()
		if err != nil {
			if s.metrics != nil {
				s.metrics.ETAFailures.Inc()
			}
			log.Printf("trip %s: eta lookup to (%f,%f) failed: %v", tripID, pickup.Lat, pickup.Lng, err)
			continue
		}
		s.bcast.PublishETA(tripID, pickup, eta)
	}
}

// Rehydrate reloads non-completed trips from the archive into the in-memory
// store, re-decoding each stored polyline. Called once at boot.
func (s *Service) Rehydrate(ctx context.Context) error {
	if s.archive == nil {
		return nil
	}
	trips, err := s.archive.LoadOpen(ctx)
	if err != nil {
		return err
	}
	for _, t := range trips {
		path, err := geo.DecodePolyline(t.RoutePolyline)
		if err != nil {
			log.Printf("trip %s: skipping rehydration, bad stored polyline: %v", t.ID, err)
			continue
		}
		t.RoutePath = path
		if err := s.store.Create(t); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) countRejected(reason string) {
	if s.metrics != nil {
		s.metrics.UpdatesRejected.WithLabelValues(reason).Inc()
	}
}

func newID() types.ID {
	var b [16]byte
	_, _ = rand.Read(b[:])
	return types.ID(hex.EncodeToString(b[:]))
}
