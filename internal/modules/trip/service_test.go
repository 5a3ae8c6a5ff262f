package trip

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"buslink/internal/types"
)

// straight two-point line, decodes to (38.5,-120.2) and (40.7,-120.95)
const testPolyline = "_p~iF~ps|U_ulLnnqC"

type fakeRoutes struct {
	polyline string
	err      error
}

func (f *fakeRoutes) GetRoute(ctx context.Context, origin, destination string) (RouteInfo, error) {
	if f.err != nil {
		return RouteInfo{}, f.err
	}
	return RouteInfo{Polyline: f.polyline, DistanceMeters: 280000, Duration: 4 * time.Hour}, nil
}

type fakeOracle struct {
	mu    sync.Mutex
	calls int
	eta   types.ETA
	err   error
}

func (f *fakeOracle) GetETA(ctx context.Context, origin, dest types.Point) (types.ETA, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return types.ETA{}, f.err
	}
	return f.eta, nil
}

type fakeBroadcast struct {
	mu        sync.Mutex
	locations []LocationSample
	pickups   []types.Point
	etas      chan types.ETA
}

func newFakeBroadcast(pickups ...types.Point) *fakeBroadcast {
	return &fakeBroadcast{pickups: pickups, etas: make(chan types.ETA, 8)}
}

func (f *fakeBroadcast) PublishLocation(tripID types.ID, sample LocationSample) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.locations = append(f.locations, sample)
}

func (f *fakeBroadcast) PickupPoints(tripID types.ID) []types.Point { return f.pickups }

func (f *fakeBroadcast) PublishETA(tripID types.ID, pickup types.Point, eta types.ETA) {
	f.etas <- eta
}

func (f *fakeBroadcast) publishedLocations() []LocationSample {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]LocationSample(nil), f.locations...)
}

func newTestService(t *testing.T, bcast *fakeBroadcast, oracle *fakeOracle) (*Service, *Store) {
	t.Helper()
	store := NewStore()
	svc := NewService(ServiceDeps{
		Store:     store,
		Routes:    &fakeRoutes{polyline: testPolyline},
		Oracle:    oracle,
		Broadcast: bcast,
	})
	return svc, store
}

func TestService_CreateDecodesRouteOnce(t *testing.T) {
	svc, store := newTestService(t, newFakeBroadcast(), &fakeOracle{})

	got, err := svc.Create(context.Background(), CreateCommand{
		DriverID:    "driver-1",
		Source:      "Delhi",
		Destination: "Jaipur",
		SourcePoint: types.Point{Lat: 28.6139, Lng: 77.2090},
		DestPoint:   types.Point{Lat: 26.9124, Lng: 75.7873},
		TotalSeats:  40,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if got.Status != StatusPending {
		t.Errorf("status = %s, want pending", got.Status)
	}
	if len(got.RoutePath) != 2 {
		t.Fatalf("route path length = %d, want 2", len(got.RoutePath))
	}
	stored, err := store.Get(got.ID)
	if err != nil {
		t.Fatalf("stored trip missing: %v", err)
	}
	if len(stored.RoutePath) != 2 {
		t.Error("decoded path not persisted on the trip")
	}
}

func TestService_CreateRejectsBadInput(t *testing.T) {
	svc, _ := newTestService(t, newFakeBroadcast(), &fakeOracle{})

	valid := CreateCommand{
		DriverID:    "driver-1",
		Source:      "Delhi",
		Destination: "Jaipur",
		SourcePoint: types.Point{Lat: 28.6, Lng: 77.2},
		DestPoint:   types.Point{Lat: 26.9, Lng: 75.8},
		TotalSeats:  40,
	}

	tests := []struct {
		name   string
		mutate func(*CreateCommand)
		want   error
	}{
		{"missing driver", func(c *CreateCommand) { c.DriverID = "" }, ErrBadRequest},
		{"missing source", func(c *CreateCommand) { c.Source = "" }, ErrBadRequest},
		{"zero seats", func(c *CreateCommand) { c.TotalSeats = 0 }, ErrBadRequest},
		{"latitude out of range", func(c *CreateCommand) { c.SourcePoint.Lat = 91 }, ErrInvalidCoordinate},
		{"longitude out of range", func(c *CreateCommand) { c.DestPoint.Lng = -181 }, ErrInvalidCoordinate},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cmd := valid
			tc.mutate(&cmd)
			if _, err := svc.Create(context.Background(), cmd); err != tc.want {
				t.Errorf("err = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestService_CreateProviderFailures(t *testing.T) {
	store := NewStore()
	cmd := CreateCommand{
		DriverID: "d", Source: "A", Destination: "B",
		SourcePoint: types.Point{Lat: 1, Lng: 1},
		DestPoint:   types.Point{Lat: 2, Lng: 2},
		TotalSeats:  1,
	}

	svc := NewService(ServiceDeps{
		Store:     store,
		Routes:    &fakeRoutes{err: errors.New("upstream down")},
		Oracle:    &fakeOracle{},
		Broadcast: newFakeBroadcast(),
	})
	if _, err := svc.Create(context.Background(), cmd); err != ErrRouteUnavailable {
		t.Errorf("provider error: err = %v, want ErrRouteUnavailable", err)
	}

	svc = NewService(ServiceDeps{
		Store:     store,
		Routes:    &fakeRoutes{polyline: "_p~iF"}, // truncated mid-coordinate
		Oracle:    &fakeOracle{},
		Broadcast: newFakeBroadcast(),
	})
	if _, err := svc.Create(context.Background(), cmd); err != ErrBadRoute {
		t.Errorf("bad polyline: err = %v, want ErrBadRoute", err)
	}
	if trips := store.ListActive(); len(trips) != 0 {
		t.Error("failed create must not store a trip")
	}
}

func TestService_UpdateLocationLifecycleGate(t *testing.T) {
	bcast := newFakeBroadcast()
	svc, _ := newTestService(t, bcast, &fakeOracle{})
	ctx := context.Background()

	created, err := svc.Create(ctx, CreateCommand{
		DriverID: "d", Source: "A", Destination: "B",
		SourcePoint: types.Point{Lat: 1, Lng: 1},
		DestPoint:   types.Point{Lat: 2, Lng: 2},
		TotalSeats:  1,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	cmd := UpdateLocationCommand{TripID: created.ID, Point: types.Point{Lat: 28.5, Lng: 77.0}}

	if err := svc.UpdateLocation(ctx, cmd); err != ErrNotOngoing {
		t.Errorf("update on pending = %v, want ErrNotOngoing", err)
	}

	if _, err := svc.Start(ctx, created.ID); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := svc.UpdateLocation(ctx, cmd); err != nil {
		t.Errorf("update on ongoing = %v, want nil", err)
	}

	if _, err := svc.Complete(ctx, created.ID); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if err := svc.UpdateLocation(ctx, cmd); err != ErrNotOngoing {
		t.Errorf("update on completed = %v, want ErrNotOngoing", err)
	}

	got, _ := svc.Get(ctx, created.ID)
	if got.CurrentLocation == nil || len(got.History) != 1 {
		t.Fatalf("exactly one accepted sample expected, got %+v", got)
	}
	if got := bcast.publishedLocations(); len(got) != 1 {
		t.Errorf("broadcasts = %d, want 1", len(got))
	}
}

func TestService_UpdateLocationValidation(t *testing.T) {
	svc, store := newTestService(t, newFakeBroadcast(), &fakeOracle{})
	_ = store.Create(Trip{ID: "t1", DriverID: "d", Status: StatusOngoing, TotalSeats: 1})
	ctx := context.Background()

	tests := []struct {
		name string
		cmd  UpdateLocationCommand
		want error
	}{
		{"bad latitude", UpdateLocationCommand{TripID: "t1", Point: types.Point{Lat: 90.0001, Lng: 0}}, ErrInvalidCoordinate},
		{"bad longitude", UpdateLocationCommand{TripID: "t1", Point: types.Point{Lat: 0, Lng: -180.5}}, ErrInvalidCoordinate},
		{"negative speed", UpdateLocationCommand{TripID: "t1", Point: types.Point{Lat: 1, Lng: 1}, SpeedKph: -1}, ErrBadRequest},
		{"heading above 360", UpdateLocationCommand{TripID: "t1", Point: types.Point{Lat: 1, Lng: 1}, HeadingDeg: 361}, ErrBadRequest},
		{"unknown trip", UpdateLocationCommand{TripID: "nope", Point: types.Point{Lat: 1, Lng: 1}}, ErrNotFound},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if err := svc.UpdateLocation(ctx, tc.cmd); err != tc.want {
				t.Errorf("err = %v, want %v", err, tc.want)
			}
		})
	}

	// Heading 360 normalizes to 0.
	if err := svc.UpdateLocation(ctx, UpdateLocationCommand{
		TripID: "t1", Point: types.Point{Lat: 1, Lng: 1}, HeadingDeg: 360,
	}); err != nil {
		t.Fatalf("heading 360 rejected: %v", err)
	}
	got, _ := store.Get("t1")
	if got.CurrentLocation.HeadingDeg != 0 {
		t.Errorf("heading = %f, want 0", got.CurrentLocation.HeadingDeg)
	}
}

func TestService_UpdateLocationFansOutETA(t *testing.T) {
	pickup := types.Point{Lat: 28.46, Lng: 77.03}
	bcast := newFakeBroadcast(pickup)
	oracle := &fakeOracle{eta: types.ETA{Duration: 17 * time.Minute, DistanceMeters: 12000}}
	svc, store := newTestService(t, bcast, oracle)

	_ = store.Create(Trip{ID: "t1", DriverID: "d", Status: StatusOngoing, TotalSeats: 1})
	err := svc.UpdateLocation(context.Background(), UpdateLocationCommand{
		TripID: "t1", Point: types.Point{Lat: 28.5, Lng: 77.0},
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	select {
	case eta := <-bcast.etas:
		if eta.Duration != 17*time.Minute {
			t.Errorf("eta duration = %v, want 17m", eta.Duration)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no ETA event published")
	}
}

func TestService_ETAFailureDoesNotBlockIngest(t *testing.T) {
	bcast := newFakeBroadcast(types.Point{Lat: 28.46, Lng: 77.03})
	oracle := &fakeOracle{err: errors.New("timeout")}
	svc, store := newTestService(t, bcast, oracle)

	_ = store.Create(Trip{ID: "t1", DriverID: "d", Status: StatusOngoing, TotalSeats: 1})
	err := svc.UpdateLocation(context.Background(), UpdateLocationCommand{
		TripID: "t1", Point: types.Point{Lat: 28.5, Lng: 77.0},
	})
	if err != nil {
		t.Fatalf("ingest must succeed despite oracle failure: %v", err)
	}

	select {
	case <-bcast.etas:
		t.Error("no ETA event expected on oracle failure")
	case <-time.After(100 * time.Millisecond):
	}
	if got := bcast.publishedLocations(); len(got) != 1 {
		t.Errorf("location event still expected, got %d", len(got))
	}
}
