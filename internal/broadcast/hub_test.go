package broadcast

import (
	"sync"
	"testing"
	"time"

	"buslink/internal/modules/trip"
	"buslink/internal/types"
)

func testSample() trip.LocationSample {
	return trip.LocationSample{
		Point:           types.Point{Lat: 28.46, Lng: 77.03},
		TimestampMillis: 1700000000000,
		SpeedKph:        42,
		HeadingDeg:      180,
	}
}

func recvEvent(t *testing.T, sub *Subscription) Event {
	t.Helper()
	select {
	case ev, ok := <-sub.Events():
		if !ok {
			t.Fatal("channel closed before event arrived")
		}
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
	return Event{}
}

func TestHub_FanOutToAllTripSubscribers(t *testing.T) {
	h := NewHub(0, nil, nil)
	a := h.Subscribe("t1", nil)
	b := h.Subscribe("t1", nil)
	other := h.Subscribe("t2", nil)
	defer a.Close()
	defer b.Close()
	defer other.Close()

	h.PublishLocation("t1", testSample())

	for _, sub := range []*Subscription{a, b} {
		ev := recvEvent(t, sub)
		if ev.Kind != KindLocation || ev.TripID != "t1" {
			t.Errorf("unexpected event: %+v", ev)
		}
		if ev.Location == nil || ev.Location.Lat != 28.46 {
			t.Errorf("unexpected payload: %+v", ev.Location)
		}
	}

	select {
	case ev := <-other.Events():
		t.Errorf("subscriber of t2 received t1's event: %+v", ev)
	default:
	}
}

func TestHub_CloseDetachesOnlyThatSubscriber(t *testing.T) {
	h := NewHub(0, nil, nil)
	leaving := h.Subscribe("t1", nil)
	staying := h.Subscribe("t1", nil)
	defer staying.Close()

	leaving.Close()
	leaving.Close() // idempotent

	if _, ok := <-leaving.Events(); ok {
		t.Error("closed subscription's channel should be drained and closed")
	}
	if n := h.SubscriberCount("t1"); n != 1 {
		t.Errorf("subscriber count = %d, want 1", n)
	}

	h.PublishLocation("t1", testSample())
	if ev := recvEvent(t, staying); ev.Kind != KindLocation {
		t.Errorf("remaining subscriber missed the event: %+v", ev)
	}
}

func TestHub_ETATargetsMatchingPickupOnly(t *testing.T) {
	h := NewHub(0, nil, nil)
	gurugram := types.Point{Lat: 28.46, Lng: 77.03}
	manesar := types.Point{Lat: 28.35, Lng: 76.94}

	wantsGurugram := h.Subscribe("t1", &gurugram)
	wantsManesar := h.Subscribe("t1", &manesar)
	noPickup := h.Subscribe("t1", nil)
	defer wantsGurugram.Close()
	defer wantsManesar.Close()
	defer noPickup.Close()

	h.PublishETA("t1", gurugram, types.ETA{Duration: 7 * time.Minute, DistanceMeters: 5200})

	ev := recvEvent(t, wantsGurugram)
	if ev.Kind != KindETA || ev.ETA == nil {
		t.Fatalf("unexpected event: %+v", ev)
	}
	if ev.ETA.DurationSeconds != 420 || ev.ETA.PickupLat != 28.46 {
		t.Errorf("unexpected eta payload: %+v", ev.ETA)
	}

	for name, sub := range map[string]*Subscription{"other pickup": wantsManesar, "no pickup": noPickup} {
		select {
		case ev := <-sub.Events():
			t.Errorf("%s subscriber received targeted eta: %+v", name, ev)
		default:
		}
	}
}

func TestHub_PickupPointsDeduplicates(t *testing.T) {
	h := NewHub(0, nil, nil)
	gurugram := types.Point{Lat: 28.46, Lng: 77.03}
	manesar := types.Point{Lat: 28.35, Lng: 76.94}

	subs := []*Subscription{
		h.Subscribe("t1", &gurugram),
		h.Subscribe("t1", &gurugram),
		h.Subscribe("t1", &manesar),
		h.Subscribe("t1", nil),
	}
	defer func() {
		for _, s := range subs {
			s.Close()
		}
	}()

	points := h.PickupPoints("t1")
	if len(points) != 2 {
		t.Fatalf("pickup points = %d, want 2 distinct", len(points))
	}
	seen := map[types.Point]bool{}
	for _, p := range points {
		seen[p] = true
	}
	if !seen[gurugram] || !seen[manesar] {
		t.Errorf("unexpected pickup set: %v", points)
	}
	if got := h.PickupPoints("unknown"); len(got) != 0 {
		t.Errorf("unknown trip pickup points = %v, want empty", got)
	}
}

func TestHub_SlowSubscriberDropsWithoutBlocking(t *testing.T) {
	h := NewHub(1, nil, nil)
	slow := h.Subscribe("t1", nil)
	fast := h.Subscribe("t1", nil)
	defer slow.Close()
	defer fast.Close()

	// The slow subscriber never reads; its buffer holds one event and the
	// rest are dropped. Publishing must not stall.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 10; i++ {
			h.PublishLocation("t1", testSample())
			select {
			case <-fast.Events():
			case <-time.After(time.Second):
				return
			}
		}
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}

	if got := len(slow.Events()); got != 1 {
		t.Errorf("slow subscriber buffered %d events, want 1", got)
	}
}

// TestHub_ConcurrentPublishAndClose races publishers against subscribers that
// come and go. Run with -race: a publish must never send on a closed channel.
func TestHub_ConcurrentPublishAndClose(t *testing.T) {
	h := NewHub(4, nil, nil)
	stop := make(chan struct{})
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				h.PublishLocation("t1", testSample())
			}
		}
	}()

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				sub := h.Subscribe("t1", nil)
				select {
				case <-sub.Events():
				default:
				}
				sub.Close()
			}
		}()
	}

	time.Sleep(50 * time.Millisecond)
	close(stop)
	wg.Wait()

	if n := h.SubscriberCount("t1"); n != 0 {
		t.Errorf("subscriber count = %d, want 0 after all closed", n)
	}
}
