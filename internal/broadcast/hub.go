// README: Per-trip publish/subscribe fan-out for location and ETA events.
package broadcast

import (
	"log"
	"sync"

	"github.com/google/uuid"

	"buslink/internal/metrics"
	"buslink/internal/modules/trip"
	"buslink/internal/types"
)

type Kind string

const (
	KindLocation Kind = "location"
	KindETA      Kind = "eta"
)

type LocationPayload struct {
	Lat             float64 `json:"lat"`
	Lng             float64 `json:"lng"`
	SpeedKph        float64 `json:"speed_kph"`
	HeadingDeg      float64 `json:"heading_deg"`
	TimestampMillis int64   `json:"timestamp_ms"`
}

type ETAPayload struct {
	PickupLat       float64 `json:"pickup_lat"`
	PickupLng       float64 `json:"pickup_lng"`
	DurationSeconds int     `json:"duration_seconds"`
	DistanceMeters  int     `json:"distance_meters"`
}

type Event struct {
	Kind     Kind             `json:"kind"`
	TripID   types.ID         `json:"trip_id"`
	Location *LocationPayload `json:"location,omitempty"`
	ETA      *ETAPayload      `json:"eta,omitempty"`
}

// Mirror republishes events to an external transport (NATS). Optional.
type Mirror interface {
	Publish(ev Event) error
}

// defaultBuffer is the per-subscriber channel depth. A subscriber that falls
// this far behind starts losing events; other subscribers are unaffected.
const defaultBuffer = 16

// Hub is an in-process broadcaster. Subscription is per-trip: an event for
// trip T reaches every current subscriber of T and nobody else.
type Hub struct {
	mu      sync.RWMutex
	subs    map[types.ID]map[string]*Subscription
	buffer  int
	mirror  Mirror
	metrics *metrics.Collector
}

func NewHub(buffer int, mirror Mirror, m *metrics.Collector) *Hub {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &Hub{
		subs:    make(map[types.ID]map[string]*Subscription),
		buffer:  buffer,
		mirror:  mirror,
		metrics: m,
	}
}

// Subscription is one consumer's handle on a trip's event stream. pickup is
// the rider's boarding point; when set, the trip's ETA events for that point
// are delivered too.
type Subscription struct {
	id     string
	tripID types.ID
	pickup *types.Point
	ch     chan Event
	hub    *Hub
	once   sync.Once
}

func (s *Subscription) Events() <-chan Event { return s.ch }

// Close detaches the subscription and closes its channel. Idempotent.
func (s *Subscription) Close() {
	s.once.Do(func() { s.hub.unsubscribe(s) })
}

func (h *Hub) Subscribe(tripID types.ID, pickup *types.Point) *Subscription {
	sub := &Subscription{
		id:     uuid.NewString(),
		tripID: tripID,
		pickup: pickup,
		ch:     make(chan Event, h.buffer),
		hub:    h,
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs[tripID] == nil {
		h.subs[tripID] = make(map[string]*Subscription)
	}
	h.subs[tripID][sub.id] = sub
	if h.metrics != nil {
		h.metrics.ActiveSubscribers.Inc()
	}
	return sub
}

func (h *Hub) unsubscribe(s *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	peers, ok := h.subs[s.tripID]
	if !ok {
		return
	}
	if _, ok := peers[s.id]; !ok {
		return
	}
	delete(peers, s.id)
	if len(peers) == 0 {
		delete(h.subs, s.tripID)
	}
	close(s.ch)
	if h.metrics != nil {
		h.metrics.ActiveSubscribers.Dec()
	}
}

// PublishLocation delivers a position event to every subscriber of the trip.
func (h *Hub) PublishLocation(tripID types.ID, sample trip.LocationSample) {
	ev := Event{
		Kind:   KindLocation,
		TripID: tripID,
		Location: &LocationPayload{
			Lat:             sample.Point.Lat,
			Lng:             sample.Point.Lng,
			SpeedKph:        sample.SpeedKph,
			HeadingDeg:      sample.HeadingDeg,
			TimestampMillis: sample.TimestampMillis,
		},
	}
	h.publish(ev, nil)
}

// PublishETA delivers an ETA event to the subscribers that registered this
// pickup point.
func (h *Hub) PublishETA(tripID types.ID, pickup types.Point, eta types.ETA) {
	ev := Event{
		Kind:   KindETA,
		TripID: tripID,
		ETA: &ETAPayload{
			PickupLat:       pickup.Lat,
			PickupLng:       pickup.Lng,
			DurationSeconds: int(eta.Duration.Seconds()),
			DistanceMeters:  eta.DistanceMeters,
		},
	}
	h.publish(ev, &pickup)
}

// publish fans an event out under the read lock, so a concurrent Close (which
// takes the write lock) can never race a send against its channel close.
// Delivery is non-blocking: a full subscriber drops the event, nobody else
// stalls.
func (h *Hub) publish(ev Event, onlyPickup *types.Point) {
	h.mu.RLock()
	for _, sub := range h.subs[ev.TripID] {
		if onlyPickup != nil && (sub.pickup == nil || *sub.pickup != *onlyPickup) {
			continue
		}
		select {
		case sub.ch <- ev:
			if h.metrics != nil {
				h.metrics.EventsPublished.WithLabelValues(string(ev.Kind)).Inc()
			}
		default:
			if h.metrics != nil {
				h.metrics.EventsDropped.Inc()
			}
		}
	}
	h.mu.RUnlock()

	if h.mirror != nil {
		if err := h.mirror.Publish(ev); err != nil {
			log.Printf("broadcast mirror publish failed for trip %s: %v", ev.TripID, err)
		}
	}
}

// PickupPoints returns the distinct pickup coordinates registered by the
// trip's current subscribers.
func (h *Hub) PickupPoints(tripID types.ID) []types.Point {
	h.mu.RLock()
	defer h.mu.RUnlock()
	seen := make(map[types.Point]struct{})
	var out []types.Point
	for _, sub := range h.subs[tripID] {
		if sub.pickup == nil {
			continue
		}
		if _, dup := seen[*sub.pickup]; dup {
			continue
		}
		seen[*sub.pickup] = struct{}{}
		out = append(out, *sub.pickup)
	}
	return out
}

// SubscriberCount reports the current number of subscribers for a trip.
func (h *Hub) SubscriberCount(tripID types.ID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[tripID])
}
