// README: Prometheus collector for ingest, broadcast, and search metrics.
package metrics

import (
	"log"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Collector struct {
	reg *prometheus.Registry

	TripsCreated   prometheus.Counter
	TripsStarted   prometheus.Counter
	TripsCompleted prometheus.Counter
	ActiveTrips    prometheus.Gauge

	LocationUpdates prometheus.Counter
	UpdatesRejected *prometheus.CounterVec // reason label

	EventsPublished   *prometheus.CounterVec // kind label: location|eta
	EventsDropped     prometheus.Counter
	ActiveSubscribers prometheus.Gauge

	MatchSearches       prometheus.Counter
	MatchSearchDuration prometheus.Histogram
	ETAFailures         prometheus.Counter
	ETALookupDuration   prometheus.Histogram
}

func NewCollector() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		TripsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "buslink_trips_created_total",
			Help: "Total trips declared.",
		}),
		TripsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "buslink_trips_started_total",
			Help: "Total trips moved to ongoing.",
		}),
		TripsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "buslink_trips_completed_total",
			Help: "Total trips completed.",
		}),
		ActiveTrips: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "buslink_active_trips",
			Help: "Number of ongoing trips.",
		}),
		LocationUpdates: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "buslink_location_updates_total",
			Help: "Total accepted driver position updates.",
		}),
		UpdatesRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "buslink_location_updates_rejected_total",
			Help: "Rejected position updates by reason.",
		}, []string{"reason"}),
		EventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "buslink_broadcast_events_total",
			Help: "Events fanned out to subscribers, by kind.",
		}, []string{"kind"}),
		EventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "buslink_broadcast_events_dropped_total",
			Help: "Events dropped because a subscriber's buffer was full.",
		}),
		ActiveSubscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "buslink_active_subscribers",
			Help: "Currently connected trip subscribers.",
		}),
		MatchSearches: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "buslink_match_searches_total",
			Help: "Total rider match searches.",
		}),
		MatchSearchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "buslink_match_search_duration_seconds",
			Help:    "End-to-end duration of a match search.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		}),
		ETAFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "buslink_eta_lookup_failures_total",
			Help: "ETA oracle lookups that failed or timed out.",
		}),
		ETALookupDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "buslink_eta_lookup_duration_seconds",
			Help:    "Duration of ETA oracle lookups.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
	}

	reg.MustRegister(
		c.TripsCreated, c.TripsStarted, c.TripsCompleted, c.ActiveTrips,
		c.LocationUpdates, c.UpdatesRejected,
		c.EventsPublished, c.EventsDropped, c.ActiveSubscribers,
		c.MatchSearches, c.MatchSearchDuration,
		c.ETAFailures, c.ETALookupDuration,
	)
	return c
}

func (c *Collector) Handler() http.Handler { return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{}) }

// Serve starts an HTTP server exposing /metrics on the given address.
func (c *Collector) Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("metrics server error: %v", err)
		}
	}()
	log.Printf("metrics listening on %s", addr)
	return srv
}
