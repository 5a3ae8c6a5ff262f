// README: Entry point; loads config, wires services, starts the HTTP server.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"buslink/internal/broadcast"
	"buslink/internal/config"
	httptransport "buslink/internal/http"
	"buslink/internal/infra"
	"buslink/internal/maps"
	"buslink/internal/metrics"
	"buslink/internal/modules/match"
	"buslink/internal/modules/trip"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	directions, err := maps.NewDirectionsService(cfg.Maps.APIKey)
	if err != nil {
		log.Fatalf("maps init: %v", err)
	}

	var collector *metrics.Collector
	if cfg.Metrics.Addr != "" {
		collector = metrics.NewCollector()
		collector.Serve(cfg.Metrics.Addr)
	}

	var archive trip.Archive
	if cfg.DB.DSN != "" {
		dbPool, err := infra.NewDB(ctx, cfg.DB.DSN)
		if err != nil {
			log.Fatalf("db init: %v", err)
		}
		defer dbPool.Close()
		pgArchive := trip.NewPGArchive(dbPool)
		if err := pgArchive.EnsureSchema(ctx); err != nil {
			log.Fatalf("db schema: %v", err)
		}
		archive = pgArchive
	}

	var geoIndex *trip.RedisGeoIndex
	if cfg.Redis.Addr != "" {
		geoIndex = trip.NewRedisGeoIndex(infra.NewRedis(cfg.Redis.Addr))
	}

	var mirror broadcast.Mirror
	if cfg.NATS.URL != "" {
		pub, err := broadcast.NewNATSPublisher(cfg.NATS.URL)
		if err != nil {
			log.Fatalf("nats init: %v", err)
		}
		defer pub.Close()
		mirror = pub
	}

	hub := broadcast.NewHub(cfg.Broadcast.Buffer, mirror, collector)

	tripStore := trip.NewStore()
	tripDeps := trip.ServiceDeps{
		Store:      tripStore,
		Routes:     directions,
		Oracle:     directions,
		Broadcast:  hub,
		Archive:    archive,
		ETATimeout: time.Duration(cfg.Matching.ETATimeoutSeconds) * time.Second,
		Metrics:    collector,
	}
	if geoIndex != nil {
		tripDeps.GeoIndex = geoIndex
	}
	tripSvc := trip.NewService(tripDeps)

	if err := tripSvc.Rehydrate(ctx); err != nil {
		log.Fatalf("rehydrate trips: %v", err)
	}

	matchCfg := match.Config{
		BufferKm:        cfg.Matching.BufferKm,
		CeilingKm:       cfg.Matching.CeilingKm,
		ProximityWeight: cfg.Matching.ProximityWeight,
		OrderWeight:     cfg.Matching.OrderWeight,
		ETATimeout:      time.Duration(cfg.Matching.ETATimeoutSeconds) * time.Second,
	}
	matchSvc := match.NewService(tripStore, directions, matchCfg, collector)

	router := httptransport.NewRouter(httptransport.RouterDeps{
		Trips:    tripSvc,
		Matches:  matchSvc,
		Hub:      hub,
		GeoIndex: geoIndex,
	})

	server := &http.Server{Addr: cfg.HTTP.Addr, Handler: router}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	log.Printf("listening on %s", cfg.HTTP.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal(err)
	}
}
