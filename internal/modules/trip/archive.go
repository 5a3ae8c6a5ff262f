// README: Trip archive backed by PostgreSQL (records plus location snapshots).
package trip

import (
	"context"
	"database/sql"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"buslink/internal/types"
)

// PGArchive is the durable side of the trip store: every trip record and its
// location snapshots are written through here. The in-memory Store stays the
// source of truth for reads.
type PGArchive struct {
	db *pgxpool.Pool
}

func NewPGArchive(db *pgxpool.Pool) *PGArchive {
	return &PGArchive{db: db}
}

// EnsureSchema creates the archive tables when missing.
func (a *PGArchive) EnsureSchema(ctx context.Context) error {
	_, err := a.db.Exec(ctx, `
        CREATE TABLE IF NOT EXISTS trips (
            id               TEXT PRIMARY KEY,
            driver_id        TEXT NOT NULL,
            source_label     TEXT NOT NULL,
            source_lat       DOUBLE PRECISION NOT NULL,
            source_lng       DOUBLE PRECISION NOT NULL,
            dest_label       TEXT NOT NULL,
            dest_lat         DOUBLE PRECISION NOT NULL,
            dest_lng         DOUBLE PRECISION NOT NULL,
            route_polyline   TEXT NOT NULL,
            route_distance_m BIGINT NOT NULL DEFAULT 0,
            route_duration_s BIGINT NOT NULL DEFAULT 0,
            status           TEXT NOT NULL,
            total_seats      INT NOT NULL,
            occupied_seats   INT NOT NULL DEFAULT 0,
            created_at       TIMESTAMPTZ NOT NULL,
            started_at       TIMESTAMPTZ,
            completed_at     TIMESTAMPTZ
        );
        CREATE TABLE IF NOT EXISTS trip_location_samples (
            id          BIGSERIAL PRIMARY KEY,
            trip_id     TEXT NOT NULL REFERENCES trips(id),
            lat         DOUBLE PRECISION NOT NULL,
            lng         DOUBLE PRECISION NOT NULL,
            speed_kph   DOUBLE PRECISION NOT NULL DEFAULT 0,
            heading_deg DOUBLE PRECISION NOT NULL DEFAULT 0,
            recorded_ms BIGINT NOT NULL
        );
        CREATE INDEX IF NOT EXISTS trip_location_samples_trip_idx
            ON trip_location_samples (trip_id, id);`)
	return err
}

func (a *PGArchive) InsertTrip(ctx context.Context, t Trip) error {
	_, err := a.db.Exec(ctx, `
        INSERT INTO trips (
            id, driver_id, source_label, source_lat, source_lng,
            dest_label, dest_lat, dest_lng,
            route_polyline, route_distance_m, route_duration_s,
            status, total_seats, occupied_seats, created_at
        ) VALUES (
            $1, $2, $3, $4, $5,
            $6, $7, $8,
            $9, $10, $11,
            $12, $13, $14, $15
        )`,
		string(t.ID),
		string(t.DriverID),
		t.Source, t.SourcePoint.Lat, t.SourcePoint.Lng,
		t.Destination, t.DestPoint.Lat, t.DestPoint.Lng,
		t.RoutePolyline, t.RouteDistanceM, int64(t.RouteDuration.Seconds()),
		string(t.Status),
		t.TotalSeats, t.OccupiedSeats,
		t.CreatedAt,
	)
	return err
}

func (a *PGArchive) UpdateStatus(ctx context.Context, id types.ID, status Status, at time.Time) error {
	_, err := a.db.Exec(ctx, `
        UPDATE trips
        SET status = $1,
            started_at   = CASE WHEN $1 = 'ongoing'   THEN $2 ELSE started_at END,
            completed_at = CASE WHEN $1 = 'completed' THEN $2 ELSE completed_at END
        WHERE id = $3`,
		string(status), at, string(id),
	)
	return err
}

func (a *PGArchive) AppendSample(ctx context.Context, id types.ID, sample LocationSample) error {
	_, err := a.db.Exec(ctx, `
        INSERT INTO trip_location_samples (trip_id, lat, lng, speed_kph, heading_deg, recorded_ms)
        VALUES ($1, $2, $3, $4, $5, $6)`,
		string(id),
		sample.Point.Lat, sample.Point.Lng,
		sample.SpeedKph, sample.HeadingDeg,
		sample.TimestampMillis,
	)
	return err
}

// LoadOpen returns all non-completed trips for boot-time rehydration. Route
// paths are re-decoded by the caller; history is not reloaded, it refills as
// the driver posts.
func (a *PGArchive) LoadOpen(ctx context.Context) ([]Trip, error) {
	rows, err := a.db.Query(ctx, `
        SELECT id, driver_id, source_label, source_lat, source_lng,
               dest_label, dest_lat, dest_lng,
               route_polyline, route_distance_m, route_duration_s,
               status, total_seats, occupied_seats,
               created_at, started_at, completed_at
        FROM trips
        WHERE status <> 'completed'
        ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Trip
	for rows.Next() {
		var t Trip
		var durationSec int64
		var startedAt, completedAt sql.NullTime
		err := rows.Scan(
			&t.ID, &t.DriverID, &t.Source, &t.SourcePoint.Lat, &t.SourcePoint.Lng,
			&t.Destination, &t.DestPoint.Lat, &t.DestPoint.Lng,
			&t.RoutePolyline, &t.RouteDistanceM, &durationSec,
			&t.Status, &t.TotalSeats, &t.OccupiedSeats,
			&t.CreatedAt, &startedAt, &completedAt,
		)
		if err != nil {
			return nil, err
		}
		t.RouteDuration = time.Duration(durationSec) * time.Second
		if startedAt.Valid {
			v := startedAt.Time
			t.StartedAt = &v
		}
		if completedAt.Valid {
			v := completedAt.Time
			t.CompletedAt = &v
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
