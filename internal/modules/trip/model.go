// README: Trip aggregate, location samples, and lifecycle definitions.
package trip

import (
	"time"

	"buslink/internal/types"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusOngoing   Status = "ongoing"
	StatusCompleted Status = "completed"
)

// AllowedTransitions represents the trip lifecycle (diagram) as code.
// Completed is terminal.
var AllowedTransitions = map[Status][]Status{
	StatusPending: {StatusOngoing},
	StatusOngoing: {StatusCompleted},
}

func CanTransition(from, to Status) bool {
	next, ok := AllowedTransitions[from]
	if !ok {
		return false
	}
	for _, s := range next {
		if s == to {
			return true
		}
	}
	return false
}

// HistoryCap bounds each trip's retained location history. Older samples
// are evicted FIFO once the cap is reached.
const HistoryCap = 100

// LocationSample is one reported driver position.
type LocationSample struct {
	Point           types.Point
	TimestampMillis int64
	SpeedKph        float64 // >= 0
	HeadingDeg      float64 // [0, 360)
}

// Trip is one bus's declared journey. RoutePath is the decoded route polyline;
// it is immutable after creation and safe to share across readers.
type Trip struct {
	ID              types.ID
	DriverID        types.ID
	Source          string
	Destination     string
	SourcePoint     types.Point
	DestPoint       types.Point
	RoutePolyline   string
	RoutePath       []types.Point
	RouteDistanceM  int
	RouteDuration   time.Duration
	Status          Status
	TotalSeats      int
	OccupiedSeats   int
	CurrentLocation *LocationSample
	History         []LocationSample
	CreatedAt       time.Time
	StartedAt       *time.Time
	CompletedAt     *time.Time
}
