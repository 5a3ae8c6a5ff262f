// README: Pure route containment and match scoring over decoded polylines.
package match

import (
	"math"

	"buslink/internal/geo"
	"buslink/internal/types"
)

// Tunable fuzziness of a bus stop's effective catchment. Callers may override
// any of these through Config; the defaults match production behaviour.
const (
	DefaultBufferKm        = 1.5
	DefaultCeilingKm       = 2.0
	DefaultProximityWeight = 60
	DefaultOrderWeight     = 40
)

// nearestIndex returns the route index closest to target and its distance in
// km. Ties break toward the lowest index. An empty route yields (-1, +Inf).
func nearestIndex(target types.Point, route []types.Point) (int, float64) {
	best := -1
	bestDist := math.Inf(1)
	for i, p := range route {
		if d := geo.HaversineKm(target, p); d < bestDist {
			best = i
			bestDist = d
		}
	}
	return best, bestDist
}

// nearestIndexWithin is nearestIndex gated by a buffer: route points farther
// than bufferKm are not anchors at all.
func nearestIndexWithin(target types.Point, route []types.Point, bufferKm float64) (int, float64) {
	best := -1
	bestDist := math.Inf(1)
	for i, p := range route {
		d := geo.HaversineKm(target, p)
		if d <= bufferKm && d < bestDist {
			best = i
			bestDist = d
		}
	}
	return best, bestDist
}

// IsJourneyOnRoute reports whether a rider's journey lies on the route: both
// pickup and dropoff must have an anchor point within bufferKm, and the
// pickup anchor must come strictly before the dropoff anchor in route order.
// You cannot board after you would already have alighted.
func IsJourneyOnRoute(pickup, dropoff types.Point, route []types.Point, bufferKm float64) bool {
	pickupIdx, _ := nearestIndexWithin(pickup, route, bufferKm)
	if pickupIdx < 0 {
		return false
	}
	dropoffIdx, _ := nearestIndexWithin(dropoff, route, bufferKm)
	if dropoffIdx < 0 {
		return false
	}
	return pickupIdx < dropoffIdx
}

// RouteMatchScore rates how well a journey fits a route, in [0,100].
//
// Proximity (0..proximityWeight) degrades linearly with the worse of the two
// anchor distances against ceilingKm. Order (0 or orderWeight) is granted when
// the pickup anchor precedes the dropoff anchor. Unlike IsJourneyOnRoute the
// anchor search here is unconstrained, so the score degrades gracefully for
// imperfect matches instead of cutting off at a buffer.
func RouteMatchScore(pickup, dropoff types.Point, route []types.Point, ceilingKm float64, proximityWeight, orderWeight int) int {
	if len(route) == 0 || ceilingKm <= 0 {
		return 0
	}
	pickupIdx, pickupDist := nearestIndex(pickup, route)
	dropoffIdx, dropoffDist := nearestIndex(dropoff, route)

	worst := math.Max(pickupDist, dropoffDist)
	proximity := math.Max(0, (ceilingKm-worst)/ceilingKm) * float64(proximityWeight)

	score := int(math.Round(proximity))
	if pickupIdx < dropoffIdx {
		score += orderWeight
	}
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
