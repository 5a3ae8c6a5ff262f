// README: Live trip position index backed by Redis GEO.
package trip

import (
	"context"

	"github.com/redis/go-redis/v9"

	"buslink/internal/types"
)

const tripGeoKey = "trips:positions"

// RedisGeoIndex keeps each ongoing trip's latest position in a Redis GEO set
// for radius queries ("buses near me").
type RedisGeoIndex struct {
	redis *redis.Client
}

func NewRedisGeoIndex(rdb *redis.Client) *RedisGeoIndex {
	return &RedisGeoIndex{redis: rdb}
}

func (g *RedisGeoIndex) Update(ctx context.Context, id types.ID, p types.Point) error {
	return g.redis.GeoAdd(ctx, tripGeoKey, &redis.GeoLocation{
		Name:      string(id),
		Longitude: p.Lng,
		Latitude:  p.Lat,
	}).Err()
}

func (g *RedisGeoIndex) Remove(ctx context.Context, id types.ID) error {
	return g.redis.ZRem(ctx, tripGeoKey, string(id)).Err()
}

// Nearby returns trip ids within radiusKm of p, closest first.
func (g *RedisGeoIndex) Nearby(ctx context.Context, p types.Point, radiusKm float64) ([]types.ID, error) {
	results, err := g.redis.GeoSearch(ctx, tripGeoKey, &redis.GeoSearchQuery{
		Longitude:  p.Lng,
		Latitude:   p.Lat,
		Radius:     radiusKm,
		RadiusUnit: "km",
		Sort:       "ASC",
	}).Result()
	if err != nil {
		return nil, err
	}
	ids := make([]types.ID, len(results))
	for i, r := range results {
		ids[i] = types.ID(r)
	}
	return ids, nil
}
