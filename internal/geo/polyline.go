// README: Google encoded-polyline decoding.
package geo

import (
	"errors"
	"fmt"

	"buslink/internal/types"
)

var (
	// ErrTruncatedPolyline is returned when the input ends in the middle of a
	// coordinate delta. Callers must not consume a partial path.
	ErrTruncatedPolyline = errors.New("polyline: truncated input")
)

// DecodePolyline decodes a delta-encoded polyline string into an ordered
// coordinate path. Decoding is pure and deterministic; an empty string yields
// an empty path. Any malformed input fails the whole decode.
func DecodePolyline(encoded string) ([]types.Point, error) {
	var path []types.Point
	var lat, lng int64

	i := 0
	for i < len(encoded) {
		dLat, n, err := decodeValue(encoded, i)
		if err != nil {
			return nil, err
		}
		i = n
		dLng, n, err := decodeValue(encoded, i)
		if err != nil {
			return nil, err
		}
		i = n

		lat += dLat
		lng += dLng
		path = append(path, types.Point{
			Lat: float64(lat) / 1e5,
			Lng: float64(lng) / 1e5,
		})
	}
	return path, nil
}

// decodeValue reads one zig-zag encoded delta starting at offset i and returns
// the delta plus the offset of the next unread byte.
func decodeValue(encoded string, i int) (int64, int, error) {
	var result int64
	var shift uint
	for {
		if i >= len(encoded) {
			return 0, 0, ErrTruncatedPolyline
		}
		b := int64(encoded[i]) - 63
		if b < 0 {
			return 0, 0, fmt.Errorf("polyline: invalid byte %q at offset %d", encoded[i], i)
		}
		i++
		result |= (b & 0x1f) << shift
		if b&0x20 == 0 {
			break
		}
		shift += 5
	}
	// zig-zag decode
	if result&1 != 0 {
		return ^(result >> 1), i, nil
	}
	return result >> 1, i, nil
}
