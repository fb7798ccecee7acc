// Package geo validates photo evidence against a PON's service area:
// either a center+radius circle or an explicit polygon fence.
package geo

import (
	"encoding/json"
	"math"
	"time"
)

const earthRadiusM = 6371000.0

// Point is a WGS84 coordinate pair.
type Point struct {
	Lat float64
	Lng float64
}

// HaversineM returns the great-circle distance between two points in meters.
func HaversineM(a, b Point) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusM * math.Asin(math.Min(1, math.Sqrt(h)))
}

// WithinRadius reports whether p lies within radiusM meters of center.
func WithinRadius(center Point, radiusM float64, p Point) bool {
	if radiusM <= 0 {
		return false
	}
	return HaversineM(center, p) <= radiusM
}

// ParsePolygon decodes a JSON array of [lat, lng] pairs. A valid fence needs
// at least three vertices.
func ParsePolygon(raw string) ([]Point, error) {
	if raw == "" {
		return nil, nil
	}
	var pairs [][2]float64
	if err := json.Unmarshal([]byte(raw), &pairs); err != nil {
		return nil, err
	}
	if len(pairs) < 3 {
		return nil, nil
	}
	pts := make([]Point, 0, len(pairs))
	for _, pair := range pairs {
		pts = append(pts, Point{Lat: pair[0], Lng: pair[1]})
	}
	return pts, nil
}

// InPolygon is a ray-casting point-in-polygon test. Boundary behavior is
// whatever the crossing count gives; fences are drawn with margin in practice.
func InPolygon(poly []Point, p Point) bool {
	if len(poly) < 3 {
		return false
	}
	inside := false
	j := len(poly) - 1
	for i := 0; i < len(poly); i++ {
		pi, pj := poly[i], poly[j]
		if (pi.Lng > p.Lng) != (pj.Lng > p.Lng) {
			cross := (pj.Lat-pi.Lat)*(p.Lng-pi.Lng)/(pj.Lng-pi.Lng) + pi.Lat
			if p.Lat < cross {
				inside = !inside
			}
		}
		j = i
	}
	return inside
}

// Fence is the resolved service area of a PON. Polygon wins over the circle
// when both are configured.
type Fence struct {
	Center  *Point
	RadiusM float64
	Polygon []Point
}

// BuildFence assembles a fence from stored geometry: an optional polygon
// (JSON [lat,lng] pairs) and an optional circle. Bad polygon JSON degrades
// to the circle.
func BuildFence(polygonJSON string, lat, lng, radiusM *float64) Fence {
	var f Fence
	if poly, err := ParsePolygon(polygonJSON); err == nil && len(poly) >= 3 {
		f.Polygon = poly
	}
	if lat != nil && lng != nil && radiusM != nil {
		f.Center = &Point{Lat: *lat, Lng: *lng}
		f.RadiusM = *radiusM
	}
	return f
}

// Contains reports whether the fence covers p. A fence with no geometry
// accepts nothing.
func (f Fence) Contains(p Point) bool {
	if len(f.Polygon) >= 3 {
		return InPolygon(f.Polygon, p)
	}
	if f.Center != nil {
		return WithinRadius(*f.Center, f.RadiusM, p)
	}
	return false
}

// RecencyValid reports whether a photo's EXIF timestamp is present, not in
// the future, and no older than maxAge at the reference instant.
func RecencyValid(takenAt *time.Time, ref time.Time, maxAge time.Duration) bool {
	if takenAt == nil || maxAge <= 0 {
		return false
	}
	t := takenAt.UTC()
	if t.After(ref.UTC()) {
		return false
	}
	return ref.UTC().Sub(t) <= maxAge
}
