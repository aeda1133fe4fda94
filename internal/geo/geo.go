// Package geo provides the distance math behind proximity search on listings.
package geo

import "math"

const earthRadiusKM = 6371.0088

// Point is a WGS84 coordinate in degrees.
type Point struct {
	Lat float64
	Lng float64
}

// Valid reports whether p is within latitude [-90,90] and longitude [-180,180].
func (p Point) Valid() bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180 &&
		!math.IsNaN(p.Lat) && !math.IsNaN(p.Lng)
}

// DistanceKM returns the great-circle distance between a and b (haversine).
func DistanceKM(a, b Point) float64 {
	lat1, lat2 := rad(a.Lat), rad(b.Lat)
	dLat := lat2 - lat1
	dLng := rad(b.Lng - a.Lng)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusKM * math.Asin(math.Min(1, math.Sqrt(h)))
}

// Box is a latitude/longitude rectangle used to prefilter rows in SQL before
// computing exact distances.
type Box struct {
	MinLat, MaxLat float64
	MinLng, MaxLng float64
}

// BoundingBox returns the rectangle that contains every point within radiusKM
// of center. Near the poles or when the box crosses the antimeridian the
// longitude range widens to the full [-180,180].
func BoundingBox(center Point, radiusKM float64) Box {
	dLat := radiusKM / earthRadiusKM * 180 / math.Pi
	b := Box{
		MinLat: math.Max(-90, center.Lat-dLat),
		MaxLat: math.Min(90, center.Lat+dLat),
		MinLng: -180,
		MaxLng: 180,
	}
	if b.MinLat == -90 || b.MaxLat == 90 {
		return b
	}
	dLng := math.Asin(math.Min(1, math.Sin(radiusKM/earthRadiusKM)/math.Cos(rad(center.Lat)))) * 180 / math.Pi
	minLng, maxLng := center.Lng-dLng, center.Lng+dLng
	if minLng < -180 || maxLng > 180 {
		return b
	}
	b.MinLng, b.MaxLng = minLng, maxLng
	return b
}

func rad(deg float64) float64 { return deg * math.Pi / 180 }
