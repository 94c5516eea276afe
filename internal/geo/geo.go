// Package geo holds the coordinate model and the distance providers used by
// the optimizer.
package geo

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/paulmach/orb"
	orbgeo "github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/planar"
)

// ErrUnknownProvider is returned by ProviderByName for unsupported names.
var ErrUnknownProvider = errors.New("geo: unknown distance provider")

// Coordinate is a WGS84 position in degrees.
type Coordinate struct {
	Lat float64 `json:"lat" yaml:"lat"`
	Lng float64 `json:"lng" yaml:"lng"`
}

// Orb converts to an orb.Point (lng, lat order).
func (c Coordinate) Orb() orb.Point { return orb.Point{c.Lng, c.Lat} }

// Valid reports whether the coordinate is finite and within range.
func (c Coordinate) Valid() bool {
	if math.IsNaN(c.Lat) || math.IsNaN(c.Lng) || math.IsInf(c.Lat, 0) || math.IsInf(c.Lng, 0) {
		return false
	}
	return c.Lat >= -90 && c.Lat <= 90 && c.Lng >= -180 && c.Lng <= 180
}

// Point is a named stop.
type Point struct {
	Name string `json:"name" yaml:"name"`
	Coordinate `yaml:",inline"`
}

// DistanceProvider returns the distance between two coordinates.
// Implementations must be pure, deterministic and non-negative.
type DistanceProvider interface {
	Distance(ctx context.Context, a, b Coordinate) (float64, error)
}

// Haversine measures great-circle distance in kilometers.
type Haversine struct{}

func (Haversine) Distance(_ context.Context, a, b Coordinate) (float64, error) {
	return orbgeo.DistanceHaversine(a.Orb(), b.Orb()) / 1000.0, nil
}

// Planar measures Euclidean distance in coordinate units. Useful for flat
// test spaces and projected data.
type Planar struct{}

func (Planar) Distance(_ context.Context, a, b Coordinate) (float64, error) {
	return planar.Distance(a.Orb(), b.Orb()), nil
}

// ProviderByName maps "haversine" (default when empty) and "planar".
func ProviderByName(name string) (DistanceProvider, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "haversine", "geodesic":
		return Haversine{}, nil
	case "planar", "euclidean":
		return Planar{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}
}
