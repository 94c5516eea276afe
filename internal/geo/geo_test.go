package geo

import (
	"context"
	"math"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHaversineLimaCusco(t *testing.T) {
	lima := Coordinate{Lat: -12.0464, Lng: -77.0428}
	cusco := Coordinate{Lat: -13.5320, Lng: -71.9675}
	d, err := Haversine{}.Distance(context.Background(), lima, cusco)
	require.NoError(t, err)
	// great-circle distance is roughly 574 km
	assert.InDelta(t, 574, d, 10)

	back, err := Haversine{}.Distance(context.Background(), cusco, lima)
	require.NoError(t, err)
	assert.InDelta(t, d, back, 1e-9)
}

func TestPlanarUnitSquare(t *testing.T) {
	d, err := Planar{}.Distance(context.Background(), Coordinate{0, 0}, Coordinate{1, 1})
	require.NoError(t, err)
	assert.InDelta(t, math.Sqrt2, d, 1e-12)
}

func TestProviderByName(t *testing.T) {
	p, err := ProviderByName("")
	require.NoError(t, err)
	assert.IsType(t, Haversine{}, p)

	p, err = ProviderByName("Planar")
	require.NoError(t, err)
	assert.IsType(t, Planar{}, p)

	_, err = ProviderByName("manhattan")
	assert.ErrorIs(t, err, ErrUnknownProvider)
}

func TestCoordinateValid(t *testing.T) {
	assert.True(t, Coordinate{Lat: 45, Lng: 120}.Valid())
	assert.False(t, Coordinate{Lat: 91, Lng: 0}.Valid())
	assert.False(t, Coordinate{Lat: 0, Lng: -181}.Valid())
	assert.False(t, Coordinate{Lat: math.NaN(), Lng: 0}.Valid())
}

func TestRouteFeatureCollection(t *testing.T) {
	pts := []Point{
		{Name: "a", Coordinate: Coordinate{Lat: 1, Lng: 2}},
		{Name: "b", Coordinate: Coordinate{Lat: 3, Lng: 4}},
		{Name: "c", Coordinate: Coordinate{Lat: 5, Lng: 6}},
	}
	fc := RouteFeatureCollection(pts, []string{"c", "a", "b"})
	require.Len(t, fc.Features, 4)
	assert.Equal(t, "c", fc.Features[0].Properties["name"])
	assert.Equal(t, orb.Point{6, 5}, fc.Features[0].Geometry)

	line, ok := fc.Features[3].Geometry.(orb.LineString)
	require.True(t, ok)
	assert.Equal(t, orb.LineString{{6, 5}, {2, 1}, {4, 3}}, line)

	_, err := fc.MarshalJSON()
	require.NoError(t, err)
}
