package opt

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"routeopt/internal/geo"
)

func linePoints(n int) []geo.Point {
	pts := make([]geo.Point, n)
	for i := range pts {
		pts[i] = geo.Point{Name: string(rune('a' + i)), Coordinate: geo.Coordinate{Lat: 0, Lng: float64(i)}}
	}
	return pts
}

func TestImproveOrder2OptUncrossesLine(t *testing.T) {
	m, err := NewDistanceMatrix(context.Background(), linePoints(5), geo.Planar{})
	require.NoError(t, err)

	start := []int{0, 3, 2, 1, 4}
	got, d := ImproveOrder2Opt(m, start, 0)
	assert.InDelta(t, 4.0, d, 1e-12)
	assert.Equal(t, []int{0, 1, 2, 3, 4}, got)
	assert.Equal(t, []int{0, 3, 2, 1, 4}, start, "input must not be modified")
}

func TestImproveOrder2OptFixesEndpoints(t *testing.T) {
	m, err := NewDistanceMatrix(context.Background(), linePoints(4), geo.Planar{})
	require.NoError(t, err)
	// only reversing a prefix repairs this open path
	got, d := ImproveOrder2Opt(m, []int{1, 0, 2, 3}, 0)
	assert.InDelta(t, 3.0, d, 1e-12)
	assert.True(t, isPermutation(got, 4))
}

func TestImproveOrder2OptNeverWorse(t *testing.T) {
	pts := randomPoints(15, 21)
	m, err := NewDistanceMatrix(context.Background(), pts, geo.Planar{})
	require.NoError(t, err)
	order := []int{14, 0, 13, 1, 12, 2, 11, 3, 10, 4, 9, 5, 8, 6, 7}
	got, d := ImproveOrder2Opt(m, order, 1)
	assert.LessOrEqual(t, d, m.PathLength(order))
	assert.True(t, isPermutation(got, len(pts)))
}

func TestDistanceMatrixSymmetric(t *testing.T) {
	pts := randomPoints(6, 4)
	m, err := NewDistanceMatrix(context.Background(), pts, geo.Planar{})
	require.NoError(t, err)
	require.Equal(t, 6, m.Size())
	for i := 0; i < m.Size(); i++ {
		assert.Equal(t, 0.0, m.At(i, i))
		for j := 0; j < m.Size(); j++ {
			assert.Equal(t, m.At(i, j), m.At(j, i))
			assert.GreaterOrEqual(t, m.At(i, j), 0.0)
		}
	}
}
