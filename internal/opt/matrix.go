package opt

import (
	"context"
	"fmt"
	"math"

	"routeopt/internal/geo"
)

// DistanceMatrix is a symmetric n x n matrix with a zero diagonal.
type DistanceMatrix struct {
	n int
	d []float64
}

// NewDistanceMatrix queries provider once per unordered pair of points.
func NewDistanceMatrix(ctx context.Context, points []geo.Point, provider geo.DistanceProvider) (*DistanceMatrix, error) {
	n := len(points)
	m := &DistanceMatrix{n: n, d: make([]float64, n*n)}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			v, err := provider.Distance(ctx, points[i].Coordinate, points[j].Coordinate)
			if err == nil && (math.IsNaN(v) || math.IsInf(v, 0) || v < 0) {
				err = fmt.Errorf("invalid distance %v", v)
			}
			if err != nil {
				return nil, &DistanceError{From: points[i].Name, To: points[j].Name, Err: err}
			}
			m.d[i*n+j] = v
			m.d[j*n+i] = v
		}
	}
	return m, nil
}

// Size returns the number of points.
func (m *DistanceMatrix) Size() int { return m.n }

// At returns the distance between points i and j.
func (m *DistanceMatrix) At(i, j int) float64 { return m.d[i*m.n+j] }

// PathLength sums consecutive edges of an open path (len(order)-1 edges).
func (m *DistanceMatrix) PathLength(order []int) float64 {
	total := 0.0
	for i := 0; i+1 < len(order); i++ {
		total += m.At(order[i], order[i+1])
	}
	return total
}
