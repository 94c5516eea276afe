// Package linsys solves small dense linear systems A·x = b by
// back-substitution, Gauss-Jordan elimination or Cramer's rule.
package linsys

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

var (
	ErrDimension     = errors.New("linsys: dimension mismatch")
	ErrZeroPivot     = errors.New("linsys: zero pivot")
	ErrSingular      = errors.New("linsys: singular matrix")
	ErrUnknownMethod = errors.New("linsys: unknown method")
	ErrNaNInf        = errors.New("linsys: NaN or Inf in input")
)

// Method names accepted by Solve.
const (
	MethodSubstitution = "substitution"
	MethodGaussJordan  = "gauss-jordan"
	MethodCramer       = "cramer"
)

// eps is the relative magnitude below which a pivot or determinant counts
// as zero. It is scaled by the size of the entries, so uniformly scaled
// systems behave the same at any magnitude.
const eps = 1e-12

// Methods lists the names Solve accepts, in display order.
func Methods() []string { return []string{MethodSubstitution, MethodGaussJordan, MethodCramer} }

// Solve dispatches to the named method. Names are case-insensitive.
func Solve(method string, a [][]float64, b []float64) ([]float64, error) {
	switch strings.ToLower(strings.TrimSpace(method)) {
	case MethodSubstitution, "back-substitution":
		return BackSubstitution(a, b)
	case MethodGaussJordan, "gaussjordan", "":
		return GaussJordan(a, b)
	case MethodCramer:
		return Cramer(a, b)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMethod, method)
	}
}

// BackSubstitution solves an upper-triangular system. Entries below the
// diagonal are ignored.
func BackSubstitution(a [][]float64, b []float64) ([]float64, error) {
	n, err := check(a, b)
	if err != nil {
		return nil, err
	}
	tol := eps * maxAbs(a)
	x := make([]float64, n)
	for i := n - 1; i >= 0; i-- {
		if a[i][i] == 0 || math.Abs(a[i][i]) <= tol {
			return nil, fmt.Errorf("%w: row %d", ErrZeroPivot, i)
		}
		sum := b[i]
		for j := i + 1; j < n; j++ {
			sum -= a[i][j] * x[j]
		}
		x[i] = sum / a[i][i]
	}
	return x, nil
}

// GaussJordan reduces [A|b] to reduced row echelon form with partial
// pivoting.
func GaussJordan(a [][]float64, b []float64) ([]float64, error) {
	n, err := check(a, b)
	if err != nil {
		return nil, err
	}
	tol := eps * maxAbs(a)
	ab := augment(a, b)
	for col := 0; col < n; col++ {
		p := pivotRow(ab, col)
		if ab[p][col] == 0 || math.Abs(ab[p][col]) <= tol {
			return nil, fmt.Errorf("%w: column %d", ErrSingular, col)
		}
		ab[col], ab[p] = ab[p], ab[col]
		pv := ab[col][col]
		for j := col; j <= n; j++ {
			ab[col][j] /= pv
		}
		for r := 0; r < n; r++ {
			if r == col || ab[r][col] == 0 {
				continue
			}
			f := ab[r][col]
			for j := col; j <= n; j++ {
				ab[r][j] -= f * ab[col][j]
			}
		}
	}
	x := make([]float64, n)
	for i := range x {
		x[i] = ab[i][n]
	}
	return x, nil
}

// Cramer solves by x_i = det(A_i)/det(A), where A_i has column i replaced
// by b.
func Cramer(a [][]float64, b []float64) ([]float64, error) {
	n, err := check(a, b)
	if err != nil {
		return nil, err
	}
	// |det A| is bounded by the product of the row norms.
	bound := 1.0
	for _, row := range a {
		bound *= rowNorm(row)
	}
	d := Det(a)
	if d == 0 || math.Abs(d) <= eps*bound {
		return nil, fmt.Errorf("%w: det=%g", ErrSingular, d)
	}
	x := make([]float64, n)
	ai := make([][]float64, n)
	for i := 0; i < n; i++ {
		for r := range a {
			ai[r] = append(ai[r][:0], a[r]...)
			ai[r][i] = b[r]
		}
		x[i] = Det(ai) / d
	}
	return x, nil
}

// Det returns the determinant of a square matrix by elimination with
// partial pivoting. a is not modified.
func Det(a [][]float64) float64 {
	n := len(a)
	m := make([][]float64, n)
	for i := range a {
		m[i] = append([]float64(nil), a[i]...)
	}
	det := 1.0
	for col := 0; col < n; col++ {
		p := pivotRow(m, col)
		if m[p][col] == 0 {
			return 0
		}
		if p != col {
			m[col], m[p] = m[p], m[col]
			det = -det
		}
		det *= m[col][col]
		for r := col + 1; r < n; r++ {
			f := m[r][col] / m[col][col]
			for j := col; j < n; j++ {
				m[r][j] -= f * m[col][j]
			}
		}
	}
	return det
}

func check(a [][]float64, b []float64) (int, error) {
	n := len(a)
	if n == 0 {
		return 0, fmt.Errorf("%w: empty matrix", ErrDimension)
	}
	if len(b) != n {
		return 0, fmt.Errorf("%w: A is %dx%d, b has %d entries", ErrDimension, n, len(a[0]), len(b))
	}
	for i, row := range a {
		if len(row) != n {
			return 0, fmt.Errorf("%w: row %d has %d columns, want %d", ErrDimension, i, len(row), n)
		}
		for _, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return 0, fmt.Errorf("%w: row %d", ErrNaNInf, i)
			}
		}
		if math.IsNaN(b[i]) || math.IsInf(b[i], 0) {
			return 0, fmt.Errorf("%w: b[%d]", ErrNaNInf, i)
		}
	}
	return n, nil
}

// rowNorm is the infinity norm of row.
func rowNorm(row []float64) float64 {
	m := 0.0
	for _, v := range row {
		m = math.Max(m, math.Abs(v))
	}
	return m
}

func maxAbs(a [][]float64) float64 {
	m := 0.0
	for _, row := range a {
		m = math.Max(m, rowNorm(row))
	}
	return m
}

func augment(a [][]float64, b []float64) [][]float64 {
	ab := make([][]float64, len(a))
	for i, row := range a {
		ab[i] = make([]float64, len(row)+1)
		copy(ab[i], row)
		ab[i][len(row)] = b[i]
	}
	return ab
}

// pivotRow returns the row at or below col with the largest |m[r][col]|.
func pivotRow(m [][]float64, col int) int {
	p := col
	for r := col + 1; r < len(m); r++ {
		if math.Abs(m[r][col]) > math.Abs(m[p][col]) {
			p = r
		}
	}
	return p
}
