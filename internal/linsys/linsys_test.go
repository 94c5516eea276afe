package linsys

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func system() ([][]float64, []float64, []float64) {
	a := [][]float64{
		{2, 1, -1},
		{-3, -1, 2},
		{-2, 1, 2},
	}
	b := []float64{8, -11, -3}
	return a, b, []float64{2, 3, -1}
}

func TestSolveMethodsAgree(t *testing.T) {
	a, b, want := system()
	for _, m := range []string{MethodGaussJordan, MethodCramer} {
		t.Run(m, func(t *testing.T) {
			x, err := Solve(m, a, b)
			require.NoError(t, err)
			assert.InDeltaSlice(t, want, x, 1e-9)
		})
	}
}

func TestInputsNotMutated(t *testing.T) {
	a, b, _ := system()
	a0, b0 := [][]float64{append([]float64(nil), a[0]...), append([]float64(nil), a[1]...), append([]float64(nil), a[2]...)}, append([]float64(nil), b...)
	_, err := GaussJordan(a, b)
	require.NoError(t, err)
	_, err = Cramer(a, b)
	require.NoError(t, err)
	assert.Equal(t, a0, a)
	assert.Equal(t, b0, b)
}

func TestBackSubstitution(t *testing.T) {
	a := [][]float64{
		{2, 1, 1},
		{0, 3, 1},
		{0, 0, 4},
	}
	x, err := Solve(MethodSubstitution, a, []float64{9, 10, 8})
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{13.0 / 6, 8.0 / 3, 2}, x, 1e-9)

	a[1][1] = 0
	_, err = BackSubstitution(a, []float64{1, 1, 1})
	assert.ErrorIs(t, err, ErrZeroPivot)
}

func TestGaussJordanNeedsPivoting(t *testing.T) {
	// zero in the leading position; solvable only with a row swap
	a := [][]float64{{0, 1}, {1, 0}}
	x, err := GaussJordan(a, []float64{3, 4})
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{4, 3}, x, 1e-12)
}

func TestSingular(t *testing.T) {
	a := [][]float64{{1, 2}, {2, 4}}
	_, err := GaussJordan(a, []float64{1, 2})
	assert.ErrorIs(t, err, ErrSingular)
	_, err = Cramer(a, []float64{1, 2})
	assert.ErrorIs(t, err, ErrSingular)
}

func TestDet(t *testing.T) {
	a, _, _ := system()
	assert.InDelta(t, -1.0, Det(a), 1e-12)
	assert.Equal(t, 0.0, Det([][]float64{{0, 0}, {0, 1}}))
	assert.InDelta(t, -1.0, Det([][]float64{{0, 1}, {1, 0}}), 1e-12)
}

func TestShapeErrors(t *testing.T) {
	_, err := Solve(MethodGaussJordan, nil, nil)
	assert.ErrorIs(t, err, ErrDimension)
	_, err = Solve(MethodGaussJordan, [][]float64{{1, 2}}, []float64{1})
	assert.ErrorIs(t, err, ErrDimension)
	_, err = Solve(MethodCramer, [][]float64{{1, 0}, {0, 1}}, []float64{1})
	assert.ErrorIs(t, err, ErrDimension)
}

func TestUnknownMethod(t *testing.T) {
	a, b, _ := system()
	_, err := Solve("lu", a, b)
	assert.ErrorIs(t, err, ErrUnknownMethod)

	x, err := Solve(" Gauss-Jordan ", a, b)
	require.NoError(t, err)
	assert.Len(t, x, 3)
}

func TestScaledSystems(t *testing.T) {
	for _, scale := range []float64{1e-5, 1e-9, 1e6} {
		a := [][]float64{
			{scale, 0, 0},
			{0, scale, 0},
			{0, 0, scale},
		}
		b := []float64{scale, 2 * scale, 3 * scale}
		for _, m := range Methods() {
			x, err := Solve(m, a, b)
			require.NoError(t, err, "%s at scale %g", m, scale)
			assert.InDeltaSlice(t, []float64{1, 2, 3}, x, 1e-9, "%s at scale %g", m, scale)
		}
	}

	// still singular when small
	tiny := [][]float64{{1e-5, 2e-5}, {2e-5, 4e-5}}
	_, err := Cramer(tiny, []float64{1e-5, 2e-5})
	assert.ErrorIs(t, err, ErrSingular)
	_, err = GaussJordan(tiny, []float64{1e-5, 2e-5})
	assert.ErrorIs(t, err, ErrSingular)
}
