package zarr

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
)

func TestGaussianKernel(t *testing.T) {
	k := gaussianKernel(2 * 2.0 / 6)
	require.Len(t, k, 7)
	require.InDelta(t, 1, floats.Sum(k), 1e-12)
	require.Equal(t, k[0], k[6])
	require.Equal(t, 3, floats.MaxIdx(k))
}

func TestReflectIndex(t *testing.T) {
	cases := map[int]int{-2: 1, -1: 0, 0: 0, 3: 3, 4: 3, 5: 2, 9: 1}
	for i, want := range cases {
		require.Equal(t, want, reflectIndex(i, 4), "index %d", i)
	}
	require.Equal(t, 0, reflectIndex(-3, 1))
}

func TestLocalMean(t *testing.T) {
	a, err := NDArrayFrom([]int{1, 3, 3}, []float64{
		1, 2, 3,
		4, 5, 6,
		7, 8, 9,
	})
	require.NoError(t, err)
	out := localMean(a, 2)
	require.Equal(t, []int{1, 2, 2}, out.Shape)
	require.Equal(t, []float64{3, 9.0 / 4, 15.0 / 4, 9.0 / 4}, out.Data)
}

func TestNearestReduce(t *testing.T) {
	a := ramp([]int{2, 5})
	out, ok := nearestReduce(a, 2)
	require.True(t, ok)
	require.Equal(t, []int{1, 2}, out.Shape)
	require.Equal(t, []float64{0, 2}, out.Data)

	_, ok = nearestReduce(out, 2)
	require.False(t, ok)
}

func TestZoomCornerAligned(t *testing.T) {
	a, err := NDArrayFrom([]int{1, 4}, []float64{0, 10, 20, 30})
	require.NoError(t, err)
	out, ok := zoom(a, 0.5)
	require.False(t, ok)
	require.Nil(t, out)

	b := ramp([]int{4, 4})
	out, ok = zoom(b, 0.5)
	require.True(t, ok)
	// corners are kept exactly
	require.Equal(t, []float64{0, 3, 12, 15}, out.Data)
}

func TestLevelsStop(t *testing.T) {
	next := levels(MethodGaussian, ramp([]int{3, 2}), 2)
	level, ok := next()
	require.True(t, ok)
	require.Equal(t, []int{2, 1}, level.Shape)
	level, ok = next()
	require.True(t, ok)
	require.Equal(t, []int{1, 1}, level.Shape)
	_, ok = next()
	require.False(t, ok)

	_, ok = levels(Method("bicubic"), ramp([]int{4, 4}), 2)()
	require.False(t, ok)
}
