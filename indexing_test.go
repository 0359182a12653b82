package zarr

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestChunkIteratorOrder(t *testing.T) {
	cases := []struct {
		name   string
		desc   ArrayDescriptor
		order  []int
		expect []ChunkCoord
	}{
		{
			name:   "square",
			desc:   ArrayDescriptor{Shape: []int{4, 4}, Chunks: []int{2, 2}},
			expect: []ChunkCoord{{0, 0}, {0, 1}, {1, 0}, {1, 1}},
		},
		{
			name:   "partial edge",
			desc:   ArrayDescriptor{Shape: []int{5}, Chunks: []int{2}},
			expect: []ChunkCoord{{0}, {1}, {2}},
		},
		{
			name:   "swapped order",
			desc:   ArrayDescriptor{Shape: []int{4, 6}, Chunks: []int{2, 3}},
			order:  []int{1, 0},
			expect: []ChunkCoord{{0, 0}, {1, 0}, {0, 1}, {1, 1}},
		},
		{
			name: "zero extent",
			desc: ArrayDescriptor{Shape: []int{3, 0}, Chunks: []int{1, 1}},
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, err := AllChunks(c.desc, c.order)
			require.NoError(t, err)
			require.Equal(t, c.expect, got)
		})
	}
}

func TestChunkIteratorCount(t *testing.T) {
	descs := []ArrayDescriptor{
		{Shape: []int{1}, Chunks: []int{1}},
		{Shape: []int{10, 7}, Chunks: []int{3, 7}},
		{Shape: []int{2, 3, 1, 100, 99}, Chunks: []int{1, 1, 1, 32, 32}},
		{Shape: []int{9, 9, 9}, Chunks: []int{10, 4, 2}},
	}
	for _, desc := range descs {
		for _, order := range [][]int{nil, reversed(len(desc.Shape))} {
			got, err := AllChunks(desc, order)
			require.NoError(t, err)
			require.Len(t, got, desc.NumChunks())

			seen := map[string]bool{}
			grid := desc.GridShape()
			for _, c := range got {
				require.False(t, seen[c.Key(".")], "duplicate chunk %s", c)
				seen[c.Key(".")] = true
				for i := range c {
					require.True(t, c[i] >= 0 && c[i] < grid[i], "chunk %s outside grid %v", c, grid)
				}
			}
		}
	}
}

func TestChunkIteratorLexicographic(t *testing.T) {
	desc := ArrayDescriptor{Shape: []int{3, 5, 4}, Chunks: []int{1, 2, 3}}
	got, err := AllChunks(desc, nil)
	require.NoError(t, err)
	for i := 1; i < len(got); i++ {
		require.True(t, lessCoord(got[i-1], got[i]), "%s before %s", got[i-1], got[i])
	}
}

func TestChunkIteratorBadInput(t *testing.T) {
	_, err := NewChunkIterator(ArrayDescriptor{Shape: []int{4}, Chunks: []int{0}}, nil)
	require.Error(t, err)
	_, err = NewChunkIterator(ArrayDescriptor{Shape: []int{4, 4}, Chunks: []int{2}}, nil)
	require.Error(t, err)
	_, err = NewChunkIterator(ArrayDescriptor{}, nil)
	require.Error(t, err)
	_, err = NewChunkIterator(ArrayDescriptor{Shape: []int{4, 4}, Chunks: []int{2, 2}}, []int{0, 0})
	require.Error(t, err)
	_, err = NewChunkIterator(ArrayDescriptor{Shape: []int{4, 4}, Chunks: []int{2, 2}}, []int{0})
	require.Error(t, err)
}

func TestChunkExtent(t *testing.T) {
	desc := ArrayDescriptor{Shape: []int{5, 6}, Chunks: []int{2, 3}}
	require.Equal(t, []int{2, 3}, desc.ChunkExtent(ChunkCoord{0, 0}))
	require.Equal(t, []int{1, 3}, desc.ChunkExtent(ChunkCoord{2, 1}))
}

func TestChunkKey(t *testing.T) {
	require.Equal(t, "1.4", ChunkCoord{1, 4}.Key(""))
	require.Equal(t, "1/4/0", ChunkCoord{1, 4, 0}.Key("/"))
	require.Equal(t, "7", ChunkCoord{7}.Key("/"))
	require.Equal(t, "(1,4)", ChunkCoord{1, 4}.String())
}

func TestChunkRuns(t *testing.T) {
	desc := ArrayDescriptor{Shape: []int{3, 5}, Chunks: []int{2, 2}}
	var runs []chunkRun
	chunkRuns(desc, ChunkCoord{1, 2}, func(r chunkRun) {
		runs = append(runs, r)
	})
	// the chunk covers row 2, column 4 only
	require.Equal(t, []chunkRun{{OutOffset: 14, ChunkOffset: 0, Len: 1}}, runs)

	runs = nil
	chunkRuns(desc, ChunkCoord{0, 1}, func(r chunkRun) {
		runs = append(runs, r)
	})
	require.Equal(t, []chunkRun{
		{OutOffset: 2, ChunkOffset: 0, Len: 2},
		{OutOffset: 7, ChunkOffset: 2, Len: 2},
	}, runs)
}

func reversed(n int) []int {
	o := make([]int, n)
	for i := range o {
		o[i] = n - 1 - i
	}
	return o
}

func lessCoord(a, b ChunkCoord) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}
