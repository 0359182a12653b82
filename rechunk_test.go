package zarr

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRechunk(t *testing.T) {
	ctx := context.Background()
	src, dst := NewMemoryStore(), NewMemoryStore()
	nd := ramp([]int{2, 6, 6})
	writeBase(t, src, "in", nd, "<u2", []int{1, 2, 2})
	require.NoError(t, WriteKey(ctx, src, "in/.zattrs", []byte(`{"_ARRAY_DIMENSIONS": ["c", "y", "x"]}`)))

	stats, err := Rechunk(ctx, src, "in", dst, "out", []int{2, 3, 3}, TransferConfig{})
	require.NoError(t, err)
	require.Equal(t, 4, stats.Stored)

	meta, got := readLevel(t, dst, "out")
	require.Equal(t, []int{2, 3, 3}, meta.Chunks)
	require.Equal(t, "<u2", meta.Dtype.Dtype.String())
	require.Equal(t, CodecZlib, meta.Compressor.ID)
	require.Equal(t, nd.Data, got.Data)

	attrs, err := ReadKey(ctx, dst, "out/.zattrs")
	require.NoError(t, err)
	require.JSONEq(t, `{"_ARRAY_DIMENSIONS": ["c", "y", "x"]}`, string(attrs))

	_, err = Rechunk(ctx, src, "in", dst, "out", []int{2, 3, 3}, TransferConfig{})
	require.True(t, errors.Is(err, ErrPrecondition))

	_, err = Rechunk(ctx, src, "in", dst, "other", []int{3, 3}, TransferConfig{})
	require.Error(t, err)
	ok, err := dst.Exists(ctx, "other/.zarray")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRechunkToOneChunk(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	nd := ramp([]int{5, 7})
	writeBase(t, s, "in", nd, "<u2", []int{2, 2})

	stats, err := Rechunk(ctx, s, "in", s, "whole", []int{5, 7}, TransferConfig{})
	require.NoError(t, err)
	require.Equal(t, 1, stats.Stored)
	_, got := readLevel(t, s, "whole")
	require.Equal(t, nd.Data, got.Data)

	ok, err := s.Exists(ctx, "whole/.zattrs")
	require.NoError(t, err)
	require.False(t, ok)
}
