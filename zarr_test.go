package zarr

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

var metaOne = &ArrayMeta{
	ZarrFormat: Version,
	Shape:      []int{100, 100},
	Chunks:     []int{10, 10},
	Dtype:      StructuredType{Dtype: MustParseDtype("<i4")},
	Compressor: &CompressionMeta{ID: CodecZstd},
	FillValue:  0,
}

func copyMeta(m *ArrayMeta) *ArrayMeta {
	c := *m
	return &c
}

func ramp(shape []int) *NDArray {
	nd := NewNDArray(shape)
	for i := range nd.Data {
		nd.Data[i] = float64(i % 1000)
	}
	return nd
}

func TestZarr(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	_, err := Open(ctx, s, "foo/bar", ModeRead)
	require.True(t, errors.Is(err, ErrNotFound))

	z, err := Create(ctx, s, "foo/bar", copyMeta(metaOne), ModeWriteFail)
	require.NoError(t, err)
	require.Equal(t, "foo/bar", z.Path())
	require.Equal(t, "C", z.Meta().Order)
	require.Equal(t, "foo/bar/9.3", z.ChunkKey(ChunkCoord{9, 3}))

	_, err = Create(ctx, s, "foo/bar", copyMeta(metaOne), ModeWriteFail)
	require.True(t, errors.Is(err, ErrPrecondition))

	again, err := Create(ctx, s, "foo/bar", copyMeta(metaOne), ModeReadWriteCreate)
	require.NoError(t, err)
	require.Equal(t, metaOne.Shape, again.Meta().Shape)

	require.NoError(t, CreateGroup(ctx, s, "grp"))
	_, err = Create(ctx, s, "grp", copyMeta(metaOne), ModeWriteFail)
	require.True(t, errors.Is(err, ErrPrecondition))
}

/*
import zarr
import numpy as np
from numcodecs import Zstd
z1 = zarr.open('int32_100x100_chunk_10x10_.zarr', mode='w', shape=(100, 100), chunks=(10, 10), dtype='i4', compressor=Zstd())
z1[:] = 20
*/
func TestReadAll(t *testing.T) {
	ctx := context.Background()
	s, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	a, err := Create(ctx, s, "int32_100x100_chunk_10x10_.zarr", copyMeta(metaOne), ModeWrite)
	require.NoError(t, err)
	nd := NewNDArray(metaOne.Shape)
	nd.Fill(20)
	stats, err := a.WriteAll(ctx, nd, TransferConfig{})
	require.NoError(t, err)
	require.Equal(t, 100, stats.Stored)

	a, err = Open(ctx, s, "int32_100x100_chunk_10x10_.zarr", ModeRead)
	require.NoError(t, err)
	got, err := a.ReadAll(ctx)
	require.NoError(t, err)
	require.Equal(t, nd.Data, got.Data)
	require.Equal(t, float64(20), got.At(99, 99))
}

func TestReadAllPartialChunks(t *testing.T) {
	ctx := context.Background()
	for _, sep := range []string{".", "/"} {
		s := NewMemoryStore()
		meta := &ArrayMeta{
			Shape:              []int{3, 7, 5},
			Chunks:             []int{2, 3, 2},
			Dtype:              StructuredType{Dtype: MustParseDtype(">u2")},
			Compressor:         &CompressionMeta{ID: CodecLZ4},
			DimensionSeparator: sep,
		}
		a, err := Create(ctx, s, "arr", meta, ModeWrite)
		require.NoError(t, err)

		nd := ramp(meta.Shape)
		_, err = a.WriteAll(ctx, nd, TransferConfig{})
		require.NoError(t, err)

		ok, err := s.Exists(ctx, "arr/1"+sep+"2"+sep+"2")
		require.NoError(t, err)
		require.True(t, ok, "separator %q", sep)

		got, err := a.ReadAll(ctx)
		require.NoError(t, err)
		require.Equal(t, nd.Data, got.Data, "separator %q", sep)
	}
}

func TestReadAllMissingChunksUseFill(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	meta := &ArrayMeta{
		Shape:     []int{4, 4},
		Chunks:    []int{2, 2},
		Dtype:     StructuredType{Dtype: MustParseDtype("<f8")},
		FillValue: FillValueNaN,
	}
	a, err := Create(ctx, s, "sparse", meta, ModeWrite)
	require.NoError(t, err)

	raw := make([]byte, meta.ChunkBytes())
	require.NoError(t, meta.Dtype.Dtype.Encode([]float64{1, 2, 3, 4}, raw))
	require.NoError(t, a.WriteChunk(ctx, ChunkCoord{1, 0}, raw))

	got, err := a.ReadAll(ctx)
	require.NoError(t, err)
	require.Equal(t, float64(3), got.At(3, 0))
	require.True(t, got.At(0, 0) != got.At(0, 0), "expected NaN fill")
}

func TestReadOnlyArray(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	_, err := Create(ctx, s, "x", copyMeta(metaOne), ModeWrite)
	require.NoError(t, err)
	a, err := Open(ctx, s, "x", ModeRead)
	require.NoError(t, err)
	err = a.WriteChunk(ctx, ChunkCoord{0, 0}, make([]byte, metaOne.ChunkBytes()))
	require.True(t, errors.Is(err, ErrWrite))
}

func TestUndecodableArray(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	meta := copyMeta(metaOne)
	meta.Order = "F"
	a, err := Create(ctx, s, "f", meta, ModeWrite)
	require.NoError(t, err)
	_, err = a.ReadAll(ctx)
	require.Error(t, err)
}

func TestPath(t *testing.T) {
	p, err := NewPath(`/a\b//c/`)
	require.NoError(t, err)
	require.Equal(t, "a/b/c", p.String())

	joined := p[:1].Join("x")
	require.Equal(t, "a/x", joined.String())
	require.Equal(t, "a/b/c", p.String())

	_, err = NewPath("a/../b")
	require.Error(t, err)

	require.Equal(t, "a/b/.zarray", JoinKey("", "a/", "/b", ".zarray"))
}
