package zarr

import (
	"context"
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

// https://zarr.readthedocs.io/en/stable/spec/v2.html#metadata
const zarrDocsExample = `{
  "chunks": [
    1000,
    1000
  ],
	"compressor": {
			"id": "blosc",
			"cname": "lz4",
			"clevel": 5,
			"shuffle": 1
	},
	"dtype": "<f8",
	"fill_value": "NaN",
	"filters": [
			{"id": "delta", "dtype": "<f8", "astype": "<f4"}
	],
	"order": "C",
	"shape": [
			10000,
			10000
	],
	"zarr_format": 2
}`

func TestMetadataSerialization(t *testing.T) {
	m := &ArrayMeta{}
	err := json.Unmarshal([]byte(zarrDocsExample), m)
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Validate(); err != nil {
		t.Fatal(err)
	}

	require.Equal(t, []int{1000, 1000}, m.Chunks)
	require.Equal(t, "blosc", m.Compressor.ID)
	require.Equal(t, 5, m.Compressor.Clevel)
	require.Equal(t, "<f4", m.Filters[0].AsType)
	require.Equal(t, ".", m.Separator())
	require.Equal(t, 1000*1000*8, m.ChunkBytes())

	fill, err := m.Fill()
	require.NoError(t, err)
	require.True(t, math.IsNaN(fill))
}

func TestMetadataFill(t *testing.T) {
	cases := []struct {
		fill   interface{}
		expect float64
	}{
		{nil, 0},
		{float64(7), 7},
		{true, 1},
		{FillValueInfinity, math.Inf(1)},
		{FillValueNegativeInfinity, math.Inf(-1)},
	}
	for _, c := range cases {
		m := &ArrayMeta{FillValue: c.fill}
		got, err := m.Fill()
		require.NoError(t, err)
		require.Equal(t, c.expect, got)
	}
	_, err := (&ArrayMeta{FillValue: "zero"}).Fill()
	require.Error(t, err)

	require.Equal(t, FillValueNaN, FillValueJSON(math.NaN()))
	require.Equal(t, 2.5, FillValueJSON(2.5))
}

func TestMetadataValidate(t *testing.T) {
	m := &ArrayMeta{Shape: []int{10}, Chunks: []int{5}, DimensionSeparator: "-"}
	require.Error(t, m.Validate())
	m.DimensionSeparator = "/"
	require.NoError(t, m.Validate())
	m.Chunks = []int{5, 5}
	require.Error(t, m.Validate())
}

func TestKeyMetaType(t *testing.T) {
	mt, ok := KeyMetaType("0/.zarray")
	require.True(t, ok)
	require.Equal(t, MTArray, mt)
	_, ok = KeyMetaType("0/1.2")
	require.False(t, ok)
}

const consolidatedExample = `{
    "metadata": {
        ".zattrs": {
            "multiscales": [{"version": "0.1", "datasets": [{"path": "base"}, {"path": "1"}]}]
        },
        ".zgroup": {
            "zarr_format": 2
        },
        "base/.zarray": {
            "chunks": [1, 256, 256],
            "compressor": {"id": "zstd", "level": 1},
            "dtype": "<u2",
            "fill_value": 0,
            "filters": null,
            "order": "C",
            "shape": [3, 1024, 1024],
            "zarr_format": 2
        },
        "1/.zarray": {
            "chunks": [1, 256, 256],
            "compressor": null,
            "dtype": "<u2",
            "fill_value": 0,
            "filters": null,
            "order": "C",
            "shape": [3, 512, 512],
            "zarr_format": 2,
            "dimension_separator": "/"
        }
    },
    "zarr_consolidated_format": 1
}`

func TestConsolidatedMetadata(t *testing.T) {
	cm := &ConsolidatedMetadata{}
	if err := json.Unmarshal([]byte(consolidatedExample), cm); err != nil {
		t.Fatal(err)
	}

	require.Equal(t, 1, cm.ConsolidatedFormat)
	require.Len(t, cm.Metadata, 4)
	require.IsType(t, Attributes{}, cm.Metadata[".zattrs"])
	require.IsType(t, &Group{}, cm.Metadata[".zgroup"])

	level, ok := cm.Metadata["1/.zarray"].(*ArrayMeta)
	require.True(t, ok)
	require.Equal(t, []int{3, 512, 512}, level.Shape)
	require.Equal(t, "/", level.Separator())
	require.Nil(t, level.Compressor)

	bad := `{"metadata": {"0/data": {}}, "zarr_consolidated_format": 1}`
	require.Error(t, json.Unmarshal([]byte(bad), &ConsolidatedMetadata{}))
}

func TestConsolidate(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, CreateGroup(ctx, s, "img"))
	require.NoError(t, WriteKey(ctx, s, "img/.zattrs", []byte(`{"name": "cells"}`)))
	for _, p := range []string{"img/0", "img/1"} {
		_, err := Create(ctx, s, p, &ArrayMeta{Shape: []int{4, 4}, Chunks: []int{2, 2}, Dtype: StructuredType{Dtype: MustParseDtype("<u2")}}, ModeWriteFail)
		require.NoError(t, err)
	}

	require.NoError(t, Consolidate(ctx, s, "img", []string{"0", "1"}))
	cm, err := ReadConsolidated(ctx, s, "img")
	require.NoError(t, err)
	require.Len(t, cm.Metadata, 4)
	require.Contains(t, cm.Metadata, "0/.zarray")
	require.Equal(t, Attributes{"name": "cells"}, cm.Metadata[".zattrs"])

	require.Error(t, Consolidate(ctx, s, "img", []string{"2"}))
}

func TestParseMultiscales(t *testing.T) {
	list := `{"multiscales": [{"version": "0.1", "name": "default", "datasets": [{"path": "base"}, {"path": "1"}], "type": "nearest"}]}`
	mss, err := ParseMultiscales([]byte(list))
	require.NoError(t, err)
	require.Len(t, mss, 1)
	require.Equal(t, "nearest", mss[0].Type)
	require.Equal(t, []string{"base", "1"}, DatasetPaths(mss))

	// image servers publish a single object with per-level scales
	object := `{"multiscales": {"version": "0.1", "datasets": [{"path": "0", "scale": 1.0}, {"path": "1", "scale": 0.5}]}}`
	mss, err = ParseMultiscales([]byte(object))
	require.NoError(t, err)
	require.Equal(t, []string{"0", "1"}, DatasetPaths(mss))
	require.Equal(t, 0.5, *mss[0].Datasets[1].Scale)

	mss, err = ParseMultiscales([]byte(`{"other": 1}`))
	require.NoError(t, err)
	require.Nil(t, mss)

	_, err = ParseMultiscales([]byte(`{"multiscales": 3}`))
	require.Error(t, err)
}
