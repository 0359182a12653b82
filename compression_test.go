package zarr

import (
	"bytes"
	"encoding/binary"
	"io/ioutil"
	"testing"

	"github.com/qri-io/dataset/compression"
	"github.com/stretchr/testify/require"
)

func TestCompressionRoundTrip(t *testing.T) {
	data := bytes.Repeat([]byte("zarr chunk payload "), 200)
	metas := []*CompressionMeta{
		nil,
		{},
		{ID: CodecZstd},
		{ID: CodecZstd, Level: 3},
		{ID: CodecGzip, Level: 1},
		{ID: CodecZlib},
		{ID: CodecLZ4, Acceleration: 1},
	}
	for _, m := range metas {
		require.True(t, m.CanCompress())
		enc, err := m.Compress(data)
		require.NoError(t, err)
		if m != nil && m.ID != "" {
			require.Less(t, len(enc), len(data), m.ID)
		}
		dec, err := m.Decompress(enc)
		require.NoError(t, err)
		require.Equal(t, data, dec)
	}
}

func TestLZ4Framing(t *testing.T) {
	data := bytes.Repeat([]byte{1, 2, 3, 4}, 64)
	enc, err := (&CompressionMeta{ID: CodecLZ4}).Compress(data)
	require.NoError(t, err)
	require.Equal(t, uint32(len(data)), binary.LittleEndian.Uint32(enc))

	_, err = lz4Decode(enc[:2])
	require.Error(t, err)
}

func TestCompressUnsupported(t *testing.T) {
	m := &CompressionMeta{ID: "blosc", Cname: "lz4", Clevel: 5, Shuffle: 1}
	require.False(t, m.CanCompress())
	_, err := m.Compress([]byte("abc"))
	require.Error(t, err)
	_, err = m.Decompress([]byte("abc"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "blosc")
}

func TestDatasetCodecInterop(t *testing.T) {
	data := bytes.Repeat([]byte("plane "), 500)
	for _, id := range []string{CodecZstd, CodecGzip} {
		enc, err := (&CompressionMeta{ID: id}).Compress(data)
		require.NoError(t, err)
		r, err := compression.Decompressor(id, bytes.NewReader(enc))
		require.NoError(t, err)
		dec, err := ioutil.ReadAll(r)
		require.NoError(t, err)
		require.NoError(t, r.Close())
		require.Equal(t, data, dec, id)

		buf := &bytes.Buffer{}
		w, err := compression.Compressor(id, buf)
		require.NoError(t, err)
		_, err = w.Write(data)
		require.NoError(t, err)
		require.NoError(t, w.Close())
		dec, err = (&CompressionMeta{ID: id, Level: 0}).Decompress(buf.Bytes())
		require.NoError(t, err)
		require.Equal(t, data, dec, id)
	}
}
