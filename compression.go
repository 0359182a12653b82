package zarr

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"io/ioutil"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/qri-io/dataset/compression"
)

// CompressionMeta defines the compressor settings of an array, following
// the numcodecs codec configuration objects.
type CompressionMeta struct {
	ID           string `json:"id"`
	Level        int    `json:"level,omitempty"`
	Acceleration int    `json:"acceleration,omitempty"`
	Cname        string `json:"cname,omitempty"`
	Clevel       int    `json:"clevel,omitempty"`
	Shuffle      int    `json:"shuffle,omitempty"`
}

// codec ids with a built-in implementation
const (
	CodecZstd = "zstd"
	CodecGzip = "gzip"
	CodecZlib = "zlib"
	CodecLZ4  = "lz4"
)

// Decompressor wraps r in a reader producing decompressed chunk bytes.
// A nil CompressionMeta reads r unchanged. Codecs without a decoder, such
// as blosc, fail here.
func (m *CompressionMeta) Decompressor(r io.ReadCloser) (io.ReadCloser, error) {
	if m == nil || m.ID == "" {
		return r, nil
	}
	switch m.ID {
	case CodecZstd, CodecGzip:
		d, err := compression.Decompressor(m.ID, r)
		if err != nil {
			return nil, err
		}
		return closeBoth{d, r}, nil
	case CodecZlib:
		zr, err := zlib.NewReader(r)
		if err != nil {
			return nil, err
		}
		return closeBoth{zr, r}, nil
	case CodecLZ4:
		defer r.Close()
		data, err := ioutil.ReadAll(r)
		if err != nil {
			return nil, err
		}
		out, err := lz4Decode(data)
		if err != nil {
			return nil, err
		}
		return ioutil.NopCloser(bytes.NewReader(out)), nil
	}
	return nil, fmt.Errorf("unsupported compressor for reading: %q", m.ID)
}

// Decompress decodes a whole chunk.
func (m *CompressionMeta) Decompress(data []byte) ([]byte, error) {
	r, err := m.Decompressor(ioutil.NopCloser(bytes.NewReader(data)))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return ioutil.ReadAll(r)
}

// Compress encodes a whole chunk. A nil CompressionMeta returns data as is.
func (m *CompressionMeta) Compress(data []byte) ([]byte, error) {
	if m == nil || m.ID == "" {
		return data, nil
	}
	buf := &bytes.Buffer{}
	var w io.WriteCloser
	var err error
	switch {
	case (m.ID == CodecZstd || m.ID == CodecGzip) && m.Level == 0:
		w, err = compression.Compressor(m.ID, buf)
	case m.ID == CodecZstd:
		w, err = zstd.NewWriter(buf, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(m.Level)))
	case m.ID == CodecGzip:
		w, err = gzip.NewWriterLevel(buf, m.Level)
	case m.ID == CodecZlib:
		w, err = zlib.NewWriterLevel(buf, levelOr(m.Level, zlib.DefaultCompression))
	case m.ID == CodecLZ4:
		return lz4Encode(data)
	default:
		return nil, fmt.Errorf("unsupported compressor for writing: %q", m.ID)
	}
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// CanCompress reports whether Compress supports the codec.
func (m *CompressionMeta) CanCompress() bool {
	if m == nil {
		return true
	}
	switch m.ID {
	case "", CodecZstd, CodecGzip, CodecZlib, CodecLZ4:
		return true
	}
	return false
}

func levelOr(level, def int) int {
	if level == 0 {
		return def
	}
	return level
}

// numcodecs lz4 frames a raw lz4 block with its little-endian uint32
// decompressed size.
func lz4Encode(data []byte) ([]byte, error) {
	out := make([]byte, 4+lz4.CompressBlockBound(len(data)))
	binary.LittleEndian.PutUint32(out, uint32(len(data)))
	var c lz4.Compressor
	n, err := c.CompressBlock(data, out[4:])
	if err != nil {
		return nil, err
	}
	return out[:4+n], nil
}

func lz4Decode(data []byte) ([]byte, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("lz4 chunk too short: %d bytes", len(data))
	}
	size := binary.LittleEndian.Uint32(data)
	out := make([]byte, size)
	n, err := lz4.UncompressBlock(data[4:], out)
	if err != nil {
		return nil, err
	}
	if n != int(size) {
		return nil, fmt.Errorf("lz4 chunk decoded to %d bytes, want %d", n, size)
	}
	return out, nil
}

type closeBoth struct {
	io.ReadCloser
	under io.Closer
}

func (c closeBoth) Close() error {
	err := c.ReadCloser.Close()
	if uerr := c.under.Close(); err == nil {
		err = uerr
	}
	return err
}
