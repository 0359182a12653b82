package zarr

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNPYRoundTrip(t *testing.T) {
	for _, dtype := range []string{"<u2", ">i4", "<f4", "|u1"} {
		nd := ramp([]int{3, 4})
		dt := MustParseDtype(dtype)

		buf := &bytes.Buffer{}
		require.NoError(t, WriteNPY(buf, nd, dt))
		require.Equal(t, 0, (buf.Len()-nd.Len()*dt.ByteSize)%64, dtype)

		got, gotDt, err := ReadNPY(buf)
		require.NoError(t, err, dtype)
		require.Equal(t, dt, gotDt)
		require.Equal(t, nd.Shape, got.Shape)
		require.Equal(t, nd.Data, got.Data)
	}
}

func TestNPYOneDimensional(t *testing.T) {
	nd := ramp([]int{5})
	buf := &bytes.Buffer{}
	require.NoError(t, WriteNPY(buf, nd, MustParseDtype("<f8")))
	require.Contains(t, buf.String(), "'shape': (5,)")

	got, _, err := ReadNPY(buf)
	require.NoError(t, err)
	require.Equal(t, []int{5}, got.Shape)
}

func npyFile(version byte, header string, data []byte) []byte {
	buf := &bytes.Buffer{}
	buf.Write(npyMagic)
	buf.Write([]byte{version, 0})
	if version == 1 {
		binary.Write(buf, binary.LittleEndian, uint16(len(header)))
	} else {
		binary.Write(buf, binary.LittleEndian, uint32(len(header)))
	}
	buf.WriteString(header)
	buf.Write(data)
	return buf.Bytes()
}

func TestReadNPYHeaders(t *testing.T) {
	data := []byte{1, 0, 2, 0}
	v2 := npyFile(2, "{'descr': '<u2', 'fortran_order': False, 'shape': (2, 1), }\n", data)
	nd, dt, err := ReadNPY(bytes.NewReader(v2))
	require.NoError(t, err)
	require.Equal(t, "<u2", dt.String())
	require.Equal(t, []float64{1, 2}, nd.Data)

	fortran := npyFile(1, "{'descr': '<u2', 'fortran_order': True, 'shape': (2, 1), }\n", data)
	_, _, err = ReadNPY(bytes.NewReader(fortran))
	require.Error(t, err)

	short := npyFile(1, "{'descr': '<u2', 'fortran_order': False, 'shape': (3, 1), }\n", data)
	_, _, err = ReadNPY(bytes.NewReader(short))
	require.Error(t, err)

	_, _, err = ReadNPY(bytes.NewReader([]byte("PK\x03\x04 not npy")))
	require.Error(t, err)

	_, _, err = ReadNPY(bytes.NewReader(npyFile(9, "{}", nil)))
	require.Error(t, err)
}
