package zarr

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"io/ioutil"
	"regexp"
	"strconv"
	"strings"
)

var npyMagic = []byte("\x93NUMPY")

var (
	npyDescr   = regexp.MustCompile(`'descr'\s*:\s*'([^']+)'`)
	npyFortran = regexp.MustCompile(`'fortran_order'\s*:\s*(True|False)`)
	npyShape   = regexp.MustCompile(`'shape'\s*:\s*\(([^)]*)\)`)
)

// ReadNPY decodes a C-ordered NumPy ".npy" file holding a numeric array.
func ReadNPY(r io.Reader) (*NDArray, Dtype, error) {
	br := bufio.NewReader(r)
	dt, shape, err := readNPYHeader(br)
	if err != nil {
		return nil, dt, err
	}
	raw, err := ioutil.ReadAll(br)
	if err != nil {
		return nil, dt, err
	}
	nd := NewNDArray(shape)
	if want := nd.Len() * dt.ByteSize; len(raw) != want {
		return nil, dt, fmt.Errorf("npy data holds %d bytes, shape %v of %s needs %d", len(raw), shape, dt, want)
	}
	if err := dt.Decode(raw, nd.Data); err != nil {
		return nil, dt, err
	}
	return nd, dt, nil
}

func readNPYHeader(r io.Reader) (Dtype, []int, error) {
	var dt Dtype
	prefix := make([]byte, len(npyMagic)+2)
	if _, err := io.ReadFull(r, prefix); err != nil {
		return dt, nil, fmt.Errorf("reading npy magic: %w", err)
	}
	if !bytes.Equal(prefix[:len(npyMagic)], npyMagic) {
		return dt, nil, fmt.Errorf("not an npy file")
	}

	var headerLen int
	switch major := prefix[len(npyMagic)]; major {
	case 1:
		var n uint16
		if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
			return dt, nil, err
		}
		headerLen = int(n)
	case 2, 3:
		var n uint32
		if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
			return dt, nil, err
		}
		headerLen = int(n)
	default:
		return dt, nil, fmt.Errorf("unsupported npy version %d", major)
	}
	header := make([]byte, headerLen)
	if _, err := io.ReadFull(r, header); err != nil {
		return dt, nil, fmt.Errorf("reading npy header: %w", err)
	}

	m := npyDescr.FindSubmatch(header)
	if m == nil {
		return dt, nil, fmt.Errorf("npy header has no descr: %q", header)
	}
	dt, err := ParseDtype(string(m[1]))
	if err != nil {
		return dt, nil, err
	}
	if m := npyFortran.FindSubmatch(header); m != nil && string(m[1]) == "True" {
		return dt, nil, fmt.Errorf("fortran ordered npy data is not supported")
	}
	m = npyShape.FindSubmatch(header)
	if m == nil {
		return dt, nil, fmt.Errorf("npy header has no shape: %q", header)
	}
	var shape []int
	for _, f := range strings.Split(string(m[1]), ",") {
		if f = strings.TrimSpace(f); f == "" {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSuffix(f, "L"))
		if err != nil {
			return dt, nil, fmt.Errorf("invalid npy shape %q", m[1])
		}
		shape = append(shape, n)
	}
	return dt, shape, nil
}

// WriteNPY encodes nd as a version 1.0 ".npy" file of dtype dt.
func WriteNPY(w io.Writer, nd *NDArray, dt Dtype) error {
	dims := make([]string, len(nd.Shape))
	for i, n := range nd.Shape {
		dims[i] = strconv.Itoa(n)
	}
	shape := strings.Join(dims, ", ")
	if len(dims) == 1 {
		shape += ","
	}
	header := fmt.Sprintf("{'descr': '%s', 'fortran_order': False, 'shape': (%s), }", dt, shape)
	// magic, version and length take 10 bytes; the header ends in a newline
	// and pads the total to a multiple of 64
	pad := 64 - (10+len(header)+1)%64
	header += strings.Repeat(" ", pad%64) + "\n"

	raw := make([]byte, nd.Len()*dt.ByteSize)
	if err := dt.Encode(nd.Data, raw); err != nil {
		return err
	}
	buf := &bytes.Buffer{}
	buf.Write(npyMagic)
	buf.Write([]byte{1, 0})
	binary.Write(buf, binary.LittleEndian, uint16(len(header)))
	buf.WriteString(header)
	buf.Write(raw)
	_, err := buf.WriteTo(w)
	return err
}
