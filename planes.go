package zarr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// PlaneIndex locates one 2-D image plane.
type PlaneIndex struct {
	Z, C, T int
}

func (i PlaneIndex) String() string {
	return fmt.Sprintf("z=%d c=%d t=%d", i.Z, i.C, i.T)
}

// PlaneSetInfo describes a stack of equally shaped planes.
type PlaneSetInfo struct {
	SizeZ, SizeC, SizeT int
	SizeY, SizeX        int
	Dtype               Dtype
}

// PlaneProvider serves the planes of an image one at a time. Plane fails
// with ErrNotFound for a plane it does not have.
type PlaneProvider interface {
	Describe(ctx context.Context) (PlaneSetInfo, error)
	Plane(ctx context.Context, idx PlaneIndex) (*NDArray, error)
}

// ImportConfig controls a plane import.
type ImportConfig struct {
	// Axes orders the Z, C and T dimensions ahead of Y and X.
	Axes       string       `toml:"axes"`
	Mode       TransferMode `toml:"mode"`
	Timeout    Duration     `toml:"timeout"`
	Compressor string       `toml:"compressor"`
}

func DefaultImportConfig() ImportConfig {
	return ImportConfig{
		Axes:       "CZT",
		Mode:       ModeCopy,
		Compressor: CodecZstd,
	}
}

// axisOrder maps each of the leading array dimensions to 'Z', 'C' or 'T'.
func (c ImportConfig) axisOrder() (string, error) {
	axes := strings.ToUpper(c.Axes)
	if len(axes) != 3 || !strings.ContainsRune(axes, 'Z') || !strings.ContainsRune(axes, 'C') || !strings.ContainsRune(axes, 'T') {
		return "", fmt.Errorf("axes %q must order Z, C and T", c.Axes)
	}
	return axes, nil
}

// planeSource presents a PlaneProvider as the chunks of a 5-D array whose
// chunks are single planes. Each chunk coordinate is mapped to its plane
// index, so planes never need to arrive in array order.
type planeSource struct {
	provider PlaneProvider
	axes     string
	meta     *ArrayMeta
}

var _ Source = (*planeSource)(nil)

func (s *planeSource) Describe(context.Context) (ArrayDescriptor, error) {
	return s.meta.Descriptor(), nil
}

func (s *planeSource) index(c ChunkCoord) PlaneIndex {
	var idx PlaneIndex
	for i, axis := range s.axes {
		switch axis {
		case 'Z':
			idx.Z = c[i]
		case 'C':
			idx.C = c[i]
		case 'T':
			idx.T = c[i]
		}
	}
	return idx
}

func (s *planeSource) Fetch(ctx context.Context, c ChunkCoord) (ChunkPayload, error) {
	idx := s.index(c)
	plane, err := s.provider.Plane(ctx, idx)
	if err != nil {
		return nil, fmt.Errorf("plane %s: %w", idx, err)
	}
	want := s.meta.Shape[3:]
	if !sameShape(plane.Shape, want) {
		return nil, fmt.Errorf("plane %s has shape %v, want %v", idx, plane.Shape, want)
	}
	raw := make([]byte, s.meta.ChunkBytes())
	if err := s.meta.Dtype.Dtype.Encode(plane.Data, raw); err != nil {
		return nil, err
	}
	return s.meta.Compressor.Compress(raw)
}

// ImportPlanes writes every plane of provider into a new array at path with
// shape (<axes>, Y, X) and one plane per chunk. In resume mode planes
// already stored are skipped.
func ImportPlanes(ctx context.Context, provider PlaneProvider, dst Store, path string, cfg ImportConfig) (TransferStats, error) {
	axes, err := cfg.axisOrder()
	if err != nil {
		return TransferStats{}, err
	}
	info, err := provider.Describe(ctx)
	if err != nil {
		return TransferStats{}, err
	}
	if !info.Dtype.Numeric() {
		return TransferStats{}, fmt.Errorf("planes of dtype %s cannot be imported", info.Dtype)
	}

	sizes := map[rune]int{'Z': info.SizeZ, 'C': info.SizeC, 'T': info.SizeT}
	shape := make([]int, 0, 5)
	for _, axis := range axes {
		shape = append(shape, sizes[axis])
	}
	shape = append(shape, info.SizeY, info.SizeX)
	chunks := []int{1, 1, 1, maxInt(info.SizeY, 1), maxInt(info.SizeX, 1)}

	var compressor *CompressionMeta
	if cfg.Compressor != "" {
		compressor = &CompressionMeta{ID: cfg.Compressor}
		if !compressor.CanCompress() {
			return TransferStats{}, fmt.Errorf("unsupported compressor for writing: %q", cfg.Compressor)
		}
	}
	meta := &ArrayMeta{
		Shape:      shape,
		Chunks:     chunks,
		Dtype:      StructuredType{Dtype: info.Dtype},
		Compressor: compressor,
		FillValue:  0,
	}

	var a *Array
	switch cfg.Mode {
	case ModeVerify:
		a, err = Open(ctx, dst, path, ModeRead)
	case ModeResume:
		a, err = Create(ctx, dst, path, meta, ModeReadWriteCreate)
	default:
		a, err = Create(ctx, dst, path, meta, ModeWrite)
	}
	if err != nil {
		return TransferStats{}, err
	}
	if !sameShape(a.Meta().Shape, shape) || !sameShape(a.Meta().Chunks, chunks) {
		return TransferStats{}, fmt.Errorf("%w: existing array %q has shape %v chunks %v, planes need %v chunks %v",
			ErrPrecondition, path, a.Meta().Shape, a.Meta().Chunks, shape, chunks)
	}

	if cfg.Mode != ModeVerify {
		dims := make([]string, 0, 5)
		for _, axis := range axes + "YX" {
			dims = append(dims, strings.ToLower(string(axis)))
		}
		attrs, err := json.Marshal(Attributes{"_ARRAY_DIMENSIONS": dims})
		if err != nil {
			return TransferStats{}, err
		}
		if err := WriteKey(ctx, dst, JoinKey(path, string(MTAttributes)), attrs); err != nil {
			return TransferStats{}, err
		}
	}

	src := &planeSource{provider: provider, axes: axes, meta: a.Meta()}
	tcfg := TransferConfig{Mode: cfg.Mode, Timeout: cfg.Timeout}
	tlog := NewTimeLog()
	stats, err := NewTransfer(src, NewArrayDestination(a), tcfg).Run(ctx)
	if err != nil {
		return stats, err
	}
	tlog.Infof("Imported %d x %d x %d planes into %q: %s", info.SizeZ, info.SizeC, info.SizeT, path, stats)
	return stats, nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

var npyPlaneName = regexp.MustCompile(`^(\d+)-(\d+)-(\d+)\.npy$`)

// NPYDir is a PlaneProvider over a directory of "Z-C-T.npy" files, one
// 2-D plane per file. Indices may be zero padded as PlaneFile writes them.
// Plane counts come from the highest index found along each axis.
type NPYDir struct {
	dir   string
	info  PlaneSetInfo
	files map[PlaneIndex]string
}

var _ PlaneProvider = (*NPYDir)(nil)

func OpenNPYDir(dir string) (*NPYDir, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	d := &NPYDir{dir: dir, files: map[PlaneIndex]string{}}
	first := ""
	for _, e := range entries {
		m := npyPlaneName.FindStringSubmatch(e.Name())
		if e.IsDir() || m == nil {
			continue
		}
		z, _ := strconv.Atoi(m[1])
		c, _ := strconv.Atoi(m[2])
		t, _ := strconv.Atoi(m[3])
		idx := PlaneIndex{Z: z, C: c, T: t}
		if prev, ok := d.files[idx]; ok {
			return nil, fmt.Errorf("plane files %s and %s both hold %s", prev, e.Name(), idx)
		}
		d.files[idx] = e.Name()
		d.info.SizeZ = maxInt(d.info.SizeZ, z+1)
		d.info.SizeC = maxInt(d.info.SizeC, c+1)
		d.info.SizeT = maxInt(d.info.SizeT, t+1)
		if first == "" {
			first = e.Name()
		}
	}
	if first == "" {
		return nil, fmt.Errorf("%w: no plane files in %q", ErrNotFound, dir)
	}

	f, err := os.Open(filepath.Join(dir, first))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	dt, shape, err := readNPYHeader(f)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", first, err)
	}
	if len(shape) != 2 {
		return nil, fmt.Errorf("plane %s has %d dimensions, want 2", first, len(shape))
	}
	d.info.SizeY, d.info.SizeX, d.info.Dtype = shape[0], shape[1], dt
	Debugf("Found %d x %d x %d planes of %v %s in %q", d.info.SizeZ, d.info.SizeC, d.info.SizeT, shape, dt, dir)
	return d, nil
}

func (d *NPYDir) Describe(context.Context) (PlaneSetInfo, error) {
	return d.info, nil
}

// PlaneFile is the file name holding plane idx.
func PlaneFile(idx PlaneIndex) string {
	return fmt.Sprintf("%03d-%03d-%03d.npy", idx.Z, idx.C, idx.T)
}

func (d *NPYDir) Plane(_ context.Context, idx PlaneIndex) (*NDArray, error) {
	name, ok := d.files[idx]
	if !ok {
		return nil, fmt.Errorf("%w: no plane file for %s in %q", ErrNotFound, idx, d.dir)
	}
	f, err := os.Open(filepath.Join(d.dir, name))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()
	nd, _, err := ReadNPY(f)
	return nd, err
}
