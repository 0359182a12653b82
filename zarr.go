package zarr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/ioutil"
	"strings"
)

const (
	// Version is the zarr storage specification version this library writes.
	Version = 2
)

// Array is a handle on one zarr array in a Store.
type Array struct {
	path  Path
	store Store
	mode  PersistenceMode
	meta  *ArrayMeta
}

// Open reads the metadata of the array at path. Missing metadata is
// ErrNotFound.
func Open(ctx context.Context, store Store, path string, mode PersistenceMode) (*Array, error) {
	p, err := NewPath(path)
	if err != nil {
		return nil, err
	}
	data, err := ReadKey(ctx, store, p.Join(string(MTArray)).String())
	if err != nil {
		return nil, fmt.Errorf("opening array %q: %w", path, err)
	}
	return decodeArray(p, store, mode, data)
}

// decodeArray builds an array handle from the raw ".zarray" document.
func decodeArray(p Path, store Store, mode PersistenceMode, data []byte) (*Array, error) {
	a := &Array{
		path:  p,
		store: store,
		mode:  mode,
		meta:  &ArrayMeta{},
	}
	if err := json.Unmarshal(data, a.meta); err != nil {
		return nil, fmt.Errorf("reading %s metadata: %w", p, err)
	}
	if err := a.meta.Validate(); err != nil {
		return nil, fmt.Errorf("array %q: %w", p, err)
	}
	return a, nil
}

// Create writes array metadata at path according to mode:
// ModeWrite overwrites, ModeWriteFail fails with ErrPrecondition if an
// array or group exists, ModeReadWriteCreate opens an existing array or
// creates a new one.
func Create(ctx context.Context, store Store, path string, meta *ArrayMeta, mode PersistenceMode) (*Array, error) {
	p, err := NewPath(path)
	if err != nil {
		return nil, err
	}
	if err := meta.Validate(); err != nil {
		return nil, err
	}
	a := &Array{path: p, store: store, mode: mode, meta: meta}

	switch mode {
	case ModeWrite:
	case ModeWriteFail, ModeReadWriteCreate:
		exists, err := containsNode(ctx, store, p)
		if err != nil {
			return nil, err
		}
		if exists && mode == ModeReadWriteCreate {
			return Open(ctx, store, path, mode)
		}
		if exists {
			return nil, fmt.Errorf("%w: %q already exists", ErrPrecondition, path)
		}
	default:
		return nil, fmt.Errorf("cannot create array %q in mode %q", path, mode)
	}

	if meta.ZarrFormat == 0 {
		meta.ZarrFormat = Version
	}
	if meta.Order == "" {
		meta.Order = "C"
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return nil, err
	}
	if err := WriteKey(ctx, store, a.key(string(MTArray)), data); err != nil {
		return nil, fmt.Errorf("creating array %q: %w", path, err)
	}
	return a, nil
}

// containsNode reports whether an array or group is stored at p.
func containsNode(ctx context.Context, store Store, p Path) (bool, error) {
	for _, mt := range []MetaType{MTArray, MTGroup} {
		ok, err := store.Exists(ctx, p.Join(string(mt)).String())
		if err != nil || ok {
			return ok, err
		}
	}
	return false, nil
}

func (a *Array) Info() string {
	return fmt.Sprintf("<zarr.Array %q shape=%v chunks=%v dtype=%s>", a.Path(), a.meta.Shape, a.meta.Chunks, a.meta.Dtype.Dtype)
}

func (a *Array) Path() string {
	return a.path.String()
}

func (a *Array) Meta() *ArrayMeta { return a.meta }

func (a *Array) Store() Store { return a.store }

func (a *Array) Descriptor() ArrayDescriptor { return a.meta.Descriptor() }

func (a *Array) key(name string) string {
	return a.path.Join(name).String()
}

// ChunkKey is the store key of chunk c.
func (a *Array) ChunkKey(c ChunkCoord) string {
	return a.key(c.Key(a.meta.Separator()))
}

func (a *Array) checkDecodable() error {
	if !a.meta.Dtype.IsBasic() || !a.meta.Dtype.Dtype.Numeric() {
		return fmt.Errorf("array %q: dtype %s cannot be decoded", a.Path(), a.meta.Dtype.Human())
	}
	if a.meta.Order != "" && a.meta.Order != "C" {
		return fmt.Errorf("array %q: only C order chunks are supported, got %q", a.Path(), a.meta.Order)
	}
	if len(a.meta.Filters) > 0 {
		return fmt.Errorf("array %q: filters are not supported", a.Path())
	}
	return nil
}

// ReadChunk returns the decompressed bytes of chunk c.
func (a *Array) ReadChunk(ctx context.Context, c ChunkCoord) ([]byte, error) {
	f, err := a.store.Get(ctx, a.ChunkKey(c))
	if err != nil {
		return nil, err
	}
	r, err := a.meta.Compressor.Decompressor(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("decompressing chunk %s: %w", c, err)
	}
	defer r.Close()
	return ioutil.ReadAll(r)
}

// WriteChunk compresses raw and stores it as chunk c.
func (a *Array) WriteChunk(ctx context.Context, c ChunkCoord, raw []byte) error {
	if a.mode == ModeRead {
		return fmt.Errorf("%w: array %q is read-only", ErrWrite, a.Path())
	}
	data, err := a.meta.Compressor.Compress(raw)
	if err != nil {
		return fmt.Errorf("compressing chunk %s: %w", c, err)
	}
	return WriteKey(ctx, a.store, a.ChunkKey(c), data)
}

// ReadAll decodes the whole array into memory. Chunks missing from the
// store read as the fill value.
func (a *Array) ReadAll(ctx context.Context) (*NDArray, error) {
	if err := a.checkDecodable(); err != nil {
		return nil, err
	}
	fill, err := a.meta.Fill()
	if err != nil {
		return nil, err
	}
	desc := a.Descriptor()
	nd := NewNDArray(a.meta.Shape)
	nd.Fill(fill)

	it, err := NewChunkIterator(desc, nil)
	if err != nil {
		return nil, err
	}
	vals := make([]float64, product(desc.Chunks))
	for it.Next() {
		c := it.Coord()
		raw, err := a.ReadChunk(ctx, c)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, &ChunkError{Op: "read", Coord: c, Err: err}
		}
		if err := a.meta.Dtype.Dtype.Decode(raw, vals); err != nil {
			return nil, &ChunkError{Op: "decode", Coord: c, Err: err}
		}
		chunkRuns(desc, c, func(r chunkRun) {
			copy(nd.Data[r.OutOffset:r.OutOffset+r.Len], vals[r.ChunkOffset:r.ChunkOffset+r.Len])
		})
	}
	return nd, nil
}

// WriteAll encodes nd, which must match the array's shape, and stores
// every chunk in enumeration order.
func (a *Array) WriteAll(ctx context.Context, nd *NDArray, cfg TransferConfig) (TransferStats, error) {
	if err := a.checkDecodable(); err != nil {
		return TransferStats{}, err
	}
	if !sameShape(nd.Shape, a.meta.Shape) {
		return TransferStats{}, fmt.Errorf("array %q has shape %v, data has shape %v", a.Path(), a.meta.Shape, nd.Shape)
	}
	cfg.Mode = ModeCopy
	return NewTransfer(NewNDArraySource(nd, a.meta), NewArrayDestination(a), cfg).Run(ctx)
}

type PersistenceMode string

const (
	// Persistence mode:
	// ‘r’ means read only (must exist);
	ModeRead PersistenceMode = "r"
	// ‘a’ means read/write (create if doesn’t exist)
	ModeReadWriteCreate PersistenceMode = "a"
	// ‘w’ means create (overwrite if exists)
	ModeWrite PersistenceMode = "w"
	// ‘w-’ means create (fail if exists).
	ModeWriteFail PersistenceMode = "w-"
)

// CreateGroup writes a ".zgroup" document at path.
func CreateGroup(ctx context.Context, store Store, path string) error {
	p, err := NewPath(path)
	if err != nil {
		return err
	}
	data, err := json.Marshal(Group{ZarrFormat: Version})
	if err != nil {
		return err
	}
	return WriteKey(ctx, store, p.Join(string(MTGroup)).String(), data)
}

// Path is a normalized logical path inside a store.
type Path []string

// NewPath normalizes posix as zarr requires: backward slashes become
// forward slashes, leading, trailing and repeated slashes are dropped.
// ".." segments are rejected.
func NewPath(posix string) (Path, error) {
	s := strings.ReplaceAll(posix, `\`, "/")
	p := Path{}
	for _, seg := range strings.Split(s, "/") {
		switch seg {
		case "", ".":
			continue
		case "..":
			return nil, fmt.Errorf("invalid path %q: parent segments are not allowed", posix)
		}
		p = append(p, seg)
	}
	return p, nil
}

func (p Path) String() string {
	return strings.Join(p, "/")
}

// Join returns a new path with elems appended.
func (p Path) Join(elems ...string) Path {
	out := make(Path, 0, len(p)+len(elems))
	out = append(out, p...)
	return append(out, elems...)
}

// JoinKey joins logical path segments, ignoring empty ones.
func JoinKey(elems ...string) string {
	var parts []string
	for _, e := range elems {
		if e = strings.Trim(e, "/"); e != "" {
			parts = append(parts, e)
		}
	}
	return strings.Join(parts, "/")
}
