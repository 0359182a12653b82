package zarr

import (
	"context"
	"fmt"
)

// ArraySource serves the stored, still-compressed chunks of an array.
type ArraySource struct {
	array *Array
}

var (
	_ Source  = (*ArraySource)(nil)
	_ Exister = (*ArraySource)(nil)
)

func NewArraySource(a *Array) *ArraySource {
	return &ArraySource{array: a}
}

func (s *ArraySource) Describe(context.Context) (ArrayDescriptor, error) {
	return s.array.Descriptor(), nil
}

func (s *ArraySource) Fetch(ctx context.Context, c ChunkCoord) (ChunkPayload, error) {
	return ReadKey(ctx, s.array.store, s.array.ChunkKey(c))
}

func (s *ArraySource) Exists(ctx context.Context, c ChunkCoord) (bool, error) {
	return s.array.store.Exists(ctx, s.array.ChunkKey(c))
}

// ArrayDestination stores payloads verbatim as chunks of an array.
type ArrayDestination struct {
	array *Array
}

var (
	_ Destination = (*ArrayDestination)(nil)
	_ Exister     = (*ArrayDestination)(nil)
	_ Fetcher     = (*ArrayDestination)(nil)
)

func NewArrayDestination(a *Array) *ArrayDestination {
	return &ArrayDestination{array: a}
}

func (d *ArrayDestination) Store(ctx context.Context, c ChunkCoord, p ChunkPayload) error {
	return WriteKey(ctx, d.array.store, d.array.ChunkKey(c), p)
}

func (d *ArrayDestination) Exists(ctx context.Context, c ChunkCoord) (bool, error) {
	return d.array.store.Exists(ctx, d.array.ChunkKey(c))
}

func (d *ArrayDestination) Fetch(ctx context.Context, c ChunkCoord) (ChunkPayload, error) {
	return ReadKey(ctx, d.array.store, d.array.ChunkKey(c))
}

// NDArraySource encodes and compresses chunks of an in-memory array on
// demand, as the chunks of an array described by meta.
type NDArraySource struct {
	nd   *NDArray
	meta *ArrayMeta
}

var _ Source = (*NDArraySource)(nil)

func NewNDArraySource(nd *NDArray, meta *ArrayMeta) *NDArraySource {
	return &NDArraySource{nd: nd, meta: meta}
}

func (s *NDArraySource) Describe(context.Context) (ArrayDescriptor, error) {
	if !sameShape(s.nd.Shape, s.meta.Shape) {
		return ArrayDescriptor{}, fmt.Errorf("data shape %v does not match array shape %v", s.nd.Shape, s.meta.Shape)
	}
	return s.meta.Descriptor(), nil
}

func (s *NDArraySource) Fetch(_ context.Context, c ChunkCoord) (ChunkPayload, error) {
	fill, err := s.meta.Fill()
	if err != nil {
		return nil, err
	}
	desc := s.meta.Descriptor()
	vals := make([]float64, product(desc.Chunks))
	for i := range vals {
		vals[i] = fill
	}
	chunkRuns(desc, c, func(r chunkRun) {
		copy(vals[r.ChunkOffset:r.ChunkOffset+r.Len], s.nd.Data[r.OutOffset:r.OutOffset+r.Len])
	})
	raw := make([]byte, s.meta.ChunkBytes())
	if err := s.meta.Dtype.Dtype.Encode(vals, raw); err != nil {
		return nil, err
	}
	return s.meta.Compressor.Compress(raw)
}
