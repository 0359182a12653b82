package zarr

import (
	"fmt"
	"strconv"
	"strings"
)

// ArrayDescriptor is the part of an array's metadata needed to walk its
// chunk grid.
type ArrayDescriptor struct {
	Shape  []int
	Chunks []int
}

// Validate checks that shape and chunks describe a walkable grid.
func (d ArrayDescriptor) Validate() error {
	if len(d.Shape) == 0 {
		return fmt.Errorf("array descriptor needs at least one dimension")
	}
	if len(d.Shape) != len(d.Chunks) {
		return fmt.Errorf("shape has %d dimensions but chunks has %d", len(d.Shape), len(d.Chunks))
	}
	for i := range d.Shape {
		if d.Shape[i] < 0 {
			return fmt.Errorf("dimension %d: negative extent %d", i, d.Shape[i])
		}
		if d.Chunks[i] <= 0 {
			return fmt.Errorf("dimension %d: chunk size must be positive, got %d", i, d.Chunks[i])
		}
	}
	return nil
}

// GridShape is the number of chunks along each dimension.
func (d ArrayDescriptor) GridShape() []int {
	g := make([]int, len(d.Shape))
	for i := range d.Shape {
		g[i] = ceilDiv(d.Shape[i], d.Chunks[i])
	}
	return g
}

// NumChunks is the total number of chunks in the grid.
func (d ArrayDescriptor) NumChunks() int {
	n := 1
	for _, g := range d.GridShape() {
		n *= g
	}
	return n
}

// ChunkExtent is the number of array elements the chunk at c actually
// covers along each dimension. Chunks on the far edge may be partial but
// are never empty.
func (d ArrayDescriptor) ChunkExtent(c ChunkCoord) []int {
	ext := make([]int, len(c))
	for i, ix := range c {
		ext[i] = d.Chunks[i]
		if rem := d.Shape[i] - ix*d.Chunks[i]; rem < ext[i] {
			ext[i] = rem
		}
	}
	return ext
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}

// ChunkCoord is a chunk's position in the chunk grid, one index per
// dimension.
type ChunkCoord []int

// Key renders the coordinate as a chunk key, eg. "1.4" or "1/4".
func (c ChunkCoord) Key(separator string) string {
	if separator == "" {
		separator = "."
	}
	if len(c) == 1 {
		return strconv.Itoa(c[0])
	}
	var sb strings.Builder
	for i, ix := range c {
		if i > 0 {
			sb.WriteString(separator)
		}
		sb.WriteString(strconv.Itoa(ix))
	}
	return sb.String()
}

func (c ChunkCoord) String() string {
	return "(" + c.Key(",") + ")"
}

// ChunkIterator lazily enumerates every chunk coordinate of an array.
// Usage follows bufio.Scanner:
//
//	it, err := NewChunkIterator(desc, nil)
//	for it.Next() {
//		c := it.Coord()
//	}
type ChunkIterator struct {
	grid  []int
	order []int
	cur   ChunkCoord
	done  bool
	begun bool
}

// NewChunkIterator returns an iterator over desc's chunk grid. order lists
// dimension indices from outermost (slowest) to innermost (fastest); nil
// means dimension 0 outermost, the row-major odometer.
func NewChunkIterator(desc ArrayDescriptor, order []int) (*ChunkIterator, error) {
	if err := desc.Validate(); err != nil {
		return nil, err
	}
	ord, err := normalizeOrder(order, len(desc.Shape))
	if err != nil {
		return nil, err
	}
	it := &ChunkIterator{
		grid:  desc.GridShape(),
		order: ord,
		cur:   make(ChunkCoord, len(desc.Shape)),
	}
	for _, g := range it.grid {
		if g == 0 {
			it.done = true
		}
	}
	return it, nil
}

func normalizeOrder(order []int, n int) ([]int, error) {
	if len(order) == 0 {
		ord := make([]int, n)
		for i := range ord {
			ord[i] = i
		}
		return ord, nil
	}
	if len(order) != n {
		return nil, fmt.Errorf("iteration order %v must name all %d dimensions", order, n)
	}
	seen := make([]bool, n)
	for _, d := range order {
		if d < 0 || d >= n || seen[d] {
			return nil, fmt.Errorf("iteration order %v is not a permutation of 0..%d", order, n-1)
		}
		seen[d] = true
	}
	return append([]int(nil), order...), nil
}

// Next advances to the next coordinate, returning false once the grid is
// exhausted.
func (it *ChunkIterator) Next() bool {
	if it.done {
		return false
	}
	if !it.begun {
		it.begun = true
		return true
	}
	for k := len(it.order) - 1; k >= 0; k-- {
		d := it.order[k]
		it.cur[d]++
		if it.cur[d] < it.grid[d] {
			return true
		}
		it.cur[d] = 0
	}
	it.done = true
	return false
}

// Coord returns a copy of the current coordinate.
func (it *ChunkIterator) Coord() ChunkCoord {
	return append(ChunkCoord(nil), it.cur...)
}

// AllChunks collects every coordinate of desc in iteration order.
func AllChunks(desc ArrayDescriptor, order []int) ([]ChunkCoord, error) {
	it, err := NewChunkIterator(desc, order)
	if err != nil {
		return nil, err
	}
	var cs []ChunkCoord
	for it.Next() {
		cs = append(cs, it.Coord())
	}
	return cs, nil
}

// A mapping of items from chunk to output array, expressed as contiguous
// runs along the last dimension. Can be used to extract items from a chunk
// buffer for loading into an output array, or the reverse when filling a
// chunk from an array.
type chunkRun struct {
	// Offset of the run in the output array.
	OutOffset int
	// Offset of the run in the chunk buffer.
	ChunkOffset int
	// Number of contiguous elements.
	Len int
}

// chunkRuns projects chunk c of desc onto a C-ordered array of shape
// desc.Shape. Chunk buffers always hold a full chunk, so runs of partial
// edge chunks skip the overhang.
func chunkRuns(desc ArrayDescriptor, c ChunkCoord, fn func(r chunkRun)) {
	n := len(desc.Shape)
	ext := desc.ChunkExtent(c)
	arrStrides := cStrides(desc.Shape)
	chunkStrides := cStrides(desc.Chunks)

	origin := 0
	for i := range c {
		origin += c[i] * desc.Chunks[i] * arrStrides[i]
	}

	// odometer over every dimension but the last
	idx := make([]int, n-1)
	for {
		out, in := origin, 0
		for i, v := range idx {
			out += v * arrStrides[i]
			in += v * chunkStrides[i]
		}
		fn(chunkRun{OutOffset: out, ChunkOffset: in, Len: ext[n-1]})

		k := n - 2
		for ; k >= 0; k-- {
			idx[k]++
			if idx[k] < ext[k] {
				break
			}
			idx[k] = 0
		}
		if k < 0 {
			return
		}
	}
}

func cStrides(shape []int) []int {
	s := make([]int, len(shape))
	acc := 1
	for i := len(shape) - 1; i >= 0; i-- {
		s[i] = acc
		acc *= shape[i]
	}
	return s
}

func product(xs []int) int {
	p := 1
	for _, x := range xs {
		p *= x
	}
	return p
}
