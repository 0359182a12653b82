package zarr

import "fmt"

// NDArray is a dense, C-ordered array held in memory as float64 values.
type NDArray struct {
	Shape []int
	Data  []float64
}

func NewNDArray(shape []int) *NDArray {
	return &NDArray{
		Shape: append([]int(nil), shape...),
		Data:  make([]float64, product(shape)),
	}
}

// NDArrayFrom wraps data, which must hold exactly product(shape) values.
func NDArrayFrom(shape []int, data []float64) (*NDArray, error) {
	if n := product(shape); n != len(data) {
		return nil, fmt.Errorf("shape %v needs %d values, got %d", shape, n, len(data))
	}
	return &NDArray{Shape: append([]int(nil), shape...), Data: data}, nil
}

func (a *NDArray) Len() int { return len(a.Data) }

func (a *NDArray) Fill(v float64) {
	for i := range a.Data {
		a.Data[i] = v
	}
}

func (a *NDArray) offset(idx []int) int {
	off := 0
	for i, s := range cStrides(a.Shape) {
		off += idx[i] * s
	}
	return off
}

func (a *NDArray) At(idx ...int) float64 {
	return a.Data[a.offset(idx)]
}

func (a *NDArray) Set(v float64, idx ...int) {
	a.Data[a.offset(idx)] = v
}

// Unique is the set of distinct values in the array.
func (a *NDArray) Unique() map[float64]struct{} {
	u := map[float64]struct{}{}
	for _, v := range a.Data {
		u[v] = struct{}{}
	}
	return u
}

// planes splits the array into its trailing 2-D (Y, X) planes.
func (a *NDArray) planes() (n, h, w int) {
	nd := len(a.Shape)
	h, w = a.Shape[nd-2], a.Shape[nd-1]
	return product(a.Shape[:nd-2]), h, w
}

// withPlaneShape returns a zeroed array with a's leading dimensions and a
// new (h, w) plane shape.
func (a *NDArray) withPlaneShape(h, w int) *NDArray {
	shape := append([]int(nil), a.Shape...)
	shape[len(shape)-2], shape[len(shape)-1] = h, w
	return NewNDArray(shape)
}

func sameShape(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
