package zarr

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// All resampling works plane by plane on the trailing (Y, X) axes; leading
// axes such as T, C and Z are carried through unchanged.

// levelFunc yields successive pyramid levels, reporting false once the
// method cannot produce another one.
type levelFunc func() (*NDArray, bool)

// nearestReduce picks every d-th sample, giving floor(n/d) along Y and X.
func nearestReduce(a *NDArray, d int) (*NDArray, bool) {
	n, h, w := a.planes()
	oh, ow := h/d, w/d
	if oh == 0 || ow == 0 {
		return nil, false
	}
	out := a.withPlaneShape(oh, ow)
	sy, sx := float64(h)/float64(oh), float64(w)/float64(ow)
	for p := 0; p < n; p++ {
		src := a.Data[p*h*w : (p+1)*h*w]
		dst := out.Data[p*oh*ow : (p+1)*oh*ow]
		for y := 0; y < oh; y++ {
			iy := minInt(int(float64(y)*sy), h-1)
			for x := 0; x < ow; x++ {
				ix := minInt(int(float64(x)*sx), w-1)
				dst[y*ow+x] = src[iy*w+ix]
			}
		}
	}
	return out, true
}

// localMean averages d×d blocks, giving ceil(n/d) along Y and X. Blocks
// overhanging the edge are padded with zeros.
func localMean(a *NDArray, d int) *NDArray {
	n, h, w := a.planes()
	oh, ow := ceilDiv(h, d), ceilDiv(w, d)
	out := a.withPlaneShape(oh, ow)
	area := float64(d * d)
	for p := 0; p < n; p++ {
		src := a.Data[p*h*w : (p+1)*h*w]
		dst := out.Data[p*oh*ow : (p+1)*oh*ow]
		for y := 0; y < oh; y++ {
			y1 := minInt((y+1)*d, h)
			for x := 0; x < ow; x++ {
				x0, x1 := x*d, minInt((x+1)*d, w)
				sum := 0.0
				for yy := y * d; yy < y1; yy++ {
					sum += floats.Sum(src[yy*w+x0 : yy*w+x1])
				}
				dst[y*ow+x] = sum / area
			}
		}
	}
	return out
}

// zoom linearly rescales a by factor with corner-aligned sampling, giving
// round(n*factor) along Y and X.
func zoom(a *NDArray, factor float64) (*NDArray, bool) {
	_, h, w := a.planes()
	oh := int(math.RoundToEven(float64(h) * factor))
	ow := int(math.RoundToEven(float64(w) * factor))
	if oh == 0 || ow == 0 {
		return nil, false
	}
	aligned := func(i, in, out int) float64 {
		if out == 1 {
			return 0
		}
		return float64(i) * float64(in-1) / float64(out-1)
	}
	return resample(a, oh, ow, aligned), true
}

// resizeBilinear rescales a to (oh, ow) with pixel-centre sampling.
func resizeBilinear(a *NDArray, oh, ow int) *NDArray {
	centred := func(i, in, out int) float64 {
		return (float64(i)+0.5)*float64(in)/float64(out) - 0.5
	}
	return resample(a, oh, ow, centred)
}

// resample fills an (oh, ow) plane by bilinear interpolation at the source
// coordinates coord maps each output index to.
func resample(a *NDArray, oh, ow int, coord func(i, in, out int) float64) *NDArray {
	n, h, w := a.planes()
	out := a.withPlaneShape(oh, ow)
	for p := 0; p < n; p++ {
		src := a.Data[p*h*w : (p+1)*h*w]
		dst := out.Data[p*oh*ow : (p+1)*oh*ow]
		for y := 0; y < oh; y++ {
			y0, y1, fy := interpIndices(coord(y, h, oh), h)
			for x := 0; x < ow; x++ {
				x0, x1, fx := interpIndices(coord(x, w, ow), w)
				top := src[y0*w+x0]*(1-fx) + src[y0*w+x1]*fx
				bottom := src[y1*w+x0]*(1-fx) + src[y1*w+x1]*fx
				dst[y*ow+x] = top*(1-fy) + bottom*fy
			}
		}
	}
	return out
}

// interpIndices clamps v to [0, n-1] and returns the neighbouring indices
// and the weight of the upper one.
func interpIndices(v float64, n int) (lo, hi int, frac float64) {
	v = math.Max(0, math.Min(v, float64(n-1)))
	lo = int(math.Floor(v))
	hi = minInt(lo+1, n-1)
	return lo, hi, v - float64(lo)
}

// gaussianKernel is a normalized 1-D kernel truncated at 4 sigma.
func gaussianKernel(sigma float64) []float64 {
	radius := int(4*sigma + 0.5)
	k := make([]float64, 2*radius+1)
	for i := range k {
		x := float64(i - radius)
		k[i] = math.Exp(-0.5 * x * x / (sigma * sigma))
	}
	floats.Scale(1/floats.Sum(k), k)
	return k
}

// smooth applies a separable gaussian filter over Y and X with mirrored
// (half-sample symmetric) boundaries.
func smooth(a *NDArray, sigma float64) *NDArray {
	k := gaussianKernel(sigma)
	radius := len(k) / 2
	n, h, w := a.planes()
	tmp := make([]float64, h*w)
	out := a.withPlaneShape(h, w)
	for p := 0; p < n; p++ {
		src := a.Data[p*h*w : (p+1)*h*w]
		dst := out.Data[p*h*w : (p+1)*h*w]
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				sum := 0.0
				for i, kv := range k {
					sum += kv * src[y*w+reflectIndex(x+i-radius, w)]
				}
				tmp[y*w+x] = sum
			}
		}
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				sum := 0.0
				for i, kv := range k {
					sum += kv * tmp[reflectIndex(y+i-radius, h)*w+x]
				}
				dst[y*w+x] = sum
			}
		}
	}
	return out
}

func reflectIndex(i, n int) int {
	if n == 1 {
		return 0
	}
	period := 2 * n
	i %= period
	if i < 0 {
		i += period
	}
	if i >= n {
		i = period - 1 - i
	}
	return i
}

func subtract(a, b *NDArray) *NDArray {
	out := NewNDArray(a.Shape)
	floats.SubTo(out.Data, a.Data, b.Data)
	return out
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// levels returns the level generator for method. Level 0, the base, is not
// produced by the generator.
func levels(method Method, base *NDArray, d int) levelFunc {
	sigma := 2 * float64(d) / 6
	switch method {
	case MethodNearest:
		prev := base
		return func() (*NDArray, bool) {
			next, ok := nearestReduce(prev, d)
			if ok {
				prev = next
			}
			return next, ok
		}
	case MethodLocalMean:
		prev := base
		return func() (*NDArray, bool) {
			prev = localMean(prev, d)
			return prev, true
		}
	case MethodZoom:
		// every level is zoomed from the base, not from the previous level
		k := 0
		return func() (*NDArray, bool) {
			k++
			return zoom(base, math.Pow(float64(d), -float64(k)))
		}
	case MethodGaussian:
		prev := base
		return func() (*NDArray, bool) {
			_, h, w := prev.planes()
			oh, ow := ceilDiv(h, d), ceilDiv(w, d)
			if oh == h && ow == w {
				return nil, false
			}
			prev = resizeBilinear(smooth(prev, sigma), oh, ow)
			return prev, true
		}
	case MethodLaplacian:
		smoothed := smooth(base, sigma)
		return func() (*NDArray, bool) {
			_, h, w := smoothed.planes()
			oh, ow := ceilDiv(h, d), ceilDiv(w, d)
			if oh == h && ow == w {
				return nil, false
			}
			resized := resizeBilinear(smoothed, oh, ow)
			smoothed = smooth(resized, sigma)
			return subtract(resized, smoothed), true
		}
	}
	return func() (*NDArray, bool) { return nil, false }
}
