package cpu

import (
	"fmt"
	"math"

	"github.com/born-ml/bifpn/internal/tensor"
)

// axisInterp holds, for every output coordinate along one axis, the two
// source coordinates it blends and the weight of the upper one.
type axisInterp struct {
	lo, hi []int
	frac   []float64
}

// newAxisInterp computes half-pixel-center bilinear weights, matching
// TensorFlow 2's tf.image.resize default:
//
//	src = (dst + 0.5) * in/out - 0.5
//
// Coordinates outside the source clamp to the edge.
func newAxisInterp(inSize, outSize int) axisInterp {
	ai := axisInterp{
		lo:   make([]int, outSize),
		hi:   make([]int, outSize),
		frac: make([]float64, outSize),
	}
	scale := float64(inSize) / float64(outSize)
	for o := 0; o < outSize; o++ {
		src := (float64(o)+0.5)*scale - 0.5
		floor := math.Floor(src)
		ai.lo[o] = max(int(floor), 0)
		ai.hi[o] = min(int(math.Ceil(src)), inSize-1)
		ai.frac[o] = src - floor
	}
	return ai
}

// ResizeBilinear resizes the H and W axes of an NHWC tensor.
// Same-size requests return a copy.
func (cpu *CPUBackend) ResizeBilinear(x *tensor.RawTensor, height, width int) *tensor.RawTensor {
	shape := x.Shape()
	if len(shape) != 4 {
		panic(fmt.Sprintf("resize_bilinear: input must be 4D [N,H,W,C], got %dD", len(shape)))
	}
	if height <= 0 || width <= 0 {
		panic(fmt.Sprintf("resize_bilinear: invalid target size %dx%d", height, width))
	}
	if shape[1] == height && shape[2] == width {
		return x.Clone()
	}

	output := tensor.MustNewRaw(tensor.Shape{shape[0], height, width, shape[3]}, x.DType(), cpu.device)
	ys := newAxisInterp(shape[1], height)
	xs := newAxisInterp(shape[2], width)

	switch x.DType() {
	case tensor.Float32:
		resizeForward(output.AsFloat32(), x.AsFloat32(), shape, ys, xs)
	case tensor.Float64:
		resizeForward(output.AsFloat64(), x.AsFloat64(), shape, ys, xs)
	default:
		panic(fmt.Sprintf("resize_bilinear: unsupported dtype %s", x.DType()))
	}
	return output
}

func resizeForward[T tensor.DType](out, in []T, inShape tensor.Shape, ys, xs axisInterp) {
	n, h, w, c := inShape[0], inShape[1], inShape[2], inShape[3]
	outH, outW := len(ys.lo), len(xs.lo)

	parallelFor(n, func(b int) {
		at := func(y, x int) int { return ((b*h+y)*w + x) * c }
		for oy := 0; oy < outH; oy++ {
			fy := T(ys.frac[oy])
			for ox := 0; ox < outW; ox++ {
				fx := T(xs.frac[ox])
				tl, tr := at(ys.lo[oy], xs.lo[ox]), at(ys.lo[oy], xs.hi[ox])
				bl, br := at(ys.hi[oy], xs.lo[ox]), at(ys.hi[oy], xs.hi[ox])
				dst := ((b*outH+oy)*outW + ox) * c
				for ch := 0; ch < c; ch++ {
					top := in[tl+ch] + (in[tr+ch]-in[tl+ch])*fx
					bottom := in[bl+ch] + (in[br+ch]-in[bl+ch])*fx
					out[dst+ch] = top + (bottom-top)*fy
				}
			}
		}
	})
}

// ResizeBilinearBackward scatters an NHWC output gradient back onto the
// source grid of size inHeight×inWidth using the forward interpolation weights.
func (cpu *CPUBackend) ResizeBilinearBackward(grad *tensor.RawTensor, inHeight, inWidth int) *tensor.RawTensor {
	shape := grad.Shape()
	if len(shape) != 4 {
		panic(fmt.Sprintf("resize_bilinear_backward: grad must be 4D [N,H,W,C], got %dD", len(shape)))
	}
	if shape[1] == inHeight && shape[2] == inWidth {
		return grad.Clone()
	}

	inShape := tensor.Shape{shape[0], inHeight, inWidth, shape[3]}
	inputGrad := tensor.MustNewRaw(inShape, grad.DType(), cpu.device)
	ys := newAxisInterp(inHeight, shape[1])
	xs := newAxisInterp(inWidth, shape[2])

	switch grad.DType() {
	case tensor.Float32:
		resizeBackward(inputGrad.AsFloat32(), grad.AsFloat32(), inShape, ys, xs)
	case tensor.Float64:
		resizeBackward(inputGrad.AsFloat64(), grad.AsFloat64(), inShape, ys, xs)
	default:
		panic(fmt.Sprintf("resize_bilinear_backward: unsupported dtype %s", grad.DType()))
	}
	return inputGrad
}

func resizeBackward[T tensor.DType](inGrad, grad []T, inShape tensor.Shape, ys, xs axisInterp) {
	n, h, w, c := inShape[0], inShape[1], inShape[2], inShape[3]
	outH, outW := len(ys.lo), len(xs.lo)

	parallelFor(n, func(b int) {
		at := func(y, x int) int { return ((b*h+y)*w + x) * c }
		for oy := 0; oy < outH; oy++ {
			fy := T(ys.frac[oy])
			for ox := 0; ox < outW; ox++ {
				fx := T(xs.frac[ox])
				tl, tr := at(ys.lo[oy], xs.lo[ox]), at(ys.lo[oy], xs.hi[ox])
				bl, br := at(ys.hi[oy], xs.lo[ox]), at(ys.hi[oy], xs.hi[ox])
				src := ((b*outH+oy)*outW + ox) * c
				for ch := 0; ch < c; ch++ {
					g := grad[src+ch]
					inGrad[tl+ch] += g * (1 - fy) * (1 - fx)
					inGrad[tr+ch] += g * (1 - fy) * fx
					inGrad[bl+ch] += g * fy * (1 - fx)
					inGrad[br+ch] += g * fy * fx
				}
			}
		}
	})
}
