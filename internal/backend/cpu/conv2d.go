package cpu

import (
	"fmt"

	"github.com/born-ml/bifpn/internal/tensor"
)

// convGeometry holds the dimensions shared by Conv2D and its backward kernels.
type convGeometry struct {
	N, H, W, CIn    int
	KH, KW, COut    int
	HOut, WOut      int
	stride, padding int
}

// rows is the number of output positions (im2col rows).
func (g convGeometry) rows() int { return g.N * g.HOut * g.WOut }

// patch is the length of one im2col row.
func (g convGeometry) patch() int { return g.KH * g.KW * g.CIn }

// pointwise reports whether the convolution is a 1×1, stride 1, unpadded
// projection, in which case the NHWC input already is the im2col matrix.
func (g convGeometry) pointwise() bool {
	return g.KH == 1 && g.KW == 1 && g.stride == 1 && g.padding == 0
}

// newConvGeometry validates shapes for an NHWC input and a kernel whose
// first two dimensions are spatial and third is the input channel count.
func newConvGeometry(name string, input, kernel *tensor.RawTensor, stride, padding int) convGeometry {
	inputShape := input.Shape()
	kernelShape := kernel.Shape()

	if len(inputShape) != 4 {
		panic(fmt.Sprintf("%s: input must be 4D [N,H,W,C], got %dD", name, len(inputShape)))
	}
	if len(kernelShape) != 4 {
		panic(fmt.Sprintf("%s: kernel must be 4D, got %dD", name, len(kernelShape)))
	}
	if input.DType() != kernel.DType() {
		panic(fmt.Sprintf("%s: dtype mismatch %s vs %s", name, input.DType(), kernel.DType()))
	}
	if stride <= 0 || padding < 0 {
		panic(fmt.Sprintf("%s: invalid stride %d or padding %d", name, stride, padding))
	}

	g := convGeometry{
		N: inputShape[0], H: inputShape[1], W: inputShape[2], CIn: inputShape[3],
		KH: kernelShape[0], KW: kernelShape[1], COut: kernelShape[3],
		stride: stride, padding: padding,
	}
	if kernelShape[2] != g.CIn {
		panic(fmt.Sprintf("%s: input channels %d != kernel channels %d", name, g.CIn, kernelShape[2]))
	}

	g.HOut = (g.H+2*padding-g.KH)/stride + 1
	g.WOut = (g.W+2*padding-g.KW)/stride + 1
	if g.HOut <= 0 || g.WOut <= 0 {
		panic(fmt.Sprintf("%s: invalid output dimensions: out_h=%d, out_w=%d (check stride/padding)", name, g.HOut, g.WOut))
	}
	return g
}

// Conv2D performs 2D convolution of an NHWC input with an HWIO kernel.
//
// Input shape:  [N, H, W, C_in]
// Kernel shape: [K_h, K_w, C_in, C_out]
// Output shape: [N, H_out, W_out, C_out]
//
// Algorithm: im2col followed by a single GEMM. With NHWC activations and HWIO
// kernels both operands are already row-major matrices:
//
//	col    [N*H_out*W_out, K_h*K_w*C_in]
//	kernel [K_h*K_w*C_in, C_out]
//	output [N*H_out*W_out, C_out] == [N, H_out, W_out, C_out]
//
// 1×1 stride-1 convolutions skip im2col entirely.
func (cpu *CPUBackend) Conv2D(input, kernel *tensor.RawTensor, stride, padding int) *tensor.RawTensor {
	g := newConvGeometry("conv2d", input, kernel, stride, padding)

	output, err := tensor.NewRaw(tensor.Shape{g.N, g.HOut, g.WOut, g.COut}, input.DType(), cpu.device)
	if err != nil {
		panic(fmt.Sprintf("conv2d: failed to create output tensor: %v", err))
	}

	switch input.DType() {
	case tensor.Float32:
		conv2dForward(g, output.AsFloat32(), input.AsFloat32(), kernel.AsFloat32())
	case tensor.Float64:
		conv2dForward(g, output.AsFloat64(), input.AsFloat64(), kernel.AsFloat64())
	default:
		panic(fmt.Sprintf("conv2d: unsupported dtype %s", input.DType()))
	}

	return output
}

func conv2dForward[T tensor.DType](g convGeometry, out, in, kernel []T) {
	col := in
	if !g.pointwise() {
		col = make([]T, g.rows()*g.patch())
		im2col(g, col, in)
	}
	gemm(false, false, g.rows(), g.COut, g.patch(), col, kernel, out)
}

// im2col unrolls every receptive field into one row of col. Padding
// positions stay zero.
func im2col[T tensor.DType](g convGeometry, col, in []T) {
	patch := g.patch()
	parallelFor(g.N, func(n int) {
		for oh := 0; oh < g.HOut; oh++ {
			for ow := 0; ow < g.WOut; ow++ {
				row := ((n*g.HOut+oh)*g.WOut + ow) * patch
				for kh := 0; kh < g.KH; kh++ {
					ih := oh*g.stride - g.padding + kh
					if ih < 0 || ih >= g.H {
						continue
					}
					for kw := 0; kw < g.KW; kw++ {
						iw := ow*g.stride - g.padding + kw
						if iw < 0 || iw >= g.W {
							continue
						}
						dst := row + (kh*g.KW+kw)*g.CIn
						src := ((n*g.H+ih)*g.W + iw) * g.CIn
						copy(col[dst:dst+g.CIn], in[src:src+g.CIn])
					}
				}
			}
		}
	})
}

// col2im is the adjoint of im2col: it scatters-adds col rows back into an
// NHWC buffer. Each image is handled by one goroutine, so writes never overlap.
func col2im[T tensor.DType](g convGeometry, in, col []T) {
	patch := g.patch()
	parallelFor(g.N, func(n int) {
		for oh := 0; oh < g.HOut; oh++ {
			for ow := 0; ow < g.WOut; ow++ {
				row := ((n*g.HOut+oh)*g.WOut + ow) * patch
				for kh := 0; kh < g.KH; kh++ {
					ih := oh*g.stride - g.padding + kh
					if ih < 0 || ih >= g.H {
						continue
					}
					for kw := 0; kw < g.KW; kw++ {
						iw := ow*g.stride - g.padding + kw
						if iw < 0 || iw >= g.W {
							continue
						}
						src := row + (kh*g.KW+kw)*g.CIn
						dst := ((n*g.H+ih)*g.W + iw) * g.CIn
						for c := 0; c < g.CIn; c++ {
							in[dst+c] += col[src+c]
						}
					}
				}
			}
		}
	})
}
