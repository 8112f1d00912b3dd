package cpu

import (
	"fmt"

	"github.com/born-ml/bifpn/internal/tensor"
)

// depthwiseGeometry validates a [K_h, K_w, C, 1] kernel against an NHWC input.
func depthwiseGeometry(name string, input, kernel *tensor.RawTensor, stride, padding int) convGeometry {
	g := newConvGeometry(name, input, kernel, stride, padding)
	if g.COut != 1 {
		panic(fmt.Sprintf("%s: depth multiplier must be 1, got %d", name, g.COut))
	}
	return g
}

// DepthwiseConv2D convolves each input channel with its own spatial filter.
//
// Input shape:  [N, H, W, C]
// Kernel shape: [K_h, K_w, C, 1]
// Output shape: [N, H_out, W_out, C]
func (cpu *CPUBackend) DepthwiseConv2D(input, kernel *tensor.RawTensor, stride, padding int) *tensor.RawTensor {
	g := depthwiseGeometry("depthwise_conv2d", input, kernel, stride, padding)

	output := tensor.MustNewRaw(tensor.Shape{g.N, g.HOut, g.WOut, g.CIn}, input.DType(), cpu.device)
	switch input.DType() {
	case tensor.Float32:
		depthwiseForward(g, output.AsFloat32(), input.AsFloat32(), kernel.AsFloat32())
	case tensor.Float64:
		depthwiseForward(g, output.AsFloat64(), input.AsFloat64(), kernel.AsFloat64())
	default:
		panic(fmt.Sprintf("depthwise_conv2d: unsupported dtype %s", input.DType()))
	}
	return output
}

// depthwiseVisit calls fn(outIdx, inIdx, kernelIdx) for every in-bounds tap
// of image n. Indices address the first channel; callers loop over C.
func depthwiseVisit(g convGeometry, n int, fn func(out, in, k int)) {
	for oh := 0; oh < g.HOut; oh++ {
		for ow := 0; ow < g.WOut; ow++ {
			out := ((n*g.HOut+oh)*g.WOut + ow) * g.CIn
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
					fn(out, ((n*g.H+ih)*g.W+iw)*g.CIn, (kh*g.KW+kw)*g.CIn)
				}
			}
		}
	}
}

func depthwiseForward[T tensor.DType](g convGeometry, out, in, kernel []T) {
	parallelFor(g.N, func(n int) {
		depthwiseVisit(g, n, func(o, i, k int) {
			for c := 0; c < g.CIn; c++ {
				out[o+c] += in[i+c] * kernel[k+c]
			}
		})
	})
}

// DepthwiseConv2DInputBackward computes ∂L/∂input for DepthwiseConv2D.
func (cpu *CPUBackend) DepthwiseConv2DInputBackward(input, kernel, grad *tensor.RawTensor, stride, padding int) *tensor.RawTensor {
	g := depthwiseGeometry("depthwise_input_backward", input, kernel, stride, padding)
	checkDepthwiseGrad("depthwise_input_backward", g, grad)

	inputGrad := tensor.MustNewRaw(input.Shape(), input.DType(), cpu.device)
	switch input.DType() {
	case tensor.Float32:
		depthwiseInputBackward(g, inputGrad.AsFloat32(), kernel.AsFloat32(), grad.AsFloat32())
	case tensor.Float64:
		depthwiseInputBackward(g, inputGrad.AsFloat64(), kernel.AsFloat64(), grad.AsFloat64())
	default:
		panic(fmt.Sprintf("depthwise_input_backward: unsupported dtype %s", input.DType()))
	}
	return inputGrad
}

func depthwiseInputBackward[T tensor.DType](g convGeometry, inputGrad, kernel, grad []T) {
	parallelFor(g.N, func(n int) {
		depthwiseVisit(g, n, func(o, i, k int) {
			for c := 0; c < g.CIn; c++ {
				inputGrad[i+c] += grad[o+c] * kernel[k+c]
			}
		})
	})
}

// DepthwiseConv2DKernelBackward computes ∂L/∂kernel for DepthwiseConv2D.
// Every image contributes to the same kernel entries, so this runs serially.
func (cpu *CPUBackend) DepthwiseConv2DKernelBackward(input, kernel, grad *tensor.RawTensor, stride, padding int) *tensor.RawTensor {
	g := depthwiseGeometry("depthwise_kernel_backward", input, kernel, stride, padding)
	checkDepthwiseGrad("depthwise_kernel_backward", g, grad)

	kernelGrad := tensor.MustNewRaw(kernel.Shape(), kernel.DType(), cpu.device)
	switch input.DType() {
	case tensor.Float32:
		depthwiseKernelBackward(g, kernelGrad.AsFloat32(), input.AsFloat32(), grad.AsFloat32())
	case tensor.Float64:
		depthwiseKernelBackward(g, kernelGrad.AsFloat64(), input.AsFloat64(), grad.AsFloat64())
	default:
		panic(fmt.Sprintf("depthwise_kernel_backward: unsupported dtype %s", input.DType()))
	}
	return kernelGrad
}

func depthwiseKernelBackward[T tensor.DType](g convGeometry, kernelGrad, in, grad []T) {
	for n := 0; n < g.N; n++ {
		depthwiseVisit(g, n, func(o, i, k int) {
			for c := 0; c < g.CIn; c++ {
				kernelGrad[k+c] += grad[o+c] * in[i+c]
			}
		})
	}
}

func checkDepthwiseGrad(name string, g convGeometry, grad *tensor.RawTensor) {
	want := tensor.Shape{g.N, g.HOut, g.WOut, g.CIn}
	if !grad.Shape().Equal(want) {
		panic(fmt.Sprintf("%s: grad shape %v, expected %v", name, grad.Shape(), want))
	}
}
