package ops

import "github.com/born-ml/bifpn/internal/tensor"

// Conv2DOp represents a 2D convolution over NHWC input with an HWIO kernel.
//
// Forward:
//
//	output[n,oh,ow,co] = Σ input[n,oh*s-p+kh,ow*s-p+kw,ci] * kernel[kh,kw,ci,co]
//
// Backward pass:
//   - grad_input: full correlation of outputGrad with the kernel
//   - grad_kernel: correlation of input patches with outputGrad
//
// Both are delegated to the backend's dedicated kernels.
type Conv2DOp struct {
	inputs  []*tensor.RawTensor // [input, kernel]
	output  *tensor.RawTensor
	stride  int
	padding int
}

// NewConv2DOp creates a new Conv2DOp.
func NewConv2DOp(input, kernel, output *tensor.RawTensor, stride, padding int) *Conv2DOp {
	return &Conv2DOp{
		inputs:  []*tensor.RawTensor{input, kernel},
		output:  output,
		stride:  stride,
		padding: padding,
	}
}

// Backward computes gradients for input and kernel.
func (op *Conv2DOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	input, kernel := op.inputs[0], op.inputs[1]
	return []*tensor.RawTensor{
		backend.Conv2DInputBackward(input, kernel, outputGrad, op.stride, op.padding),
		backend.Conv2DKernelBackward(input, kernel, outputGrad, op.stride, op.padding),
	}
}

// Inputs returns [input, kernel].
func (op *Conv2DOp) Inputs() []*tensor.RawTensor {
	return op.inputs
}

// Output returns the convolution result.
func (op *Conv2DOp) Output() *tensor.RawTensor {
	return op.output
}

// DepthwiseConv2DOp represents a per-channel convolution with a
// [KH, KW, C, 1] kernel.
type DepthwiseConv2DOp struct {
	inputs  []*tensor.RawTensor // [input, kernel]
	output  *tensor.RawTensor
	stride  int
	padding int
}

// NewDepthwiseConv2DOp creates a new DepthwiseConv2DOp.
func NewDepthwiseConv2DOp(input, kernel, output *tensor.RawTensor, stride, padding int) *DepthwiseConv2DOp {
	return &DepthwiseConv2DOp{
		inputs:  []*tensor.RawTensor{input, kernel},
		output:  output,
		stride:  stride,
		padding: padding,
	}
}

// Backward computes gradients for input and kernel.
func (op *DepthwiseConv2DOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	input, kernel := op.inputs[0], op.inputs[1]
	return []*tensor.RawTensor{
		backend.DepthwiseConv2DInputBackward(input, kernel, outputGrad, op.stride, op.padding),
		backend.DepthwiseConv2DKernelBackward(input, kernel, outputGrad, op.stride, op.padding),
	}
}

// Inputs returns [input, kernel].
func (op *DepthwiseConv2DOp) Inputs() []*tensor.RawTensor {
	return op.inputs
}

// Output returns the convolution result.
func (op *DepthwiseConv2DOp) Output() *tensor.RawTensor {
	return op.output
}
