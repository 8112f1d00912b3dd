package ops

import "github.com/born-ml/bifpn/internal/tensor"

// ResizeBilinearOp represents a bilinear resize of the H and W axes.
//
// The resize is linear in its input, so the gradient is the transpose of the
// interpolation: each output gradient is scattered back onto the four source
// pixels with the weights used in the forward pass.
type ResizeBilinearOp struct {
	input  *tensor.RawTensor
	output *tensor.RawTensor
}

// NewResizeBilinearOp creates a new ResizeBilinearOp.
func NewResizeBilinearOp(input, output *tensor.RawTensor) *ResizeBilinearOp {
	return &ResizeBilinearOp{input: input, output: output}
}

// Backward computes the input gradient.
func (op *ResizeBilinearOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	shape := op.input.Shape()
	return []*tensor.RawTensor{backend.ResizeBilinearBackward(outputGrad, shape[1], shape[2])}
}

// Inputs returns [x].
func (op *ResizeBilinearOp) Inputs() []*tensor.RawTensor {
	return []*tensor.RawTensor{op.input}
}

// Output returns the resized tensor.
func (op *ResizeBilinearOp) Output() *tensor.RawTensor {
	return op.output
}
