package ops

import "github.com/born-ml/bifpn/internal/tensor"

// SumOp represents the sum of all elements: output = Σx (scalar).
//
// Backward pass: every input element receives the scalar output gradient.
type SumOp struct {
	input  *tensor.RawTensor
	output *tensor.RawTensor
}

// NewSumOp creates a new SumOp.
func NewSumOp(input, output *tensor.RawTensor) *SumOp {
	return &SumOp{input: input, output: output}
}

// Backward broadcasts the scalar gradient to the input shape.
func (op *SumOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	return []*tensor.RawTensor{expandTo(outputGrad, op.input.Shape(), backend)}
}

// Inputs returns [x].
func (op *SumOp) Inputs() []*tensor.RawTensor {
	return []*tensor.RawTensor{op.input}
}

// Output returns Σx.
func (op *SumOp) Output() *tensor.RawTensor {
	return op.output
}

// SumDimOp represents a sum along one dimension.
//
// Backward pass: the gradient is broadcast back along the reduced dimension.
type SumDimOp struct {
	input   *tensor.RawTensor
	output  *tensor.RawTensor
	dim     int
	keepDim bool
}

// NewSumDimOp creates a new SumDimOp. dim may be negative.
func NewSumDimOp(input, output *tensor.RawTensor, dim int, keepDim bool) *SumDimOp {
	return &SumDimOp{
		input:   input,
		output:  output,
		dim:     input.Shape().NormalizeDim(dim),
		keepDim: keepDim,
	}
}

// Backward computes the input gradient for SumDim.
func (op *SumDimOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	return []*tensor.RawTensor{expandReduced(outputGrad, op.input.Shape(), op.dim, op.keepDim, backend)}
}

// Inputs returns [x].
func (op *SumDimOp) Inputs() []*tensor.RawTensor {
	return []*tensor.RawTensor{op.input}
}

// Output returns the reduced tensor.
func (op *SumDimOp) Output() *tensor.RawTensor {
	return op.output
}

// MeanDimOp represents a mean along one dimension.
//
// Backward pass: like SumDim, scaled by 1/size(dim).
type MeanDimOp struct {
	input   *tensor.RawTensor
	output  *tensor.RawTensor
	dim     int
	keepDim bool
}

// NewMeanDimOp creates a new MeanDimOp. dim may be negative.
func NewMeanDimOp(input, output *tensor.RawTensor, dim int, keepDim bool) *MeanDimOp {
	return &MeanDimOp{
		input:   input,
		output:  output,
		dim:     input.Shape().NormalizeDim(dim),
		keepDim: keepDim,
	}
}

// Backward computes the input gradient for MeanDim.
func (op *MeanDimOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	grad := expandReduced(outputGrad, op.input.Shape(), op.dim, op.keepDim, backend)
	size := op.input.Shape()[op.dim]
	return []*tensor.RawTensor{backend.MulScalar(grad, 1/float64(size))}
}

// Inputs returns [x].
func (op *MeanDimOp) Inputs() []*tensor.RawTensor {
	return []*tensor.RawTensor{op.input}
}

// Output returns the reduced tensor.
func (op *MeanDimOp) Output() *tensor.RawTensor {
	return op.output
}

// expandReduced restores a reduced dimension and broadcasts grad over it.
func expandReduced(grad *tensor.RawTensor, inputShape tensor.Shape, dim int, keepDim bool, backend tensor.Backend) *tensor.RawTensor {
	if !keepDim {
		grad = backend.Reshape(grad, keepDimShape(inputShape, dim))
	}
	return expandTo(grad, inputShape, backend)
}
