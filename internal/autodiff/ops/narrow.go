package ops

import (
	"fmt"

	"github.com/born-ml/bifpn/internal/tensor"
)

// NarrowOp represents taking the slice [start, start+length) along dim.
//
// Backward pass: the gradient is scattered into a zero tensor of the input
// shape at the same position.
type NarrowOp struct {
	input  *tensor.RawTensor
	output *tensor.RawTensor
	dim    int
	start  int
}

// NewNarrowOp creates a new NarrowOp. dim may be negative.
func NewNarrowOp(input, output *tensor.RawTensor, dim, start int) *NarrowOp {
	return &NarrowOp{
		input:  input,
		output: output,
		dim:    input.Shape().NormalizeDim(dim),
		start:  start,
	}
}

// Backward computes the input gradient for Narrow.
func (op *NarrowOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	shape := op.input.Shape()
	grad, err := tensor.NewRaw(shape, outputGrad.DType(), backend.Device())
	if err != nil {
		panic(fmt.Sprintf("narrow: failed to create gradient: %v", err))
	}

	inner := outputGrad.DType().Size()
	for _, d := range shape[op.dim+1:] {
		inner *= d
	}
	outer := 1
	for _, d := range shape[:op.dim] {
		outer *= d
	}
	length := outputGrad.Shape()[op.dim]

	src, dst := outputGrad.Data(), grad.Data()
	block := length * inner
	for o := 0; o < outer; o++ {
		dstOff := (o*shape[op.dim] + op.start) * inner
		copy(dst[dstOff:dstOff+block], src[o*block:(o+1)*block])
	}
	return []*tensor.RawTensor{grad}
}

// Inputs returns [x].
func (op *NarrowOp) Inputs() []*tensor.RawTensor {
	return []*tensor.RawTensor{op.input}
}

// Output returns the narrowed tensor.
func (op *NarrowOp) Output() *tensor.RawTensor {
	return op.output
}
