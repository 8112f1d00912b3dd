package ops

import "github.com/born-ml/bifpn/internal/tensor"

// RsqrtOp represents output = 1/sqrt(x).
//
// Backward pass:
//   - d(x^-1/2)/dx = -1/2 * x^-3/2 = -1/2 * output³
type RsqrtOp struct {
	input  *tensor.RawTensor
	output *tensor.RawTensor
}

// NewRsqrtOp creates a new RsqrtOp.
func NewRsqrtOp(input, output *tensor.RawTensor) *RsqrtOp {
	return &RsqrtOp{input: input, output: output}
}

// Backward computes the input gradient for rsqrt.
func (op *RsqrtOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	cubed := backend.Mul(op.output, op.output)
	cubed = backend.Mul(cubed, op.output)
	grad := backend.Mul(outputGrad, cubed)
	return []*tensor.RawTensor{backend.MulScalar(grad, -0.5)}
}

// Inputs returns [x].
func (op *RsqrtOp) Inputs() []*tensor.RawTensor {
	return []*tensor.RawTensor{op.input}
}

// Output returns 1/sqrt(x).
func (op *RsqrtOp) Output() *tensor.RawTensor {
	return op.output
}
