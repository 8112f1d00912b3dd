package ops

import (
	"fmt"

	"github.com/born-ml/bifpn/internal/tensor"
)

// ReLUOp represents a ReLU (Rectified Linear Unit) activation: output = max(0, x).
//
// Backward pass:
//   - d(ReLU(x))/dx = 1 if x > 0, else 0
type ReLUOp struct {
	input  *tensor.RawTensor // x
	output *tensor.RawTensor // max(0, x)
}

// NewReLUOp creates a new ReLUOp.
func NewReLUOp(input, output *tensor.RawTensor) *ReLUOp {
	return &ReLUOp{
		input:  input,
		output: output,
	}
}

// Backward computes input gradient for ReLU.
func (op *ReLUOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	mask := reluMask(op.input, backend)
	return []*tensor.RawTensor{backend.Mul(outputGrad, mask)}
}

// Inputs returns the input tensor [x].
func (op *ReLUOp) Inputs() []*tensor.RawTensor {
	return []*tensor.RawTensor{op.input}
}

// Output returns the output tensor max(0, x).
func (op *ReLUOp) Output() *tensor.RawTensor {
	return op.output
}

// reluMask creates a binary mask where input > 0.
func reluMask(input *tensor.RawTensor, backend tensor.Backend) *tensor.RawTensor {
	mask, err := tensor.NewRaw(input.Shape(), input.DType(), backend.Device())
	if err != nil {
		panic(fmt.Sprintf("relu: failed to create mask: %v", err))
	}

	switch input.DType() {
	case tensor.Float32:
		fillMask(mask.AsFloat32(), input.AsFloat32())
	case tensor.Float64:
		fillMask(mask.AsFloat64(), input.AsFloat64())
	default:
		panic(fmt.Sprintf("relu: unsupported dtype %s", input.DType()))
	}
	return mask
}

func fillMask[T tensor.DType](mask, input []T) {
	for i, v := range input {
		if v > 0 {
			mask[i] = 1
		}
	}
}
