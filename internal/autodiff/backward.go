package autodiff

import (
	"fmt"

	"github.com/born-ml/bifpn/internal/tensor"
)

// BackwardCapable is an interface for backends that support backward pass.
// AutodiffBackend implements this interface.
type BackwardCapable interface {
	tensor.Backend
	// GetTape returns the gradient tape for backward computation.
	GetTape() *GradientTape
}

// GetTape returns the gradient tape (implements BackwardCapable interface).
func (b *AutodiffBackend[B]) GetTape() *GradientTape {
	return b.tape
}

// Backward computes gradients of t with respect to every recorded tensor.
//
// The output gradient is seeded with ones, so for a scalar loss the result
// holds dLoss/dx for each tensor x that took part in the recorded graph.
//
// Example:
//
//	backend := autodiff.New(cpu.New())
//	backend.Tape().StartRecording()
//	x := tensor.Ones[float32](tensor.Shape{2}, backend)
//	y := x.Mul(x).Sum() // y = Σx²
//	gradients := autodiff.Backward(y, backend)
//	grad := gradients[x.Raw()] // [2, 2]
func Backward[T tensor.DType, B BackwardCapable](t *tensor.Tensor[T, B], backend B) map[*tensor.RawTensor]*tensor.RawTensor {
	tape := backend.GetTape()

	if tape.NumOps() == 0 {
		panic("backward: no operations recorded (did you forget to call Tape().StartRecording()?)")
	}

	outputGrad, err := tensor.NewRaw(t.Shape(), t.DType(), backend.Device())
	if err != nil {
		panic(fmt.Sprintf("backward: failed to create output gradient: %v", err))
	}

	switch t.DType() {
	case tensor.Float32:
		fill(outputGrad.AsFloat32(), 1)
	case tensor.Float64:
		fill(outputGrad.AsFloat64(), 1)
	default:
		panic(fmt.Sprintf("backward: unsupported dtype %s (only float32/float64 supported)", t.DType()))
	}

	return tape.BackwardFrom(t.Raw(), outputGrad, backend)
}

func fill[T tensor.DType](data []T, v T) {
	for i := range data {
		data[i] = v
	}
}
