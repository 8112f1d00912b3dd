package nn

import (
	"fmt"

	"github.com/born-ml/bifpn/internal/tensor"
)

// MSELoss computes Mean Squared Error loss.
//
// Loss = mean((predictions - targets)²)
//
// The loss is built from differentiable tensor operations, so on an
// autodiff backend it can be passed straight to autodiff.Backward.
//
// Example:
//
//	mse := nn.NewMSELoss[Backend]()
//	loss := mse.Forward(predictions, targets)
type MSELoss[B tensor.Backend] struct{}

// NewMSELoss creates a new MSE loss function.
func NewMSELoss[B tensor.Backend]() *MSELoss[B] {
	return &MSELoss[B]{}
}

// Forward returns the scalar (shape []) mean squared error.
// Panics if the shapes differ.
func (m *MSELoss[B]) Forward(predictions, targets *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	if !predictions.Shape().Equal(targets.Shape()) {
		panic(fmt.Sprintf("mse_loss: shape mismatch %v vs %v", predictions.Shape(), targets.Shape()))
	}

	diff := predictions.Sub(targets)
	return diff.Mul(diff).Sum().MulScalar(1 / float32(predictions.NumElements()))
}

// Parameters returns an empty slice (loss functions have no trainable parameters).
func (m *MSELoss[B]) Parameters() []*Parameter[B] {
	return nil
}
