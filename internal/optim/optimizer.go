// Package optim implements optimization algorithms for training the pyramid
// network's parameters.
//
// This package provides:
//   - Optimizer interface: Base interface for all optimizers
//   - SGD: Stochastic Gradient Descent with momentum
//   - Adam: Adaptive Moment Estimation
//
// Design inspired by PyTorch's torch.optim but adapted for Go with type safety.
//
// Example usage:
//
//	optimizer := optim.NewAdam(model.Parameters(), optim.AdamConfig{LR: 0.001}, backend)
//
//	for step := range steps {
//	    backend.Tape().Clear()
//	    outputs, _ := model.Forward(inputs)
//	    loss := lossFunc.Forward(outputs[0], targets)
//	    grads := autodiff.Backward(loss, backend)
//
//	    optimizer.Step(grads)
//	    optimizer.ZeroGrad()
//	}
//
// Updates are applied directly to parameter storage and are never recorded
// on an autodiff tape.
package optim

import (
	"fmt"
	"strings"

	"github.com/born-ml/bifpn/internal/nn"
	"github.com/born-ml/bifpn/internal/tensor"
)

// Optimizer is the base interface for all optimization algorithms.
type Optimizer interface {
	// Step applies gradient updates to all parameters.
	//
	// Takes a gradient map from Backward() and updates parameters in-place.
	// Parameters missing from the map are left untouched.
	Step(grads map[*tensor.RawTensor]*tensor.RawTensor)

	// ZeroGrad clears all parameter gradients.
	ZeroGrad()

	// GetLR returns the current learning rate.
	GetLR() float32

	// SetLR updates the learning rate.
	SetLR(lr float32)

	// StateDict returns the optimizer state for serialization.
	StateDict() map[string]*tensor.RawTensor

	// LoadStateDict restores state produced by StateDict.
	LoadStateDict(stateDict map[string]*tensor.RawTensor) error
}

// Optimizer names accepted by New.
const (
	NameSGD  = "sgd"
	NameAdam = "adam"
)

// New creates an optimizer by name with the given learning rate and
// otherwise default hyper-parameters.
func New[B tensor.Backend](name string, params []*nn.Parameter[B], lr float32, backend B) (Optimizer, error) {
	switch strings.ToLower(name) {
	case NameSGD:
		return NewSGD(params, SGDConfig{LR: lr, Momentum: 0.9}, backend), nil
	case NameAdam:
		return NewAdam(params, AdamConfig{LR: lr}, backend), nil
	default:
		return nil, fmt.Errorf("unknown optimizer %q (want %s or %s)", name, NameSGD, NameAdam)
	}
}

// getGradient safely retrieves gradient for a parameter.
//
// Returns nil if no gradient is found (parameter wasn't part of computation graph).
func getGradient[B tensor.Backend](param *nn.Parameter[B], grads map[*tensor.RawTensor]*tensor.RawTensor) []float32 {
	if param == nil {
		return nil
	}
	raw, ok := grads[param.Tensor().Raw()]
	if !ok {
		return nil
	}
	return raw.AsFloat32()
}

// loadBuffer validates a saved buffer against param and returns a private copy.
func loadBuffer[B tensor.Backend](raw *tensor.RawTensor, param *nn.Parameter[B], key string, backend B) (*tensor.Tensor[float32, B], error) {
	if !raw.Shape().Equal(param.Tensor().Shape()) {
		return nil, fmt.Errorf("%s shape mismatch: expected %v, got %v", key, param.Tensor().Shape(), raw.Shape())
	}
	if raw.DType() != tensor.Float32 {
		return nil, fmt.Errorf("%s dtype mismatch: expected float32, got %v", key, raw.DType())
	}
	return tensor.New[float32, B](raw.Clone(), backend), nil
}
