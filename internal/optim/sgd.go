package optim

import (
	"fmt"

	"github.com/born-ml/bifpn/internal/nn"
	"github.com/born-ml/bifpn/internal/tensor"
)

// SGD implements Stochastic Gradient Descent optimizer with optional momentum.
//
// Update rule without momentum:
//
//	param = param - lr * gradient
//
// Update rule with momentum:
//
//	velocity = momentum * velocity + gradient
//	param = param - lr * velocity
//
// Example:
//
//	optimizer := optim.NewSGD(model.Parameters(), optim.SGDConfig{
//	    LR:       0.01,
//	    Momentum: 0.9,
//	}, backend)
type SGD[B tensor.Backend] struct {
	params     []*nn.Parameter[B]
	lr         float32
	momentum   float32
	velocities map[*nn.Parameter[B]]*tensor.Tensor[float32, B]
	backend    B
}

// SGDConfig holds configuration for SGD optimizer.
type SGDConfig struct {
	LR       float32 // Learning rate (default: 0.01)
	Momentum float32 // Momentum factor (default: 0.0, range: [0, 1))
}

// NewSGD creates a new SGD optimizer.
func NewSGD[B tensor.Backend](params []*nn.Parameter[B], config SGDConfig, backend B) *SGD[B] {
	if config.LR == 0 {
		config.LR = 0.01
	}

	return &SGD[B]{
		params:     params,
		lr:         config.LR,
		momentum:   config.Momentum,
		velocities: make(map[*nn.Parameter[B]]*tensor.Tensor[float32, B]),
		backend:    backend,
	}
}

// Step performs a single optimization step.
//
// Parameters with no gradient (not in computational graph) are skipped.
func (s *SGD[B]) Step(grads map[*tensor.RawTensor]*tensor.RawTensor) {
	for _, param := range s.params {
		grad := getGradient(param, grads)
		if grad == nil {
			continue
		}

		paramData := param.Tensor().Data()
		if s.momentum == 0 {
			for i, g := range grad {
				paramData[i] -= s.lr * g
			}
			continue
		}

		velocity, exists := s.velocities[param]
		if !exists {
			velocity = tensor.Zeros[float32](param.Tensor().Shape(), s.backend)
			s.velocities[param] = velocity
		}
		v := velocity.Data()
		for i, g := range grad {
			v[i] = s.momentum*v[i] + g
			paramData[i] -= s.lr * v[i]
		}
	}
}

// ZeroGrad clears gradients for all parameters.
func (s *SGD[B]) ZeroGrad() {
	for _, param := range s.params {
		param.ZeroGrad()
	}
}

// GetLR returns the current learning rate.
func (s *SGD[B]) GetLR() float32 {
	return s.lr
}

// SetLR updates the learning rate.
func (s *SGD[B]) SetLR(lr float32) {
	s.lr = lr
}

// StateDict returns the optimizer state for serialization.
//
// State keys: "velocity.{param_index}" -> velocity tensor. Without momentum
// the map is empty.
func (s *SGD[B]) StateDict() map[string]*tensor.RawTensor {
	stateDict := make(map[string]*tensor.RawTensor)
	if s.momentum == 0 {
		return stateDict
	}

	for i, param := range s.params {
		if velocity, exists := s.velocities[param]; exists {
			stateDict[fmt.Sprintf("velocity.%d", i)] = velocity.Raw()
		}
	}
	return stateDict
}

// LoadStateDict loads optimizer state from serialization.
//
// Returns an error if velocity shapes don't match parameter shapes.
func (s *SGD[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	if s.momentum == 0 {
		return nil
	}

	velocities := make(map[*nn.Parameter[B]]*tensor.Tensor[float32, B])
	for i, param := range s.params {
		key := fmt.Sprintf("velocity.%d", i)
		raw, exists := stateDict[key]
		if !exists {
			continue
		}
		velocity, err := loadBuffer(raw, param, key, s.backend)
		if err != nil {
			return err
		}
		velocities[param] = velocity
	}

	s.velocities = velocities
	return nil
}
