package bifpn

import (
	"fmt"

	"github.com/born-ml/bifpn/internal/autodiff"
	"github.com/born-ml/bifpn/internal/nn"
	"github.com/born-ml/bifpn/internal/optim"
	"github.com/born-ml/bifpn/internal/tensor"
)

// Loss returns the sum over levels of the mean squared error between
// out and target. Shapes must match level by level.
func Loss[B tensor.Backend](out, target Pyramid[B]) (*tensor.Tensor[float32, B], error) {
	mse := nn.NewMSELoss[B]()
	var loss *tensor.Tensor[float32, B]
	for l := P3; l <= P7; l++ {
		if out[l] == nil || target[l] == nil {
			return nil, fmt.Errorf("%w: %s is nil", ErrPyramidLevels, l)
		}
		if !out[l].Shape().Equal(target[l].Shape()) {
			return nil, fmt.Errorf("%w: %s output %v, target %v", ErrSpatialMismatch, l, out[l].Shape(), target[l].Shape())
		}
		term := mse.Forward(out[l], target[l])
		if loss == nil {
			loss = term
		} else {
			loss = loss.Add(term)
		}
	}
	return loss, nil
}

// TrainStep runs one forward/backward pass on an autodiff backend and
// applies the optimizer. It returns the loss before the update.
//
// The tape is cleared before and after the step, so TrainStep may be
// called in a loop without growing memory.
func TrainStep[B autodiff.BackwardCapable](model *BiFPN[B], opt optim.Optimizer, input, target Pyramid[B], backend B) (float32, error) {
	tape := backend.GetTape()
	tape.Clear()
	tape.StartRecording()
	defer func() {
		tape.StopRecording()
		tape.Clear()
	}()

	out, err := model.Forward(input)
	if err != nil {
		return 0, err
	}
	loss, err := Loss(out, target)
	if err != nil {
		return 0, err
	}

	grads := autodiff.Backward(loss, backend)
	opt.Step(grads)
	return loss.Item(), nil
}
