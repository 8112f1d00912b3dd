package nn

import (
	"fmt"

	"github.com/born-ml/bifpn/internal/tensor"
)

// Default batch normalization hyper-parameters.
const (
	DefaultBNMomentum = 0.99
	DefaultBNEpsilon  = 1e-3
)

// BatchNorm2D normalizes each channel of an NHWC feature map.
//
// In training mode the batch statistics over N, H and W are used and the
// running statistics are updated:
//
//	running = momentum*running + (1-momentum)*batch
//
// In inference mode the running statistics are used instead:
//
//	y = (x - running_mean) / sqrt(running_var + eps) * gamma + beta
type BatchNorm2D[B tensor.Backend] struct {
	channels int
	momentum float64
	eps      float64
	training bool

	gamma *Parameter[B] // [C], init 1
	beta  *Parameter[B] // [C], init 0

	runningMean *tensor.Tensor[float32, B] // [C], init 0
	runningVar  *tensor.Tensor[float32, B] // [C], init 1
}

// NewBatchNorm2D creates a batch normalization layer in inference mode.
func NewBatchNorm2D[B tensor.Backend](channels int, momentum, eps float64, backend B) *BatchNorm2D[B] {
	if channels <= 0 {
		panic(fmt.Sprintf("batchnorm2d: invalid channels %d", channels))
	}
	if momentum < 0 || momentum > 1 || eps <= 0 {
		panic(fmt.Sprintf("batchnorm2d: invalid momentum=%v eps=%v", momentum, eps))
	}
	shape := tensor.Shape{channels}
	return &BatchNorm2D[B]{
		channels:    channels,
		momentum:    momentum,
		eps:         eps,
		gamma:       NewParameter("gamma", Ones(shape, backend)),
		beta:        NewParameter("beta", Zeros(shape, backend)),
		runningMean: Zeros(shape, backend),
		runningVar:  Ones(shape, backend),
	}
}

// SetTraining switches between batch statistics (true) and running
// statistics (false).
func (bn *BatchNorm2D[B]) SetTraining(training bool) {
	bn.training = training
}

// Training reports whether the layer uses batch statistics.
func (bn *BatchNorm2D[B]) Training() bool {
	return bn.training
}

// Forward normalizes input [N, H, W, C].
func (bn *BatchNorm2D[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	shape := input.Shape()
	if len(shape) != 4 || shape[3] != bn.channels {
		panic(fmt.Sprintf("batchnorm2d: expected [N,H,W,%d] input, got %v", bn.channels, shape))
	}

	if !bn.training {
		scale := bn.runningVar.AddScalar(float32(bn.eps)).Rsqrt().Mul(bn.gamma.Tensor())
		return input.Sub(bn.runningMean).Mul(scale).Add(bn.beta.Tensor())
	}

	rows := shape[0] * shape[1] * shape[2]
	flat := input.Reshape(rows, bn.channels)
	mean := flat.MeanDim(0, true) // [1, C]
	centered := flat.Sub(mean)
	variance := centered.Mul(centered).MeanDim(0, true)
	inv := variance.AddScalar(float32(bn.eps)).Rsqrt()

	bn.updateRunning(mean.Data(), variance.Data())

	out := centered.Mul(inv).Mul(bn.gamma.Tensor()).Add(bn.beta.Tensor())
	return out.Reshape(shape...)
}

func (bn *BatchNorm2D[B]) updateRunning(mean, variance []float32) {
	m := float32(bn.momentum)
	rm, rv := bn.runningMean.Data(), bn.runningVar.Data()
	for c := range rm {
		rm[c] = m*rm[c] + (1-m)*mean[c]
		rv[c] = m*rv[c] + (1-m)*variance[c]
	}
}

// Parameters returns gamma and beta. Running statistics are buffers, not
// parameters.
func (bn *BatchNorm2D[B]) Parameters() []*Parameter[B] {
	return []*Parameter[B]{bn.gamma, bn.beta}
}

// RunningMean returns the running mean buffer.
func (bn *BatchNorm2D[B]) RunningMean() *tensor.Tensor[float32, B] {
	return bn.runningMean
}

// RunningVar returns the running variance buffer.
func (bn *BatchNorm2D[B]) RunningVar() *tensor.Tensor[float32, B] {
	return bn.runningVar
}

// StateDict returns parameters and running statistics.
func (bn *BatchNorm2D[B]) StateDict() map[string]*tensor.RawTensor {
	return map[string]*tensor.RawTensor{
		"gamma":        bn.gamma.Tensor().Raw(),
		"beta":         bn.beta.Tensor().Raw(),
		"running_mean": bn.runningMean.Raw(),
		"running_var":  bn.runningVar.Raw(),
	}
}

// LoadStateDict loads parameters and running statistics.
func (bn *BatchNorm2D[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	targets := []struct {
		key string
		dst *tensor.Tensor[float32, B]
	}{
		{"gamma", bn.gamma.Tensor()},
		{"beta", bn.beta.Tensor()},
		{"running_mean", bn.runningMean},
		{"running_var", bn.runningVar},
	}
	for _, t := range targets {
		if err := loadTensor(t.dst, stateDict, t.key); err != nil {
			return err
		}
	}
	return nil
}

// String returns a string representation of the layer.
func (bn *BatchNorm2D[B]) String() string {
	return fmt.Sprintf("BatchNorm2D(channels=%d, momentum=%v, eps=%v)", bn.channels, bn.momentum, bn.eps)
}
