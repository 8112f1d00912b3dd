package bifpn

import (
	"errors"
	"fmt"
	"math/rand"

	"github.com/born-ml/bifpn/internal/nn"
	"github.com/born-ml/bifpn/internal/tensor"
)

// FastFusionConfig configures a FastFusion unit.
// Zero values for Epsilon, BNMomentum and BNEpsilon select the defaults.
type FastFusionConfig struct {
	// Inputs is the number of fused maps: 2 or 3.
	Inputs int

	// Features is the channel width of the output and of every input
	// except the resized one.
	Features int

	// ResizeChannels is the channel count of the resized input.
	// Zero means Features.
	ResizeChannels int

	// ResizeIndex names the input that is resized to the first input's
	// resolution. Zero selects the last input. Input 0 cannot be resized
	// since it defines the target resolution.
	ResizeIndex int

	// Separable selects a separable projection inside the Resize.
	Separable bool

	Epsilon    float64
	WeightStd  float64
	BNMomentum float64
	BNEpsilon  float64
}

// withDefaults fills unset fields.
func (c FastFusionConfig) withDefaults() FastFusionConfig {
	if c.ResizeChannels == 0 {
		c.ResizeChannels = c.Features
	}
	if c.ResizeIndex == 0 {
		c.ResizeIndex = c.Inputs - 1
	}
	if c.Epsilon == 0 {
		c.Epsilon = DefaultEpsilon
	}
	if c.WeightStd == 0 {
		c.WeightStd = DefaultWeightStd
	}
	if c.BNMomentum == 0 {
		c.BNMomentum = nn.DefaultBNMomentum
	}
	if c.BNEpsilon == 0 {
		c.BNEpsilon = nn.DefaultBNEpsilon
	}
	return c
}

// FastFusion merges 2 or 3 feature maps with learned non-negative weights:
//
//	w   = relu(weights)
//	out = relu(BN(SeparableConv1x1(Σ w[i]*x[i] / (Σ w + ε))))
//
// One input (ResizeIndex) is first brought to the resolution of input 0.
type FastFusion[B tensor.Backend] struct {
	inputs      int
	features    int
	resizeIndex int
	epsilon     float64

	weights *nn.Parameter[B] // [inputs]
	resize  *Resize[B]
	conv    *nn.SeparableConv2D[B]
	bn      *nn.BatchNorm2D[B]
}

// NewFastFusion creates a fusion unit.
func NewFastFusion[B tensor.Backend](cfg FastFusionConfig, rng *rand.Rand, backend B) (*FastFusion[B], error) {
	if cfg.Inputs < 2 || cfg.Inputs > 3 {
		return nil, fmt.Errorf("%w: fusion needs 2 or 3 inputs, got %d", ErrConfig, cfg.Inputs)
	}
	if cfg.Features <= 0 {
		return nil, fmt.Errorf("%w: features must be positive, got %d", ErrConfig, cfg.Features)
	}
	if cfg.ResizeChannels < 0 || cfg.Epsilon < 0 || cfg.WeightStd < 0 {
		return nil, fmt.Errorf("%w: negative fusion setting", ErrConfig)
	}
	cfg = cfg.withDefaults()
	if cfg.ResizeIndex < 1 || cfg.ResizeIndex >= cfg.Inputs {
		return nil, fmt.Errorf("%w: resize index %d out of range [1, %d)", ErrConfig, cfg.ResizeIndex, cfg.Inputs)
	}
	if cfg.BNMomentum < 0 || cfg.BNMomentum > 1 || cfg.BNEpsilon < 0 {
		return nil, fmt.Errorf("%w: batch norm momentum=%g eps=%g", ErrConfig, cfg.BNMomentum, cfg.BNEpsilon)
	}

	resize, err := NewResize(cfg.ResizeChannels, cfg.Features, cfg.Separable, rng, backend)
	if err != nil {
		return nil, err
	}

	return &FastFusion[B]{
		inputs:      cfg.Inputs,
		features:    cfg.Features,
		resizeIndex: cfg.ResizeIndex,
		epsilon:     cfg.Epsilon,
		weights:     nn.NewParameter("weights", nn.Normal(tensor.Shape{cfg.Inputs}, 0, cfg.WeightStd, rng, backend)),
		resize:      resize,
		conv:        nn.NewSeparableConv2D(cfg.Features, cfg.Features, 1, 1, 0, true, rng, backend),
		bn:          nn.NewBatchNorm2D(cfg.Features, cfg.BNMomentum, cfg.BNEpsilon, backend),
	}, nil
}

// Forward fuses inputs. The output has Features channels and the
// resolution of inputs[0].
func (f *FastFusion[B]) Forward(inputs ...*tensor.Tensor[float32, B]) (*tensor.Tensor[float32, B], error) {
	if len(inputs) != f.inputs {
		return nil, fmt.Errorf("%w: expected %d, got %d", ErrInputCount, f.inputs, len(inputs))
	}
	for i, x := range inputs {
		if x == nil {
			return nil, fmt.Errorf("%w: input %d is nil", ErrInputCount, i)
		}
		if len(x.Shape()) != 4 {
			return nil, fmt.Errorf("input %d: %w, got %v", i, ErrRank, x.Shape())
		}
	}

	ref := inputs[0].Shape()
	for i, x := range inputs {
		shape := x.Shape()
		if shape[0] != ref[0] {
			return nil, fmt.Errorf("%w: input %d batch %d, input 0 batch %d", ErrSpatialMismatch, i, shape[0], ref[0])
		}
		if i == f.resizeIndex {
			continue
		}
		if shape[3] != f.features {
			return nil, fmt.Errorf("%w: input %d has %d channels, expected %d", ErrChannels, i, shape[3], f.features)
		}
		if shape[1] != ref[1] || shape[2] != ref[2] {
			return nil, fmt.Errorf("%w: input %d is %dx%d, input 0 is %dx%d",
				ErrSpatialMismatch, i, shape[1], shape[2], ref[1], ref[2])
		}
	}

	aligned := make([]*tensor.Tensor[float32, B], len(inputs))
	copy(aligned, inputs)
	resized, err := f.resize.Forward(inputs[f.resizeIndex], ref[1], ref[2])
	if err != nil {
		return nil, fmt.Errorf("input %d: %w", f.resizeIndex, err)
	}
	aligned[f.resizeIndex] = resized

	w := f.weights.Tensor().ReLU()
	denom := w.Sum().AddScalar(float32(f.epsilon))

	var fused *tensor.Tensor[float32, B]
	for i, x := range aligned {
		term := x.Mul(w.Narrow(0, i, 1))
		if fused == nil {
			fused = term
		} else {
			fused = fused.Add(term)
		}
	}

	out := f.conv.Forward(fused.Div(denom))
	out = f.bn.Forward(out)
	return out.ReLU(), nil
}

// EffectiveWeights returns relu(weights) / (Σ relu(weights) + ε).
// The computation reads parameter storage directly and records nothing.
func (f *FastFusion[B]) EffectiveWeights() []float32 {
	raw := f.weights.Tensor().Data()
	out := make([]float32, len(raw))
	denom := f.epsilon
	for i, v := range raw {
		if v > 0 {
			out[i] = v
			denom += float64(v)
		}
	}
	for i := range out {
		out[i] = float32(float64(out[i]) / denom)
	}
	return out
}

// Weights returns the raw fusion weight parameter.
func (f *FastFusion[B]) Weights() *nn.Parameter[B] { return f.weights }

// Inputs returns the number of fused maps.
func (f *FastFusion[B]) Inputs() int { return f.inputs }

// ResizeIndex returns the position of the resized input.
func (f *FastFusion[B]) ResizeIndex() int { return f.resizeIndex }

// Features returns the output channel count.
func (f *FastFusion[B]) Features() int { return f.features }

// SetTraining switches the batch normalization mode.
func (f *FastFusion[B]) SetTraining(training bool) {
	f.bn.SetTraining(training)
}

// Parameters returns weights, resize, conv and batch norm parameters in
// that order.
func (f *FastFusion[B]) Parameters() []*nn.Parameter[B] {
	params := []*nn.Parameter[B]{f.weights}
	params = append(params, f.resize.Parameters()...)
	params = append(params, f.conv.Parameters()...)
	params = append(params, f.bn.Parameters()...)
	return params
}

// StateDict returns weights and buffers keyed "weights", "resize.conv.*",
// "conv.*" and "bn.*".
func (f *FastFusion[B]) StateDict() map[string]*tensor.RawTensor {
	sd := map[string]*tensor.RawTensor{
		"weights": f.weights.Tensor().Raw(),
	}
	nn.PrefixStateDict(sd, "resize", f.resize.StateDict())
	nn.PrefixStateDict(sd, "conv", f.conv.StateDict())
	nn.PrefixStateDict(sd, "bn", f.bn.StateDict())
	return sd
}

// LoadStateDict restores every weight and buffer.
func (f *FastFusion[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	raw, ok := stateDict["weights"]
	if !ok {
		return errors.New("missing weights in state dict")
	}
	if raw.DType() != tensor.Float32 || !raw.Shape().Equal(tensor.Shape{f.inputs}) {
		return fmt.Errorf("weights: expected float32 %v, got %v %v", tensor.Shape{f.inputs}, raw.DType(), raw.Shape())
	}
	if err := f.resize.LoadStateDict(nn.SubStateDict(stateDict, "resize")); err != nil {
		return fmt.Errorf("resize: %w", err)
	}
	if err := f.conv.LoadStateDict(nn.SubStateDict(stateDict, "conv")); err != nil {
		return fmt.Errorf("conv: %w", err)
	}
	if err := f.bn.LoadStateDict(nn.SubStateDict(stateDict, "bn")); err != nil {
		return fmt.Errorf("bn: %w", err)
	}
	copy(f.weights.Tensor().Data(), raw.AsFloat32())
	return nil
}
