package nn

import (
	"fmt"
	"math/rand"

	"github.com/born-ml/bifpn/internal/tensor"
)

// SeparableConv2D factorizes a convolution into a per-channel (depthwise)
// spatial filter followed by a 1x1 (pointwise) channel mix.
//
//	output = Conv2D(DepthwiseConv2D(input, depthwise), pointwise) + bias
//
// Depthwise kernel: [kernel, kernel, in_channels, 1]
// Pointwise kernel: [1, 1, in_channels, out_channels]
type SeparableConv2D[B tensor.Backend] struct {
	inChannels  int
	outChannels int
	kernelSize  int
	stride      int
	padding     int

	depthwise *Parameter[B]
	pointwise *Parameter[B]
	bias      *Parameter[B] // nil when created without bias
}

// NewSeparableConv2D creates a separable convolution with Xavier-initialized
// kernels and a zero bias.
func NewSeparableConv2D[B tensor.Backend](
	inChannels, outChannels, kernelSize, stride, padding int,
	useBias bool,
	rng *rand.Rand,
	backend B,
) *SeparableConv2D[B] {
	if inChannels <= 0 || outChannels <= 0 {
		panic(fmt.Sprintf("separable_conv2d: invalid channels in=%d, out=%d", inChannels, outChannels))
	}
	if kernelSize <= 0 || stride <= 0 || padding < 0 {
		panic(fmt.Sprintf("separable_conv2d: invalid geometry kernel=%d stride=%d padding=%d",
			kernelSize, stride, padding))
	}

	receptive := kernelSize * kernelSize
	depthwise := Xavier(receptive, receptive,
		tensor.Shape{kernelSize, kernelSize, inChannels, 1}, rng, backend)
	pointwise := Xavier(inChannels, outChannels,
		tensor.Shape{1, 1, inChannels, outChannels}, rng, backend)

	var bias *Parameter[B]
	if useBias {
		bias = NewParameter("bias", Zeros(tensor.Shape{outChannels}, backend))
	}

	return &SeparableConv2D[B]{
		inChannels:  inChannels,
		outChannels: outChannels,
		kernelSize:  kernelSize,
		stride:      stride,
		padding:     padding,
		depthwise:   NewParameter("depthwise", depthwise),
		pointwise:   NewParameter("pointwise", pointwise),
		bias:        bias,
	}
}

// Forward applies the depthwise and pointwise convolutions.
func (s *SeparableConv2D[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	shape := input.Shape()
	if len(shape) != 4 || shape[3] != s.inChannels {
		panic(fmt.Sprintf("separable_conv2d: expected [N,H,W,%d] input, got %v", s.inChannels, shape))
	}

	out := input.DepthwiseConv2D(s.depthwise.Tensor(), s.stride, s.padding)
	out = out.Conv2D(s.pointwise.Tensor(), 1, 0)
	if s.bias != nil {
		out = out.Add(s.bias.Tensor())
	}
	return out
}

// Parameters returns depthwise, pointwise and (optional) bias parameters.
func (s *SeparableConv2D[B]) Parameters() []*Parameter[B] {
	params := []*Parameter[B]{s.depthwise, s.pointwise}
	if s.bias != nil {
		params = append(params, s.bias)
	}
	return params
}

// StateDict returns a map of parameter names to raw tensors.
func (s *SeparableConv2D[B]) StateDict() map[string]*tensor.RawTensor {
	stateDict := map[string]*tensor.RawTensor{
		"depthwise": s.depthwise.Tensor().Raw(),
		"pointwise": s.pointwise.Tensor().Raw(),
	}
	if s.bias != nil {
		stateDict["bias"] = s.bias.Tensor().Raw()
	}
	return stateDict
}

// LoadStateDict loads parameters from a state dictionary.
func (s *SeparableConv2D[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	if err := loadTensor(s.depthwise.Tensor(), stateDict, "depthwise"); err != nil {
		return err
	}
	if err := loadTensor(s.pointwise.Tensor(), stateDict, "pointwise"); err != nil {
		return err
	}
	if s.bias != nil {
		return loadTensor(s.bias.Tensor(), stateDict, "bias")
	}
	return nil
}

// String returns a string representation of the layer.
func (s *SeparableConv2D[B]) String() string {
	return fmt.Sprintf("SeparableConv2D(in_channels=%d, out_channels=%d, kernel_size=%d, stride=%d, padding=%d, bias=%v)",
		s.inChannels, s.outChannels, s.kernelSize, s.stride, s.padding, s.bias != nil)
}

// OutChannels returns the number of output channels.
func (s *SeparableConv2D[B]) OutChannels() int {
	return s.outChannels
}
