package nn

import (
	"fmt"
	"math/rand"

	"github.com/born-ml/bifpn/internal/tensor"
)

// Conv2D is a 2D convolutional layer over NHWC feature maps.
//
// Performs convolution: output = Conv2D(input, weight) + bias
//
// Input shape:  [batch, height, width, in_channels]
// Weight shape: [kernel_h, kernel_w, in_channels, out_channels]
// Bias shape:   [out_channels]
// Output shape: [batch, out_h, out_w, out_channels]
//
// Where:
//
//	out_h = (height + 2*padding - kernel_h) / stride + 1
//	out_w = (width + 2*padding - kernel_w) / stride + 1
//
// Example:
//
//	// 1x1 projection: 40 -> 64 channels
//	conv := nn.NewConv2D(40, 64, 1, 1, 1, 0, true, nil, backend)
//	output := conv.Forward(input) // [N, H, W, 64]
type Conv2D[B tensor.Backend] struct {
	inChannels  int
	outChannels int
	kernelSize  [2]int
	stride      int
	padding     int

	weight *Parameter[B] // [kernel_h, kernel_w, in_channels, out_channels]
	bias   *Parameter[B] // [out_channels] or nil
}

// NewConv2D creates a new 2D convolutional layer.
//
// Initialization:
//   - Weights: Xavier/Glorot uniform initialization drawn from rng
//   - Bias: Zeros
//
// Panics on non-positive channel counts, kernel sizes or stride.
func NewConv2D[B tensor.Backend](
	inChannels, outChannels int,
	kernelH, kernelW int,
	stride, padding int,
	useBias bool,
	rng *rand.Rand,
	backend B,
) *Conv2D[B] {
	if inChannels <= 0 || outChannels <= 0 {
		panic(fmt.Sprintf("conv2d: invalid channels in=%d, out=%d", inChannels, outChannels))
	}
	if kernelH <= 0 || kernelW <= 0 {
		panic(fmt.Sprintf("conv2d: invalid kernel size h=%d, w=%d", kernelH, kernelW))
	}
	if stride <= 0 {
		panic(fmt.Sprintf("conv2d: invalid stride %d", stride))
	}
	if padding < 0 {
		panic(fmt.Sprintf("conv2d: invalid padding %d", padding))
	}

	// fan_in = kh*kw*in, fan_out = kh*kw*out
	receptive := kernelH * kernelW
	weight := Xavier(receptive*inChannels, receptive*outChannels,
		tensor.Shape{kernelH, kernelW, inChannels, outChannels}, rng, backend)

	var bias *Parameter[B]
	if useBias {
		bias = NewParameter("bias", Zeros(tensor.Shape{outChannels}, backend))
	}

	return &Conv2D[B]{
		inChannels:  inChannels,
		outChannels: outChannels,
		kernelSize:  [2]int{kernelH, kernelW},
		stride:      stride,
		padding:     padding,
		weight:      NewParameter("weight", weight),
		bias:        bias,
	}
}

// Forward performs the forward pass.
//
// Input: [batch, height, width, in_channels]
// Output: [batch, out_h, out_w, out_channels].
func (c *Conv2D[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	inputShape := input.Shape()
	if len(inputShape) != 4 {
		panic(fmt.Sprintf("conv2d: expected 4D input [N,H,W,C], got %dD", len(inputShape)))
	}
	if inputShape[3] != c.inChannels {
		panic(fmt.Sprintf("conv2d: input channels %d != expected %d", inputShape[3], c.inChannels))
	}

	output := input.Conv2D(c.weight.Tensor(), c.stride, c.padding)
	if c.bias != nil {
		// [C] broadcasts over the trailing channel axis.
		output = output.Add(c.bias.Tensor())
	}
	return output
}

// Parameters returns all trainable parameters.
func (c *Conv2D[B]) Parameters() []*Parameter[B] {
	if c.bias != nil {
		return []*Parameter[B]{c.weight, c.bias}
	}
	return []*Parameter[B]{c.weight}
}

// Weight returns the kernel parameter.
func (c *Conv2D[B]) Weight() *Parameter[B] {
	return c.weight
}

// Bias returns the bias parameter, or nil when the layer has none.
func (c *Conv2D[B]) Bias() *Parameter[B] {
	return c.bias
}

// StateDict returns a map of parameter names to raw tensors.
func (c *Conv2D[B]) StateDict() map[string]*tensor.RawTensor {
	stateDict := map[string]*tensor.RawTensor{"weight": c.weight.Tensor().Raw()}
	if c.bias != nil {
		stateDict["bias"] = c.bias.Tensor().Raw()
	}
	return stateDict
}

// LoadStateDict loads parameters from a state dictionary.
func (c *Conv2D[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	if err := loadTensor(c.weight.Tensor(), stateDict, "weight"); err != nil {
		return err
	}
	if c.bias != nil {
		return loadTensor(c.bias.Tensor(), stateDict, "bias")
	}
	return nil
}

// String returns a string representation of the layer.
func (c *Conv2D[B]) String() string {
	return fmt.Sprintf("Conv2D(in_channels=%d, out_channels=%d, kernel_size=(%d, %d), stride=%d, padding=%d, bias=%v)",
		c.inChannels, c.outChannels,
		c.kernelSize[0], c.kernelSize[1],
		c.stride, c.padding, c.bias != nil)
}

// InChannels returns the number of input channels.
func (c *Conv2D[B]) InChannels() int {
	return c.inChannels
}

// OutChannels returns the number of output channels.
func (c *Conv2D[B]) OutChannels() int {
	return c.outChannels
}

// ComputeOutputSize computes output spatial dimensions for given input size.
//
// Returns: [out_height, out_width].
func (c *Conv2D[B]) ComputeOutputSize(inputH, inputW int) [2]int {
	outH := (inputH+2*c.padding-c.kernelSize[0])/c.stride + 1
	outW := (inputW+2*c.padding-c.kernelSize[1])/c.stride + 1
	return [2]int{outH, outW}
}
