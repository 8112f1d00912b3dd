// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package nn

import (
	"math/rand"

	"github.com/born-ml/bifpn/internal/nn"
	"github.com/born-ml/bifpn/internal/tensor"
)

// Module interface defines the common interface for all neural network modules.
type Module[B tensor.Backend] = nn.Module[B]

// Stateful is implemented by modules whose weights can be exported and
// restored by name.
type Stateful = nn.Stateful

// Parameter represents a trainable parameter in a neural network.
type Parameter[B tensor.Backend] = nn.Parameter[B]

// NewParameter creates a new parameter with the given name and tensor.
func NewParameter[B tensor.Backend](name string, t *tensor.Tensor[float32, B]) *Parameter[B] {
	return nn.NewParameter(name, t)
}

// Layers

// Conv2D represents a 2D convolutional layer.
type Conv2D[B tensor.Backend] = nn.Conv2D[B]

// NewConv2D creates a new 2D convolutional layer. A nil rng draws from the
// global math/rand source.
//
// Example:
//
//	backend := cpu.New()
//	conv := nn.NewConv2D(40, 64, 1, 1, 1, 0, true, nil, backend) // 1x1 projection 40 -> 64
func NewConv2D[B tensor.Backend](
	inChannels, outChannels int,
	kernelH, kernelW int,
	stride, padding int,
	useBias bool,
	rng *rand.Rand,
	backend B,
) *Conv2D[B] {
	return nn.NewConv2D(inChannels, outChannels, kernelH, kernelW, stride, padding, useBias, rng, backend)
}

// SeparableConv2D is a depthwise convolution followed by a pointwise one.
type SeparableConv2D[B tensor.Backend] = nn.SeparableConv2D[B]

// NewSeparableConv2D creates a separable convolution.
func NewSeparableConv2D[B tensor.Backend](
	inChannels, outChannels, kernelSize, stride, padding int,
	useBias bool,
	rng *rand.Rand,
	backend B,
) *SeparableConv2D[B] {
	return nn.NewSeparableConv2D(inChannels, outChannels, kernelSize, stride, padding, useBias, rng, backend)
}

// BatchNorm2D normalizes each channel of an NHWC feature map.
type BatchNorm2D[B tensor.Backend] = nn.BatchNorm2D[B]

// Batch normalization defaults.
const (
	DefaultBNMomentum = nn.DefaultBNMomentum
	DefaultBNEpsilon  = nn.DefaultBNEpsilon
)

// NewBatchNorm2D creates a batch normalization layer in inference mode.
func NewBatchNorm2D[B tensor.Backend](channels int, momentum, eps float64, backend B) *BatchNorm2D[B] {
	return nn.NewBatchNorm2D(channels, momentum, eps, backend)
}

// Activations

// ReLU represents the Rectified Linear Unit activation.
type ReLU[B tensor.Backend] = nn.ReLU[B]

// NewReLU creates a new ReLU activation.
func NewReLU[B tensor.Backend]() *ReLU[B] {
	return nn.NewReLU[B]()
}

// Loss Functions

// MSELoss represents the mean squared error loss.
type MSELoss[B tensor.Backend] = nn.MSELoss[B]

// NewMSELoss creates a new MSE loss.
func NewMSELoss[B tensor.Backend]() *MSELoss[B] {
	return nn.NewMSELoss[B]()
}

// Initialization

// Xavier initializes weights with Xavier/Glorot uniform initialization.
func Xavier[B tensor.Backend](fanIn, fanOut int, shape tensor.Shape, rng *rand.Rand, backend B) *tensor.Tensor[float32, B] {
	return nn.Xavier(fanIn, fanOut, shape, rng, backend)
}

// Normal draws weights from N(mean, std²).
func Normal[B tensor.Backend](shape tensor.Shape, mean, std float64, rng *rand.Rand, backend B) *tensor.Tensor[float32, B] {
	return nn.Normal(shape, mean, std, rng, backend)
}

// CountParameters returns the total number of scalar weights in params.
func CountParameters[B tensor.Backend](params []*Parameter[B]) int {
	return nn.CountParameters(params)
}
