// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package nn provides the layers the feature pyramid is built from.
//
// # Overview
//
// This package contains:
//   - Layers: Conv2D, SeparableConv2D, BatchNorm2D
//   - Activations: ReLU
//   - Loss functions: MSELoss
//   - Utilities: Module interface, Parameter, state dict helpers
//   - Initialization: Xavier, Normal, Zeros, Ones
//
// # Basic Usage
//
//	backend := cpu.New()
//
//	conv := nn.NewSeparableConv2D(64, 64, 1, 1, 0, true, nil, backend)
//	bn := nn.NewBatchNorm2D(64, nn.DefaultBNMomentum, nn.DefaultBNEpsilon, backend)
//
//	out := bn.Forward(conv.Forward(input)) // input: [N, H, W, 64]
//
// # Layouts
//
// Inputs are NHWC. Conv2D weights are HWIO. SeparableConv2D holds a
// [k, k, C, 1] depthwise kernel and a [1, 1, C, out] pointwise kernel.
//
// # Batch normalization
//
// BatchNorm2D starts in inference mode and uses its running statistics.
// Call SetTraining(true) to normalize with batch statistics and update the
// running mean and variance.
package nn
