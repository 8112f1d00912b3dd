// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package optim provides optimization algorithms for training BiFPN weights.
//
// # Overview
//
// This package contains:
//   - SGD: Stochastic Gradient Descent with momentum
//   - Adam: Adaptive Moment Estimation with bias correction
//   - Optimizer interface with state dict export for checkpointing
//
// # Basic Usage
//
//	backend := autodiff.New(cpu.New())
//	model, _ := bifpn.New(bifpn.DefaultConfig(), backend)
//
//	optimizer := optim.NewAdam(
//	    model.Parameters(),
//	    optim.AdamConfig{LR: 0.001},
//	    backend,
//	)
//
//	for step := range 100 {
//	    loss, err := bifpn.TrainStep(model, optimizer, input, target, backend)
//	    ...
//	}
//
// Optimizers update parameter storage in place and never record on the
// autodiff tape.
package optim
