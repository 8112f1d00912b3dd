// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor provides type-safe tensors for the BiFPN engine.
//
// # Overview
//
// Tensors are the data structure every layer consumes and produces.
// This package provides:
//   - Generic type-safe tensors (Tensor[T, B])
//   - NumPy-style broadcasting for element-wise operations
//   - NHWC convolution, depthwise convolution and bilinear resize
//
// # Basic Usage
//
//	import (
//	    "github.com/born-ml/bifpn/backend/cpu"
//	    "github.com/born-ml/bifpn/tensor"
//	)
//
//	func main() {
//	    backend := cpu.New()
//
//	    x := tensor.Randn[float32](tensor.Shape{1, 8, 8, 64}, backend)
//	    up := x.ResizeBilinear(16, 16)
//	    y := up.Add(tensor.Ones[float32](tensor.Shape{64}, backend))
//	}
//
// # Supported Data Types
//
// The DType constraint admits float32 and float64. Layers work in float32;
// float64 exists for numerical gradient checks.
//
// # Layout
//
// Feature maps are NHWC ([batch, height, width, channels]). Convolution
// kernels are HWIO ([kernel_h, kernel_w, in_channels, out_channels]).
package tensor
