// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package cpu provides a pure Go CPU backend for tensor operations.
//
// # Overview
//
// This package implements a CPU backend with:
//   - Pure Go implementation (no CGO)
//   - Im2col + BLAS (gonum) convolutions and their gradients
//   - Depthwise convolution and half-pixel bilinear resize
//   - NumPy-compatible broadcasting
//
// # Basic Usage
//
//	import (
//	    "github.com/born-ml/bifpn/backend/cpu"
//	    "github.com/born-ml/bifpn/bifpn"
//	)
//
//	func main() {
//	    backend := cpu.New()
//	    model, err := bifpn.New(bifpn.DefaultConfig(), backend)
//	    ...
//	}
//
// # Thread Safety
//
// The CPU backend is safe for concurrent use. Each tensor operation
// allocates its own result and does not share mutable state. Batch items
// are processed in parallel inside a single operation.
package cpu
