// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package bifpn provides the Bidirectional Feature Pyramid Network.
//
// # Overview
//
// A BiFPN takes five backbone feature maps (P3..P7, finest first) and
// returns five refined maps of the same resolutions. Each block fuses the
// levels along a top-down path and then a bottom-up path; every fusion
// point is a FastFusion unit with learned non-negative weights.
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
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//
//	    pyramid, err := bifpn.NewPyramid(maps) // five [N, H, W, 64] maps
//	    out, err := model.Forward(pyramid)
//	}
//
// # Backbones with other widths
//
// Set Config.InChannels to the backbone channel counts; levels that differ
// from Config.Features get a 1x1 projection before the first block.
//
// # Checkpoints
//
// Save and Load store the state dict as safetensors with the configuration
// in the file metadata:
//
//	err := bifpn.Save("bifpn.safetensors", model, bifpn.SaveOptions{Half: true})
//	model, err := bifpn.Load("bifpn.safetensors", backend)
package bifpn
