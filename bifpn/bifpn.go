// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package bifpn

import (
	"math/rand"

	"github.com/born-ml/bifpn/internal/autodiff"
	"github.com/born-ml/bifpn/internal/bifpn"
	"github.com/born-ml/bifpn/internal/optim"
	"github.com/born-ml/bifpn/internal/tensor"
)

// Errors returned by constructors and forward passes.
var (
	ErrConfig          = bifpn.ErrConfig
	ErrInputCount      = bifpn.ErrInputCount
	ErrPyramidLevels   = bifpn.ErrPyramidLevels
	ErrChannels        = bifpn.ErrChannels
	ErrSpatialMismatch = bifpn.ErrSpatialMismatch
	ErrRank            = bifpn.ErrRank
)

// Config describes a BiFPN model.
type Config = bifpn.Config

// DefaultConfig returns 64 features, 3 blocks and ε = 1e-5.
func DefaultConfig() Config {
	return bifpn.DefaultConfig()
}

// LoadConfig reads a YAML configuration file on top of DefaultConfig.
func LoadConfig(path string) (Config, error) {
	return bifpn.LoadConfig(path)
}

// Level indexes a pyramid slot.
type Level = bifpn.Level

// Pyramid levels.
const (
	P3 = bifpn.P3
	P4 = bifpn.P4
	P5 = bifpn.P5
	P6 = bifpn.P6
	P7 = bifpn.P7
)

// NumLevels is the number of levels in a Pyramid.
const NumLevels = bifpn.NumLevels

// MetadataConfigKey is the checkpoint metadata entry holding the config.
const MetadataConfigKey = bifpn.MetadataConfigKey

// Pyramid holds five NHWC feature maps, P3 first.
type Pyramid[B tensor.Backend] = bifpn.Pyramid[B]

// NewPyramid builds a Pyramid from exactly five maps.
func NewPyramid[B tensor.Backend](maps []*tensor.Tensor[float32, B]) (Pyramid[B], error) {
	return bifpn.NewPyramid(maps)
}

// BiFPN is a stack of blocks.
type BiFPN[B tensor.Backend] = bifpn.BiFPN[B]

// New builds a model from cfg.
func New[B tensor.Backend](cfg Config, backend B) (*BiFPN[B], error) {
	return bifpn.New(cfg, backend)
}

// Block is one bidirectional fusion pass.
type Block[B tensor.Backend] = bifpn.Block[B]

// NewBlock creates a block.
func NewBlock[B tensor.Backend](cfg Config, rng *rand.Rand, backend B) (*Block[B], error) {
	return bifpn.NewBlock(cfg, rng, backend)
}

// NewBiFPNFromBlocks composes pre-built blocks of equal width.
func NewBiFPNFromBlocks[B tensor.Backend](blocks []*Block[B]) (*BiFPN[B], error) {
	return bifpn.NewBiFPNFromBlocks(blocks)
}

// UnitNames lists the eight fusion units of a Block in execution order:
// p6_td, p5_td, p4_td, p3_out, p4_out, p5_out, p6_out, p7_out.
var UnitNames = bifpn.UnitNames

// FastFusion is a weighted fusion unit.
type FastFusion[B tensor.Backend] = bifpn.FastFusion[B]

// FastFusionConfig configures a FastFusion unit.
type FastFusionConfig = bifpn.FastFusionConfig

// NewFastFusion creates a fusion unit.
func NewFastFusion[B tensor.Backend](cfg FastFusionConfig, rng *rand.Rand, backend B) (*FastFusion[B], error) {
	return bifpn.NewFastFusion(cfg, rng, backend)
}

// Resize brings a map to a target resolution and channel width.
type Resize[B tensor.Backend] = bifpn.Resize[B]

// NewResize creates a Resize.
func NewResize[B tensor.Backend](inChannels, features int, separable bool, rng *rand.Rand, backend B) (*Resize[B], error) {
	return bifpn.NewResize(inChannels, features, separable, rng, backend)
}

// SaveOptions controls checkpoint encoding.
type SaveOptions = bifpn.SaveOptions

// Save writes a safetensors checkpoint.
func Save[B tensor.Backend](path string, model *BiFPN[B], opts SaveOptions) error {
	return bifpn.Save(path, model, opts)
}

// Load rebuilds a model from a checkpoint written by Save.
func Load[B tensor.Backend](path string, backend B) (*BiFPN[B], error) {
	return bifpn.Load(path, backend)
}

// Loss returns the summed per-level mean squared error.
func Loss[B tensor.Backend](out, target Pyramid[B]) (*tensor.Tensor[float32, B], error) {
	return bifpn.Loss(out, target)
}

// TrainStep runs one optimization step on an autodiff backend.
func TrainStep[B autodiff.BackwardCapable](model *BiFPN[B], opt optim.Optimizer, input, target Pyramid[B], backend B) (float32, error) {
	return bifpn.TrainStep(model, opt, input, target, backend)
}
