package main

import (
	"fmt"
	"math/rand"

	"github.com/spf13/cobra"

	"github.com/born-ml/bifpn/bifpn"
	"github.com/born-ml/bifpn/tensor"
)

// modelOptions are the flags shared by every command that builds a model.
type modelOptions struct {
	config   string
	weights  string
	features int
	blocks   int
	seed     int64
}

func (o *modelOptions) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.config, "config", "", "YAML model configuration")
	cmd.Flags().StringVar(&o.weights, "weights", "", "Load weights and configuration from a safetensors checkpoint")
	cmd.Flags().IntVar(&o.features, "features", 0, "Override the feature width")
	cmd.Flags().IntVar(&o.blocks, "blocks", 0, "Override the number of blocks")
	cmd.Flags().Int64Var(&o.seed, "seed", 0, "Override the initialization seed")
}

// resolveConfig merges the config file with flag overrides.
func (o *modelOptions) resolveConfig(cmd *cobra.Command) (bifpn.Config, error) {
	cfg := bifpn.DefaultConfig()
	if o.config != "" {
		loaded, err := bifpn.LoadConfig(o.config)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	}
	if cmd.Flags().Changed("features") {
		cfg.Features = o.features
	}
	if cmd.Flags().Changed("blocks") {
		cfg.Blocks = o.blocks
	}
	if cmd.Flags().Changed("seed") {
		cfg.Seed = o.seed
	}
	return cfg, cfg.Validate()
}

// buildModel loads a checkpoint when --weights is set and builds a fresh
// model otherwise.
func buildModel[B tensor.Backend](cmd *cobra.Command, o *modelOptions, backend B) (*bifpn.BiFPN[B], error) {
	if o.weights != "" {
		if o.config != "" || cmd.Flags().Changed("features") || cmd.Flags().Changed("blocks") {
			return nil, fmt.Errorf("--weights carries its own configuration; drop --config, --features and --blocks")
		}
		return bifpn.Load(o.weights, backend)
	}
	cfg, err := o.resolveConfig(cmd)
	if err != nil {
		return nil, err
	}
	return bifpn.New(cfg, backend)
}

// levelSizes halves size per level, never going below 1.
func levelSizes(size int) [bifpn.NumLevels]int {
	var sizes [bifpn.NumLevels]int
	for i := range sizes {
		sizes[i] = max(size>>i, 1)
	}
	return sizes
}

// randomPyramid draws a standard normal pyramid matching cfg.
func randomPyramid[B tensor.Backend](cfg bifpn.Config, batch, size int, rng *rand.Rand, backend B) (bifpn.Pyramid[B], error) {
	if batch <= 0 || size <= 0 {
		return bifpn.Pyramid[B]{}, fmt.Errorf("batch and size must be positive, got %d and %d", batch, size)
	}
	maps := make([]*tensor.Tensor[float32, B], bifpn.NumLevels)
	for l, s := range levelSizes(size) {
		channels := cfg.Features
		if cfg.InChannels != nil {
			channels = cfg.InChannels[l]
		}
		maps[l] = tensor.RandNormal[float32](tensor.Shape{batch, s, s, channels}, 0, 1, rng, backend)
	}
	return bifpn.NewPyramid(maps)
}
