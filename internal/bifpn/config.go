package bifpn

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/born-ml/bifpn/internal/nn"
)

// Default hyper-parameters.
const (
	DefaultFeatures  = 64
	DefaultBlocks    = 3
	DefaultEpsilon   = 1e-5
	DefaultWeightStd = 0.05
)

// Config describes a BiFPN model.
//
// Example:
//
//	cfg := bifpn.DefaultConfig()
//	cfg.Features = 88
//	cfg.InChannels = []int{40, 112, 320, 88, 88}
//	model, err := bifpn.New(cfg, backend)
type Config struct {
	// Features is the channel width shared by every pyramid level.
	Features int `yaml:"features" json:"features"`

	// Blocks is the number of stacked BiFPN blocks.
	Blocks int `yaml:"blocks" json:"blocks"`

	// Separable selects a depthwise-separable 1x1 projection inside Resize
	// instead of a plain 1x1 convolution.
	Separable bool `yaml:"separable" json:"separable"`

	// Epsilon is added to the fusion weight sum.
	Epsilon float64 `yaml:"epsilon" json:"epsilon"`

	// WeightStd is the standard deviation of the fusion weight initializer.
	WeightStd float64 `yaml:"weight_std" json:"weight_std"`

	BNMomentum float64 `yaml:"bn_momentum" json:"bn_momentum"`
	BNEpsilon  float64 `yaml:"bn_epsilon" json:"bn_epsilon"`

	// InChannels optionally lists backbone channel counts for P3..P7.
	// Levels whose count differs from Features get a 1x1 projection.
	InChannels []int `yaml:"in_channels,omitempty" json:"in_channels,omitempty"`

	// Seed drives weight initialization. Equal seeds give equal models.
	Seed int64 `yaml:"seed" json:"seed"`
}

// DefaultConfig returns the reference configuration: 64 features,
// 3 blocks, ε = 1e-5 and Keras batch normalization defaults.
func DefaultConfig() Config {
	return Config{
		Features:   DefaultFeatures,
		Blocks:     DefaultBlocks,
		Epsilon:    DefaultEpsilon,
		WeightStd:  DefaultWeightStd,
		BNMomentum: nn.DefaultBNMomentum,
		BNEpsilon:  nn.DefaultBNEpsilon,
	}
}

// Validate checks that the configuration can build a model.
func (c Config) Validate() error {
	if c.Features <= 0 {
		return fmt.Errorf("%w: features must be positive, got %d", ErrConfig, c.Features)
	}
	if c.Blocks <= 0 {
		return fmt.Errorf("%w: blocks must be positive, got %d", ErrConfig, c.Blocks)
	}
	if c.Epsilon <= 0 {
		return fmt.Errorf("%w: epsilon must be positive, got %g", ErrConfig, c.Epsilon)
	}
	if c.WeightStd < 0 {
		return fmt.Errorf("%w: weight_std must not be negative, got %g", ErrConfig, c.WeightStd)
	}
	if c.BNMomentum < 0 || c.BNMomentum > 1 {
		return fmt.Errorf("%w: bn_momentum must be in [0, 1], got %g", ErrConfig, c.BNMomentum)
	}
	if c.BNEpsilon <= 0 {
		return fmt.Errorf("%w: bn_epsilon must be positive, got %g", ErrConfig, c.BNEpsilon)
	}
	if c.InChannels != nil {
		if len(c.InChannels) != NumLevels {
			return fmt.Errorf("%w: in_channels needs %d entries, got %d", ErrConfig, NumLevels, len(c.InChannels))
		}
		for i, ch := range c.InChannels {
			if ch <= 0 {
				return fmt.Errorf("%w: in_channels[%s] must be positive, got %d", ErrConfig, Level(i), ch)
			}
		}
	}
	return nil
}

// ParseConfig decodes YAML on top of DefaultConfig and validates the result.
// Unknown keys are rejected.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadConfig reads a YAML configuration file.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path comes from the caller
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config: %w", err)
	}
	cfg, err := ParseConfig(data)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}
