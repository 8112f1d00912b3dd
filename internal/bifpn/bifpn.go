// Package bifpn implements the Bidirectional Feature Pyramid Network.
//
// A BiFPN repeatedly fuses a five-level feature pyramid (P3..P7) along a
// top-down and then a bottom-up path. Every fusion point is a FastFusion
// unit: learned non-negative weights, a 1x1 separable convolution, batch
// normalization and ReLU.
//
// Example:
//
//	backend := cpu.New()
//	model, err := bifpn.New(bifpn.DefaultConfig(), backend)
//	if err != nil { ... }
//	out, err := model.Forward(pyramid)
package bifpn

import (
	"fmt"
	"math/rand"
	"strconv"

	log "github.com/sirupsen/logrus"

	"github.com/born-ml/bifpn/internal/nn"
	"github.com/born-ml/bifpn/internal/tensor"
)

// BiFPN is a stack of Blocks with optional lateral input projections.
type BiFPN[B tensor.Backend] struct {
	cfg     Config
	lateral [NumLevels]*nn.Conv2D[B] // nil where no projection is needed
	blocks  []*Block[B]
}

// New builds a model from cfg. Weights are drawn from a source seeded
// with cfg.Seed.
func New[B tensor.Backend](cfg Config, backend B) (*BiFPN[B], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	rng := rand.New(rand.NewSource(cfg.Seed)) //nolint:gosec // G404: weight init

	m := &BiFPN[B]{cfg: cfg}
	m.cfg.InChannels = append([]int(nil), cfg.InChannels...)
	for l, ch := range cfg.InChannels {
		if ch != cfg.Features {
			m.lateral[l] = nn.NewConv2D(ch, cfg.Features, 1, 1, 1, 0, true, rng, backend)
		}
	}
	for i := 0; i < cfg.Blocks; i++ {
		block, err := NewBlock(cfg, rng, backend)
		if err != nil {
			return nil, fmt.Errorf("block %d: %w", i, err)
		}
		m.blocks = append(m.blocks, block)
	}

	log.WithFields(log.Fields{
		"blocks":   cfg.Blocks,
		"features": cfg.Features,
		"params":   m.NumParameters(),
		"backend":  backend.Name(),
	}).Debug("bifpn model built")
	return m, nil
}

// NewBiFPNFromBlocks composes pre-built blocks. All blocks must share the
// same feature width and fusion settings; the model's Config is taken from
// them so that a saved model loads back unchanged.
func NewBiFPNFromBlocks[B tensor.Backend](blocks []*Block[B]) (*BiFPN[B], error) {
	if len(blocks) == 0 {
		return nil, fmt.Errorf("%w: at least one block is required", ErrConfig)
	}
	for i, b := range blocks {
		if b == nil {
			return nil, fmt.Errorf("%w: block %d is nil", ErrConfig, i)
		}
	}
	cfg := blocks[0].Config()
	for i, b := range blocks[1:] {
		if b.Features() != cfg.Features {
			return nil, fmt.Errorf("%w: block %d has %d features, block 0 has %d", ErrChannels, i+1, b.Features(), cfg.Features)
		}
		if !sameFusion(b.Config(), cfg) {
			return nil, fmt.Errorf("%w: block %d fusion settings differ from block 0", ErrConfig, i+1)
		}
	}
	cfg.Blocks = len(blocks)
	return &BiFPN[B]{cfg: cfg, blocks: append([]*Block[B](nil), blocks...)}, nil
}

// Forward runs the pyramid through the lateral projections and every
// block in order. Each output level keeps its input resolution and has
// Features channels.
func (m *BiFPN[B]) Forward(p Pyramid[B]) (Pyramid[B], error) {
	if m.cfg.InChannels != nil {
		projected, err := m.project(p)
		if err != nil {
			return Pyramid[B]{}, err
		}
		p = projected
	}
	for i, b := range m.blocks {
		out, err := b.Forward(p)
		if err != nil {
			return Pyramid[B]{}, fmt.Errorf("block %d: %w", i, err)
		}
		p = out
	}
	return p, nil
}

// project applies lateral 1x1 convolutions to levels whose channel count
// differs from Features.
func (m *BiFPN[B]) project(p Pyramid[B]) (Pyramid[B], error) {
	if err := p.validateLayout(); err != nil {
		return Pyramid[B]{}, err
	}
	var out Pyramid[B]
	for l := P3; l <= P7; l++ {
		if c := p[l].Shape()[3]; c != m.cfg.InChannels[l] {
			return Pyramid[B]{}, fmt.Errorf("%w: %s has %d channels, expected %d", ErrChannels, l, c, m.cfg.InChannels[l])
		}
		if m.lateral[l] == nil {
			out[l] = p[l]
			continue
		}
		out[l] = m.lateral[l].Forward(p[l])
	}
	return out, nil
}

// Config returns a copy of the model configuration.
func (m *BiFPN[B]) Config() Config {
	cfg := m.cfg
	cfg.InChannels = append([]int(nil), m.cfg.InChannels...)
	if len(cfg.InChannels) == 0 {
		cfg.InChannels = nil
	}
	return cfg
}

// Blocks returns the blocks in execution order.
func (m *BiFPN[B]) Blocks() []*Block[B] {
	return append([]*Block[B](nil), m.blocks...)
}

// SetTraining switches every batch normalization layer.
func (m *BiFPN[B]) SetTraining(training bool) {
	for _, b := range m.blocks {
		b.SetTraining(training)
	}
}

// Parameters returns lateral parameters followed by block parameters.
func (m *BiFPN[B]) Parameters() []*nn.Parameter[B] {
	var params []*nn.Parameter[B]
	for _, conv := range m.lateral {
		if conv != nil {
			params = append(params, conv.Parameters()...)
		}
	}
	for _, b := range m.blocks {
		params = append(params, b.Parameters()...)
	}
	return params
}

// NumParameters returns the number of trainable scalars.
func (m *BiFPN[B]) NumParameters() int {
	return nn.CountParameters(m.Parameters())
}

// StateDict returns all weights and buffers keyed "lateral.<level>.*"
// and "blocks.<i>.<unit>.*".
func (m *BiFPN[B]) StateDict() map[string]*tensor.RawTensor {
	sd := make(map[string]*tensor.RawTensor)
	for l, conv := range m.lateral {
		if conv != nil {
			nn.PrefixStateDict(sd, "lateral."+strconv.Itoa(l), conv.StateDict())
		}
	}
	for i, b := range m.blocks {
		nn.PrefixStateDict(sd, "blocks."+strconv.Itoa(i), b.StateDict())
	}
	return sd
}

// LoadStateDict restores all weights and buffers.
func (m *BiFPN[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	for l, conv := range m.lateral {
		if conv == nil {
			continue
		}
		prefix := "lateral." + strconv.Itoa(l)
		if err := conv.LoadStateDict(nn.SubStateDict(stateDict, prefix)); err != nil {
			return fmt.Errorf("%s: %w", prefix, err)
		}
	}
	for i, b := range m.blocks {
		prefix := "blocks." + strconv.Itoa(i)
		if err := b.LoadStateDict(nn.SubStateDict(stateDict, prefix)); err != nil {
			return fmt.Errorf("%s: %w", prefix, err)
		}
	}
	return nil
}
