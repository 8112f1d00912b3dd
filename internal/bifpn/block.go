package bifpn

import (
	"fmt"
	"math/rand"

	"github.com/born-ml/bifpn/internal/nn"
	"github.com/born-ml/bifpn/internal/tensor"
)

// Fusion unit names, in execution order.
const (
	UnitP6TD  = "p6_td"
	UnitP5TD  = "p5_td"
	UnitP4TD  = "p4_td"
	UnitP3Out = "p3_out"
	UnitP4Out = "p4_out"
	UnitP5Out = "p5_out"
	UnitP6Out = "p6_out"
	UnitP7Out = "p7_out"
)

// UnitNames lists the eight fusion units of a Block in execution order.
var UnitNames = [8]string{UnitP6TD, UnitP5TD, UnitP4TD, UnitP3Out, UnitP4Out, UnitP5Out, UnitP6Out, UnitP7Out}

// unitInputs is the number of maps each unit fuses.
var unitInputs = [8]int{2, 2, 2, 2, 3, 3, 3, 2}

// Block is one bidirectional pass over a pyramid: a top-down path from P7
// to P4 followed by a bottom-up path from P3 to P7.
//
//	P6_td  = ff(P6, P7)
//	P5_td  = ff(P5, P6_td)
//	P4_td  = ff(P4, P5_td)
//	P3_out = ff(P3, P4_td)
//	P4_out = ff(P4, P4_td, P3_out)
//	P5_out = ff(P5, P5_td, P4_out)
//	P6_out = ff(P6, P6_td, P5_out)
//	P7_out = ff(P7, P6_td)
//
// The last argument of every unit is resized to the first one's resolution.
type Block[B tensor.Backend] struct {
	cfg   Config
	units [8]*FastFusion[B]
}

// NewBlock creates a block from the fusion-related fields of cfg.
func NewBlock[B tensor.Backend](cfg Config, rng *rand.Rand, backend B) (*Block[B], error) {
	if cfg.Features <= 0 {
		return nil, fmt.Errorf("%w: features must be positive, got %d", ErrConfig, cfg.Features)
	}
	unitCfg := FastFusionConfig{
		Features:   cfg.Features,
		Separable:  cfg.Separable,
		Epsilon:    cfg.Epsilon,
		WeightStd:  cfg.WeightStd,
		BNMomentum: cfg.BNMomentum,
		BNEpsilon:  cfg.BNEpsilon,
	}.withDefaults()

	b := &Block[B]{cfg: Config{
		Features:   cfg.Features,
		Blocks:     1,
		Separable:  unitCfg.Separable,
		Epsilon:    unitCfg.Epsilon,
		WeightStd:  unitCfg.WeightStd,
		BNMomentum: unitCfg.BNMomentum,
		BNEpsilon:  unitCfg.BNEpsilon,
		Seed:       cfg.Seed,
	}}
	for i, name := range UnitNames {
		uc := unitCfg
		uc.Inputs = unitInputs[i]
		uc.ResizeIndex = 0
		unit, err := NewFastFusion(uc, rng, backend)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		b.units[i] = unit
	}
	return b, nil
}

// Forward runs the block. The output has the same per-level shapes as p.
func (b *Block[B]) Forward(p Pyramid[B]) (Pyramid[B], error) {
	channels, err := p.Validate()
	if err != nil {
		return Pyramid[B]{}, err
	}
	if channels != b.cfg.Features {
		return Pyramid[B]{}, fmt.Errorf("%w: pyramid has %d channels, block expects %d", ErrChannels, channels, b.cfg.Features)
	}

	var fuseErr error
	ff := func(unit int, inputs ...*tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
		if fuseErr != nil {
			return nil
		}
		out, err := b.units[unit].Forward(inputs...)
		if err != nil {
			fuseErr = fmt.Errorf("%s: %w", UnitNames[unit], err)
		}
		return out
	}

	p6td := ff(0, p[P6], p[P7])
	p5td := ff(1, p[P5], p6td)
	p4td := ff(2, p[P4], p5td)

	var out Pyramid[B]
	out[P3] = ff(3, p[P3], p4td)
	out[P4] = ff(4, p[P4], p4td, out[P3])
	out[P5] = ff(5, p[P5], p5td, out[P4])
	out[P6] = ff(6, p[P6], p6td, out[P5])
	out[P7] = ff(7, p[P7], p6td)
	if fuseErr != nil {
		return Pyramid[B]{}, fuseErr
	}
	return out, nil
}

// Features returns the channel width the block operates on.
func (b *Block[B]) Features() int { return b.cfg.Features }

// Config returns the settings the block was built with, defaults resolved.
// Blocks is always 1 and InChannels is nil.
func (b *Block[B]) Config() Config { return b.cfg }

// sameFusion reports whether a and b build interchangeable fusion units.
func sameFusion(a, b Config) bool {
	return a.Features == b.Features &&
		a.Separable == b.Separable &&
		a.Epsilon == b.Epsilon &&
		a.WeightStd == b.WeightStd &&
		a.BNMomentum == b.BNMomentum &&
		a.BNEpsilon == b.BNEpsilon
}

// Unit returns the fusion unit with the given name, or nil.
func (b *Block[B]) Unit(name string) *FastFusion[B] {
	for i, n := range UnitNames {
		if n == name {
			return b.units[i]
		}
	}
	return nil
}

// SetTraining switches every unit's batch normalization mode.
func (b *Block[B]) SetTraining(training bool) {
	for _, u := range b.units {
		u.SetTraining(training)
	}
}

// Parameters returns the parameters of all units in execution order.
func (b *Block[B]) Parameters() []*nn.Parameter[B] {
	var params []*nn.Parameter[B]
	for _, u := range b.units {
		params = append(params, u.Parameters()...)
	}
	return params
}

// StateDict returns every unit's state under its name.
func (b *Block[B]) StateDict() map[string]*tensor.RawTensor {
	sd := make(map[string]*tensor.RawTensor)
	for i, u := range b.units {
		nn.PrefixStateDict(sd, UnitNames[i], u.StateDict())
	}
	return sd
}

// LoadStateDict restores every unit.
func (b *Block[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	for i, u := range b.units {
		if err := u.LoadStateDict(nn.SubStateDict(stateDict, UnitNames[i])); err != nil {
			return fmt.Errorf("%s: %w", UnitNames[i], err)
		}
	}
	return nil
}
