package bifpn

import (
	"fmt"
	"math/rand"

	"github.com/born-ml/bifpn/internal/nn"
	"github.com/born-ml/bifpn/internal/tensor"
)

// projection is a 1x1 convolution with exportable weights.
type projection[B tensor.Backend] interface {
	nn.Module[B]
	nn.Stateful
}

// Resize brings a feature map to a target resolution and channel width.
//
// Spatial dimensions are resized first with half-pixel bilinear
// interpolation, then a 1x1 convolution (plain or depthwise-separable)
// with bias projects the channels to features.
type Resize[B tensor.Backend] struct {
	inChannels int
	features   int
	separable  bool
	conv       projection[B]
}

// NewResize creates a Resize that maps inChannels to features channels.
func NewResize[B tensor.Backend](inChannels, features int, separable bool, rng *rand.Rand, backend B) (*Resize[B], error) {
	if inChannels <= 0 || features <= 0 {
		return nil, fmt.Errorf("%w: resize channels in=%d features=%d", ErrConfig, inChannels, features)
	}
	var conv projection[B]
	if separable {
		conv = nn.NewSeparableConv2D(inChannels, features, 1, 1, 0, true, rng, backend)
	} else {
		conv = nn.NewConv2D(inChannels, features, 1, 1, 1, 0, true, rng, backend)
	}
	return &Resize[B]{
		inChannels: inChannels,
		features:   features,
		separable:  separable,
		conv:       conv,
	}, nil
}

// Forward resizes x to height x width and projects it to Features channels.
// An input already at the target size is not interpolated.
func (r *Resize[B]) Forward(x *tensor.Tensor[float32, B], height, width int) (*tensor.Tensor[float32, B], error) {
	shape := x.Shape()
	if len(shape) != 4 {
		return nil, fmt.Errorf("resize: %w, got %v", ErrRank, shape)
	}
	if shape[3] != r.inChannels {
		return nil, fmt.Errorf("resize: %w: expected %d input channels, got %d", ErrChannels, r.inChannels, shape[3])
	}
	if height <= 0 || width <= 0 {
		return nil, fmt.Errorf("%w: resize target %dx%d", ErrConfig, height, width)
	}
	if shape[1] != height || shape[2] != width {
		x = x.ResizeBilinear(height, width)
	}
	return r.conv.Forward(x), nil
}

// InChannels returns the expected input channel count.
func (r *Resize[B]) InChannels() int { return r.inChannels }

// Features returns the output channel count.
func (r *Resize[B]) Features() int { return r.features }

// Parameters returns the projection weights.
func (r *Resize[B]) Parameters() []*nn.Parameter[B] {
	return r.conv.Parameters()
}

// StateDict returns the projection weights under "conv.".
func (r *Resize[B]) StateDict() map[string]*tensor.RawTensor {
	sd := make(map[string]*tensor.RawTensor)
	nn.PrefixStateDict(sd, "conv", r.conv.StateDict())
	return sd
}

// LoadStateDict restores the projection weights.
func (r *Resize[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	return r.conv.LoadStateDict(nn.SubStateDict(stateDict, "conv"))
}

func (r *Resize[B]) String() string {
	return fmt.Sprintf("Resize(%v)", r.conv)
}
