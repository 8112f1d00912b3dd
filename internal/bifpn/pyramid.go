package bifpn

import (
	"fmt"

	"github.com/born-ml/bifpn/internal/tensor"
)

// Level indexes a pyramid slot. P3 is the finest resolution.
type Level int

// Pyramid levels.
const (
	P3 Level = iota
	P4
	P5
	P6
	P7
)

// NumLevels is the number of levels in a Pyramid.
const NumLevels = 5

// String returns the conventional level name ("P3".."P7").
func (l Level) String() string {
	if l < P3 || l > P7 {
		return fmt.Sprintf("Level(%d)", int(l))
	}
	return fmt.Sprintf("P%d", int(l)+3)
}

// Pyramid holds five NHWC feature maps ordered from P3 (finest) to P7
// (coarsest).
type Pyramid[B tensor.Backend] [NumLevels]*tensor.Tensor[float32, B]

// NewPyramid builds a Pyramid from exactly five maps.
func NewPyramid[B tensor.Backend](maps []*tensor.Tensor[float32, B]) (Pyramid[B], error) {
	var p Pyramid[B]
	if len(maps) != NumLevels {
		return p, fmt.Errorf("%w: expected %d feature maps, got %d", ErrPyramidLevels, NumLevels, len(maps))
	}
	copy(p[:], maps)
	return p, nil
}

// Slice returns the levels as a slice, P3 first.
func (p Pyramid[B]) Slice() []*tensor.Tensor[float32, B] {
	return append([]*tensor.Tensor[float32, B](nil), p[:]...)
}

// Shapes returns the shape of every level.
func (p Pyramid[B]) Shapes() []tensor.Shape {
	shapes := make([]tensor.Shape, NumLevels)
	for i, m := range p {
		if m != nil {
			shapes[i] = m.Shape()
		}
	}
	return shapes
}

// Validate checks that every level is a non-nil 4-D map, all levels share
// batch size and channel count, and each level halves the resolution of
// the one before it (floor or ceil rounding).
// It returns the shared channel count.
func (p Pyramid[B]) Validate() (int, error) {
	if err := p.validateLayout(); err != nil {
		return 0, err
	}
	channels := p[P3].Shape()[3]
	for l := P4; l <= P7; l++ {
		if c := p[l].Shape()[3]; c != channels {
			return 0, fmt.Errorf("%w: %s has %d channels, %s has %d", ErrChannels, l, c, P3, channels)
		}
	}
	return channels, nil
}

// validateLayout runs every check of Validate except channel equality.
func (p Pyramid[B]) validateLayout() error {
	for l := P3; l <= P7; l++ {
		m := p[l]
		if m == nil {
			return fmt.Errorf("%w: %s is nil", ErrPyramidLevels, l)
		}
		if len(m.Shape()) != 4 {
			return fmt.Errorf("%w: %s has shape %v", ErrRank, l, m.Shape())
		}
	}
	first := p[P3].Shape()
	for l := P4; l <= P7; l++ {
		prev, cur := p[l-1].Shape(), p[l].Shape()
		if cur[0] != first[0] {
			return fmt.Errorf("%w: %s batch %d differs from %s batch %d", ErrSpatialMismatch, l, cur[0], P3, first[0])
		}
		if !halved(prev[1], cur[1]) || !halved(prev[2], cur[2]) {
			return fmt.Errorf("%w: %s (%dx%d) is not half of %s (%dx%d)",
				ErrPyramidLevels, l, cur[1], cur[2], l-1, prev[1], prev[2])
		}
	}
	return nil
}

// halved reports whether cur is prev downsampled by 2 with either floor or
// ceil rounding. A size of 1 may repeat; 0 never appears.
func halved(prev, cur int) bool {
	return cur >= 1 && (cur == prev/2 || cur == (prev+1)/2)
}
