package bifpn_test

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/bifpn/internal/backend/cpu"
	"github.com/born-ml/bifpn/internal/bifpn"
	"github.com/born-ml/bifpn/internal/tensor"
)

func TestLevelString(t *testing.T) {
	assert.Equal(t, "P3", bifpn.P3.String())
	assert.Equal(t, "P7", bifpn.P7.String())
	assert.Equal(t, "Level(9)", bifpn.Level(9).String())
}

func TestNewPyramid_Length(t *testing.T) {
	backend := cpu.New()
	m := tensor.Zeros[float32](tensor.Shape{1, 2, 2, 4}, backend)

	for _, n := range []int{0, 4, 6} {
		maps := make([]*tensor.Tensor[float32, CPU], n)
		for i := range maps {
			maps[i] = m
		}
		_, err := bifpn.NewPyramid(maps)
		assert.ErrorIs(t, err, bifpn.ErrPyramidLevels, "length %d", n)
	}
}

func TestPyramidValidate(t *testing.T) {
	backend := cpu.New()
	rng := rand.New(rand.NewSource(1))

	p := randPyramid(t, rng, backend, 2, smallSizes, uniform(5, 4))
	channels, err := p.Validate()
	require.NoError(t, err)
	assert.Equal(t, 4, channels)

	t.Run("nil level", func(t *testing.T) {
		bad := p
		bad[bifpn.P5] = nil
		_, err := bad.Validate()
		assert.ErrorIs(t, err, bifpn.ErrPyramidLevels)
	})
	t.Run("rank", func(t *testing.T) {
		bad := p
		bad[bifpn.P4] = tensor.Zeros[float32](tensor.Shape{8, 8, 4}, backend)
		_, err := bad.Validate()
		assert.ErrorIs(t, err, bifpn.ErrRank)
	})
	t.Run("channels", func(t *testing.T) {
		bad := p
		bad[bifpn.P6] = tensor.Zeros[float32](tensor.Shape{2, 2, 2, 5}, backend)
		_, err := bad.Validate()
		assert.ErrorIs(t, err, bifpn.ErrChannels)
	})
	t.Run("batch", func(t *testing.T) {
		bad := p
		bad[bifpn.P7] = tensor.Zeros[float32](tensor.Shape{3, 1, 1, 4}, backend)
		_, err := bad.Validate()
		assert.ErrorIs(t, err, bifpn.ErrSpatialMismatch)
	})
	t.Run("level not halved", func(t *testing.T) {
		bad := p
		bad[bifpn.P5] = tensor.Zeros[float32](tensor.Shape{2, 8, 8, 4}, backend)
		_, err := bad.Validate()
		assert.ErrorIs(t, err, bifpn.ErrPyramidLevels)
	})
	t.Run("growing resolution", func(t *testing.T) {
		bad := p
		bad[bifpn.P6] = tensor.Zeros[float32](tensor.Shape{2, 8, 8, 4}, backend)
		_, err := bad.Validate()
		assert.ErrorIs(t, err, bifpn.ErrPyramidLevels)
	})
}

func TestPyramidValidate_Halving(t *testing.T) {
	backend := cpu.New()
	rng := rand.New(rand.NewSource(3))

	tests := []struct {
		name  string
		sizes []int
		ok    bool
	}{
		{"exact halves", []int{16, 8, 4, 2, 1}, true},
		{"ceil rounding", []int{13, 7, 4, 2, 1}, true},
		{"floor rounding", []int{13, 6, 3, 1, 1}, true},
		{"ones repeat", []int{4, 2, 1, 1, 1}, true},
		{"equal sizes", []int{4, 4, 4, 4, 4}, false},
		{"skipped level", []int{16, 4, 2, 1, 1}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := randPyramid(t, rng, backend, 1, tt.sizes, uniform(5, 2))
			_, err := p.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, bifpn.ErrPyramidLevels)
			}
		})
	}
}

func TestPyramidShapesAndSlice(t *testing.T) {
	backend := cpu.New()
	p := randPyramid(t, rand.New(rand.NewSource(2)), backend, 1, smallSizes, uniform(5, 3))

	shapes := p.Shapes()
	require.Len(t, shapes, bifpn.NumLevels)
	assert.Equal(t, tensor.Shape{1, 16, 16, 3}, shapes[bifpn.P3])
	assert.Equal(t, tensor.Shape{1, 1, 1, 3}, shapes[bifpn.P7])

	s := p.Slice()
	s[0] = nil
	assert.NotNil(t, p[bifpn.P3], "Slice returns a copy")
}
