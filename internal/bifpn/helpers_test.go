package bifpn_test

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/born-ml/bifpn/internal/autodiff"
	"github.com/born-ml/bifpn/internal/backend/cpu"
	"github.com/born-ml/bifpn/internal/bifpn"
	"github.com/born-ml/bifpn/internal/tensor"
)

type (
	CPU      = *cpu.CPUBackend
	Autodiff = *autodiff.AutodiffBackend[*cpu.CPUBackend]
)

// sizes for a small five-level pyramid, P3 first.
var smallSizes = []int{16, 8, 4, 2, 1}

func smallConfig() bifpn.Config {
	cfg := bifpn.DefaultConfig()
	cfg.Features = 8
	cfg.Blocks = 2
	cfg.Seed = 1
	return cfg
}

func randMap[B tensor.Backend](rng *rand.Rand, backend B, shape ...int) *tensor.Tensor[float32, B] {
	return tensor.RandNormal[float32](tensor.Shape(shape), 0, 1, rng, backend)
}

// randPyramid builds a pyramid with square levels of the given sizes and
// per-level channel counts.
func randPyramid[B tensor.Backend](t *testing.T, rng *rand.Rand, backend B, batch int, sizes, channels []int) bifpn.Pyramid[B] {
	t.Helper()
	maps := make([]*tensor.Tensor[float32, B], len(sizes))
	for i, s := range sizes {
		maps[i] = randMap(rng, backend, batch, s, s, channels[i])
	}
	p, err := bifpn.NewPyramid(maps)
	require.NoError(t, err)
	return p
}

func uniform(n, v int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func requireFinite(t *testing.T, data []float32) {
	t.Helper()
	for i, v := range data {
		f := float64(v)
		require.False(t, math.IsNaN(f) || math.IsInf(f, 0), "element %d is %v", i, v)
	}
}
