package cpu

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/bifpn/internal/tensor"
)

func raw32(t *testing.T, shape tensor.Shape, data ...float32) *tensor.RawTensor {
	t.Helper()
	r, err := tensor.NewRaw(shape, tensor.Float32, tensor.CPU)
	require.NoError(t, err)
	copy(r.AsFloat32(), data)
	return r
}

func randRaw64(rng *rand.Rand, shape tensor.Shape) *tensor.RawTensor {
	r := tensor.MustNewRaw(shape, tensor.Float64, tensor.CPU)
	for i := range r.AsFloat64() {
		r.AsFloat64()[i] = rng.NormFloat64()
	}
	return r
}

func dot(a, b *tensor.RawTensor) float64 {
	var s float64
	for i, v := range a.AsFloat64() {
		s += v * b.AsFloat64()[i]
	}
	return s
}

func TestBinaryBroadcast(t *testing.T) {
	backend := New()

	a := raw32(t, tensor.Shape{2, 3}, 1, 2, 3, 4, 5, 6)
	b := raw32(t, tensor.Shape{3}, 10, 20, 30)

	assert.Equal(t, []float32{11, 22, 33, 14, 25, 36}, backend.Add(a, b).AsFloat32())
	assert.Equal(t, []float32{-9, -18, -27, -6, -15, -24}, backend.Sub(a, b).AsFloat32())

	col := raw32(t, tensor.Shape{2, 1}, 2, 4)
	assert.Equal(t, []float32{2, 4, 6, 16, 20, 24}, backend.Mul(a, col).AsFloat32())

	scalar := raw32(t, tensor.Shape{}, 2)
	assert.Equal(t, []float32{0.5, 1, 1.5, 2, 2.5, 3}, backend.Div(a, scalar).AsFloat32())

	// Inputs are never modified.
	assert.Equal(t, []float32{1, 2, 3, 4, 5, 6}, a.AsFloat32())

	assert.Panics(t, func() { backend.Add(a, raw32(t, tensor.Shape{2})) })
}

func TestUnaryOps(t *testing.T) {
	backend := New()
	x := raw32(t, tensor.Shape{4}, -2, -0.5, 0, 4)

	assert.Equal(t, []float32{0, 0, 0, 4}, backend.ReLU(x).AsFloat32())
	assert.Equal(t, []float32{0, 1.5, 2, 6}, backend.AddScalar(x, 2).AsFloat32())
	assert.Equal(t, []float32{-4, -1, 0, 8}, backend.MulScalar(x, 2).AsFloat32())
	assert.InDelta(t, 0.5, backend.Rsqrt(x).AsFloat32()[3], 1e-6)
}

func TestReductions(t *testing.T) {
	backend := New()
	x := raw32(t, tensor.Shape{2, 3}, 1, 2, 3, 4, 5, 6)

	sum := backend.Sum(x)
	assert.Equal(t, 0, len(sum.Shape()))
	assert.Equal(t, float32(21), sum.AsFloat32()[0])

	rows := backend.SumDim(x, 1, false)
	assert.Equal(t, tensor.Shape{2}, rows.Shape())
	assert.Equal(t, []float32{6, 15}, rows.AsFloat32())

	cols := backend.MeanDim(x, 0, true)
	assert.Equal(t, tensor.Shape{1, 3}, cols.Shape())
	assert.Equal(t, []float32{2.5, 3.5, 4.5}, cols.AsFloat32())

	last := backend.MeanDim(x, -1, true)
	assert.Equal(t, tensor.Shape{2, 1}, last.Shape())
	assert.Equal(t, []float32{2, 5}, last.AsFloat32())
}

func TestReshapeAndNarrow(t *testing.T) {
	backend := New()
	x := raw32(t, tensor.Shape{2, 3}, 1, 2, 3, 4, 5, 6)

	r := backend.Reshape(x, tensor.Shape{3, 2})
	assert.Equal(t, tensor.Shape{3, 2}, r.Shape())
	assert.Panics(t, func() { backend.Reshape(x, tensor.Shape{4}) })

	n := backend.Narrow(x, 1, 1, 2)
	assert.Equal(t, tensor.Shape{2, 2}, n.Shape())
	assert.Equal(t, []float32{2, 3, 5, 6}, n.AsFloat32())

	n0 := backend.Narrow(x, 0, 1, 1)
	assert.Equal(t, []float32{4, 5, 6}, n0.AsFloat32())

	assert.Panics(t, func() { backend.Narrow(x, 1, 2, 2) })
}

// naiveConv2D is a direct NHWC/HWIO convolution used as a reference.
func naiveConv2D(in, k *tensor.RawTensor, stride, padding int) []float64 {
	is, ks := in.Shape(), k.Shape()
	n, h, w, cin := is[0], is[1], is[2], is[3]
	kh, kw, cout := ks[0], ks[1], ks[3]
	hOut := (h+2*padding-kh)/stride + 1
	wOut := (w+2*padding-kw)/stride + 1
	x, kd := in.AsFloat64(), k.AsFloat64()

	out := make([]float64, n*hOut*wOut*cout)
	for b := 0; b < n; b++ {
		for oy := 0; oy < hOut; oy++ {
			for ox := 0; ox < wOut; ox++ {
				for co := 0; co < cout; co++ {
					var s float64
					for ky := 0; ky < kh; ky++ {
						for kx := 0; kx < kw; kx++ {
							iy, ix := oy*stride-padding+ky, ox*stride-padding+kx
							if iy < 0 || iy >= h || ix < 0 || ix >= w {
								continue
							}
							for ci := 0; ci < cin; ci++ {
								s += x[((b*h+iy)*w+ix)*cin+ci] * kd[((ky*kw+kx)*cin+ci)*cout+co]
							}
						}
					}
					out[((b*hOut+oy)*wOut+ox)*cout+co] = s
				}
			}
		}
	}
	return out
}

func TestConv2DMatchesNaive(t *testing.T) {
	backend := New()
	rng := rand.New(rand.NewSource(1))

	tests := []struct {
		name            string
		input, kernel   tensor.Shape
		stride, padding int
	}{
		{"pointwise", tensor.Shape{2, 4, 5, 3}, tensor.Shape{1, 1, 3, 6}, 1, 0},
		{"3x3 same", tensor.Shape{1, 5, 5, 2}, tensor.Shape{3, 3, 2, 4}, 1, 1},
		{"3x3 stride 2", tensor.Shape{2, 7, 6, 3}, tensor.Shape{3, 3, 3, 2}, 2, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := randRaw64(rng, tt.input)
			k := randRaw64(rng, tt.kernel)

			got := backend.Conv2D(in, k, tt.stride, tt.padding)
			want := naiveConv2D(in, k, tt.stride, tt.padding)
			require.Len(t, got.AsFloat64(), len(want))
			assert.InDeltaSlice(t, want, got.AsFloat64(), 1e-9)
		})
	}
}

// TestConv2DBackwardAdjoint checks ⟨conv(x), g⟩ == ⟨x, ∂x⟩ == ⟨k, ∂k⟩, which
// holds because convolution is linear in each argument.
func TestConv2DBackwardAdjoint(t *testing.T) {
	backend := New()
	rng := rand.New(rand.NewSource(2))

	for _, geom := range []struct{ stride, padding, k int }{{1, 0, 1}, {1, 1, 3}, {2, 1, 3}} {
		in := randRaw64(rng, tensor.Shape{2, 6, 5, 3})
		k := randRaw64(rng, tensor.Shape{geom.k, geom.k, 3, 4})
		out := backend.Conv2D(in, k, geom.stride, geom.padding)
		g := randRaw64(rng, out.Shape())

		lhs := dot(out, g)
		dx := backend.Conv2DInputBackward(in, k, g, geom.stride, geom.padding)
		dk := backend.Conv2DKernelBackward(in, k, g, geom.stride, geom.padding)

		assert.InDelta(t, lhs, dot(in, dx), 1e-8)
		assert.InDelta(t, lhs, dot(k, dk), 1e-8)
	}
}

func TestDepthwiseConv2D(t *testing.T) {
	backend := New()

	// 1×1 depthwise is a per-channel scale.
	in := raw32(t, tensor.Shape{1, 1, 2, 3}, 1, 2, 3, 4, 5, 6)
	k := raw32(t, tensor.Shape{1, 1, 3, 1}, 10, 100, -1)
	out := backend.DepthwiseConv2D(in, k, 1, 0)
	assert.Equal(t, tensor.Shape{1, 1, 2, 3}, out.Shape())
	assert.Equal(t, []float32{10, 200, -3, 40, 500, -6}, out.AsFloat32())

	assert.Panics(t, func() { backend.DepthwiseConv2D(in, raw32(t, tensor.Shape{1, 1, 3, 2}), 1, 0) })

	rng := rand.New(rand.NewSource(3))
	x := randRaw64(rng, tensor.Shape{2, 5, 4, 3})
	kk := randRaw64(rng, tensor.Shape{3, 3, 3, 1})
	y := backend.DepthwiseConv2D(x, kk, 1, 1)
	g := randRaw64(rng, y.Shape())

	lhs := dot(y, g)
	assert.InDelta(t, lhs, dot(x, backend.DepthwiseConv2DInputBackward(x, kk, g, 1, 1)), 1e-8)
	assert.InDelta(t, lhs, dot(kk, backend.DepthwiseConv2DKernelBackward(x, kk, g, 1, 1)), 1e-8)
}

func TestResizeBilinearUpsample(t *testing.T) {
	backend := New()
	x := raw32(t, tensor.Shape{1, 2, 2, 1}, 1, 2, 3, 4)

	out := backend.ResizeBilinear(x, 4, 4)
	require.Equal(t, tensor.Shape{1, 4, 4, 1}, out.Shape())

	// Reference values from tf.image.resize (bilinear, half-pixel centers).
	want := []float32{
		1, 1.25, 1.75, 2,
		1.5, 1.75, 2.25, 2.5,
		2.5, 2.75, 3.25, 3.5,
		3, 3.25, 3.75, 4,
	}
	assert.InDeltaSlice(t, want, out.AsFloat32(), 1e-6)
}

func TestResizeBilinearDownsample(t *testing.T) {
	backend := New()
	x := raw32(t, tensor.Shape{1, 1, 4, 2}, 0, 10, 2, 20, 4, 30, 6, 40)

	out := backend.ResizeBilinear(x, 1, 2)
	assert.Equal(t, tensor.Shape{1, 1, 2, 2}, out.Shape())
	assert.InDeltaSlice(t, []float32{1, 15, 5, 35}, out.AsFloat32(), 1e-6)

	same := backend.ResizeBilinear(x, 1, 4)
	assert.Equal(t, x.AsFloat32(), same.AsFloat32())
}

func TestResizeBilinearBackwardAdjoint(t *testing.T) {
	backend := New()
	rng := rand.New(rand.NewSource(4))

	for _, size := range [][4]int{{4, 4, 8, 8}, {8, 8, 4, 4}, {3, 5, 7, 2}} {
		x := randRaw64(rng, tensor.Shape{2, size[0], size[1], 3})
		y := backend.ResizeBilinear(x, size[2], size[3])
		g := randRaw64(rng, y.Shape())

		dx := backend.ResizeBilinearBackward(g, size[0], size[1])
		require.Equal(t, x.Shape(), dx.Shape())
		assert.InDelta(t, dot(y, g), dot(x, dx), 1e-9)
	}
}
