package tensor

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRawTensor(t *testing.T) {
	raw, err := NewRaw(Shape{2, 3}, Float32, CPU)
	require.NoError(t, err)
	assert.Equal(t, 24, raw.ByteSize())
	assert.Equal(t, []int{3, 1}, raw.Strides())

	data := raw.AsFloat32()
	data[4] = 7

	clone := raw.Clone()
	clone.AsFloat32()[4] = 1
	assert.Equal(t, float32(7), raw.AsFloat32()[4], "clone must not alias")

	reshaped, err := raw.Reshaped(Shape{3, 2})
	require.NoError(t, err)
	assert.Equal(t, float32(7), reshaped.AsFloat32()[4])

	_, err = raw.Reshaped(Shape{4})
	require.Error(t, err)

	_, err = NewRaw(Shape{0, 3}, Float32, CPU)
	require.Error(t, err)

	assert.Panics(t, func() { raw.AsFloat64() })
}

func TestRandNormalSeeded(t *testing.T) {
	var b nopBackend
	a := RandNormal[float32](Shape{16}, 0, 0.05, rand.New(rand.NewSource(7)), b)
	c := RandNormal[float32](Shape{16}, 0, 0.05, rand.New(rand.NewSource(7)), b)
	assert.Equal(t, a.Data(), c.Data())

	u := RandUniform[float64](Shape{64}, -1, 1, rand.New(rand.NewSource(1)), b)
	for _, v := range u.Data() {
		assert.GreaterOrEqual(t, v, -1.0)
		assert.Less(t, v, 1.0)
	}
}

func TestTensorAccessors(t *testing.T) {
	var b nopBackend
	x, err := FromSlice([]float32{1, 2, 3, 4, 5, 6}, Shape{2, 3}, b)
	require.NoError(t, err)

	assert.Equal(t, float32(6), x.At(1, 2))
	x.Set(9, 0, 1)
	assert.Equal(t, float32(9), x.Data()[1])
	assert.Panics(t, func() { x.At(2, 0) })
	assert.Panics(t, func() { x.Item() })

	_, err = FromSlice([]float32{1, 2}, Shape{3}, b)
	require.Error(t, err)

	full := Full[float64](Shape{2}, 2.5, b)
	assert.Equal(t, []float64{2.5, 2.5}, full.Data())
	assert.Equal(t, "Tensor[float64][2] on CPU", full.String())
}

// nopBackend satisfies Backend for tests that only exercise creation and
// accessors; every compute method panics.
type nopBackend struct{}

func (nopBackend) Add(_, _ *RawTensor) *RawTensor                         { panic("nop") }
func (nopBackend) Sub(_, _ *RawTensor) *RawTensor                         { panic("nop") }
func (nopBackend) Mul(_, _ *RawTensor) *RawTensor                         { panic("nop") }
func (nopBackend) Div(_, _ *RawTensor) *RawTensor                         { panic("nop") }
func (nopBackend) AddScalar(_ *RawTensor, _ float64) *RawTensor           { panic("nop") }
func (nopBackend) MulScalar(_ *RawTensor, _ float64) *RawTensor           { panic("nop") }
func (nopBackend) ReLU(_ *RawTensor) *RawTensor                           { panic("nop") }
func (nopBackend) Rsqrt(_ *RawTensor) *RawTensor                          { panic("nop") }
func (nopBackend) Sum(_ *RawTensor) *RawTensor                            { panic("nop") }
func (nopBackend) SumDim(_ *RawTensor, _ int, _ bool) *RawTensor          { panic("nop") }
func (nopBackend) MeanDim(_ *RawTensor, _ int, _ bool) *RawTensor         { panic("nop") }
func (nopBackend) Reshape(_ *RawTensor, _ Shape) *RawTensor               { panic("nop") }
func (nopBackend) Narrow(_ *RawTensor, _, _, _ int) *RawTensor            { panic("nop") }
func (nopBackend) Conv2D(_, _ *RawTensor, _, _ int) *RawTensor            { panic("nop") }
func (nopBackend) DepthwiseConv2D(_, _ *RawTensor, _, _ int) *RawTensor   { panic("nop") }
func (nopBackend) ResizeBilinear(_ *RawTensor, _, _ int) *RawTensor       { panic("nop") }
func (nopBackend) ResizeBilinearBackward(_ *RawTensor, _, _ int) *RawTensor { panic("nop") }
func (nopBackend) Conv2DInputBackward(_, _, _ *RawTensor, _, _ int) *RawTensor {
	panic("nop")
}
func (nopBackend) Conv2DKernelBackward(_, _, _ *RawTensor, _, _ int) *RawTensor {
	panic("nop")
}
func (nopBackend) DepthwiseConv2DInputBackward(_, _, _ *RawTensor, _, _ int) *RawTensor {
	panic("nop")
}
func (nopBackend) DepthwiseConv2DKernelBackward(_, _, _ *RawTensor, _, _ int) *RawTensor {
	panic("nop")
}
func (nopBackend) Name() string   { return "nop" }
func (nopBackend) Device() Device { return CPU }
