package nn_test

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/bifpn/internal/autodiff"
	"github.com/born-ml/bifpn/internal/backend/cpu"
	"github.com/born-ml/bifpn/internal/nn"
	"github.com/born-ml/bifpn/internal/tensor"
)

type Backend = *autodiff.AutodiffBackend[*cpu.CPUBackend]

func newBackend() Backend {
	return autodiff.New(cpu.New())
}

func TestParameter(t *testing.T) {
	backend := newBackend()
	data, err := tensor.FromSlice([]float32{1, 2, 3}, tensor.Shape{3}, backend)
	require.NoError(t, err)

	param := nn.NewParameter("test_param", data)
	assert.Equal(t, "test_param", param.Name())
	assert.Same(t, data, param.Tensor())
	assert.Nil(t, param.Grad())

	grad := tensor.Ones[float32](tensor.Shape{3}, backend)
	param.SetGrad(grad)
	assert.Same(t, grad, param.Grad())

	param.ZeroGrad()
	assert.Nil(t, param.Grad())
}

func TestCollectGrads(t *testing.T) {
	backend := newBackend()
	backend.Tape().StartRecording()

	a := nn.NewParameter("a", tensor.Full[float32](tensor.Shape{2}, 3, backend))
	b := nn.NewParameter("b", tensor.Full[float32](tensor.Shape{2}, 5, backend))
	loss := a.Tensor().Mul(a.Tensor()).Sum()

	nn.CollectGrads([]*nn.Parameter[Backend]{a, b}, autodiff.Backward(loss, backend))
	require.NotNil(t, a.Grad())
	assert.Equal(t, []float32{6, 6}, a.Grad().Data())
	assert.Nil(t, b.Grad(), "b does not contribute to the loss")
}

func TestXavierBounds(t *testing.T) {
	backend := cpu.New()
	rng := rand.New(rand.NewSource(7))

	w := nn.Xavier(64, 64, tensor.Shape{64, 64}, rng, backend)
	bound := float32(math.Sqrt(6.0 / 128))
	for _, v := range w.Data() {
		assert.LessOrEqual(t, v, bound)
		assert.GreaterOrEqual(t, v, -bound)
	}

	again := nn.Xavier(64, 64, tensor.Shape{64, 64}, rand.New(rand.NewSource(7)), backend)
	assert.Equal(t, w.Data(), again.Data(), "same seed, same weights")
}

func TestConv2D_ForwardShape(t *testing.T) {
	backend := cpu.New()
	conv := nn.NewConv2D(3, 8, 3, 3, 2, 1, true, nil, backend)

	input := tensor.Zeros[float32](tensor.Shape{2, 16, 12, 3}, backend)
	output := conv.Forward(input)
	assert.Equal(t, tensor.Shape{2, 8, 6, 8}, output.Shape())
	assert.Equal(t, [2]int{8, 6}, conv.ComputeOutputSize(16, 12))
	assert.Len(t, conv.Parameters(), 2)
	assert.Equal(t, tensor.Shape{3, 3, 3, 8}, conv.Weight().Tensor().Shape())

	assert.Panics(t, func() { conv.Forward(tensor.Zeros[float32](tensor.Shape{1, 4, 4, 2}, backend)) })
	assert.Panics(t, func() { nn.NewConv2D(0, 8, 1, 1, 1, 0, true, nil, backend) })
}

func TestConv2D_PointwiseValues(t *testing.T) {
	backend := cpu.New()
	conv := nn.NewConv2D(2, 1, 1, 1, 1, 0, true, nil, backend)

	copy(conv.Weight().Tensor().Data(), []float32{2, -1})
	conv.Bias().Tensor().Data()[0] = 0.5

	input, _ := tensor.FromSlice([]float32{1, 1, 3, 2}, tensor.Shape{1, 1, 2, 2}, backend)
	output := conv.Forward(input)
	assert.Equal(t, tensor.Shape{1, 1, 2, 1}, output.Shape())
	assert.Equal(t, []float32{1.5, 4.5}, output.Data())
}

func TestSeparableConv2D(t *testing.T) {
	backend := cpu.New()
	sep := nn.NewSeparableConv2D(2, 3, 1, 1, 0, true, nil, backend)
	require.Len(t, sep.Parameters(), 3)

	// Depthwise scales channels by (2, -1); pointwise mixes them.
	copy(sep.Parameters()[0].Tensor().Data(), []float32{2, -1})
	copy(sep.Parameters()[1].Tensor().Data(), []float32{
		1, 0, 1,
		0, 1, 1,
	})
	copy(sep.Parameters()[2].Tensor().Data(), []float32{0, 0, 10})

	input, _ := tensor.FromSlice([]float32{3, 4}, tensor.Shape{1, 1, 1, 2}, backend)
	output := sep.Forward(input)
	assert.Equal(t, tensor.Shape{1, 1, 1, 3}, output.Shape())
	assert.Equal(t, []float32{6, -4, 12}, output.Data())
}

func TestBatchNorm2D_Training(t *testing.T) {
	backend := cpu.New()
	bn := nn.NewBatchNorm2D(2, 0.9, 1e-5, backend)
	bn.SetTraining(true)
	require.True(t, bn.Training())

	// Channel 0: 1..4, channel 1: 10, 20, 30, 40.
	input, _ := tensor.FromSlice([]float32{1, 10, 2, 20, 3, 30, 4, 40}, tensor.Shape{1, 2, 2, 2}, backend)
	output := bn.Forward(input)
	require.Equal(t, input.Shape(), output.Shape())

	for c := 0; c < 2; c++ {
		var mean, sq float64
		for i := 0; i < 4; i++ {
			mean += float64(output.Data()[i*2+c])
		}
		mean /= 4
		for i := 0; i < 4; i++ {
			d := float64(output.Data()[i*2+c]) - mean
			sq += d * d
		}
		assert.InDelta(t, 0, mean, 1e-5, "channel %d mean", c)
		assert.InDelta(t, 1, sq/4, 1e-3, "channel %d variance", c)
	}

	// running = 0.9*init + 0.1*batch
	assert.InDeltaSlice(t, []float32{0.25, 2.5}, bn.RunningMean().Data(), 1e-5)
	assert.InDeltaSlice(t, []float32{0.9 + 0.1*1.25, 0.9 + 0.1*125}, bn.RunningVar().Data(), 1e-4)
}

func TestBatchNorm2D_Inference(t *testing.T) {
	backend := cpu.New()
	bn := nn.NewBatchNorm2D(1, nn.DefaultBNMomentum, nn.DefaultBNEpsilon, backend)

	bn.RunningMean().Data()[0] = 2
	bn.RunningVar().Data()[0] = 4 - float32(nn.DefaultBNEpsilon)
	bn.Parameters()[0].Tensor().Data()[0] = 3   // gamma
	bn.Parameters()[1].Tensor().Data()[0] = 0.5 // beta

	input, _ := tensor.FromSlice([]float32{2, 4, 0}, tensor.Shape{1, 1, 3, 1}, backend)
	output := bn.Forward(input)
	assert.InDeltaSlice(t, []float32{0.5, 3.5, -2.5}, output.Data(), 1e-5)

	// Inference leaves running statistics untouched.
	assert.Equal(t, float32(2), bn.RunningMean().Data()[0])
}

func TestStateDictRoundTrip(t *testing.T) {
	backend := cpu.New()
	rng := rand.New(rand.NewSource(1))

	src := nn.NewSeparableConv2D(4, 4, 1, 1, 0, true, rng, backend)
	dst := nn.NewSeparableConv2D(4, 4, 1, 1, 0, true, rng, backend)
	require.NotEqual(t, src.Parameters()[0].Tensor().Data(), dst.Parameters()[0].Tensor().Data())

	full := make(map[string]*tensor.RawTensor)
	nn.PrefixStateDict(full, "conv", src.StateDict())
	assert.Equal(t, []string{"conv.bias", "conv.depthwise", "conv.pointwise"}, nn.SortedKeys(full))

	require.NoError(t, dst.LoadStateDict(nn.SubStateDict(full, "conv")))
	for i, p := range dst.Parameters() {
		assert.Equal(t, src.Parameters()[i].Tensor().Data(), p.Tensor().Data())
	}

	delete(full, "conv.pointwise")
	assert.ErrorContains(t, dst.LoadStateDict(nn.SubStateDict(full, "conv")), "missing pointwise")

	bn := nn.NewBatchNorm2D(3, 0.99, 1e-3, backend)
	bad := bn.StateDict()
	bad["gamma"] = tensor.MustNewRaw(tensor.Shape{4}, tensor.Float32, tensor.CPU)
	assert.ErrorContains(t, bn.LoadStateDict(bad), "shape mismatch")
}

func TestMSELoss(t *testing.T) {
	backend := newBackend()
	backend.Tape().StartRecording()

	pred, _ := tensor.FromSlice([]float32{1, 2, 3, 4}, tensor.Shape{2, 2}, backend)
	target, _ := tensor.FromSlice([]float32{1, 0, 3, 0}, tensor.Shape{2, 2}, backend)

	loss := nn.NewMSELoss[Backend]().Forward(pred, target)
	assert.Empty(t, loss.Shape())
	assert.InDelta(t, 5.0, loss.Item(), 1e-6) // (4 + 16) / 4

	grads := autodiff.Backward(loss, backend)
	// d/dp mean((p-t)²) = 2(p-t)/n
	assert.InDeltaSlice(t, []float32{0, 1, 0, 2}, grads[pred.Raw()].AsFloat32(), 1e-6)

	assert.Panics(t, func() {
		nn.NewMSELoss[Backend]().Forward(pred, tensor.Zeros[float32](tensor.Shape{4}, backend))
	})
}

func TestCountParameters(t *testing.T) {
	backend := cpu.New()
	conv := nn.NewConv2D(4, 8, 1, 1, 1, 0, true, nil, backend)
	assert.Equal(t, 4*8+8, nn.CountParameters(conv.Parameters()))
}
