package optim_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/bifpn/internal/autodiff"
	"github.com/born-ml/bifpn/internal/backend/cpu"
	"github.com/born-ml/bifpn/internal/nn"
	"github.com/born-ml/bifpn/internal/optim"
	"github.com/born-ml/bifpn/internal/tensor"
)

type Backend = *autodiff.AutodiffBackend[*cpu.CPUBackend]

func newParam(t *testing.T, backend Backend, values ...float32) *nn.Parameter[Backend] {
	t.Helper()
	x, err := tensor.FromSlice(values, tensor.Shape{len(values)}, backend)
	require.NoError(t, err)
	return nn.NewParameter("x", x)
}

func gradFor(param *nn.Parameter[Backend], values ...float32) map[*tensor.RawTensor]*tensor.RawTensor {
	grad := tensor.MustNewRaw(tensor.Shape{len(values)}, tensor.Float32, tensor.CPU)
	copy(grad.AsFloat32(), values)
	return map[*tensor.RawTensor]*tensor.RawTensor{param.Tensor().Raw(): grad}
}

func TestSGD_SimpleUpdate(t *testing.T) {
	backend := autodiff.New(cpu.New())
	param := newParam(t, backend, 2)

	optimizer := optim.NewSGD([]*nn.Parameter[Backend]{param}, optim.SGDConfig{LR: 0.1}, backend)
	optimizer.Step(gradFor(param, 1))

	assert.InDelta(t, 1.9, param.Tensor().Data()[0], 1e-6)
	assert.Empty(t, optimizer.StateDict())
}

func TestSGD_WithMomentum(t *testing.T) {
	backend := autodiff.New(cpu.New())
	param := newParam(t, backend, 1)

	optimizer := optim.NewSGD([]*nn.Parameter[Backend]{param}, optim.SGDConfig{LR: 0.1, Momentum: 0.9}, backend)

	optimizer.Step(gradFor(param, 1)) // v = 1, x = 0.9
	assert.InDelta(t, 0.9, param.Tensor().Data()[0], 1e-6)

	optimizer.Step(gradFor(param, 1)) // v = 1.9, x = 0.71
	assert.InDelta(t, 0.71, param.Tensor().Data()[0], 1e-6)

	state := optimizer.StateDict()
	require.Contains(t, state, "velocity.0")
	assert.InDelta(t, 1.9, state["velocity.0"].AsFloat32()[0], 1e-6)
}

func TestSGD_SkipsMissingGradients(t *testing.T) {
	backend := autodiff.New(cpu.New())
	a := newParam(t, backend, 1)
	b := newParam(t, backend, 5)

	optimizer := optim.NewSGD([]*nn.Parameter[Backend]{a, b}, optim.SGDConfig{LR: 1}, backend)
	optimizer.Step(gradFor(a, 1))

	assert.Equal(t, float32(0), a.Tensor().Data()[0])
	assert.Equal(t, float32(5), b.Tensor().Data()[0])
}

func TestAdam_FirstStep(t *testing.T) {
	backend := autodiff.New(cpu.New())
	param := newParam(t, backend, 1, 1)

	optimizer := optim.NewAdam([]*nn.Parameter[Backend]{param}, optim.AdamConfig{LR: 0.01}, backend)
	optimizer.Step(gradFor(param, 3, -0.5))

	// After bias correction the first step moves each weight by ~lr*sign(g).
	assert.InDeltaSlice(t, []float32{0.99, 1.01}, param.Tensor().Data(), 1e-5)
	assert.Equal(t, 1, optimizer.GetTimestep())
}

func TestAdam_StateDictRoundTrip(t *testing.T) {
	backend := autodiff.New(cpu.New())
	p1 := newParam(t, backend, 1, 2)
	p2 := newParam(t, backend, 1, 2)

	a1 := optim.NewAdam([]*nn.Parameter[Backend]{p1}, optim.AdamConfig{}, backend)
	a1.Step(gradFor(p1, 1, 1))
	a1.Step(gradFor(p1, 0.5, -1))

	a2 := optim.NewAdam([]*nn.Parameter[Backend]{p2}, optim.AdamConfig{}, backend)
	require.NoError(t, a2.LoadStateDict(a1.StateDict()))
	assert.Equal(t, 2, a2.GetTimestep())

	// Same state and same starting weights give identical updates.
	copy(p2.Tensor().Data(), p1.Tensor().Data())
	a1.Step(gradFor(p1, 0.3, 0.3))
	a2.Step(gradFor(p2, 0.3, 0.3))
	assert.Equal(t, p1.Tensor().Data(), p2.Tensor().Data())

	bad := a1.StateDict()
	bad["m.0"] = tensor.MustNewRaw(tensor.Shape{3}, tensor.Float32, tensor.CPU)
	assert.ErrorContains(t, a2.LoadStateDict(bad), "shape mismatch")
	assert.Error(t, a2.LoadStateDict(map[string]*tensor.RawTensor{}))
}

func TestNew(t *testing.T) {
	backend := autodiff.New(cpu.New())
	params := []*nn.Parameter[Backend]{newParam(t, backend, 1)}

	sgd, err := optim.New("SGD", params, 0.05, backend)
	require.NoError(t, err)
	assert.IsType(t, &optim.SGD[Backend]{}, sgd)
	assert.InDelta(t, 0.05, sgd.GetLR(), 1e-9)

	adam, err := optim.New(optim.NameAdam, params, 0, backend)
	require.NoError(t, err)
	assert.InDelta(t, 0.001, adam.GetLR(), 1e-9)

	adam.SetLR(0.5)
	assert.InDelta(t, 0.5, adam.GetLR(), 1e-9)

	_, err = optim.New("rmsprop", params, 0.1, backend)
	assert.ErrorContains(t, err, "unknown optimizer")
}

// Minimizes Σ(x - 3)² end to end through the autodiff tape.
func TestOptimizersConverge(t *testing.T) {
	for _, name := range []string{optim.NameSGD, optim.NameAdam} {
		t.Run(name, func(t *testing.T) {
			backend := autodiff.New(cpu.New())
			param := newParam(t, backend, 0, 10, -4)
			target := tensor.Full[float32](tensor.Shape{3}, 3, backend)

			optimizer, err := optim.New(name, []*nn.Parameter[Backend]{param}, 0.1, backend)
			require.NoError(t, err)

			backend.Tape().StartRecording()
			for i := 0; i < 500; i++ {
				backend.Tape().Clear()
				diff := param.Tensor().Sub(target)
				loss := diff.Mul(diff).Sum()
				optimizer.Step(autodiff.Backward(loss, backend))
				optimizer.ZeroGrad()
			}

			assert.InDeltaSlice(t, []float32{3, 3, 3}, param.Tensor().Data(), 5e-2)
		})
	}
}
