package bifpn_test

import (
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/bifpn/internal/autodiff"
	"github.com/born-ml/bifpn/internal/backend/cpu"
	"github.com/born-ml/bifpn/internal/bifpn"
	"github.com/born-ml/bifpn/internal/nn"
	"github.com/born-ml/bifpn/internal/optim"
	"github.com/born-ml/bifpn/internal/tensor"
)

func TestBiFPN_EndToEndDefault(t *testing.T) {
	if testing.Short() {
		t.Skip("full-size model")
	}
	backend := cpu.New()
	model, err := bifpn.New(bifpn.DefaultConfig(), backend)
	require.NoError(t, err)
	require.Len(t, model.Blocks(), 3)

	in := randPyramid(t, rand.New(rand.NewSource(20)), backend, 1, []int{64, 32, 16, 8, 4}, uniform(5, 64))
	out, err := model.Forward(in)
	require.NoError(t, err)

	want := []tensor.Shape{
		{1, 64, 64, 64},
		{1, 32, 32, 64},
		{1, 16, 16, 64},
		{1, 8, 8, 64},
		{1, 4, 4, 64},
	}
	if diff := cmp.Diff(want, out.Shapes()); diff != "" {
		t.Errorf("output shapes (-want +got):\n%s", diff)
	}
}

func TestBiFPN_BatchedSmall(t *testing.T) {
	backend := cpu.New()
	model, err := bifpn.New(smallConfig(), backend)
	require.NoError(t, err)

	in := randPyramid(t, rand.New(rand.NewSource(21)), backend, 3, smallSizes, uniform(5, 8))
	out, err := model.Forward(in)
	require.NoError(t, err)
	if diff := cmp.Diff(in.Shapes(), out.Shapes()); diff != "" {
		t.Errorf("output shapes (-in +out):\n%s", diff)
	}
}

func TestBiFPN_StackingEquivalence(t *testing.T) {
	backend := cpu.New()
	rng := rand.New(rand.NewSource(22))
	cfg := smallConfig()

	b1, err := bifpn.NewBlock(cfg, rng, backend)
	require.NoError(t, err)
	b2, err := bifpn.NewBlock(cfg, rng, backend)
	require.NoError(t, err)
	model, err := bifpn.NewBiFPNFromBlocks([]*bifpn.Block[CPU]{b1, b2})
	require.NoError(t, err)
	assert.Equal(t, 2, model.Config().Blocks)
	assert.Equal(t, cfg.Features, model.Config().Features)

	in := randPyramid(t, rng, backend, 1, smallSizes, uniform(5, 8))
	mid, err := b1.Forward(in)
	require.NoError(t, err)
	manual, err := b2.Forward(mid)
	require.NoError(t, err)

	stacked, err := model.Forward(in)
	require.NoError(t, err)
	for l := bifpn.P3; l <= bifpn.P7; l++ {
		if diff := cmp.Diff(manual[l].Data(), stacked[l].Data()); diff != "" {
			t.Errorf("%s differs (-manual +stacked):\n%s", l, diff)
		}
	}
}

func TestBiFPN_ConstructionErrors(t *testing.T) {
	backend := cpu.New()

	cfg := smallConfig()
	cfg.Blocks = 0
	_, err := bifpn.New(cfg, backend)
	assert.ErrorIs(t, err, bifpn.ErrConfig)

	cfg = smallConfig()
	cfg.Features = -1
	_, err = bifpn.New(cfg, backend)
	assert.ErrorIs(t, err, bifpn.ErrConfig)

	_, err = bifpn.NewBiFPNFromBlocks[CPU](nil)
	assert.ErrorIs(t, err, bifpn.ErrConfig)

	a, err := bifpn.NewBlock(smallConfig(), nil, backend)
	require.NoError(t, err)
	wide := smallConfig()
	wide.Features = 16
	b, err := bifpn.NewBlock(wide, nil, backend)
	require.NoError(t, err)
	_, err = bifpn.NewBiFPNFromBlocks([]*bifpn.Block[CPU]{a, b})
	assert.ErrorIs(t, err, bifpn.ErrChannels)

	sep := smallConfig()
	sep.Separable = true
	c, err := bifpn.NewBlock(sep, nil, backend)
	require.NoError(t, err)
	_, err = bifpn.NewBiFPNFromBlocks([]*bifpn.Block[CPU]{a, c})
	assert.ErrorIs(t, err, bifpn.ErrConfig)
}

func TestBiFPN_FromBlocksKeepsBlockConfig(t *testing.T) {
	cfg := smallConfig()
	cfg.Separable = true
	cfg.Epsilon = 0.5
	cfg.BNMomentum = 0.9
	cfg.WeightStd = 0

	block, err := bifpn.NewBlock(cfg, rand.New(rand.NewSource(23)), cpu.New())
	require.NoError(t, err)
	model, err := bifpn.NewBiFPNFromBlocks([]*bifpn.Block[CPU]{block})
	require.NoError(t, err)

	got := model.Config()
	assert.True(t, got.Separable)
	assert.Equal(t, 0.5, got.Epsilon)
	assert.Equal(t, 0.9, got.BNMomentum)
	assert.Equal(t, bifpn.DefaultWeightStd, got.WeightStd, "zero resolves to the default")
	assert.Equal(t, 1, got.Blocks)
	assert.Nil(t, got.InChannels)
	require.NoError(t, got.Validate())
}

func TestBiFPN_ForwardErrors(t *testing.T) {
	backend := cpu.New()
	rng := rand.New(rand.NewSource(23))
	model, err := bifpn.New(smallConfig(), backend)
	require.NoError(t, err)

	_, err = model.Forward(randPyramid(t, rng, backend, 1, smallSizes, uniform(5, 3)))
	assert.ErrorIs(t, err, bifpn.ErrChannels)

	_, err = model.Forward(bifpn.Pyramid[CPU]{})
	assert.ErrorIs(t, err, bifpn.ErrPyramidLevels)
}

func TestBiFPN_LateralProjection(t *testing.T) {
	backend := cpu.New()
	rng := rand.New(rand.NewSource(24))
	cfg := smallConfig()
	cfg.InChannels = []int{3, 5, 8, 8, 2}

	model, err := bifpn.New(cfg, backend)
	require.NoError(t, err)

	sd := model.StateDict()
	for _, key := range []string{"lateral.0.weight", "lateral.1.bias", "lateral.4.weight"} {
		assert.Contains(t, sd, key)
	}
	assert.NotContains(t, sd, "lateral.2.weight", "levels already at Features are not projected")
	assert.Equal(t, tensor.Shape{1, 1, 3, 8}, sd["lateral.0.weight"].Shape())

	out, err := model.Forward(randPyramid(t, rng, backend, 1, smallSizes, cfg.InChannels))
	require.NoError(t, err)
	for l := bifpn.P3; l <= bifpn.P7; l++ {
		assert.Equal(t, 8, out[l].Shape()[3])
		assert.Equal(t, smallSizes[l], out[l].Shape()[1])
	}

	_, err = model.Forward(randPyramid(t, rng, backend, 1, smallSizes, uniform(5, 8)))
	assert.ErrorIs(t, err, bifpn.ErrChannels)
}

func TestBiFPN_StateDictKeys(t *testing.T) {
	cfg := smallConfig()
	cfg.Blocks = 1
	model, err := bifpn.New(cfg, cpu.New())
	require.NoError(t, err)

	sd := model.StateDict()
	for _, key := range []string{
		"blocks.0.p6_td.weights",
		"blocks.0.p6_td.conv.depthwise",
		"blocks.0.p6_td.conv.pointwise",
		"blocks.0.p6_td.conv.bias",
		"blocks.0.p6_td.bn.gamma",
		"blocks.0.p6_td.bn.running_mean",
		"blocks.0.p6_td.resize.conv.weight",
		"blocks.0.p7_out.resize.conv.bias",
	} {
		assert.Contains(t, sd, key)
	}
	// 8 units x (weights + 2 resize + 3 conv + 4 bn)
	assert.Len(t, sd, 8*10)
	assert.Len(t, model.Parameters(), 8*8)

	cfg.Separable = true
	sep, err := bifpn.New(cfg, cpu.New())
	require.NoError(t, err)
	assert.Contains(t, sep.StateDict(), "blocks.0.p4_out.resize.conv.depthwise")
}

func TestBiFPN_SeedIsDeterministic(t *testing.T) {
	a, err := bifpn.New(smallConfig(), cpu.New())
	require.NoError(t, err)
	b, err := bifpn.New(smallConfig(), cpu.New())
	require.NoError(t, err)

	sdA, sdB := a.StateDict(), b.StateDict()
	require.Equal(t, nn.SortedKeys(sdA), nn.SortedKeys(sdB))
	for key, raw := range sdA {
		assert.Equal(t, raw.AsFloat32(), sdB[key].AsFloat32(), key)
	}

	cfg := smallConfig()
	cfg.Seed = 2
	c, err := bifpn.New(cfg, cpu.New())
	require.NoError(t, err)
	key := "blocks.0.p6_td.weights"
	assert.NotEqual(t, sdA[key].AsFloat32(), c.StateDict()[key].AsFloat32())
}

func TestBiFPN_LoadStateDict(t *testing.T) {
	src, err := bifpn.New(smallConfig(), cpu.New())
	require.NoError(t, err)
	cfg := smallConfig()
	cfg.Seed = 99
	dst, err := bifpn.New(cfg, cpu.New())
	require.NoError(t, err)

	require.NoError(t, dst.LoadStateDict(src.StateDict()))
	for key, raw := range src.StateDict() {
		assert.Equal(t, raw.AsFloat32(), dst.StateDict()[key].AsFloat32(), key)
	}

	sd := src.StateDict()
	delete(sd, "blocks.1.p5_out.bn.running_var")
	err = dst.LoadStateDict(sd)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "blocks.1")
	assert.Contains(t, err.Error(), "p5_out")
}

func TestBiFPN_TrainingModeUpdatesRunningStats(t *testing.T) {
	backend := cpu.New()
	model, err := bifpn.New(smallConfig(), backend)
	require.NoError(t, err)
	in := randPyramid(t, rand.New(rand.NewSource(25)), backend, 2, smallSizes, uniform(5, 8))

	// Negative raw weights would zero the fused map and leave the batch mean at 0.
	setWeights(model.Blocks()[0].Unit(bifpn.UnitP3Out), 0.5, 0.5)

	key := "blocks.0.p3_out.bn.running_mean"
	before := append([]float32(nil), model.StateDict()[key].AsFloat32()...)

	_, err = model.Forward(in)
	require.NoError(t, err)
	assert.Equal(t, before, model.StateDict()[key].AsFloat32(), "inference leaves running stats alone")

	model.SetTraining(true)
	_, err = model.Forward(in)
	require.NoError(t, err)
	assert.NotEqual(t, before, model.StateDict()[key].AsFloat32())
}

func TestBiFPN_WeightsStayNonNegativeUnderUpdates(t *testing.T) {
	backend := autodiff.New(cpu.New())
	cfg := smallConfig()
	cfg.Blocks = 1
	model, err := bifpn.New(cfg, backend)
	require.NoError(t, err)

	params := model.Parameters()
	opt, err := optim.New(optim.NameSGD, params, 0.5, backend)
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(26))
	for step := 0; step < 10; step++ {
		grads := make(map[*tensor.RawTensor]*tensor.RawTensor, len(params))
		for _, p := range params {
			g := tensor.RandNormal[float32](p.Tensor().Shape(), 0, 10, rng, backend)
			grads[p.Tensor().Raw()] = g.Raw()
		}
		opt.Step(grads)

		for _, name := range bifpn.UnitNames {
			var sum float32
			for _, w := range model.Blocks()[0].Unit(name).EffectiveWeights() {
				assert.GreaterOrEqual(t, w, float32(0))
				sum += w
			}
			assert.LessOrEqual(t, sum, float32(1.0001))
		}
	}
}

func TestTrainStep_ReducesLoss(t *testing.T) {
	backend := autodiff.New(cpu.New())
	cfg := smallConfig()
	cfg.Blocks = 1
	model, err := bifpn.New(cfg, backend)
	require.NoError(t, err)
	model.SetTraining(true)

	rng := rand.New(rand.NewSource(27))
	in := randPyramid(t, rng, backend, 2, smallSizes, uniform(5, 8))
	var target bifpn.Pyramid[Autodiff]
	for l := bifpn.P3; l <= bifpn.P7; l++ {
		target[l] = tensor.Zeros[float32](in[l].Shape(), backend)
	}

	opt, err := optim.New(optim.NameAdam, model.Parameters(), 0.01, backend)
	require.NoError(t, err)

	first, err := bifpn.TrainStep(model, opt, in, target, backend)
	require.NoError(t, err)
	var last float32
	for step := 0; step < 30; step++ {
		last, err = bifpn.TrainStep(model, opt, in, target, backend)
		require.NoError(t, err)
	}
	requireFinite(t, []float32{first, last})
	assert.Less(t, last, first)
	assert.Zero(t, backend.Tape().NumOps(), "tape is cleared after each step")
	assert.False(t, backend.Tape().IsRecording())
}

func TestLoss_ShapeMismatch(t *testing.T) {
	backend := cpu.New()
	rng := rand.New(rand.NewSource(28))
	a := randPyramid(t, rng, backend, 1, smallSizes, uniform(5, 2))
	b := randPyramid(t, rng, backend, 1, smallSizes, uniform(5, 3))

	_, err := bifpn.Loss(a, b)
	assert.ErrorIs(t, err, bifpn.ErrSpatialMismatch)

	loss, err := bifpn.Loss(a, a)
	require.NoError(t, err)
	assert.Zero(t, loss.Item())
}
