package cpu

import (
	"fmt"
	"math"

	"github.com/born-ml/bifpn/internal/tensor"
)

func add[T tensor.DType](x, y T) T { return x + y }
func sub[T tensor.DType](x, y T) T { return x - y }
func mul[T tensor.DType](x, y T) T { return x * y }
func div[T tensor.DType](x, y T) T { return x / y }

// binaryKernel writes f(a, b) into result, broadcasting a and b to the
// result shape when they differ from it.
func binaryKernel[T tensor.DType](result, a, b *tensor.RawTensor, f func(x, y T) T) {
	out := tensor.Floats[T](result)
	av := tensor.Floats[T](a)
	bv := tensor.Floats[T](b)

	// Fast path: no broadcasting.
	if a.Shape().Equal(result.Shape()) && b.Shape().Equal(result.Shape()) {
		for i := range out {
			out[i] = f(av[i], bv[i])
		}
		return
	}

	aOff := tensor.BroadcastOffsets(a.Shape(), result.Shape())
	bOff := tensor.BroadcastOffsets(b.Shape(), result.Shape())
	for i := range out {
		out[i] = f(av[aOff[i]], bv[bOff[i]])
	}
}

// unary allocates a result of x's shape and applies f element-wise.
func (cpu *CPUBackend) unary(
	name string,
	x *tensor.RawTensor,
	f32 func(float32) float32,
	f64 func(float64) float64,
) *tensor.RawTensor {
	result, err := tensor.NewRaw(x.Shape(), x.DType(), cpu.device)
	if err != nil {
		panic(fmt.Sprintf("%s: %v", name, err))
	}

	switch x.DType() {
	case tensor.Float32:
		mapKernel(tensor.Floats[float32](result), x.AsFloat32(), f32)
	case tensor.Float64:
		mapKernel(tensor.Floats[float64](result), x.AsFloat64(), f64)
	default:
		panic(fmt.Sprintf("%s: unsupported dtype %s", name, x.DType()))
	}
	return result
}

func mapKernel[T tensor.DType](dst, src []T, f func(T) T) {
	for i, v := range src {
		dst[i] = f(v)
	}
}

// AddScalar adds a scalar to every element.
func (cpu *CPUBackend) AddScalar(x *tensor.RawTensor, scalar float64) *tensor.RawTensor {
	s32 := float32(scalar)
	return cpu.unary("add_scalar", x,
		func(v float32) float32 { return v + s32 },
		func(v float64) float64 { return v + scalar })
}

// MulScalar multiplies every element by a scalar.
func (cpu *CPUBackend) MulScalar(x *tensor.RawTensor, scalar float64) *tensor.RawTensor {
	s32 := float32(scalar)
	return cpu.unary("mul_scalar", x,
		func(v float32) float32 { return v * s32 },
		func(v float64) float64 { return v * scalar })
}

// ReLU computes max(0, x) element-wise.
func (cpu *CPUBackend) ReLU(x *tensor.RawTensor) *tensor.RawTensor {
	return cpu.unary("relu", x, relu[float32], relu[float64])
}

func relu[T tensor.DType](v T) T {
	if v > 0 {
		return v
	}
	return 0
}

// Rsqrt computes 1/sqrt(x) element-wise.
func (cpu *CPUBackend) Rsqrt(x *tensor.RawTensor) *tensor.RawTensor {
	return cpu.unary("rsqrt", x,
		func(v float32) float32 { return float32(1 / math.Sqrt(float64(v))) },
		func(v float64) float64 { return 1 / math.Sqrt(v) })
}
