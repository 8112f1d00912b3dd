// Package autodiff implements automatic differentiation using the decorator pattern.
//
// AutodiffBackend wraps any Backend implementation and adds gradient tracking
// through a GradientTape.
//
// Architecture:
//   - Decorator pattern: AutodiffBackend[B] wraps any Backend implementation
//   - GradientTape: Records operations during forward pass
//   - Operation interface: Each op (Add, Conv2D, ResizeBilinear) implements backward pass
//   - Reverse-mode AD: Computes gradients efficiently using chain rule
//
// Usage:
//
//	backend := autodiff.New(cpu.New())
//	backend.Tape().StartRecording()
//
//	x, _ := tensor.FromSlice([]float32{2}, tensor.Shape{1}, backend)
//	y := x.Mul(x) // y = x²
//
//	grads := autodiff.Backward(y, backend)
//	fmt.Println(grads[x.Raw()].AsFloat32()) // dy/dx = 2x = [4]
package autodiff

import (
	"github.com/born-ml/bifpn/internal/autodiff/ops"
	"github.com/born-ml/bifpn/internal/tensor"
)

// AutodiffBackend wraps a Backend and adds automatic differentiation.
// It implements the tensor.Backend interface and records operations in a GradientTape.
//
// Type parameter B must satisfy the tensor.Backend interface.
type AutodiffBackend[B tensor.Backend] struct {
	inner B             // Wrapped backend
	tape  *GradientTape // Records operations for backpropagation
}

// New creates a new AutodiffBackend wrapping the given backend.
func New[B tensor.Backend](backend B) *AutodiffBackend[B] {
	return &AutodiffBackend[B]{
		inner: backend,
		tape:  NewGradientTape(),
	}
}

// Tape returns the gradient tape for manual control.
// Useful for:
//   - Starting/stopping recording
//   - Clearing tape between iterations
//   - Inspecting recorded operations
func (b *AutodiffBackend[B]) Tape() *GradientTape {
	return b.tape
}

// Inner returns the wrapped backend for direct access.
func (b *AutodiffBackend[B]) Inner() B {
	return b.inner
}

// Name returns the backend name.
func (b *AutodiffBackend[B]) Name() string {
	return "Autodiff(" + b.inner.Name() + ")"
}

// Device returns the compute device.
func (b *AutodiffBackend[B]) Device() tensor.Device {
	return b.inner.Device()
}

// record appends op to the tape when recording.
func (b *AutodiffBackend[B]) record(op func() ops.Operation) {
	if b.tape.IsRecording() {
		b.tape.Record(op())
	}
}

// Add performs element-wise addition and records the operation.
func (b *AutodiffBackend[B]) Add(a, c *tensor.RawTensor) *tensor.RawTensor {
	result := b.inner.Add(a, c)
	b.record(func() ops.Operation { return ops.NewAddOp(a, c, result) })
	return result
}

// Sub performs element-wise subtraction and records the operation.
func (b *AutodiffBackend[B]) Sub(a, c *tensor.RawTensor) *tensor.RawTensor {
	result := b.inner.Sub(a, c)
	b.record(func() ops.Operation { return ops.NewSubOp(a, c, result) })
	return result
}

// Mul performs element-wise multiplication and records the operation.
func (b *AutodiffBackend[B]) Mul(a, c *tensor.RawTensor) *tensor.RawTensor {
	result := b.inner.Mul(a, c)
	b.record(func() ops.Operation { return ops.NewMulOp(a, c, result) })
	return result
}

// Div performs element-wise division and records the operation.
func (b *AutodiffBackend[B]) Div(a, c *tensor.RawTensor) *tensor.RawTensor {
	result := b.inner.Div(a, c)
	b.record(func() ops.Operation { return ops.NewDivOp(a, c, result) })
	return result
}

// AddScalar adds a constant and records the operation.
func (b *AutodiffBackend[B]) AddScalar(x *tensor.RawTensor, scalar float64) *tensor.RawTensor {
	result := b.inner.AddScalar(x, scalar)
	b.record(func() ops.Operation { return ops.NewAddScalarOp(x, result) })
	return result
}

// MulScalar multiplies by a constant and records the operation.
func (b *AutodiffBackend[B]) MulScalar(x *tensor.RawTensor, scalar float64) *tensor.RawTensor {
	result := b.inner.MulScalar(x, scalar)
	b.record(func() ops.Operation { return ops.NewMulScalarOp(x, result, scalar) })
	return result
}

// ReLU applies max(0, x) and records the operation.
func (b *AutodiffBackend[B]) ReLU(x *tensor.RawTensor) *tensor.RawTensor {
	result := b.inner.ReLU(x)
	b.record(func() ops.Operation { return ops.NewReLUOp(x, result) })
	return result
}

// Rsqrt computes 1/sqrt(x) and records the operation.
func (b *AutodiffBackend[B]) Rsqrt(x *tensor.RawTensor) *tensor.RawTensor {
	result := b.inner.Rsqrt(x)
	b.record(func() ops.Operation { return ops.NewRsqrtOp(x, result) })
	return result
}

// Sum reduces all elements and records the operation.
func (b *AutodiffBackend[B]) Sum(x *tensor.RawTensor) *tensor.RawTensor {
	result := b.inner.Sum(x)
	b.record(func() ops.Operation { return ops.NewSumOp(x, result) })
	return result
}

// SumDim sums along a dimension and records the operation.
func (b *AutodiffBackend[B]) SumDim(x *tensor.RawTensor, dim int, keepDim bool) *tensor.RawTensor {
	result := b.inner.SumDim(x, dim, keepDim)
	b.record(func() ops.Operation { return ops.NewSumDimOp(x, result, dim, keepDim) })
	return result
}

// MeanDim averages along a dimension and records the operation.
func (b *AutodiffBackend[B]) MeanDim(x *tensor.RawTensor, dim int, keepDim bool) *tensor.RawTensor {
	result := b.inner.MeanDim(x, dim, keepDim)
	b.record(func() ops.Operation { return ops.NewMeanDimOp(x, result, dim, keepDim) })
	return result
}

// Reshape changes the shape and records the operation.
func (b *AutodiffBackend[B]) Reshape(x *tensor.RawTensor, newShape tensor.Shape) *tensor.RawTensor {
	result := b.inner.Reshape(x, newShape)
	b.record(func() ops.Operation { return ops.NewReshapeOp(x, result) })
	return result
}

// Narrow slices along a dimension and records the operation.
func (b *AutodiffBackend[B]) Narrow(x *tensor.RawTensor, dim, start, length int) *tensor.RawTensor {
	result := b.inner.Narrow(x, dim, start, length)
	b.record(func() ops.Operation { return ops.NewNarrowOp(x, result, dim, start) })
	return result
}

// Conv2D performs a 2D convolution and records the operation.
func (b *AutodiffBackend[B]) Conv2D(input, kernel *tensor.RawTensor, stride, padding int) *tensor.RawTensor {
	result := b.inner.Conv2D(input, kernel, stride, padding)
	b.record(func() ops.Operation { return ops.NewConv2DOp(input, kernel, result, stride, padding) })
	return result
}

// DepthwiseConv2D performs a per-channel convolution and records the operation.
func (b *AutodiffBackend[B]) DepthwiseConv2D(input, kernel *tensor.RawTensor, stride, padding int) *tensor.RawTensor {
	result := b.inner.DepthwiseConv2D(input, kernel, stride, padding)
	b.record(func() ops.Operation { return ops.NewDepthwiseConv2DOp(input, kernel, result, stride, padding) })
	return result
}

// ResizeBilinear resizes the spatial axes and records the operation.
func (b *AutodiffBackend[B]) ResizeBilinear(x *tensor.RawTensor, height, width int) *tensor.RawTensor {
	result := b.inner.ResizeBilinear(x, height, width)
	b.record(func() ops.Operation { return ops.NewResizeBilinearOp(x, result) })
	return result
}

// Backward kernels are used inside gradient computation and are never recorded.

// Conv2DInputBackward delegates to the wrapped backend.
func (b *AutodiffBackend[B]) Conv2DInputBackward(input, kernel, grad *tensor.RawTensor, stride, padding int) *tensor.RawTensor {
	return b.inner.Conv2DInputBackward(input, kernel, grad, stride, padding)
}

// Conv2DKernelBackward delegates to the wrapped backend.
func (b *AutodiffBackend[B]) Conv2DKernelBackward(input, kernel, grad *tensor.RawTensor, stride, padding int) *tensor.RawTensor {
	return b.inner.Conv2DKernelBackward(input, kernel, grad, stride, padding)
}

// DepthwiseConv2DInputBackward delegates to the wrapped backend.
func (b *AutodiffBackend[B]) DepthwiseConv2DInputBackward(input, kernel, grad *tensor.RawTensor, stride, padding int) *tensor.RawTensor {
	return b.inner.DepthwiseConv2DInputBackward(input, kernel, grad, stride, padding)
}

// DepthwiseConv2DKernelBackward delegates to the wrapped backend.
func (b *AutodiffBackend[B]) DepthwiseConv2DKernelBackward(input, kernel, grad *tensor.RawTensor, stride, padding int) *tensor.RawTensor {
	return b.inner.DepthwiseConv2DKernelBackward(input, kernel, grad, stride, padding)
}

// ResizeBilinearBackward delegates to the wrapped backend.
func (b *AutodiffBackend[B]) ResizeBilinearBackward(grad *tensor.RawTensor, inHeight, inWidth int) *tensor.RawTensor {
	return b.inner.ResizeBilinearBackward(grad, inHeight, inWidth)
}
