package tensor

// Add performs element-wise addition with broadcasting.
//
// Example:
//
//	a := tensor.Ones[float32](Shape{3, 1}, backend)
//	b := tensor.Ones[float32](Shape{3, 5}, backend)
//	c := a.Add(b) // Shape: [3, 5] (broadcasted)
func (t *Tensor[T, B]) Add(other *Tensor[T, B]) *Tensor[T, B] {
	return New[T, B](t.backend.Add(t.raw, other.raw), t.backend)
}

// Sub performs element-wise subtraction with broadcasting.
func (t *Tensor[T, B]) Sub(other *Tensor[T, B]) *Tensor[T, B] {
	return New[T, B](t.backend.Sub(t.raw, other.raw), t.backend)
}

// Mul performs element-wise multiplication with broadcasting.
func (t *Tensor[T, B]) Mul(other *Tensor[T, B]) *Tensor[T, B] {
	return New[T, B](t.backend.Mul(t.raw, other.raw), t.backend)
}

// Div performs element-wise division with broadcasting.
func (t *Tensor[T, B]) Div(other *Tensor[T, B]) *Tensor[T, B] {
	return New[T, B](t.backend.Div(t.raw, other.raw), t.backend)
}

// AddScalar adds a scalar value to each element of the tensor.
func (t *Tensor[T, B]) AddScalar(scalar T) *Tensor[T, B] {
	return New[T, B](t.backend.AddScalar(t.raw, float64(scalar)), t.backend)
}

// MulScalar multiplies each element of the tensor by a scalar value.
func (t *Tensor[T, B]) MulScalar(scalar T) *Tensor[T, B] {
	return New[T, B](t.backend.MulScalar(t.raw, float64(scalar)), t.backend)
}

// ReLU applies max(0, x) element-wise.
func (t *Tensor[T, B]) ReLU() *Tensor[T, B] {
	return New[T, B](t.backend.ReLU(t.raw), t.backend)
}

// Rsqrt computes the reciprocal square root (1/sqrt(x)) of each element.
func (t *Tensor[T, B]) Rsqrt() *Tensor[T, B] {
	return New[T, B](t.backend.Rsqrt(t.raw), t.backend)
}

// Sum reduces all elements to a scalar (shape []).
func (t *Tensor[T, B]) Sum() *Tensor[T, B] {
	return New[T, B](t.backend.Sum(t.raw), t.backend)
}

// SumDim sums along a dimension. Negative dims count from the end.
func (t *Tensor[T, B]) SumDim(dim int, keepDim bool) *Tensor[T, B] {
	return New[T, B](t.backend.SumDim(t.raw, dim, keepDim), t.backend)
}

// MeanDim averages along a dimension. Negative dims count from the end.
//
// Example:
//
//	x := tensor.Randn[float32](Shape{8, 64}, backend)
//	mean := x.MeanDim(0, true) // Shape: [1, 64]
func (t *Tensor[T, B]) MeanDim(dim int, keepDim bool) *Tensor[T, B] {
	return New[T, B](t.backend.MeanDim(t.raw, dim, keepDim), t.backend)
}

// Reshape returns a tensor with the same data but different shape.
// The new shape must have the same number of elements.
func (t *Tensor[T, B]) Reshape(newShape ...int) *Tensor[T, B] {
	return New[T, B](t.backend.Reshape(t.raw, Shape(newShape)), t.backend)
}

// Narrow returns the slice [start, start+length) along dim.
//
// Example:
//
//	w := tensor.FromSlice([]float32{1, 2, 3}, Shape{3}, backend)
//	second := w.Narrow(0, 1, 1) // [2]
func (t *Tensor[T, B]) Narrow(dim, start, length int) *Tensor[T, B] {
	return New[T, B](t.backend.Narrow(t.raw, dim, start, length), t.backend)
}

// Conv2D convolves an NHWC tensor with an HWIO kernel.
func (t *Tensor[T, B]) Conv2D(kernel *Tensor[T, B], stride, padding int) *Tensor[T, B] {
	return New[T, B](t.backend.Conv2D(t.raw, kernel.raw, stride, padding), t.backend)
}

// DepthwiseConv2D convolves each channel of an NHWC tensor with its own
// [kh, kw, C, 1] kernel slice.
func (t *Tensor[T, B]) DepthwiseConv2D(kernel *Tensor[T, B], stride, padding int) *Tensor[T, B] {
	return New[T, B](t.backend.DepthwiseConv2D(t.raw, kernel.raw, stride, padding), t.backend)
}

// ResizeBilinear resizes the spatial dimensions of an NHWC tensor.
//
// Example:
//
//	x := tensor.Randn[float32](Shape{1, 4, 4, 64}, backend)
//	up := x.ResizeBilinear(8, 8) // Shape: [1, 8, 8, 64]
func (t *Tensor[T, B]) ResizeBilinear(height, width int) *Tensor[T, B] {
	return New[T, B](t.backend.ResizeBilinear(t.raw, height, width), t.backend)
}
