package tensor

// Backend defines the interface that compute backends implement.
// Backends handle the actual computation for tensor operations.
//
// Layout conventions:
//   - Feature maps are NHWC: [batch, height, width, channels]
//   - Conv2D kernels are HWIO: [kernel_h, kernel_w, in_channels, out_channels]
//   - Depthwise kernels are [kernel_h, kernel_w, channels, 1]
//
// Operations never modify their inputs.
type Backend interface {
	// Element-wise binary operations with NumPy-style broadcasting
	Add(a, b *RawTensor) *RawTensor
	Sub(a, b *RawTensor) *RawTensor
	Mul(a, b *RawTensor) *RawTensor
	Div(a, b *RawTensor) *RawTensor

	// Scalar operations (element-wise with scalar)
	AddScalar(x *RawTensor, scalar float64) *RawTensor
	MulScalar(x *RawTensor, scalar float64) *RawTensor

	// Element-wise math
	ReLU(x *RawTensor) *RawTensor
	Rsqrt(x *RawTensor) *RawTensor // 1/sqrt(x)

	// Reductions
	Sum(x *RawTensor) *RawTensor                            // total sum, scalar result
	SumDim(x *RawTensor, dim int, keepDim bool) *RawTensor  // sum along dimension
	MeanDim(x *RawTensor, dim int, keepDim bool) *RawTensor // mean along dimension

	// Shape operations
	Reshape(x *RawTensor, newShape Shape) *RawTensor
	Narrow(x *RawTensor, dim, start, length int) *RawTensor // slice [start, start+length) along dim

	// Convolutions (NHWC input)
	Conv2D(input, kernel *RawTensor, stride, padding int) *RawTensor
	DepthwiseConv2D(input, kernel *RawTensor, stride, padding int) *RawTensor

	// ResizeBilinear resizes the spatial dimensions of an NHWC tensor using
	// half-pixel centers.
	ResizeBilinear(x *RawTensor, height, width int) *RawTensor

	// Backward kernels used by autodiff operations
	Conv2DInputBackward(input, kernel, grad *RawTensor, stride, padding int) *RawTensor
	Conv2DKernelBackward(input, kernel, grad *RawTensor, stride, padding int) *RawTensor
	DepthwiseConv2DInputBackward(input, kernel, grad *RawTensor, stride, padding int) *RawTensor
	DepthwiseConv2DKernelBackward(input, kernel, grad *RawTensor, stride, padding int) *RawTensor
	ResizeBilinearBackward(grad *RawTensor, inHeight, inWidth int) *RawTensor

	// Metadata
	Name() string
	Device() Device
}
