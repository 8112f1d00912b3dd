package cpu

import (
	"fmt"

	"github.com/born-ml/bifpn/internal/tensor"
)

// Conv2DInputBackward computes ∂L/∂input for Conv2D.
//
//	col_grad [N*H_out*W_out, K_h*K_w*C_in] = grad [.., C_out] @ kernelᵀ
//	input_grad = col2im(col_grad)
func (cpu *CPUBackend) Conv2DInputBackward(input, kernel, grad *tensor.RawTensor, stride, padding int) *tensor.RawTensor {
	g := newConvGeometry("conv2d_input_backward", input, kernel, stride, padding)
	checkConvGrad("conv2d_input_backward", g, grad)

	inputGrad := tensor.MustNewRaw(input.Shape(), input.DType(), cpu.device)
	switch input.DType() {
	case tensor.Float32:
		conv2dInputBackward(g, inputGrad.AsFloat32(), kernel.AsFloat32(), grad.AsFloat32())
	case tensor.Float64:
		conv2dInputBackward(g, inputGrad.AsFloat64(), kernel.AsFloat64(), grad.AsFloat64())
	default:
		panic(fmt.Sprintf("conv2d_input_backward: unsupported dtype %s", input.DType()))
	}
	return inputGrad
}

func conv2dInputBackward[T tensor.DType](g convGeometry, inputGrad, kernel, grad []T) {
	if g.pointwise() {
		gemm(false, true, g.rows(), g.patch(), g.COut, grad, kernel, inputGrad)
		return
	}
	colGrad := make([]T, g.rows()*g.patch())
	gemm(false, true, g.rows(), g.patch(), g.COut, grad, kernel, colGrad)
	col2im(g, inputGrad, colGrad)
}

// Conv2DKernelBackward computes ∂L/∂kernel for Conv2D.
//
//	kernel_grad [K_h*K_w*C_in, C_out] = colᵀ @ grad
func (cpu *CPUBackend) Conv2DKernelBackward(input, kernel, grad *tensor.RawTensor, stride, padding int) *tensor.RawTensor {
	g := newConvGeometry("conv2d_kernel_backward", input, kernel, stride, padding)
	checkConvGrad("conv2d_kernel_backward", g, grad)

	kernelGrad := tensor.MustNewRaw(kernel.Shape(), kernel.DType(), cpu.device)
	switch input.DType() {
	case tensor.Float32:
		conv2dKernelBackward(g, kernelGrad.AsFloat32(), input.AsFloat32(), grad.AsFloat32())
	case tensor.Float64:
		conv2dKernelBackward(g, kernelGrad.AsFloat64(), input.AsFloat64(), grad.AsFloat64())
	default:
		panic(fmt.Sprintf("conv2d_kernel_backward: unsupported dtype %s", input.DType()))
	}
	return kernelGrad
}

func conv2dKernelBackward[T tensor.DType](g convGeometry, kernelGrad, in, grad []T) {
	col := in
	if !g.pointwise() {
		col = make([]T, g.rows()*g.patch())
		im2col(g, col, in)
	}
	gemm(true, false, g.patch(), g.COut, g.rows(), col, grad, kernelGrad)
}

func checkConvGrad(name string, g convGeometry, grad *tensor.RawTensor) {
	want := tensor.Shape{g.N, g.HOut, g.WOut, g.COut}
	if !grad.Shape().Equal(want) {
		panic(fmt.Sprintf("%s: grad shape %v, expected %v", name, grad.Shape(), want))
	}
}
