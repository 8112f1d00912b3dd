package cpu

import (
	"fmt"

	"github.com/born-ml/bifpn/internal/tensor"
)

// Sum reduces all elements to a scalar tensor (shape []).
func (cpu *CPUBackend) Sum(x *tensor.RawTensor) *tensor.RawTensor {
	result := tensor.MustNewRaw(tensor.Shape{}, x.DType(), cpu.device)

	switch x.DType() {
	case tensor.Float32:
		result.AsFloat32()[0] = sumAll(x.AsFloat32())
	case tensor.Float64:
		result.AsFloat64()[0] = sumAll(x.AsFloat64())
	default:
		panic(fmt.Sprintf("sum: unsupported dtype %s", x.DType()))
	}
	return result
}

func sumAll[T tensor.DType](data []T) T {
	var s T
	for _, v := range data {
		s += v
	}
	return s
}

// SumDim sums along a dimension.
func (cpu *CPUBackend) SumDim(x *tensor.RawTensor, dim int, keepDim bool) *tensor.RawTensor {
	return cpu.reduceDim("sum_dim", x, dim, keepDim, false)
}

// MeanDim averages along a dimension.
func (cpu *CPUBackend) MeanDim(x *tensor.RawTensor, dim int, keepDim bool) *tensor.RawTensor {
	return cpu.reduceDim("mean_dim", x, dim, keepDim, true)
}

func (cpu *CPUBackend) reduceDim(name string, x *tensor.RawTensor, dim int, keepDim, mean bool) *tensor.RawTensor {
	shape := x.Shape()
	dim = shape.NormalizeDim(dim)

	outShape := make(tensor.Shape, 0, len(shape))
	for i, d := range shape {
		switch {
		case i != dim:
			outShape = append(outShape, d)
		case keepDim:
			outShape = append(outShape, 1)
		}
	}

	result, err := tensor.NewRaw(outShape, x.DType(), cpu.device)
	if err != nil {
		panic(fmt.Sprintf("%s: %v", name, err))
	}

	outer, size, inner := splitAt(shape, dim)
	switch x.DType() {
	case tensor.Float32:
		reduceDimKernel(result.AsFloat32(), x.AsFloat32(), outer, size, inner, mean)
	case tensor.Float64:
		reduceDimKernel(result.AsFloat64(), x.AsFloat64(), outer, size, inner, mean)
	default:
		panic(fmt.Sprintf("%s: unsupported dtype %s", name, x.DType()))
	}
	return result
}

// splitAt views shape as [outer, shape[dim], inner].
func splitAt(shape tensor.Shape, dim int) (outer, size, inner int) {
	outer, inner = 1, 1
	for i := 0; i < dim; i++ {
		outer *= shape[i]
	}
	for i := dim + 1; i < len(shape); i++ {
		inner *= shape[i]
	}
	return outer, shape[dim], inner
}

func reduceDimKernel[T tensor.DType](dst, src []T, outer, size, inner int, mean bool) {
	for o := 0; o < outer; o++ {
		base := o * size * inner
		row := dst[o*inner : (o+1)*inner]
		for k := 0; k < size; k++ {
			seg := src[base+k*inner : base+(k+1)*inner]
			for i, v := range seg {
				row[i] += v
			}
		}
		if mean {
			scale := 1 / T(size)
			for i := range row {
				row[i] *= scale
			}
		}
	}
}
