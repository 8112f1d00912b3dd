package cpu

import (
	"fmt"

	"github.com/born-ml/bifpn/internal/tensor"
)

// Reshape returns a copy of t with a new shape of the same element count.
func (cpu *CPUBackend) Reshape(t *tensor.RawTensor, newShape tensor.Shape) *tensor.RawTensor {
	result, err := t.Reshaped(newShape)
	if err != nil {
		panic(fmt.Sprintf("reshape: %v", err))
	}
	return result
}

// Narrow copies the slice [start, start+length) along dim.
func (cpu *CPUBackend) Narrow(x *tensor.RawTensor, dim, start, length int) *tensor.RawTensor {
	shape := x.Shape()
	dim = shape.NormalizeDim(dim)
	if start < 0 || length <= 0 || start+length > shape[dim] {
		panic(fmt.Sprintf("narrow: range [%d, %d) out of bounds for dimension %d of size %d",
			start, start+length, dim, shape[dim]))
	}

	outShape := shape.Clone()
	outShape[dim] = length
	result := tensor.MustNewRaw(outShape, x.DType(), cpu.device)

	// Byte-level copy: each outer row contributes one contiguous block.
	outer, size, inner := splitAt(shape, dim)
	elem := x.DType().Size()
	src, dst := x.Data(), result.Data()
	block := length * inner * elem
	for o := 0; o < outer; o++ {
		from := (o*size + start) * inner * elem
		copy(dst[o*block:(o+1)*block], src[from:from+block])
	}
	return result
}
