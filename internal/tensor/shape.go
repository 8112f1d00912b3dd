package tensor

import "fmt"

// Shape represents the dimensions of a tensor.
type Shape []int

// NumElements returns the total number of elements in the tensor.
func (s Shape) NumElements() int {
	n := 1
	for _, dim := range s {
		n *= dim
	}
	return n
}

// Validate checks if the shape is valid (all dimensions > 0).
func (s Shape) Validate() error {
	for i, dim := range s {
		if dim <= 0 {
			return fmt.Errorf("invalid dimension at index %d: %d (must be > 0)", i, dim)
		}
	}
	return nil
}

// Equal checks if two shapes are equal.
func (s Shape) Equal(other Shape) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if s[i] != other[i] {
			return false
		}
	}
	return true
}

// Clone returns a copy of the shape.
func (s Shape) Clone() Shape {
	clone := make(Shape, len(s))
	copy(clone, s)
	return clone
}

// ComputeStrides calculates row-major strides for the shape.
func (s Shape) ComputeStrides() []int {
	strides := make([]int, len(s))
	if len(s) == 0 {
		return strides
	}

	strides[len(s)-1] = 1
	for i := len(s) - 2; i >= 0; i-- {
		strides[i] = strides[i+1] * s[i+1]
	}
	return strides
}

// NormalizeDim maps a possibly negative dimension index into [0, rank).
// Panics if the index is out of range.
func (s Shape) NormalizeDim(dim int) int {
	if dim < 0 {
		dim += len(s)
	}
	if dim < 0 || dim >= len(s) {
		panic(fmt.Sprintf("dimension %d out of range for shape %v", dim, s))
	}
	return dim
}

// BroadcastShapes implements NumPy-style broadcasting rules.
//
// Shapes are compared from the right; dimensions are compatible when equal or
// when one of them is 1. Missing leading dimensions are treated as 1.
//
// Returns the broadcast shape, whether broadcasting is needed, and an error
// when the shapes are incompatible.
//
//	(3, 1) + (3, 5) → (3, 5), true, nil
//	(3, 5) + (3, 5) → (3, 5), false, nil
//	(3, 4) + (3, 5) → nil, false, error
func BroadcastShapes(a, b Shape) (Shape, bool, error) {
	maxLen := max(len(a), len(b))
	result := make(Shape, maxLen)
	needsBroadcast := len(a) != len(b)

	for i := 0; i < maxLen; i++ {
		aDim, bDim := 1, 1
		if idx := len(a) - 1 - i; idx >= 0 {
			aDim = a[idx]
		}
		if idx := len(b) - 1 - i; idx >= 0 {
			bDim = b[idx]
		}

		switch {
		case aDim == bDim:
			result[maxLen-1-i] = aDim
		case aDim == 1:
			result[maxLen-1-i] = bDim
			needsBroadcast = true
		case bDim == 1:
			result[maxLen-1-i] = aDim
			needsBroadcast = true
		default:
			return nil, false, fmt.Errorf("shapes not compatible for broadcasting: %v vs %v (dimension %d: %d vs %d)",
				a, b, maxLen-1-i, aDim, bDim)
		}
	}

	return result, needsBroadcast, nil
}

// BroadcastOffsets maps every flat index of dst to the flat index of src that
// feeds it under broadcasting. src must be broadcastable to dst.
//
// Used by element-wise kernels on the broadcast path and by gradient
// reduction, which walks the same mapping in reverse.
func BroadcastOffsets(src, dst Shape) []int {
	rank := len(dst)
	if len(src) > rank {
		panic(fmt.Sprintf("broadcast: source rank %d exceeds destination rank %d", len(src), rank))
	}

	// Strides of src aligned to dst; broadcast dimensions get stride 0.
	srcStrides := src.ComputeStrides()
	aligned := make([]int, rank)
	shift := rank - len(src)
	for i := range src {
		switch src[i] {
		case dst[i+shift]:
			aligned[i+shift] = srcStrides[i]
		case 1:
			aligned[i+shift] = 0
		default:
			panic(fmt.Sprintf("broadcast: cannot broadcast %v to %v", src, dst))
		}
	}

	n := dst.NumElements()
	offsets := make([]int, n)
	if rank == 0 {
		return offsets
	}

	index := make([]int, rank)
	offset := 0
	for flat := 0; flat < n; flat++ {
		offsets[flat] = offset
		// Advance the multi-index like an odometer.
		for d := rank - 1; d >= 0; d-- {
			index[d]++
			offset += aligned[d]
			if index[d] < dst[d] {
				break
			}
			offset -= aligned[d] * index[d]
			index[d] = 0
		}
	}
	return offsets
}
