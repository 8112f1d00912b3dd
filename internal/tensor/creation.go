package tensor

import (
	"math/rand"
)

// Zeros creates a tensor filled with zeros.
//
// Example:
//
//	backend := cpu.New()
//	t := tensor.Zeros[float32](Shape{3, 4}, backend)
func Zeros[T DType, B Backend](shape Shape, b B) *Tensor[T, B] {
	return New[T, B](MustNewRaw(shape, DataTypeOf[T](), b.Device()), b)
}

// Ones creates a tensor filled with ones.
func Ones[T DType, B Backend](shape Shape, b B) *Tensor[T, B] {
	return Full[T, B](shape, 1, b)
}

// Full creates a tensor filled with a specific value.
//
// Example:
//
//	t := tensor.Full[float32](Shape{3, 3}, 3.14, backend)
func Full[T DType, B Backend](shape Shape, value T, b B) *Tensor[T, B] {
	t := Zeros[T, B](shape, b)
	data := t.Data()
	for i := range data {
		data[i] = value
	}
	return t
}

// Randn creates a tensor with values drawn from N(0, 1) using the global
// math/rand source.
//
// Note: math/rand (not crypto/rand) is appropriate for ML/statistical purposes.
func Randn[T DType, B Backend](shape Shape, b B) *Tensor[T, B] {
	return RandNormal[T, B](shape, 0, 1, nil, b)
}

// RandNormal creates a tensor with values drawn from N(mean, std²).
// A nil rng uses the global math/rand source.
func RandNormal[T DType, B Backend](shape Shape, mean, std float64, rng *rand.Rand, b B) *Tensor[T, B] {
	t := Zeros[T, B](shape, b)
	data := t.Data()
	for i := range data {
		var z float64
		if rng != nil {
			z = rng.NormFloat64()
		} else {
			z = rand.NormFloat64() //nolint:gosec // G404: ML uses math/rand intentionally
		}
		data[i] = T(mean + std*z)
	}
	return t
}

// RandUniform creates a tensor with values drawn uniformly from [low, high).
// A nil rng uses the global math/rand source.
func RandUniform[T DType, B Backend](shape Shape, low, high float64, rng *rand.Rand, b B) *Tensor[T, B] {
	t := Zeros[T, B](shape, b)
	data := t.Data()
	for i := range data {
		var u float64
		if rng != nil {
			u = rng.Float64()
		} else {
			u = rand.Float64() //nolint:gosec // G404: ML uses math/rand intentionally
		}
		data[i] = T(low + (high-low)*u)
	}
	return t
}
