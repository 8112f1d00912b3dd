package nn

import (
	"math"
	"math/rand"

	"github.com/born-ml/bifpn/internal/tensor"
)

// Xavier (Glorot) initialization for weights.
//
// Initializes weights with values drawn from a uniform distribution:
// U(-sqrt(6/(fan_in + fan_out)), sqrt(6/(fan_in + fan_out)))
//
// A nil rng draws from the global math/rand source.
func Xavier[B tensor.Backend](fanIn, fanOut int, shape tensor.Shape, rng *rand.Rand, backend B) *tensor.Tensor[float32, B] {
	bound := math.Sqrt(6.0 / float64(fanIn+fanOut))
	return tensor.RandUniform[float32](shape, -bound, bound, rng, backend)
}

// Normal draws weights from N(mean, std²).
func Normal[B tensor.Backend](shape tensor.Shape, mean, std float64, rng *rand.Rand, backend B) *tensor.Tensor[float32, B] {
	return tensor.RandNormal[float32](shape, mean, std, rng, backend)
}

// Zeros creates a tensor filled with zeros.
// This is commonly used for bias initialization.
func Zeros[B tensor.Backend](shape tensor.Shape, backend B) *tensor.Tensor[float32, B] {
	return tensor.Zeros[float32](shape, backend)
}

// Ones creates a tensor filled with ones.
func Ones[B tensor.Backend](shape tensor.Shape, backend B) *tensor.Tensor[float32, B] {
	return tensor.Ones[float32](shape, backend)
}
