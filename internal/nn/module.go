// Package nn implements the neural network building blocks used by the
// feature pyramid.
//
// This package provides:
//   - Module interface: Base interface for all NN components
//   - Parameter: Trainable parameters with gradient tracking
//   - Conv2D, SeparableConv2D: NHWC convolutions with HWIO kernels
//   - BatchNorm2D: per-channel batch normalization with running statistics
//   - ReLU activation and MSE loss
//
// Design inspired by PyTorch's nn.Module but adapted for Go generics.
package nn

import (
	"fmt"
	"sort"
	"strings"

	"github.com/born-ml/bifpn/internal/tensor"
)

// Module is the base interface for all neural network components.
//
// Every NN module must implement:
//   - Forward: Compute output from input
//   - Parameters: Return all trainable parameters
//
// Type parameter B must satisfy the tensor.Backend interface.
type Module[B tensor.Backend] interface {
	// Forward computes the output of the module given an input tensor.
	Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B]

	// Parameters returns all trainable parameters of this module.
	//
	// Returns an empty slice for modules without trainable parameters
	// (e.g., activation functions).
	Parameters() []*Parameter[B]
}

// Stateful is implemented by modules whose weights and buffers can be
// exported and restored by name.
type Stateful interface {
	// StateDict returns a map of names to raw tensors.
	// The returned tensors alias module storage.
	StateDict() map[string]*tensor.RawTensor

	// LoadStateDict copies values from stateDict into the module.
	// Every expected key must be present with a matching shape.
	LoadStateDict(stateDict map[string]*tensor.RawTensor) error
}

// PrefixStateDict merges src into dst with every key prefixed by prefix + ".".
func PrefixStateDict(dst map[string]*tensor.RawTensor, prefix string, src map[string]*tensor.RawTensor) {
	for name, raw := range src {
		dst[prefix+"."+name] = raw
	}
}

// SubStateDict returns the entries of stateDict under prefix, with the
// prefix and its trailing dot removed.
func SubStateDict(stateDict map[string]*tensor.RawTensor, prefix string) map[string]*tensor.RawTensor {
	sub := make(map[string]*tensor.RawTensor)
	p := prefix + "."
	for key, raw := range stateDict {
		if rest, ok := strings.CutPrefix(key, p); ok {
			sub[rest] = raw
		}
	}
	return sub
}

// SortedKeys returns the keys of stateDict in lexical order.
func SortedKeys(stateDict map[string]*tensor.RawTensor) []string {
	keys := make([]string, 0, len(stateDict))
	for k := range stateDict {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// loadTensor copies raw into dst after checking key presence, dtype and shape.
func loadTensor[B tensor.Backend](dst *tensor.Tensor[float32, B], stateDict map[string]*tensor.RawTensor, key string) error {
	raw, ok := stateDict[key]
	if !ok {
		return fmt.Errorf("missing %s in state dict", key)
	}
	if raw.DType() != tensor.Float32 {
		return fmt.Errorf("%s dtype mismatch: expected float32, got %v", key, raw.DType())
	}
	if !raw.Shape().Equal(dst.Shape()) {
		return fmt.Errorf("%s shape mismatch: expected %v, got %v", key, dst.Shape(), raw.Shape())
	}
	copy(dst.Data(), raw.AsFloat32())
	return nil
}

// CountParameters returns the total number of scalar weights in params.
func CountParameters[B tensor.Backend](params []*Parameter[B]) int {
	n := 0
	for _, p := range params {
		n += p.Tensor().NumElements()
	}
	return n
}
