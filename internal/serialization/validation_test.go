package serialization

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateTensorOffsets(t *testing.T) {
	tests := []struct {
		name    string
		tensors []TensorInfo
		size    int64
		want    error
	}{
		{"ok", []TensorInfo{{Name: "a", Offset: 0, Size: 8}, {Name: "b", Offset: 8, Size: 4}}, 12, nil},
		{"overlap", []TensorInfo{{Name: "a", Offset: 0, Size: 8}, {Name: "b", Offset: 4, Size: 4}}, 12, ErrOffsetOverlap},
		{"out of bounds", []TensorInfo{{Name: "a", Offset: 8, Size: 8}}, 12, ErrOutOfBounds},
		{"negative", []TensorInfo{{Name: "a", Offset: -1, Size: 4}}, 12, ErrNegativeOffset},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTensorOffsets(tt.tensors, tt.size)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestValidateTensorName(t *testing.T) {
	for _, name := range []string{"blocks.0.p6_td.weights", "lateral.3.weight", "optimizer.m.12"} {
		assert.NoError(t, ValidateTensorName(name), name)
	}
	for _, name := range []string{"", "a..b", "dir/file", `dir\file`, "nul\x00"} {
		assert.ErrorIs(t, ValidateTensorName(name), ErrInvalidTensorName, name)
	}
}

func TestValidationErrorMessage(t *testing.T) {
	err := &ValidationError{Err: ErrOffsetOverlap, Tensor: "a", Tensor2: "b", Details: "x"}
	assert.Equal(t, `tensor offsets overlap: tensors "a" and "b": x`, err.Error())
}

func TestChecksum(t *testing.T) {
	// SHA-256("abc")
	const want = "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"
	assert.Equal(t, want, ComputeChecksum([]byte("abc")))
	assert.NoError(t, ValidateChecksum([]byte("abc"), want))
	assert.ErrorIs(t, ValidateChecksum([]byte("abd"), want), ErrChecksumMismatch)
}
