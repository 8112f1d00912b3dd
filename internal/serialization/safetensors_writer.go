package serialization

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/x448/float16"

	"github.com/born-ml/bifpn/internal/tensor"
)

// SafeTensorHeader represents a tensor in the SafeTensors header.
type SafeTensorHeader struct {
	DType       string   `json:"dtype"`
	Shape       []int64  `json:"shape"`
	DataOffsets [2]int64 `json:"data_offsets"`
}

// SafeTensors dtype names.
const (
	DTypeF16 = "F16"
	DTypeF32 = "F32"
	DTypeF64 = "F64"
)

// metadataKey is the reserved header entry for string metadata.
const metadataKey = "__metadata__"

// WriteOptions controls tensor encoding.
type WriteOptions struct {
	// Half stores every floating tensor as IEEE 754 binary16.
	Half bool
}

// WriteFile writes tensors to a SafeTensors file at path.
func WriteFile(path string, tensors map[string]*tensor.RawTensor, metadata map[string]string, opts WriteOptions) (err error) {
	//nolint:gosec // G304: File path comes from user input, which is expected for model saving
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	return Write(file, tensors, metadata, opts)
}

// Write encodes tensors in SafeTensors format.
//
// Format:
// [8 bytes: header_size (uint64 LE)]
// [header_size bytes: JSON header, space-padded to 8-byte alignment]
// [tensor data: raw bytes]
//
// Tensors are written in alphabetical order by name.
func Write(w io.Writer, tensors map[string]*tensor.RawTensor, metadata map[string]string, opts WriteOptions) error {
	names := make([]string, 0, len(tensors))
	for name := range tensors {
		if err := ValidateTensorName(name); err != nil {
			return err
		}
		names = append(names, name)
	}
	sort.Strings(names)

	header := make(map[string]any, len(names)+1)
	var data bytes.Buffer
	for _, name := range names {
		raw := tensors[name]
		dtype, payload, err := encodeTensor(raw, opts)
		if err != nil {
			return fmt.Errorf("tensor %s: %w", name, err)
		}

		shape := make([]int64, len(raw.Shape()))
		for i, dim := range raw.Shape() {
			shape[i] = int64(dim)
		}

		start := int64(data.Len())
		data.Write(payload)
		header[name] = SafeTensorHeader{
			DType:       dtype,
			Shape:       shape,
			DataOffsets: [2]int64{start, int64(data.Len())},
		}
	}

	meta := make(map[string]string, len(metadata)+1)
	for k, v := range metadata {
		meta[k] = v
	}
	meta[MetadataChecksum] = ComputeChecksum(data.Bytes())
	header[metadataKey] = meta

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("failed to marshal header: %w", err)
	}
	if pad := len(headerJSON) % 8; pad != 0 {
		headerJSON = append(headerJSON, bytes.Repeat([]byte(" "), 8-pad)...)
	}

	if err := binary.Write(w, binary.LittleEndian, uint64(len(headerJSON))); err != nil {
		return fmt.Errorf("failed to write header size: %w", err)
	}
	if _, err := w.Write(headerJSON); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	if _, err := w.Write(data.Bytes()); err != nil {
		return fmt.Errorf("failed to write tensor data: %w", err)
	}
	return nil
}

// encodeTensor returns the SafeTensors dtype and little-endian payload for raw.
func encodeTensor(raw *tensor.RawTensor, opts WriteOptions) (string, []byte, error) {
	if opts.Half {
		return DTypeF16, encodeHalf(raw), nil
	}
	switch raw.DType() {
	case tensor.Float32:
		return DTypeF32, raw.Data(), nil
	case tensor.Float64:
		return DTypeF64, raw.Data(), nil
	default:
		return "", nil, fmt.Errorf("%w: %s", ErrUnsupportedDType, raw.DType())
	}
}

func encodeHalf(raw *tensor.RawTensor) []byte {
	out := make([]byte, 2*raw.NumElements())
	put := func(i int, v float32) {
		binary.LittleEndian.PutUint16(out[2*i:], float16.Fromfloat32(v).Bits())
	}
	switch raw.DType() {
	case tensor.Float32:
		for i, v := range raw.AsFloat32() {
			put(i, v)
		}
	case tensor.Float64:
		for i, v := range raw.AsFloat64() {
			put(i, float32(v))
		}
	}
	return out
}
