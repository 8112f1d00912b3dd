package serialization

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/x448/float16"

	"github.com/born-ml/bifpn/internal/tensor"
)

// File is a decoded SafeTensors file.
type File struct {
	Tensors  map[string]*tensor.RawTensor
	Metadata map[string]string
	// DTypes holds the on-disk dtype of each tensor (F16 tensors are
	// widened to float32 in Tensors).
	DTypes map[string]string
}

// ReadFile reads and decodes a SafeTensors file.
func ReadFile(path string) (*File, error) {
	//nolint:gosec // G304: File path comes from user input, which is expected for model loading
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return Decode(buf)
}

// Read decodes a SafeTensors stream.
func Read(r io.Reader) (*File, error) {
	buf, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read: %w", err)
	}
	return Decode(buf)
}

// Decode parses a complete SafeTensors buffer.
func Decode(buf []byte) (*File, error) {
	if len(buf) < 8 {
		return nil, fmt.Errorf("%w: file shorter than size prefix", ErrInvalidHeader)
	}
	headerSize := binary.LittleEndian.Uint64(buf[:8])
	if headerSize > MaxHeaderSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrHeaderTooLarge, headerSize)
	}
	if headerSize > uint64(len(buf)-8) {
		return nil, fmt.Errorf("%w: header size %d exceeds file size", ErrInvalidHeader, headerSize)
	}
	data := buf[8+headerSize:]

	var entries map[string]json.RawMessage
	if err := json.Unmarshal(buf[8:8+headerSize], &entries); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidHeader, err)
	}

	file := &File{
		Tensors:  make(map[string]*tensor.RawTensor, len(entries)),
		Metadata: map[string]string{},
		DTypes:   make(map[string]string, len(entries)),
	}

	infos := make([]TensorInfo, 0, len(entries))
	for name, msg := range entries {
		if name == metadataKey {
			if err := json.Unmarshal(msg, &file.Metadata); err != nil {
				return nil, fmt.Errorf("%w: metadata: %v", ErrInvalidHeader, err)
			}
			continue
		}
		info, err := parseTensorInfo(name, msg)
		if err != nil {
			return nil, err
		}
		infos = append(infos, info)
	}

	if err := ValidateTensorOffsets(infos, int64(len(data))); err != nil {
		return nil, err
	}
	if sum, ok := file.Metadata[MetadataChecksum]; ok {
		if err := ValidateChecksum(data, sum); err != nil {
			return nil, err
		}
	}

	for _, info := range infos {
		raw, err := decodeTensor(info, data[info.Offset:info.Offset+info.Size])
		if err != nil {
			return nil, err
		}
		file.Tensors[info.Name] = raw
		file.DTypes[info.Name] = info.DType
	}
	return file, nil
}

func parseTensorInfo(name string, msg json.RawMessage) (TensorInfo, error) {
	if err := ValidateTensorName(name); err != nil {
		return TensorInfo{}, err
	}

	var h SafeTensorHeader
	if err := json.Unmarshal(msg, &h); err != nil {
		return TensorInfo{}, fmt.Errorf("%w: tensor %q: %v", ErrInvalidHeader, name, err)
	}

	elemSize, ok := dtypeSize(h.DType)
	if !ok {
		return TensorInfo{}, fmt.Errorf("%w: tensor %q has dtype %q", ErrUnsupportedDType, name, h.DType)
	}

	shape := make([]int, len(h.Shape))
	elems := int64(1)
	for i, dim := range h.Shape {
		if dim <= 0 {
			return TensorInfo{}, fmt.Errorf("%w: tensor %q has dimension %d", ErrInvalidHeader, name, dim)
		}
		shape[i] = int(dim)
		elems *= dim
	}

	info := TensorInfo{
		Name:   name,
		DType:  h.DType,
		Shape:  shape,
		Offset: h.DataOffsets[0],
		Size:   h.DataOffsets[1] - h.DataOffsets[0],
	}
	if info.Size != elems*elemSize {
		return TensorInfo{}, fmt.Errorf("%w: tensor %q spans %d bytes, shape %v needs %d",
			ErrInvalidHeader, name, info.Size, shape, elems*elemSize)
	}
	return info, nil
}

func dtypeSize(dtype string) (int64, bool) {
	switch dtype {
	case DTypeF16:
		return 2, true
	case DTypeF32:
		return 4, true
	case DTypeF64:
		return 8, true
	default:
		return 0, false
	}
}

func decodeTensor(info TensorInfo, payload []byte) (*tensor.RawTensor, error) {
	dtype := tensor.Float32
	if info.DType == DTypeF64 {
		dtype = tensor.Float64
	}

	raw, err := tensor.NewRaw(info.Shape, dtype, tensor.CPU)
	if err != nil {
		return nil, fmt.Errorf("tensor %q: %w", info.Name, err)
	}

	if info.DType == DTypeF16 {
		values := raw.AsFloat32()
		for i := range values {
			values[i] = float16.Frombits(binary.LittleEndian.Uint16(payload[2*i:])).Float32()
		}
		return raw, nil
	}

	copy(raw.Data(), payload)
	return raw, nil
}
