// Package serialization reads and writes tensors in the SafeTensors format.
//
//	Format Structure:
//	  [8 bytes: Header Size (uint64 LE)]
//	  [Header: JSON object, tensor name -> {dtype, shape, data_offsets}]
//	  [Tensor data: raw little-endian bytes, in header order]
//
// The optional "__metadata__" header entry holds string key/value pairs.
// Files written by this package carry a "sha256" metadata entry with the
// checksum of the data section, which the reader verifies when present.
//
// Supported dtypes: F32, F64 and F16. F16 tensors are widened to float32
// on read; the writer narrows floating tensors to F16 when asked.
//
// Example usage:
//
//	err := serialization.WriteFile("model.safetensors", stateDict, meta, serialization.WriteOptions{})
//
//	file, err := serialization.ReadFile("model.safetensors")
//	model.LoadStateDict(file.Tensors)
package serialization
