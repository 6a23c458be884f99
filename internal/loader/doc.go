// Package loader reads and writes model weights in the SafeTensors format.
//
// Format:
//
//	[8 bytes: header_size (uint64 LE)]
//	[header_size bytes: JSON header]
//	[tensor data: raw bytes, offsets relative to the end of the header]
//
// F16, BF16 and F64 tensors are widened or narrowed to float32 on load, since
// every layer in this module computes in float32.
package loader
