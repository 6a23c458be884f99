// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package loader reads and writes model weights in the SafeTensors format.
//
// Example usage:
//
//	import "github.com/born-ml/n2s/loader"
//
//	r, err := loader.Open("saved_models/M1v2_chinese-roberta-wwm-ext_v1.safetensors")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer r.Close()
//
//	for _, name := range r.TensorNames() {
//	    info, _ := r.TensorInfo(name)
//	    fmt.Println(name, info.DType, info.Shape)
//	}
package loader

import (
	"io"

	"github.com/born-ml/n2s/internal/loader"
	"github.com/born-ml/n2s/tensor"
)

// Reader gives random access to the tensors of a SafeTensors file.
type Reader = loader.Reader

// TensorInfo describes one stored tensor.
type TensorInfo = loader.TensorInfo

// DType is the element type recorded in a SafeTensors header.
type DType = loader.DType

// ErrTensorNotFound is returned for names absent from the file.
var ErrTensorNotFound = loader.ErrTensorNotFound

// Open reads the header of a SafeTensors file and keeps the file open
// for on-demand tensor reads. Call Close when done.
func Open(path string) (*Reader, error) {
	return loader.Open(path)
}

// ReadFile loads every tensor and the metadata of a SafeTensors file.
func ReadFile(path string) (map[string]*tensor.RawTensor, map[string]string, error) {
	return loader.ReadFile(path)
}

// Write encodes tensors and metadata in SafeTensors format.
func Write(w io.Writer, tensors map[string]*tensor.RawTensor, metadata map[string]string) error {
	return loader.Write(w, tensors, metadata)
}

// WriteFile writes tensors and metadata to path.
func WriteFile(path string, tensors map[string]*tensor.RawTensor, metadata map[string]string) error {
	return loader.WriteFile(path, tensors, metadata)
}
