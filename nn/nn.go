// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package nn exposes the layers the n2s encoder and heads are built from.
//
// Modules compose with Sequential:
//
//	head := nn.NewSequential[*cpu.Backend](
//	    nn.NewDropout[*cpu.Backend](0.5),
//	    nn.NewLinear(768, 768, backend),
//	    nn.NewReLU[*cpu.Backend](),
//	    nn.NewLinear(768, 7, backend),
//	)
package nn

import (
	"github.com/born-ml/n2s/internal/nn"
	"github.com/born-ml/n2s/tensor"
)

// Module interface defines the common interface for all neural network modules.
type Module[B tensor.Backend] = nn.Module[B]

// Stateful is implemented by modules whose weights can be exported and loaded.
type Stateful = nn.Stateful

// Parameter represents a weight tensor in a neural network.
type Parameter[B tensor.Backend] = nn.Parameter[B]

// NewParameter creates a new parameter with the given name and tensor.
func NewParameter[B tensor.Backend](name string, t *tensor.Tensor[float32, B]) *Parameter[B] {
	return nn.NewParameter(name, t)
}

// Layers

// Linear represents a fully connected (dense) layer.
type Linear[B tensor.Backend] = nn.Linear[B]

// NewLinear creates a new linear layer with Xavier initialization.
func NewLinear[B tensor.Backend](inFeatures, outFeatures int, backend B) *Linear[B] {
	return nn.NewLinear(inFeatures, outFeatures, backend)
}

// Embedding is a lookup table indexed by token id.
type Embedding[B tensor.Backend] = nn.Embedding[B]

// NewEmbedding creates an embedding table with normally distributed weights.
func NewEmbedding[B tensor.Backend](numEmbeddings, embeddingDim int, backend B) *Embedding[B] {
	return nn.NewEmbedding(numEmbeddings, embeddingDim, backend)
}

// LayerNorm normalizes the last dimension.
type LayerNorm[B tensor.Backend] = nn.LayerNorm[B]

// NewLayerNorm creates a layer norm over normalizedShape features.
func NewLayerNorm[B tensor.Backend](normalizedShape int, epsilon float32, backend B) *LayerNorm[B] {
	return nn.NewLayerNorm(normalizedShape, epsilon, backend)
}

// MultiHeadAttention is BERT-style self-attention.
type MultiHeadAttention[B tensor.Backend] = nn.MultiHeadAttention[B]

// NewMultiHeadAttention creates a self-attention block.
func NewMultiHeadAttention[B tensor.Backend](embedDim, numHeads int, backend B) *MultiHeadAttention[B] {
	return nn.NewMultiHeadAttention(embedDim, numHeads, backend)
}

// Dropout zeroes activations with probability p in training mode and is
// the identity otherwise.
type Dropout[B tensor.Backend] = nn.Dropout[B]

// NewDropout creates a dropout layer.
func NewDropout[B tensor.Backend](p float32) *Dropout[B] {
	return nn.NewDropout[B](p)
}

// Activations

// ReLU is the rectified linear unit.
type ReLU[B tensor.Backend] = nn.ReLU[B]

// NewReLU creates a ReLU activation.
func NewReLU[B tensor.Backend]() *ReLU[B] {
	return nn.NewReLU[B]()
}

// GELU is the Gaussian error linear unit used inside BERT layers.
type GELU[B tensor.Backend] = nn.GELU[B]

// NewGELU creates a GELU activation.
func NewGELU[B tensor.Backend]() *GELU[B] {
	return nn.NewGELU[B]()
}

// Containers

// Sequential chains modules. State dict keys are prefixed with the module
// index, e.g. "3.weight".
type Sequential[B tensor.Backend] = nn.Sequential[B]

// NewSequential creates a Sequential container.
func NewSequential[B tensor.Backend](modules ...Module[B]) *Sequential[B] {
	return nn.NewSequential(modules...)
}

// SetTraining switches m and its children between training and inference.
func SetTraining(m any, training bool) {
	nn.SetTraining(m, training)
}

// CountParameters returns the total number of scalar weights.
func CountParameters[B tensor.Backend](params []*Parameter[B]) int {
	return nn.CountParameters(params)
}
