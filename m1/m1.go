// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package m1 is the first-stage NL2SQL model: a BERT encoder with a
// connector head, an aggregation head and a comparison head.
//
// Example:
//
//	backend := cpu.New()
//	model, err := m1.LoadCheckpoint("saved_models/M1v2_chinese-roberta-wwm-ext_v1.safetensors", backend)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	model.SetTraining(false)
//
//	out, err := model.Forward(ids, mask, typeIDs, header)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	preds, err := m1.Decode(out, []int{3}, true)
package m1

import (
	"context"

	"github.com/born-ml/n2s/internal/hub"
	"github.com/born-ml/n2s/internal/m1"
	"github.com/born-ml/n2s/tensor"
)

// Model is the encoder plus its three heads.
type Model[B tensor.Backend] = m1.Model[B]

// Output holds the raw logits of a forward pass.
type Output[B tensor.Backend] = m1.Output[B]

// Prediction is the decoded output for one example.
type Prediction = m1.Prediction

// Column is the decoded prediction for one header.
type Column = m1.Column

// Label types.
type (
	ConnOp = m1.ConnOp
	Agg    = m1.Agg
	CondOp = m1.CondOp
)

// Resolver maps a pretrained model identifier to a local directory.
type Resolver = m1.Resolver

// ErrForward is returned when a forward pass fails on malformed input.
var ErrForward = m1.ErrForward

// Head widths.
const (
	NumConnOps = m1.NumConnOps
	NumAggs    = m1.NumAggs
	NumCondOps = m1.NumCondOps
)

// ErrUnknownModel is returned by resolvers for identifiers that cannot be
// found locally or in the cache.
var ErrUnknownModel = hub.ErrUnknownModel

// NewResolver returns a Resolver that looks up identifiers in cacheDir.
// Local directories resolve to themselves.
func NewResolver(cacheDir string) Resolver {
	return hub.NewResolver(cacheDir)
}

// Load resolves a pretrained encoder and attaches freshly initialized heads.
func Load[B tensor.Backend](ctx context.Context, pretrained string, resolver Resolver, backend B) (*Model[B], error) {
	return m1.Load(ctx, pretrained, resolver, backend)
}

// LoadCheckpoint builds a model from a checkpoint written by Model.Save.
func LoadCheckpoint[B tensor.Backend](path string, backend B) (*Model[B], error) {
	return m1.LoadCheckpoint(path, backend)
}

// Decode converts logits to labels. headerCounts holds the number of
// headers of each example in the batch.
func Decode[B tensor.Backend](out *Output[B], headerCounts []int, analyze bool) ([]Prediction, error) {
	return m1.Decode(out, headerCounts, analyze)
}
