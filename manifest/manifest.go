// Copyright 2023 The NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package manifest describes weight groups and the specs needed to
// interpret their concatenated binary payload.
//
// The payload carries no in-band tags: dtype, shape and quantization of
// every weight come from the manifest, and weights are laid out back to
// back in the order their specs are listed.
package manifest

import (
	"github.com/nlpodyssey/weights/dtype"
)

// Manifest is an ordered list of weight groups.
type Manifest []Group

// Group is a bundle of weights stored together across one or more
// shard paths.
type Group struct {
	Paths   []string     `json:"paths"`
	Weights []WeightSpec `json:"weights"`
}

// WeightSpec describes one weight within a group payload.
//
// DType always describes the logical (decoded) type. When the weight is
// quantized, Quantization.DType describes the on-disk type.
type WeightSpec struct {
	Name         string        `json:"name"`
	DType        dtype.DType   `json:"dtype"`
	Shape        Shape         `json:"shape"`
	Quantization *Quantization `json:"quantization,omitempty"`
	// Group is an opaque tag set by the encoder.
	Group string `json:"group,omitempty"`
}

// Quantization describes how a weight was compressed on disk.
//
// Scale and Min are meaningful for affine quantization (uint8, uint16)
// only, where each value is reconstructed as raw*Scale+Min.
type Quantization struct {
	DType dtype.QuantDType `json:"dtype"`
	Scale float32          `json:"scale,omitempty"`
	Min   float32          `json:"min,omitempty"`
}

// Specs returns the weight specs of all groups, in manifest order.
func (m Manifest) Specs() []WeightSpec {
	var out []WeightSpec
	for _, g := range m {
		out = append(out, g.Weights...)
	}
	return out
}
