// Copyright 2023 The NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package manifest

import (
	"encoding/json"
	"fmt"
	"io"
)

// MarshalJSON emits "scale" and "min" only for affine quantization.
func (q Quantization) MarshalJSON() ([]byte, error) {
	if err := q.DType.Validate(); err != nil {
		return nil, err
	}
	if !q.DType.IsAffine() {
		return json.Marshal(struct {
			DType string `json:"dtype"`
		}{q.DType.String()})
	}
	return json.Marshal(struct {
		DType string  `json:"dtype"`
		Scale float32 `json:"scale"`
		Min   float32 `json:"min"`
	}{q.DType.String(), q.Scale, q.Min})
}

// MarshalJSON prevents nil path and weight lists to be serialized as "null".
func (g Group) MarshalJSON() ([]byte, error) {
	paths, weights := g.Paths, g.Weights
	if paths == nil {
		paths = []string{}
	}
	if weights == nil {
		weights = []WeightSpec{}
	}
	return json.Marshal(struct {
		Paths   []string     `json:"paths"`
		Weights []WeightSpec `json:"weights"`
	}{paths, weights})
}

// Write serializes the Manifest as indented JSON to "w".
func Write(w io.Writer, m Manifest) error {
	if m == nil {
		m = Manifest{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(m); err != nil {
		return fmt.Errorf("failed to JSON-encode manifest: %w", err)
	}
	return nil
}
