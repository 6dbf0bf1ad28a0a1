// Copyright 2023 The NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package manifest

import (
	"fmt"
)

// Validate checks whether the content of a Manifest is consistent,
// returning an error if a problem is encountered, otherwise nil.
//
// The Manifest is checked against the following rules:
//
//   - weight names are unique across all groups
//   - a group holding weights lists at least one path
//   - every WeightSpec is valid (see WeightSpec.Validate)
//
// Validation cannot detect specs listed in a different order than the
// one used to encode the payload: the format has no per-weight offsets.
func (m Manifest) Validate() error {
	seen := make(map[string]int)
	for gi, g := range m {
		if len(g.Weights) > 0 && len(g.Paths) == 0 {
			return fmt.Errorf("group %d has weights but no paths", gi)
		}
		for _, ws := range g.Weights {
			if prev, ok := seen[ws.Name]; ok {
				return fmt.Errorf("duplicate weight name %q in groups %d and %d", ws.Name, prev, gi)
			}
			seen[ws.Name] = gi
			if err := ws.Validate(); err != nil {
				return fmt.Errorf("invalid weight %q: %w", ws.Name, err)
			}
		}
	}
	return nil
}

// Validate checks a single WeightSpec:
//
//   - DType must be valid
//   - Shape must not contain negative values, and its size must fit an int
//   - when present, Quantization.DType must be valid and compatible with
//     the logical DType (uint8/uint16 for float32 and int32, float16 for
//     float32 only)
func (ws WeightSpec) Validate() error {
	if err := ws.DType.Validate(); err != nil {
		return err
	}
	if _, err := ws.Shape.Size(); err != nil {
		return err
	}
	if q := ws.Quantization; q != nil {
		if err := q.DType.Validate(); err != nil {
			return err
		}
		if !q.DType.Supports(ws.DType) {
			return fmt.Errorf("%s quantization is not supported for dtype %s", q.DType, ws.DType)
		}
	}
	return nil
}
