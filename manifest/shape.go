// Copyright 2023 The NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package manifest

import (
	"encoding/json"
	"fmt"
	"math"
	"math/bits"
)

// The Shape of a weight.
type Shape []int

// MarshalJSON prevents a nil Shape to be serialized as "null",
// preferring an empty array "[]" instead.
func (s Shape) MarshalJSON() ([]byte, error) {
	if s == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]int(s))
}

// Size returns the number of elements described by the Shape.
// An empty shape describes one scalar value.
func (s Shape) Size() (int, error) {
	size := uint(1)
	for _, v := range s {
		if v < 0 {
			return 0, fmt.Errorf("shape contains negative value %d", v)
		}
		var hi uint
		if hi, size = bits.Mul(size, uint(v)); hi != 0 {
			return 0, fmt.Errorf("int overflow computing elements size from shape")
		}
	}
	if size > math.MaxInt {
		return 0, fmt.Errorf("elements size computed from shape is too large for int type: %d", size)
	}
	return int(size), nil
}

// Clone returns a copy of the Shape, or nil if it is empty.
func (s Shape) Clone() Shape {
	if len(s) == 0 {
		return nil
	}
	c := make(Shape, len(s))
	copy(c, s)
	return c
}
