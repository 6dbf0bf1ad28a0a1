// Copyright 2023 The NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package weights

import (
	"fmt"
	"math"
)

// checkedMul multiplies two non-negative ints and checks for overflow.
func checkedMul(a, b int) (int, error) {
	c := a * b
	if a > 1 && b > 1 && c/a != b {
		return c, fmt.Errorf("multiplication overflow: %d * %d", a, b)
	}
	return c, nil
}

// checkedAdd sums non-negative ints and checks for overflow.
func checkedAdd(values ...int) (int, error) {
	sum := 0
	for _, v := range values {
		if v > math.MaxInt-sum {
			return 0, fmt.Errorf("addition overflow: %d + %d", sum, v)
		}
		sum += v
	}
	return sum, nil
}
