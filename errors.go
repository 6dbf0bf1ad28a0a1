// Copyright 2023 The NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package weights

import (
	"errors"
	"fmt"
)

// Format errors. They are never retried: a weight that fails to decode
// fails the whole load.
var (
	ErrUnsupportedDType     = errors.New("unsupported dtype")
	ErrUnknownQuantization  = errors.New("unknown quantization dtype")
	ErrQuantizationMismatch = errors.New("quantization not supported for dtype")
	ErrTruncated            = errors.New("weight data is truncated")
	ErrNonFinite            = errors.New("non-finite value cannot be quantized")
)

// FormatError reports a weight that cannot be encoded or decoded.
type FormatError struct {
	Weight string
	DType  string
	Err    error
}

func newFormatError(weight string, dt fmt.Stringer, err error) *FormatError {
	return &FormatError{Weight: weight, DType: dt.String(), Err: err}
}

// Error implements the error interface.
func (e *FormatError) Error() string {
	return fmt.Sprintf("weight %q (%s): %v", e.Weight, e.DType, e.Err)
}

// Unwrap returns the underlying error.
func (e *FormatError) Unwrap() error {
	return e.Err
}
