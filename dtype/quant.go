// Copyright 2023 The NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dtype

import "fmt"

// QuantDType represents the on-disk data type of a quantized weight.
type QuantDType uint8

const (
	// Uint8 represents 8-bit affine quantization.
	Uint8 QuantDType = iota + 1
	// Uint16 represents 16-bit affine quantization.
	Uint16
	// Float16 represents IEEE 754 half-precision storage.
	Float16
)

var (
	quantToString = [...]string{
		Uint8:   "uint8",
		Uint16:  "uint16",
		Float16: "float16",
	}
	quantToSize = [...]int{
		Uint8:   1,
		Uint16:  2,
		Float16: 2,
	}
)

// Validate returns an error if the QuantDType is not valid, otherwise nil.
func (q QuantDType) Validate() error {
	if q == 0 || q > Float16 {
		return fmt.Errorf("invalid QuantDType(%d)", q)
	}
	return nil
}

// String returns a string representation of a QuantDType.
func (q QuantDType) String() string {
	if err := q.Validate(); err != nil {
		return err.Error()
	}
	return quantToString[q]
}

// Size returns the on-disk size in bytes of one element,
// or -1 if the QuantDType value is invalid.
func (q QuantDType) Size() int {
	if err := q.Validate(); err != nil {
		return -1
	}
	return quantToSize[q]
}

// IsAffine reports whether values are reconstructed as raw*scale+min.
func (q QuantDType) IsAffine() bool {
	return q == Uint8 || q == Uint16
}

// Supports reports whether a weight of logical type dt can be stored
// with this quantization. Affine quantization serves float32 and int32,
// float16 only serves float32.
func (q QuantDType) Supports(dt DType) bool {
	switch q {
	case Uint8, Uint16:
		return dt == Float32 || dt == Int32
	case Float16:
		return dt == Float32
	}
	return false
}

// MarshalText satisfies encoding.TextMarshaler interface.
func (q QuantDType) MarshalText() ([]byte, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	return []byte(quantToString[q]), nil
}

// UnmarshalText satisfies encoding.TextUnmarshaler interface.
func (q *QuantDType) UnmarshalText(text []byte) error {
	switch s := string(text); s {
	case "uint8":
		*q = Uint8
	case "uint16":
		*q = Uint16
	case "float16":
		*q = Float16
	default:
		return fmt.Errorf("failed to text-unmarshal QuantDType from value %q", s)
	}
	return nil
}
