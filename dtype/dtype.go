// Copyright 2023 The NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dtype

import (
	"fmt"
)

// DType represents the logical data type of a weight.
type DType uint8

const (
	// Float32 represents a 32-bit floating point data type.
	Float32 DType = iota + 1
	// Int32 represents a 32-bit signed integer data type.
	Int32
	// Bool represents an 8-bit boolean data type.
	Bool
	// String represents a variable-length byte string data type.
	String
	// Complex64 represents a complex number made of two float32 values.
	Complex64
)

var (
	dTypeToString = [...]string{
		Float32:   "float32",
		Int32:     "int32",
		Bool:      "bool",
		String:    "string",
		Complex64: "complex64",
	}
	dTypeToJSON = [...]string{
		Float32:   `"float32"`,
		Int32:     `"int32"`,
		Bool:      `"bool"`,
		String:    `"string"`,
		Complex64: `"complex64"`,
	}
	// String has no fixed size.
	dTypeToSize = [...]int{
		Float32:   4,
		Int32:     4,
		Bool:      1,
		String:    0,
		Complex64: 8,
	}
)

// Validate returns an error if the DType is not valid, otherwise nil.
func (dt DType) Validate() error {
	if dt == 0 || dt > Complex64 {
		return fmt.Errorf("invalid DType(%d)", dt)
	}
	return nil
}

// String returns a string representation of a DType.
func (dt DType) String() string {
	if err := dt.Validate(); err != nil {
		return err.Error()
	}
	return dTypeToString[dt]
}

// Size returns the size in bytes of one element of this data type,
// 0 for String (whose elements are variable-length), or -1 if the
// DType value is invalid.
func (dt DType) Size() int {
	if err := dt.Validate(); err != nil {
		return -1
	}
	return dTypeToSize[dt]
}

// IsNumeric reports whether the DType is one of the fixed-size types.
func (dt DType) IsNumeric() bool {
	return dt.Validate() == nil && dt != String
}

// MarshalJSON satisfies json.Marshaler interface.
func (dt DType) MarshalJSON() ([]byte, error) {
	if err := dt.Validate(); err != nil {
		return nil, err
	}
	return []byte(dTypeToJSON[dt]), nil
}

// UnmarshalJSON satisfies json.Unmarshaler interface.
func (dt *DType) UnmarshalJSON(b []byte) error {
	s := string(b)
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return fmt.Errorf("failed to JSON-unmarshal DType from value %q", s)
	}
	if err := dt.UnmarshalText([]byte(s[1 : len(s)-1])); err != nil {
		return fmt.Errorf("failed to JSON-unmarshal DType from value %q", s)
	}
	return nil
}

// MarshalText satisfies encoding.TextMarshaler interface.
func (dt DType) MarshalText() ([]byte, error) {
	if err := dt.Validate(); err != nil {
		return nil, err
	}
	return []byte(dTypeToString[dt]), nil
}

// UnmarshalText satisfies encoding.TextUnmarshaler interface.
func (dt *DType) UnmarshalText(text []byte) error {
	s := string(text)
	switch s {
	case "float32":
		*dt = Float32
	case "int32":
		*dt = Int32
	case "bool":
		*dt = Bool
	case "string":
		*dt = String
	case "complex64":
		*dt = Complex64
	default:
		return fmt.Errorf("failed to text-unmarshal DType from value %q", s)
	}
	return nil
}
