// Copyright 2023 The NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package float16 converts IEEE 754 half-precision values to single
// precision using precomputed lookup tables.
//
// The conversion of a 16-bit pattern h is
//
//	bits32 = mantissa[offset[h>>10] + (h & 0x3ff)] + exponent[h>>10]
//
// which is exact: every half-precision value is representable as float32.
package float16

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/x448/float16"
)

// F16 is a 16-bit half-precision floating-point value,
// represented as raw bits (uint16).
type F16 uint16

var (
	mantissaTable [2048]uint32
	exponentTable [64]uint32
	offsetTable   [64]uint16
)

func init() {
	mantissaTable = computeMantissaTable()
	exponentTable = computeExponentTable()
	offsetTable = computeOffsetTable()
}

func computeMantissaTable() (t [2048]uint32) {
	for i := 1; i < 1024; i++ {
		t[i] = convertMantissa(uint32(i))
	}
	for i := 1024; i < 2048; i++ {
		t[i] = 0x38000000 + uint32(i-1024)<<13
	}
	return t
}

// convertMantissa renormalizes a subnormal half mantissa.
func convertMantissa(i uint32) uint32 {
	m := i << 13
	e := uint32(0)
	for m&0x00800000 == 0 {
		e -= 0x00800000
		m <<= 1
	}
	m &^= 0x00800000
	e += 0x38800000
	return m | e
}

func computeExponentTable() (t [64]uint32) {
	for i := 1; i < 31; i++ {
		t[i] = uint32(i) << 23
	}
	t[31] = 0x47800000
	t[32] = 0x80000000
	for i := 33; i < 63; i++ {
		t[i] = 0x80000000 + uint32(i-32)<<23
	}
	t[63] = 0xc7800000
	return t
}

func computeOffsetTable() (t [64]uint16) {
	for i := range t {
		t[i] = 1024
	}
	t[0] = 0
	t[32] = 0
	return t
}

// Bits32 returns the IEEE 754 single-precision bit pattern of h.
func Bits32(h uint16) uint32 {
	e := h >> 10
	return mantissaTable[uint32(offsetTable[e])+uint32(h&0x3ff)] + exponentTable[e]
}

// ToFloat32 converts a half-precision bit pattern to float32.
func ToFloat32(h uint16) float32 {
	return math.Float32frombits(Bits32(h))
}

// Float32 converts the value to float32.
func (f F16) Float32() float32 {
	return ToFloat32(uint16(f))
}

// FromFloat32 returns the half-precision bit pattern nearest to f,
// rounding to nearest even.
func FromFloat32(f float32) uint16 {
	return float16.Fromfloat32(f).Bits()
}

// DecodeSlice converts little-endian half-precision values from src into
// dst. It panics if len(src) != 2*len(dst).
func DecodeSlice(dst []float32, src []byte) {
	if len(src) != 2*len(dst) {
		panic(fmt.Errorf("float16: source length %d does not match %d destination values", len(src), len(dst)))
	}
	for i := range dst {
		dst[i] = ToFloat32(binary.LittleEndian.Uint16(src[2*i:]))
	}
}

// ToFloat32Slice converts little-endian half-precision bytes into a new
// float32 slice. A trailing odd byte is ignored.
func ToFloat32Slice(src []byte) []float32 {
	out := make([]float32, len(src)/2)
	DecodeSlice(out, src[:2*len(out)])
	return out
}

// AppendFloat32s appends the little-endian half-precision encoding of
// each value in src to dst.
func AppendFloat32s(dst []byte, src []float32) []byte {
	for _, v := range src {
		dst = binary.LittleEndian.AppendUint16(dst, FromFloat32(v))
	}
	return dst
}
