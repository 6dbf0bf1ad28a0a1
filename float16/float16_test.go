// Copyright 2023 The NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package float16

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	ref "github.com/x448/float16"
)

func TestToFloat32(t *testing.T) {
	testCases := []struct {
		bits uint16
		want float32
	}{
		{0x3400, 0.25},
		{0x3800, 0.5},
		{0x3A00, 0.75},
		{0x3C00, 1},
		{0xC000, -2},
		{0x7BFF, 65504},
		{0x0001, 5.960464477539063e-08},
		{0x03FF, 6.097555160522461e-05},
	}
	for _, tc := range testCases {
		assert.Equal(t, tc.want, ToFloat32(tc.bits), "bits %#04x", tc.bits)
	}
}

func TestToFloat32_Specials(t *testing.T) {
	assert.True(t, math.IsNaN(float64(ToFloat32(0x7e00))))
	assert.True(t, math.IsNaN(float64(ToFloat32(0xfe00))))
	assert.True(t, math.IsInf(float64(ToFloat32(0x7c00)), 1))
	assert.True(t, math.IsInf(float64(ToFloat32(0xfc00)), -1))

	pz := ToFloat32(0x0000)
	assert.Equal(t, float32(0), pz)
	assert.False(t, math.Signbit(float64(pz)))

	nz := ToFloat32(0x8000)
	assert.Equal(t, float32(0), nz)
	assert.True(t, math.Signbit(float64(nz)))
}

func TestToFloat32_MatchesReference(t *testing.T) {
	for i := 0; i <= math.MaxUint16; i++ {
		h := uint16(i)
		want := ref.Frombits(h).Float32()
		got := ToFloat32(h)
		if math.IsNaN(float64(want)) {
			require.True(t, math.IsNaN(float64(got)), "bits %#04x", h)
			continue
		}
		require.Equal(t, math.Float32bits(want), math.Float32bits(got), "bits %#04x", h)
	}
}

func TestF16_Float32(t *testing.T) {
	assert.Equal(t, float32(0.5), F16(0x3800).Float32())
}

func TestDecodeSlice(t *testing.T) {
	src := []byte{0x00, 0x34, 0x00, 0x38, 0x00, 0x3A}
	dst := make([]float32, 3)
	DecodeSlice(dst, src)
	assert.Equal(t, []float32{0.25, 0.5, 0.75}, dst)

	assert.Panics(t, func() { DecodeSlice(make([]float32, 2), src) })
}

func TestToFloat32Slice(t *testing.T) {
	assert.Equal(t, []float32{0.25, 0.5}, ToFloat32Slice([]byte{0x00, 0x34, 0x00, 0x38, 0xff}))
	assert.Equal(t, []float32{}, ToFloat32Slice(nil))
}

func TestAppendFloat32s(t *testing.T) {
	values := []float32{0.25, -2, 65504, float32(math.Inf(-1))}
	b := AppendFloat32s(nil, values)
	require.Len(t, b, 8)
	assert.Equal(t, values, ToFloat32Slice(b))
}
