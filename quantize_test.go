// Copyright 2023 The NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package weights

import (
	"errors"
	"math"
	"testing"

	"github.com/nlpodyssey/weights/dtype"
	"github.com/nlpodyssey/weights/manifest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuantize(t *testing.T) {
	t.Run("uint8 float32", func(t *testing.T) {
		values := []float32{-1, 0, 1.5, 24.5}
		rt := MustNewTensor("w", dtype.Float32, []int{4}, values)
		raw, q, err := Quantize(rt, dtype.Uint8)
		require.NoError(t, err)

		assert.Equal(t, dtype.Uint8, q.DType)
		assert.Equal(t, float32(-1), q.Min)
		assert.InDelta(t, 0.1, q.Scale, 1e-6)
		require.Len(t, raw, 4)
		assert.Equal(t, byte(0), raw[0])
		assert.Equal(t, byte(255), raw[3])

		decoded := decodeQuantized(t, rt, raw, q)
		v, _ := Values[float32](decoded)
		for i := range values {
			assert.InDelta(t, values[i], v[i], float64(q.Scale)/2+1e-6)
		}
	})

	t.Run("uint16 int32", func(t *testing.T) {
		values := []int32{10, 20, 30, -7000}
		rt := MustNewTensor("w", dtype.Int32, []int{2, 2}, values)
		raw, q, err := Quantize(rt, dtype.Uint16)
		require.NoError(t, err)
		assert.Len(t, raw, 8)
		assert.Equal(t, float32(-7000), q.Min)

		decoded := decodeQuantized(t, rt, raw, q)
		assert.Equal(t, values, decoded.Data())
	})

	t.Run("constant tensor", func(t *testing.T) {
		rt := MustNewTensor("w", dtype.Float32, []int{2}, []float32{2, 2})
		raw, q, err := Quantize(rt, dtype.Uint8)
		require.NoError(t, err)
		assert.Equal(t, []byte{0, 0}, raw)
		assert.Equal(t, manifest.Quantization{DType: dtype.Uint8, Scale: 1, Min: 2}, q)
	})

	t.Run("float16", func(t *testing.T) {
		rt := MustNewTensor("w", dtype.Float32, []int{2}, []float32{1, -2})
		raw, q, err := Quantize(rt, dtype.Float16)
		require.NoError(t, err)
		assert.Equal(t, []byte{0x00, 0x3c, 0x00, 0xc0}, raw)
		assert.Equal(t, manifest.Quantization{DType: dtype.Float16}, q)
	})

	t.Run("unsupported dtype", func(t *testing.T) {
		rt := MustNewTensor("w", dtype.Bool, []int{1}, []bool{true})
		_, _, err := Quantize(rt, dtype.Uint8)
		assert.True(t, errors.Is(err, ErrQuantizationMismatch))
	})

	t.Run("float16 on int32", func(t *testing.T) {
		rt := MustNewTensor("w", dtype.Int32, []int{1}, []int32{1})
		_, _, err := Quantize(rt, dtype.Float16)
		assert.True(t, errors.Is(err, ErrQuantizationMismatch))
	})

	t.Run("int32 range ending at MaxInt32", func(t *testing.T) {
		values := []int32{-2130706432, math.MaxInt32}
		for _, qt := range []dtype.QuantDType{dtype.Uint8, dtype.Uint16} {
			rt := MustNewTensor("w", dtype.Int32, []int{2}, values)
			raw, q, err := Quantize(rt, qt)
			require.NoError(t, err)

			levels := float64(uint64(1)<<(8*qt.Size()) - 1)
			assert.LessOrEqual(t, float64(q.Scale)*levels+float64(q.Min), float64(math.MaxInt32), qt.String())

			v, _ := Values[int32](decodeQuantized(t, rt, raw, q))
			assert.Equal(t, values[0], v[0], qt.String())
			assert.Positive(t, v[1], qt.String())
			assert.InDelta(t, float64(math.MaxInt32), float64(v[1]), float64(q.Scale), qt.String())
		}
	})

	t.Run("non-finite values", func(t *testing.T) {
		for _, bad := range []float32{float32(math.NaN()), float32(math.Inf(1)), float32(math.Inf(-1))} {
			rt := MustNewTensor("w", dtype.Float32, []int{3}, []float32{1, bad, 3})
			for _, qt := range []dtype.QuantDType{dtype.Uint8, dtype.Uint16} {
				_, _, err := Quantize(rt, qt)
				assert.True(t, errors.Is(err, ErrNonFinite), "%v %s: unexpected error: %v", bad, qt, err)

				var fe *FormatError
				require.ErrorAs(t, err, &fe)
				assert.Equal(t, "w", fe.Weight)
			}
		}
	})

	t.Run("float16 keeps non-finite values", func(t *testing.T) {
		rt := MustNewTensor("w", dtype.Float32, []int{1}, []float32{float32(math.Inf(1))})
		raw, _, err := Quantize(rt, dtype.Float16)
		require.NoError(t, err)
		assert.Equal(t, []byte{0x00, 0x7c}, raw)
	})

	t.Run("invalid quantization", func(t *testing.T) {
		rt := MustNewTensor("w", dtype.Float32, []int{1}, []float32{1})
		_, _, err := Quantize(rt, dtype.QuantDType(0))
		assert.True(t, errors.Is(err, ErrUnknownQuantization))
	})
}

func decodeQuantized(t *testing.T, rt Tensor, raw []byte, q manifest.Quantization) Tensor {
	t.Helper()
	ws := rt.Spec()
	ws.Quantization = &q
	nt, err := DecodeBytes(raw, []manifest.WeightSpec{ws})
	require.NoError(t, err)
	out, ok := nt.Get(rt.Name())
	require.True(t, ok)
	return out
}
