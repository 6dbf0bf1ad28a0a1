// Copyright 2023 The NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package weights

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"

	"github.com/nlpodyssey/weights/dtype"
	"github.com/nlpodyssey/weights/manifest"
	"github.com/nlpodyssey/weights/shard"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeBytes(t *testing.T) {
	for name, def := range commonDefinitions {
		t.Run(name, func(t *testing.T) {
			specs := []manifest.WeightSpec{{Name: name, DType: def.dType, Shape: def.shape}}
			nt, err := DecodeBytes(def.bytes, specs)
			require.NoError(t, err)
			require.Equal(t, 1, nt.Len())

			rt, ok := nt.Get(name)
			require.True(t, ok)
			assert.Equal(t, def.dType, rt.DType())
			assert.Equal(t, manifest.Shape(def.shape).Clone(), manifest.Shape(rt.Shape()))
			assert.Equal(t, def.typedValue, rt.Data())
		})
	}
}

func TestDecode_sequence(t *testing.T) {
	data := []byte{
		0x00, 0x00, 0x80, 0x3f, // a: float32 1
		0x01, 0x00, // b: bool [true, false]
		0x01, 0x00, 0x00, 0x00, 'x', // c: string ["x"]
		0x07, 0x00, 0x00, 0x00, // d: int32 7
		0xff, 0xff, // trailing bytes are ignored
	}
	specs := []manifest.WeightSpec{
		{Name: "a", DType: dtype.Float32, Shape: manifest.Shape{1}},
		{Name: "b", DType: dtype.Bool, Shape: manifest.Shape{2}},
		{Name: "c", DType: dtype.String, Shape: manifest.Shape{1}},
		{Name: "d", DType: dtype.Int32},
	}

	t.Run("contiguous", func(t *testing.T) {
		nt, err := DecodeBytes(data, specs)
		require.NoError(t, err)
		assertSequence(t, nt)
	})

	t.Run("sharded", func(t *testing.T) {
		// Shards of 3 bytes put every weight across a boundary.
		parts, err := shard.Split(data, 3)
		require.NoError(t, err)
		nt, err := Decode(shard.New(parts...), specs)
		require.NoError(t, err)
		assertSequence(t, nt)
	})

	t.Run("tensors own their data", func(t *testing.T) {
		buf := append([]byte(nil), data...)
		nt, err := DecodeBytes(buf, specs)
		require.NoError(t, err)
		for i := range buf {
			buf[i] = 0x55
		}
		assertSequence(t, nt)
	})
}

func assertSequence(t *testing.T, nt *NamedTensors) {
	t.Helper()
	assert.Equal(t, []string{"a", "b", "c", "d"}, nt.Names())

	a, _ := nt.Get("a")
	assert.Equal(t, []float32{1}, a.Data())
	b, _ := nt.Get("b")
	assert.Equal(t, []bool{true, false}, b.Data())
	c, _ := nt.Get("c")
	assert.Equal(t, [][]byte{[]byte("x")}, c.Data())
	d, _ := nt.Get("d")
	assert.Equal(t, []int32{7}, d.Data())
	assert.Nil(t, d.Shape())
}

func TestDecode_empty(t *testing.T) {
	nt, err := Decode(shard.New(), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, nt.Len())
}

func TestDecode_quantized(t *testing.T) {
	u8 := &manifest.Quantization{DType: dtype.Uint8, Scale: 0.1, Min: -1}
	raw := []byte{0, 48, 255}

	t.Run("uint8 to float32", func(t *testing.T) {
		nt, err := DecodeBytes(raw, []manifest.WeightSpec{
			{Name: "w", DType: dtype.Float32, Shape: manifest.Shape{3}, Quantization: u8},
		})
		require.NoError(t, err)
		w, _ := nt.Get("w")
		v, ok := Values[float32](w)
		require.True(t, ok)
		require.Len(t, v, 3)
		assert.InDelta(t, -1, v[0], 1e-6)
		assert.InDelta(t, 3.8, v[1], 1e-6)
		assert.InDelta(t, 24.5, v[2], 1e-6)
	})

	t.Run("uint8 to int32", func(t *testing.T) {
		nt, err := DecodeBytes(raw, []manifest.WeightSpec{
			{Name: "w", DType: dtype.Int32, Shape: manifest.Shape{3}, Quantization: u8},
		})
		require.NoError(t, err)
		w, _ := nt.Get("w")
		assert.Equal(t, []int32{-1, 4, 25}, w.Data())
	})

	t.Run("uint16 to float32", func(t *testing.T) {
		data := binary.LittleEndian.AppendUint16(nil, 0)
		data = binary.LittleEndian.AppendUint16(data, 1000)
		data = binary.LittleEndian.AppendUint16(data, math.MaxUint16)
		nt, err := DecodeBytes(data, []manifest.WeightSpec{{
			Name: "w", DType: dtype.Float32, Shape: manifest.Shape{3},
			Quantization: &manifest.Quantization{DType: dtype.Uint16, Scale: 0.5, Min: 2},
		}})
		require.NoError(t, err)
		w, _ := nt.Get("w")
		assert.Equal(t, []float32{2, 502, 32769.5}, w.Data())
	})

	t.Run("float16 to float32", func(t *testing.T) {
		data := []byte{0x00, 0x3c /**/, 0x00, 0xc0 /**/, 0x00, 0x7c /**/, 0x01, 0x00}
		nt, err := DecodeBytes(data, []manifest.WeightSpec{{
			Name: "w", DType: dtype.Float32, Shape: manifest.Shape{2, 2},
			Quantization: &manifest.Quantization{DType: dtype.Float16},
		}})
		require.NoError(t, err)
		w, _ := nt.Get("w")
		v, _ := Values[float32](w)
		require.Len(t, v, 4)
		assert.Equal(t, float32(1), v[0])
		assert.Equal(t, float32(-2), v[1])
		assert.True(t, math.IsInf(float64(v[2]), 1))
		assert.InDelta(t, 5.960464477539063e-8, v[3], 1e-12)
	})
}

func TestDecode_int32Saturation(t *testing.T) {
	testCases := []struct {
		name string
		q    manifest.Quantization
		want int32
	}{
		{"above MaxInt32", manifest.Quantization{DType: dtype.Uint8, Scale: 1 << 24, Min: -2130706432}, math.MaxInt32},
		{"below MinInt32", manifest.Quantization{DType: dtype.Uint8, Scale: 1, Min: -3e9}, math.MinInt32},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			raw := []byte{255}
			if tc.want < 0 {
				raw = []byte{0}
			}
			nt, err := DecodeBytes(raw, []manifest.WeightSpec{
				{Name: "w", DType: dtype.Int32, Shape: manifest.Shape{1}, Quantization: &tc.q},
			})
			require.NoError(t, err)
			w, _ := nt.Get("w")
			assert.Equal(t, []int32{tc.want}, w.Data())
		})
	}
}

func TestDecode_errors(t *testing.T) {
	testCases := []struct {
		name   string
		data   []byte
		spec   manifest.WeightSpec
		target error
	}{
		{
			name:   "unsupported dtype",
			data:   []byte{0, 0, 0, 0},
			spec:   manifest.WeightSpec{Name: "w", DType: dtype.DType(0)},
			target: ErrUnsupportedDType,
		},
		{
			name: "unknown quantization",
			data: []byte{0, 0, 0, 0},
			spec: manifest.WeightSpec{Name: "w", DType: dtype.Float32,
				Quantization: &manifest.Quantization{DType: dtype.QuantDType(9)}},
			target: ErrUnknownQuantization,
		},
		{
			name: "float16 on int32",
			data: []byte{0, 0},
			spec: manifest.WeightSpec{Name: "w", DType: dtype.Int32,
				Quantization: &manifest.Quantization{DType: dtype.Float16}},
			target: ErrQuantizationMismatch,
		},
		{
			name: "uint8 on bool",
			data: []byte{1},
			spec: manifest.WeightSpec{Name: "w", DType: dtype.Bool,
				Quantization: &manifest.Quantization{DType: dtype.Uint8, Scale: 1}},
			target: ErrQuantizationMismatch,
		},
		{
			name:   "truncated fixed-size",
			data:   []byte{0, 0, 0},
			spec:   manifest.WeightSpec{Name: "w", DType: dtype.Float32},
			target: ErrTruncated,
		},
		{
			name:   "truncated string length",
			data:   []byte{1, 0},
			spec:   manifest.WeightSpec{Name: "w", DType: dtype.String},
			target: ErrTruncated,
		},
		{
			name:   "truncated string bytes",
			data:   []byte{5, 0, 0, 0, 'a', 'b'},
			spec:   manifest.WeightSpec{Name: "w", DType: dtype.String},
			target: ErrTruncated,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			nt, err := DecodeBytes(tc.data, []manifest.WeightSpec{tc.spec})
			assert.Nil(t, nt)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tc.target), "unexpected error: %v", err)

			var fe *FormatError
			require.ErrorAs(t, err, &fe)
			assert.Equal(t, "w", fe.Weight)
		})
	}
}

func TestDecode_duplicateNames(t *testing.T) {
	specs := []manifest.WeightSpec{
		{Name: "w", DType: dtype.Bool},
		{Name: "w", DType: dtype.Bool},
	}
	_, err := DecodeBytes([]byte{0, 1}, specs)
	assert.EqualError(t, err, `duplicate tensor name "w"`)
}
