// Copyright 2023 The NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package weights

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/nlpodyssey/weights/dtype"
	"github.com/nlpodyssey/weights/float16"
	"github.com/nlpodyssey/weights/manifest"
	"github.com/nlpodyssey/weights/shard"
)

// Decode interprets buf as the concatenated encoding of the weights
// described by specs, returning the decoded tensors in spec order.
//
// Specs MUST be listed in the same order used for encoding. The format
// carries no per-weight offsets, so a different order cannot be detected
// and silently yields wrong data.
//
// Decode fails with ErrTruncated if buf is too short for specs; bytes
// left over after the last weight are ignored. The shards of buf are
// never modified, and every returned tensor owns its data.
func Decode(buf *shard.Buffer, specs []manifest.WeightSpec) (*NamedTensors, error) {
	out, err := NewNamedTensors()
	if err != nil {
		return nil, err
	}
	offset := int64(0)
	for _, ws := range specs {
		n, err := specByteLength(ws, shardAccessor{buf: buf, base: offset})
		if err != nil {
			return nil, err
		}
		end := offset + int64(n)
		if end > buf.Len() {
			return nil, newFormatError(ws.Name, ws.DType, fmt.Errorf("%w: need %d bytes at offset %d, have %d", ErrTruncated, n, offset, buf.Len()))
		}
		t, err := decodeWeight(ws, buf.Slice(offset, end))
		if err != nil {
			return nil, err
		}
		if err = out.Add(t); err != nil {
			return nil, err
		}
		offset = end
	}
	return out, nil
}

// DecodeBytes is like Decode over a single contiguous buffer.
func DecodeBytes(data []byte, specs []manifest.WeightSpec) (*NamedTensors, error) {
	return Decode(shard.New(data), specs)
}

// decodeWeight converts the exact payload of one weight into a Tensor.
func decodeWeight(ws manifest.WeightSpec, data []byte) (Tensor, error) {
	size, err := ws.Shape.Size()
	if err != nil {
		return Tensor{}, newFormatError(ws.Name, ws.DType, err)
	}

	var values any
	if ws.Quantization != nil {
		values, err = dequantize(ws, size, data)
	} else {
		values, err = readTypedData(ws, size, data)
	}
	if err != nil {
		return Tensor{}, err
	}
	return Tensor{
		name:  ws.Name,
		dType: ws.DType,
		shape: ws.Shape.Clone(),
		data:  values,
	}, nil
}

func readTypedData(ws manifest.WeightSpec, size int, data []byte) (any, error) {
	switch ws.DType {
	case dtype.Float32:
		return readF32Data(data, size), nil
	case dtype.Int32:
		return read32bitData[int32](data, size), nil
	case dtype.Bool:
		return readBoolData(data, size), nil
	case dtype.String:
		return readStringData(ws, data, size)
	case dtype.Complex64:
		return readC64Data(data, size), nil
	}
	return nil, newFormatError(ws.Name, ws.DType, ErrUnsupportedDType)
}

func dequantize(ws manifest.WeightSpec, size int, data []byte) (any, error) {
	q := ws.Quantization
	switch q.DType {
	case dtype.Uint8:
		return dequantizeAffine(ws, readU8Data(data, size))
	case dtype.Uint16:
		return dequantizeAffine(ws, read16bitData[uint16](data, size))
	case dtype.Float16:
		if ws.DType != dtype.Float32 {
			return nil, newFormatError(ws.Name, ws.DType, fmt.Errorf("%w: %s", ErrQuantizationMismatch, q.DType))
		}
		out := make([]float32, size)
		float16.DecodeSlice(out, data)
		return out, nil
	}
	return nil, newFormatError(ws.Name, ws.DType, fmt.Errorf("%w: %s", ErrUnknownQuantization, q.DType))
}

// dequantizeAffine reconstructs raw*scale+min, rounded to the nearest
// integer (halves rounding up) and saturated to the int32 range for int32
// weights.
func dequantizeAffine[T uint8 | uint16](ws manifest.WeightSpec, raw []T) (any, error) {
	scale, minValue := float64(ws.Quantization.Scale), float64(ws.Quantization.Min)
	switch ws.DType {
	case dtype.Float32:
		out := make([]float32, len(raw))
		for i, v := range raw {
			out[i] = float32(float64(v)*scale + minValue)
		}
		return out, nil
	case dtype.Int32:
		out := make([]int32, len(raw))
		for i, v := range raw {
			r := math.Floor(float64(v)*scale + minValue + 0.5)
			out[i] = int32(max(math.MinInt32, min(math.MaxInt32, r)))
		}
		return out, nil
	}
	return nil, newFormatError(ws.Name, ws.DType, fmt.Errorf("%w: %s", ErrQuantizationMismatch, ws.Quantization.DType))
}

func readBoolData(data []byte, size int) []bool {
	out := make([]bool, size)
	for i := range out {
		out[i] = data[i] != 0
	}
	return out
}

func readU8Data(data []byte, size int) []uint8 {
	out := make([]uint8, size)
	copy(out, data)
	return out
}

func read16bitData[T uint16 | int16](data []byte, size int) []T {
	out := make([]T, size)
	for i := range out {
		b := data[2*i:]
		out[i] = T(b[0]) | T(b[1])<<8
	}
	return out
}

func read32bitData[T uint32 | int32](data []byte, size int) []T {
	out := make([]T, size)
	for i := range out {
		b := data[4*i:]
		out[i] = T(b[0]) | T(b[1])<<8 | T(b[2])<<16 | T(b[3])<<24
	}
	return out
}

func readF32Data(data []byte, size int) []float32 {
	out := make([]float32, size)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[4*i:]))
	}
	return out
}

// readC64Data pairs interleaved real and imaginary float32 parts.
func readC64Data(data []byte, size int) []complex64 {
	parts := readF32Data(data, 2*size)
	out := make([]complex64, size)
	for i := range out {
		out[i] = complex(parts[2*i], parts[2*i+1])
	}
	return out
}

func readStringData(ws manifest.WeightSpec, data []byte, size int) ([][]byte, error) {
	out := make([][]byte, size)
	off := 0
	for i := range out {
		if len(data)-off < 4 {
			return nil, newFormatError(ws.Name, ws.DType, fmt.Errorf("%w: missing length of string %d", ErrTruncated, i))
		}
		n := int(binary.LittleEndian.Uint32(data[off:]))
		off += 4
		if len(data)-off < n {
			return nil, newFormatError(ws.Name, ws.DType, fmt.Errorf("%w: string %d needs %d bytes, have %d", ErrTruncated, i, n, len(data)-off))
		}
		s := make([]byte, n)
		copy(s, data[off:off+n])
		out[i] = s
		off += n
	}
	return out, nil
}
