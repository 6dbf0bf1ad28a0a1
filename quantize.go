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
)

// Quantize compresses a float32 or int32 tensor to the on-disk type q,
// returning the encoded bytes and the quantization parameters needed to
// decode them.
//
// Affine quantization maps the tensor's [min, max] range linearly onto
// the full unsigned range of q. Float16 rounds each value to the nearest
// half-precision value.
func Quantize(t Tensor, q dtype.QuantDType) ([]byte, manifest.Quantization, error) {
	if err := q.Validate(); err != nil {
		return nil, manifest.Quantization{}, newFormatError(t.name, t.dType, fmt.Errorf("%w: %v", ErrUnknownQuantization, err))
	}
	if !q.Supports(t.dType) {
		return nil, manifest.Quantization{}, newFormatError(t.name, t.dType, fmt.Errorf("%w: %s", ErrQuantizationMismatch, q))
	}

	if q == dtype.Float16 {
		v, _ := Values[float32](t)
		return float16.AppendFloat32s(make([]byte, 0, 2*len(v)), v), manifest.Quantization{DType: q}, nil
	}

	values := float64Values(t)
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, manifest.Quantization{}, newFormatError(t.name, t.dType, fmt.Errorf("%w: element %d is %g", ErrNonFinite, i, v))
		}
	}
	levels := float64(uint64(1)<<(8*q.Size()) - 1)
	minValue, maxValue := valueRange(values)
	mq := manifest.Quantization{
		DType: q,
		Scale: affineScale(minValue, maxValue, levels),
		Min:   float32(minValue),
	}

	out := make([]byte, 0, len(values)*q.Size())
	for _, v := range values {
		r := math.Round((v - float64(mq.Min)) / float64(mq.Scale))
		r = max(0, min(levels, r))
		if q == dtype.Uint8 {
			out = append(out, uint8(r))
		} else {
			out = binary.LittleEndian.AppendUint16(out, uint16(r))
		}
	}
	return out, mq, nil
}

// affineScale returns the float32 step mapping levels onto [lo, hi].
// The step is rounded down until levels*scale+lo no longer exceeds hi,
// so the top level does not decode past the original maximum.
func affineScale(lo, hi, levels float64) float32 {
	scale := float32((hi - lo) / levels)
	if scale == 0 {
		return 1
	}
	// Rounding scale to float32 is off by at most half an ulp; a few steps
	// are enough. Anything left over is saturated when decoding.
	for i := 0; i < 4 && scale > 0 && float64(scale)*levels+float64(float32(lo)) > hi; i++ {
		scale = math.Nextafter32(scale, 0)
	}
	if scale == 0 {
		return 1
	}
	return scale
}

func float64Values(t Tensor) []float64 {
	switch v := t.data.(type) {
	case []float32:
		out := make([]float64, len(v))
		for i, x := range v {
			out[i] = float64(x)
		}
		return out
	case []int32:
		out := make([]float64, len(v))
		for i, x := range v {
			out[i] = float64(x)
		}
		return out
	}
	return nil
}

func valueRange(values []float64) (lo, hi float64) {
	if len(values) == 0 {
		return 0, 0
	}
	lo, hi = values[0], values[0]
	for _, v := range values[1:] {
		lo = min(lo, v)
		hi = max(hi, v)
	}
	return lo, hi
}
